/*Package sim defines the contract the foam loop expects from the
relaxation simulator, and a deterministic stub implementation used by
the demo binary and the tests.*/
package sim

import (
	"github.com/phil-mansfield/gofoam/geom"
)

// Simulator is the external relaxation kernel driven by the scheduler.
// It owns the live particle state. Positions01 and Radii must return
// owned copies: the scheduler hands them across a goroutine boundary.
type Simulator interface {
	// Positions01 returns the particle positions, each coordinate in
	// [0, 1).
	Positions01() []geom.Vec

	// Radii returns the particle radii.
	Radii() []float64

	// SetRadii overwrites the particle radii.
	SetRadii(r []float64)

	// RelaxStep advances the relaxation by one tick. It's a no-op
	// while the simulator is frozen.
	RelaxStep()

	// Freeze pauses particle advection while a snapshot is taken.
	Freeze()

	// Resume lifts a Freeze.
	Resume()
}
