/*Package sched drives the foam loop: it ticks the relaxation simulator
every frame and, on an adaptive cadence, ships particle snapshots to a
background geometry worker and feeds the measurements through the banded
IQ controller back into the simulator. A strict one-job-in-flight
discipline keeps tick latency flat no matter how slow a measurement is.*/
package sched

import (
	"fmt"
	"time"

	"github.com/phil-mansfield/gofoam/control"
	"github.com/phil-mansfield/gofoam/worker"
)

// Config collects every scheduler tunable. Build one with DefaultConfig
// and adjust fields before handing it to New; it is copied at
// construction and never read again.
type Config struct {
	// Cadence is the initial number of ticks between measurements.
	Cadence int

	// KMin and KMax bound the cadence once adaptation is active.
	KMin, KMax int

	// GrowStep widens the cadence after a measurement costing more
	// than HighCost; ShrinkStep tightens it after one cheaper than
	// LowCost.
	GrowStep, ShrinkStep int
	HighCost, LowCost    time.Duration

	// RecycleEvery is the number of consumed results after which the
	// worker is discarded and rebuilt. External engine bindings can
	// accumulate internal state over many calls; recycling bounds it.
	RecycleEvery int

	// MaxChunk is the largest particle count per engine call.
	MaxChunk int

	// Params are the controller tunables.
	Params control.Params
}

// DefaultConfig returns the tuning the loop ships with: measure every
// 24 ticks, drift between every 16 and every 96 depending on measured
// cost, rebuild the worker every 300 results.
func DefaultConfig() Config {
	return Config{
		Cadence:      24,
		KMin:         16,
		KMax:         96,
		GrowStep:     8,
		ShrinkStep:   4,
		HighCost:     32 * time.Millisecond,
		LowCost:      12 * time.Millisecond,
		RecycleEvery: 300,
		MaxChunk:     worker.DefaultMaxChunk,
		Params:       control.DefaultParams(),
	}
}

// Check verifies the configuration before use.
func (c *Config) Check() error {
	if c.KMin <= 0 || c.KMin > c.KMax {
		return fmt.Errorf(
			"invalid cadence bounds [%d, %d]: need 0 < KMin <= KMax",
			c.KMin, c.KMax,
		)
	}
	if c.Cadence <= 0 {
		return fmt.Errorf("invalid initial cadence %d", c.Cadence)
	}
	if c.GrowStep < 0 || c.ShrinkStep < 0 {
		return fmt.Errorf(
			"invalid cadence steps (grow=%d, shrink=%d): must be >= 0",
			c.GrowStep, c.ShrinkStep,
		)
	}
	if c.LowCost > c.HighCost {
		return fmt.Errorf(
			"cost thresholds inverted: LowCost %v > HighCost %v",
			c.LowCost, c.HighCost,
		)
	}
	if c.RecycleEvery <= 0 {
		return fmt.Errorf("invalid RecycleEvery %d", c.RecycleEvery)
	}
	if c.MaxChunk <= 0 {
		return fmt.Errorf("invalid MaxChunk %d", c.MaxChunk)
	}
	return c.Params.Check()
}
