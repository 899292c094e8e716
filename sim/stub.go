package sim

import (
	"math"
	"math/rand"

	"github.com/phil-mansfield/gofoam/geom"
)

const (
	stubMeanRadius   = 0.02
	stubRadiusSpread = 0.01
	stubMinRadius    = 0.01
	stubMaxRadius    = 0.05
	stubStepScale    = 0.001
)

// Stub is a minimal Simulator: particles start on a jittered grid and
// random-walk under periodic boundary conditions. It stands in for a
// real relaxation kernel in the demo binary and the tests.
type Stub struct {
	positions []geom.Vec
	radii     []float64

	rng    *rand.Rand
	frozen bool
	steps  int
}

// NewStub creates a stub with n particles, deterministic for a given
// seed. Initial positions sit on a jittered grid rather than uniformly
// at random, which keeps early configurations away from near-coincident
// points.
func NewStub(n int, seed int64) *Stub {
	s := &Stub{
		positions: make([]geom.Vec, n),
		radii:     make([]float64, n),
		rng:       rand.New(rand.NewSource(seed)),
	}

	s.jitteredGrid()
	for i := range s.radii {
		r := stubMeanRadius + stubRadiusSpread*s.rng.NormFloat64()
		if r < stubMinRadius {
			r = stubMinRadius
		} else if r > stubMaxRadius {
			r = stubMaxRadius
		}
		s.radii[i] = r
	}
	return s
}

// jitteredGrid fills positions with an m×m×m lattice over
// [0.05, 0.95]³, wrapping extra particles back onto jittered copies of
// the first lattice sites, then perturbs everything slightly.
func (s *Stub) jitteredGrid() {
	n := len(s.positions)
	m := int(math.Round(math.Cbrt(float64(n))))
	if m < 4 {
		m = 4
	}

	lin := make([]float64, m)
	for i := range lin {
		lin[i] = 0.05 + 0.9*float64(i)/float64(m-1)
	}

	idx := 0
	for i := 0; i < m && idx < n; i++ {
		for j := 0; j < m && idx < n; j++ {
			for k := 0; k < m && idx < n; k++ {
				s.positions[idx] = geom.Vec{lin[i], lin[j], lin[k]}
				idx++
			}
		}
	}
	for base := 0; idx < n; idx++ {
		p := s.positions[base]
		for k := 0; k < 3; k++ {
			p[k] = geom.Wrap01(p[k] + (s.rng.Float64()-0.5)*0.2/float64(m))
		}
		s.positions[idx] = p
		base++
	}

	for i := range s.positions {
		for k := 0; k < 3; k++ {
			s.positions[i][k] = geom.Wrap01(
				s.positions[i][k] + (s.rng.Float64()-0.5)*0.1/float64(m),
			)
		}
	}
}

// Positions01 returns an owned copy of the positions.
func (s *Stub) Positions01() []geom.Vec {
	out := make([]geom.Vec, len(s.positions))
	copy(out, s.positions)
	return out
}

// Radii returns an owned copy of the radii.
func (s *Stub) Radii() []float64 {
	out := make([]float64, len(s.radii))
	copy(out, s.radii)
	return out
}

// SetRadii overwrites the stub's radii.
func (s *Stub) SetRadii(r []float64) {
	copy(s.radii, r)
}

// RelaxStep random-walks every particle one step, unless frozen.
func (s *Stub) RelaxStep() {
	if s.frozen {
		return
	}
	for i := range s.positions {
		for k := 0; k < 3; k++ {
			s.positions[i][k] = geom.Wrap01(
				s.positions[i][k] + stubStepScale*s.rng.NormFloat64(),
			)
		}
	}
	s.steps++
}

// Freeze pauses advection.
func (s *Stub) Freeze() { s.frozen = true }

// Resume lifts a Freeze.
func (s *Stub) Resume() { s.frozen = false }

// Frozen reports whether advection is paused.
func (s *Stub) Frozen() bool { return s.frozen }

// Steps returns how many relaxation steps have actually run.
func (s *Stub) Steps() int { return s.steps }
