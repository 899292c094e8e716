/*Package control implements the banded isoperimetric-quotient feedback
controller. Given a geometric measurement of every cell it computes a
conservative, zero-sum radius correction that pushes cell shapes toward
a target quality band.*/
package control

import (
	"fmt"
	"math"
)

const (
	// MaxBeta bounds the growth and shrink rates. Rates anywhere near
	// this value overshoot badly; useful values are O(0.01).
	MaxBeta = 0.5

	// Numerical floors used by Apply.
	areaFloor    = 1e-12
	radius2Floor = 1e-12
)

// Params holds the controller tunables. Mutate through the setters, which
// validate their inputs and leave the receiver unchanged on rejection;
// read as plain values.
type Params struct {
	// IQMin and IQMax delimit the target shape-quality band,
	// 0 < IQMin < IQMax <= 1.
	IQMin, IQMax float64

	// BetaGrow and BetaShrink are the relative volume-growth and
	// -shrink rates applied to cells outside the band.
	BetaGrow, BetaShrink float64

	// DrCap is the maximum relative radius change per application,
	// in (0, 1].
	DrCap float64

	// RMin and RMax are hard radius bounds. Every radius the controller
	// returns lies in [RMin, RMax].
	RMin, RMax float64
}

// DefaultParams returns the tunables the controller ships with.
func DefaultParams() Params {
	return Params{
		IQMin:      0.70,
		IQMax:      0.90,
		BetaGrow:   0.015,
		BetaShrink: 0.002,
		DrCap:      0.01,
		RMin:       0.005,
		RMax:       0.1,
	}
}

// SetIQBand replaces the quality band. Both bounds must lie in (0, 1]
// and min must be strictly below max.
func (p *Params) SetIQBand(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) ||
		min <= 0 || max > 1 || min >= max {
		return fmt.Errorf(
			"invalid IQ band [%g, %g]: need 0 < min < max <= 1", min, max,
		)
	}
	p.IQMin, p.IQMax = min, max
	return nil
}

// SetBetaGrow replaces the growth rate, which must lie in [0, MaxBeta].
func (p *Params) SetBetaGrow(beta float64) error {
	if math.IsNaN(beta) || beta < 0 || beta > MaxBeta {
		return fmt.Errorf(
			"invalid growth rate %g: need 0 <= beta <= %g", beta, MaxBeta,
		)
	}
	p.BetaGrow = beta
	return nil
}

// SetBetaShrink replaces the shrink rate, which must lie in [0, MaxBeta].
func (p *Params) SetBetaShrink(beta float64) error {
	if math.IsNaN(beta) || beta < 0 || beta > MaxBeta {
		return fmt.Errorf(
			"invalid shrink rate %g: need 0 <= beta <= %g", beta, MaxBeta,
		)
	}
	p.BetaShrink = beta
	return nil
}

// SetDrCap replaces the per-step relative change cap, in (0, 1].
func (p *Params) SetDrCap(cap float64) error {
	if math.IsNaN(cap) || cap <= 0 || cap > 1 {
		return fmt.Errorf("invalid step cap %g: need 0 < cap <= 1", cap)
	}
	p.DrCap = cap
	return nil
}

// SetRadiusBounds replaces the hard radius bounds, 0 < min < max.
func (p *Params) SetRadiusBounds(min, max float64) error {
	if math.IsNaN(min) || math.IsNaN(max) || min <= 0 || min >= max {
		return fmt.Errorf(
			"invalid radius bounds [%g, %g]: need 0 < min < max", min, max,
		)
	}
	p.RMin, p.RMax = min, max
	return nil
}

// Check verifies that p is internally consistent. Params assembled
// directly rather than through the setters go through this once before
// first use.
func (p *Params) Check() error {
	var scratch Params
	if err := scratch.SetIQBand(p.IQMin, p.IQMax); err != nil {
		return err
	}
	if err := scratch.SetBetaGrow(p.BetaGrow); err != nil {
		return err
	}
	if err := scratch.SetBetaShrink(p.BetaShrink); err != nil {
		return err
	}
	if err := scratch.SetDrCap(p.DrCap); err != nil {
		return err
	}
	return scratch.SetRadiusBounds(p.RMin, p.RMax)
}
