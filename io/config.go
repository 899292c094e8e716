/*Package io reads foam loop configuration files. Files use gcfg's
INI-like syntax with a single [Foam] section; every field has a
documented default, so an empty section is a valid configuration.*/
package io

import (
	"fmt"
	"time"

	"gopkg.in/gcfg.v1"

	"github.com/phil-mansfield/gofoam/control"
	"github.com/phil-mansfield/gofoam/sched"
)

const ExampleFoamFile = `[Foam]

#######################
# Optional Parameters #
#######################

# Number of particles in the demo simulation. Default is 1000.
# Particles = 1000

# Seed for the demo simulation's random number generator. Default is 42.
# Seed = 42

# Number of frames the demo runs for. Default is 2000.
# Frames = 2000

# How often, in frames, the demo logs loop statistics. Default is 100.
# LogEvery = 100

# Initial measurement cadence in ticks, and the bounds the adaptive rule
# may move it between. Defaults are 24, 16 and 96.
# Cadence = 24
# CadenceMin = 16
# CadenceMax = 96

# Cadence adjustment steps. After a measurement costing more than
# HighCostMS milliseconds the cadence grows by GrowStep; after one
# cheaper than LowCostMS it shrinks by ShrinkStep. Defaults are 8, 4,
# 32 and 12.
# GrowStep = 8
# ShrinkStep = 4
# HighCostMS = 32
# LowCostMS = 12

# The geometry worker is discarded and rebuilt after this many results.
# Default is 300.
# RecycleEvery = 300

# Largest particle count per geometry engine call. Bigger inputs are
# split into chunks of at most this size. Default is 512.
# MaxChunk = 512

# Target isoperimetric quotient band. Cells below IQMin grow, cells
# above IQMax shrink. Defaults are 0.70 and 0.90.
# IQMin = 0.70
# IQMax = 0.90

# Relative volume growth and shrink rates. Defaults are 0.015 and 0.002.
# BetaGrow = 0.015
# BetaShrink = 0.002

# Maximum relative radius change per controller application.
# Default is 0.01.
# DrCap = 0.01

# Hard radius bounds. Defaults are 0.005 and 0.1.
# RadiusMin = 0.005
# RadiusMax = 0.1`

// FoamConfig mirrors the [Foam] section of a configuration file.
type FoamConfig struct {
	Particles int
	Seed      int64
	Frames    int
	LogEvery  int

	Cadence    int
	CadenceMin int
	CadenceMax int
	GrowStep   int
	ShrinkStep int
	HighCostMS float64
	LowCostMS  float64

	RecycleEvery int
	MaxChunk     int

	IQMin      float64
	IQMax      float64
	BetaGrow   float64
	BetaShrink float64
	DrCap      float64
	RadiusMin  float64
	RadiusMax  float64
}

// FoamWrapper is the top-level structure gcfg parses a file into.
type FoamWrapper struct {
	Foam FoamConfig
}

// DefaultFoamWrapper returns a wrapper pre-filled with every default, so
// fields missing from the file keep their documented values.
func DefaultFoamWrapper() *FoamWrapper {
	sc := sched.DefaultConfig()
	cp := control.DefaultParams()
	return &FoamWrapper{Foam: FoamConfig{
		Particles: 1000,
		Seed:      42,
		Frames:    2000,
		LogEvery:  100,

		Cadence:    sc.Cadence,
		CadenceMin: sc.KMin,
		CadenceMax: sc.KMax,
		GrowStep:   sc.GrowStep,
		ShrinkStep: sc.ShrinkStep,
		HighCostMS: float64(sc.HighCost) / float64(time.Millisecond),
		LowCostMS:  float64(sc.LowCost) / float64(time.Millisecond),

		RecycleEvery: sc.RecycleEvery,
		MaxChunk:     sc.MaxChunk,

		IQMin:      cp.IQMin,
		IQMax:      cp.IQMax,
		BetaGrow:   cp.BetaGrow,
		BetaShrink: cp.BetaShrink,
		DrCap:      cp.DrCap,
		RadiusMin:  cp.RMin,
		RadiusMax:  cp.RMax,
	}}
}

// ReadFoamConfig parses the file at fname over the defaults.
func ReadFoamConfig(fname string) (*FoamConfig, error) {
	wrap := DefaultFoamWrapper()
	if err := gcfg.ReadFileInto(wrap, fname); err != nil {
		return nil, err
	}
	con := &wrap.Foam
	if err := con.CheckInit(); err != nil {
		return nil, err
	}
	return con, nil
}

// CheckInit validates the fields the demo consumes directly. The
// scheduler and controller fields are validated again, with better
// context, when SchedulerConfig assembles them.
func (con *FoamConfig) CheckInit() error {
	if con.Particles <= 0 {
		return fmt.Errorf(
			"'Particles' must be positive, but is %d.", con.Particles,
		)
	}
	if con.Frames <= 0 {
		return fmt.Errorf("'Frames' must be positive, but is %d.", con.Frames)
	}
	if con.LogEvery <= 0 {
		return fmt.Errorf(
			"'LogEvery' must be positive, but is %d.", con.LogEvery,
		)
	}
	if con.HighCostMS < 0 || con.LowCostMS < 0 {
		return fmt.Errorf(
			"'HighCostMS' and 'LowCostMS' must be non-negative, "+
				"but are %g and %g.", con.HighCostMS, con.LowCostMS,
		)
	}
	return nil
}

// SchedulerConfig assembles and validates the sched.Config described by
// the file.
func (con *FoamConfig) SchedulerConfig() (sched.Config, error) {
	cfg := sched.Config{
		Cadence:      con.Cadence,
		KMin:         con.CadenceMin,
		KMax:         con.CadenceMax,
		GrowStep:     con.GrowStep,
		ShrinkStep:   con.ShrinkStep,
		HighCost:     time.Duration(con.HighCostMS * float64(time.Millisecond)),
		LowCost:      time.Duration(con.LowCostMS * float64(time.Millisecond)),
		RecycleEvery: con.RecycleEvery,
		MaxChunk:     con.MaxChunk,
		Params: control.Params{
			IQMin:      con.IQMin,
			IQMax:      con.IQMax,
			BetaGrow:   con.BetaGrow,
			BetaShrink: con.BetaShrink,
			DrCap:      con.DrCap,
			RMin:       con.RadiusMin,
			RMax:       con.RadiusMax,
		},
	}
	if err := cfg.Check(); err != nil {
		return sched.Config{}, err
	}
	return cfg, nil
}
