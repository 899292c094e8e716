package sched

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/phil-mansfield/gofoam/control"
	"github.com/phil-mansfield/gofoam/geom"
	"github.com/phil-mansfield/gofoam/sim"
	"github.com/phil-mansfield/gofoam/worker"
)

// Scheduler coordinates the relaxation kernel, the geometry worker, and
// the controller. Drive it by calling Tick once per frame from a single
// goroutine; Tick never blocks.
//
// The scheduler is a two-state machine. While idle it counts down to the
// next measurement; once a snapshot is submitted it polls for the result
// each tick and refuses to submit again until that result is consumed,
// so at most one job is ever outstanding.
type Scheduler struct {
	cfg    Config
	sim    sim.Simulator
	engine worker.Engine
	w      *worker.Worker
	params control.Params

	frame     int64
	k         int
	countdown int
	awaiting  bool
	manual    bool

	resultsSeen int

	lastIQ      []float64
	iqMean      float64
	iqStd       float64
	lastElapsed time.Duration
	lastJob     uuid.UUID
}

// Stats is a point-in-time snapshot of the scheduler's observability
// counters, safe to hand to a UI.
type Stats struct {
	Frame       int64
	Cadence     int
	Pending     bool
	IQMean      float64
	IQStd       float64
	LastElapsed time.Duration
	LastJob     uuid.UUID
	ResultsSeen int
}

// New builds a scheduler over the given simulator and geometry engine.
func New(s sim.Simulator, engine worker.Engine, cfg Config) (*Scheduler, error) {
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("scheduler config: %v", err)
	}
	return &Scheduler{
		cfg:       cfg,
		sim:       s,
		engine:    engine,
		w:         worker.New(engine, cfg.MaxChunk),
		params:    cfg.Params,
		k:         cfg.Cadence,
		countdown: cfg.Cadence,
	}, nil
}

// Tick advances the loop by one frame: one relaxation step, then either
// result collection or job submission, never both. A non-nil error means
// the geometry engine failed on the outstanding job; the loop itself
// stays usable and will measure again on the next cadence expiry.
func (sc *Scheduler) Tick() error {
	defer func() { sc.frame++ }()

	// Relaxation runs every frame regardless of measurement outcome.
	sc.sim.RelaxStep()

	if sc.awaiting {
		return sc.collect()
	}

	sc.countdown--
	if sc.countdown > 0 {
		return nil
	}
	sc.submit()
	return nil
}

// collect polls the worker and, if the job finished, applies the
// controller and adapts the cadence. Nothing is submitted on a tick that
// consumed a result.
func (sc *Scheduler) collect() error {
	res, got := sc.w.Poll()
	if !got {
		return nil
	}

	// Either way the job is over; re-arm the countdown.
	sc.awaiting = false
	sc.countdown = sc.k

	if res.Err != nil {
		return fmt.Errorf("geometry job %s: %v", res.ID, res.Err)
	}

	radii := sc.sim.Radii()
	rNew, iq, err := control.Apply(radii, res.Sample, sc.params)
	if err != nil {
		return fmt.Errorf("geometry job %s: %v", res.ID, err)
	}
	sc.sim.SetRadii(rNew)

	sc.lastJob = res.ID
	sc.lastIQ = iq
	sc.iqMean = stat.Mean(iq, nil)
	sc.iqStd = stat.PopStdDev(iq, nil)
	sc.lastElapsed = res.Elapsed

	if !sc.manual {
		sc.adaptCadence(res.Elapsed)
	}
	sc.countdown = sc.k

	sc.resultsSeen++
	if sc.resultsSeen%sc.cfg.RecycleEvery == 0 {
		sc.w.Close()
		sc.w = worker.New(sc.engine, sc.cfg.MaxChunk)
	}
	return nil
}

// submit freezes the simulator just long enough to copy its state, then
// hands the sanitized snapshot to the worker.
func (sc *Scheduler) submit() {
	sc.sim.Freeze()
	snap := geom.NewSnapshot(sc.sim.Positions01(), sc.sim.Radii())
	sc.sim.Resume()

	if sc.w.Submit(snap) {
		sc.awaiting = true
		sc.countdown = sc.k
	}
	// A rejected submit leaves the countdown expired, so the next tick
	// retries. The FSM makes rejection unreachable, but a misbehaving
	// worker must not wedge the loop.
}

// adaptCadence trades measurement freshness against cost: expensive
// results space measurements out, cheap ones pull them closer. At most
// one adjustment per result.
func (sc *Scheduler) adaptCadence(elapsed time.Duration) {
	switch {
	case elapsed > sc.cfg.HighCost && sc.k < sc.cfg.KMax:
		sc.k += sc.cfg.GrowStep
		if sc.k > sc.cfg.KMax {
			sc.k = sc.cfg.KMax
		}
	case elapsed < sc.cfg.LowCost && sc.k > sc.cfg.KMin:
		sc.k -= sc.cfg.ShrinkStep
		if sc.k < sc.cfg.KMin {
			sc.k = sc.cfg.KMin
		}
	}
}

// SetCadence pins the cadence to k, clamped into [KMin, KMax], and
// suspends adaptation until ClearCadenceOverride.
func (sc *Scheduler) SetCadence(k int) {
	if k < sc.cfg.KMin {
		k = sc.cfg.KMin
	} else if k > sc.cfg.KMax {
		k = sc.cfg.KMax
	}
	sc.k = k
	sc.manual = true
}

// ClearCadenceOverride resumes cost-driven cadence adaptation.
func (sc *Scheduler) ClearCadenceOverride() {
	sc.manual = false
}

// Cadence returns the current cadence in ticks.
func (sc *Scheduler) Cadence() int { return sc.k }

// Pending reports whether a measurement job is outstanding.
func (sc *Scheduler) Pending() bool { return sc.awaiting }

// Params returns a copy of the controller tunables.
func (sc *Scheduler) Params() control.Params { return sc.params }

// SetIQBand forwards to control.Params.SetIQBand.
func (sc *Scheduler) SetIQBand(min, max float64) error {
	return sc.params.SetIQBand(min, max)
}

// SetBetaGrow forwards to control.Params.SetBetaGrow.
func (sc *Scheduler) SetBetaGrow(beta float64) error {
	return sc.params.SetBetaGrow(beta)
}

// SetBetaShrink forwards to control.Params.SetBetaShrink.
func (sc *Scheduler) SetBetaShrink(beta float64) error {
	return sc.params.SetBetaShrink(beta)
}

// LastIQ returns the most recent per-particle quality metric, or nil if
// no measurement has completed yet. The caller must treat it as
// read-only.
func (sc *Scheduler) LastIQ() []float64 { return sc.lastIQ }

// Stats returns the current observability counters.
func (sc *Scheduler) Stats() Stats {
	return Stats{
		Frame:       sc.frame,
		Cadence:     sc.k,
		Pending:     sc.awaiting,
		IQMean:      sc.iqMean,
		IQStd:       sc.iqStd,
		LastElapsed: sc.lastElapsed,
		LastJob:     sc.lastJob,
		ResultsSeen: sc.resultsSeen,
	}
}

// Close stops the background worker. The scheduler must not be ticked
// afterward.
func (sc *Scheduler) Close() {
	sc.w.Close()
}
