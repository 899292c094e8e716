package sched

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil-mansfield/gofoam/geom"
	"github.com/phil-mansfield/gofoam/worker"
)

// fakeSim records every interaction the scheduler has with the
// simulator.
type fakeSim struct {
	radii     []float64
	positions []geom.Vec

	relaxSteps     int
	frozen         bool
	freezes        int
	resumes        int
	setRadiiCalls  int
	frozenSnapshot bool // was the sim frozen when positions were read?
}

func newFakeSim(n int) *fakeSim {
	s := &fakeSim{
		radii:     make([]float64, n),
		positions: make([]geom.Vec, n),
	}
	for i := 0; i < n; i++ {
		x := float64(i) / float64(n)
		s.positions[i] = geom.Vec{x, geom.Wrap01(x * 2.7), geom.Wrap01(x * 5.3)}
		s.radii[i] = 0.02
	}
	return s
}

func (s *fakeSim) Positions01() []geom.Vec {
	s.frozenSnapshot = s.frozen
	out := make([]geom.Vec, len(s.positions))
	copy(out, s.positions)
	return out
}

func (s *fakeSim) Radii() []float64 {
	out := make([]float64, len(s.radii))
	copy(out, s.radii)
	return out
}

func (s *fakeSim) SetRadii(r []float64) {
	s.setRadiiCalls++
	copy(s.radii, r)
}

func (s *fakeSim) RelaxStep() {
	if !s.frozen {
		s.relaxSteps++
	}
}

func (s *fakeSim) Freeze() { s.frozen = true; s.freezes++ }
func (s *fakeSim) Resume() { s.frozen = false; s.resumes++ }

// countEngine returns a plausible measurement instantly and counts its
// calls.
type countEngine struct {
	calls atomic.Int32
}

func (e *countEngine) Compute(points []geom.Vec, weights []float64) (*geom.Sample, error) {
	e.calls.Add(1)
	sm := geom.NewSample(len(points))
	for i := range points {
		sm.Volume = append(sm.Volume, weights[i])
		sm.Area = append(sm.Area, 1)
		sm.Contacts = append(sm.Contacts, 6)
		sm.Flags = append(sm.Flags, geom.FlagOK)
	}
	return sm, nil
}

// gateEngine blocks inside Compute until released.
type gateEngine struct {
	inner   countEngine
	release chan struct{}
}

func (e *gateEngine) Compute(points []geom.Vec, weights []float64) (*geom.Sample, error) {
	<-e.release
	return e.inner.Compute(points, weights)
}

type failEngine struct {
	calls atomic.Int32
}

func (e *failEngine) Compute([]geom.Vec, []float64) (*geom.Sample, error) {
	e.calls.Add(1)
	return nil, fmt.Errorf("degenerate seed configuration")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Cadence = 2
	cfg.KMin = 1
	cfg.KMax = 96
	return cfg
}

// tickUntil drives the scheduler until cond holds, failing the test if
// it doesn't within the deadline or a tick errors.
func tickUntil(t *testing.T, sc *Scheduler, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		require.NoError(t, sc.Tick())
		time.Sleep(50 * time.Microsecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestRelaxRunsEveryTick(t *testing.T) {
	s := newFakeSim(16)
	sc, err := New(s, &countEngine{}, testConfig())
	require.NoError(t, err)
	defer sc.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, sc.Tick())
	}
	assert.Equal(t, 10, s.relaxSteps)
	assert.Equal(t, int64(10), sc.Stats().Frame)
}

func TestOneJobInFlight(t *testing.T) {
	s := newFakeSim(16)
	engine := &gateEngine{release: make(chan struct{})}
	sc, err := New(s, engine, testConfig())
	require.NoError(t, err)
	defer sc.Close()
	defer close(engine.release)

	// Many ticks with the engine wedged: exactly one job may be
	// submitted, and the loop keeps relaxing.
	for i := 0; i < 50; i++ {
		require.NoError(t, sc.Tick())
	}
	assert.True(t, sc.Pending())
	assert.Equal(t, 1, s.freezes, "exactly one snapshot taken")
	assert.Equal(t, 50, s.relaxSteps, "relaxation must not stall")
}

func TestSnapshotTakenUnderFreeze(t *testing.T) {
	s := newFakeSim(16)
	engine := &gateEngine{release: make(chan struct{})}
	sc, err := New(s, engine, testConfig())
	require.NoError(t, err)
	defer sc.Close()
	defer close(engine.release)

	tickUntil(t, sc, sc.Pending)
	assert.True(t, s.frozenSnapshot, "positions read while advecting")
	assert.False(t, s.frozen, "simulator left frozen after submit")
	assert.Equal(t, s.freezes, s.resumes)
}

func TestResultAppliedAndNoSameTickResubmit(t *testing.T) {
	s := newFakeSim(16)
	engine := &countEngine{}
	sc, err := New(s, engine, testConfig())
	require.NoError(t, err)
	defer sc.Close()

	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen == 1 })

	assert.Equal(t, 1, s.setRadiiCalls, "corrected radii written back once")
	assert.Equal(t, int32(1), engine.calls.Load(),
		"no new job on the tick that consumed a result")
	assert.False(t, sc.Pending())
	assert.Len(t, sc.LastIQ(), 16)

	// The next measurement fires after the cadence expires, not before.
	tickUntil(t, sc, func() bool { return engine.calls.Load() == 2 })
	assert.Equal(t, 2, s.freezes)
}

func TestRadiiStayInBounds(t *testing.T) {
	s := newFakeSim(16)
	cfg := testConfig()
	sc, err := New(s, &countEngine{}, cfg)
	require.NoError(t, err)
	defer sc.Close()

	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen == 3 })
	for i, r := range s.radii {
		assert.GreaterOrEqual(t, r, cfg.Params.RMin, "radius %d", i)
		assert.LessOrEqual(t, r, cfg.Params.RMax, "radius %d", i)
	}
}

func TestAdaptCadence(t *testing.T) {
	cfg := testConfig()
	cfg.Cadence = 24
	cfg.KMin = 16
	cfg.KMax = 96
	sc, err := New(newFakeSim(4), &countEngine{}, cfg)
	require.NoError(t, err)
	defer sc.Close()

	// Expensive results widen the cadence up to, and never past, KMax.
	for i := 0; i < 50; i++ {
		sc.adaptCadence(cfg.HighCost + time.Millisecond)
		assert.LessOrEqual(t, sc.Cadence(), cfg.KMax)
		assert.GreaterOrEqual(t, sc.Cadence(), cfg.KMin)
	}
	assert.Equal(t, cfg.KMax, sc.Cadence())

	// Cheap results tighten it down to, and never past, KMin.
	for i := 0; i < 50; i++ {
		sc.adaptCadence(cfg.LowCost - time.Millisecond)
		assert.LessOrEqual(t, sc.Cadence(), cfg.KMax)
		assert.GreaterOrEqual(t, sc.Cadence(), cfg.KMin)
	}
	assert.Equal(t, cfg.KMin, sc.Cadence())

	// Mid-range costs leave the cadence alone.
	sc.adaptCadence((cfg.LowCost + cfg.HighCost) / 2)
	assert.Equal(t, cfg.KMin, sc.Cadence())
}

func TestManualCadenceOverride(t *testing.T) {
	s := newFakeSim(8)
	cfg := testConfig()
	cfg.Cadence = 24
	cfg.KMin = 16
	cfg.KMax = 96
	sc, err := New(s, &countEngine{}, cfg)
	require.NoError(t, err)
	defer sc.Close()

	// Out-of-range pins clamp to the bounds.
	sc.SetCadence(10000)
	assert.Equal(t, cfg.KMax, sc.Cadence())
	sc.SetCadence(1)
	assert.Equal(t, cfg.KMin, sc.Cadence())

	// An instant engine result would normally shrink the cadence, but
	// the pin holds. (It's already at KMin, so pin it higher first.)
	sc.SetCadence(40)
	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen >= 1 })
	assert.Equal(t, 40, sc.Cadence(), "override must suspend adaptation")

	sc.ClearCadenceOverride()
	seen := sc.Stats().ResultsSeen
	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen > seen })
	assert.Equal(t, 40-cfg.ShrinkStep, sc.Cadence(),
		"adaptation must resume after the override clears")
}

func TestEngineFailureSurfacesAndLoopRecovers(t *testing.T) {
	s := newFakeSim(8)
	engine := &failEngine{}
	sc, err := New(s, engine, testConfig())
	require.NoError(t, err)
	defer sc.Close()

	var tickErr error
	deadline := time.Now().Add(5 * time.Second)
	for tickErr == nil && time.Now().Before(deadline) {
		tickErr = sc.Tick()
		time.Sleep(50 * time.Microsecond)
	}
	require.Error(t, tickErr, "engine failure must surface from Tick")
	assert.Contains(t, tickErr.Error(), "degenerate seed configuration")

	assert.False(t, sc.Pending(), "failed job must clear the in-flight state")
	assert.Equal(t, 0, s.setRadiiCalls, "failed measurement must not touch radii")

	// The loop is not wedged: it submits again on the next expiry.
	deadline = time.Now().Add(5 * time.Second)
	for engine.calls.Load() < 2 && time.Now().Before(deadline) {
		sc.Tick() // subsequent failures are expected
		time.Sleep(50 * time.Microsecond)
	}
	assert.GreaterOrEqual(t, engine.calls.Load(), int32(2))
}

func TestWorkerRecycling(t *testing.T) {
	s := newFakeSim(8)
	cfg := testConfig()
	cfg.RecycleEvery = 1 // rebuild the worker after every result
	sc, err := New(s, &countEngine{}, cfg)
	require.NoError(t, err)
	defer sc.Close()

	// Several full cycles across recycles prove the fresh workers are
	// wired correctly.
	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen == 3 })
	assert.Equal(t, 3, s.setRadiiCalls)
}

func TestParamsSetters(t *testing.T) {
	sc, err := New(newFakeSim(4), &countEngine{}, testConfig())
	require.NoError(t, err)
	defer sc.Close()

	require.NoError(t, sc.SetIQBand(0.6, 0.8))
	require.NoError(t, sc.SetBetaGrow(0.01))
	require.NoError(t, sc.SetBetaShrink(0.001))
	p := sc.Params()
	assert.Equal(t, 0.6, p.IQMin)
	assert.Equal(t, 0.8, p.IQMax)
	assert.Equal(t, 0.01, p.BetaGrow)
	assert.Equal(t, 0.001, p.BetaShrink)

	assert.Error(t, sc.SetIQBand(0.8, 0.6))
	assert.Equal(t, 0.6, sc.Params().IQMin, "rejected set must not mutate")
}

func TestConfigCheck(t *testing.T) {
	good := DefaultConfig()
	assert.NoError(t, good.Check())

	bad := DefaultConfig()
	bad.KMin = 0
	assert.Error(t, bad.Check())

	bad = DefaultConfig()
	bad.LowCost = bad.HighCost + time.Millisecond
	assert.Error(t, bad.Check())

	bad = DefaultConfig()
	bad.RecycleEvery = 0
	assert.Error(t, bad.Check())

	bad = DefaultConfig()
	bad.MaxChunk = -1
	assert.Error(t, bad.Check())

	bad = DefaultConfig()
	bad.Params.IQMin = 2
	assert.Error(t, bad.Check())

	_, err := New(newFakeSim(4), &countEngine{}, bad)
	assert.Error(t, err)
}

func TestLargePopulationUsesChunking(t *testing.T) {
	s := newFakeSim(1500)
	engine := &countEngine{}
	cfg := testConfig()
	cfg.MaxChunk = 1000
	sc, err := New(s, engine, cfg)
	require.NoError(t, err)
	defer sc.Close()

	tickUntil(t, sc, func() bool { return sc.Stats().ResultsSeen == 1 })
	assert.Equal(t, int32(2), engine.calls.Load(),
		"1500 particles must arrive as two engine calls")
	assert.Len(t, sc.LastIQ(), 1500)
}

var _ worker.Engine = (*countEngine)(nil)
