/*Package worker runs geometry measurements off the simulation tick path.

A Worker owns a single background goroutine and a one-slot mailbox in
each direction: at most one job is ever queued or executing, submission
never blocks, and completion is observed only by non-blocking polling.*/
package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/phil-mansfield/gofoam/geom"
)

// DefaultMaxChunk is the largest particle count handed to the engine in
// one call. Larger snapshots are split into contiguous chunks of at most
// this size.
const DefaultMaxChunk = 512

// Engine computes the power cells of a weighted point set on the
// periodic unit box. It receives owned buffers: neither slice is read or
// written by the caller while Compute runs, and Compute must not retain
// them after returning.
//
// When the input is chunked, each chunk is computed as if it were an
// isolated population. Engines whose output near a chunk boundary
// depends on points outside the chunk violate this contract.
type Engine interface {
	Compute(points []geom.Vec, weights []float64) (*geom.Sample, error)
}

// Result is the terminal outcome of one job. Exactly one of Sample and
// Err is meaningful.
type Result struct {
	// ID identifies the job this result belongs to.
	ID uuid.UUID

	// Sample is the measurement, in the submission's particle order.
	Sample *geom.Sample

	// Elapsed is the wall-clock cost of the whole job, chunking
	// included.
	Elapsed time.Duration

	// Err is non-nil if the engine failed on any chunk.
	Err error
}

type job struct {
	id   uuid.UUID
	snap *geom.Snapshot
}

// Worker executes at most one measurement job at a time on a private
// goroutine.
type Worker struct {
	engine   Engine
	maxChunk int

	// busy is set by Submit and cleared by the Poll that consumes the
	// result, so the full queued-or-executing window rejects new jobs.
	busy atomic.Bool

	jobs    chan job
	results chan Result
}

// New starts a worker over the given engine. maxChunk <= 0 selects
// DefaultMaxChunk. Call Close when done with it.
func New(engine Engine, maxChunk int) *Worker {
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunk
	}
	w := &Worker{
		engine:   engine,
		maxChunk: maxChunk,
		jobs:     make(chan job, 1),
		results:  make(chan Result, 1),
	}
	go w.loop()
	return w
}

// Submit offers a snapshot for measurement. It returns true if the job
// was accepted and false if a job is already queued or executing. It
// never blocks.
func (w *Worker) Submit(snap *geom.Snapshot) bool {
	if !w.busy.CompareAndSwap(false, true) {
		return false
	}
	w.jobs <- job{id: uuid.New(), snap: snap}
	return true
}

// Poll returns the pending job's result if it has finished. ok is false
// while no result is ready. A result is delivered exactly once; after
// delivery the worker accepts a new Submit.
func (w *Worker) Poll() (res Result, ok bool) {
	select {
	case res = <-w.results:
		w.busy.Store(false)
		return res, true
	default:
		return Result{}, false
	}
}

// Busy reports whether a job is queued or executing whose result has not
// been consumed yet.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Close stops the background goroutine. A job already executing runs to
// completion; its result is discarded. Submit must not be called after
// Close.
func (w *Worker) Close() {
	close(w.jobs)
}

func (w *Worker) loop() {
	for j := range w.jobs {
		start := time.Now()
		sm, err := w.compute(j.snap)
		w.results <- Result{
			ID:      j.id,
			Sample:  sm,
			Elapsed: time.Since(start),
			Err:     err,
		}
	}
}

// compute runs the engine over the snapshot, chunking when it exceeds
// maxChunk. Chunk outputs are concatenated in the snapshot's particle
// order, so the reassembled sample is indexed exactly like an unchunked
// call's.
func (w *Worker) compute(snap *geom.Snapshot) (*geom.Sample, error) {
	n := snap.Len()
	if n <= w.maxChunk {
		sm, err := w.engine.Compute(snap.Positions, snap.Weights())
		if err != nil {
			return nil, err
		}
		if err := sm.Check(n); err != nil {
			return nil, fmt.Errorf("engine output: %v", err)
		}
		return sm, nil
	}

	full := geom.NewSample(n)
	for i := 0; i < n; i += w.maxChunk {
		j := i + w.maxChunk
		if j > n {
			j = n
		}

		// Each chunk gets owned buffers so the engine never holds a
		// view into the parent snapshot.
		chunk := snap.Slice(i, j)
		sm, err := w.engine.Compute(chunk.Positions, chunk.Weights())
		if err != nil {
			return nil, fmt.Errorf("chunk [%d, %d): %v", i, j, err)
		}
		if err := sm.Check(j - i); err != nil {
			return nil, fmt.Errorf("chunk [%d, %d) output: %v", i, j, err)
		}
		full.Append(sm)
	}
	return full, nil
}
