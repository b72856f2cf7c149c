package reactive

import (
	"sync"
	"sync/atomic"
)

// Scheduler receives effects whose dependencies changed. The store's
// flush machinery implements it; effects never re-run themselves
// directly, they hand themselves to the scheduler.
type Scheduler interface {
	ScheduleEffect(e *Effect)
}

// Effect is a reactive side effect that re-runs when its dependencies
// change. The body runs once on creation under tracking; afterwards a
// dependency change marks the effect pending and passes it to the
// scheduler, which decides when Run happens again.
//
// The body may return a Cleanup which runs before the next re-run and on
// disposal.
type Effect struct {
	id uint64

	eng *Engine
	fn  func() Cleanup

	cleanup Cleanup

	sources   []*signalBase
	sourcesMu sync.Mutex

	sched Scheduler

	pending  atomic.Bool
	disposed atomic.Bool
}

// NewEffect creates an effect and runs its body immediately.
func NewEffect(eng *Engine, fn func() Cleanup, sched Scheduler) *Effect {
	e := NewDeferredEffect(eng, fn, sched)
	e.Run()
	return e
}

// NewDeferredEffect creates an effect without running it. The caller is
// expected to invoke Run once after finishing its own bookkeeping (the
// store registers the effect's ID first, so the scheduler can resolve
// it if the initial run dirties other effects).
func NewDeferredEffect(eng *Engine, fn func() Cleanup, sched Scheduler) *Effect {
	return &Effect{
		id:    eng.NextID(),
		eng:   eng,
		fn:    fn,
		sched: sched,
	}
}

// MarkDirty schedules the effect for a re-run. Implements Listener.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}
	// CAS so a burst of dependency changes schedules only once.
	if e.pending.CompareAndSwap(false, true) {
		if e.sched != nil {
			e.sched.ScheduleEffect(e)
		}
	}
}

// ID returns the unique identifier for this effect. Implements Listener.
func (e *Effect) ID() uint64 {
	return e.id
}

// Pending reports whether the effect is scheduled for a re-run.
func (e *Effect) Pending() bool {
	return e.pending.Load()
}

// Run executes the effect body under dependency tracking. The previous
// run's cleanup fires first and the source set is rebuilt from scratch.
func (e *Effect) Run() {
	if e.disposed.Load() {
		return
	}

	e.pending.Store(false)

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, source := range e.sources {
		source.unsubscribe(e)
	}
	e.sources = e.sources[:0]
	e.sourcesMu.Unlock()

	e.eng.WithListener(e, func() {
		e.cleanup = e.fn()
	})
}

// addSource implements sourceTracker.
func (e *Effect) addSource(source *signalBase) {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()
	for _, s := range e.sources {
		if s == source {
			return
		}
	}
	e.sources = append(e.sources, source)
}

// Dispose detaches the effect from all sources and runs its cleanup.
// A disposed effect never runs again, even if already scheduled.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, source := range e.sources {
		source.unsubscribe(e)
	}
	e.sources = nil
	e.sourcesMu.Unlock()
}

// Disposed reports whether Dispose was called.
func (e *Effect) Disposed() bool {
	return e.disposed.Load()
}

var _ Listener = (*Effect)(nil)
