package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/zengrid-dev/zengrid/pkg/reactive"
)

// effectEntry tags a reactive effect with the metadata the scheduler
// sorts and traces by.
type effectEntry struct {
	name  string
	owner string
	phase int
	id    uint64
	eff   *reactive.Effect
}

// Effect creates a named self-re-running side effect at the given phase.
// The body runs once immediately, under tracking, with a (name, phase)
// frame on the evaluation stack. When a dependency changes, the effect
// is queued and re-run at the next flush, ordered by (phase asc, id
// asc). The body may return a cleanup that runs before the next re-run
// and on disposal.
//
// Panics inside the body (including phase violations) are caught and
// logged; they never block sibling effects.
func (st *Store) Effect(name string, fn func() reactive.Cleanup, owner string, phase int) error {
	if phase < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, name)
	}

	wrapped := func() (cleanup reactive.Cleanup) {
		defer func() {
			if r := recover(); r != nil {
				st.met.IncEffectError()
				st.logger.Error("effect body failed", "effect", name, "panic", fmt.Sprint(r))
			}
		}()
		st.eng.PushFrame(reactive.Frame{Name: name, Phase: phase})
		defer st.eng.PopFrame()

		st.ring.Append(TraceEvent{
			TraceID:   st.currentTraceID(),
			Timestamp: time.Now(),
			Type:      TraceEffectRun,
			Name:      name,
		})
		st.met.IncEffectRun()
		return fn()
	}

	st.mu.Lock()
	if _, ok := st.effects[name]; ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateEffect, name)
	}
	eff := reactive.NewDeferredEffect(st.eng, wrapped, st)
	entry := &effectEntry{
		name:  name,
		owner: owner,
		phase: phase,
		id:    eff.ID(),
		eff:   eff,
	}
	st.effects[name] = entry
	st.effectsByID[entry.id] = entry
	oe := st.ownerFor(owner)
	oe.effects = append(oe.effects, name)
	st.mu.Unlock()

	eff.Run()
	return nil
}

// ScheduleEffect implements reactive.Scheduler: a dirtied effect lands
// in the pending map, keyed by its ID, and a flush is scheduled on the
// dispatch loop when one is running. Headless callers drive flushes
// themselves via FlushEffects.
func (st *Store) ScheduleEffect(e *reactive.Effect) {
	st.mu.Lock()
	entry := st.effectsByID[e.ID()]
	st.mu.Unlock()
	if entry == nil {
		return
	}

	st.pendMu.Lock()
	st.pending[entry.id] = entry
	st.pendMu.Unlock()

	st.scheduleFlush()
}

// scheduleFlush queues one flush on the dispatch loop. Coalesced: while
// a flush is queued, further dirties ride along with it.
func (st *Store) scheduleFlush() {
	if !st.loopOn.Load() {
		return
	}
	if st.flushQueued.CompareAndSwap(false, true) {
		fn := func() {
			st.flushQueued.Store(false)
			st.FlushEffects()
		}
		if st.tryDispatch(fn) {
			return
		}
		// Queue full. Park the send so the flush still lands once the
		// loop drains a slot. A stopped loop releases the latch instead,
		// letting the next write requeue.
		st.mu.Lock()
		quit := st.loopQuit
		st.mu.Unlock()
		st.logger.Warn("dispatch queue full, flush waiting for a free slot")
		go func() {
			select {
			case st.dispatchCh <- fn:
			case <-quit:
				st.flushQueued.Store(false)
			}
		}()
	}
}

// FlushEffects synchronously runs every pending effect in (phase asc,
// id asc) order. Effects dirtied mid-flush are picked up by a follow-up
// pass after the current one finishes; the flush never re-enters
// itself. Use it directly in tests and headless setups where no
// dispatch loop drives the store.
func (st *Store) FlushEffects() {
	if st.flushing {
		return
	}
	st.flushing = true
	defer func() { st.flushing = false }()

	start := time.Now()
	for {
		st.pendMu.Lock()
		if len(st.pending) == 0 {
			st.pendMu.Unlock()
			break
		}
		entries := make([]*effectEntry, 0, len(st.pending))
		for _, en := range st.pending {
			entries = append(entries, en)
		}
		st.pending = make(map[uint64]*effectEntry)
		st.pendMu.Unlock()

		// Phase order is authoritative; IDs break ties deterministically.
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].phase != entries[j].phase {
				return entries[i].phase < entries[j].phase
			}
			return entries[i].id < entries[j].id
		})

		for _, en := range entries {
			if en.eff.Disposed() || !en.eff.Pending() {
				continue
			}
			en.eff.Run()
		}
	}
	st.met.ObserveFlush(time.Since(start))
}

// HasPendingEffects reports whether any effect awaits a flush.
func (st *Store) HasPendingEffects() bool {
	st.pendMu.Lock()
	defer st.pendMu.Unlock()
	return len(st.pending) > 0
}

// Dispatch queues fn on the store's event loop. Without a running loop
// the function executes inline on the caller.
func (st *Store) Dispatch(fn func()) {
	if !st.tryDispatch(fn) {
		st.logger.Warn("dispatch queue full, discarding callback")
	}
}

// tryDispatch reports whether fn was queued (or ran inline). A false
// return means the queue was full and fn was dropped; callers holding
// latches keyed to the queued work must release them.
func (st *Store) tryDispatch(fn func()) bool {
	if st.closed.Load() {
		return true
	}
	if !st.loopOn.Load() {
		fn()
		return true
	}
	select {
	case st.dispatchCh <- fn:
		return true
	default:
		return false
	}
}

// StartLoop starts the store's dispatch goroutine, the single thread of
// tracked evaluation for server-driven use. Scheduled flushes and async
// computed commits run on it. The returned stop function drains nothing
// and returns once the loop goroutine exits.
func (st *Store) StartLoop() (stop func()) {
	if st.loopOn.Swap(true) {
		return func() {}
	}

	done := make(chan struct{})
	quit := make(chan struct{})
	st.mu.Lock()
	st.loopQuit = quit
	st.mu.Unlock()
	go func() {
		defer close(done)
		for {
			select {
			case fn := <-st.dispatchCh:
				fn()
			case <-quit:
				return
			}
		}
	}()

	return func() {
		st.loopOn.Store(false)
		close(quit)
		<-done
	}
}
