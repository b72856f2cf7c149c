package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/zengrid-dev/zengrid/pkg/reactive"
)

// AsyncStatusSuffix is appended to an async computed's key to form the
// key of its status signal.
const AsyncStatusSuffix = ".__async"

// AsyncState is the status of an async computed, published as an
// ordinary signal at key + AsyncStatusSuffix.
type AsyncState struct {
	// Pending is true while a recomputation is in flight (or waiting out
	// a debounce window).
	Pending bool `json:"pending"`
	// Stale is true when Pending and a previous value was already
	// committed: the readable value lags the inputs.
	Stale bool `json:"stale"`
	// Err is the last worker error. A failed run leaves the last good
	// value untouched.
	Err error `json:"error,omitempty"`
	// Version increments on every recomputation trigger. Only the result
	// matching the newest version is ever committed.
	Version uint64 `json:"version"`
}

// AsyncWorker is the second stage of an async computed: the actual
// computation, run off the tracked path, possibly on its own goroutine
// schedule.
type AsyncWorker func() (any, error)

// AsyncOption configures an async computed.
type AsyncOption interface {
	applyAsync(r *asyncRunner)
}

type asyncOptionFunc func(*asyncRunner)

func (f asyncOptionFunc) applyAsync(r *asyncRunner) { f(r) }

// WithDebounce delays the worker launch; a fresh trigger inside the
// window cancels the waiting one, so only the last scheduled worker in
// a burst actually runs.
func WithDebounce(d time.Duration) AsyncOption {
	return asyncOptionFunc(func(r *asyncRunner) {
		r.debounce = d
	})
}

// WithOnError installs a callback fired with each worker error, in
// addition to the error being stored in the status signal.
func WithOnError(fn func(error)) AsyncOption {
	return asyncOptionFunc(func(r *asyncRunner) {
		r.onError = fn
	})
}

// asyncRunner holds the version guard and debounce state of one async
// computed.
type asyncRunner struct {
	st  *Store
	key string

	debounce time.Duration
	onError  func(error)

	mu        sync.Mutex
	version   uint64
	committed bool
	disposed  bool
	timer     *time.Timer
}

// AsyncComputed creates a two-stage derived value at key. fn runs
// synchronously under tracking (stage one) and must return the worker
// performing the real computation (stage two, untracked, asynchronous).
// The latest committed result is published at key and the AsyncState at
// key + AsyncStatusSuffix, both as ordinary signals.
//
// Every stage-one re-run increments the version and marks the status
// pending (stale if a value was committed before). A worker result is
// discarded when a newer version has started or the store disposed the
// runner in the meantime; errors land in the status with the last good
// value preserved.
func (st *Store) AsyncComputed(key string, fn func() AsyncWorker, owner string, phase int, opts ...AsyncOption) error {
	if err := st.Extend(key, nil, owner, phase); err != nil {
		return err
	}
	statusKey := key + AsyncStatusSuffix
	if err := st.Extend(statusKey, AsyncState{}, owner, phase); err != nil {
		return err
	}

	r := &asyncRunner{st: st, key: key}
	for _, opt := range opts {
		opt.applyAsync(r)
	}

	effectName := key + ":async"
	err := st.Effect(effectName, func() reactive.Cleanup {
		worker := fn()
		r.trigger(worker)
		return nil
	}, owner, phase)
	if err != nil {
		return fmt.Errorf("async computed %q: %w", key, err)
	}

	st.AddDisposable(owner, r.dispose)
	return nil
}

// trigger starts (or debounces) a stage-two run for the current inputs.
func (r *asyncRunner) trigger(worker AsyncWorker) {
	if worker == nil {
		return
	}

	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.version++
	version := r.version
	stale := r.committed
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	debounce := r.debounce
	r.mu.Unlock()

	r.setStatus(AsyncState{Pending: true, Stale: stale, Version: version})

	if debounce > 0 {
		r.mu.Lock()
		r.timer = time.AfterFunc(debounce, func() {
			r.launch(version, worker)
		})
		r.mu.Unlock()
		return
	}
	r.launch(version, worker)
}

// launch runs the worker on its own goroutine and dispatches the commit
// back onto the store's loop.
func (r *asyncRunner) launch(version uint64, worker AsyncWorker) {
	go func() {
		result, err := worker()
		r.st.Dispatch(func() {
			r.commit(version, result, err)
		})
	}()
}

// commit applies a finished worker run, unless it was superseded or the
// runner was disposed while it ran.
func (r *asyncRunner) commit(version uint64, result any, err error) {
	r.mu.Lock()
	if r.disposed || version != r.version {
		r.mu.Unlock()
		r.st.met.IncAsyncDiscard()
		return
	}
	if err == nil {
		r.committed = true
	}
	r.mu.Unlock()

	if err != nil {
		cur, _ := r.st.Peek(r.key + AsyncStatusSuffix).(AsyncState)
		r.setStatus(AsyncState{Stale: cur.Stale, Err: err, Version: version})
		r.st.met.IncAsyncError()
		if r.onError != nil {
			r.onError(err)
		}
		return
	}

	if setErr := r.st.Set(r.key, result); setErr != nil {
		// The value signal is gone; the owner was disposed between the
		// version check and the write.
		return
	}
	r.setStatus(AsyncState{Version: version})
	r.st.met.IncAsyncCommit()
}

func (r *asyncRunner) setStatus(s AsyncState) {
	if err := r.st.Set(r.key+AsyncStatusSuffix, s); err != nil {
		r.st.logger.Debug("async status write skipped", "key", r.key, "err", err)
	}
}

// dispose cancels any waiting debounce timer and blocks late commits.
func (r *asyncRunner) dispose() {
	r.mu.Lock()
	r.disposed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
}
