package reactive

import (
	"sync"
	"sync/atomic"
)

// Memo is a cached computation that automatically tracks its
// dependencies. When any dependency changes the memo is invalidated and
// recomputes lazily on the next read. Memos can themselves be subscribed
// to, so chains of derived values compose.
type Memo[T any] struct {
	base signalBase

	compute func() T

	value   T
	valueMu sync.RWMutex

	// valid is false when the cached value is out of date.
	valid atomic.Bool

	// sources are the cells this memo read during its last computation.
	sources   []*signalBase
	sourcesMu sync.Mutex

	equal func(T, T) bool

	// computing breaks infinite recursion on circular dependencies.
	computing atomic.Bool
}

// NewMemo creates a memo on the given engine. The computation does not
// run until the first Get.
func NewMemo[T any](eng *Engine, compute func() T) *Memo[T] {
	return &Memo[T]{
		base:    signalBase{eng: eng, id: eng.NextID()},
		compute: compute,
	}
}

// Get returns the memo's value, recomputing if necessary, and subscribes
// the current listener.
func (m *Memo[T]) Get() T {
	m.base.track()

	if !m.valid.Load() {
		m.recompute()
	}

	m.valueMu.RLock()
	value := m.value
	m.valueMu.RUnlock()
	return value
}

// Peek returns the value without subscribing. Still recomputes when the
// cached value is invalid.
func (m *Memo[T]) Peek() T {
	if !m.valid.Load() {
		m.recompute()
	}
	m.valueMu.RLock()
	value := m.value
	m.valueMu.RUnlock()
	return value
}

// MarkDirty invalidates the cached value and propagates to subscribers.
// Implements Listener.
func (m *Memo[T]) MarkDirty() {
	if m.valid.CompareAndSwap(true, false) {
		m.base.notifySubscribers()
	}
}

// ID returns the unique identifier for this memo. Implements Listener.
func (m *Memo[T]) ID() uint64 {
	return m.base.id
}

// addSource implements sourceTracker.
func (m *Memo[T]) addSource(source *signalBase) {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()
	for _, s := range m.sources {
		if s == source {
			return
		}
	}
	m.sources = append(m.sources, source)
}

// WithEquals configures a custom equality function and returns the memo.
func (m *Memo[T]) WithEquals(fn func(T, T) bool) *Memo[T] {
	m.equal = fn
	return m
}

// recompute runs the computation under tracking and refreshes the cache.
func (m *Memo[T]) recompute() {
	if m.computing.Swap(true) {
		// Circular dependency; leave the stale value in place.
		return
	}
	defer m.computing.Store(false)

	// Drop old subscriptions so only the cells the new run reads remain.
	m.sourcesMu.Lock()
	for _, source := range m.sources {
		source.unsubscribe(m)
	}
	m.sources = m.sources[:0]
	m.sourcesMu.Unlock()

	var newValue T
	m.base.eng.WithListener(m, func() {
		newValue = m.compute()
	})

	m.valueMu.Lock()
	m.value = newValue
	m.valueMu.Unlock()

	m.valid.Store(true)
}

// dispose detaches the memo from every source.
func (m *Memo[T]) dispose() {
	m.sourcesMu.Lock()
	for _, source := range m.sources {
		source.unsubscribe(m)
	}
	m.sources = nil
	m.sourcesMu.Unlock()
}

// Dispose detaches the memo from the graph. Reads afterwards return the
// last cached value without tracking updates.
func (m *Memo[T]) Dispose() {
	m.dispose()
}

var _ Listener = (*Memo[int])(nil)
