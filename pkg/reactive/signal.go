package reactive

import (
	"reflect"
	"sync"
)

// sourceTracker is implemented by listeners (memos, effects) that keep a
// source list for resubscription bookkeeping. Signals call it when read.
type sourceTracker interface {
	addSource(source *signalBase)
}

// signalBase provides type-erased subscriber management, shared by
// Signal[T] and Memo[T].
type signalBase struct {
	eng *Engine
	id  uint64

	subs  []Listener
	subMu sync.RWMutex
}

// subscribe adds a listener, deduplicating by listener ID.
func (b *signalBase) subscribe(l Listener) {
	if l == nil {
		return
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()

	lid := l.ID()
	for _, existing := range b.subs {
		if existing.ID() == lid {
			return
		}
	}
	b.subs = append(b.subs, l)
}

// unsubscribe removes a listener by ID. Order is not preserved.
func (b *signalBase) unsubscribe(l Listener) {
	if l == nil {
		return
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()

	lid := l.ID()
	for i, existing := range b.subs {
		if existing.ID() == lid {
			b.subs[i] = b.subs[len(b.subs)-1]
			b.subs = b.subs[:len(b.subs)-1]
			return
		}
	}
}

// notifySubscribers tells every subscriber this cell changed. Copies the
// subscriber list before notifying so no lock is held during callbacks.
// Inside a batch the notifications are queued on the engine instead.
func (b *signalBase) notifySubscribers() {
	b.subMu.RLock()
	subs := make([]Listener, len(b.subs))
	copy(subs, b.subs)
	b.subMu.RUnlock()

	if b.eng.inBatch() {
		for _, sub := range subs {
			b.eng.queuePending(sub)
		}
		return
	}
	for _, sub := range subs {
		sub.MarkDirty()
	}
}

// track subscribes the engine's current listener, if any, and records
// this cell as one of its sources.
func (b *signalBase) track() {
	listener := b.eng.listener
	if listener == nil {
		return
	}
	b.subscribe(listener)
	if st, ok := listener.(sourceTracker); ok {
		st.addSource(b)
	}
}

// Signal is a reactive value container. Reading it during a tracked
// computation subscribes that computation to future changes.
type Signal[T any] struct {
	base signalBase

	value T
	mu    sync.RWMutex

	// equal overrides the change check. nil means defaultEquals.
	equal func(T, T) bool
}

// NewSignal creates a signal on the given engine with an initial value.
func NewSignal[T any](eng *Engine, initial T) *Signal[T] {
	return &Signal[T]{
		base:  signalBase{eng: eng, id: eng.NextID()},
		value: initial,
	}
}

// Get returns the current value and subscribes the current listener.
func (s *Signal[T]) Get() T {
	s.mu.RLock()
	value := s.value
	s.mu.RUnlock()

	// Track after releasing the value lock to avoid lock-order trouble
	// when the listener reads other cells.
	s.base.track()

	return value
}

// Peek returns the current value without subscribing.
func (s *Signal[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set updates the value and notifies subscribers if it changed.
func (s *Signal[T]) Set(value T) {
	s.mu.Lock()
	changed := !s.equals(s.value, value)
	if changed {
		s.value = value
	}
	s.mu.Unlock()

	if changed {
		s.base.notifySubscribers()
	}
}

// Update atomically reads and rewrites the value through fn.
func (s *Signal[T]) Update(fn func(T) T) {
	s.mu.Lock()
	oldValue := s.value
	newValue := fn(oldValue)
	changed := !s.equals(oldValue, newValue)
	if changed {
		s.value = newValue
	}
	s.mu.Unlock()

	if changed {
		s.base.notifySubscribers()
	}
}

// WithEquals configures a custom equality function and returns the signal.
func (s *Signal[T]) WithEquals(fn func(T, T) bool) *Signal[T] {
	s.equal = fn
	return s
}

// ID returns the unique identifier for this signal.
func (s *Signal[T]) ID() uint64 {
	return s.base.id
}

func (s *Signal[T]) equals(a, b T) bool {
	if s.equal != nil {
		return s.equal(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals uses == for the common scalar types and falls back to
// reflect.DeepEqual for slices, maps, and structs.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int64:
		return av == any(b).(int64)
	case uint64:
		return av == any(b).(uint64)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	case nil:
		return any(b) == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}
