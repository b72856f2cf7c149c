package store

import (
	"sync"
	"time"
)

// TraceEventType classifies entries in the trace ring.
type TraceEventType string

const (
	TraceSignalWrite TraceEventType = "signal-write"
	TraceComputedRun TraceEventType = "computed-run"
	TraceEffectRun   TraceEventType = "effect-run"
	TraceActionExec  TraceEventType = "action-exec"
)

// TraceEvent is one entry in the debug ring buffer.
type TraceEvent struct {
	// TraceID groups events triggered by the same top-level action or
	// batch. Zero means the event happened outside any traced scope.
	TraceID   uint64         `json:"traceId"`
	Timestamp time.Time      `json:"timestamp"`
	Type      TraceEventType `json:"type"`
	Name      string         `json:"name"`
	OldValue  any            `json:"oldValue,omitempty"`
	NewValue  any            `json:"newValue,omitempty"`
	// Trigger names what caused this event, e.g. the parent action of a
	// nested Exec.
	Trigger string `json:"trigger,omitempty"`
}

// traceCapacity is the fixed size of the ring buffer.
const traceCapacity = 1000

// TraceRing is an append-only ring buffer of the most recent trace
// events. It is per-store; a fresh store starts with an empty ring.
type TraceRing struct {
	mu    sync.Mutex
	buf   []TraceEvent
	next  int
	count int

	subs    map[uint64]func(TraceEvent)
	nextSub uint64
}

// NewTraceRing creates an empty ring.
func NewTraceRing() *TraceRing {
	return &TraceRing{
		buf:  make([]TraceEvent, traceCapacity),
		subs: make(map[uint64]func(TraceEvent)),
	}
}

// Append records an event, evicting the oldest once the ring is full,
// and forwards it to live subscribers.
func (r *TraceRing) Append(ev TraceEvent) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	subs := make([]func(TraceEvent), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Events returns a snapshot of the buffered events, oldest first.
func (r *TraceRing) Events() []TraceEvent {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TraceEvent, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// ByTraceID returns the buffered events carrying the given trace ID,
// oldest first.
func (r *TraceRing) ByTraceID(id uint64) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Events() {
		if ev.TraceID == id {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe registers fn to receive every appended event. The returned
// function removes the subscription.
func (r *TraceRing) Subscribe(fn func(TraceEvent)) (off func()) {
	if r == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Reset drops all buffered events.
func (r *TraceRing) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.next = 0
	r.count = 0
	r.mu.Unlock()
}
