package reactive

import "sync/atomic"

// Listener is anything that can be notified when a dependency changes.
// Memos and effects implement it; the store's scheduler relies on it to
// learn which effects went dirty.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies changed.
	// For memos this invalidates the cached value; for effects it schedules
	// a re-run.
	MarkDirty()

	// ID returns a unique identifier for this listener, used for
	// deduplication during batch processing.
	ID() uint64
}

// Cleanup is a function returned by effects to release resources.
// It runs before the effect re-runs and when the effect is disposed.
type Cleanup func()

// Frame is one entry on the Engine's evaluation stack. While a memo or
// effect body runs, its frame sits on top of the stack; phase checks in
// the store consult the top frame to reject reads of later-phase cells.
type Frame struct {
	Name  string
	Phase int
}

// Engine holds the reactive state for one store instance.
type Engine struct {
	// listener is what currently tracks dependencies. Reading a cell
	// while non-nil subscribes it. nil means reads are untracked.
	listener Listener

	// frames is the live evaluation stack of memo/effect bodies.
	frames []Frame

	// batchDepth tracks nested Batch calls. While positive, signal
	// updates queue notifications instead of firing immediately.
	batchDepth int

	// pending accumulates listeners to notify when the outermost batch
	// completes. Deduplicated by ID before notification.
	pending []Listener

	ids atomic.Uint64
}

// NewEngine creates an isolated reactive engine.
func NewEngine() *Engine {
	return &Engine{}
}

// NextID returns the next unique ID for a primitive owned by this engine.
func (e *Engine) NextID() uint64 {
	return e.ids.Add(1)
}

// setListener swaps the current listener, returning the previous one so
// callers can restore it.
func (e *Engine) setListener(l Listener) Listener {
	old := e.listener
	e.listener = l
	return old
}

// WithListener runs fn with l installed for dependency tracking.
func (e *Engine) WithListener(l Listener, fn func()) {
	old := e.setListener(l)
	defer e.setListener(old)
	fn()
}

// Untracked runs fn without tracking signal reads as dependencies.
// For a single read, Signal.Peek is the clearer choice.
func (e *Engine) Untracked(fn func()) {
	old := e.setListener(nil)
	defer e.setListener(old)
	fn()
}

// PushFrame enters an evaluation frame. Paired with PopFrame.
func (e *Engine) PushFrame(f Frame) {
	e.frames = append(e.frames, f)
}

// PopFrame leaves the innermost evaluation frame.
func (e *Engine) PopFrame() {
	e.frames = e.frames[:len(e.frames)-1]
}

// CurrentFrame returns the innermost evaluation frame, if any. A false
// second return means evaluation is top-level and reads are unrestricted.
func (e *Engine) CurrentFrame() (Frame, bool) {
	if len(e.frames) == 0 {
		return Frame{}, false
	}
	return e.frames[len(e.frames)-1], true
}

// Batch groups multiple signal updates into a single notification phase.
// All updates inside fn are collected, deduplicated, and delivered once
// when the outermost batch completes. Batches nest.
func (e *Engine) Batch(fn func()) {
	e.batchDepth++
	defer func() {
		e.batchDepth--
		if e.batchDepth == 0 {
			e.processPending()
		}
	}()
	fn()
}

// inBatch reports whether a batch is currently open.
func (e *Engine) inBatch() bool {
	return e.batchDepth > 0
}

// queuePending records a listener to notify when the open batch ends.
func (e *Engine) queuePending(l Listener) {
	e.pending = append(e.pending, l)
}

// processPending deduplicates and notifies all queued listeners.
func (e *Engine) processPending() {
	updates := e.pending
	e.pending = nil
	if len(updates) == 0 {
		return
	}

	seen := make(map[uint64]bool, len(updates))
	for _, l := range updates {
		id := l.ID()
		if seen[id] {
			continue
		}
		seen[id] = true
		l.MarkDirty()
	}
}
