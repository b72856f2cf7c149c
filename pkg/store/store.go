// Package store implements the named, owned, phase-tagged state facade
// the zengrid plugins program against: signals and computeds addressed
// by string key, named actions with a re-entrancy guard, a phase-ordered
// effect scheduler, async computeds with stale-while-revalidate
// semantics, and owner-scoped lifecycle teardown.
//
// Each Store owns a private reactive.Engine, so two stores never share
// tracker state. Tracked evaluation is confined to one goroutine at a
// time: either the caller (headless use, driven by FlushEffects) or the
// store's dispatch loop (see StartLoop).
package store

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/zengrid-dev/zengrid/internal/metrics"
	"github.com/zengrid-dev/zengrid/pkg/reactive"
)

// PhaseTerminal marks a computed that may read any pipeline stage
// regardless of the stage's own phase. It is the "infinity" phase; the
// pipeline registry's terminal view computeds use it.
const PhaseTerminal = math.MaxInt

// Disposable is an arbitrary teardown callback owned by a plugin.
type Disposable func()

type cellKind uint8

const (
	kindSignal cellKind = iota + 1
	kindComputed
)

// cell is one named, owned, phase-tagged primitive.
type cell struct {
	name      string
	owner     string
	phase     int
	kind      cellKind
	createdAt time.Time

	sig  *reactive.Signal[any] // kindSignal
	memo *reactive.Memo[any]   // kindComputed
}

func (c *cell) get() any {
	if c.kind == kindComputed {
		return c.memo.Get()
	}
	return c.sig.Get()
}

func (c *cell) peek() any {
	if c.kind == kindComputed {
		return c.memo.Peek()
	}
	return c.sig.Peek()
}

// ownerEntry tracks everything registered under one owner, the unit of
// bulk teardown.
type ownerEntry struct {
	cells       []string
	effects     []string
	actions     []string
	disposables []Disposable
}

// Store is the state facade plugins program against.
type Store struct {
	eng    *reactive.Engine
	logger *slog.Logger
	met    *metrics.Metrics
	tracer oteltrace.Tracer
	ring   *TraceRing

	mu          sync.Mutex
	cells       map[string]*cell
	phantoms    map[string]*reactive.Signal[any]
	owners      map[string]*ownerEntry
	effects     map[string]*effectEntry
	effectsByID map[uint64]*effectEntry
	actions     map[string]*actionEntry
	running     map[string]bool
	actionStack []string

	pendMu  sync.Mutex
	pending map[uint64]*effectEntry

	// flushing guards against reentrant flushes. Only touched on the
	// goroutine driving evaluation.
	flushing bool

	flushQueued atomic.Bool
	dispatchCh  chan func()
	loopOn      atomic.Bool
	loopQuit    chan struct{}
	closed      atomic.Bool

	traceSeq atomic.Uint64
	curTrace uint64
}

// Option configures a Store.
type Option interface {
	applyStore(st *Store)
}

type optionFunc func(*Store)

func (f optionFunc) applyStore(st *Store) { f(st) }

// WithLogger sets the store's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(st *Store) {
		if logger != nil {
			st.logger = logger
		}
	})
}

// WithMetrics wires Prometheus collectors into the store.
func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(st *Store) {
		st.met = m
	})
}

// WithoutTracing disables the debug trace ring buffer.
func WithoutTracing() Option {
	return optionFunc(func(st *Store) {
		st.ring = nil
	})
}

// New creates an empty store with its own reactive engine.
func New(opts ...Option) *Store {
	st := &Store{
		eng:         reactive.NewEngine(),
		logger:      slog.Default(),
		tracer:      otel.Tracer("zengrid/store"),
		ring:        NewTraceRing(),
		cells:       make(map[string]*cell),
		phantoms:    make(map[string]*reactive.Signal[any]),
		owners:      make(map[string]*ownerEntry),
		effects:     make(map[string]*effectEntry),
		effectsByID: make(map[uint64]*effectEntry),
		actions:     make(map[string]*actionEntry),
		running:     make(map[string]bool),
		pending:     make(map[uint64]*effectEntry),
		dispatchCh:  make(chan func(), 256),
	}
	for _, opt := range opts {
		opt.applyStore(st)
	}
	st.logger = st.logger.With("component", "store")
	return st
}

// Engine exposes the store's reactive engine for Batch/Untracked use.
func (st *Store) Engine() *reactive.Engine {
	return st.eng
}

// Trace returns the store's trace ring buffer, or nil when tracing is
// disabled.
func (st *Store) Trace() *TraceRing {
	return st.ring
}

// ownerFor returns (creating if needed) the entry for an owner.
// Caller holds st.mu.
func (st *Store) ownerFor(owner string) *ownerEntry {
	oe := st.owners[owner]
	if oe == nil {
		oe = &ownerEntry{}
		st.owners[owner] = oe
	}
	return oe
}

// phantomLocked returns (creating if needed) the placeholder signal for
// a key with no cell yet. Caller holds st.mu.
func (st *Store) phantomLocked(key string) *reactive.Signal[any] {
	ph := st.phantoms[key]
	if ph == nil {
		ph = reactive.NewSignal[any](st.eng, nil)
		st.phantoms[key] = ph
	}
	return ph
}

// Extend creates a writable signal at key. It fails if key already names
// a signal or computed. If consumers read key before it existed, the
// placeholder they subscribed to receives the initial value and retires,
// so those consumers recompute without re-registration.
func (st *Store) Extend(key string, initial any, owner string, phase int) error {
	if phase < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, key)
	}

	st.mu.Lock()
	if _, ok := st.cells[key]; ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	sig := st.phantoms[key]
	resolved := sig != nil
	if resolved {
		delete(st.phantoms, key)
	} else {
		sig = reactive.NewSignal[any](st.eng, initial)
	}

	c := &cell{
		name:      key,
		owner:     owner,
		phase:     phase,
		kind:      kindSignal,
		createdAt: time.Now(),
		sig:       sig,
	}
	st.cells[key] = c
	oe := st.ownerFor(owner)
	oe.cells = append(oe.cells, key)
	st.mu.Unlock()

	if resolved {
		// Push the real value through the retired placeholder so every
		// consumer that read the key early recomputes.
		sig.Set(initial)
	}
	return nil
}

// Computed creates a derived read-only cell at key. The function fn runs
// lazily under dependency tracking with a (key, phase) frame on the
// evaluation stack, so reads of later-phase cells inside it fail.
func (st *Store) Computed(key string, fn func() any, owner string, phase int) error {
	if phase < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, key)
	}

	compute := func() any {
		st.eng.PushFrame(reactive.Frame{Name: key, Phase: phase})
		defer st.eng.PopFrame()
		v := fn()
		st.ring.Append(TraceEvent{
			TraceID:   st.currentTraceID(),
			Timestamp: time.Now(),
			Type:      TraceComputedRun,
			Name:      key,
		})
		return v
	}

	st.mu.Lock()
	if _, ok := st.cells[key]; ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	memo := reactive.NewMemo[any](st.eng, compute)
	c := &cell{
		name:      key,
		owner:     owner,
		phase:     phase,
		kind:      kindComputed,
		createdAt: time.Now(),
		memo:      memo,
	}
	st.cells[key] = c
	oe := st.ownerFor(owner)
	oe.cells = append(oe.cells, key)
	ph := st.phantoms[key]
	if ph != nil {
		delete(st.phantoms, key)
	}
	st.mu.Unlock()

	if ph != nil {
		// Resolve the placeholder with the first computed value so early
		// consumers re-read through the new cell.
		ph.Set(memo.Peek())
	}
	return nil
}

// lookup returns the cell for key, or a (possibly fresh) placeholder
// when the key is undefined.
func (st *Store) lookup(key string) (*cell, *reactive.Signal[any]) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if c, ok := st.cells[key]; ok {
		return c, nil
	}
	return nil, st.phantomLocked(key)
}

// Get performs a phase-checked tracked read. Reading an undefined key
// returns the placeholder's value (nil) and subscribes to its
// resolution. A tracked read of a cell whose phase is greater than the
// current evaluation frame's phase panics with *PhaseViolationError; a
// top-level read performs no check.
func (st *Store) Get(key string) any {
	c, ph := st.lookup(key)
	if c == nil {
		return ph.Get()
	}
	if f, ok := st.eng.CurrentFrame(); ok && c.phase > f.Phase {
		panic(&PhaseViolationError{
			Reader:      f.Name,
			ReaderPhase: f.Phase,
			Key:         key,
			KeyPhase:    c.phase,
		})
	}
	return c.get()
}

// GetUnphased is Get without the phase check. The terminal pipeline
// computeds use it to deliberately look at later stages; it is also
// handy for diagnostics.
func (st *Store) GetUnphased(key string) any {
	c, ph := st.lookup(key)
	if c == nil {
		return ph.Get()
	}
	return c.get()
}

// Peek returns the current value of key without tracking, or nil for an
// undefined key.
func (st *Store) Peek(key string) any {
	st.mu.Lock()
	c := st.cells[key]
	st.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.peek()
}

// Set writes a signal directly. It fails if key does not name a writable
// signal.
func (st *Store) Set(key string, value any) error {
	st.mu.Lock()
	c := st.cells[key]
	st.mu.Unlock()
	if c == nil || c.kind != kindSignal {
		return fmt.Errorf("%w: %q", ErrNotWritable, key)
	}

	old := c.sig.Peek()
	c.sig.Set(value)
	st.ring.Append(TraceEvent{
		TraceID:   st.currentTraceID(),
		Timestamp: time.Now(),
		Type:      TraceSignalWrite,
		Name:      key,
		OldValue:  old,
		NewValue:  value,
	})
	return nil
}

// Update atomically rewrites a signal through fn.
func (st *Store) Update(key string, fn func(any) any) error {
	st.mu.Lock()
	c := st.cells[key]
	st.mu.Unlock()
	if c == nil || c.kind != kindSignal {
		return fmt.Errorf("%w: %q", ErrNotWritable, key)
	}

	old := c.sig.Peek()
	c.sig.Update(fn)
	st.ring.Append(TraceEvent{
		TraceID:   st.currentTraceID(),
		Timestamp: time.Now(),
		Type:      TraceSignalWrite,
		Name:      key,
		OldValue:  old,
		NewValue:  c.sig.Peek(),
	})
	return nil
}

// Batch groups several writes into one notification phase and one trace
// scope: effects dirtied inside run once at the next flush.
func (st *Store) Batch(fn func()) {
	st.mu.Lock()
	topLevel := st.curTrace == 0
	if topLevel {
		st.curTrace = st.traceSeq.Add(1)
	}
	st.mu.Unlock()

	if topLevel {
		defer func() {
			st.mu.Lock()
			st.curTrace = 0
			st.mu.Unlock()
		}()
	}

	st.eng.Batch(fn)
}

// currentTraceID returns the trace ID of the enclosing top-level action
// or batch, or zero.
func (st *Store) currentTraceID() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.curTrace
}

// AddDisposable registers an arbitrary teardown callback under owner.
// It runs during DisposePlugin and DisposeAll.
func (st *Store) AddDisposable(owner string, fn Disposable) {
	st.mu.Lock()
	oe := st.ownerFor(owner)
	oe.disposables = append(oe.disposables, fn)
	st.mu.Unlock()
}

// DisposePlugin removes every primitive, action, and disposable owned by
// owner. Disposed keys become undefined: a later read sees a fresh
// placeholder, never stale data.
func (st *Store) DisposePlugin(owner string) {
	st.mu.Lock()
	oe := st.owners[owner]
	if oe == nil {
		st.mu.Unlock()
		return
	}
	delete(st.owners, owner)

	disposedCells := make([]*cell, 0, len(oe.cells))
	for _, key := range oe.cells {
		if c := st.cells[key]; c != nil && c.owner == owner {
			disposedCells = append(disposedCells, c)
			delete(st.cells, key)
		}
	}
	disposedEffects := make([]*effectEntry, 0, len(oe.effects))
	for _, name := range oe.effects {
		if en := st.effects[name]; en != nil {
			disposedEffects = append(disposedEffects, en)
			delete(st.effects, name)
			delete(st.effectsByID, en.id)
		}
	}
	for _, name := range oe.actions {
		delete(st.actions, name)
	}
	st.mu.Unlock()

	for _, en := range disposedEffects {
		st.pendMu.Lock()
		delete(st.pending, en.id)
		st.pendMu.Unlock()
		en.eff.Dispose()
	}
	for _, c := range disposedCells {
		if c.kind == kindComputed {
			c.memo.Dispose()
		}
	}
	// Disposables run last, newest first.
	for i := len(oe.disposables) - 1; i >= 0; i-- {
		oe.disposables[i]()
	}
}

// DisposeAll tears down every owner and resets the store's registries
// and trace buffer. The store behaves like a freshly constructed one
// afterwards (reads see placeholders).
func (st *Store) DisposeAll() {
	st.mu.Lock()
	names := make([]string, 0, len(st.owners))
	for owner := range st.owners {
		names = append(names, owner)
	}
	st.mu.Unlock()
	sort.Strings(names)

	for _, owner := range names {
		st.DisposePlugin(owner)
	}

	st.mu.Lock()
	st.cells = make(map[string]*cell)
	st.phantoms = make(map[string]*reactive.Signal[any])
	st.effects = make(map[string]*effectEntry)
	st.effectsByID = make(map[uint64]*effectEntry)
	st.actions = make(map[string]*actionEntry)
	st.running = make(map[string]bool)
	st.mu.Unlock()

	st.pendMu.Lock()
	st.pending = make(map[uint64]*effectEntry)
	st.pendMu.Unlock()

	st.ring.Reset()
}

// Graph is a best-effort enumeration of the store's registered names.
// The underlying engine hides dependency edges, so this lists nodes
// only.
type Graph struct {
	Signals   []string `json:"signals"`
	Computeds []string `json:"computeds"`
	Effects   []string `json:"effects"`
	Actions   []string `json:"actions"`
	Phantoms  []string `json:"phantoms"`

	// Invalidates maps action names to their declared rewrite targets.
	// Actions without declarations are omitted.
	Invalidates map[string][]string `json:"invalidates,omitempty"`
}

// DebugGraph enumerates the store's current cells, effects, actions, and
// outstanding placeholders, sorted by name.
func (st *Store) DebugGraph() Graph {
	st.mu.Lock()
	defer st.mu.Unlock()

	var g Graph
	for key, c := range st.cells {
		if c.kind == kindComputed {
			g.Computeds = append(g.Computeds, key)
		} else {
			g.Signals = append(g.Signals, key)
		}
	}
	for name := range st.effects {
		g.Effects = append(g.Effects, name)
	}
	for name, a := range st.actions {
		g.Actions = append(g.Actions, name)
		if len(a.invalidates) > 0 {
			if g.Invalidates == nil {
				g.Invalidates = make(map[string][]string)
			}
			g.Invalidates[name] = append([]string(nil), a.invalidates...)
		}
	}
	for key := range st.phantoms {
		g.Phantoms = append(g.Phantoms, key)
	}
	sort.Strings(g.Signals)
	sort.Strings(g.Computeds)
	sort.Strings(g.Effects)
	sort.Strings(g.Actions)
	sort.Strings(g.Phantoms)
	return g
}
