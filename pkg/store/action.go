package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ActionFunc is a named operation handler. Handlers run synchronously on
// the caller and may write signals directly or Exec other actions; an
// action must not Exec itself.
type ActionFunc func(ctx context.Context, args ...any) (any, error)

// actionEntry records a registered action.
type actionEntry struct {
	name        string
	owner       string
	handler     ActionFunc
	invalidates []string
}

// ActionOption configures an action registration.
type ActionOption interface {
	applyAction(a *actionEntry)
}

type actionOptionFunc func(*actionEntry)

func (f actionOptionFunc) applyAction(a *actionEntry) { f(a) }

// Invalidates declares the keys an action is expected to rewrite. The
// metadata is informational: it shows up in DebugGraph consumers and
// devtools, nothing enforces it.
func Invalidates(keys ...string) ActionOption {
	return actionOptionFunc(func(a *actionEntry) {
		a.invalidates = append(a.invalidates, keys...)
	})
}

// Action registers a named operation under owner. It fails on a
// duplicate name.
func (st *Store) Action(name string, handler ActionFunc, owner string, opts ...ActionOption) error {
	entry := &actionEntry{
		name:    name,
		owner:   owner,
		handler: handler,
	}
	for _, opt := range opts {
		opt.applyAction(entry)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.actions[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, name)
	}
	st.actions[name] = entry
	oe := st.ownerFor(owner)
	oe.actions = append(oe.actions, name)
	return nil
}

// Exec invokes a registered action with a background context.
func (st *Store) Exec(name string, args ...any) (any, error) {
	return st.ExecContext(context.Background(), name, args...)
}

// ExecContext invokes a registered action. A second concurrent call to
// the same name fails with ErrReentrantAction; a different, nested
// action may run while another is in flight, which is how actions
// compose. A top-level Exec opens a trace scope: every signal write,
// computed run, and effect run it causes carries the same trace ID, and
// nested action events record their parent.
func (st *Store) ExecContext(ctx context.Context, name string, args ...any) (any, error) {
	st.mu.Lock()
	entry := st.actions[name]
	if entry == nil {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	if st.running[name] {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrReentrantAction, name)
	}
	st.running[name] = true
	parent := ""
	if n := len(st.actionStack); n > 0 {
		parent = st.actionStack[n-1]
	}
	st.actionStack = append(st.actionStack, name)
	topLevel := parent == "" && st.curTrace == 0
	if topLevel {
		st.curTrace = st.traceSeq.Add(1)
	}
	traceID := st.curTrace
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		delete(st.running, name)
		st.actionStack = st.actionStack[:len(st.actionStack)-1]
		if topLevel {
			// Trace scope closes with the top-level action.
			st.curTrace = 0
		}
		st.mu.Unlock()
	}()

	st.met.IncActionExec(name)
	ctx, span := st.tracer.Start(ctx, "store.exec",
		oteltrace.WithAttributes(attribute.String("action", name)))
	defer span.End()

	st.ring.Append(TraceEvent{
		TraceID:   traceID,
		Timestamp: time.Now(),
		Type:      TraceActionExec,
		Name:      name,
		Trigger:   parent,
	})

	result, err := entry.handler(ctx, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// ActionNames lists the registered action names.
func (st *Store) ActionNames() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	names := make([]string, 0, len(st.actions))
	for name := range st.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
