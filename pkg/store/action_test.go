package store

import (
	"context"
	"errors"
	"testing"
)

func TestExecUnknownAction(t *testing.T) {
	st := newTestStore()

	_, err := st.Exec("nope")
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestActionDuplicateName(t *testing.T) {
	st := newTestStore()

	handler := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	if err := st.Action("do", handler, "a"); err != nil {
		t.Fatalf("Action failed: %v", err)
	}
	err := st.Action("do", handler, "b")
	if !errors.Is(err, ErrDuplicateAction) {
		t.Errorf("expected ErrDuplicateAction, got %v", err)
	}
}

func TestExecPassesArgsAndResult(t *testing.T) {
	st := newTestStore()

	_ = st.Action("add", func(ctx context.Context, args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	}, "a")

	result, err := st.Exec("add", 2, 3)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if result != 5 {
		t.Errorf("expected 5, got %v", result)
	}
}

func TestExecReentrancy(t *testing.T) {
	st := newTestStore()

	var selfErr error
	_ = st.Action("self", func(ctx context.Context, args ...any) (any, error) {
		_, selfErr = st.Exec("self")
		return nil, nil
	}, "a")

	if _, err := st.Exec("self"); err != nil {
		t.Fatalf("outer Exec failed: %v", err)
	}
	if !errors.Is(selfErr, ErrReentrantAction) {
		t.Errorf("expected ErrReentrantAction for self-call, got %v", selfErr)
	}
}

func TestExecNestedDifferentAction(t *testing.T) {
	st := newTestStore()
	_ = st.Extend("n", 0, "a", 0)

	_ = st.Action("inner", func(ctx context.Context, args ...any) (any, error) {
		return nil, st.Set("n", 1)
	}, "a")
	_ = st.Action("outer", func(ctx context.Context, args ...any) (any, error) {
		return st.Exec("inner")
	}, "a")

	if _, err := st.Exec("outer"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if v := st.Peek("n"); v != 1 {
		t.Errorf("expected nested action to run, got n=%v", v)
	}
}

func TestExecSequentialReuse(t *testing.T) {
	st := newTestStore()

	calls := 0
	_ = st.Action("do", func(ctx context.Context, args ...any) (any, error) {
		calls++
		return nil, nil
	}, "a")

	for i := 0; i < 3; i++ {
		if _, err := st.Exec("do"); err != nil {
			t.Fatalf("Exec %d failed: %v", i, err)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExecTraceScope(t *testing.T) {
	st := newTestStore()
	_ = st.Extend("n", 0, "a", 0)

	_ = st.Action("inner", func(ctx context.Context, args ...any) (any, error) {
		return nil, st.Set("n", 2)
	}, "a")
	_ = st.Action("outer", func(ctx context.Context, args ...any) (any, error) {
		if err := st.Set("n", 1); err != nil {
			return nil, err
		}
		return st.Exec("inner")
	}, "a")

	if _, err := st.Exec("outer"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	events := st.Trace().Events()
	if len(events) == 0 {
		t.Fatal("expected trace events")
	}
	// Everything caused by the top-level exec shares its trace ID.
	id := events[0].TraceID
	if id == 0 {
		t.Fatal("expected a non-zero trace ID")
	}
	var actions, writes int
	for _, ev := range events {
		if ev.TraceID != id {
			t.Errorf("expected every event in trace %d, got %+v", id, ev)
		}
		switch ev.Type {
		case TraceActionExec:
			actions++
			if ev.Name == "inner" && ev.Trigger != "outer" {
				t.Errorf("expected nested action to record its parent, got %q", ev.Trigger)
			}
		case TraceSignalWrite:
			writes++
		}
	}
	if actions != 2 {
		t.Errorf("expected 2 action events, got %d", actions)
	}
	if writes != 2 {
		t.Errorf("expected 2 write events, got %d", writes)
	}
}

func TestActionNames(t *testing.T) {
	st := newTestStore()

	handler := func(ctx context.Context, args ...any) (any, error) { return nil, nil }
	_ = st.Action("b", handler, "a")
	_ = st.Action("a", handler, "a")

	names := st.ActionNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected sorted [a b], got %v", names)
	}
}
