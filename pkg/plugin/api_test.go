package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zengrid-dev/zengrid/pkg/store"
)

func newTestAPI() *API {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newAPI(store.New(store.WithLogger(logger)))
}

func TestAPIRegisterAndMethod(t *testing.T) {
	a := newTestAPI()

	err := a.Register("sort", map[string]any{
		"toggle": func(column string) string { return column },
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	fn, ok := a.Method("sort", "toggle").(func(string) string)
	if !ok {
		t.Fatal("expected method to be retrievable")
	}
	if fn("name") != "name" {
		t.Error("expected the registered function")
	}

	if a.Method("sort", "missing") != nil {
		t.Error("expected nil for unknown method")
	}
	if a.Method("missing", "toggle") != nil {
		t.Error("expected nil for unknown namespace")
	}
}

func TestAPIDuplicateNamespace(t *testing.T) {
	a := newTestAPI()

	if err := a.Register("ns", nil); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	err := a.Register("ns", nil)
	if !errors.Is(err, ErrDuplicateNamespace) {
		t.Errorf("expected ErrDuplicateNamespace, got %v", err)
	}
}

func TestAPINamespacesSorted(t *testing.T) {
	a := newTestAPI()

	_ = a.Register("rows", nil)
	_ = a.Register("filter", nil)

	got := a.Namespaces()
	if len(got) != 2 || got[0] != "filter" || got[1] != "rows" {
		t.Errorf("expected sorted [filter rows], got %v", got)
	}
}

func TestAPIExecProxiesActions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(store.WithLogger(logger))
	a := newAPI(st)

	_ = st.Action("echo", func(ctx context.Context, args ...any) (any, error) {
		return args[0], nil
	}, "t")

	result, err := a.Exec("echo", 42)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %v", result)
	}
}

func TestAPILegacyMethods(t *testing.T) {
	a := newTestAPI()

	if _, err := a.CallLegacy("setSort"); !errors.Is(err, ErrUnknownLegacy) {
		t.Errorf("expected ErrUnknownLegacy, got %v", err)
	}

	err := a.OnLegacy("setSort", func(args ...any) (any, error) {
		return args[0], nil
	})
	if err != nil {
		t.Fatalf("OnLegacy failed: %v", err)
	}

	result, err := a.CallLegacy("setSort", "name")
	if err != nil {
		t.Fatalf("CallLegacy failed: %v", err)
	}
	if result != "name" {
		t.Errorf("expected name, got %v", result)
	}

	err = a.OnLegacy("setSort", func(args ...any) (any, error) { return nil, nil })
	if !errors.Is(err, ErrDuplicateLegacy) {
		t.Errorf("expected ErrDuplicateLegacy, got %v", err)
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var got []any
	off := bus.On("rows:changed", func(payload any) {
		got = append(got, payload)
	})

	bus.Fire("rows:changed", 1)
	bus.Fire("other", 2)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected [1], got %v", got)
	}

	off()
	bus.Fire("rows:changed", 3)
	if len(got) != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %v", got)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()

	count := 0
	_ = bus.On("e", func(any) { count++ })
	_ = bus.On("e", func(any) { count++ })

	bus.Fire("e", nil)
	if count != 2 {
		t.Errorf("expected both subscribers notified, got %d", count)
	}
}
