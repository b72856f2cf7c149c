package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zengrid-dev/zengrid/pkg/store"
)

var (
	// ErrDuplicateNamespace is returned by Register for a namespace
	// already taken.
	ErrDuplicateNamespace = errors.New("zengrid: api namespace already registered")

	// ErrUnknownLegacy is returned by CallLegacy for a flat-name method
	// that was never registered. Soft-dependency callers test with
	// errors.Is and skip the call when the owning plugin is absent.
	ErrUnknownLegacy = errors.New("zengrid: unknown legacy method")

	// ErrDuplicateLegacy is returned by OnLegacy for an already-claimed
	// flat name.
	ErrDuplicateLegacy = errors.New("zengrid: legacy method already registered")
)

// LegacyFunc is a flat-name compatibility method.
type LegacyFunc func(args ...any) (any, error)

// API is the namespaced method registry plugins publish their public
// surface through, plus proxies to the store's actions and an event bus
// for UI-facing notifications.
type API struct {
	st  *store.Store
	bus *EventBus

	mu         sync.Mutex
	namespaces map[string]map[string]any
	legacy     map[string]LegacyFunc
}

func newAPI(st *store.Store) *API {
	return &API{
		st:         st,
		bus:        NewEventBus(),
		namespaces: make(map[string]map[string]any),
		legacy:     make(map[string]LegacyFunc),
	}
}

// Register exposes a plugin's public methods under a namespace. The
// method values are arbitrary functions; callers retrieve and assert
// them via Method. Fails on a duplicate namespace.
func (a *API) Register(namespace string, methods map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.namespaces[namespace]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNamespace, namespace)
	}
	copied := make(map[string]any, len(methods))
	for name, fn := range methods {
		copied[name] = fn
	}
	a.namespaces[namespace] = copied
	return nil
}

// Method returns a registered method, or nil when the namespace or
// method does not exist.
func (a *API) Method(namespace, method string) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	ns := a.namespaces[namespace]
	if ns == nil {
		return nil
	}
	return ns[method]
}

// Namespaces lists the registered namespaces, sorted.
func (a *API) Namespaces() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.namespaces))
	for ns := range a.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Exec proxies to the store's action executor.
func (a *API) Exec(name string, args ...any) (any, error) {
	return a.st.Exec(name, args...)
}

// FireEvent publishes an event to the bus UI listeners subscribe to.
func (a *API) FireEvent(event string, payload any) {
	a.bus.Fire(event, payload)
}

// Events returns the API's event bus.
func (a *API) Events() *EventBus {
	return a.bus
}

// OnLegacy registers a flat-name compatibility method. Fails on a
// duplicate name.
func (a *API) OnLegacy(name string, fn LegacyFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.legacy[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateLegacy, name)
	}
	a.legacy[name] = fn
	return nil
}

// CallLegacy invokes a flat-name method. Fails with ErrUnknownLegacy
// when it was never registered.
func (a *API) CallLegacy(name string, args ...any) (any, error) {
	a.mu.Lock()
	fn := a.legacy[name]
	a.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLegacy, name)
	}
	return fn(args...)
}
