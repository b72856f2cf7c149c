// Package plugin hosts independently-authored grid plugins: registration
// with dependency checks, timed setup, ordered teardown, and a
// namespaced API registry through which plugins expose public methods to
// each other and to the embedding application.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/zengrid-dev/zengrid/internal/metrics"
	"github.com/zengrid-dev/zengrid/pkg/store"
)

var (
	// ErrDuplicatePlugin is returned by Use for an already-registered
	// plugin name.
	ErrDuplicatePlugin = errors.New("zengrid: plugin already registered")

	// ErrMissingDependency is returned by Use when a declared dependency
	// has not been registered yet.
	ErrMissingDependency = errors.New("zengrid: plugin dependency not registered")
)

// Plugin is one independently-registered unit of grid behavior. Setup is
// called exactly once and must register everything the plugin owns under
// its own name; the returned teardown (may be nil) runs during Destroy
// before the optional Dispose hook.
type Plugin struct {
	Name  string
	Phase int

	// Dependencies names plugins that must already be registered.
	// The check is existence-only, not a topological solver: callers
	// register plugins in dependency order themselves.
	Dependencies []string

	Setup   func(st *store.Store, api *API) (store.Disposable, error)
	Dispose func()
}

// registered is a plugin plus its host bookkeeping.
type registered struct {
	plugin   Plugin
	teardown store.Disposable
	setup    time.Duration
	seq      int
}

// Host owns the store, the API registry, and the plugin map.
type Host struct {
	st     *store.Store
	api    *API
	logger *slog.Logger
	met    *metrics.Metrics
	tracer oteltrace.Tracer

	mu      sync.Mutex
	plugins map[string]*registered
	seq     int
}

// HostOption configures a Host.
type HostOption interface {
	applyHost(h *Host)
}

type hostOptionFunc func(*Host)

func (f hostOptionFunc) applyHost(h *Host) { f(h) }

// WithLogger sets the host's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) HostOption {
	return hostOptionFunc(func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	})
}

// WithMetrics wires Prometheus collectors into the host.
func WithMetrics(m *metrics.Metrics) HostOption {
	return hostOptionFunc(func(h *Host) {
		h.met = m
	})
}

// NewHost creates a host around a store.
func NewHost(st *store.Store, opts ...HostOption) *Host {
	h := &Host{
		st:      st,
		logger:  slog.Default(),
		tracer:  otel.Tracer("zengrid/plugin"),
		plugins: make(map[string]*registered),
	}
	for _, opt := range opts {
		opt.applyHost(h)
	}
	h.logger = h.logger.With("component", "plugin-host")
	h.api = newAPI(st)
	return h
}

// Store returns the host's store.
func (h *Host) Store() *store.Store {
	return h.st
}

// API returns the host's method registry.
func (h *Host) API() *API {
	return h.api
}

// Use registers a plugin and runs its Setup. It fails on a duplicate
// name or a missing dependency; dependency validation is existence-only
// (see Plugin.Dependencies).
func (h *Host) Use(p Plugin) error {
	h.mu.Lock()
	if _, ok := h.plugins[p.Name]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicatePlugin, p.Name)
	}
	for _, dep := range p.Dependencies {
		if _, ok := h.plugins[dep]; !ok {
			h.mu.Unlock()
			return fmt.Errorf("%w: %q requires %q", ErrMissingDependency, p.Name, dep)
		}
	}
	h.seq++
	reg := &registered{plugin: p, seq: h.seq}
	h.plugins[p.Name] = reg
	h.mu.Unlock()

	_, span := h.tracer.Start(context.Background(), "plugin.setup",
		oteltrace.WithAttributes(attribute.String("plugin", p.Name)))
	defer span.End()

	start := time.Now()
	var teardown store.Disposable
	var err error
	if p.Setup != nil {
		teardown, err = p.Setup(h.st, h.api)
	}
	elapsed := time.Since(start)

	if err != nil {
		h.mu.Lock()
		delete(h.plugins, p.Name)
		h.mu.Unlock()
		span.RecordError(err)
		return fmt.Errorf("plugin %q setup: %w", p.Name, err)
	}

	h.mu.Lock()
	reg.teardown = teardown
	reg.setup = elapsed
	h.mu.Unlock()

	h.met.ObservePluginSetup(p.Name, elapsed)
	h.logger.Debug("plugin registered", "plugin", p.Name, "phase", p.Phase, "setup", elapsed)
	return nil
}

// Destroy tears every plugin down in phase-descending order (later
// pipeline stages first; registration order breaks ties, newest first).
// Each plugin's teardown and Dispose hook run with panics caught and
// logged so one failing plugin never blocks the rest. The store's
// DisposeAll runs after every plugin is handled, and the plugin map is
// cleared.
func (h *Host) Destroy() {
	h.mu.Lock()
	regs := make([]*registered, 0, len(h.plugins))
	for _, reg := range h.plugins {
		regs = append(regs, reg)
	}
	h.plugins = make(map[string]*registered)
	h.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool {
		if regs[i].plugin.Phase != regs[j].plugin.Phase {
			return regs[i].plugin.Phase > regs[j].plugin.Phase
		}
		return regs[i].seq > regs[j].seq
	})

	for _, reg := range regs {
		h.teardownPlugin(reg)
	}

	h.st.DisposeAll()
}

// teardownPlugin runs one plugin's teardown and dispose hook, isolating
// panics.
func (h *Host) teardownPlugin(reg *registered) {
	name := reg.plugin.Name
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("plugin teardown failed", "plugin", name, "panic", fmt.Sprint(r))
		}
	}()

	if reg.teardown != nil {
		reg.teardown()
	}
	if reg.plugin.Dispose != nil {
		reg.plugin.Dispose()
	}
	h.st.DisposePlugin(name)
}

// Has reports whether a plugin is registered.
func (h *Host) Has(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.plugins[name]
	return ok
}

// PluginNames returns the registered plugin names in registration order.
func (h *Host) PluginNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	regs := make([]*registered, 0, len(h.plugins))
	for _, reg := range h.plugins {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].seq < regs[j].seq })
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.plugin.Name
	}
	return names
}

// PluginsByPhase groups the registered plugin names by phase, names
// sorted within each phase.
func (h *Host) PluginsByPhase() map[int][]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[int][]string)
	for name, reg := range h.plugins {
		out[reg.plugin.Phase] = append(out[reg.plugin.Phase], name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

// SetupTimings returns each plugin's setup duration.
func (h *Host) SetupTimings() map[string]time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]time.Duration, len(h.plugins))
	for name, reg := range h.plugins {
		out[name] = reg.setup
	}
	return out
}
