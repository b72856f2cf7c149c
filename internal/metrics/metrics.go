// Package metrics holds the Prometheus collectors for the reactive core.
// All increment helpers are nil-receiver safe so instrumentation can be
// left unwired in tests and headless use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the engine's Prometheus collectors.
type Metrics struct {
	FlushesTotal       prometheus.Counter
	FlushDuration      prometheus.Histogram
	EffectRunsTotal    prometheus.Counter
	EffectErrorsTotal  prometheus.Counter
	ActionExecsTotal   *prometheus.CounterVec
	AsyncCommitsTotal  prometheus.Counter
	AsyncDiscardsTotal prometheus.Counter
	AsyncErrorsTotal   prometheus.Counter
	PluginSetupSeconds *prometheus.HistogramVec
}

// New registers the engine collectors with reg and returns them.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "zengrid"
	}
	factory := promauto.With(reg)

	return &Metrics{
		FlushesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_flushes_total",
			Help:      "Number of effect flush passes.",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "effect_flush_duration_seconds",
			Help:      "Duration of effect flush passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		EffectRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_runs_total",
			Help:      "Number of effect body executions.",
		}),
		EffectErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effect_errors_total",
			Help:      "Number of effect bodies that panicked and were caught.",
		}),
		ActionExecsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_execs_total",
			Help:      "Number of action executions by action name.",
		}, []string{"action"}),
		AsyncCommitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_commits_total",
			Help:      "Number of async computed results committed.",
		}),
		AsyncDiscardsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_discards_total",
			Help:      "Number of async computed results discarded as superseded or disposed.",
		}),
		AsyncErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_errors_total",
			Help:      "Number of async computed workers that returned an error.",
		}),
		PluginSetupSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plugin_setup_duration_seconds",
			Help:      "Duration of plugin setup calls by plugin name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"plugin"}),
	}
}

// ObserveFlush records one flush pass and its duration.
func (m *Metrics) ObserveFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.FlushesTotal.Inc()
	m.FlushDuration.Observe(d.Seconds())
}

// IncEffectRun records one effect body execution.
func (m *Metrics) IncEffectRun() {
	if m == nil {
		return
	}
	m.EffectRunsTotal.Inc()
}

// IncEffectError records one caught effect body panic.
func (m *Metrics) IncEffectError() {
	if m == nil {
		return
	}
	m.EffectErrorsTotal.Inc()
}

// IncActionExec records one action execution.
func (m *Metrics) IncActionExec(action string) {
	if m == nil {
		return
	}
	m.ActionExecsTotal.WithLabelValues(action).Inc()
}

// IncAsyncCommit records one committed async result.
func (m *Metrics) IncAsyncCommit() {
	if m == nil {
		return
	}
	m.AsyncCommitsTotal.Inc()
}

// IncAsyncDiscard records one discarded async result.
func (m *Metrics) IncAsyncDiscard() {
	if m == nil {
		return
	}
	m.AsyncDiscardsTotal.Inc()
}

// IncAsyncError records one async worker error.
func (m *Metrics) IncAsyncError() {
	if m == nil {
		return
	}
	m.AsyncErrorsTotal.Inc()
}

// ObservePluginSetup records a plugin setup duration.
func (m *Metrics) ObservePluginSetup(plugin string, d time.Duration) {
	if m == nil {
		return
	}
	m.PluginSetupSeconds.WithLabelValues(plugin).Observe(d.Seconds())
}
