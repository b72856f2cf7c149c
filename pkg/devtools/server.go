// Package devtools exposes the store's introspection surfaces over
// HTTP: the trace ring, the cell graph, plugin setup timings, the
// pipeline phase table, Prometheus metrics, and a live trace stream
// over WebSocket.
package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zengrid-dev/zengrid/pkg/pipeline"
	"github.com/zengrid-dev/zengrid/pkg/plugin"
)

// Server serves the debug endpoints for one plugin host.
type Server struct {
	host   *plugin.Host
	pipe   *pipeline.Registry
	logger *slog.Logger
	gather prometheus.Gatherer
	stream *traceStream
}

// Option configures a Server.
type Option interface {
	applyServer(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) applyServer(s *Server) { f(s) }

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(s *Server) {
		s.logger = l
	})
}

// WithGatherer sets the metrics source for GET /metrics. Without it the
// endpoint returns 404.
func WithGatherer(g prometheus.Gatherer) Option {
	return optionFunc(func(s *Server) {
		s.gather = g
	})
}

// NewServer builds a debug server over host and its pipeline registry.
func NewServer(host *plugin.Host, pipe *pipeline.Registry, opts ...Option) *Server {
	s := &Server{
		host:   host,
		pipe:   pipe,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt.applyServer(s)
	}
	s.stream = newTraceStream(host.Store().Trace(), s.logger)
	return s
}

// Handler returns the mounted route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/debug", func(r chi.Router) {
		r.Get("/traces", s.handleTraces)
		r.Get("/traces/{traceID}", s.handleTraceByID)
		r.Get("/graph", s.handleGraph)
		r.Get("/plugins", s.handlePlugins)
		r.Get("/pipeline", s.handlePipeline)
		r.Get("/live", s.stream.handleWebSocket)
	})
	if s.gather != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
	return r
}

// Close drops all live stream subscribers.
func (s *Server) Close() {
	s.stream.close()
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Store().Trace().Events())
}

func (s *Server) handleTraceByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "traceID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid trace id"})
		return
	}
	events := s.host.Store().Trace().ByTraceID(id)
	if len(events) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trace not found"})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.host.Store().DebugGraph())
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	timings := make(map[string]float64)
	for name, d := range s.host.SetupTimings() {
		timings[name] = d.Seconds()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plugins":      s.host.PluginNames(),
		"byPhase":      s.host.PluginsByPhase(),
		"setupSeconds": timings,
	})
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipe.Phases())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
