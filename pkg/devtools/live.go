package devtools

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zengrid-dev/zengrid/pkg/store"
)

// traceStream fans the trace ring's live feed out to WebSocket clients.
type traceStream struct {
	ring   *store.TraceRing
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	upgrader websocket.Upgrader
}

func newTraceStream(ring *store.TraceRing, logger *slog.Logger) *traceStream {
	return &traceStream{
		ring:    ring,
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // debug surface, local tooling only
			},
		},
	}
}

func (s *traceStream) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	off := s.ring.Subscribe(func(ev store.TraceEvent) {
		s.mu.Lock()
		alive := s.clients[conn]
		s.mu.Unlock()
		if !alive {
			return
		}
		if err := conn.WriteJSON(ev); err != nil {
			s.drop(conn)
		}
	})

	// Block until the client goes away; reads are discarded.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	off()
	s.drop(conn)
}

func (s *traceStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if s.clients[conn] {
		delete(s.clients, conn)
		conn.Close()
	}
	s.mu.Unlock()
}

func (s *traceStream) close() {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.mu.Unlock()
}
