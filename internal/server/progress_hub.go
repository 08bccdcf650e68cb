package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xear-health/docflow/internal/pipeline"
)

var websocketConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "docflow_websocket_connections",
		Help: "Number of active websocket progress subscribers",
	},
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The UI is served from a different origin in development.
		return true
	},
}

// ProgressHub fans pipeline progress events out to websocket subscribers.
// It implements pipeline.ProgressSink, so it plugs straight into the
// pipeline builder.
type ProgressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
	logger  *slog.Logger
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger *slog.Logger) *ProgressHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHub{
		clients: map[*websocket.Conn]struct{}{},
		logger:  logger,
	}
}

// Subscribe upgrades the request and keeps the connection registered until
// the peer disconnects.
func (h *ProgressHub) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	websocketConnections.Inc()
	h.logger.Debug("progress subscriber connected", "remote", r.RemoteAddr)

	// Drain reads so pings and close frames are processed; we never expect
	// payload from subscribers.
	go func() {
		defer func() {
			h.remove(conn)
			websocketConnections.Dec()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// OnStage implements pipeline.ProgressSink.
func (h *ProgressHub) OnStage(runID string, step, total int, state pipeline.State, message string) {
	h.broadcast(ProgressEvent{
		RunID:   runID,
		Step:    step,
		Total:   total,
		State:   string(state),
		Message: message,
		Time:    time.Now().UTC(),
	})
}

// OnFinished implements pipeline.ProgressSink.
func (h *ProgressHub) OnFinished(runID string, state pipeline.State, err error) {
	evt := ProgressEvent{
		RunID: runID,
		State: string(state),
		Final: true,
		Time:  time.Now().UTC(),
	}
	if err != nil {
		evt.Error = err.Error()
	}
	h.broadcast(evt)
}

func (h *ProgressHub) broadcast(evt ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(evt); err != nil {
			h.logger.Debug("dropping progress subscriber", "error", err)
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *ProgressHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}

// Close disconnects all subscribers. Used during server shutdown.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}
