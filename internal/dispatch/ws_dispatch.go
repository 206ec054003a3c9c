package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-simulator/internal/models"
	"github.com/example/ride-simulator/internal/observability"
)

const writeWait = 5 * time.Second

// WSSession represents a connected ride observer
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(r models.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(r)
}

// WSHub holds observer sessions and broadcasts ride snapshots to them.
type WSHub struct {
	mu       sync.RWMutex
	sessions map[*WSSession]struct{}
	logger   *slog.Logger
}

func NewWSHub(logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHub{sessions: make(map[*WSSession]struct{}), logger: logger}
}

func (h *WSHub) Add(conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	observability.WSClients.Set(float64(n))
	return s
}

func (h *WSHub) Remove(s *WSSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
		observability.WSClients.Set(float64(n))
	}
}

func (h *WSHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *WSHub) Name() string { return "websocket" }

// Publish sends r to every session; sessions that fail are dropped.
func (h *WSHub) Publish(_ context.Context, r models.Ride) error {
	h.mu.RLock()
	sessions := make([]*WSSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		if err := s.Send(r); err != nil {
			h.logger.Debug("ws_send_failed", "err", err)
			h.Remove(s)
		}
	}
	return nil
}
