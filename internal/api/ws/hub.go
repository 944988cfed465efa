// Package ws pushes canvas updates to connected browsers. Each user may hold
// several connections (tabs); a layout fit for that user fans out to all of
// them.
package ws

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/branchcanvas/engine/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth happens via the bearer token before the upgrade; the origin list
	// is enforced by the CORS layer in front.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Event is one push message. Type is "canvas" for full-state refreshes.
type Event struct {
	Type     string `json:"type"`
	Revision uint64 `json:"revision"`
	Payload  any    `json:"payload,omitempty"`
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(ev)
}

// Hub tracks live connections per user.
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: map[uuid.UUID]map[*conn]struct{}{}}
}

// ServeUser upgrades the request and parks the connection until the client
// goes away. Incoming frames are drained and discarded; the socket is
// push-only.
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &conn{ws: sock}

	h.mu.Lock()
	if h.conns[userID] == nil {
		h.conns[userID] = map[*conn]struct{}{}
	}
	h.conns[userID][c] = struct{}{}
	h.mu.Unlock()

	logger.L().Debug("websocket connected", zap.String("user_id", userID.String()))

	defer func() {
		h.mu.Lock()
		delete(h.conns[userID], c)
		if len(h.conns[userID]) == 0 {
			delete(h.conns, userID)
		}
		h.mu.Unlock()
		_ = sock.Close()
	}()

	for {
		if _, _, err := sock.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends an event to every connection the user holds. Connections
// that fail to write are dropped on their own read loop's next cycle.
func (h *Hub) Broadcast(userID uuid.UUID, ev Event) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(ev); err != nil {
			logger.L().Debug("websocket write failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}
}
