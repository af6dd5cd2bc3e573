// Package ws is the websocket transport edge: it owns the live
// connections, turns inbound {action, payload} frames into duel service
// calls, and exposes push delivery to the broadcaster.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duelward/dueling-companion/broadcast"
)

const writeWait = 10 * time.Second

// Hub maps connection ids to live websocket connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*client
}

// client serializes writes; gorilla connections allow only one
// concurrent writer.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewHub() *Hub {
	return &Hub{conns: make(map[string]*client)}
}

func (h *Hub) add(connID string, conn *websocket.Conn) *client {
	c := &client{conn: conn}
	h.mu.Lock()
	h.conns[connID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) remove(connID string) {
	h.mu.Lock()
	delete(h.conns, connID)
	h.mu.Unlock()
}

// Deliver pushes payload to one connection. A connection this hub no
// longer holds, or one whose write fails with a close, reports
// broadcast.ErrGone so the caller can prune the registry. A write
// deadline expiring means a slow peer, not a gone one: the failure is
// surfaced as-is and the connection is torn down, so the read loop's
// exit unregisters it through the normal disconnect path.
func (h *Hub) Deliver(_ context.Context, connID string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection %s on this node: %w", connID, broadcast.ErrGone)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.remove(connID)
		c.conn.Close()
		return deliverErr(connID, err)
	}
	return nil
}

// deliverErr classifies a failed write. Any write failure poisons a
// gorilla connection, so the conn is dropped either way; the
// distinction is whether the registry entry should be pruned now.
func deliverErr(connID string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("write to %s timed out: %w", connID, err)
	}
	return fmt.Errorf("write to %s failed: %v: %w", connID, err, broadcast.ErrGone)
}
