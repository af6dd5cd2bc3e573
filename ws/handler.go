package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/duelward/dueling-companion/duel"
)

const actionTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are browser apps on arbitrary origins; auth is the
	// ownership predicate in the store, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Envelope is the inbound wire frame.
type Envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type response struct {
	Action  string      `json:"action"`
	For     string      `json:"for,omitempty"`
	Status  int         `json:"status"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Handler upgrades HTTP requests, registers the connection and pumps
// inbound action frames into the duel service.
type Handler struct {
	hub      *Hub
	svc      *duel.Service
	registry duel.Registry
}

func NewHandler(hub *Hub, svc *duel.Service, registry duel.Registry) *Handler {
	return &Handler{hub: hub, svc: svc, registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	connID := uuid.NewString()

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	err = h.registry.Register(ctx, connID)
	cancel()
	if err != nil {
		log.Printf("register connection %s: %v", connID, err)
		conn.Close()
		return
	}

	c := h.hub.add(connID, conn)
	c.send(response{Action: "connected", Status: http.StatusOK,
		Payload: map[string]string{"connectionId": connID}})

	h.readLoop(connID, c)

	h.hub.remove(connID)
	ctx, cancel = context.WithTimeout(context.Background(), actionTimeout)
	if err := h.registry.Unregister(ctx, connID); err != nil {
		log.Printf("unregister connection %s: %v", connID, err)
	}
	cancel()
	conn.Close()
}

func (h *Handler) readLoop(connID string, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("connection %s read: %v", connID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.send(response{Action: "response", Status: http.StatusBadRequest,
				Error: "malformed frame: " + err.Error()})
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		c.send(h.dispatch(ctx, connID, env))
		cancel()
	}
}

// dispatch routes one action frame. Each action is an independent unit
// of work; errors become the frame's response, never a dropped
// connection.
func (h *Handler) dispatch(ctx context.Context, connID string, env Envelope) response {
	var req struct {
		DuelID          string            `json:"duelId"`
		OldConnectionID string            `json:"oldConnectionId"`
		Update          *duel.StateUpdate `json:"update"`
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return response{Action: "response", For: env.Action,
				Status: http.StatusBadRequest, Error: "malformed payload: " + err.Error()}
		}
	}

	switch env.Action {
	case "addDuel":
		d, err := h.svc.Create(ctx, req.DuelID, connID)
		return result(env.Action, d, err)
	case "joinDuel":
		d, err := h.svc.Join(ctx, req.DuelID, connID)
		return result(env.Action, d, err)
	case "rejoinDuel":
		d, err := h.svc.Rejoin(ctx, req.DuelID, req.OldConnectionID, connID)
		return result(env.Action, d, err)
	case "updateDuel":
		if req.Update == nil {
			return response{Action: "response", For: env.Action,
				Status: http.StatusBadRequest, Error: "update is required"}
		}
		d, err := h.svc.Update(ctx, req.DuelID, connID, *req.Update)
		return result(env.Action, d, err)
	case "deleteDuel":
		err := h.svc.Delete(ctx, req.DuelID, connID)
		if err != nil {
			return result(env.Action, nil, err)
		}
		return response{Action: "response", For: env.Action, Status: http.StatusOK}
	case "getDuel":
		d, err := h.svc.Get(ctx, req.DuelID)
		return result(env.Action, d, err)
	default:
		return response{Action: "response", For: env.Action,
			Status: http.StatusBadRequest, Error: "unknown action " + env.Action}
	}
}

func result(action string, payload interface{}, err error) response {
	if err != nil {
		return response{Action: "response", For: action,
			Status: duel.HTTPStatus(err), Error: err.Error()}
	}
	return response{Action: "response", For: action,
		Status: http.StatusOK, Payload: payload}
}

func (c *client) send(r response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(r); err != nil {
		log.Printf("write response: %v", err)
	}
}
