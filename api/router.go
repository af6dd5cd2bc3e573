package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/duelward/dueling-companion/duel"
)

// NewRouter creates and configures a new router with the REST endpoints
// and the websocket upgrade route.
func NewRouter(svc *duel.Service, wsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	r.Handle("/ws", wsHandler)

	r.HandleFunc("/duels/{duelId}", GetDuel(svc)).Methods("GET")
	r.HandleFunc("/duels/{duelId}/cards", UploadCard(svc)).Methods("POST", "OPTIONS")

	return r
}
