package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/duelward/dueling-companion/duel"
)

// GetDuel is the read-only duel lookup for clients that only need to
// check a duel exists (e.g. before showing a join screen).
func GetDuel(svc *duel.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		duelID := mux.Vars(r)["duelId"]

		d, err := svc.Get(r.Context(), duelID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, d)
	}
}

type cardUploadRequest struct {
	PlayerID  string `json:"playerId"`
	CardSlot  string `json:"cardSlot"`
	CardImage struct {
		DataURL string `json:"dataUrl"`
		Format  string `json:"format"`
	} `json:"cardImage"`
}

// UploadCard stores a card image in the media store and commits the
// slot into the caller's side of the duel.
func UploadCard(svc *duel.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Uploads come straight from browser apps on other origins.
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		duelID := mux.Vars(r)["duelId"]

		var req cardUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
			return
		}
		format := req.CardImage.Format
		if format == "" {
			format = "png"
		}

		d, err := svc.UploadCard(r.Context(), duelID, req.PlayerID,
			req.CardSlot, format, []byte(req.CardImage.DataURL))
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, d)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := duel.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
