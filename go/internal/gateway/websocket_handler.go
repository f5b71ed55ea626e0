package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles websocket upgrade requests for countdown streams
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleCountdown streams the remaining seconds and the final outcome of
// one session.
func (h *WebSocketHandler) HandleCountdown(w http.ResponseWriter, r *http.Request) {
	competitionID, err := uuid.Parse(r.URL.Query().Get("competition_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "competition_id must be a uuid")
		return
	}
	identifier := models.CanonicalIdentifier(r.URL.Query().Get("identifier"))
	if identifier == "" {
		writeError(w, http.StatusBadRequest, "invalid_identifier", contesterr.ErrInvalidIdentifier.Error())
		return
	}
	key := models.SessionKey{Identifier: identifier, CompetitionID: competitionID}

	if err := h.connectionManager.UpgradeConnection(w, r, key); err != nil {
		code, status := contesterr.Code(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("session", key.String()).Msg("failed to open countdown stream")
		}
		writeError(w, status, code, err.Error())
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	connections, sessions := h.connectionManager.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"total_connections": connections,
		"active_sessions":   sessions,
	})
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/countdown", h.HandleCountdown)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
