package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

const maxRoomLength = 128

// WebSocketHandler handles WebSocket upgrade requests for timer connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleTimerConnection joins a client to the countdown of the room named by the
// room query parameter, or the shared default room
func (h *WebSocketHandler) HandleTimerConnection(w http.ResponseWriter, r *http.Request) {
	room := countdown.NormalizeRoom(r.URL.Query().Get("room"))
	if len(room) > maxRoomLength {
		http.Error(w, "room is too long", http.StatusBadRequest)
		return
	}

	// The upgrader has already written an HTTP error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, room); err != nil {
		log.Error().
			Err(err).
			Str("room", room).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/timer", h.HandleTimerConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	// Clients that connect to the bare host land on the timer socket
	mux.HandleFunc("GET /{$}", h.HandleTimerConnection)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
