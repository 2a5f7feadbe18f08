package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/prepaired/go/internal/countdown"
)

// StateHandler serves countdown state over REST
type StateHandler struct {
	stateProvider StateProvider
}

// TimerListResponse is the response for the timer list API
type TimerListResponse struct {
	Timers []countdown.Snapshot `json:"timers"`
	Count  int                  `json:"count"`
}

// NewStateHandler creates a new state handler
func NewStateHandler(stateProvider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: stateProvider,
	}
}

// RegisterStateRoutes registers the state REST routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/timers", h.HandleListTimers)
	mux.HandleFunc("GET /api/timers/{room}", h.HandleGetTimer)
}

// HandleListTimers returns the state of every known room
func (h *StateHandler) HandleListTimers(w http.ResponseWriter, r *http.Request) {
	snaps := h.stateProvider.Snapshots()
	writeJSON(w, http.StatusOK, TimerListResponse{Timers: snaps, Count: len(snaps)})
}

// HandleGetTimer returns the state of one room
func (h *StateHandler) HandleGetTimer(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")

	snap, ok := h.stateProvider.Snapshot(room)
	if !ok {
		log.Debug().Str("room", room).Msg("timer state requested for unknown room")
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
