package handler

import (
	"net/http"
	"time"

	"rollio/internal/model"
)

// RoomStats is the slice of the registry the health endpoint needs.
type RoomStats interface {
	Stats() (activeRooms, totalPlayers int)
}

// HealthHandler serves the stateless status probe.
type HealthHandler struct {
	rooms       RoomStats
	environment string
	startedAt   time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(rooms RoomStats, environment string) *HealthHandler {
	return &HealthHandler{
		rooms:       rooms,
		environment: environment,
		startedAt:   time.Now(),
	}
}

// Get handles GET /health.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	activeRooms, totalPlayers := h.rooms.Stats()
	writeJSON(w, http.StatusOK, model.HealthInfo{
		Status:        "ok",
		Message:       "Rollio backend is running",
		Timestamp:     time.Now(),
		Environment:   h.environment,
		ActiveRooms:   activeRooms,
		TotalPlayers:  totalPlayers,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	})
}
