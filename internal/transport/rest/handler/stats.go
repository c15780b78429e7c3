package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"rollio/internal/model"
	"rollio/internal/service"
)

// GameFinisher applies the game-over determination to a live room.
type GameFinisher interface {
	FinishGame(code string) error
}

// StatsHandler handles game-completion reports and statistics reads.
type StatsHandler struct {
	statsSvc *service.StatsService
	rooms    GameFinisher
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsSvc *service.StatsService, rooms GameFinisher) *StatsHandler {
	return &StatsHandler{
		statsSvc: statsSvc,
		rooms:    rooms,
	}
}

// CompleteGameRequest is the request body for reporting a finished game.
type CompleteGameRequest struct {
	RoomCode string             `json:"roomCode"`
	Results  []model.GameResult `json:"results"`
}

// CompleteGame handles POST /api/games/complete. It transitions the room to
// finished and records every player's outcome.
func (h *StatsHandler) CompleteGame(w http.ResponseWriter, r *http.Request) {
	var req CompleteGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomCode == "" {
		writeError(w, http.StatusBadRequest, "roomCode is required")
		return
	}

	if err := h.rooms.FinishGame(req.RoomCode); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	if err := h.statsSvc.RecordCompletion(r.Context(), req.RoomCode, req.Results); err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// GetStats handles GET /api/stats/{username}.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	stats, err := h.statsSvc.PlayerStats(r.Context(), username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		// No recorded games yet; an empty record keeps clients simple.
		stats = &model.PlayerStatistics{Username: username}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// GetHistory handles GET /api/stats/{username}/history.
func (h *StatsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	games, err := h.statsSvc.History(r.Context(), username, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"games":   games,
	})
}

// Leaderboard handles GET /api/leaderboard.
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	top := 20
	if s := r.URL.Query().Get("top"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			top = n
		}
	}

	entries, err := h.statsSvc.Leaderboard(r.Context(), top)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}
