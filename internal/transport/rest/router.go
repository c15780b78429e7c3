package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"rollio/internal/registry"
	"rollio/internal/service"
	"rollio/internal/transport/rest/handler"
	"rollio/internal/transport/ws"
)

// Container holds all dependencies for the router.
type Container struct {
	Registry     *registry.Registry
	StatsService *service.StatsService
	WSHandler    *ws.Handler
	Environment  string
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	healthHandler := handler.NewHealthHandler(c.Registry, c.Environment)
	statsHandler := handler.NewStatsHandler(c.StatsService, c.Registry)

	r.Use(corsMiddleware)

	// The game channel.
	r.HandleFunc("/ws", c.WSHandler.Serve).Methods("GET")

	// Liveness probe polled by clients.
	r.HandleFunc("/health", healthHandler.Get).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/games/complete", statsHandler.CompleteGame).Methods("POST", "OPTIONS")
	api.HandleFunc("/stats/{username}", statsHandler.GetStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/stats/{username}/history", statsHandler.GetHistory).Methods("GET", "OPTIONS")
	api.HandleFunc("/leaderboard", statsHandler.Leaderboard).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
