package model

import "time"

// HealthInfo is the payload of GET /health.
type HealthInfo struct {
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Environment   string    `json:"environment"`
	ActiveRooms   int       `json:"activeRooms"`
	TotalPlayers  int       `json:"totalPlayers"`
	UptimeSeconds float64   `json:"uptime"`
}
