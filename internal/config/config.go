package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration, loaded from environment variables.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"APP_ENV" envDefault:"development"`

	MongoURI  string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	RoomMaxPlayers  int           `env:"ROOM_MAX_PLAYERS" envDefault:"4"`
	LeaveGrace      time.Duration `env:"LEAVE_GRACE" envDefault:"30s"`
	AllowSpectators bool          `env:"ALLOW_SPECTATORS" envDefault:"false"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
