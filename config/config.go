// Package config loads the ambient configuration every ticketing
// component needs, into envdecode-tagged structs decoded from the
// environment after an optional godotenv .env load.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/rakhimjonshokirov/eventkit/eventbus/rabbitbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore/pg"
)

// LogConfig controls the zap logger construction.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=console"` // "console" or "json"
}

// HTTPConfig controls the demo API server.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR,default=:8080"`
}

// ShutdownConfig controls the HTTP server's graceful-shutdown deadline.
type ShutdownConfig struct {
	DrainTimeoutSeconds int `env:"SHUTDOWN_DRAIN_TIMEOUT_SECONDS,default=10"`
}

// Config is the top-level configuration for the ticketing reference
// application's daemon (cmd/ticketingd).
type Config struct {
	Log      LogConfig
	HTTP     HTTPConfig
	Shutdown ShutdownConfig
	Postgres pg.Config
	Rabbit   rabbitbus.Config
}

// Load reads a .env file if present (ignored when absent, a local-dev
// convenience) then decodes environment variables into a Config with its
// defaults pre-applied by the env tags.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}
	return cfg, nil
}
