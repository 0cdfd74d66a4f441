// Package config holds the core's tunables. The core itself never reads the
// environment (spec §6); only the host binary uses Load to populate a
// Config from the process environment before constructing the server.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is everything the Transport Endpoint and Simulation World need at
// construction time.
type Config struct {
	// BindAddr is the TCP address the HTTP server listens on.
	BindAddr string `env:"ARENA_BIND_ADDR" envDefault:"0.0.0.0:3000"`

	// UpgradePath is the HTTP path WebSocket upgrades are served from.
	UpgradePath string `env:"ARENA_WS_PATH" envDefault:"/ws"`

	// MetricsAddr is the address the /metrics handler listens on. Empty
	// disables the metrics server.
	MetricsAddr string `env:"ARENA_METRICS_ADDR" envDefault:"0.0.0.0:9090"`

	// TickRate is the nominal simulation rate in Hz (spec §4.4: 30 Hz).
	TickRate int `env:"ARENA_TICK_RATE" envDefault:"30"`

	// CommandRateLimit caps, per connection, how many commands per second
	// may be enqueued onto the Command Bus before the reader starts
	// dropping them (spec §9's back-pressure note).
	CommandRateLimit float64 `env:"ARENA_COMMAND_RATE_LIMIT" envDefault:"60"`

	// CommandBurst is the token-bucket burst size paired with
	// CommandRateLimit.
	CommandBurst int `env:"ARENA_COMMAND_BURST" envDefault:"30"`

	// ShutdownGrace bounds how long the HTTP server waits for in-flight
	// upgrades to drain during graceful shutdown.
	ShutdownGrace time.Duration `env:"ARENA_SHUTDOWN_GRACE" envDefault:"5s"`
}

// TickPeriod converts TickRate into the per-tick sleep duration.
func (c Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// Load populates a Config from environment variables, falling back to the
// documented defaults for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
