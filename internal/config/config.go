// Package config is the taskgraphd process profile: the runtime mode,
// listen address, storage driver, and the component tunables spec.md §6
// lists for the Event Bus, Security Service, Validation Service, and
// Memory Service.
package config

import (
	"fmt"
	"time"
)

// Mode selects the deployment posture.
type Mode string

const (
	ModeDev  Mode = "dev"
	ModeDemo Mode = "demo"
	ModeProd Mode = "prod"
)

// Config is the fully resolved process configuration, populated from
// flags and environment by cmd/taskgraphd's cobra/viper wiring.
type Config struct {
	Mode Mode
	Addr string
	Port int
	Data string

	Driver string // postgres | sqlite
	DSN    string

	// RedisURL, if set, backs the Event Bus and Task Queue with Redis
	// Streams/lists in DISTRIBUTED mode instead of the Postgres tables.
	RedisURL string

	Distributed     bool
	MaxEventHistory int
	MaxQueueSize    int
	MaxCredits      float64

	Security   SecurityConfig
	Validation ValidationConfig
	Memory     MemoryConfig

	Version string
}

// SecurityConfig mirrors spec.md §6's security.* keys.
type SecurityConfig struct {
	MaxRequestsPerHour int
	ThreatThreshold    float64
	SessionTimeout     time.Duration
}

// ValidationConfig mirrors spec.md §6's validation.* keys.
type ValidationConfig struct {
	AutoFixEnabled bool
}

// MemoryConfig mirrors spec.md §6's memory.* keys.
type MemoryConfig struct {
	SimilarityThreshold float64
}

// Default returns the documented defaults for every spec.md §6 key.
func Default() Config {
	return Config{
		Mode:            ModeDev,
		Port:            28181,
		Driver:          "sqlite",
		Data:            "./data",
		MaxEventHistory: 10000,
		MaxQueueSize:    100,
		MaxCredits:      1000,
		Security: SecurityConfig{
			MaxRequestsPerHour: 100,
			ThreatThreshold:    0.8,
			SessionTimeout:     3600 * time.Second,
		},
		Validation: ValidationConfig{AutoFixEnabled: true},
		Memory:     MemoryConfig{SimilarityThreshold: 0.85},
	}
}

// Validate checks the handful of invariants the process depends on before
// wiring any component.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Driver != "postgres" && c.Driver != "sqlite" {
		return fmt.Errorf("config: unsupported driver %q", c.Driver)
	}
	if c.Driver == "postgres" && c.DSN == "" {
		return fmt.Errorf("config: dsn is required for driver postgres")
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("config: max_queue_size must be >= 1")
	}
	if c.Distributed && c.RedisURL == "" && c.Driver != "postgres" {
		return fmt.Errorf("config: distributed mode requires redis_url or driver=postgres for a durable bus and queue")
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.Mode == ModeDev || c.Mode == ModeDemo
}
