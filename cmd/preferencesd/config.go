package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"
)

type config struct {
	Addr            string        `env:"PREFS_ADDR" envDefault:":8080"`
	RoutePrefix     string        `env:"PREFS_ROUTE_PREFIX" envDefault:"/v1"`
	Backend         string        `env:"PREFS_BACKEND" envDefault:"memory"`
	RedisURL        string        `env:"PREFS_REDIS_URL"`
	PostgresDSN     string        `env:"PREFS_POSTGRES_DSN"`
	JWTPublicKey    string        `env:"PREFS_JWT_PUBLIC_KEY,required,notEmpty"` // path to a PEM-encoded RSA public key
	ServiceID       string        `env:"PREFS_SESSIONS_SERVICE_ID,required,notEmpty"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
	ShutdownTimeout time.Duration `env:"PREFS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.Backend {
	case backendMemory:
	case backendRedis:
		if cfg.RedisURL == "" {
			return config{}, fmt.Errorf("PREFS_REDIS_URL must be set to use the %s backend", cfg.Backend)
		}
	case backendPostgres:
		if cfg.PostgresDSN == "" {
			return config{}, fmt.Errorf("PREFS_POSTGRES_DSN must be set to use the %s backend", cfg.Backend)
		}
	default:
		return config{}, fmt.Errorf("unknown PREFS_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}
