// Package config loads service configuration from a YAML file and
// environment variables, environment taking precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Worker   WorkerConfig   `yaml:"worker"`
	Engine   EngineConfig   `yaml:"engine"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Addr         string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" env:"DATABASE_DSN" env-default:"postgres://localhost:5432/tabula"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"25"`
	MinConns int32  `yaml:"min_conns" env:"DATABASE_MIN_CONNS" env-default:"5"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// WorkerConfig configures the background worker.
type WorkerConfig struct {
	RecalcInterval time.Duration `yaml:"recalc_interval" env:"WORKER_RECALC_INTERVAL" env-default:"5s"`
	RecalcBatch    int           `yaml:"recalc_batch" env:"WORKER_RECALC_BATCH" env-default:"200"`
	SweepInterval  time.Duration `yaml:"sweep_interval" env:"WORKER_SWEEP_INTERVAL" env-default:"1m"`
	LockTTL        time.Duration `yaml:"lock_ttl" env:"WORKER_LOCK_TTL" env-default:"30m"`
	IgnoreTTL      time.Duration `yaml:"ignore_ttl" env:"WORKER_IGNORE_TTL" env-default:"1h"`
}

// EngineConfig holds engine-level tunables.
type EngineConfig struct {
	PageSize      int `yaml:"page_size" env:"ENGINE_PAGE_SIZE" env-default:"50"`
	SearchLimit   int `yaml:"search_limit" env:"ENGINE_SEARCH_LIMIT" env-default:"100"`
	VersionsLimit int `yaml:"versions_limit" env:"ENGINE_VERSIONS_LIMIT" env-default:"100"`
}

// Load reads configuration from the optional file at path, then
// overlays environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return &cfg, nil
}
