// Package config loads the GScore configuration: built-in defaults overlaid
// with an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ghostgauge/gscore/internal/domain"
	"github.com/ghostgauge/gscore/internal/score"
)

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("GSCORE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := envInt("GSCORE_PORT"); v > 0 {
		cfg.Server.Port = v
	}

	if v := os.Getenv("GSCORE_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("GSCORE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("GSCORE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := envInt("GSCORE_POSTGRES_PORT"); v > 0 {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("GSCORE_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("GSCORE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("GSCORE_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("GSCORE_CACHE_TYPE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("GSCORE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("GSCORE_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}

	if v := os.Getenv("GSCORE_BUS_TYPE"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("GSCORE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("GSCORE_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("GSCORE_DEFAULT_PRESET"); v != "" {
		cfg.Scoring.DefaultPreset = v
	}

	if v := os.Getenv("GSCORE_SNAPSHOT_URL"); v != "" {
		cfg.Ingest.SnapshotURL = v
	}
	if v := os.Getenv("GSCORE_HISTORY_URL"); v != "" {
		cfg.Ingest.HistoryURL = v
	}
	if v := os.Getenv("GSCORE_REFRESH_SCHEDULE"); v != "" {
		cfg.Ingest.Schedule = v
	}
	if v := envInt("GSCORE_FETCH_TIMEOUT"); v > 0 {
		cfg.Ingest.FetchTimeout = v
	}
	if v := os.Getenv("GSCORE_RUN_ON_START"); v != "" {
		cfg.Ingest.RunOnStart = v == "true" || v == "1"
	}

	if v := os.Getenv("GSCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GSCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("GSCORE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks cross-field consistency of a loaded configuration.
func Validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	switch cfg.Repository.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("repository.driver %q unsupported (sqlite or postgres)", cfg.Repository.Driver)
	}

	switch cfg.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.type %q unsupported (memory or redis)", cfg.Cache.Type)
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.RedisAddr == "" {
		return fmt.Errorf("cache.redis_addr is required for redis cache")
	}

	switch cfg.EventBus.Type {
	case "channel", "nats":
	default:
		return fmt.Errorf("event_bus.type %q unsupported (channel or nats)", cfg.EventBus.Type)
	}

	if cfg.Scoring.DefaultPreset != "" {
		if _, err := score.ResolvePreset(cfg.Scoring.DefaultPreset); err != nil {
			return fmt.Errorf("scoring.default_preset: %w", err)
		}
	}
	if cfg.Scoring.MinFactorCount < 0 {
		return fmt.Errorf("scoring.min_factor_count must not be negative")
	}
	if cfg.Scoring.DeltaLookbackDays <= 0 {
		return fmt.Errorf("scoring.delta_lookback_days must be positive")
	}
	for key := range cfg.Scoring.TTLOverrides {
		if !domain.IsCanonicalFactor(key) {
			return fmt.Errorf("scoring.ttl_overrides: unknown factor %q", key)
		}
	}

	if cfg.Ingest.FetchTimeout <= 0 {
		return fmt.Errorf("ingest.fetch_timeout must be positive")
	}
	if cfg.Ingest.HistoryDays <= 0 {
		return fmt.Errorf("ingest.history_days must be positive")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unsupported", cfg.Logging.Level)
	}

	return nil
}
