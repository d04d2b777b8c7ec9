package domain

import "time"

// Config holds the complete GScore configuration.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Component configurations
	Repository RepositoryConfig `yaml:"repository" json:"repository"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	EventBus   EventBusConfig   `yaml:"event_bus" json:"eventBus"`

	// Scoring and ingest behavior
	Scoring ScoringConfig `yaml:"scoring" json:"scoring"`
	Ingest  IngestConfig  `yaml:"ingest" json:"ingest"`

	// Observability
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"writeTimeout"` // seconds
}

// ScoringConfig holds scoring policy knobs.
type ScoringConfig struct {
	// DefaultPreset is the weight preset used when a caller does not pick one.
	DefaultPreset string `yaml:"default_preset" json:"defaultPreset"`

	// MinFactorCount is the canonical-factor floor below which a composite
	// is flagged low-confidence.
	MinFactorCount int `yaml:"min_factor_count" json:"minFactorCount"`

	// DeltaLookbackDays bounds the backward scan for factor deltas.
	DeltaLookbackDays int `yaml:"delta_lookback_days" json:"deltaLookbackDays"`

	// TTLOverrides replaces per-factor staleness TTLs (hours), keyed by
	// factor key.
	TTLOverrides map[string]int `yaml:"ttl_overrides" json:"ttlOverrides,omitempty"`
}

// IngestConfig holds settings for the snapshot/history refresh pipeline.
type IngestConfig struct {
	// SnapshotURL is the ETL endpoint serving the latest factor snapshot.
	SnapshotURL string `yaml:"snapshot_url" json:"snapshotUrl"`

	// HistoryURL is the ETL endpoint serving the historical series.
	HistoryURL string `yaml:"history_url" json:"historyUrl"`

	// FetchTimeout bounds each artifact fetch, in seconds.
	FetchTimeout int `yaml:"fetch_timeout" json:"fetchTimeout"`

	// Schedule is a cron expression (with seconds field) for periodic refresh.
	Schedule string `yaml:"schedule" json:"schedule"`

	// HistoryDays is the in-memory series retention window.
	HistoryDays int `yaml:"history_days" json:"historyDays"`

	// Workers sizes the ingest worker pool; QueueSize its job buffer.
	Workers   int `yaml:"workers" json:"workers"`
	QueueSize int `yaml:"queue_size" json:"queueSize"`

	// RunOnStart triggers one refresh immediately at startup.
	RunOnStart bool `yaml:"run_on_start" json:"runOnStart"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	ServiceName  string `yaml:"service_name" json:"serviceName"`
	ExporterType string `yaml:"exporter_type" json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `yaml:"endpoint" json:"endpoint"`
}

// DefaultConfig returns a single-node configuration: SQLite storage, local
// LRU cache, in-process channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./gscore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			DefaultPreset:     "official_30_30",
			MinFactorCount:    3,
			DeltaLookbackDays: 14,
		},
		Ingest: IngestConfig{
			FetchTimeout: 10,
			Schedule:     "0 15 * * * *", // hourly at :15
			HistoryDays:  400,
			Workers:      2,
			QueueSize:    16,
			RunOnStart:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "gscore",
		},
	}
}

// ClusterConfig returns a multi-node configuration: PostgreSQL storage,
// two-phase Redis cache, NATS bus.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "gscore",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
