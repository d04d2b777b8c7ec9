// Package domain defines the core interfaces and types for GScore.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Snapshot operations
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetLatestSnapshot(ctx context.Context) (*Snapshot, error)
	GetSnapshotByDate(ctx context.Context, date time.Time) (*Snapshot, error)

	// Historical series operations
	SaveHistoryRows(ctx context.Context, rows []HistoryRow) error
	GetHistoryRange(ctx context.Context, from, to time.Time) ([]HistoryRow, error)

	// Alert rule operations
	SaveAlertRule(ctx context.Context, rule *AlertRule) error
	GetAlertRule(ctx context.Context, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context) ([]*AlertRule, error)
	DeleteAlertRule(ctx context.Context, ruleID string) error

	// Alert event operations
	SaveAlertEvent(ctx context.Context, event *AlertEvent) error
	ListAlertEvents(ctx context.Context, limit int) ([]*AlertEvent, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver" json:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path" json:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `yaml:"postgres_port" json:"postgresPort"`
	PostgresUser     string `yaml:"postgres_user" json:"postgresUser"`
	PostgresPassword string `yaml:"postgres_password" json:"postgresPassword"`
	PostgresDB       string `yaml:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"connMaxLifetime"`
}
