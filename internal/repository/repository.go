// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ghostgauge/gscore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// dateLayout is how calendar days are stored, so lexicographic range scans
// work identically on SQLite and PostgreSQL.
const dateLayout = "2006-01-02"

// compositeKey is the factor_history key under which the daily composite is
// stored alongside the per-factor scores.
const compositeKey = "composite"

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSnapshot stores a factor snapshot. A snapshot with the same as-of
// timestamp replaces the previous one; the ETL re-emits a corrected artifact
// under the same as_of_utc, so replacement is the desired behavior.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: snapshot is required", ErrInvalidInput)
	}
	if snap.AsOfUTC.IsZero() {
		return fmt.Errorf("%w: snapshot as_of_utc is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (
			as_of_utc, as_of_date, composite_score, band,
			cycle_adjustment, spike_adjustment, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(as_of_utc) DO UPDATE SET
			composite_score = excluded.composite_score,
			band = excluded.band,
			cycle_adjustment = excluded.cycle_adjustment,
			spike_adjustment = excluded.spike_adjustment,
			payload = excluded.payload
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		snap.AsOfUTC.UTC().Format(time.RFC3339),
		snap.AsOfUTC.UTC().Format(dateLayout),
		snap.CompositeScore, snap.Band,
		snap.CycleAdjustment, snap.SpikeAdjustment,
		string(payload), time.Now().UTC(),
	)
	return err
}

// GetLatestSnapshot retrieves the most recent snapshot by as-of timestamp.
func (r *SQLRepository) GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		ORDER BY as_of_utc DESC
		LIMIT 1
	`
	return r.scanSnapshot(r.db.QueryRowContext(ctx, query))
}

// GetSnapshotByDate retrieves the latest snapshot for a UTC calendar day.
func (r *SQLRepository) GetSnapshotByDate(ctx context.Context, date time.Time) (*domain.Snapshot, error) {
	query := `
		SELECT payload
		FROM snapshots
		WHERE as_of_date = ?
		ORDER BY as_of_utc DESC
		LIMIT 1
	`
	return r.scanSnapshot(r.db.QueryRowContext(ctx, r.rebind(query), date.UTC().Format(dateLayout)))
}

func (r *SQLRepository) scanSnapshot(row *sql.Row) (*domain.Snapshot, error) {
	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse stored snapshot: %w", err)
	}
	return &snap, nil
}

// SaveHistoryRows upserts historical series rows. Each row fans out to one
// record per factor plus one for the composite, so range queries can
// reassemble rows regardless of which columns the artifact carried.
func (r *SQLRepository) SaveHistoryRows(ctx context.Context, rows []domain.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO factor_history (date, factor_key, score)
		VALUES (?, ?, ?)
		ON CONFLICT(date, factor_key) DO UPDATE SET
			score = excluded.score
	`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.Date.IsZero() {
			return fmt.Errorf("%w: history row has no date", ErrInvalidInput)
		}
		day := row.Date.UTC().Format(dateLayout)

		if row.Composite != nil {
			if _, err := stmt.ExecContext(ctx, day, compositeKey, *row.Composite); err != nil {
				return err
			}
		}
		for key, score := range row.Factors {
			if score == nil {
				continue
			}
			if _, err := stmt.ExecContext(ctx, day, key, *score); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetHistoryRange retrieves history rows for [from, to] inclusive, ascending
// by date.
func (r *SQLRepository) GetHistoryRange(ctx context.Context, from, to time.Time) ([]domain.HistoryRow, error) {
	query := `
		SELECT date, factor_key, score
		FROM factor_history
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`

	dbRows, err := r.db.QueryContext(ctx, r.rebind(query),
		from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer dbRows.Close()

	var out []domain.HistoryRow
	var current *domain.HistoryRow
	for dbRows.Next() {
		var day, key string
		var scoreVal float64
		if err := dbRows.Scan(&day, &key, &scoreVal); err != nil {
			return nil, err
		}

		date, err := time.ParseInLocation(dateLayout, day, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("malformed date %q in factor_history: %w", day, err)
		}

		if current == nil || !current.Date.Equal(date) {
			out = append(out, domain.HistoryRow{Date: date})
			current = &out[len(out)-1]
		}

		v := scoreVal
		if key == compositeKey {
			current.Composite = &v
		} else {
			if current.Factors == nil {
				current.Factors = make(map[string]*float64)
			}
			current.Factors[key] = &v
		}
	}

	return out, dbRows.Err()
}

// SaveAlertRule inserts or updates an alert rule.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO alert_rules (
			id, name, description, expression, severity,
			cooldown_minutes, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			cooldown_minutes = excluded.cooldown_minutes,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression, string(rule.Severity),
		rule.CooldownMinutes, enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetAlertRule retrieves an alert rule by ID.
func (r *SQLRepository) GetAlertRule(ctx context.Context, ruleID string) (*domain.AlertRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, expression, severity,
			   cooldown_minutes, enabled, created_at, updated_at
		FROM alert_rules
		WHERE id = ?
	`

	var rule domain.AlertRule
	var severity string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &severity,
		&rule.CooldownMinutes, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Severity = domain.AlertSeverity(severity)
	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListAlertRules retrieves all alert rules, enabled or not, ordered by name.
func (r *SQLRepository) ListAlertRules(ctx context.Context) ([]*domain.AlertRule, error) {
	query := `
		SELECT id, name, description, expression, severity,
			   cooldown_minutes, enabled, created_at, updated_at
		FROM alert_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var severity string
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression, &severity,
			&rule.CooldownMinutes, &enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Severity = domain.AlertSeverity(severity)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteAlertRule removes an alert rule.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM alert_rules WHERE id = ?`), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAlertEvent stores a fired alert.
func (r *SQLRepository) SaveAlertEvent(ctx context.Context, event *domain.AlertEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO alert_events (
			id, rule_id, rule_name, severity, score, band, message, fired_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, event.RuleID, event.RuleName, string(event.Severity),
		event.Score, event.Band, event.Message, event.FiredUTC,
	)
	return err
}

// ListAlertEvents retrieves the most recent fired alerts, newest first.
func (r *SQLRepository) ListAlertEvents(ctx context.Context, limit int) ([]*domain.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, rule_id, rule_name, severity, score, band, message, fired_utc
		FROM alert_events
		ORDER BY fired_utc DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AlertEvent
	for rows.Next() {
		var event domain.AlertEvent
		var severity string

		if err := rows.Scan(
			&event.ID, &event.RuleID, &event.RuleName, &severity,
			&event.Score, &event.Band, &event.Message, &event.FiredUTC,
		); err != nil {
			return nil, err
		}

		event.Severity = domain.AlertSeverity(severity)
		events = append(events, &event)
	}

	return events, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
