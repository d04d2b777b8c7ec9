package repository

// Schema definitions for the GScore database.
// Compatible with both SQLite and PostgreSQL.

const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    as_of_utc TEXT PRIMARY KEY,
    as_of_date TEXT NOT NULL,
    composite_score REAL NOT NULL,
    band TEXT NOT NULL,
    cycle_adjustment REAL NOT NULL DEFAULT 0,
    spike_adjustment REAL NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_date ON snapshots(as_of_date);
`

// schemaFactorHistory stores the historical series in long form: one record
// per (date, key), with the composite under the reserved key 'composite'.
const schemaFactorHistory = `
CREATE TABLE IF NOT EXISTS factor_history (
    date TEXT NOT NULL,
    factor_key TEXT NOT NULL,
    score REAL NOT NULL,
    PRIMARY KEY (date, factor_key)
);

CREATE INDEX IF NOT EXISTS idx_factor_history_key ON factor_history(factor_key, date);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL,
    cooldown_minutes INTEGER NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
`

const schemaAlertEvents = `
CREATE TABLE IF NOT EXISTS alert_events (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    severity TEXT NOT NULL,
    score INTEGER NOT NULL,
    band TEXT NOT NULL,
    message TEXT,
    fired_utc TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alert_events_rule ON alert_events(rule_id);
CREATE INDEX IF NOT EXISTS idx_alert_events_fired ON alert_events(fired_utc);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSnapshots,
		schemaFactorHistory,
		schemaAlertRules,
		schemaAlertEvents,
	}
}
