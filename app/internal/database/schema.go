package database

import (
	"context"
	"fmt"
)

// EnsureSchema creates all tables and indexes. Safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.Dialect == Postgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitors (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  url TEXT NOT NULL,
  name TEXT NOT NULL,
  check_interval_s INTEGER NOT NULL DEFAULT 60,
  expected_codes TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT 'active',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors(owner_id)`,

		`CREATE TABLE IF NOT EXISTS validators (
  id TEXT PRIMARY KEY,
  public_key TEXT NOT NULL,
  location TEXT NOT NULL,
  ip TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_validators_location ON validators(location)`,

		`CREATE TABLE IF NOT EXISTS ticks (
  id TEXT PRIMARY KEY,
  monitor_id TEXT NOT NULL,
  validator_id TEXT NOT NULL,
  status TEXT NOT NULL,
  latency_ms INTEGER NOT NULL,
  observed_at BIGINT NOT NULL,
  received_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_monitor_observed ON ticks(monitor_id, observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_monitor_validator ON ticks(monitor_id, validator_id, observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_observed ON ticks(observed_at)`,

		`CREATE TABLE IF NOT EXISTS incidents (
  id TEXT PRIMARY KEY,
  monitor_id TEXT NOT NULL,
  title TEXT NOT NULL,
  severity TEXT NOT NULL,
  status TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  resolved_at BIGINT
)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_monitor ON incidents(monitor_id, started_at)`,
		// At most one open incident per monitor
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_one_open ON incidents(monitor_id) WHERE status <> 'resolved'`,

		`CREATE TABLE IF NOT EXISTS incident_updates (
  id TEXT PRIMARY KEY,
  incident_id TEXT NOT NULL,
  message TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_incident_updates_incident ON incident_updates(incident_id, created_at)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_log (
  id %s,
  ts BIGINT NOT NULL,
  level TEXT NOT NULL,
  category TEXT NOT NULL,
  monitor_id TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  details TEXT NOT NULL DEFAULT ''
)`, serial),
		`CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
