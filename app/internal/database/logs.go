package database

import (
	"context"
	"fmt"
	"time"

	"uptime/app/internal/models"
)

// ============================================
// Audit log
// ============================================

// LogLevel constants
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogCategory constants
const (
	LogCategoryIngest    = "ingest"
	LogCategoryIncident  = "incident"
	LogCategoryRegistry  = "registry"
	LogCategoryRetention = "retention"
	LogCategoryNotify    = "notification"
)

// AuditFilter narrows ListAudit
type AuditFilter struct {
	Level     string
	Category  string
	MonitorID string
	Limit     int
	Offset    int
}

// InsertAudit adds a new audit entry
func (s *Store) InsertAudit(ctx context.Context, at time.Time, level, category, monitorID, message, details string) error {
	_, err := s.exec(ctx, s.DB, `INSERT INTO audit_log (ts, level, category, monitor_id, message, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		toMillis(at), level, category, monitorID, message, details)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudit retrieves audit entries newest first with optional filtering
func (s *Store) ListAudit(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	query := `SELECT id, ts, level, category, monitor_id, message, details FROM audit_log WHERE 1=1`
	var args []any

	if f.Level != "" {
		query += " AND level = ?"
		args = append(args, f.Level)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.MonitorID != "" {
		query += " AND monitor_id = ?"
		args = append(args, f.MonitorID)
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e  models.AuditEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Level, &e.Category, &e.MonitorID, &e.Message, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = fromMillis(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneAudit keeps only the newest keepCount audit entries
func (s *Store) PruneAudit(ctx context.Context, keepCount int) (int64, error) {
	res, err := s.exec(ctx, s.DB, `DELETE FROM audit_log WHERE id NOT IN (
		SELECT id FROM audit_log ORDER BY ts DESC, id DESC LIMIT ?
	)`, keepCount)
	if err != nil {
		return 0, fmt.Errorf("prune audit: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
