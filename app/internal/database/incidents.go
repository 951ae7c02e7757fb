package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uptime/app/internal/models"
)

const incidentColumns = `id, monitor_id, title, severity, status, started_at, resolved_at`

// CreateIncident stores a new incident together with its first update
func (s *Store) CreateIncident(ctx context.Context, inc *models.Incident, first *models.IncidentUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `INSERT INTO incidents (`+incidentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inc.ID, inc.MonitorID, inc.Title, string(inc.Severity), string(inc.Status),
			toMillis(inc.StartedAt), nullMillis(inc.ResolvedAt))
		if err != nil {
			return fmt.Errorf("insert incident %s: %w", inc.ID, err)
		}
		if first != nil {
			return s.insertUpdate(ctx, tx, first)
		}
		return nil
	})
}

// SaveIncident persists status, severity and resolved_at of an incident and
// appends upd to its history when upd is non-nil. Both happen in one transaction.
func (s *Store) SaveIncident(ctx context.Context, inc *models.Incident, upd *models.IncidentUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.exec(ctx, tx, `UPDATE incidents SET severity = ?, status = ?, resolved_at = ? WHERE id = ?`,
			string(inc.Severity), string(inc.Status), nullMillis(inc.ResolvedAt), inc.ID)
		if err != nil {
			return fmt.Errorf("update incident %s: %w", inc.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("incident %s: %w", inc.ID, models.ErrNotFound)
		}
		if upd != nil {
			return s.insertUpdate(ctx, tx, upd)
		}
		return nil
	})
}

func (s *Store) insertUpdate(ctx context.Context, q queryer, u *models.IncidentUpdate) error {
	_, err := s.exec(ctx, q, `INSERT INTO incident_updates (id, incident_id, message, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.IncidentID, u.Message, string(u.Status), toMillis(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert incident update %s: %w", u.ID, err)
	}
	return nil
}

// GetIncident returns an incident with its updates in chronological order
func (s *Store) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := s.queryRow(ctx, s.DB, `SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}

	updates, err := s.IncidentUpdates(ctx, id)
	if err != nil {
		return nil, err
	}
	inc.Updates = updates
	return inc, nil
}

// IncidentUpdates returns the audit trail of an incident, oldest first
func (s *Store) IncidentUpdates(ctx context.Context, incidentID string) ([]models.IncidentUpdate, error) {
	rows, err := s.query(ctx, s.DB, `SELECT id, incident_id, message, status, created_at
		FROM incident_updates WHERE incident_id = ? ORDER BY created_at ASC, id ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("incident updates %s: %w", incidentID, err)
	}
	defer rows.Close()

	var out []models.IncidentUpdate
	for rows.Next() {
		var (
			u       models.IncidentUpdate
			status  string
			created int64
		)
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Message, &status, &created); err != nil {
			return nil, err
		}
		u.Status = models.IncidentStatus(status)
		u.CreatedAt = fromMillis(created)
		out = append(out, u)
	}
	return out, rows.Err()
}

// OpenIncident returns the unresolved incident of a monitor, or nil when there is none
func (s *Store) OpenIncident(ctx context.Context, monitorID string) (*models.Incident, error) {
	row := s.queryRow(ctx, s.DB, `SELECT `+incidentColumns+` FROM incidents
		WHERE monitor_id = ? AND status <> ? LIMIT 1`, monitorID, string(models.IncidentResolved))
	inc, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open incident %s: %w", monitorID, err)
	}
	return inc, nil
}

// ListIncidents returns incidents newest first, without updates
func (s *Store) ListIncidents(ctx context.Context, f models.IncidentFilter) ([]models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE 1=1`
	var args []any
	if f.MonitorID != "" {
		query += " AND monitor_id = ?"
		args = append(args, f.MonitorID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.OpenOnly {
		query += " AND status <> ?"
		args = append(args, string(models.IncidentResolved))
	}
	query += " ORDER BY started_at DESC, id DESC"
	return s.listIncidents(ctx, query, args...)
}

// IncidentsInWindow returns incidents of a monitor whose [startedAt, resolvedAt or open]
// span intersects [from, to], oldest first
func (s *Store) IncidentsInWindow(ctx context.Context, monitorID string, from, to time.Time) ([]models.Incident, error) {
	return s.listIncidents(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE monitor_id = ? AND started_at <= ? AND (resolved_at IS NULL OR resolved_at >= ?)
		ORDER BY started_at ASC, id ASC`,
		monitorID, toMillis(to), toMillis(from))
}

func (s *Store) listIncidents(ctx context.Context, query string, args ...any) ([]models.Incident, error) {
	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func scanIncident(sc scanner) (*models.Incident, error) {
	var (
		inc              models.Incident
		severity, status string
		started          int64
		resolved         sql.NullInt64
	)
	if err := sc.Scan(&inc.ID, &inc.MonitorID, &inc.Title, &severity, &status, &started, &resolved); err != nil {
		return nil, err
	}
	inc.Severity = models.Severity(severity)
	inc.Status = models.IncidentStatus(status)
	inc.StartedAt = fromMillis(started)
	if resolved.Valid {
		t := fromMillis(resolved.Int64)
		inc.ResolvedAt = &t
	}
	return &inc, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
