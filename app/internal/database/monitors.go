package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"uptime/app/internal/models"
)

const monitorColumns = `id, owner_id, url, name, check_interval_s, expected_codes, state, created_at, updated_at`

// CreateMonitor inserts a new monitor
func (s *Store) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	_, err := s.exec(ctx, s.DB, `INSERT INTO monitors (`+monitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.OwnerID, m.URL, m.Name, m.CheckIntervalS, joinCodes(m.ExpectedStatusCodes),
		string(m.State), toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert monitor %s: %w", m.ID, err)
	}
	return nil
}

// UpsertMonitor inserts the monitor or refreshes its descriptive fields.
// The lifecycle state of an existing monitor is left alone.
func (s *Store) UpsertMonitor(ctx context.Context, m *models.Monitor) error {
	_, err := s.exec(ctx, s.DB, `INSERT INTO monitors (`+monitorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			url = excluded.url,
			name = excluded.name,
			check_interval_s = excluded.check_interval_s,
			expected_codes = excluded.expected_codes,
			updated_at = excluded.updated_at`,
		m.ID, m.OwnerID, m.URL, m.Name, m.CheckIntervalS, joinCodes(m.ExpectedStatusCodes),
		string(m.State), toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert monitor %s: %w", m.ID, err)
	}
	return nil
}

// GetMonitor returns a monitor by id, or models.ErrNotFound
func (s *Store) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.queryRow(ctx, s.DB, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("monitor %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor %s: %w", id, err)
	}
	return m, nil
}

// ListMonitors returns monitors ordered by creation time.
// An empty ownerID lists every owner.
func (s *Store) ListMonitors(ctx context.Context, ownerID string, includeArchived bool) ([]models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors WHERE 1=1`
	var args []any
	if ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}
	if !includeArchived {
		query += " AND state <> ?"
		args = append(args, string(models.MonitorArchived))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SetMonitorState changes the lifecycle state of a monitor
func (s *Store) SetMonitorState(ctx context.Context, id string, state models.MonitorState, at time.Time) error {
	res, err := s.exec(ctx, s.DB, `UPDATE monitors SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), toMillis(at), id)
	if err != nil {
		return fmt.Errorf("set monitor state %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("monitor %s: %w", id, models.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(sc scanner) (*models.Monitor, error) {
	var (
		m                models.Monitor
		codes, state     string
		created, updated int64
	)
	if err := sc.Scan(&m.ID, &m.OwnerID, &m.URL, &m.Name, &m.CheckIntervalS, &codes, &state, &created, &updated); err != nil {
		return nil, err
	}
	m.ExpectedStatusCodes = splitCodes(codes)
	m.State = models.MonitorState(state)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

func joinCodes(codes []int) string {
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, strconv.Itoa(c))
	}
	return strings.Join(parts, ",")
}

func splitCodes(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
