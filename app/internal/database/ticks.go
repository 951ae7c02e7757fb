package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"uptime/app/internal/models"
)

// TickQuery selects ticks of one monitor in the closed range [From, To].
// ValidatorIDs, when non-empty, restricts the result to those validators.
type TickQuery struct {
	MonitorID    string
	From         time.Time
	To           time.Time
	ValidatorIDs []string
}

// InsertTick appends a tick. A tick id that already exists yields models.ErrDuplicateTick.
func (s *Store) InsertTick(ctx context.Context, t *models.Tick, receivedAt time.Time) error {
	res, err := s.exec(ctx, s.DB, `INSERT INTO ticks (id, monitor_id, validator_id, status, latency_ms, observed_at, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, t.MonitorID, t.ValidatorID, string(t.Status), t.LatencyMs, toMillis(t.ObservedAt), toMillis(receivedAt))
	if err != nil {
		return fmt.Errorf("insert tick %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tick %s: %w", t.ID, models.ErrDuplicateTick)
	}
	return nil
}

// QueryTicks returns ticks ordered by observed_at ascending, ties broken by id
func (s *Store) QueryTicks(ctx context.Context, q TickQuery) ([]models.Tick, error) {
	query := `SELECT id, monitor_id, validator_id, status, latency_ms, observed_at
		FROM ticks WHERE monitor_id = ? AND observed_at >= ? AND observed_at <= ?`
	args := []any{q.MonitorID, toMillis(q.From), toMillis(q.To)}
	if len(q.ValidatorIDs) > 0 {
		query += " AND validator_id IN (" + placeholders(len(q.ValidatorIDs)) + ")"
		for _, id := range q.ValidatorIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY observed_at ASC, id ASC"

	rows, err := s.query(ctx, s.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ticks %s: %w", q.MonitorID, err)
	}
	defer rows.Close()

	var out []models.Tick
	for rows.Next() {
		var (
			t        models.Tick
			status   string
			observed int64
		)
		if err := rows.Scan(&t.ID, &t.MonitorID, &t.ValidatorID, &status, &t.LatencyMs, &observed); err != nil {
			return nil, err
		}
		t.Status = models.TickStatus(status)
		t.ObservedAt = fromMillis(observed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestTick returns the tick with the newest observed_at for a monitor.
// ok is false when the monitor has no ticks.
func (s *Store) LatestTick(ctx context.Context, monitorID string) (t models.Tick, ok bool, err error) {
	var (
		status   string
		observed int64
	)
	err = s.queryRow(ctx, s.DB, `SELECT id, monitor_id, validator_id, status, latency_ms, observed_at
		FROM ticks WHERE monitor_id = ? ORDER BY observed_at DESC, id DESC LIMIT 1`, monitorID).
		Scan(&t.ID, &t.MonitorID, &t.ValidatorID, &status, &t.LatencyMs, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tick{}, false, nil
	}
	if err != nil {
		return models.Tick{}, false, fmt.Errorf("latest tick %s: %w", monitorID, err)
	}
	t.Status = models.TickStatus(status)
	t.ObservedAt = fromMillis(observed)
	return t, true, nil
}

// CountTicks returns the number of stored ticks for a monitor
func (s *Store) CountTicks(ctx context.Context, monitorID string) (int, error) {
	var n int
	err := s.queryRow(ctx, s.DB, `SELECT COUNT(*) FROM ticks WHERE monitor_id = ?`, monitorID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ticks %s: %w", monitorID, err)
	}
	return n, nil
}

// DeleteTicksBefore removes ticks observed before cutoff and returns how many were removed
func (s *Store) DeleteTicksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, s.DB, `DELETE FROM ticks WHERE observed_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete ticks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
