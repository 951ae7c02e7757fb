// Package ticks is the append-only store of probe results.
package ticks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// DefaultClockSkew is how far into the future an observedAt may lie
const DefaultClockSkew = 5 * time.Second

// Store validates and persists ticks and answers ordered range queries
type Store struct {
	db   *database.Store
	skew time.Duration
	now  func() time.Time
}

// New creates a tick store. now defaults to time.Now.
func New(db *database.Store, skew time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	if skew < 0 {
		skew = 0
	}
	return &Store{db: db, skew: skew, now: now}
}

// Validate checks a tick against its monitor and validator and fills in a
// missing id. It returns the monitor the tick belongs to.
func (s *Store) Validate(ctx context.Context, t *models.Tick) (*models.Monitor, error) {
	if err := s.checkFields(t); err != nil {
		return nil, err
	}

	m, err := s.db.GetMonitor(ctx, t.MonitorID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.Invalid("monitor_id", "unknown monitor "+t.MonitorID)
	}
	if err != nil {
		return nil, err
	}
	if m.Archived() {
		return nil, models.Invalid("monitor_id", "monitor "+t.MonitorID+" is archived")
	}

	if _, err := s.db.GetValidator(ctx, t.ValidatorID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.Invalid("validator_id", "unknown validator "+t.ValidatorID)
		}
		return nil, err
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return m, nil
}

func (s *Store) checkFields(t *models.Tick) error {
	t.MonitorID = strings.TrimSpace(t.MonitorID)
	t.ValidatorID = strings.TrimSpace(t.ValidatorID)

	switch {
	case t.MonitorID == "":
		return models.Invalid("monitor_id", "required")
	case t.ValidatorID == "":
		return models.Invalid("validator_id", "required")
	case !t.Status.Valid():
		return models.Invalid("status", "must be Good or Bad")
	case t.LatencyMs < 0:
		return models.Invalid("latency_ms", "must not be negative")
	case t.ObservedAt.IsZero():
		return models.Invalid("observed_at", "required")
	}

	limit := s.now().Add(s.skew)
	if t.ObservedAt.After(limit) {
		return models.Invalid("observed_at", "in the future beyond clock skew tolerance")
	}
	t.ObservedAt = t.ObservedAt.UTC()
	return nil
}

// Append validates and stores a tick. Nothing is written when validation fails.
func (s *Store) Append(ctx context.Context, t *models.Tick) (*models.Monitor, error) {
	m, err := s.Validate(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.db.InsertTick(ctx, t, s.now()); err != nil {
		return nil, err
	}
	return m, nil
}

// Query returns ticks of a monitor in [from, to] sorted ascending by observedAt.
// validatorIDs optionally restricts the validators included.
func (s *Store) Query(ctx context.Context, monitorID string, from, to time.Time, validatorIDs ...string) ([]models.Tick, error) {
	if to.Before(from) {
		return nil, models.Invalid("window", "end before start")
	}
	out, err := s.db.QueryTicks(ctx, database.TickQuery{
		MonitorID:    monitorID,
		From:         from,
		To:           to,
		ValidatorIDs: validatorIDs,
	})
	if err != nil {
		return nil, err
	}
	models.SortTicks(out)
	return out, nil
}

// Latest returns the newest tick of a monitor by observedAt
func (s *Store) Latest(ctx context.Context, monitorID string) (models.Tick, bool, error) {
	return s.db.LatestTick(ctx, monitorID)
}
