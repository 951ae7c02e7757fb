package ticks

import (
	"context"
	"errors"
	"testing"
	"time"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *database.Store) {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, m := range []models.Monitor{
		{ID: "m1", OwnerID: "o", URL: "https://a", Name: "a", CheckIntervalS: 60, State: models.MonitorActive, CreatedAt: now, UpdatedAt: now},
		{ID: "gone", OwnerID: "o", URL: "https://b", Name: "b", CheckIntervalS: 60, State: models.MonitorArchived, CreatedAt: now, UpdatedAt: now},
	} {
		m := m
		if err := db.CreateMonitor(ctx, &m); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateValidator(ctx, &models.Validator{ID: "v1", PublicKey: "k", Location: "eu", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
	return New(db, DefaultClockSkew, func() time.Time { return now }), db
}

func good(id string, at time.Time) *models.Tick {
	return &models.Tick{ID: id, MonitorID: "m1", ValidatorID: "v1", Status: models.TickGood, LatencyMs: 50, ObservedAt: at}
}

func TestAppend_AssignsID(t *testing.T) {
	s, db := newTestStore(t)
	tk := good("", now)
	if _, err := s.Append(context.Background(), tk); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if tk.ID == "" {
		t.Error("expected an id to be assigned")
	}
	n, _ := db.CountTicks(context.Background(), "m1")
	if n != 1 {
		t.Errorf("expected 1 stored tick, got %d", n)
	}
}

func TestAppend_ClockSkew(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, good("ok", now.Add(4*time.Second))); err != nil {
		t.Errorf("tick within skew should be accepted: %v", err)
	}
	_, err := s.Append(ctx, good("future", now.Add(6*time.Second)))
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "observed_at" {
		t.Errorf("expected observed_at validation error, got %v", err)
	}
}

func TestAppend_Rejections(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		tick  *models.Tick
		field string
	}{
		{"unknown monitor", &models.Tick{MonitorID: "nope", ValidatorID: "v1", Status: models.TickGood, ObservedAt: now}, "monitor_id"},
		{"archived monitor", &models.Tick{MonitorID: "gone", ValidatorID: "v1", Status: models.TickGood, ObservedAt: now}, "monitor_id"},
		{"unknown validator", &models.Tick{MonitorID: "m1", ValidatorID: "v9", Status: models.TickGood, ObservedAt: now}, "validator_id"},
		{"bad status", &models.Tick{MonitorID: "m1", ValidatorID: "v1", Status: "Maybe", ObservedAt: now}, "status"},
		{"negative latency", &models.Tick{MonitorID: "m1", ValidatorID: "v1", Status: models.TickGood, LatencyMs: -1, ObservedAt: now}, "latency_ms"},
		{"missing time", &models.Tick{MonitorID: "m1", ValidatorID: "v1", Status: models.TickGood}, "observed_at"},
	}
	for _, c := range cases {
		_, err := s.Append(ctx, c.tick)
		var ve *models.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", c.name, err)
			continue
		}
		if ve.Field != c.field {
			t.Errorf("%s: expected field %s, got %s", c.name, c.field, ve.Field)
		}
	}

	n, _ := db.CountTicks(ctx, "m1")
	if n != 0 {
		t.Errorf("rejected ticks must not be stored, found %d", n)
	}
}

func TestAppend_Duplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, good("dup", now)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, good("dup", now)); !errors.Is(err, models.ErrDuplicateTick) {
		t.Errorf("expected ErrDuplicateTick, got %v", err)
	}
}

func TestQuery_OutOfOrderArrival(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, tk := range []*models.Tick{
		good("t3", now.Add(-1*time.Minute)),
		good("t1", now.Add(-3*time.Minute)),
		good("t2", now.Add(-2*time.Minute)),
	} {
		if _, err := s.Append(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Query(ctx, "m1", now.Add(-time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "t1" || got[1].ID != "t2" || got[2].ID != "t3" {
		t.Errorf("expected t1,t2,t3 in observed order, got %+v", got)
	}
}

func TestQuery_InvalidWindow(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Query(context.Background(), "m1", now, now.Add(-time.Second)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
