package retention

import (
	"context"
	"testing"
	"time"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/monitor"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.Store) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"m1", "m2"} {
		m := &models.Monitor{ID: id, OwnerID: "o", URL: "https://x.example.com", Name: id, CheckIntervalS: 60, State: models.MonitorActive, CreatedAt: now, UpdatedAt: now}
		if err := db.CreateMonitor(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CreateValidator(ctx, &models.Validator{ID: "v1", PublicKey: "k", Location: "eu", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}
}

func TestNew_ClampsRetention(t *testing.T) {
	s := New(newTestStore(t), monitor.NewTracker(), Config{TickRetention: time.Hour}, nil)
	if s.cfg.TickRetention != MinTickRetention {
		t.Errorf("expected retention clamped to %v, got %v", MinTickRetention, s.cfg.TickRetention)
	}
	if s.cfg.AuditKeep != 10000 {
		t.Errorf("expected default audit keep, got %d", s.cfg.AuditKeep)
	}
}

func TestPruneTicks(t *testing.T) {
	db := newTestStore(t)
	seed(t, db)
	ctx := context.Background()

	ages := []time.Duration{40 * 24 * time.Hour, 36 * 24 * time.Hour, 30 * 24 * time.Hour, time.Hour}
	for i, age := range ages {
		tk := &models.Tick{ID: string(rune('a' + i)), MonitorID: "m1", ValidatorID: "v1", Status: models.TickGood, LatencyMs: 10, ObservedAt: now.Add(-age)}
		if err := db.InsertTick(ctx, tk, now); err != nil {
			t.Fatal(err)
		}
	}

	s := New(db, monitor.NewTracker(), DefaultConfig(), func() time.Time { return now })
	n, err := s.PruneTicks(ctx)
	if err != nil {
		t.Fatalf("PruneTicks: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 ticks older than 35 days pruned, got %d", n)
	}
	if left, _ := db.CountTicks(ctx, "m1"); left != 2 {
		t.Errorf("expected 2 ticks left, got %d", left)
	}

	entries, err := db.ListAudit(ctx, database.AuditFilter{Category: database.LogCategoryRetention})
	if err != nil || len(entries) != 1 {
		t.Errorf("expected one retention audit entry, got %d %v", len(entries), err)
	}
}

func TestPruneAudit(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := db.InsertAudit(ctx, now.Add(time.Duration(i)*time.Second), database.LogLevelWarn, database.LogCategoryIngest, "", "rejected", ""); err != nil {
			t.Fatal(err)
		}
	}

	s := New(db, monitor.NewTracker(), Config{AuditKeep: 2}, func() time.Time { return now })
	n, err := s.PruneAudit(ctx)
	if err != nil {
		t.Fatalf("PruneAudit: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows pruned, got %d", n)
	}
}

func TestPruneTracker(t *testing.T) {
	db := newTestStore(t)
	seed(t, db)
	ctx := context.Background()
	if err := db.SetMonitorState(ctx, "m2", models.MonitorArchived, now); err != nil {
		t.Fatal(err)
	}

	tracker := monitor.NewTracker()
	for _, id := range []string{"m1", "m2", "gone"} {
		_, unlock := tracker.Lock(id)
		unlock()
	}

	s := New(db, tracker, DefaultConfig(), func() time.Time { return now })
	removed, err := s.PruneTracker(ctx)
	if err != nil {
		t.Fatalf("PruneTracker: %v", err)
	}
	if removed != 2 || tracker.Len() != 1 {
		t.Errorf("expected archived and unknown state dropped, removed %d, left %d", removed, tracker.Len())
	}
}

func TestStartStop(t *testing.T) {
	s := New(newTestStore(t), monitor.NewTracker(), DefaultConfig(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	s.Stop()
}
