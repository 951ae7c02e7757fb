package monitor

import (
	"sync"
	"testing"
	"time"

	"uptime/app/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func det(s models.MonitorStatus, offset time.Duration) models.Determination {
	return models.Determination{Status: s, At: t0.Add(offset)}
}

func TestNewTracker(t *testing.T) {
	tr := NewTracker()
	if tr == nil {
		t.Fatal("NewTracker returned nil")
	}
	if tr.Len() != 0 {
		t.Errorf("expected empty tracker, got %d", tr.Len())
	}
}

func TestObserve_UnhealthyStreak(t *testing.T) {
	var s State
	s.Observe(det(models.StatusDown, 0))
	s.Observe(det(models.StatusDegraded, time.Minute))

	if s.UnhealthyStreak != 2 {
		t.Errorf("expected 2, got %d", s.UnhealthyStreak)
	}
	if !s.StreakStart.Equal(t0) {
		t.Errorf("streak should start at first unhealthy determination, got %v", s.StreakStart)
	}
	if !s.LastEvaluated.Equal(t0.Add(time.Minute)) {
		t.Errorf("unexpected LastEvaluated %v", s.LastEvaluated)
	}
}

func TestObserve_ResetOnHealthy(t *testing.T) {
	var s State
	s.Observe(det(models.StatusDown, 0))
	s.Observe(det(models.StatusUp, time.Minute))

	if s.UnhealthyStreak != 0 || s.HealthyStreak != 1 {
		t.Errorf("expected unhealthy=0 healthy=1, got %d %d", s.UnhealthyStreak, s.HealthyStreak)
	}
	if !s.StreakStart.IsZero() {
		t.Error("healthy determination should clear the streak start")
	}

	// Next failure starts a new streak
	s.Observe(det(models.StatusDown, 2*time.Minute))
	if s.UnhealthyStreak != 1 || !s.StreakStart.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("expected new streak at 2m, got %d at %v", s.UnhealthyStreak, s.StreakStart)
	}
}

func TestObserve_PausedResets(t *testing.T) {
	var s State
	s.Observe(det(models.StatusUp, 0))
	s.Observe(det(models.StatusPaused, time.Minute))
	if s.HealthyStreak != 0 || s.UnhealthyStreak != 0 {
		t.Errorf("paused should reset streaks, got %+v", s)
	}
}

func TestDownFor(t *testing.T) {
	var s State
	s.Observe(det(models.StatusDegraded, 0))
	if s.DownFor(t0.Add(time.Hour)) != 0 {
		t.Error("degraded is not down")
	}
	s.Observe(det(models.StatusDown, time.Minute))
	s.Observe(det(models.StatusDown, 5*time.Minute))
	if got := s.DownFor(t0.Add(31 * time.Minute)); got != 30*time.Minute {
		t.Errorf("expected 30m down, got %v", got)
	}
	s.Observe(det(models.StatusDegraded, 40*time.Minute))
	if s.DownFor(t0.Add(time.Hour)) != 0 {
		t.Error("leaving down should clear the run")
	}
}

func TestTracker_IndependentMonitors(t *testing.T) {
	tr := NewTracker()

	st, unlock := tr.Lock("m1")
	st.Observe(det(models.StatusDown, 0))
	unlock()

	if got := tr.Snapshot("m2"); got.UnhealthyStreak != 0 || got.MonitorID != "m2" {
		t.Errorf("m2 should be untouched, got %+v", got)
	}
	if got := tr.Snapshot("m1"); got.UnhealthyStreak != 1 {
		t.Errorf("expected m1 streak 1, got %d", got.UnhealthyStreak)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	st, unlock := tr.Lock("m1")
	st.Observe(det(models.StatusDown, 0))
	unlock()

	tr.Reset("m1")
	if got := tr.Snapshot("m1"); got.UnhealthyStreak != 0 || !got.LastEvaluated.IsZero() {
		t.Errorf("expected cleared state, got %+v", got)
	}
	tr.Reset("nonexistent") // should not panic
}

func TestTracker_Prune(t *testing.T) {
	tr := NewTracker()
	for _, id := range []string{"m1", "m2", "m3"} {
		st, unlock := tr.Lock(id)
		st.Observe(det(models.StatusDown, 0))
		unlock()
	}

	tr.Prune(map[string]struct{}{"m1": {}, "m3": {}})
	if tr.Len() != 2 {
		t.Errorf("expected 2 entries after prune, got %d", tr.Len())
	}
	if got := tr.Snapshot("m2"); got.UnhealthyStreak != 0 {
		t.Errorf("expected m2 pruned, got streak %d", got.UnhealthyStreak)
	}
	if got := tr.Snapshot("m1"); got.UnhealthyStreak != 1 {
		t.Errorf("expected m1 kept, got streak %d", got.UnhealthyStreak)
	}
}

func TestTracker_PruneSkipsHeldLocks(t *testing.T) {
	tr := NewTracker()
	_, unlock := tr.Lock("busy")
	tr.Prune(map[string]struct{}{})
	if tr.Len() != 1 {
		t.Errorf("held entry must survive prune, got %d entries", tr.Len())
	}
	unlock()
	tr.Prune(map[string]struct{}{})
	if tr.Len() != 0 {
		t.Errorf("expected idle entry pruned, got %d entries", tr.Len())
	}
}

func TestTracker_PruneSkipsPendingLock(t *testing.T) {
	tr := NewTracker()
	st, unlock := tr.Lock("m1")
	st.Observe(det(models.StatusDown, 0))
	unlock()

	// a caller has fetched the entry but not locked it yet
	e := tr.acquire("m1")
	tr.Prune(map[string]struct{}{})
	if tr.Len() != 1 {
		t.Fatalf("pending entry must survive prune, got %d entries", tr.Len())
	}
	e.mu.Lock()
	e.state.UnhealthyStreak++
	e.mu.Unlock()
	tr.release(e)

	if got := tr.Snapshot("m1"); got.UnhealthyStreak != 2 {
		t.Errorf("expected both updates on one entry, got streak %d", got.UnhealthyStreak)
	}
	tr.Prune(map[string]struct{}{})
	if tr.Len() != 0 {
		t.Errorf("expected released entry pruned, got %d entries", tr.Len())
	}
}

func TestTracker_SerializesPerMonitor(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, unlock := tr.Lock("m1")
			defer unlock()
			st.UnhealthyStreak++
		}()
	}

	wg.Wait()

	if got := tr.Snapshot("m1"); got.UnhealthyStreak != 100 {
		t.Errorf("expected 100, got %d", got.UnhealthyStreak)
	}
}

func TestObserve_SameInstantReplaces(t *testing.T) {
	var s State
	s.Observe(det(models.StatusDown, 0))
	s.Observe(det(models.StatusDown, time.Minute))
	// A later tick for the same instant turns the determination around
	s.Observe(det(models.StatusUp, time.Minute))

	if s.UnhealthyStreak != 0 || s.HealthyStreak != 1 {
		t.Errorf("expected unhealthy=0 healthy=1, got %d %d", s.UnhealthyStreak, s.HealthyStreak)
	}

	s.Observe(det(models.StatusDown, 2*time.Minute))
	s.Observe(det(models.StatusDown, 2*time.Minute))
	if s.UnhealthyStreak != 1 {
		t.Errorf("repeated instant must not extend the streak, got %d", s.UnhealthyStreak)
	}
	if !s.StreakStart.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("unexpected streak start %v", s.StreakStart)
	}
}
