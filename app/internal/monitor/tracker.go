package monitor

import (
	"sync"
	"time"

	"uptime/app/internal/models"
)

// State is the evaluation state of one monitor. It is only touched while the
// monitor's lock is held.
type State struct {
	MonitorID     string
	LastEvaluated time.Time
	Last          models.Determination

	// Consecutive unhealthy and healthy determinations
	UnhealthyStreak int
	HealthyStreak   int
	// StreakStart is the instant of the first unhealthy determination of the current streak
	StreakStart time.Time
	// DownSince is the start of the current continuous down run
	DownSince time.Time

	before streaks
}

// streaks is the counter state before the latest determination
type streaks struct {
	unhealthy, healthy int
	start, downSince   time.Time
}

func (s *State) snapshot() streaks {
	return streaks{unhealthy: s.UnhealthyStreak, healthy: s.HealthyStreak, start: s.StreakStart, downSince: s.DownSince}
}

func (s *State) restore(b streaks) {
	s.UnhealthyStreak, s.HealthyStreak = b.unhealthy, b.healthy
	s.StreakStart, s.DownSince = b.start, b.downSince
}

// Observe folds a determination into the streak counters.
// Paused determinations reset both streaks. A second determination for the
// instant already evaluated replaces the first instead of extending a streak.
func (s *State) Observe(d models.Determination) {
	if !s.LastEvaluated.IsZero() && d.At.Equal(s.LastEvaluated) {
		s.restore(s.before)
	} else {
		s.before = s.snapshot()
	}

	switch {
	case d.Status.Unhealthy():
		if s.UnhealthyStreak == 0 {
			s.StreakStart = d.At
		}
		s.UnhealthyStreak++
		s.HealthyStreak = 0
	case d.Status.Healthy():
		s.HealthyStreak++
		s.UnhealthyStreak = 0
		s.StreakStart = time.Time{}
	default:
		s.ResetStreaks()
	}

	if d.Status == models.StatusDown {
		if s.DownSince.IsZero() {
			s.DownSince = d.At
		}
	} else {
		s.DownSince = time.Time{}
	}

	s.Last = d
	s.LastEvaluated = d.At
}

// ResetStreaks clears the debounce counters
func (s *State) ResetStreaks() {
	s.UnhealthyStreak = 0
	s.HealthyStreak = 0
	s.StreakStart = time.Time{}
	s.before = s.snapshot()
}

// DownFor returns how long the monitor has been continuously down at instant at
func (s *State) DownFor(at time.Time) time.Duration {
	if s.DownSince.IsZero() || at.Before(s.DownSince) {
		return 0
	}
	return at.Sub(s.DownSince)
}

type entry struct {
	mu    sync.Mutex
	state State
	refs  int // callers between acquire and release, guarded by Tracker.mu
}

// Tracker hands out per-monitor state guarded by a per-monitor lock.
// Different monitors never contend with each other.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTracker creates a new tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*entry),
	}
}

// acquire returns the entry for monitorID and pins it against Prune until release.
func (t *Tracker) acquire(monitorID string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[monitorID]
	if !ok {
		e = &entry{state: State{MonitorID: monitorID}}
		t.entries[monitorID] = e
	}
	e.refs++
	return e
}

func (t *Tracker) release(e *entry) {
	t.mu.Lock()
	e.refs--
	t.mu.Unlock()
}

// Lock acquires the monitor's lock and returns its state with the unlock func.
func (t *Tracker) Lock(monitorID string) (*State, func()) {
	e := t.acquire(monitorID)
	e.mu.Lock()
	return &e.state, func() {
		e.mu.Unlock()
		t.release(e)
	}
}

// Snapshot returns a copy of the monitor's state.
func (t *Tracker) Snapshot(monitorID string) State {
	e := t.acquire(monitorID)
	defer t.release(e)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reset clears the state of a monitor.
func (t *Tracker) Reset(monitorID string) {
	e := t.acquire(monitorID)
	defer t.release(e)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{MonitorID: monitorID}
}

// Prune removes entries for monitors that no longer exist. Entries somebody
// holds or waits on are left for the next prune.
func (t *Tracker) Prune(validIDs map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.entries {
		if _, ok := validIDs[id]; ok || e.refs > 0 {
			continue
		}
		delete(t.entries, id)
	}
}

// Len returns the number of tracked monitors.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
