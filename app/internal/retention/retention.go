// Package retention prunes raw ticks, the audit log and idle monitor state on a schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"uptime/app/internal/database"
	"uptime/app/internal/monitor"
)

// MinTickRetention keeps every tick the month window and its lead-in can read
const MinTickRetention = 31 * 24 * time.Hour

// Config controls what is kept
type Config struct {
	TickRetention time.Duration
	AuditKeep     int
}

// DefaultConfig keeps 35 days of ticks and the newest 10000 audit rows
func DefaultConfig() Config {
	return Config{TickRetention: 35 * 24 * time.Hour, AuditKeep: 10000}
}

// Service runs the pruning jobs
type Service struct {
	db        *database.Store
	tracker   *monitor.Tracker
	cfg       Config
	now       func() time.Time
	scheduler gocron.Scheduler
}

// New creates a retention service. now defaults to time.Now.
func New(db *database.Store, tracker *monitor.Tracker, cfg Config, now func() time.Time) *Service {
	if cfg.TickRetention < MinTickRetention {
		cfg.TickRetention = MinTickRetention
	}
	if cfg.AuditKeep <= 0 {
		cfg.AuditKeep = DefaultConfig().AuditKeep
	}
	if now == nil {
		now = time.Now
	}
	return &Service{db: db, tracker: tracker, cfg: cfg, now: now}
}

// PruneTicks removes ticks older than the retention period
func (s *Service) PruneTicks(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.cfg.TickRetention)
	n, err := s.db.DeleteTicksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("[Retention] Pruned ticks")
		s.record(ctx, fmt.Sprintf("pruned %d ticks", n), "cutoff="+cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// PruneAudit trims the audit log to the newest AuditKeep entries
func (s *Service) PruneAudit(ctx context.Context) (int64, error) {
	n, err := s.db.PruneAudit(ctx, s.cfg.AuditKeep)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("deleted", n).Int("keep", s.cfg.AuditKeep).Msg("[Retention] Pruned audit log")
	}
	return n, nil
}

// PruneTracker drops in-memory state of monitors that are archived or gone
func (s *Service) PruneTracker(ctx context.Context) (int, error) {
	monitors, err := s.db.ListMonitors(ctx, "", false)
	if err != nil {
		return 0, err
	}
	valid := make(map[string]struct{}, len(monitors))
	for _, m := range monitors {
		valid[m.ID] = struct{}{}
	}
	before := s.tracker.Len()
	s.tracker.Prune(valid)
	removed := before - s.tracker.Len()
	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("[Retention] Pruned monitor state")
	}
	return removed, nil
}

func (s *Service) record(ctx context.Context, message, details string) {
	if err := s.db.InsertAudit(ctx, s.now().UTC(), database.LogLevelInfo, database.LogCategoryRetention, "", message, details); err != nil {
		log.Error().Err(err).Msg("[Retention] Failed to write audit entry")
	}
}

// Start schedules the jobs: ticks daily at 03:00 UTC, the audit log hourly and
// monitor state every 10 minutes.
func (s *Service) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	jobs := []struct {
		name string
		def  gocron.JobDefinition
		run  func(context.Context) error
	}{
		{"prune-ticks", gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))), func(ctx context.Context) error {
			_, err := s.PruneTicks(ctx)
			return err
		}},
		{"prune-audit", gocron.DurationJob(time.Hour), func(ctx context.Context) error {
			_, err := s.PruneAudit(ctx)
			return err
		}},
		{"prune-tracker", gocron.DurationJob(10 * time.Minute), func(ctx context.Context) error {
			_, err := s.PruneTracker(ctx)
			return err
		}},
	}

	for _, j := range jobs {
		name, run := j.name, j.run
		_, err := sched.NewJob(j.def,
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if err := run(ctx); err != nil {
					log.Error().Err(err).Str("job", name).Msg("[Retention] Job failed")
				}
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("schedule %s: %w", name, err)
		}
	}

	sched.Start()
	s.scheduler = sched
	log.Info().Dur("tick_retention", s.cfg.TickRetention).Int("audit_keep", s.cfg.AuditKeep).Msg("[Retention] Scheduler started")
	return nil
}

// Stop shuts the scheduler down
func (s *Service) Stop() {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("[Retention] Scheduler shutdown")
	}
	s.scheduler = nil
}
