// Package engine wires tick ingestion to status resolution and incident
// detection, and answers the read queries built on top of them.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"uptime/app/internal/cache"
	"uptime/app/internal/database"
	"uptime/app/internal/incident"
	"uptime/app/internal/models"
	"uptime/app/internal/monitor"
	"uptime/app/internal/ratelimit"
	"uptime/app/internal/status"
	"uptime/app/internal/ticks"
)

// Config tunes the engine
type Config struct {
	Status    status.Options
	Incident  incident.Config
	ClockSkew time.Duration
	// MinCheckInterval is the smallest interval a monitor may be registered with
	MinCheckInterval time.Duration
}

// DefaultConfig returns the standard engine settings
func DefaultConfig() Config {
	return Config{
		Status:           status.DefaultOptions(),
		Incident:         incident.DefaultConfig(),
		ClockSkew:        ticks.DefaultClockSkew,
		MinCheckInterval: 10 * time.Second,
	}
}

// Publisher receives incident transitions and status changes.
// Calls must not block; delivery is fire-and-forget.
type Publisher interface {
	PublishIncident(ev models.IncidentEvent)
	PublishStatus(mon models.Monitor, d models.Determination)
}

type nopPublisher struct{}

func (nopPublisher) PublishIncident(models.IncidentEvent) {}
func (nopPublisher) PublishStatus(models.Monitor, models.Determination) {}

// Engine is the uptime aggregation and incident detection core
type Engine struct {
	db        *database.Store
	ticks     *ticks.Store
	tracker   *monitor.Tracker
	incidents *incident.Machine
	cache     *cache.Cache
	shedder   *ratelimit.Shedder
	pub       Publisher
	cfg       Config
	now       func() time.Time
}

// Option customises an Engine
type Option func(*Engine)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher sets the downstream event publisher
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.pub = p
		}
	}
}

// WithCache sets the read cache. Without one every read is computed.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithShedder sets the registration shedder
func WithShedder(s *ratelimit.Shedder) Option {
	return func(e *Engine) {
		if s != nil {
			e.shedder = s
		}
	}
}

// New creates an engine over db
func New(db *database.Store, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		tracker: monitor.NewTracker(),
		shedder: ratelimit.NewShedder(nil, 0),
		pub:     nopPublisher{},
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	clock := func() time.Time { return e.now().UTC() }
	e.ticks = ticks.New(db, cfg.ClockSkew, clock)
	e.incidents = incident.New(db, cfg.Incident)
	return e
}

// Now returns the engine clock in UTC
func (e *Engine) Now() time.Time {
	return e.now().UTC()
}

// Tracker exposes per-monitor state for maintenance jobs
func (e *Engine) Tracker() *monitor.Tracker {
	return e.tracker
}

// Store returns the underlying database store
func (e *Engine) Store() *database.Store {
	return e.db
}

func (e *Engine) invalidate(monitorID string) {
	if e.cache != nil {
		e.cache.InvalidateMonitor(monitorID)
	}
}

// audit writes an audit row; failures are logged and otherwise ignored
func (e *Engine) audit(ctx context.Context, level, category, monitorID, message, details string) {
	if err := e.db.InsertAudit(ctx, e.Now(), level, category, monitorID, message, details); err != nil {
		log.Error().Err(err).Str("category", category).Msg("[Audit] Failed to write audit entry")
	}
}

func (e *Engine) publish(events []models.IncidentEvent) {
	for _, ev := range events {
		e.pub.PublishIncident(ev)
	}
}
