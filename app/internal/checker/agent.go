package checker

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"uptime/app/internal/models"
)

// MonitorSource lists the monitors to probe
type MonitorSource interface {
	ListMonitors(ctx context.Context, ownerID string, includeArchived bool) ([]models.Monitor, error)
}

// IngestFunc hands a tick to the engine
type IngestFunc func(ctx context.Context, t models.Tick) error

// Agent is an in-process validator. It probes every active monitor once per
// check interval and ingests the results under its own validator id.
type Agent struct {
	ValidatorID string
	Source      MonitorSource
	Ingest      IngestFunc
	Client      *http.Client
	Concurrency int

	now       func() time.Time
	mu        sync.Mutex
	last      map[string]time.Time
	scheduler gocron.Scheduler
}

// NewAgent creates an agent with a per-probe timeout
func NewAgent(validatorID string, src MonitorSource, ingest IngestFunc, timeout time.Duration) *Agent {
	return &Agent{
		ValidatorID: validatorID,
		Source:      src,
		Ingest:      ingest,
		Client:      &http.Client{Timeout: timeout},
		Concurrency: 8,
		now:         time.Now,
		last:        make(map[string]time.Time),
	}
}

// due returns the active monitors whose interval has elapsed since their last probe
func (a *Agent) due(monitors []models.Monitor, now time.Time) []models.Monitor {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[string]bool, len(monitors))
	var out []models.Monitor
	for _, m := range monitors {
		seen[m.ID] = true
		if !m.Active() {
			continue
		}
		if last, ok := a.last[m.ID]; ok && now.Sub(last) < m.Interval() {
			continue
		}
		a.last[m.ID] = now
		out = append(out, m)
	}
	for id := range a.last {
		if !seen[id] {
			delete(a.last, id)
		}
	}
	return out
}

// RunDue probes the monitors that are due and returns how many were probed
func (a *Agent) RunDue(ctx context.Context) (int, error) {
	monitors, err := a.Source.ListMonitors(ctx, "", false)
	if err != nil {
		return 0, err
	}
	now := a.now().UTC()
	todo := a.due(monitors, now)

	var wg sync.WaitGroup
	sem := make(chan struct{}, max(a.Concurrency, 1))
	for _, m := range todo {
		wg.Add(1)
		go func(m models.Monitor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			a.probe(ctx, m)
		}(m)
	}
	wg.Wait()
	return len(todo), nil
}

func (a *Agent) probe(ctx context.Context, m models.Monitor) {
	res := Probe(ctx, a.Client, m)
	if res.Err != "" {
		log.Debug().Str("monitor_id", m.ID).Str("url", m.URL).Str("error", res.Err).Msg("[Checker] Probe failed")
	}
	t := models.Tick{
		ID:          uuid.NewString(),
		MonitorID:   m.ID,
		ValidatorID: a.ValidatorID,
		Status:      res.Status,
		LatencyMs:   res.LatencyMs,
		ObservedAt:  a.now().UTC(),
	}
	if err := a.Ingest(ctx, t); err != nil {
		log.Warn().Err(err).Str("monitor_id", m.ID).Msg("[Checker] Tick not ingested")
	}
}

// Start runs RunDue every `every` until Stop
func (a *Agent) Start(every time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), every+a.Client.Timeout)
			defer cancel()
			if _, err := a.RunDue(ctx); err != nil {
				log.Error().Err(err).Msg("[Checker] Probe round failed")
			}
		}),
		gocron.WithName("probe-monitors"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	sched.Start()
	a.scheduler = sched
	log.Info().Str("validator_id", a.ValidatorID).Dur("every", every).Msg("[Checker] Local validator started")
	return nil
}

// Stop shuts the scheduler down
func (a *Agent) Stop() {
	if a.scheduler == nil {
		return
	}
	if err := a.scheduler.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("[Checker] Scheduler shutdown")
	}
	a.scheduler = nil
}
