package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/status"
)

// IngestResult reports what an accepted tick did
type IngestResult struct {
	Tick          models.Tick            `json:"tick"`
	Determination models.Determination   `json:"determination"`
	Evaluated     bool                   `json:"evaluated"`
	Events        []models.IncidentEvent `json:"events,omitempty"`
}

// Ingest validates, stores and evaluates one tick.
//
// When Ingest returns without error the tick is stored and the monitor's
// status and incidents reflect it. A tick older than the monitor's last
// evaluated instant is stored but does not feed the debounce counters.
// Ticks of one monitor are serialized; different monitors run in parallel.
func (e *Engine) Ingest(ctx context.Context, t models.Tick) (*IngestResult, error) {
	done := e.shedder.Begin()
	defer done()

	if _, err := e.ticks.Validate(ctx, &t); err != nil {
		e.reject(ctx, t, err)
		return nil, err
	}

	st, unlock := e.tracker.Lock(t.MonitorID)
	defer unlock()

	// Validated again under the lock so a concurrent archive cannot slip in
	mon, err := e.ticks.Append(ctx, &t)
	if err != nil {
		e.reject(ctx, t, err)
		return nil, err
	}
	e.invalidate(mon.ID)

	res := &IngestResult{Tick: t}
	if !st.LastEvaluated.IsZero() && t.ObservedAt.Before(st.LastEvaluated) {
		res.Determination = st.Last
		log.Debug().Str("monitor_id", mon.ID).Str("validator_id", t.ValidatorID).
			Time("observed_at", t.ObservedAt).Time("last_evaluated", st.LastEvaluated).
			Msg("[Ingest] Late tick stored without re-evaluation")
		return res, nil
	}

	at := t.ObservedAt
	latest, ok, err := e.ticks.Latest(ctx, mon.ID)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", mon.ID, err)
	}
	if ok && latest.ObservedAt.After(at) {
		at = latest.ObservedAt
	}

	d, err := e.resolve(ctx, mon, at)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", mon.ID, err)
	}

	prev := st.Last
	st.Observe(d)

	events, err := e.incidents.Evaluate(ctx, mon, st, d)
	if err != nil {
		log.Error().Err(err).Str("monitor_id", mon.ID).Msg("[Ingest] Incident evaluation failed")
		return nil, fmt.Errorf("incident evaluation %s: %w", mon.ID, err)
	}

	if prev.Status != d.Status {
		log.Info().Str("monitor_id", mon.ID).Str("from", string(prev.Status)).Str("to", string(d.Status)).
			Int("good", d.Votes.Good).Int("bad", d.Votes.Bad).Msg("[Ingest] Status changed")
		e.pub.PublishStatus(*mon, d)
	}
	for _, ev := range events {
		e.audit(ctx, database.LogLevelInfo, database.LogCategoryIncident, mon.ID,
			string(ev.Type)+": "+ev.Incident.Title, "incident_id="+ev.Incident.ID+" severity="+string(ev.Incident.Severity))
	}
	e.publish(events)

	res.Determination = d
	res.Evaluated = true
	res.Events = events
	return res, nil
}

// reject logs and audits a tick that was not stored
func (e *Engine) reject(ctx context.Context, t models.Tick, err error) {
	level := database.LogLevelWarn
	if !errors.Is(err, models.ErrValidation) && !errors.Is(err, models.ErrDuplicateTick) {
		level = database.LogLevelError
	}
	log.Warn().Err(err).Str("monitor_id", t.MonitorID).Str("validator_id", t.ValidatorID).
		Str("tick_id", t.ID).Msg("[Ingest] Tick rejected")
	e.audit(ctx, level, database.LogCategoryIngest, t.MonitorID, "tick rejected: "+err.Error(),
		fmt.Sprintf("tick_id=%s validator_id=%s observed_at=%s", t.ID, t.ValidatorID, t.ObservedAt.Format(time.RFC3339Nano)))
}

// resolve evaluates the status of mon at instant at from stored ticks
func (e *Engine) resolve(ctx context.Context, mon *models.Monitor, at time.Time) (models.Determination, error) {
	from := at.Add(-e.cfg.Status.LookBack(mon.Interval()))
	window, err := e.ticks.Query(ctx, mon.ID, from, at)
	if err != nil {
		return models.Determination{}, err
	}
	return status.Resolve(mon, window, at, e.cfg.Status), nil
}

// IngestBatch ingests ticks grouped by monitor. Groups run in parallel and each
// group is applied in observedAt order. The returned slice holds one error per
// input tick, nil for accepted ticks; one bad tick never affects another.
func (e *Engine) IngestBatch(ctx context.Context, batch []models.Tick) []error {
	errs := make([]error, len(batch))

	groups := make(map[string][]int)
	for i, t := range batch {
		key := strings.TrimSpace(t.MonitorID)
		groups[key] = append(groups[key], i)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0)*2)
	for _, idxs := range groups {
		sort.SliceStable(idxs, func(a, b int) bool {
			return batch[idxs[a]].ObservedAt.Before(batch[idxs[b]].ObservedAt)
		})

		wg.Add(1)
		go func(idxs []int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			for _, i := range idxs {
				_, errs[i] = e.Ingest(ctx, batch[i])
			}
		}(idxs)
	}
	wg.Wait()

	return errs
}
