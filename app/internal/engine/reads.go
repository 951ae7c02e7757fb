package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"uptime/app/internal/cache"
	"uptime/app/internal/database"
	"uptime/app/internal/models"
	"uptime/app/internal/stats"
)

// StatusView is the current health of a monitor
type StatusView struct {
	MonitorID     string               `json:"monitor_id"`
	Status        models.MonitorStatus `json:"status"`
	LastLatencyMs int                  `json:"last_latency_ms"`
	LastCheckedAt *time.Time           `json:"last_checked_at"`
	Votes         models.Votes         `json:"votes"`
}

// GetStatus evaluates the monitor at max(now, newest observedAt). Repeated
// calls without a new tick return the same view.
func (e *Engine) GetStatus(ctx context.Context, monitorID string) (StatusView, error) {
	return cache.Fetch(e.cache, monitorID, "status", func() (StatusView, error) {
		mon, err := e.db.GetMonitor(ctx, monitorID)
		if err != nil {
			return StatusView{}, err
		}
		if mon.Archived() {
			mon.State = models.MonitorPaused
		}

		latest, ok, err := e.ticks.Latest(ctx, monitorID)
		if err != nil {
			return StatusView{}, err
		}
		at := e.Now()
		if ok && latest.ObservedAt.After(at) {
			at = latest.ObservedAt
		}

		d, err := e.resolve(ctx, mon, at)
		if err != nil {
			return StatusView{}, err
		}

		view := StatusView{
			MonitorID:     monitorID,
			Status:        d.Status,
			LastLatencyMs: d.LastLatencyMs,
			Votes:         d.Votes,
		}
		switch {
		case !d.LastCheckedAt.IsZero():
			checked := d.LastCheckedAt
			view.LastCheckedAt = &checked
		case ok:
			// Nothing voted, report the last evidence we have
			checked := latest.ObservedAt
			view.LastCheckedAt = &checked
			view.LastLatencyMs = latest.LatencyMs
		}
		return view, nil
	})
}

// GetUptimeStats reports availability over the calendar period containing now.
// A window without ticks is reported with DataComplete false, not as an error.
func (e *Engine) GetUptimeStats(ctx context.Context, monitorID, period string) (stats.UptimeStats, error) {
	p, err := stats.ParsePeriod(period)
	if err != nil {
		return stats.UptimeStats{}, err
	}
	return cache.Fetch(e.cache, monitorID, cache.View("uptime", string(p)), func() (stats.UptimeStats, error) {
		now := e.Now()
		from, to := p.Range(now).UptimeWindow(now)
		st, err := e.uptime(ctx, monitorID, from, to)
		if err != nil {
			return stats.UptimeStats{}, err
		}
		st.Period = p
		return st, nil
	})
}

// UptimeBetween reports availability over an arbitrary [from, to] window
func (e *Engine) UptimeBetween(ctx context.Context, monitorID string, from, to time.Time) (stats.UptimeStats, error) {
	if to.Before(from) {
		return stats.UptimeStats{}, models.Invalid("window", "end before start")
	}
	return e.uptime(ctx, monitorID, from.UTC(), to.UTC())
}

func (e *Engine) uptime(ctx context.Context, monitorID string, from, to time.Time) (stats.UptimeStats, error) {
	mon, err := e.db.GetMonitor(ctx, monitorID)
	if err != nil {
		return stats.UptimeStats{}, err
	}
	ts, err := e.ticks.Query(ctx, monitorID, from.Add(-stats.LeadIn(mon)), to)
	if err != nil {
		return stats.UptimeStats{}, err
	}
	incidents, err := e.db.IncidentsInWindow(ctx, monitorID, from, to)
	if err != nil {
		return stats.UptimeStats{}, err
	}
	return stats.Calculate(mon, ts, incidents, from, to), nil
}

// GetTimeSeries downsamples latency into the buckets of period. With a
// location only ticks from validators there are used; a location without
// validators yields a series of gaps.
func (e *Engine) GetTimeSeries(ctx context.Context, monitorID, period, location string) ([]stats.Point, error) {
	p, err := stats.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	view := cache.View("series", string(p), location)
	return cache.Fetch(e.cache, monitorID, view, func() ([]stats.Point, error) {
		if _, err := e.db.GetMonitor(ctx, monitorID); err != nil {
			return nil, err
		}
		now := e.Now()
		r := p.Range(now)

		var ts []models.Tick
		if location == "" {
			ts, err = e.ticks.Query(ctx, monitorID, r.Start, r.End)
		} else {
			ts, err = e.ticksAt(ctx, monitorID, location, r)
		}
		if err != nil {
			return nil, err
		}
		return stats.Series(ts, r, now), nil
	})
}

func (e *Engine) ticksAt(ctx context.Context, monitorID, location string, r stats.Range) ([]models.Tick, error) {
	validators, err := e.db.ListValidators(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(validators) == 0 {
		return nil, nil
	}
	ids := make([]string, len(validators))
	for i, v := range validators {
		ids[i] = v.ID
	}
	return e.ticks.Query(ctx, monitorID, r.Start, r.End, ids...)
}

// ListIncidents returns incidents newest first
func (e *Engine) ListIncidents(ctx context.Context, f models.IncidentFilter) ([]models.Incident, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, models.Invalid("status", "unknown incident status "+string(f.Status))
	}
	return e.db.ListIncidents(ctx, f)
}

// GetIncident returns an incident with its updates in order
func (e *Engine) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	return e.db.GetIncident(ctx, id)
}

// AnnotateIncident applies an operator status change or note. A manual
// resolve also restarts the monitor's debounce counters so the next unhealthy
// streak opens a fresh incident.
func (e *Engine) AnnotateIncident(ctx context.Context, incidentID string, status models.IncidentStatus, message string) (*models.Incident, error) {
	inc, err := e.db.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	st, unlock := e.tracker.Lock(inc.MonitorID)
	defer unlock()

	updated, ev, err := e.incidents.Annotate(ctx, incidentID, status, message, e.Now())
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return updated, nil
	}

	if ev.Type == models.EventIncidentResolved {
		st.ResetStreaks()
	}
	e.invalidate(inc.MonitorID)

	mon, err := e.db.GetMonitor(ctx, inc.MonitorID)
	if err != nil {
		log.Warn().Err(err).Str("incident_id", incidentID).Msg("[Incident] Monitor lookup for event failed")
	} else {
		ev.Monitor = *mon
	}
	ev.Status = st.Last.Status

	e.audit(ctx, database.LogLevelInfo, database.LogCategoryIncident, inc.MonitorID,
		fmt.Sprintf("incident annotated: %s", status), "incident_id="+incidentID)
	e.publish([]models.IncidentEvent{*ev})
	return updated, nil
}
