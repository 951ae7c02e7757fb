package engine

import (
	"context"
	"math"

	"uptime/app/internal/models"
)

// Summary is the dashboard overview of an owner's monitors
type Summary struct {
	TotalMonitors   int                          `json:"total_monitors"`
	ByStatus        map[models.MonitorStatus]int `json:"by_status"`
	ActiveIncidents int                          `json:"active_incidents"`
	AvgLatencyMs    float64                      `json:"avg_latency_ms"`
}

// GetSummary aggregates current status over the non-archived monitors of ownerID
func (e *Engine) GetSummary(ctx context.Context, ownerID string) (Summary, error) {
	monitors, err := e.db.ListMonitors(ctx, ownerID, false)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		TotalMonitors: len(monitors),
		ByStatus: map[models.MonitorStatus]int{
			models.StatusUp:       0,
			models.StatusDown:     0,
			models.StatusDegraded: 0,
			models.StatusPaused:   0,
		},
	}

	var latencyTotal, latencyCount int
	for _, m := range monitors {
		view, err := e.GetStatus(ctx, m.ID)
		if err != nil {
			return Summary{}, err
		}
		sum.ByStatus[view.Status]++

		latest, ok, err := e.ticks.Latest(ctx, m.ID)
		if err != nil {
			return Summary{}, err
		}
		if ok && latest.Good() {
			latencyTotal += latest.LatencyMs
			latencyCount++
		}

		open, err := e.db.OpenIncident(ctx, m.ID)
		if err != nil {
			return Summary{}, err
		}
		if open != nil {
			sum.ActiveIncidents++
		}
	}

	if latencyCount > 0 {
		sum.AvgLatencyMs = math.Round(float64(latencyTotal)/float64(latencyCount)*100) / 100
	}
	return sum, nil
}
