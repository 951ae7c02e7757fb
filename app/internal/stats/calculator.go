package stats

import (
	"math"
	"time"

	"uptime/app/internal/models"
	"uptime/app/internal/status"
)

// LeadIn returns how far before the window start ticks must be loaded so the
// first instants of the window see a full voting window.
func LeadIn(m *models.Monitor) time.Duration {
	return 2 * m.Interval()
}

// Calculate computes availability of m over [from, to].
//
// The status resolver is replayed at every distinct tick instant inside the
// window. Every maximal run of down determinations counts
// last-first instant as downtime, floored at one check interval. ticks may
// include the lead-in before from and may be in any order.
func Calculate(m *models.Monitor, ticks []models.Tick, incidents []models.Incident, from, to time.Time) UptimeStats {
	st := UptimeStats{
		MonitorID:    m.ID,
		WindowStart:  from,
		WindowEnd:    to,
		Availability: 100,
	}
	window := to.Sub(from)

	sorted := append([]models.Tick(nil), ticks...)
	models.SortTicks(sorted)

	st.Downtime, st.Ticks = downtime(m, sorted, from, to)
	if st.Downtime > window {
		st.Downtime = window
	}
	st.DataComplete = st.Ticks > 0

	if st.DataComplete && window > 0 {
		st.Availability = round4(float64(window-st.Downtime) / float64(window) * 100)
	}

	st.Incidents, st.LongestIncident, st.AvgIncident = incidentStats(incidents, from, to)
	st.fillSeconds()
	return st
}

// downtime replays the resolver over sorted ticks and returns the accumulated
// downtime and the number of ticks inside the window.
func downtime(m *models.Monitor, sorted []models.Tick, from, to time.Time) (time.Duration, int) {
	// History replay ignores the current administrative state and latency
	replay := *m
	replay.State = models.MonitorActive
	opt := status.DefaultOptions()
	opt.LatencyFactor = 0

	interval := m.Interval()
	lead := 2 * interval

	var (
		total    time.Duration
		count    int
		inRun    bool
		runStart time.Time
		runEnd   time.Time
		lo       int
		lastAt   time.Time
	)
	closeRun := func() {
		if !inRun {
			return
		}
		d := runEnd.Sub(runStart)
		if d < interval {
			d = interval
		}
		total += d
		inRun = false
	}

	for i := 0; i < len(sorted); i++ {
		at := sorted[i].ObservedAt
		if at.Before(from) || at.After(to) {
			continue
		}
		count++
		if !lastAt.IsZero() && at.Equal(lastAt) {
			continue
		}
		lastAt = at

		// Include every tick sharing this instant
		hi := i + 1
		for hi < len(sorted) && sorted[hi].ObservedAt.Equal(at) {
			hi++
		}
		for lo < i && sorted[lo].ObservedAt.Before(at.Add(-lead)) {
			lo++
		}

		d := status.Resolve(&replay, sorted[lo:hi], at, opt)
		if d.Status == models.StatusDown {
			if !inRun {
				inRun = true
				runStart = at
			}
			runEnd = at
		} else {
			closeRun()
		}
	}
	closeRun()
	return total, count
}

// incidentStats counts incidents intersecting [from, to] and returns the longest
// and average duration, each clipped to the window.
func incidentStats(incidents []models.Incident, from, to time.Time) (int, time.Duration, time.Duration) {
	var (
		n       int
		longest time.Duration
		sum     time.Duration
	)
	for _, inc := range incidents {
		end := to
		if inc.ResolvedAt != nil {
			end = *inc.ResolvedAt
		}
		if inc.StartedAt.After(to) || end.Before(from) {
			continue
		}
		start := inc.StartedAt
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		d := end.Sub(start)
		if d < 0 {
			d = 0
		}
		n++
		sum += d
		if d > longest {
			longest = d
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	return n, longest, sum / time.Duration(n)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
