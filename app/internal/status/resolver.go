// Package status derives a monitor's health from its recent ticks.
//
// Resolve is a pure function: the same monitor, ticks and instant always
// yield the same Determination. Callers load the ticks covering
// Options.LookBack before the instant and pass them in any order.
package status

import (
	"sort"
	"time"

	"uptime/app/internal/models"
)

// Options tunes the resolver
type Options struct {
	// TicksPerValidator bounds how many recent ticks of each validator are considered
	TicksPerValidator int
	// LatencyFactor marks up as degraded when latency exceeds this multiple of
	// the rolling median. Zero disables the latency check.
	LatencyFactor float64
	// MinBaseline is the number of samples the rolling median needs
	MinBaseline int
	// BaselineWindow is how far back the rolling median looks
	BaselineWindow time.Duration
}

// DefaultOptions returns the standard resolver settings
func DefaultOptions() Options {
	return Options{
		TicksPerValidator: 3,
		LatencyFactor:     3.0,
		MinBaseline:       5,
		BaselineWindow:    time.Hour,
	}
}

// Window returns the voting window [at - 2*interval, at]
func Window(interval time.Duration, at time.Time) (from, to time.Time) {
	return at.Add(-2 * interval), at
}

// LookBack returns how much history before the instant Resolve needs
func (o Options) LookBack(interval time.Duration) time.Duration {
	lb := 2 * interval
	if o.LatencyFactor > 0 && o.BaselineWindow > lb {
		lb = o.BaselineWindow
	}
	return lb
}

// Resolve computes the status of m at instant at.
//
// Each validator with at least one tick in the window votes with its newest
// tick. A strict Good majority is up, a strict Bad majority is down, anything
// else is degraded. No votes at all is down. An administratively paused monitor
// is paused regardless of ticks.
func Resolve(m *models.Monitor, ticks []models.Tick, at time.Time, opt Options) models.Determination {
	if opt.TicksPerValidator <= 0 {
		opt.TicksPerValidator = 1
	}
	from, to := Window(m.Interval(), at)

	sorted := ticks
	if !sort.SliceIsSorted(sorted, func(i, j int) bool { return before(sorted[i], sorted[j]) }) {
		sorted = append([]models.Tick(nil), ticks...)
		models.SortTicks(sorted)
	}

	// Newest TicksPerValidator ticks of every validator inside the window
	perValidator := make(map[string][]models.Tick)
	for _, t := range sorted {
		if t.ObservedAt.Before(from) || t.ObservedAt.After(to) {
			continue
		}
		w := append(perValidator[t.ValidatorID], t)
		if len(w) > opt.TicksPerValidator {
			w = w[1:]
		}
		perValidator[t.ValidatorID] = w
	}

	d := models.Determination{At: at}

	var newestAny, newestGood, newestBad *models.Tick
	for _, w := range perValidator {
		vote := w[len(w)-1]
		newestAny = newer(newestAny, vote)
		if vote.Good() {
			d.Votes.Good++
			newestGood = newer(newestGood, vote)
		} else {
			d.Votes.Bad++
			newestBad = newer(newestBad, vote)
		}
	}

	if m.State == models.MonitorPaused {
		d.Status = models.StatusPaused
		setLast(&d, newestAny)
		return d
	}

	total := d.Votes.Good + d.Votes.Bad
	switch {
	case total == 0:
		d.Status = models.StatusDown
	case d.Votes.Good*2 > total:
		d.Status = models.StatusUp
		setLast(&d, newestGood)
		if opt.LatencyFactor > 0 && elevated(sorted, *newestGood, at, opt) {
			d.Status = models.StatusDegraded
		}
	case d.Votes.Bad*2 > total:
		d.Status = models.StatusDown
		setLast(&d, newestBad)
	default:
		d.Status = models.StatusDegraded
		setLast(&d, newestAny)
	}
	return d
}

// elevated reports whether the newest Good vote is slower than LatencyFactor
// times the median Good latency of [at - BaselineWindow, at).
func elevated(sorted []models.Tick, current models.Tick, at time.Time, opt Options) bool {
	baseFrom := at.Add(-opt.BaselineWindow)
	var baseline []int
	for _, t := range sorted {
		if t.ObservedAt.Before(baseFrom) || !t.ObservedAt.Before(at) {
			continue
		}
		if t.Good() && t.ID != current.ID {
			baseline = append(baseline, t.LatencyMs)
		}
	}
	if len(baseline) < opt.MinBaseline {
		return false
	}
	median := Median(baseline)
	if median <= 0 {
		return false
	}
	return float64(current.LatencyMs) > opt.LatencyFactor*median
}

// Median returns the median of values, or 0 for an empty slice
func Median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	v := append([]int(nil), values...)
	sort.Ints(v)
	mid := len(v) / 2
	if len(v)%2 == 1 {
		return float64(v[mid])
	}
	return float64(v[mid-1]+v[mid]) / 2
}

func before(a, b models.Tick) bool {
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.Before(b.ObservedAt)
	}
	return a.ID < b.ID
}

func newer(cur *models.Tick, t models.Tick) *models.Tick {
	if cur == nil || before(*cur, t) {
		return &t
	}
	return cur
}

func setLast(d *models.Determination, t *models.Tick) {
	if t == nil {
		return
	}
	d.LastLatencyMs = t.LatencyMs
	d.LastCheckedAt = t.ObservedAt
}
