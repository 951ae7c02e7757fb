package stats

import (
	"strings"
	"time"

	"uptime/app/internal/models"
)

// Period is a calendar-aligned reporting range
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

const (
	dayBucket  = 5 * time.Minute
	hourBucket = time.Hour
	day        = 24 * time.Hour
)

// ParsePeriod accepts day, week or month (case-insensitive). Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", models.Invalid("period", "must be day, week or month")
}

// Range is a half-open [Start, End) span split into fixed buckets
type Range struct {
	Start  time.Time
	End    time.Time
	Bucket time.Duration
}

// Buckets returns the number of buckets in the range
func (r Range) Buckets() int {
	if r.Bucket <= 0 || !r.End.After(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start) / r.Bucket)
}

// Range returns the UTC calendar range of p containing now.
// Day is today; week and month are the last 7 and 30 whole days ending tonight.
func (p Period) Range(now time.Time) Range {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.Add(day)

	switch p {
	case PeriodWeek:
		return Range{Start: end.Add(-7 * day), End: end, Bucket: hourBucket}
	case PeriodMonth:
		return Range{Start: end.Add(-30 * day), End: end, Bucket: hourBucket}
	default:
		return Range{Start: today, End: end, Bucket: dayBucket}
	}
}

// UptimeWindow returns the part of the range that has already happened
func (r Range) UptimeWindow(now time.Time) (from, to time.Time) {
	to = r.End
	if now.Before(to) {
		to = now.UTC()
	}
	if to.Before(r.Start) {
		to = r.Start
	}
	return r.Start, to
}
