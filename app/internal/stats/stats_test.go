package stats

import (
	"fmt"
	"testing"
	"time"

	"uptime/app/internal/models"
)

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testMonitor() *models.Monitor {
	return &models.Monitor{ID: "m1", CheckIntervalS: 60, State: models.MonitorActive}
}

// minuteTicks returns one tick per minute for n minutes starting at from.
// Minutes listed in bad are Bad.
func minuteTicks(validator string, from time.Time, n int, bad ...int) []models.Tick {
	badSet := map[int]bool{}
	for _, b := range bad {
		badSet[b] = true
	}
	out := make([]models.Tick, 0, n)
	for i := 0; i < n; i++ {
		st := models.TickGood
		if badSet[i] {
			st = models.TickBad
		}
		out = append(out, models.Tick{
			ID:          fmt.Sprintf("%s-%04d", validator, i),
			MonitorID:   "m1",
			ValidatorID: validator,
			Status:      st,
			LatencyMs:   100,
			ObservedAt:  from.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

// --------------- Periods ---------------

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"": PeriodDay, "DAY": PeriodDay, "week": PeriodWeek, " month ": PeriodMonth} {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePeriod("year"); err == nil {
		t.Error("expected error for unknown period")
	}
}

func TestPeriodRange_StableEdges(t *testing.T) {
	a := PeriodDay.Range(day0.Add(9*time.Hour + 17*time.Minute + 3*time.Second))
	b := PeriodDay.Range(day0.Add(9*time.Hour + 17*time.Minute + 4*time.Second))
	if a != b {
		t.Errorf("day ranges one second apart differ: %+v vs %+v", a, b)
	}
	if !a.Start.Equal(day0) || !a.End.Equal(day0.Add(24*time.Hour)) {
		t.Errorf("unexpected day range %+v", a)
	}
	if a.Buckets() != 288 {
		t.Errorf("expected 288 buckets, got %d", a.Buckets())
	}

	late := PeriodDay.Range(day0.Add(23*time.Hour + 59*time.Minute))
	if late != a {
		t.Errorf("late-evening query should see the same day range")
	}
}

func TestPeriodRange_WeekMonth(t *testing.T) {
	now := day0.Add(15 * time.Hour)
	w := PeriodWeek.Range(now)
	if w.Buckets() != 168 || w.Bucket != time.Hour {
		t.Errorf("expected 168 hourly buckets, got %d of %v", w.Buckets(), w.Bucket)
	}
	if !w.End.Equal(day0.Add(24 * time.Hour)) {
		t.Errorf("week should end tonight, got %v", w.End)
	}
	m := PeriodMonth.Range(now)
	if m.Buckets() != 720 {
		t.Errorf("expected 720 hourly buckets, got %d", m.Buckets())
	}
}

func TestUptimeWindow_ClampsToNow(t *testing.T) {
	r := PeriodDay.Range(day0.Add(6 * time.Hour))
	from, to := r.UptimeWindow(day0.Add(6 * time.Hour))
	if !from.Equal(day0) || !to.Equal(day0.Add(6*time.Hour)) {
		t.Errorf("unexpected window %v - %v", from, to)
	}
	_, to = r.UptimeWindow(day0.Add(30 * time.Hour))
	if !to.Equal(r.End) {
		t.Errorf("window should end at the range end, got %v", to)
	}
}

// --------------- Uptime ---------------

func TestCalculate_NoTicks(t *testing.T) {
	st := Calculate(testMonitor(), nil, nil, day0, day0.Add(time.Hour))
	if st.Availability != 100 || st.DataComplete {
		t.Errorf("expected 100%% with dataComplete=false, got %+v", st)
	}
	if st.Downtime != 0 {
		t.Errorf("expected no downtime, got %v", st.Downtime)
	}
}

func TestCalculate_AllGoodDay(t *testing.T) {
	ticks := minuteTicks("v1", day0, 1440)
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(24*time.Hour))
	if st.Availability != 100.0 {
		t.Errorf("expected 100.0000, got %v", st.Availability)
	}
	if st.Downtime != 0 || !st.DataComplete || st.Ticks != 1440 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestCalculate_SingleBadTickFloorsToInterval(t *testing.T) {
	ticks := minuteTicks("v1", day0, 60, 30)
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != time.Minute {
		t.Errorf("expected downtime floored to 1m, got %v", st.Downtime)
	}
	if st.Availability != 98.3333 {
		t.Errorf("expected 98.3333, got %v", st.Availability)
	}
	if st.DowntimeSeconds != 60 {
		t.Errorf("expected 60 downtime seconds, got %v", st.DowntimeSeconds)
	}
}

func TestCalculate_BadRun(t *testing.T) {
	ticks := minuteTicks("v1", day0, 60, 10, 11, 12, 13, 14)
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != 4*time.Minute {
		t.Errorf("expected 4m downtime for a 5-tick run, got %v", st.Downtime)
	}
}

func TestCalculate_OutOfOrderTicks(t *testing.T) {
	ticks := minuteTicks("v1", day0, 60, 10, 11, 12, 13, 14)
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != 4*time.Minute {
		t.Errorf("arrival order must not matter, got %v", st.Downtime)
	}
}

func TestCalculate_SplitVoteIsNotDowntime(t *testing.T) {
	// v1 is always good, v2 is bad for ten minutes: a tie, so degraded not down
	ticks := append(minuteTicks("v1", day0, 60), minuteTicks("v2", day0, 60, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29)...)
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != 0 {
		t.Errorf("split votes must not count as downtime, got %v", st.Downtime)
	}
}

func TestCalculate_MajorityDownAcrossValidators(t *testing.T) {
	bad := []int{20, 21, 22, 23}
	ticks := append(minuteTicks("v1", day0, 60, bad...), minuteTicks("v2", day0, 60, bad...)...)
	ticks = append(ticks, minuteTicks("v3", day0, 60)...)
	st := Calculate(testMonitor(), ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != 3*time.Minute {
		t.Errorf("expected 3m downtime from 2-of-3 bad run, got %v", st.Downtime)
	}
}

func TestCalculate_PausedMonitorStillReportsHistory(t *testing.T) {
	m := testMonitor()
	m.State = models.MonitorPaused
	ticks := minuteTicks("v1", day0, 60, 10, 11, 12)
	st := Calculate(m, ticks, nil, day0, day0.Add(time.Hour))
	if st.Downtime != 2*time.Minute {
		t.Errorf("expected history to be replayed as active, got %v", st.Downtime)
	}
}

func TestCalculate_IncidentStats(t *testing.T) {
	from, to := day0, day0.Add(10*time.Hour)
	r1 := day0.Add(-30 * time.Minute)
	r2 := day0.Add(2 * time.Hour)
	incidents := []models.Incident{
		// Entirely before the window
		{ID: "a", StartedAt: day0.Add(-2 * time.Hour), ResolvedAt: &r1},
		// Straddles the start, 1h inside the window
		{ID: "b", StartedAt: day0.Add(-time.Hour), ResolvedAt: ptr(day0.Add(time.Hour))},
		// 30 minutes
		{ID: "c", StartedAt: day0.Add(90 * time.Minute), ResolvedAt: &r2},
		// Still open: clipped to window end, 2h
		{ID: "d", StartedAt: day0.Add(8 * time.Hour)},
	}
	st := Calculate(testMonitor(), nil, incidents, from, to)
	if st.Incidents != 3 {
		t.Errorf("expected 3 incidents in window, got %d", st.Incidents)
	}
	if st.LongestIncident != 2*time.Hour {
		t.Errorf("expected longest 2h, got %v", st.LongestIncident)
	}
	if st.AvgIncident != 70*time.Minute {
		t.Errorf("expected average 70m, got %v", st.AvgIncident)
	}
}

func ptr(t time.Time) *time.Time { return &t }

// --------------- Series ---------------

func TestSeries_MeanAndGaps(t *testing.T) {
	r := PeriodDay.Range(day0)
	ticks := []models.Tick{
		{ID: "a", ValidatorID: "v1", Status: models.TickGood, LatencyMs: 100, ObservedAt: day0.Add(1 * time.Minute)},
		{ID: "b", ValidatorID: "v2", Status: models.TickGood, LatencyMs: 201, ObservedAt: day0.Add(2 * time.Minute)},
		{ID: "c", ValidatorID: "v1", Status: models.TickBad, LatencyMs: 9000, ObservedAt: day0.Add(3 * time.Minute)},
		{ID: "d", ValidatorID: "v1", Status: models.TickBad, LatencyMs: 0, ObservedAt: day0.Add(6 * time.Minute)},
	}
	pts := Series(ticks, r, day0.Add(24*time.Hour))
	if len(pts) != 288 {
		t.Fatalf("expected 288 points, got %d", len(pts))
	}
	if pts[0].Gap() || *pts[0].Value != 150.5 {
		t.Errorf("expected mean 150.5 of good ticks, got %+v", pts[0])
	}
	if pts[0].Count != 3 {
		t.Errorf("expected 3 ticks in first bucket, got %d", pts[0].Count)
	}
	if !pts[1].Gap() || pts[1].Count != 1 {
		t.Errorf("bucket with only bad ticks should be a gap with count 1, got %+v", pts[1])
	}
	if !pts[2].Gap() || pts[2].Count != 0 {
		t.Errorf("empty bucket should be a gap, got %+v", pts[2])
	}
	for i := 1; i < len(pts); i++ {
		if !pts[i].BucketStart.After(pts[i-1].BucketStart) {
			t.Fatalf("points not ascending at %d", i)
		}
	}
}

func TestSeries_FutureBucketsAreGaps(t *testing.T) {
	r := PeriodDay.Range(day0)
	ticks := minuteTicks("v1", day0, 1440)
	pts := Series(ticks, r, day0.Add(time.Hour))
	if pts[0].Gap() {
		t.Error("past bucket should have a value")
	}
	// 13th bucket starts at 01:00, the 14th is in the future
	if pts[12].Gap() {
		t.Error("bucket starting at now should have a value")
	}
	if !pts[13].Gap() {
		t.Error("future bucket should be a gap")
	}
}

func TestSeries_StableAcrossQueries(t *testing.T) {
	ticks := minuteTicks("v1", day0, 600)
	a := Series(ticks, PeriodDay.Range(day0.Add(10*time.Hour)), day0.Add(10*time.Hour))
	b := Series(ticks, PeriodDay.Range(day0.Add(10*time.Hour+time.Second)), day0.Add(10*time.Hour+time.Second))
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].BucketStart.Equal(b[i].BucketStart) {
			t.Fatalf("bucket %d edges differ", i)
		}
	}
}
