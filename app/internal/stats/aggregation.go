package stats

import (
	"math"
	"time"

	"uptime/app/internal/models"
)

// Series downsamples ticks into the fixed buckets of r.
//
// A bucket's value is the mean latency of its Good ticks. Buckets without a
// Good tick and buckets starting after now are gaps; nothing is interpolated.
// Count is the number of ticks (Good and Bad) that fell into the bucket.
func Series(ticks []models.Tick, r Range, now time.Time) []Point {
	n := r.Buckets()
	if n == 0 {
		return nil
	}

	sums := make([]int64, n)
	goods := make([]int, n)
	counts := make([]int, n)
	for _, t := range ticks {
		if t.ObservedAt.Before(r.Start) || !t.ObservedAt.Before(r.End) {
			continue
		}
		idx := int(t.ObservedAt.Sub(r.Start) / r.Bucket)
		counts[idx]++
		if t.Good() {
			sums[idx] += int64(t.LatencyMs)
			goods[idx]++
		}
	}

	points := make([]Point, n)
	for i := range points {
		start := r.Start.Add(time.Duration(i) * r.Bucket)
		p := Point{BucketStart: start, Count: counts[i]}
		if goods[i] > 0 && !start.After(now) {
			v := math.Round(float64(sums[i])/float64(goods[i])*100) / 100
			p.Value = &v
		}
		points[i] = p
	}
	return points
}
