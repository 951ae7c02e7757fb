package stats

import "time"

// UptimeStats is the availability report for one monitor over one window
type UptimeStats struct {
	MonitorID       string        `json:"monitor_id"`
	Period          Period        `json:"period,omitempty"`
	WindowStart     time.Time     `json:"window_start"`
	WindowEnd       time.Time     `json:"window_end"`
	Availability    float64       `json:"availability"`
	Downtime        time.Duration `json:"-"`
	Incidents       int           `json:"incidents"`
	LongestIncident time.Duration `json:"-"`
	AvgIncident     time.Duration `json:"-"`
	DataComplete    bool          `json:"data_complete"`
	Ticks           int           `json:"ticks"`

	DowntimeSeconds        float64 `json:"downtime_seconds"`
	LongestIncidentSeconds float64 `json:"longest_incident_seconds"`
	AvgIncidentSeconds     float64 `json:"avg_incident_seconds"`
}

func (s *UptimeStats) fillSeconds() {
	s.DowntimeSeconds = s.Downtime.Seconds()
	s.LongestIncidentSeconds = s.LongestIncident.Seconds()
	s.AvgIncidentSeconds = s.AvgIncident.Seconds()
}

// Point is one bucket of a latency series. A nil Value is a gap.
type Point struct {
	BucketStart time.Time `json:"bucket_start"`
	Value       *float64  `json:"value"`
	Count       int       `json:"count"`
}

// Gap reports whether the bucket carries no value
func (p Point) Gap() bool {
	return p.Value == nil
}
