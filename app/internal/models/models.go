package models

import (
	"sort"
	"time"
)

// TickStatus is the pass/fail outcome of a single probe
type TickStatus string

const (
	TickGood TickStatus = "Good"
	TickBad  TickStatus = "Bad"
)

// Valid reports whether s is one of the known tick outcomes
func (s TickStatus) Valid() bool {
	return s == TickGood || s == TickBad
}

// MonitorStatus is the derived health of a monitor. It is never stored.
type MonitorStatus string

const (
	StatusUp       MonitorStatus = "up"
	StatusDown     MonitorStatus = "down"
	StatusDegraded MonitorStatus = "degraded"
	StatusPaused   MonitorStatus = "paused"
)

// Healthy reports whether the status counts as healthy for incident purposes
func (s MonitorStatus) Healthy() bool {
	return s == StatusUp
}

// Unhealthy reports whether the status counts towards opening an incident
func (s MonitorStatus) Unhealthy() bool {
	return s == StatusDown || s == StatusDegraded
}

// MonitorState is the administrative lifecycle of a monitor
type MonitorState string

const (
	MonitorActive   MonitorState = "active"
	MonitorPaused   MonitorState = "paused"
	MonitorArchived MonitorState = "archived"
)

// Monitor represents an HTTP endpoint registered by a user
type Monitor struct {
	ID                  string       `json:"id"`
	OwnerID             string       `json:"owner_id"`
	URL                 string       `json:"url"`
	Name                string       `json:"name"`
	CheckIntervalS      int          `json:"check_interval_s"`
	ExpectedStatusCodes []int        `json:"expected_status_codes"`
	State               MonitorState `json:"state"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// DefaultCheckInterval applies when a monitor is registered without one
const DefaultCheckInterval = 60 * time.Second

// Interval returns the probe interval of the monitor
func (m *Monitor) Interval() time.Duration {
	if m.CheckIntervalS <= 0 {
		return DefaultCheckInterval
	}
	return time.Duration(m.CheckIntervalS) * time.Second
}

// Active reports whether ticks for the monitor feed status evaluation
func (m *Monitor) Active() bool {
	return m.State == MonitorActive
}

// Archived reports whether the monitor has been soft-deleted
func (m *Monitor) Archived() bool {
	return m.State == MonitorArchived
}

// Validator is an independent probing vantage point
type Validator struct {
	ID        string    `json:"id"`
	PublicKey string    `json:"public_key"`
	Location  string    `json:"location"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"created_at"`
}

// Tick is one probe result from one validator for one monitor at one instant
type Tick struct {
	ID          string     `json:"id"`
	MonitorID   string     `json:"monitor_id"`
	ValidatorID string     `json:"validator_id"`
	Status      TickStatus `json:"status"`
	LatencyMs   int        `json:"latency_ms"`
	ObservedAt  time.Time  `json:"observed_at"`
}

// Good reports whether the probe passed
func (t Tick) Good() bool {
	return t.Status == TickGood
}

// Determination is the output of a status evaluation at one instant
type Determination struct {
	Status        MonitorStatus `json:"status"`
	LastLatencyMs int           `json:"last_latency_ms"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	At            time.Time     `json:"at"`
	Votes         Votes         `json:"votes"`
}

// Votes summarises how validators voted in a determination
type Votes struct {
	Good int `json:"good"`
	Bad  int `json:"bad"`
}

// IncidentStatus is the lifecycle stage of an incident
type IncidentStatus string

const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
)

// Valid reports whether s is a known incident status
func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentInvestigating, IncidentIdentified, IncidentMonitoring, IncidentResolved:
		return true
	}
	return false
}

// Severity of an incident
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// Above reports whether s is more severe than other
func (s Severity) Above(other Severity) bool {
	return s.rank() > other.rank()
}

// Incident is a period during which a monitor was unhealthy
type Incident struct {
	ID         string           `json:"id"`
	MonitorID  string           `json:"monitor_id"`
	Title      string           `json:"title"`
	Severity   Severity         `json:"severity"`
	Status     IncidentStatus   `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
	Updates    []IncidentUpdate `json:"updates,omitempty"`
}

// Open reports whether the incident is not yet resolved
func (i *Incident) Open() bool {
	return i.Status != IncidentResolved
}

// Duration returns how long the incident lasted, using end for open incidents
func (i *Incident) Duration(end time.Time) time.Duration {
	if i.ResolvedAt != nil {
		end = *i.ResolvedAt
	}
	if end.Before(i.StartedAt) {
		return 0
	}
	return end.Sub(i.StartedAt)
}

// IncidentUpdate is an append-only audit note on an incident
type IncidentUpdate struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Message    string         `json:"message"`
	Status     IncidentStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}

// IncidentFilter narrows ListIncidents
type IncidentFilter struct {
	MonitorID string
	Status    IncidentStatus
	OpenOnly  bool
}

// EventType names an incident lifecycle event
type EventType string

const (
	EventIncidentOpened   EventType = "incident.opened"
	EventIncidentUpdated  EventType = "incident.updated"
	EventIncidentResolved EventType = "incident.resolved"
)

// IncidentEvent is emitted on every incident transition for downstream alerting
type IncidentEvent struct {
	Type      EventType       `json:"type"`
	Incident  Incident        `json:"incident"`
	Update    *IncidentUpdate `json:"update,omitempty"`
	Monitor   Monitor         `json:"monitor"`
	Status    MonitorStatus   `json:"monitor_status"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// AuditEntry is a row of the ingestion audit log
type AuditEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	MonitorID string    `json:"monitor_id"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
}

// SortTicks orders ticks by observedAt, then id, so windowed computations
// never depend on arrival order.
func SortTicks(ts []Tick) {
	if sort.SliceIsSorted(ts, func(i, j int) bool { return tickLess(ts[i], ts[j]) }) {
		return
	}
	sort.SliceStable(ts, func(i, j int) bool { return tickLess(ts[i], ts[j]) })
}

func tickLess(a, b Tick) bool {
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.Before(b.ObservedAt)
	}
	return a.ID < b.ID
}
