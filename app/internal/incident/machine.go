// Package incident opens, escalates, annotates and resolves incidents from
// status determinations and operator actions.
package incident

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"uptime/app/internal/models"
	"uptime/app/internal/monitor"
)

// Config holds the debounce and escalation settings
type Config struct {
	UnhealthyDebounce int
	HealthyDebounce   int
	CriticalAfter     time.Duration
}

// DefaultConfig returns 2/2 debounce and critical after 30 minutes down
func DefaultConfig() Config {
	return Config{
		UnhealthyDebounce: 2,
		HealthyDebounce:   2,
		CriticalAfter:     30 * time.Minute,
	}
}

// Store persists incidents. *database.Store satisfies it.
type Store interface {
	OpenIncident(ctx context.Context, monitorID string) (*models.Incident, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	CreateIncident(ctx context.Context, inc *models.Incident, first *models.IncidentUpdate) error
	SaveIncident(ctx context.Context, inc *models.Incident, upd *models.IncidentUpdate) error
}

// Machine is the incident state machine. Calls for one monitor must be
// serialized by the caller.
type Machine struct {
	store Store
	cfg   Config
}

// New creates a state machine
func New(store Store, cfg Config) *Machine {
	if cfg.UnhealthyDebounce < 1 {
		cfg.UnhealthyDebounce = 1
	}
	if cfg.HealthyDebounce < 1 {
		cfg.HealthyDebounce = 1
	}
	return &Machine{store: store, cfg: cfg}
}

// Evaluate applies a determination that has already been folded into st.
// It opens an incident after UnhealthyDebounce unhealthy determinations,
// escalates the open incident's severity, and resolves it after
// HealthyDebounce healthy determinations. An unhealthy determination while an
// incident is open never opens a second one.
func (m *Machine) Evaluate(ctx context.Context, mon *models.Monitor, st *monitor.State, d models.Determination) ([]models.IncidentEvent, error) {
	open, err := m.store.OpenIncident(ctx, mon.ID)
	if err != nil {
		return nil, err
	}

	if open == nil {
		if !d.Status.Unhealthy() || st.UnhealthyStreak < m.cfg.UnhealthyDebounce {
			return nil, nil
		}
		ev, err := m.open(ctx, mon, st, d)
		if err != nil {
			return nil, err
		}
		return []models.IncidentEvent{ev}, nil
	}

	switch {
	case d.Status.Unhealthy():
		sev := m.severity(d.Status, st.DownFor(d.At))
		if !sev.Above(open.Severity) {
			return nil, nil
		}
		prev := open.Severity
		open.Severity = sev
		if err := m.store.SaveIncident(ctx, open, nil); err != nil {
			return nil, err
		}
		log.Info().Str("monitor_id", mon.ID).Str("incident_id", open.ID).
			Str("from", string(prev)).Str("to", string(sev)).
			Msg("[Incident] Severity escalated")
		return []models.IncidentEvent{event(models.EventIncidentUpdated, open, nil, mon, d)}, nil

	case d.Status.Healthy() && st.HealthyStreak >= m.cfg.HealthyDebounce:
		upd, err := m.resolve(ctx, open, fmt.Sprintf("%s recovered and has been up for %d consecutive checks", mon.Name, st.HealthyStreak), d.At)
		if err != nil {
			return nil, err
		}
		log.Info().Str("monitor_id", mon.ID).Str("incident_id", open.ID).
			Dur("duration", open.Duration(d.At)).
			Msg("[Incident] Resolved automatically")
		return []models.IncidentEvent{event(models.EventIncidentResolved, open, upd, mon, d)}, nil
	}
	return nil, nil
}

func (m *Machine) open(ctx context.Context, mon *models.Monitor, st *monitor.State, d models.Determination) (models.IncidentEvent, error) {
	started := st.StreakStart
	if started.IsZero() {
		started = d.At
	}
	inc := &models.Incident{
		ID:        uuid.NewString(),
		MonitorID: mon.ID,
		Title:     fmt.Sprintf("%s is %s", mon.Name, d.Status),
		Severity:  m.severity(d.Status, st.DownFor(d.At)),
		Status:    models.IncidentInvestigating,
		StartedAt: started,
	}
	upd := &models.IncidentUpdate{
		ID:         uuid.NewString(),
		IncidentID: inc.ID,
		Message: fmt.Sprintf("%s reported %s for %d consecutive checks (%d good, %d bad votes)",
			mon.Name, d.Status, st.UnhealthyStreak, d.Votes.Good, d.Votes.Bad),
		Status:    models.IncidentInvestigating,
		CreatedAt: d.At,
	}
	if err := m.store.CreateIncident(ctx, inc, upd); err != nil {
		return models.IncidentEvent{}, err
	}
	inc.Updates = []models.IncidentUpdate{*upd}

	log.Info().Str("monitor_id", mon.ID).Str("incident_id", inc.ID).
		Str("severity", string(inc.Severity)).Str("status", string(d.Status)).
		Msg("[Incident] Opened")
	return event(models.EventIncidentOpened, inc, upd, mon, d), nil
}

func (m *Machine) resolve(ctx context.Context, inc *models.Incident, message string, at time.Time) (*models.IncidentUpdate, error) {
	if at.Before(inc.StartedAt) {
		at = inc.StartedAt
	}
	inc.Status = models.IncidentResolved
	inc.ResolvedAt = &at
	upd := &models.IncidentUpdate{
		ID:         uuid.NewString(),
		IncidentID: inc.ID,
		Message:    message,
		Status:     models.IncidentResolved,
		CreatedAt:  at,
	}
	if err := m.store.SaveIncident(ctx, inc, upd); err != nil {
		return nil, err
	}
	return upd, nil
}

// severity maps a status and how long it has been down to a severity
func (m *Machine) severity(s models.MonitorStatus, downFor time.Duration) models.Severity {
	if s != models.StatusDown {
		return models.SeverityMinor
	}
	if m.cfg.CriticalAfter > 0 && downFor >= m.cfg.CriticalAfter {
		return models.SeverityCritical
	}
	return models.SeverityMajor
}

// Annotate applies an operator status change or note to an incident.
//
// A resolved incident rejects every change with models.ErrIncidentClosed,
// except resolving it again which is a no-op returning a nil event.
func (m *Machine) Annotate(ctx context.Context, incidentID string, status models.IncidentStatus, message string, at time.Time) (*models.Incident, *models.IncidentEvent, error) {
	if !status.Valid() {
		return nil, nil, models.Invalid("status", "must be investigating, identified, monitoring or resolved")
	}
	message = strings.TrimSpace(message)

	inc, err := m.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, nil, err
	}

	if !inc.Open() {
		if status == models.IncidentResolved {
			return inc, nil, nil
		}
		return nil, nil, fmt.Errorf("incident %s: %w", incidentID, models.ErrIncidentClosed)
	}

	if message == "" {
		if status == inc.Status {
			return nil, nil, models.Invalid("message", "required when the status does not change")
		}
		message = "Status changed to " + string(status)
	}

	var (
		upd *models.IncidentUpdate
		typ = models.EventIncidentUpdated
	)
	if status == models.IncidentResolved {
		upd, err = m.resolve(ctx, inc, message, at)
		typ = models.EventIncidentResolved
	} else {
		inc.Status = status
		upd = &models.IncidentUpdate{
			ID:         uuid.NewString(),
			IncidentID: inc.ID,
			Message:    message,
			Status:     status,
			CreatedAt:  at,
		}
		err = m.store.SaveIncident(ctx, inc, upd)
	}
	if err != nil {
		return nil, nil, err
	}
	inc.Updates = append(inc.Updates, *upd)

	log.Info().Str("incident_id", inc.ID).Str("monitor_id", inc.MonitorID).
		Str("status", string(status)).Msg("[Incident] Annotated")

	ev := models.IncidentEvent{Type: typ, Incident: *inc, Update: upd, EmittedAt: at}
	return inc, &ev, nil
}

// CloseForArchive resolves the open incident of an archived monitor, if any.
func (m *Machine) CloseForArchive(ctx context.Context, mon *models.Monitor, at time.Time) (*models.IncidentEvent, error) {
	open, err := m.store.OpenIncident(ctx, mon.ID)
	if err != nil || open == nil {
		return nil, err
	}
	upd, err := m.resolve(ctx, open, "Monitor archived", at)
	if err != nil {
		return nil, err
	}
	log.Info().Str("monitor_id", mon.ID).Str("incident_id", open.ID).Msg("[Incident] Resolved on archive")
	ev := models.IncidentEvent{
		Type:      models.EventIncidentResolved,
		Incident:  *open,
		Update:    upd,
		Monitor:   *mon,
		Status:    models.StatusPaused,
		EmittedAt: at,
	}
	return &ev, nil
}

func event(t models.EventType, inc *models.Incident, upd *models.IncidentUpdate, mon *models.Monitor, d models.Determination) models.IncidentEvent {
	return models.IncidentEvent{
		Type:      t,
		Incident:  *inc,
		Update:    upd,
		Monitor:   *mon,
		Status:    d.Status,
		EmittedAt: d.At,
	}
}
