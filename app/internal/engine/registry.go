package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"uptime/app/internal/auth"
	"uptime/app/internal/checker"
	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// MonitorInput describes a monitor to register
type MonitorInput struct {
	ID                  string `json:"id,omitempty" yaml:"id"`
	Name                string `json:"name" yaml:"name"`
	URL                 string `json:"url" yaml:"url"`
	CheckIntervalS      int    `json:"check_interval_s" yaml:"check_interval_s"`
	ExpectedStatusCodes []int  `json:"expected_status_codes" yaml:"expected_status_codes"`
}

// ValidatorInput describes a validator to register
type ValidatorInput struct {
	ID        string `json:"id,omitempty" yaml:"id"`
	PublicKey string `json:"public_key" yaml:"public_key"`
	Location  string `json:"location" yaml:"location"`
	IP        string `json:"ip" yaml:"ip"`
}

const validatorRegistrationKey = "validators"

// RegisterMonitor creates a new active monitor owned by ownerID
func (e *Engine) RegisterMonitor(ctx context.Context, ownerID string, in MonitorInput) (*models.Monitor, error) {
	m, err := e.buildMonitor(ownerID, in)
	if err != nil {
		return nil, err
	}
	if err := e.db.CreateMonitor(ctx, m); err != nil {
		return nil, err
	}
	log.Info().Str("monitor_id", m.ID).Str("owner_id", ownerID).Str("url", m.URL).Msg("[Registry] Monitor registered")
	e.audit(ctx, database.LogLevelInfo, database.LogCategoryRegistry, m.ID, "monitor registered", m.URL)
	return m, nil
}

// UpsertMonitor creates or updates a monitor by id without touching its state.
// It is used to apply seed files idempotently.
func (e *Engine) UpsertMonitor(ctx context.Context, ownerID string, in MonitorInput) (*models.Monitor, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, models.Invalid("id", "required")
	}
	m, err := e.buildMonitor(ownerID, in)
	if err != nil {
		return nil, err
	}
	if err := e.db.UpsertMonitor(ctx, m); err != nil {
		return nil, err
	}
	e.invalidate(m.ID)
	return e.db.GetMonitor(ctx, m.ID)
}

func (e *Engine) buildMonitor(ownerID string, in MonitorInput) (*models.Monitor, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, models.Invalid("owner_id", "required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.Invalid("name", "required")
	}
	rawURL := strings.TrimSpace(in.URL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, models.Invalid("url", "must be an absolute http or https URL")
	}
	if err := checker.ValidateURLTarget(rawURL); err != nil {
		return nil, models.Invalid("url", err.Error())
	}

	interval := in.CheckIntervalS
	if interval == 0 {
		interval = int(models.DefaultCheckInterval / time.Second)
	}
	if floor := e.cfg.MinCheckInterval; interval < 0 || time.Duration(interval)*time.Second < floor {
		return nil, models.Invalid("check_interval_s", fmt.Sprintf("must be at least %d", int(floor/time.Second)))
	}

	codes := in.ExpectedStatusCodes
	if len(codes) == 0 {
		codes = []int{200}
	}
	for _, c := range codes {
		if c < 100 || c > 599 {
			return nil, models.Invalid("expected_status_codes", fmt.Sprintf("%d is not an HTTP status code", c))
		}
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := e.Now()
	return &models.Monitor{
		ID:                  id,
		OwnerID:             ownerID,
		URL:                 rawURL,
		Name:                name,
		CheckIntervalS:      interval,
		ExpectedStatusCodes: codes,
		State:               models.MonitorActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// RegisterValidator adds a probing vantage point. Registrations are shed with
// models.ErrOverloaded while tick ingestion is saturated.
func (e *Engine) RegisterValidator(ctx context.Context, in ValidatorInput) (*models.Validator, error) {
	if err := e.shedder.Admit(validatorRegistrationKey); err != nil {
		log.Warn().Int64("in_flight", e.shedder.InFlight()).Msg("[Registry] Validator registration shed")
		return nil, err
	}
	v, err := e.buildValidator(in)
	if err != nil {
		return nil, err
	}
	if err := e.db.CreateValidator(ctx, v); err != nil {
		return nil, err
	}
	log.Info().Str("validator_id", v.ID).Str("location", v.Location).Msg("[Registry] Validator registered")
	e.audit(ctx, database.LogLevelInfo, database.LogCategoryRegistry, "", "validator registered", "validator_id="+v.ID+" location="+v.Location)
	return v, nil
}

// UpsertValidator creates or updates a validator by id
func (e *Engine) UpsertValidator(ctx context.Context, in ValidatorInput) (*models.Validator, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, models.Invalid("id", "required")
	}
	v, err := e.buildValidator(in)
	if err != nil {
		return nil, err
	}
	if err := e.db.UpsertValidator(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) buildValidator(in ValidatorInput) (*models.Validator, error) {
	key := strings.TrimSpace(in.PublicKey)
	if _, err := auth.ParsePublicKey(key); err != nil {
		return nil, models.Invalid("public_key", err.Error())
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, models.Invalid("location", "required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return &models.Validator{
		ID:        id,
		PublicKey: key,
		Location:  location,
		IP:        strings.TrimSpace(in.IP),
		CreatedAt: e.Now(),
	}, nil
}

// PauseMonitor stops ticks from feeding status and incident evaluation.
// An open incident stays open until the monitor is resumed and recovers.
func (e *Engine) PauseMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return e.setState(ctx, id, models.MonitorPaused)
}

// ResumeMonitor reactivates a paused monitor
func (e *Engine) ResumeMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return e.setState(ctx, id, models.MonitorActive)
}

// ArchiveMonitor soft-deletes a monitor. Later ticks are rejected and any open
// incident is resolved with a final "Monitor archived" update.
func (e *Engine) ArchiveMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return e.setState(ctx, id, models.MonitorArchived)
}

func (e *Engine) setState(ctx context.Context, id string, state models.MonitorState) (*models.Monitor, error) {
	st, unlock := e.tracker.Lock(id)
	defer unlock()

	m, err := e.db.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.State == state {
		return m, nil
	}
	if m.Archived() {
		return nil, models.Invalid("state", "monitor "+id+" is archived")
	}

	now := e.Now()
	if err := e.db.SetMonitorState(ctx, id, state, now); err != nil {
		return nil, err
	}
	m.State = state
	m.UpdatedAt = now
	e.invalidate(id)

	// Debounce counting restarts from scratch after any lifecycle change
	st.ResetStreaks()

	var events []models.IncidentEvent
	if state == models.MonitorArchived {
		ev, err := e.incidents.CloseForArchive(ctx, m, now)
		if err != nil {
			return nil, fmt.Errorf("close incident of %s: %w", id, err)
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if state != models.MonitorActive {
		d := models.Determination{
			Status:        models.StatusPaused,
			LastLatencyMs: st.Last.LastLatencyMs,
			LastCheckedAt: st.Last.LastCheckedAt,
			At:            now,
		}
		if st.Last.Status != models.StatusPaused {
			e.pub.PublishStatus(*m, d)
		}
		st.Last = d
	}

	log.Info().Str("monitor_id", id).Str("state", string(state)).Msg("[Registry] Monitor state changed")
	e.audit(ctx, database.LogLevelInfo, database.LogCategoryRegistry, id, "monitor "+string(state), "")
	e.publish(events)
	return m, nil
}

// GetMonitor returns a monitor by id
func (e *Engine) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	return e.db.GetMonitor(ctx, id)
}

// ListMonitors returns the monitors of ownerID. An empty owner lists all.
func (e *Engine) ListMonitors(ctx context.Context, ownerID string, includeArchived bool) ([]models.Monitor, error) {
	return e.db.ListMonitors(ctx, ownerID, includeArchived)
}
