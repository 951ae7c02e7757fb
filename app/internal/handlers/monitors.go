package handlers

import (
	"context"
	"fmt"
	"net/http"

	"uptime/app/internal/engine"
	"uptime/app/internal/models"
)

// ownedMonitor loads a monitor and hides it from other owners. Requests
// without an owner header are not scoped.
func (a *API) ownedMonitor(ctx context.Context, r *http.Request, id string) (*models.Monitor, error) {
	m, err := a.Engine.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner := ownerID(r); owner != "" && m.OwnerID != owner {
		return nil, fmt.Errorf("monitor %s: %w", id, models.ErrNotFound)
	}
	return m, nil
}

// HandleRegisterMonitor creates a monitor for the calling owner
func (a *API) HandleRegisterMonitor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in engine.MonitorInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		m, err := a.Engine.RegisterMonitor(r.Context(), ownerID(r), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

// HandleListMonitors lists the caller's monitors
func (a *API) HandleListMonitors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		archived := r.URL.Query().Get("archived") == "true"
		list, err := a.Engine.ListMonitors(r.Context(), ownerID(r), archived)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if list == nil {
			list = []models.Monitor{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"monitors": list})
	}
}

// HandleGetMonitor returns one monitor
func (a *API) HandleGetMonitor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := a.ownedMonitor(r.Context(), r, r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// HandleMonitorState pauses, resumes or archives a monitor
func (a *API) HandleMonitorState(state models.MonitorState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := a.ownedMonitor(r.Context(), r, id); err != nil {
			writeError(w, r, err)
			return
		}

		var (
			m   *models.Monitor
			err error
		)
		switch state {
		case models.MonitorPaused:
			m, err = a.Engine.PauseMonitor(r.Context(), id)
		case models.MonitorActive:
			m, err = a.Engine.ResumeMonitor(r.Context(), id)
		case models.MonitorArchived:
			m, err = a.Engine.ArchiveMonitor(r.Context(), id)
		default:
			err = models.Invalid("state", "unknown state "+string(state))
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// HandleStatus returns the current status of a monitor
func (a *API) HandleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := a.ownedMonitor(r.Context(), r, id); err != nil {
			writeError(w, r, err)
			return
		}
		view, err := a.Engine.GetStatus(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// HandleUptime returns availability and incident stats for ?period=day|week|month
func (a *API) HandleUptime() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := a.ownedMonitor(r.Context(), r, id); err != nil {
			writeError(w, r, err)
			return
		}
		st, err := a.Engine.GetUptimeStats(r.Context(), id, r.URL.Query().Get("period"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleTimeSeries returns bucketed availability for ?period= and optional ?location=
func (a *API) HandleTimeSeries() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if _, err := a.ownedMonitor(r.Context(), r, id); err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		points, err := a.Engine.GetTimeSeries(r.Context(), id, q.Get("period"), q.Get("location"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"monitor_id": id,
			"period":     q.Get("period"),
			"location":   q.Get("location"),
			"points":     points,
		})
	}
}

// HandleSummary returns the dashboard summary for the caller's monitors
func (a *API) HandleSummary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := a.Engine.GetSummary(r.Context(), ownerID(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// HandleRegisterValidator registers a probing validator
func (a *API) HandleRegisterValidator() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in engine.ValidatorInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		v, err := a.Engine.RegisterValidator(r.Context(), in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}
