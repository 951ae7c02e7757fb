package handlers

import (
	"net/http"

	"uptime/app/internal/models"
)

// HandleListIncidents lists incidents, filtered by ?monitor= and ?status=
func (a *API) HandleListIncidents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := models.IncidentFilter{
			MonitorID: q.Get("monitor"),
			Status:    models.IncidentStatus(q.Get("status")),
			OpenOnly:  q.Get("open") == "true",
		}
		if f.MonitorID != "" {
			if _, err := a.ownedMonitor(r.Context(), r, f.MonitorID); err != nil {
				writeError(w, r, err)
				return
			}
		}

		list, err := a.Engine.ListIncidents(r.Context(), f)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if owner := ownerID(r); owner != "" && f.MonitorID == "" {
			mons, err := a.Engine.ListMonitors(r.Context(), owner, true)
			if err != nil {
				writeError(w, r, err)
				return
			}
			mine := make(map[string]bool, len(mons))
			for _, m := range mons {
				mine[m.ID] = true
			}
			scoped := list[:0]
			for _, inc := range list {
				if mine[inc.MonitorID] {
					scoped = append(scoped, inc)
				}
			}
			list = scoped
		}
		if list == nil {
			list = []models.Incident{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"incidents": list})
	}
}

// HandleGetIncident returns an incident with its updates
func (a *API) HandleGetIncident() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inc, err := a.Engine.GetIncident(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := a.ownedMonitor(r.Context(), r, inc.MonitorID); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inc)
	}
}

// HandleAnnotateIncident applies an operator status change or note
func (a *API) HandleAnnotateIncident() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status  models.IncidentStatus `json:"status"`
			Message string                `json:"message"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		inc, err := a.Engine.AnnotateIncident(r.Context(), r.PathValue("id"), req.Status, req.Message)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, inc)
	}
}
