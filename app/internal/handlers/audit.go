package handlers

import (
	"net/http"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// HandleGetAudit returns the audit log with optional filtering
func (a *API) HandleGetAudit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := a.Engine.Store().ListAudit(r.Context(), database.AuditFilter{
			Level:     q.Get("level"),
			Category:  q.Get("category"),
			MonitorID: q.Get("monitor"),
			Limit:     queryInt(r, "limit", 100, 500),
			Offset:    queryInt(r, "offset", 0, 0),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []models.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
	}
}
