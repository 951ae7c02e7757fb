package handlers

import (
	"net/http"

	"uptime/app/internal/models"
)

// SetupRoutes configures all HTTP routes. Registration and operator routes
// are wrapped by limit when it is non-nil.
func SetupRoutes(a *API, limit func(http.Handler) http.Handler) http.Handler {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	op := a.Operator.RequireOperator

	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/ticks", a.HandleIngestTick())
	mux.HandleFunc("POST /api/ticks/batch", a.HandleIngestBatch())

	// Registry
	mux.Handle("POST /api/validators", limit(op(a.HandleRegisterValidator())))
	mux.Handle("POST /api/monitors", limit(a.HandleRegisterMonitor()))
	mux.HandleFunc("GET /api/monitors", a.HandleListMonitors())
	mux.HandleFunc("GET /api/monitors/{id}", a.HandleGetMonitor())
	mux.HandleFunc("POST /api/monitors/{id}/pause", a.HandleMonitorState(models.MonitorPaused))
	mux.HandleFunc("POST /api/monitors/{id}/resume", a.HandleMonitorState(models.MonitorActive))
	mux.HandleFunc("POST /api/monitors/{id}/archive", a.HandleMonitorState(models.MonitorArchived))

	// Reads
	mux.HandleFunc("GET /api/monitors/{id}/status", a.HandleStatus())
	mux.Handle("GET /api/monitors/{id}/uptime", GzipMiddleware(a.HandleUptime()))
	mux.Handle("GET /api/monitors/{id}/timeseries", GzipMiddleware(a.HandleTimeSeries()))
	mux.HandleFunc("GET /api/summary", a.HandleSummary())

	// Incidents
	mux.Handle("GET /api/incidents", GzipMiddleware(a.HandleListIncidents()))
	mux.HandleFunc("GET /api/incidents/{id}", a.HandleGetIncident())
	mux.Handle("POST /api/incidents/{id}/annotate", limit(op(a.HandleAnnotateIncident())))

	// Operator
	mux.Handle("GET /api/audit", limit(GzipMiddleware(op(a.HandleGetAudit()))))

	mux.HandleFunc("GET /api/health", HandleHealth())

	return mux
}
