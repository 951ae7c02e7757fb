package alerts

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogSink writes every message to the structured log
type LogSink struct{}

// Name implements Sink
func (LogSink) Name() string { return "log" }

// Send implements Sink
func (LogSink) Send(_ context.Context, msg Message) error {
	ev := log.Info().Str("event", msg.Event).Str("monitor_id", msg.Monitor.ID).Str("status", string(msg.Status))
	if msg.Incident != nil {
		ev = ev.Str("incident_id", msg.Incident.ID).Str("severity", string(msg.Incident.Severity))
	}
	ev.Msg("[Alerts] " + msg.Subject())
	return nil
}
