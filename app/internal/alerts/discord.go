package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"uptime/app/internal/models"
)

// DiscordSink posts a rich embed per message to a Discord webhook
type DiscordSink struct {
	URL    string
	Client *http.Client
}

// NewDiscordSink creates a Discord sink
func NewDiscordSink(url string) *DiscordSink {
	return &DiscordSink{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

// Name implements Sink
func (d *DiscordSink) Name() string { return "discord" }

var discordColors = map[string]int{"down": 0xef4444, "degraded": 0xeab308, "up": 0x22c55e, "paused": 0x6b7280}

// Send implements Sink
func (d *DiscordSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(discordPayload(msg))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: status %d", resp.StatusCode)
	}
	return nil
}

func discordPayload(msg Message) map[string]interface{} {
	color := discordColors[string(msg.Status)]
	if msg.Event == string(models.EventIncidentResolved) {
		color = discordColors["up"]
	}

	fields := []map[string]interface{}{
		{"name": "Monitor", "value": msg.Monitor.Name, "inline": true},
		{"name": "Status", "value": strings.ToUpper(string(msg.Status)), "inline": true},
	}
	description := msg.Monitor.URL
	if msg.Incident != nil {
		fields = append(fields, map[string]interface{}{"name": "Severity", "value": string(msg.Incident.Severity), "inline": true})
	}
	if msg.Update != nil {
		description = msg.Update.Message
	}
	fields = append(fields, map[string]interface{}{"name": "Time", "value": msg.Timestamp.Format(time.RFC1123), "inline": false})

	return map[string]interface{}{
		"username": "Uptime",
		"embeds": []map[string]interface{}{
			{
				"title":       msg.Subject(),
				"description": description,
				"color":       color,
				"fields":      fields,
				"footer":      map[string]string{"text": "Uptime Monitor"},
			},
		},
	}
}
