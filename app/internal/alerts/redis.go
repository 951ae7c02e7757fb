package alerts

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"uptime/app/internal/models"
)

// RedisSink publishes every message on a pub/sub channel and mirrors each
// monitor's current status and open incident into a hash
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to the Redis server at url
func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisSinkFromClient(client, channel), nil
}

// NewRedisSinkFromClient wraps an existing client
func NewRedisSinkFromClient(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = "uptime:events"
	}
	return &RedisSink{client: client, channel: channel}
}

// Name implements Sink
func (r *RedisSink) Name() string { return "redis" }

// Close closes the underlying client
func (r *RedisSink) Close() error {
	return r.client.Close()
}

// StatusKey is the hash holding the mirrored state of a monitor
func StatusKey(monitorID string) string {
	return "uptime:monitor:" + monitorID
}

// Send implements Sink
func (r *RedisSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := StatusKey(msg.Monitor.ID)
	set, del := mirrorFields(msg)

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if len(set) > 0 {
			p.HSet(ctx, key, set)
		}
		if len(del) > 0 {
			p.HDel(ctx, key, del...)
		}
		p.Publish(ctx, r.channel, body)
		return nil
	})
	return err
}

// mirrorFields returns the hash fields to set and delete for msg
func mirrorFields(msg Message) (map[string]interface{}, []string) {
	set := map[string]interface{}{
		"name":       msg.Monitor.Name,
		"status":     string(msg.Status),
		"updated_at": msg.Timestamp.UTC().Format(time.RFC3339),
	}

	if d := msg.Determination; d != nil {
		set["last_latency_ms"] = strconv.Itoa(d.LastLatencyMs)
		set["votes_good"] = strconv.Itoa(d.Votes.Good)
		set["votes_bad"] = strconv.Itoa(d.Votes.Bad)
		if !d.LastCheckedAt.IsZero() {
			set["last_checked_at"] = d.LastCheckedAt.UTC().Format(time.RFC3339)
		}
	}

	var del []string
	if inc := msg.Incident; inc != nil {
		if models.EventType(msg.Event) == models.EventIncidentResolved {
			del = []string{"incident_id", "incident_severity", "incident_status"}
		} else {
			set["incident_id"] = inc.ID
			set["incident_severity"] = string(inc.Severity)
			set["incident_status"] = string(inc.Status)
		}
	}
	return set, del
}
