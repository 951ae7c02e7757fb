package alerts

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"uptime/app/internal/database"
	"uptime/app/internal/models"
)

// EventStatusChanged is sent when a monitor's derived status changes
const EventStatusChanged = "status.changed"

// Message is what every sink receives, for incident transitions and status changes alike
type Message struct {
	Event         string                 `json:"event"`
	Monitor       models.Monitor         `json:"monitor"`
	Status        models.MonitorStatus   `json:"status"`
	Incident      *models.Incident       `json:"incident,omitempty"`
	Update        *models.IncidentUpdate `json:"update,omitempty"`
	Determination *models.Determination  `json:"determination,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Subject is a one-line human summary of the message
func (m Message) Subject() string {
	if m.Incident == nil {
		return fmt.Sprintf("%s is now %s", m.Monitor.Name, m.Status)
	}
	switch models.EventType(m.Event) {
	case models.EventIncidentOpened:
		return fmt.Sprintf("🔴 Incident opened: %s", m.Incident.Title)
	case models.EventIncidentResolved:
		return fmt.Sprintf("✅ Incident resolved: %s", m.Incident.Title)
	default:
		return fmt.Sprintf("⚠️ Incident updated: %s (%s, %s)", m.Incident.Title, m.Incident.Status, m.Incident.Severity)
	}
}

func incidentMessage(ev models.IncidentEvent) Message {
	inc := ev.Incident
	return Message{
		Event:     string(ev.Type),
		Monitor:   ev.Monitor,
		Status:    ev.Status,
		Incident:  &inc,
		Update:    ev.Update,
		Timestamp: ev.EmittedAt,
	}
}

func statusMessage(mon models.Monitor, d models.Determination) Message {
	return Message{
		Event:         EventStatusChanged,
		Monitor:       mon,
		Status:        d.Status,
		Determination: &d,
		Timestamp:     d.At,
	}
}

// Sink delivers messages to one downstream channel
type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Auditor records delivery failures
type Auditor interface {
	InsertAudit(ctx context.Context, at time.Time, level, category, monitorID, message, details string) error
}

// Options tunes a Dispatcher
type Options struct {
	QueueSize int
	Attempts  int
	Backoff   time.Duration
	Timeout   time.Duration
}

// DefaultOptions returns the standard dispatcher settings
func DefaultOptions() Options {
	return Options{QueueSize: 1024, Attempts: 3, Backoff: 500 * time.Millisecond, Timeout: 10 * time.Second}
}

// Dispatcher fans incident events and status changes out to every sink on a
// background worker. Publishing never blocks: when the queue is full the
// message is dropped and counted.
type Dispatcher struct {
	sinks   []Sink
	audit   Auditor
	opts    Options
	queue   chan Message
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. audit may be nil.
func NewDispatcher(opts Options, audit Auditor, sinks ...Sink) *Dispatcher {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Dispatcher{
		sinks: sinks,
		audit: audit,
		opts:  opts,
		queue: make(chan Message, opts.QueueSize),
	}
}

// Start launches the delivery worker
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for msg := range d.queue {
			d.deliver(msg)
		}
	}()
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	log.Info().Strs("sinks", names).Msg("[Alerts] Dispatcher started")
}

// Close stops accepting messages and waits for the queue to drain
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped returns how many messages were discarded because the queue was full
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// PublishIncident queues an incident transition
func (d *Dispatcher) PublishIncident(ev models.IncidentEvent) {
	d.enqueue(incidentMessage(ev))
}

// PublishStatus queues a status change
func (d *Dispatcher) PublishStatus(mon models.Monitor, det models.Determination) {
	d.enqueue(statusMessage(mon, det))
}

func (d *Dispatcher) enqueue(msg Message) {
	if len(d.sinks) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.dropped.Add(1)
		log.Warn().Str("event", msg.Event).Str("monitor_id", msg.Monitor.ID).Msg("[Alerts] Queue full, message dropped")
	}
}

func (d *Dispatcher) deliver(msg Message) {
	for _, s := range d.sinks {
		err := d.send(s, msg)
		if err == nil {
			log.Debug().Str("sink", s.Name()).Str("event", msg.Event).Str("monitor_id", msg.Monitor.ID).Msg("[Alerts] Delivered")
			continue
		}
		log.Error().Err(err).Str("sink", s.Name()).Str("event", msg.Event).Str("monitor_id", msg.Monitor.ID).
			Msg("[Alerts] Delivery failed")
		if d.audit != nil {
			if aerr := d.audit.InsertAudit(context.Background(), time.Now().UTC(), database.LogLevelError, database.LogCategoryNotify,
				msg.Monitor.ID, s.Name()+" notification failed", fmt.Sprintf("event=%s error=%v", msg.Event, err)); aerr != nil {
				log.Error().Err(aerr).Str("sink", s.Name()).Str("monitor_id", msg.Monitor.ID).Msg("[Audit] Failed to write audit entry")
			}
		}
	}
}

// send tries a sink up to Attempts times with linear backoff
func (d *Dispatcher) send(s Sink, msg Message) error {
	var err error
	for attempt := 1; attempt <= d.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
		err = s.Send(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < d.opts.Attempts && d.opts.Backoff > 0 {
			time.Sleep(time.Duration(attempt) * d.opts.Backoff)
		}
	}
	return err
}
