// Package cache keeps derived monitor reads (status, uptime, series) for a
// short TTL. Entries are partitioned by monitor so a tick append drops every
// view of that monitor at once.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

type partition struct {
	views   map[string]entry
	gen     uint64 // bumped on every invalidation
	loading int    // Fetch loads in flight
}

// Cache is an in-memory TTL cache of per-monitor views. A partition only
// exists while it holds a view or a load is in flight.
type Cache struct {
	mu    sync.Mutex
	parts map[string]*partition
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache whose entries live for ttl (30s when ttl <= 0)
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{parts: make(map[string]*partition), ttl: ttl, now: time.Now}
}

// View joins the parts of a view name, e.g. View("uptime", "day")
func View(parts ...string) string {
	return strings.Join(parts, ":")
}

// Get returns the live value of one view of a monitor
func (c *Cache) Get(monitorID, view string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[monitorID]
	if !ok {
		return nil, false
	}
	e, ok := p.views[view]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(p.views, view)
		c.release(monitorID, p)
		return nil, false
	}
	return e.value, true
}

// Set stores one view of a monitor
func (c *Cache) Set(monitorID, view string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[monitorID]
	if !ok {
		p = &partition{views: make(map[string]entry)}
		c.parts[monitorID] = p
	}
	c.store(p, view, value)
}

// InvalidateMonitor drops every cached view of a monitor. Loads in flight for
// it will not be stored.
func (c *Cache) InvalidateMonitor(monitorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[monitorID]
	if !ok {
		return
	}
	p.views = make(map[string]entry)
	p.gen++
	c.release(monitorID, p)
}

// Len returns the number of stored views, expired or not
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.parts {
		n += len(p.views)
	}
	return n
}

// Partitions returns the number of monitors holding views or loads
func (c *Cache) Partitions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.parts)
}

// beginLoad registers a load for monitorID and returns its partition and generation
func (c *Cache) beginLoad(monitorID string) (*partition, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.parts[monitorID]
	if !ok {
		p = &partition{views: make(map[string]entry)}
		c.parts[monitorID] = p
	}
	p.loading++
	return p, p.gen
}

// endLoad stores a successful load unless the monitor was invalidated since
// gen, then lets go of the partition
func (c *Cache) endLoad(monitorID string, p *partition, gen uint64, view string, value any, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p.loading--
	if ok && p.gen == gen {
		c.store(p, view, value)
	}
	c.release(monitorID, p)
}

// release removes an empty, idle partition. Caller holds c.mu.
func (c *Cache) release(monitorID string, p *partition) {
	if len(p.views) == 0 && p.loading == 0 && c.parts[monitorID] == p {
		delete(c.parts, monitorID)
	}
}

// store writes a view and drops expired siblings. Caller holds c.mu.
func (c *Cache) store(p *partition, view string, value any) {
	now := c.now()
	for k, e := range p.views {
		if !now.Before(e.expiresAt) {
			delete(p.views, k)
		}
	}
	p.views[view] = entry{value: value, expiresAt: now.Add(c.ttl)}
}

// Fetch returns the cached view or loads, stores and returns it. Load errors
// are not cached, nor is a value loaded while the monitor was invalidated.
func Fetch[T any](c *Cache, monitorID, view string, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}
	if v, ok := c.Get(monitorID, view); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	p, gen := c.beginLoad(monitorID)
	var (
		v  T
		ok bool
	)
	defer func() { c.endLoad(monitorID, p, gen, view, v, ok) }()
	v, err := load()
	ok = err == nil
	return v, err
}
