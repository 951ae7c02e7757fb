// Package ratelimit holds the per-key token buckets used for client and
// registration budgets, and the shedder that guards tick ingestion.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	sweepEvery = 5 * time.Minute
	idleAfter  = 10 * time.Minute
)

// Config for creating a new rate limiter
type Config struct {
	TokensPerMinute int              // refill rate
	MaxTokens       int              // bucket size, defaults to TokensPerMinute
	ErrorMessage    string           // returned to rate limited callers
	Clock           func() time.Time // defaults to time.Now
}

// Decision is the outcome of one Reserve call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// Limiter is a token bucket limiter keyed by caller. Idle buckets are swept
// while reserving, so there is no background goroutine to stop.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perSecond float64
	capacity  float64
	message   string
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// New creates a new rate limiter
func New(cfg Config) *Limiter {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = cfg.TokensPerMinute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Limiter{
		buckets:   make(map[string]*bucket),
		perSecond: float64(cfg.TokensPerMinute) / 60,
		capacity:  float64(cfg.MaxTokens),
		message:   cfg.ErrorMessage,
		now:       cfg.Clock,
		lastSweep: cfg.Clock(),
	}
}

// Allow takes one token for key
func (l *Limiter) Allow(key string) bool {
	return l.Reserve(key, 1).Allowed
}

// Reserve takes n tokens for key when available. A refused reservation
// reports how long until n tokens will have accumulated.
func (l *Limiter) Reserve(key string, n int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)
	b := l.bucketAt(key, now)

	need := float64(n)
	if b.tokens >= need {
		b.tokens -= need
		return Decision{Allowed: true, Remaining: int(b.tokens)}
	}

	d := Decision{Remaining: int(b.tokens)}
	switch {
	case need > l.capacity || l.perSecond <= 0:
		d.RetryAfter = idleAfter
	default:
		secs := (need - b.tokens) / l.perSecond
		d.RetryAfter = time.Duration(math.Ceil(secs)) * time.Second
	}
	return d
}

// Remaining returns the whole tokens left for key without taking any
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int(l.bucketAt(key, l.now()).tokens)
}

// Reset forgets the bucket for key
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ErrorMessage returns the message for rate limited callers
func (l *Limiter) ErrorMessage() string {
	return l.message
}

// bucketAt returns the bucket for key refilled up to now. Caller holds l.mu.
func (l *Limiter) bucketAt(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, seen: now}
		l.buckets[key] = b
		return b
	}
	if elapsed := now.Sub(b.seen); elapsed > 0 {
		b.tokens = math.Min(l.capacity, b.tokens+elapsed.Seconds()*l.perSecond)
	}
	b.seen = now
	return b
}

// sweep drops buckets idle for idleAfter. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepEvery {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.seen) > idleAfter {
			delete(l.buckets, key)
		}
	}
}
