package ratelimit

import (
	"sync/atomic"

	"uptime/app/internal/models"
)

// Shedder protects tick ingestion: it counts ticks in flight and refuses
// low-priority work such as validator registrations while ingestion is busy
// or the registration budget is spent. Ticks themselves are never refused.
type Shedder struct {
	limiter     *Limiter
	inflight    atomic.Int64
	maxInflight int64
}

// NewShedder creates a shedder. A nil limiter or maxInflight <= 0 disables that check.
func NewShedder(l *Limiter, maxInflight int) *Shedder {
	return &Shedder{limiter: l, maxInflight: int64(maxInflight)}
}

// Begin marks one tick as in flight and returns the func that ends it
func (s *Shedder) Begin() func() {
	s.inflight.Add(1)
	return func() { s.inflight.Add(-1) }
}

// InFlight returns the number of ticks currently being ingested
func (s *Shedder) InFlight() int64 {
	return s.inflight.Load()
}

// Admit returns models.ErrOverloaded when low-priority work for key should be shed
func (s *Shedder) Admit(key string) error {
	if s.maxInflight > 0 && s.inflight.Load() > s.maxInflight {
		return models.ErrOverloaded
	}
	if s.limiter != nil && !s.limiter.Allow(key) {
		return models.ErrOverloaded
	}
	return nil
}
