// Package ratelimit limits requests per client key.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const (
	defaultMaxIdle   = 10 * time.Minute
	sweepEveryNCalls = 1024
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory is a per-key token bucket limiter held in process memory.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int
	maxIdle time.Duration
	calls   int
	nowFn   func() time.Time
}

// NewMemory creates a limiter allowing rps requests per second per key with
// the given burst. Keys idle for ten minutes are forgotten.
func NewMemory(rps float64, burst int) *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		maxIdle: defaultMaxIdle,
		nowFn:   time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	m.calls++
	if m.calls%sweepEveryNCalls == 0 {
		m.sweep(now)
	}

	e, ok := m.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if now.Sub(e.lastSeen) > m.maxIdle {
			delete(m.entries, k)
		}
	}
}
