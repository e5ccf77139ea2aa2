// Package ratelimit is a thin wrapper over golang.org/x/time/rate that adds
// a per-key sub-limiter on top of a global one, for the coordinator's
// "≤N/sec global, ≤M/sec per chat" style throttles (spec §4.10, §4.6).
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// KeyedLimiter enforces a global rate alongside an independent rate per key
// (e.g. per chat ID). A send must pass both to proceed.
type KeyedLimiter struct {
	global   *rate.Limiter
	perKey   rate.Limit
	perBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewKeyedLimiter builds a limiter allowing globalPerSec events/sec overall
// (burst equal to the rate, rounded up to at least 1), and perKeyPerSec
// events/sec for any single key.
func NewKeyedLimiter(globalPerSec, perKeyPerSec float64) *KeyedLimiter {
	burst := int(globalPerSec)
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		global:   rate.NewLimiter(rate.Limit(globalPerSec), burst),
		perKey:   rate.Limit(perKeyPerSec),
		perBurst: 1,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *KeyedLimiter) limiterFor(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.perKey, k.perBurst)
		k.limiters[key] = l
	}
	return l
}

// Wait blocks until both the global and per-key budget admit one event, or
// ctx is cancelled.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	if err := k.global.Wait(ctx); err != nil {
		return err
	}
	return k.limiterFor(key).Wait(ctx)
}

// SimpleLimiter enforces a single rate with no per-key dimension, used by
// the Response Monitor's ≤1/s global send throttle.
type SimpleLimiter struct {
	l *rate.Limiter
}

// NewSimpleLimiter builds a limiter allowing perSec events/sec, burst 1
// (strict pacing, not bursty).
func NewSimpleLimiter(perSec float64) *SimpleLimiter {
	return &SimpleLimiter{l: rate.NewLimiter(rate.Limit(perSec), 1)}
}

// Wait blocks until the budget admits one event, or ctx is cancelled.
func (s *SimpleLimiter) Wait(ctx context.Context) error {
	return s.l.Wait(ctx)
}
