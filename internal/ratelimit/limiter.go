// SPDX-License-Identifier: MIT

// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds per-key limits.
type Config struct {
	Rate  rate.Limit // requests per second
	Burst int        // max burst size

	// IdleTTL drops limiters that have not been used for this long.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults for forwarding to camera nodes.
func DefaultConfig() Config {
	return Config{
		Rate:    10,
		Burst:   20,
		IdleTTL: 5 * time.Minute,
	}
}

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter rate limits independently per key.
type Limiter struct {
	config Config

	mu          sync.Mutex
	limiters    map[string]*keyed
	lastCleanup time.Time
	now         func() time.Time
}

// New creates a new per-key limiter.
func New(config Config) *Limiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultConfig().IdleTTL
	}
	return &Limiter{
		config:      config,
		limiters:    make(map[string]*keyed),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether one request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	k, ok := l.limiters[key]
	if !ok {
		k = &keyed{limiter: rate.NewLimiter(l.config.Rate, l.config.Burst)}
		l.limiters[key] = k
	}
	k.lastSeen = now
	l.maybeCleanupLocked(now)
	l.mu.Unlock()

	return k.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// maybeCleanupLocked drops idle limiters once per IdleTTL.
func (l *Limiter) maybeCleanupLocked(now time.Time) {
	if now.Sub(l.lastCleanup) < l.config.IdleTTL {
		return
	}
	for key, k := range l.limiters {
		if now.Sub(k.lastSeen) >= l.config.IdleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastCleanup = now
}
