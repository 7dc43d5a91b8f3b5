// Package ratelimit bounds operations per key within fixed, resetting time
// windows. State lives in process memory by design; scaling out horizontally
// means substituting a shared counter store behind the same interface.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// Limiter is a fixed-window counter keyed by an opaque string, typically
// "subject route". Every attempt is recorded before the decision is made,
// so a retry storm straddling a window boundary cannot buy extra capacity.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit     int
	windowLen time.Duration
	now       func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter admitting limit calls per key per window.
func New(limit int, windowLen time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows:   make(map[string]*window),
		limit:     limit,
		windowLen: windowLen,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an attempt for key and reports whether it fits the window.
// The read-modify-write is atomic per key: two concurrent callers cannot
// both take the last slot.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
	}
	if now.Sub(w.start) >= l.windowLen {
		w.start = now
		w.count = 0
	}
	w.count++
	return w.count <= l.limit
}

// RetryAfter reports how long until the key's current window resets.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return 0
	}
	remaining := l.windowLen - l.now().Sub(w.start)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep drops windows idle for at least two window lengths. Callers run it
// on a ticker; the limiter stays correct without it, only larger.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.windowLen)
	for key, w := range l.windows {
		if w.start.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
