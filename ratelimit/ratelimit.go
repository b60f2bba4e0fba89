// Package ratelimit implements fixed-window admission control keyed by an
// arbitrary string (typically "<endpoint class>:<client IP>"). Each window
// grants Points admissions per key; the counter resets when the window
// elapses. State is in-memory only and lost on restart.
package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type Limiter struct {
	mu           sync.Mutex
	entries      map[string]*windowEntry
	points       int
	window       time.Duration
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type windowEntry struct {
	windowStart time.Time
	remaining   int
	lastSeen    time.Time
}

type Option func(*Limiter)

func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) { l.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(l *Limiter) { l.cleanupEvery = d }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(points int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		entries:      make(map[string]*windowEntry),
		points:       points,
		window:       window,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Points() int           { return l.points }
func (l *Limiter) Window() time.Duration { return l.window }

// Allow consumes one point from key's current window. Denial is a normal
// outcome, not an error; RetryAfter says when the window rolls over.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	ent, ok := l.entries[key]
	if !ok || now.Sub(ent.windowStart) >= l.window {
		ent = &windowEntry{windowStart: now, remaining: l.points}
		l.entries[key] = ent
	}
	ent.lastSeen = now

	if ent.remaining <= 0 {
		return Decision{
			Allowed:    false,
			RetryAfter: ent.windowStart.Add(l.window).Sub(now),
		}
	}
	ent.remaining--
	return Decision{Allowed: true}
}

func (l *Limiter) Cleanup() {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// StartJanitor removes idle keys periodically until ctx is done.
func (l *Limiter) StartJanitor(ctx DoneContext) {
	if l.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(l.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}

// DoneContext is the minimum surface needed from context.Context.
type DoneContext interface {
	Done() <-chan struct{}
}
