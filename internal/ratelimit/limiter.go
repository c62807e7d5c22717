// Package ratelimit implements a process-local fixed-window request counter.
//
// A window opens on the first request for an identifier and resets fully once
// it expires; counts do not decay inside the window.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is how often Run removes expired windows.
const DefaultSweepInterval = 5 * time.Minute

// Policy is a request budget per window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// Result is the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

type entry struct {
	count     int
	resetTime time.Time
}

// Limiter is safe for concurrent use. Construct one per process.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	logger  *slog.Logger
}

func New() *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Check counts one request for identifier against p.
func (l *Limiter) Check(identifier string, p Policy) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[identifier]
	if !ok || now.After(e.resetTime) {
		l.entries[identifier] = &entry{count: 1, resetTime: now.Add(p.Window)}
		return Result{Allowed: true, Remaining: p.MaxRequests - 1, ResetIn: p.Window}
	}

	if e.count >= p.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetIn: e.resetTime.Sub(now)}
	}

	e.count++
	return Result{Allowed: true, Remaining: p.MaxRequests - e.count, ResetIn: e.resetTime.Sub(now)}
}

// Sweep deletes every expired window and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if now.After(e.resetTime) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("rate limit sweep", "removed", n, "tracked", l.Len())
			}
		}
	}
}

// Identifier picks the bucket for a request: the authenticated user id, else
// the forwarded client address, else a shared anonymous bucket.
func Identifier(userID, forwardedFor string) string {
	if userID != "" {
		return userID
	}
	if forwardedFor != "" {
		return forwardedFor
	}
	return "anonymous"
}
