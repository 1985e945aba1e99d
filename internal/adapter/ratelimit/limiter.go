package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window rate limiter keyed by subject (caller IP or
// tenant id). The window map is owned exclusively by the limiter and accessed
// only through Allow, Sweep and Snapshot. State is in-memory and lost on
// restart, which fails open.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	period time.Duration
	now    func() time.Time

	logger *slog.Logger
}

// New creates a limiter admitting up to limit requests per period per
// subject.
func New(limit int, period time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		logger:  logger,
	}
}

// Allow admits or rejects one request for subject. A subject's first request
// in a window (or its first after the window expired) opens a fresh window
// with count 1.
func (l *Limiter) Allow(subject string) domain.RateDecision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[subject]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(l.period)}
		l.windows[subject] = w
		return domain.RateDecision{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit - 1,
			ResetAt:   w.resetAt,
		}
	}

	w.count++
	if w.count > l.limit {
		return domain.RateDecision{
			Allowed:    false,
			Limit:      l.limit,
			RetryAfter: w.resetAt.Sub(now),
			ResetAt:    w.resetAt,
		}
	}

	return domain.RateDecision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		ResetAt:   w.resetAt,
	}
}

// Sweep removes windows that expired more than grace ago and returns the
// number of entries removed.
func (l *Limiter) Sweep(grace time.Duration) int {
	cutoff := l.now().Add(-grace)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for subject, w := range l.windows {
		if w.resetAt.Before(cutoff) {
			delete(l.windows, subject)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows periodically until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(grace); removed > 0 {
				l.logger.Debug("swept expired rate-limit windows", "removed", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// WindowStat is a diagnostic view of one active window.
type WindowStat struct {
	Subject   string    `json:"subject"`
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
	Remaining int       `json:"remaining"`
}

// Snapshot returns the current windows for the diagnostics endpoint.
func (l *Limiter) Snapshot() []WindowStat {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make([]WindowStat, 0, len(l.windows))
	for subject, w := range l.windows {
		remaining := l.limit - w.count
		if remaining < 0 {
			remaining = 0
		}
		stats = append(stats, WindowStat{
			Subject:   subject,
			Count:     w.count,
			Limit:     l.limit,
			ResetAt:   w.resetAt,
			Remaining: remaining,
		})
	}
	return stats
}
