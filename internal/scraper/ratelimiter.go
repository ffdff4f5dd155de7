// internal/scraper/ratelimiter.go
package scraper

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter tuning. Rates are requests per second; property portals
// throttle aggressively, so the defaults stay well under one page a second.
const (
	defaultStartRate = 0.5
	defaultMinRate   = 0.1
	defaultMaxRate   = 2.0
	defaultBurst     = 1

	// backoffMultiplier shrinks the rate after errors; recoveryMultiplier
	// grows it back once the window is healthy again.
	backoffMultiplier  = 0.5
	recoveryMultiplier = 1.2

	// errorRateThreshold is the windowed error fraction that triggers
	// backoff. Recovery requires the quiet period since the last error.
	errorRateThreshold  = 0.1
	recoveryQuietPeriod = 30 * time.Second
	healthWindow        = 60 * time.Second
)

// AdaptiveRateLimiter paces page fetches and adapts to how the portal is
// responding: errors in the recent window halve the rate, a clean window
// grows it back toward the ceiling.
type AdaptiveRateLimiter struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	minRate   rate.Limit
	maxRate   rate.Limit
	successes []time.Time
	errors    []time.Time
	lastError time.Time

	totalWaits     int64
	totalSuccesses int64
	totalErrors    int64
}

// NewAdaptiveRateLimiter builds a limiter starting at startRate and
// adapting between minRate and maxRate. Zero or negative arguments take
// the package defaults.
func NewAdaptiveRateLimiter(startRate, minRate, maxRate float64, burst int) *AdaptiveRateLimiter {
	if startRate <= 0 {
		startRate = defaultStartRate
	}
	if minRate <= 0 {
		minRate = defaultMinRate
	}
	if maxRate <= 0 {
		maxRate = defaultMaxRate
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &AdaptiveRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(startRate), burst),
		minRate: rate.Limit(minRate),
		maxRate: rate.Limit(maxRate),
	}
}

// Wait blocks until the next fetch is allowed or the context is cancelled.
func (a *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	a.mu.Lock()
	a.totalWaits++
	a.mu.Unlock()
	return a.limiter.Wait(ctx)
}

// ReportSuccess records a healthy fetch and may grow the rate.
func (a *AdaptiveRateLimiter) ReportSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	a.totalSuccesses++
	a.successes = append(a.successes, now)
	a.prune(now)
	a.adjust(now)
}

// ReportError records a failed or throttled fetch and may shrink the rate.
func (a *AdaptiveRateLimiter) ReportError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := time.Now()
	a.totalErrors++
	a.errors = append(a.errors, now)
	a.lastError = now
	a.prune(now)
	a.adjust(now)
}

// prune drops events older than the health window. Callers hold the lock.
func (a *AdaptiveRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-healthWindow)
	a.successes = trimBefore(a.successes, cutoff)
	a.errors = trimBefore(a.errors, cutoff)
}

// adjust recomputes the target rate from the windowed error fraction.
// Callers hold the lock.
func (a *AdaptiveRateLimiter) adjust(now time.Time) {
	total := len(a.successes) + len(a.errors)
	if total == 0 {
		return
	}
	errorRate := float64(len(a.errors)) / float64(total)
	current := a.limiter.Limit()

	switch {
	case errorRate > errorRateThreshold:
		next := current * backoffMultiplier
		if next < a.minRate {
			next = a.minRate
		}
		if next != current {
			a.limiter.SetLimit(next)
		}
	case now.Sub(a.lastError) > recoveryQuietPeriod:
		next := current * recoveryMultiplier
		if next > a.maxRate {
			next = a.maxRate
		}
		if next != current {
			a.limiter.SetLimit(next)
		}
	}
}

// CurrentRate returns the present pace in requests per second.
func (a *AdaptiveRateLimiter) CurrentRate() float64 {
	return float64(a.limiter.Limit())
}

// PacerStats is a snapshot of limiter activity for logs and summaries.
type PacerStats struct {
	CurrentRate    float64 `json:"current_rate"`
	TotalWaits     int64   `json:"total_waits"`
	TotalSuccesses int64   `json:"total_successes"`
	TotalErrors    int64   `json:"total_errors"`
	WindowErrors   int     `json:"window_errors"`
}

// Stats snapshots the limiter counters.
func (a *AdaptiveRateLimiter) Stats() PacerStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return PacerStats{
		CurrentRate:    float64(a.limiter.Limit()),
		TotalWaits:     a.totalWaits,
		TotalSuccesses: a.totalSuccesses,
		TotalErrors:    a.totalErrors,
		WindowErrors:   len(a.errors),
	}
}

func trimBefore(events []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(events) && events[idx].Before(cutoff) {
		idx++
	}
	return events[idx:]
}
