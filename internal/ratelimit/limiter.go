package ratelimit

import (
	"context"
	"time"
)

// LimitResult is the outcome of a single Allow check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter throttles calls to a single downstream resource (the
// Anthropic Messages API) behind one token bucket. The engine has no
// notion of distinct "tools" calling through it the way the original
// MCP tool surface did, so one bucket per provider is all this needs.
type Limiter struct {
	enabled bool
	bucket  *Bucket
	metrics *Metrics
}

// NewLimiter builds a Limiter. A non-positive requestsPerSecond or
// burstSize disables throttling entirely, so tests and callers without
// a configured rate can construct one unconditionally.
func NewLimiter(requestsPerSecond, burstSize float64) *Limiter {
	enabled := requestsPerSecond > 0 && burstSize > 0
	var bucket *Bucket
	if enabled {
		bucket = NewBucket(burstSize, requestsPerSecond)
	}
	return &Limiter{
		enabled: enabled,
		bucket:  bucket,
		metrics: NewMetrics(),
	}
}

// Allow reports whether a request may proceed immediately, consuming a
// token if so.
func (l *Limiter) Allow() *LimitResult {
	if !l.enabled {
		return &LimitResult{Allowed: true}
	}
	if l.bucket.TryConsume(1) {
		l.metrics.RecordAllowed()
		return &LimitResult{Allowed: true}
	}
	l.metrics.RecordRejection()
	return &LimitResult{Allowed: false, RetryAfter: l.bucket.TimeToWait(1)}
}

// Wait blocks until a token is available or ctx is done, whichever
// happens first. It re-checks Allow after each RetryAfter rather than
// sleeping once for the whole estimate, since a concurrent Reset can
// shorten the real wait.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		result := l.Allow()
		if result.Allowed {
			return nil
		}

		wait := result.RetryAfter
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// IsEnabled reports whether throttling is active.
func (l *Limiter) IsEnabled() bool {
	return l.enabled
}

// SetEnabled toggles throttling without discarding bucket state.
func (l *Limiter) SetEnabled(enabled bool) {
	l.enabled = enabled
}

// Metrics returns the running allow/reject counters.
func (l *Limiter) Metrics() *Metrics {
	return l.metrics
}

// Reset refills the backing bucket to full capacity.
func (l *Limiter) Reset() {
	if l.bucket != nil {
		l.bucket.Reset()
	}
}
