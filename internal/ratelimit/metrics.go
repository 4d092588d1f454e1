package ratelimit

import (
	"sync/atomic"
	"time"
)

// Metrics tracks allow/reject counts for a Limiter.
type Metrics struct {
	totalAllowed  uint64
	totalRejected uint64
	startTime     time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordAllowed records an allowed request.
func (m *Metrics) RecordAllowed() {
	atomic.AddUint64(&m.totalAllowed, 1)
}

// RecordRejection records a throttled request.
func (m *Metrics) RecordRejection() {
	atomic.AddUint64(&m.totalRejected, 1)
}

// TotalAllowed returns the total number of allowed requests.
func (m *Metrics) TotalAllowed() uint64 {
	return atomic.LoadUint64(&m.totalAllowed)
}

// TotalRejected returns the total number of throttled requests.
func (m *Metrics) TotalRejected() uint64 {
	return atomic.LoadUint64(&m.totalRejected)
}

// RejectionRate returns the fraction of requests throttled so far, in
// [0, 1].
func (m *Metrics) RejectionRate() float64 {
	allowed := atomic.LoadUint64(&m.totalAllowed)
	rejected := atomic.LoadUint64(&m.totalRejected)
	total := allowed + rejected
	if total == 0 {
		return 0
	}
	return float64(rejected) / float64(total)
}

// Uptime returns how long this Metrics has been tracking.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
