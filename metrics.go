package authgate

import "sync/atomic"

// MetricID identifies one counter in the in-process metrics block.
type MetricID uint16

const (
	// MetricAuthAllowed counts successful authentications.
	MetricAuthAllowed MetricID = iota
	// MetricAuthDenied counts decode/validation denials.
	MetricAuthDenied
	// MetricRevokedDenied counts denials from the revocation authority.
	MetricRevokedDenied
	// MetricRateLimitDenied counts limiter denials.
	MetricRateLimitDenied
	// MetricCSRFDenied counts double-submit rejections.
	MetricCSRFDenied
	// MetricPermissionDenied counts RBAC denials.
	MetricPermissionDenied
	// MetricRotateSuccess counts successful refresh rotations.
	MetricRotateSuccess
	// MetricRotateDenied counts refused rotations, including family hits.
	MetricRotateDenied
	// MetricRevocationWritten counts denylist records created.
	MetricRevocationWritten
	// MetricFailOpen counts requests allowed through a store failure
	// under the documented fail-open policy. A non-zero rate here is an
	// infrastructure alarm, not a security event.
	MetricFailOpen
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed block of atomic counters. When disabled every
// operation is a no-op.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates the counter block.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Get reads one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot deep-copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
