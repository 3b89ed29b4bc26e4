package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
)

// HealthStatus represents the health state of the poller.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive head-read
	// failures before the poller is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the P95 block latency above which
	// the poller is considered degraded.
	DefaultDegradedLatencyThreshold = 5 * time.Second

	latencyWindowSize = 10
)

func (s HealthStatus) gauge() float64 {
	switch s {
	case HealthStatusHealthy:
		return 1
	case HealthStatusDegraded:
		return 2
	case HealthStatusUnhealthy:
		return 3
	default:
		return 0
	}
}

// PollerHealth tracks the health of one poller. It is written by the poller
// loop and read by the status endpoints.
type PollerHealth struct {
	mu                       sync.RWMutex
	chain                    string
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
	head                     int64
	lastProcessed            int64
	nowFn                    func() time.Time
}

func NewPollerHealth(chain string) *PollerHealth {
	return &PollerHealth{
		chain:                    chain,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       DefaultUnhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
		nowFn:                    time.Now,
	}
}

// WithUnhealthyThreshold overrides DefaultUnhealthyThreshold. Values below 1
// are ignored.
func (h *PollerHealth) WithUnhealthyThreshold(n int) *PollerHealth {
	if n > 0 {
		h.unhealthyThreshold = n
	}
	return h
}

// RecordProgress stores the latest observed head and processed block.
func (h *PollerHealth) RecordProgress(head, lastProcessed int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = head
	h.lastProcessed = lastProcessed
}

// RecordSuccess records a successful head read. It returns true when this
// success recovers the poller from the unhealthy state.
func (h *PollerHealth) RecordSuccess() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFn()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	if h.isLatencyDegraded() {
		h.setStatus(HealthStatusDegraded)
	} else {
		h.setStatus(HealthStatusHealthy)
	}
	metrics.PollerConsecutiveFailures.WithLabelValues(h.chain).Set(0)
	return wasUnhealthy
}

// RecordFailure records a failed head read. It returns true when the poller
// transitioned to unhealthy on this call.
func (h *PollerHealth) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.nowFn()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	metrics.PollerConsecutiveFailures.WithLabelValues(h.chain).Set(float64(h.consecutiveFailures))
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.setStatus(HealthStatusUnhealthy)
		return true
	}
	return false
}

// RecordLatency records how long one block took and updates the degraded
// state.
func (h *PollerHealth) RecordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, d)

	if h.status == HealthStatusHealthy || h.status == HealthStatusDegraded {
		if h.isLatencyDegraded() {
			h.setStatus(HealthStatusDegraded)
		} else if h.status == HealthStatusDegraded && h.consecutiveFailures == 0 {
			h.setStatus(HealthStatusHealthy)
		}
	}
}

// Must be called with mu held.
func (h *PollerHealth) setStatus(s HealthStatus) {
	h.status = s
	metrics.PollerHealthStatus.WithLabelValues(h.chain).Set(s.gauge())
}

// Must be called with mu held.
func (h *PollerHealth) isLatencyDegraded() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	return h.percentileLatency(95) > h.degradedLatencyThreshold
}

// Must be called with mu held.
func (h *PollerHealth) percentileLatency(pct int) time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, h.recentLatencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := (pct*n - 1) / 100
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

func (h *PollerHealth) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Snapshot returns the current health state.
func (h *PollerHealth) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	lag := h.head - h.lastProcessed
	if lag < 0 || h.lastProcessed == 0 {
		lag = 0
	}
	return HealthSnapshot{
		Chain:               h.chain,
		Status:              string(h.status),
		ConsecutiveFailures: h.consecutiveFailures,
		Head:                h.head,
		LastProcessedBlock:  h.lastProcessed,
		LagBlocks:           lag,
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
	}
}

// HealthSnapshot is a point-in-time view of poller health (JSON-safe).
type HealthSnapshot struct {
	Chain               string     `json:"chain"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Head                int64      `json:"head"`
	LastProcessedBlock  int64      `json:"last_processed_block"`
	LagBlocks           int64      `json:"lag_blocks"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}
