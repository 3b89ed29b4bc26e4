package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollerHealth_RecordSuccess(t *testing.T) {
	h := NewPollerHealth("viction")
	recovered := h.RecordSuccess()

	snap := h.Snapshot()
	assert.False(t, recovered)
	assert.Equal(t, string(HealthStatusHealthy), snap.Status)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.NotNil(t, snap.LastSuccessAt)
}

func TestPollerHealth_RecordFailure_Threshold(t *testing.T) {
	h := NewPollerHealth("viction")
	for i := 0; i < DefaultUnhealthyThreshold-1; i++ {
		assert.False(t, h.RecordFailure(), "should not transition before threshold")
	}

	assert.True(t, h.RecordFailure(), "should transition at threshold")
	assert.False(t, h.RecordFailure(), "transition is reported once")
	assert.Equal(t, HealthStatusUnhealthy, h.Status())
}

func TestPollerHealth_CustomThreshold(t *testing.T) {
	h := NewPollerHealth("viction").WithUnhealthyThreshold(2)
	assert.False(t, h.RecordFailure())
	assert.True(t, h.RecordFailure())

	h = NewPollerHealth("viction").WithUnhealthyThreshold(0)
	assert.Equal(t, DefaultUnhealthyThreshold, h.unhealthyThreshold)
}

func TestPollerHealth_Recovery(t *testing.T) {
	h := NewPollerHealth("viction")
	for i := 0; i < DefaultUnhealthyThreshold; i++ {
		h.RecordFailure()
	}
	assert.Equal(t, HealthStatusUnhealthy, h.Status())

	assert.True(t, h.RecordSuccess())
	assert.Equal(t, HealthStatusHealthy, h.Status())
	assert.False(t, h.RecordSuccess())
}

func TestPollerHealth_RecordLatency_Degraded(t *testing.T) {
	h := NewPollerHealth("viction")
	h.RecordSuccess()

	for i := 0; i < latencyWindowSize; i++ {
		h.RecordLatency(10 * time.Second)
	}
	assert.Equal(t, HealthStatusDegraded, h.Status())

	for i := 0; i < latencyWindowSize; i++ {
		h.RecordLatency(100 * time.Millisecond)
	}
	assert.Equal(t, HealthStatusHealthy, h.Status())
}

func TestPollerHealth_RecordLatency_DoesNotOverrideUnhealthy(t *testing.T) {
	h := NewPollerHealth("viction")
	for i := 0; i < DefaultUnhealthyThreshold; i++ {
		h.RecordFailure()
	}

	h.RecordLatency(10 * time.Millisecond)
	assert.Equal(t, HealthStatusUnhealthy, h.Status())
}

func TestPollerHealth_SuccessAfterHighLatencyIsDegraded(t *testing.T) {
	h := NewPollerHealth("viction")
	for i := 0; i < latencyWindowSize; i++ {
		h.RecordLatency(10 * time.Second)
	}

	h.RecordSuccess()
	assert.Equal(t, HealthStatusDegraded, h.Status())
}

func TestPollerHealth_Snapshot(t *testing.T) {
	h := NewPollerHealth("viction")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.nowFn = func() time.Time { return fixed }

	snap := h.Snapshot()
	assert.Equal(t, "viction", snap.Chain)
	assert.Equal(t, string(HealthStatusUnknown), snap.Status)
	assert.Zero(t, snap.LagBlocks)
	assert.Nil(t, snap.LastSuccessAt)

	h.RecordProgress(120, 100)
	h.RecordFailure()
	snap = h.Snapshot()
	assert.Equal(t, int64(120), snap.Head)
	assert.Equal(t, int64(100), snap.LastProcessedBlock)
	assert.Equal(t, int64(20), snap.LagBlocks)
	assert.Equal(t, fixed, *snap.LastFailureAt)
}
