package poller

import "time"

// Phase is the poller's position in its connect/poll/backoff cycle.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhasePolling
	PhaseBackingOff
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhasePolling:
		return "polling"
	case PhaseBackingOff:
		return "backing_off"
	default:
		return "unknown"
	}
}

// State is owned by the control loop and passed through Step by value.
// LastProcessedBlock only moves forward.
type State struct {
	Phase              Phase
	LastProcessedBlock int64
	// Backoff is the wait applied after the next head-read failure.
	Backoff time.Duration
	// Connected is set by the first successful head read. While it is false
	// a failed read retries the initial connect.
	Connected bool
}
