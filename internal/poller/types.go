// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
)

// MeterSchedule is one meter polled on the link.
type MeterSchedule struct {
	ID       string
	Interval time.Duration
}

// PollResult is a snapshot of one meter produced by one poll cycle.
type PollResult struct {
	MeterID string
	LinkID  string

	// CycleID correlates the results of meters polled in the same cycle.
	CycleID string
	At      time.Time

	Status hp3478a.Status
	Value  float64

	Err error // non-nil means the meter's poll failed; Status and Value are zero
}
