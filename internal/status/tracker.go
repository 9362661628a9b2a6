// internal/status/tracker.go
package status

import (
	"errors"
	"time"
)

// Tracker owns the snapshot of one device between poll results.
// Poll results drive health and error code; a 1 Hz tick drives
// seconds_in_error and staleness. Not safe for concurrent use.
type Tracker struct {
	snap       Snapshot
	lastOK     time.Time
	staleAfter time.Duration
}

// NewTracker starts in HealthUnknown. A healthy device that produces no
// result for staleAfter turns HealthStale; 0 disables staleness.
func NewTracker(staleAfter time.Duration) *Tracker {
	return &Tracker{
		snap:       Snapshot{Health: HealthUnknown},
		staleAfter: staleAfter,
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot { return t.snap }

// Observe records one poll result and reports whether the snapshot changed.
func (t *Tracker) Observe(err error, at time.Time) bool {
	prev := t.snap

	if err == nil {
		t.lastOK = at
		t.snap.Health = HealthOK
		t.snap.LastErrorCode = ErrorNone
		t.snap.SecondsInError = 0
	} else {
		t.snap.Health = HealthError
		t.snap.LastErrorCode = ErrorCode(err)
		// seconds_in_error increments on Tick only
	}

	return t.snap != prev
}

// Tick advances the 1 Hz clock and reports whether the snapshot changed.
func (t *Tracker) Tick(now time.Time) bool {
	if t.snap.Healthy() {
		if t.staleAfter <= 0 || now.Sub(t.lastOK) < t.staleAfter {
			return false
		}
		t.snap.Health = HealthStale
		return true
	}

	if t.snap.SecondsInError >= MaxSecondsInError {
		return false
	}
	t.snap.SecondsInError++
	return true
}

// ErrorCode extracts a best-effort uint16 code from an error without assuming concrete types.
// If the error does not expose a code, returns ErrorUnclassified.
func ErrorCode(err error) uint16 {
	if err == nil {
		return ErrorNone
	}

	type coderA interface{ Code() uint16 }
	type coderB interface{ ErrorCode() uint16 }

	var a coderA
	if errors.As(err, &a) {
		return a.Code()
	}
	var b coderB
	if errors.As(err, &b) {
		return b.ErrorCode()
	}

	return ErrorUnclassified
}
