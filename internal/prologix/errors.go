// internal/prologix/errors.go
package prologix

import (
	"errors"

	"github.com/goburrow/serial"
)

// ErrLinkUnavailable is returned by every operation on a link whose port
// could not be opened or whose adapter was not identified.
// The underlying cause is wrapped alongside it.
var ErrLinkUnavailable = errors.New("prologix: link unavailable")

// unavailableError carries the reason a link became unusable.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	if e.cause == nil {
		return ErrLinkUnavailable.Error()
	}
	return ErrLinkUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrLinkUnavailable}
	}
	return []error{ErrLinkUnavailable, e.cause}
}

// Code classifies the error for status reporting.
func (e *unavailableError) Code() uint16 { return 2 }

// isTimeout reports whether a port read ended because no data arrived
// in time, as opposed to the port failing.
func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	type timeout interface {
		Timeout() bool
	}
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
