// internal/hp3478a/errors.go
package hp3478a

import (
	"fmt"

	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
)

// ErrLinkUnavailable matches errors from a meter whose adapter link
// could not be opened or identified.
var ErrLinkUnavailable = prologix.ErrLinkUnavailable

// Error codes reported through Code(); 1 is reserved for unclassified errors
// and 2 for an unavailable link.
const (
	CodeCommunication uint16 = 3
	CodeParse         uint16 = 4
	CodeValidation    uint16 = 5
	CodeVerification  uint16 = 6
)

// CommunicationError means the device did not answer, or answered
// with less data than the operation requires.
type CommunicationError struct {
	Op     string
	Addr   int
	Reason string
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("hp3478a: %s (addr=%d): %s", e.Op, e.Addr, e.Reason)
}

func (e *CommunicationError) Code() uint16 { return CodeCommunication }

// ParseError means a measurement answer was not a number.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hp3478a: measurement %q is not numeric", e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Code() uint16 { return CodeParse }

// ValidationError rejects a setting before anything is sent.
type ValidationError struct {
	Setting string
	Value   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hp3478a: invalid %s %q: %s", e.Setting, e.Value, e.Reason)
}

func (e *ValidationError) Code() uint16 { return CodeValidation }

// VerificationMismatch reports that a setting was written but the status
// read back afterwards does not show it. Setters never return it as their
// error; it is available from Verification.Err.
type VerificationMismatch struct {
	Setting string
	Want    string
	Got     string
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("hp3478a: %s not confirmed: want %s, device reports %s", e.Setting, e.Want, e.Got)
}

func (e *VerificationMismatch) Code() uint16 { return CodeVerification }
