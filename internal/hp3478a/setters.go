// internal/hp3478a/setters.go
package hp3478a

import (
	"fmt"
	"strconv"

	"github.com/go-kit/kit/log/level"

	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
)

// SetOption adjusts a single setter call.
type SetOption func(*setOptions)

type setOptions struct {
	verify bool
}

// WithoutVerify skips the status read-back after writing.
func WithoutVerify() SetOption {
	return func(o *setOptions) { o.verify = false }
}

func buildOptions(opts []SetOption) setOptions {
	o := setOptions{verify: true}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Verification is the outcome of reading a setting back after writing it.
// The command channel has no acknowledgement, so this is the only
// confirmation a setter gets.
type Verification struct {
	Setting string
	Want    string
	Got     string

	// Checked is false when verification was skipped or the setting
	// has no counterpart in the status frame.
	Checked bool
	Matched bool
}

// Confirmed reports a read-back that matched.
func (v Verification) Confirmed() bool { return v.Checked && v.Matched }

// Mismatch reports a read-back that did not match.
func (v Verification) Mismatch() bool { return v.Checked && !v.Matched }

// Err returns a *VerificationMismatch for a mismatch, nil otherwise.
func (v Verification) Err() error {
	if !v.Mismatch() {
		return nil
	}
	return &VerificationMismatch{Setting: v.Setting, Want: v.Want, Got: v.Got}
}

// check compares the refreshed status with the intended setting.
type check func(s Status) (got string, matched bool)

// apply writes cmd and, unless suppressed, refreshes the status and runs c.
func (m *Meter) apply(setting, want, cmd string, opts []SetOption, c check) (Verification, error) {
	v := Verification{Setting: setting, Want: want}

	if err := m.link.Write(cmd, m.addr); err != nil {
		return v, err
	}

	o := buildOptions(opts)
	if !o.verify || c == nil {
		if m.link.Debug() {
			level.Debug(m.logger).Log("msg", "setting changed without verification", "setting", setting, "value", want)
		}
		return v, nil
	}

	s, err := m.GetStatus()
	if err != nil {
		return v, err
	}

	v.Checked = true
	v.Got, v.Matched = c(s)

	if !v.Matched {
		level.Warn(m.logger).Log("msg", "verification mismatch", "setting", setting, "want", want, "got", v.Got)
	} else if m.link.Debug() {
		level.Debug(m.logger).Log("msg", "setting confirmed", "setting", setting, "value", v.Got)
	}
	return v, nil
}

// SetAutoZero switches auto-zero on or off (Z1/Z0).
func (m *Meter) SetAutoZero(on bool, opts ...SetOption) (Verification, error) {
	cmd := "Z0"
	if on {
		cmd = "Z1"
	}
	return m.apply("auto-zero", strconv.FormatBool(on), cmd, opts, func(s Status) (string, bool) {
		return strconv.FormatBool(s.AutoZero), s.AutoZero == on
	})
}

// SetFunction selects the measurement function (F1..F7).
func (m *Meter) SetFunction(f Function, opts ...SetOption) (Verification, error) {
	if !f.Valid() {
		return Verification{}, &ValidationError{Setting: "function", Value: strconv.Itoa(int(f)), Reason: "must be 1..7"}
	}
	return m.apply("function", f.String(), "F"+strconv.Itoa(int(f)), opts, func(s Status) (string, bool) {
		return s.Function.String(), s.Function == f
	})
}

// SetRange selects a fixed range (R-2..R7) or auto range (RA).
// A fixed range is confirmed by the full scale the meter reports, so a
// range the current function does not have shows up as a mismatch.
func (m *Meter) SetRange(r Range, opts ...SetOption) (Verification, error) {
	if !r.auto {
		if _, err := NewRange(r.exp); err != nil {
			return Verification{}, err
		}
	}
	return m.apply("range", r.String(), r.command(), opts, func(s Status) (string, bool) {
		if r.auto {
			return "auto=" + strconv.FormatBool(s.AutoRange), s.AutoRange
		}
		fs, ok := s.RangeValue()
		if !ok {
			return fmt.Sprintf("range %d under %s", s.Range, s.Function), false
		}
		got := Range{exp: rangeExpFor(fs)}
		return got.String(), fs == r.Value()
	})
}

func rangeExpFor(fs float64) int {
	for exp, v := range rangeValues {
		if v == fs {
			return exp
		}
	}
	return 0
}

// SetDigits selects the resolution (N3..N5). Half digits alias the whole
// digit below them, so the confirmed value may be coarser than requested.
func (m *Meter) SetDigits(d float64, opts ...SetOption) (Verification, error) {
	code, err := DigitsCode(d)
	if err != nil {
		return Verification{}, err
	}
	want := digitsStatusCode(code)
	wantLabel, _ := DigitsValue(want)

	return m.apply("digits", strconv.FormatFloat(wantLabel, 'f', 1, 64), "N"+strconv.Itoa(code), opts, func(s Status) (string, bool) {
		got, ok := DigitsValue(s.Digits)
		if !ok {
			return "code " + strconv.Itoa(s.Digits), false
		}
		return strconv.FormatFloat(got, 'f', 1, 64), s.Digits == want
	})
}

// SetTrigger selects the trigger mode (T1..T5).
//
// Post-conditions checked against the status frame:
//
//	internal  internal trigger on, external off
//	external  external trigger on, internal off
//	single    internal trigger off
//	hold      internal and external trigger off
//	fast      not checkable (ends in the same state as single)
func (m *Meter) SetTrigger(t Trigger, opts ...SetOption) (Verification, error) {
	if !t.Valid() {
		return Verification{}, &ValidationError{Setting: "trigger", Value: strconv.Itoa(int(t)), Reason: "must be 1..5"}
	}

	var c check
	switch t {
	case TriggerInternal:
		c = func(s Status) (string, bool) {
			return triggerFlags(s), s.TriggerInternal && !s.TriggerExternal
		}
	case TriggerExternal:
		c = func(s Status) (string, bool) {
			return triggerFlags(s), s.TriggerExternal && !s.TriggerInternal
		}
	case TriggerSingle:
		c = func(s Status) (string, bool) {
			return triggerFlags(s), !s.TriggerInternal
		}
	case TriggerHold:
		c = func(s Status) (string, bool) {
			return triggerFlags(s), !s.TriggerInternal && !s.TriggerExternal
		}
	}

	return m.apply("trigger", t.String(), "T"+strconv.Itoa(int(t)), opts, c)
}

func triggerFlags(s Status) string {
	return fmt.Sprintf("internal=%t external=%t", s.TriggerInternal, s.TriggerExternal)
}

// SetDisplay shows text on the front panel. Empty text restores the
// normal measurement display (D1). online keeps the meter updating its
// annunciators (D2); otherwise the display freezes (D3), which speeds up
// measurements and blanks after ten minutes.
// The status frame has no display state, so the result is never Checked.
func (m *Meter) SetDisplay(text string, online bool, opts ...SetOption) (Verification, error) {
	if text == "" {
		return m.apply("display", "normal", "D1", opts, nil)
	}
	if err := ValidateDisplay(text); err != nil {
		return Verification{}, err
	}

	cmd := "D2"
	if !online {
		cmd = "D3"
	}
	return m.apply("display", text, cmd+prologix.Escape(text), opts, nil)
}
