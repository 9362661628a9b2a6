// internal/sim/hp3478a.go
package sim

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
)

type talkMode int

const (
	talkReading talkMode = iota
	talkStatus
	talkErrors
)

// Display modes as set by D1/D2/D3.
const (
	DisplayNormal = 1
	DisplayOnline = 2
	DisplayFrozen = 3
)

// HP3478A simulates the meter's command set closely enough for the driver:
// it keeps a status that is reported through hp3478a.EncodeFrame and
// refuses settings the real meter refuses (ranges a function lacks).
type HP3478A struct {
	mu sync.Mutex

	state   hp3478a.Status
	errs    hp3478a.ErrorFlags
	reading float64
	source  func() float64
	mode    talkMode

	display     string
	displayMode int

	syntaxErrors int
	mute         bool
	truncate     int
	garbage      string
}

// NewHP3478A returns a meter in its power-on state: DC volts, auto range
// on the 3V range, 5½ digits, auto zero, internal trigger.
func NewHP3478A() *HP3478A {
	m := &HP3478A{}
	m.powerOn()
	return m
}

func (m *HP3478A) powerOn() {
	m.state = hp3478a.Status{
		Function:        hp3478a.DCVolts,
		Range:           3,
		Digits:          1,
		FrontPorts:      true,
		Freq50Hz:        true,
		AutoZero:        true,
		AutoRange:       true,
		TriggerInternal: true,
		SRQ:             hp3478a.SRQMask{PowerOn: true},
		DAC:             0x5A,
	}
	m.mode = talkReading
	m.display = ""
	m.displayMode = DisplayNormal
}

// SetReading sets the value returned by measurement reads.
func (m *HP3478A) SetReading(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading = v
}

// SetSource makes every measurement read call fn; nil restores the
// fixed reading.
func (m *HP3478A) SetSource(fn func() float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.source = fn
}

// SetState overrides the whole status.
func (m *HP3478A) SetState(s hp3478a.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// State returns the current status.
func (m *HP3478A) State() hp3478a.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetErrors sets the self-test error register.
func (m *HP3478A) SetErrors(e hp3478a.ErrorFlags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = e
	m.state.Errors = e
}

// Mute makes the meter stop talking.
func (m *HP3478A) Mute(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mute = on
}

// TruncateStatus cuts the binary status answer to n bytes; 0 disables.
func (m *HP3478A) TruncateStatus(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.truncate = n
}

// Garble replaces measurement answers with s; "" disables.
func (m *HP3478A) Garble(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.garbage = s
}

// Display returns the shown text and the display mode.
func (m *HP3478A) Display() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display, m.displayMode
}

// SyntaxErrors counts refused commands.
func (m *HP3478A) SyntaxErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syntaxErrors
}

func (m *HP3478A) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	reading, source := m.reading, m.source
	m.powerOn()
	m.reading, m.source = reading, source
}

func (m *HP3478A) Talk() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := m.mode
	m.mode = talkReading
	if m.mute {
		return nil
	}

	// binary answers carry no terminator, like the real meter
	switch mode {
	case talkStatus:
		f := hp3478a.EncodeFrame(m.state)
		out := f[:]
		if m.truncate > 0 && m.truncate < len(out) {
			out = out[:m.truncate]
		}
		return append([]byte(nil), out...)

	case talkErrors:
		b := hp3478a.EncodeErrors(m.errs)
		m.errs = hp3478a.ErrorFlags{}
		m.state.Errors = m.errs
		return []byte{b}
	}

	if m.garbage != "" {
		return []byte(m.garbage + "\r\n")
	}
	v := m.reading
	if m.source != nil {
		v = m.source()
	}
	return []byte(fmt.Sprintf("%+.5E\r\n", v))
}

func (m *HP3478A) Command(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(line) > 0 {
		c := line[0]
		rest := line[1:]

		switch c {
		case ' ', '\r', '\n':
			line = rest
		case 'B':
			m.mode = talkStatus
			line = rest
		case 'E':
			m.mode = talkErrors
			line = rest
		case 'K':
			line = rest
		case 'D':
			// display text runs to the end of the line
			m.displayCmd(rest)
			return
		case 'F', 'N', 'Z', 'T', 'R':
			arg, n := leadingArg(rest)
			m.setting(c, arg)
			line = rest[n:]
		default:
			m.syntaxErrors++
			return
		}
	}
}

// leadingArg splits "A..." or an optionally signed integer off s.
func leadingArg(s string) (string, int) {
	if strings.HasPrefix(s, "A") {
		return "A", 1
	}
	n := 0
	if n < len(s) && s[n] == '-' {
		n++
	}
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return s[:n], n
}

func (m *HP3478A) displayCmd(arg string) {
	if arg == "" {
		m.syntaxErrors++
		return
	}
	switch arg[0] {
	case '1':
		m.display = ""
		m.displayMode = DisplayNormal
	case '2':
		m.display = arg[1:]
		m.displayMode = DisplayOnline
	case '3':
		m.display = arg[1:]
		m.displayMode = DisplayFrozen
	default:
		m.syntaxErrors++
	}
}

func (m *HP3478A) setting(c byte, arg string) {
	if arg == "A" {
		if c != 'R' {
			m.syntaxErrors++
			return
		}
		m.state.AutoRange = true
		return
	}

	n, err := strconv.Atoi(arg)
	if err != nil {
		m.syntaxErrors++
		return
	}

	switch c {
	case 'F':
		f := hp3478a.Function(n)
		if !f.Valid() {
			m.syntaxErrors++
			return
		}
		m.state.Function = f
		m.state.Range = m.fitRange(f, m.state.Range)

	case 'R':
		r, err := hp3478a.NewRange(n)
		if err != nil {
			m.syntaxErrors++
			return
		}
		code, ok := hp3478a.RangeCode(r, m.state.Function)
		if !ok {
			m.syntaxErrors++
			return
		}
		m.state.Range = code
		m.state.AutoRange = false

	case 'N':
		if n < 3 || n > 5 {
			m.syntaxErrors++
			return
		}
		m.state.Digits = 6 - n

	case 'Z':
		if n != 0 && n != 1 {
			m.syntaxErrors++
			return
		}
		m.state.AutoZero = n == 1

	case 'T':
		switch hp3478a.Trigger(n) {
		case hp3478a.TriggerInternal:
			m.state.TriggerInternal, m.state.TriggerExternal = true, false
		case hp3478a.TriggerExternal:
			m.state.TriggerInternal, m.state.TriggerExternal = false, true
		case hp3478a.TriggerSingle, hp3478a.TriggerHold, hp3478a.TriggerFast:
			m.state.TriggerInternal, m.state.TriggerExternal = false, false
		default:
			m.syntaxErrors++
		}
	}
}

// fitRange keeps code if f has it, otherwise picks f's highest range.
func (m *HP3478A) fitRange(f hp3478a.Function, code int) int {
	if _, ok := hp3478a.RangeValue(code, f); ok {
		return code
	}
	for c := 7; c >= 1; c-- {
		if _, ok := hp3478a.RangeValue(c, f); ok {
			return c
		}
	}
	return 1
}
