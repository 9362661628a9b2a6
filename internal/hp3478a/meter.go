// internal/hp3478a/meter.go
package hp3478a

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
)

// DefaultTimeout is the read timeout of links a meter opens itself.
const DefaultTimeout = 250 * time.Millisecond

// MaxAddress is the highest primary GPIB address.
const MaxAddress = 30

// Config applies when the meter opens its own link.
type Config struct {
	Baud    int
	Timeout time.Duration // 0 => DefaultTimeout
	Debug   bool
	Logger  log.Logger
}

// Meter is a handle on one HP3478A at a fixed bus address.
// Several meters may share one link; each exchange re-selects the address.
type Meter struct {
	addr   int
	link   *prologix.Link
	owned  bool
	logger log.Logger
	status Status
}

// New creates a meter at addr. Exactly one of port and link must be set:
// with port the meter opens and owns a new link, with link it shares it.
// A link that failed to open is not an error here; see Err.
func New(addr int, port string, link *prologix.Link, cfg Config) (*Meter, error) {
	if addr < 0 || addr > MaxAddress {
		return nil, &ValidationError{Setting: "address", Value: strconv.Itoa(addr), Reason: "must be 0..30"}
	}
	switch {
	case port == "" && link == nil:
		return nil, &ValidationError{Setting: "link", Value: "", Reason: "either a serial port or a link is required"}
	case port != "" && link != nil:
		return nil, &ValidationError{Setting: "link", Value: port, Reason: "serial port and link are mutually exclusive"}
	}

	m := &Meter{addr: addr, link: link}
	if link == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		m.link = prologix.Open(prologix.Config{
			Port:    port,
			Baud:    cfg.Baud,
			Timeout: timeout,
			Debug:   cfg.Debug,
			Logger:  cfg.Logger,
		})
		m.owned = true
	}
	m.logger = log.With(m.link.Logger(), "addr", addr)
	return m, nil
}

// Open creates a meter that owns a new link on port.
func Open(addr int, port string, cfg Config) (*Meter, error) {
	return New(addr, port, nil, cfg)
}

// NewShared creates a meter on an existing link.
func NewShared(link *prologix.Link, addr int) (*Meter, error) {
	if link == nil {
		return nil, errors.New("hp3478a: nil link")
	}
	return New(addr, "", link, Config{})
}

// Addr is the meter's bus address.
func (m *Meter) Addr() int { return m.addr }

// Link is the adapter link the meter talks through.
func (m *Meter) Link() *prologix.Link { return m.link }

// Err reports an unusable link; nil otherwise.
func (m *Meter) Err() error { return m.link.Err() }

// Close releases the link if the meter opened it.
func (m *Meter) Close() error {
	if !m.owned {
		return nil
	}
	return m.link.Close()
}

// Status returns the cached status from the last refresh.
func (m *Meter) Status() Status { return m.status }

// GetStatus reads the binary status frame and replaces the cached status.
func (m *Meter) GetStatus() (Status, error) {
	raw, err := m.link.PollBinary("B", m.addr, FrameSize)
	if err != nil {
		return Status{}, err
	}
	if raw == nil {
		return Status{}, &CommunicationError{Op: "status", Addr: m.addr, Reason: "no response"}
	}
	if len(raw) < FrameSize {
		return Status{}, &CommunicationError{
			Op:     "status",
			Addr:   m.addr,
			Reason: "short frame: " + strconv.Itoa(len(raw)) + " of " + strconv.Itoa(FrameSize) + " bytes",
		}
	}

	var f Frame
	copy(f[:], raw)
	m.status = DecodeFrame(f, time.Now())
	return m.status, nil
}

// Measure reads the current measurement.
func (m *Meter) Measure() (float64, error) {
	text, ok, err := m.link.Query(" ", m.addr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &CommunicationError{Op: "measure", Addr: m.addr, Reason: "no response"}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &ParseError{Text: text, Err: err}
	}
	return v, nil
}

// Reset sends Selected Device Clear. The meter does not answer
// meaningfully right after, so nothing is verified.
func (m *Meter) Reset() error {
	return m.link.Clear(m.addr)
}

// ClearSerialPoll clears the serial poll register (K).
func (m *Meter) ClearSerialPoll() error {
	return m.link.Write("K", m.addr)
}

// ReadErrors reads and clears the error register (E).
func (m *Meter) ReadErrors() (ErrorFlags, error) {
	raw, err := m.link.PollBinary("E", m.addr, 1)
	if err != nil {
		return ErrorFlags{}, err
	}
	if len(raw) == 0 {
		return ErrorFlags{}, &CommunicationError{Op: "errors", Addr: m.addr, Reason: "no response"}
	}
	return decodeErrors(raw[0]), nil
}

// Function is the label of the cached function.
func (m *Meter) Function() (string, bool) { return m.status.FunctionName() }

// Range is the label of the cached range.
func (m *Meter) Range() (string, bool) { return m.status.RangeName() }

// RangeValue is the full scale of the cached range.
func (m *Meter) RangeValue() (float64, bool) { return m.status.RangeValue() }

// Digits is the cached resolution.
func (m *Meter) Digits() (float64, bool) { return m.status.DigitsValue() }
