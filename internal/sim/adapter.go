// internal/sim/adapter.go
package sim

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultVersion is what a simulated adapter answers to ++ver.
const DefaultVersion = "Prologix GPIB-USB Controller version 6.107"

// Device is an instrument on the simulated bus.
type Device interface {
	// Command receives one unescaped line addressed to the device.
	Command(line string)
	// Talk returns the device's output when it is addressed to talk.
	Talk() []byte
	// Clear handles Selected Device Clear.
	Clear()
}

type timeoutError struct{}

func (timeoutError) Error() string { return "sim: read timeout" }
func (timeoutError) Timeout() bool { return true }

// ErrClosed is returned by a closed adapter.
var ErrClosed = errors.New("sim: adapter closed")

// Adapter simulates a Prologix controller in controller mode.
// It implements prologix.Port.
type Adapter struct {
	mu sync.Mutex

	version string
	devices map[int]Device
	addr    int

	partial []byte
	out     []byte
	lines   []string
	closed  bool
}

// NewAdapter returns an adapter answering ++ver with DefaultVersion.
func NewAdapter() *Adapter {
	return &Adapter{version: DefaultVersion, devices: map[int]Device{}, addr: -1}
}

// SetVersion changes the ++ver answer; "" makes the adapter silent.
func (a *Adapter) SetVersion(v string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.version = v
}

// Attach places d at addr.
func (a *Adapter) Attach(addr int, d Device) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices[addr] = d
}

// Lines returns every line written so far, escapes intact.
func (a *Adapter) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.lines...)
}

// ResetLines forgets the recorded traffic.
func (a *Adapter) ResetLines() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lines = nil
}

// Inject queues bytes as if they were left over from an earlier exchange.
func (a *Adapter) Inject(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.out = append(a.out, b...)
}

func (a *Adapter) Write(b []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return 0, ErrClosed
	}

	a.partial = append(a.partial, b...)
	for {
		i := indexUnescapedLF(a.partial)
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(a.partial[:i]), "\r")
		a.partial = append(a.partial[:0], a.partial[i+1:]...)
		a.lines = append(a.lines, line)
		a.handle(line)
	}
	return len(b), nil
}

func (a *Adapter) handle(line string) {
	if !strings.HasPrefix(line, "++") {
		if d, ok := a.devices[a.addr]; ok {
			d.Command(unescape(line))
		}
		return
	}

	fields := strings.Fields(line[2:])
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "ver":
		if a.version != "" {
			a.out = append(a.out, a.version+"\r\n"...)
		}
	case "addr":
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				a.addr = n
			}
		}
	case "read":
		if d, ok := a.devices[a.addr]; ok {
			a.out = append(a.out, d.Talk()...)
		}
	case "clr":
		if d, ok := a.devices[a.addr]; ok {
			d.Clear()
		}
	}
	// mode, auto, eoi, eos, eot_enable, read_tmo_ms, ifc: accepted silently
}

func (a *Adapter) Read(b []byte) (int, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return 0, ErrClosed
	}
	if len(a.out) == 0 {
		a.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, timeoutError{}
	}
	n := copy(b, a.out)
	a.out = a.out[n:]
	a.mu.Unlock()
	return n, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

const esc = 0x1B

func indexUnescapedLF(b []byte) int {
	for i := 0; i < len(b); i++ {
		if b[i] == esc {
			i++
			continue
		}
		if b[i] == '\n' {
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if strings.IndexByte(s, esc) < 0 {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == esc && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
