// internal/prologix/link.go
package prologix

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// NoAddress skips the ++addr directive; the adapter keeps its current address.
const NoAddress = -1

const (
	DefaultBaud     = 921600
	DefaultTimeout  = 2500 * time.Millisecond
	DefaultEOL      = "\n"
	DefaultIdentity = "Prologix"

	// ++read_tmo_ms accepts 1..3000.
	minBusTimeoutMs = 1
	maxBusTimeoutMs = 3000

	// upper bound on reads spent discarding stale input
	maxDrainReads = 64
)

// Config describes one adapter link.
type Config struct {
	Port     string        // serial device, e.g. /dev/ttyACM0 or COM3
	Baud     int           // 0 => DefaultBaud
	Timeout  time.Duration // serial and GPIB read timeout; 0 => DefaultTimeout
	EOL      string        // appended to every line; "" => DefaultEOL
	Identity string        // required substring of the ++ver answer; "" => DefaultIdentity
	Debug    bool          // trace all traffic at debug level
	Logger   log.Logger
}

func (c Config) withDefaults() Config {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.EOL == "" {
		c.EOL = DefaultEOL
	}
	if c.Identity == "" {
		c.Identity = DefaultIdentity
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	return c
}

// PollFlags select how Poll handles the response.
type PollFlags uint8

const (
	// Binary returns the raw line instead of trimmed text.
	Binary PollFlags = 1 << iota
	// NoReadDirective skips "++read eoi"; used for adapter queries that
	// answer on their own.
	NoReadDirective
)

// Link owns one serial connection to a Prologix compatible adapter.
// Exchanges are serialized internally, but ordering across exchanges
// (e.g. write then verify) is the caller's business.
type Link struct {
	mu      sync.Mutex
	cfg     Config
	port    Port
	logger  log.Logger
	err     error
	pending []byte
	buf     [256]byte
	version string
}

// Open opens the serial port described by cfg and initializes the adapter.
// Open never fails outright: on any problem the returned link is unusable
// and Err reports why.
func Open(cfg Config) *Link {
	cfg = cfg.withDefaults()

	p, err := openSerial(cfg.Port, cfg.Baud)
	if err != nil {
		l := &Link{cfg: cfg, logger: log.With(cfg.Logger, "port", cfg.Port)}
		l.fail(err)
		return l
	}
	return NewLink(p, cfg)
}

// NewLink takes ownership of an already open port, probes for the adapter
// and configures it as bus controller.
func NewLink(p Port, cfg Config) *Link {
	cfg = cfg.withDefaults()
	l := &Link{
		cfg:    cfg,
		port:   p,
		logger: log.With(cfg.Logger, "port", cfg.Port),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.probe(); err != nil {
		l.fail(err)
		return l
	}
	if err := l.configure(); err != nil {
		l.fail(err)
		return l
	}
	return l
}

// probe asks the adapter for its version string; nothing else is sent
// before the identity matched.
func (l *Link) probe() error {
	ver, err := l.pollLocked("++ver", NoAddress, NoReadDirective, 0)
	if err != nil {
		return err
	}
	if len(ver) == 0 {
		return errors.New("no responding adapter")
	}
	if !strings.Contains(strings.ToLower(string(ver)), strings.ToLower(l.cfg.Identity)) {
		return fmt.Errorf("adapter does not identify as %s: %q", l.cfg.Identity, ver)
	}

	l.version = string(ver)
	if l.cfg.Debug {
		level.Debug(l.logger).Log("msg", "found adapter", "version", l.version)
	}
	return nil
}

func (l *Link) configure() error {
	cmds := []string{
		"++mode 1",       // controller mode
		"++auto 0",       // no read-after-write
		"++eoi 0",        // no EOI after commands
		"++eos 0",        // CR+LF appended to commands
		"++eot_enable 0", // no EOT char after EOI
		"++read_tmo_ms " + strconv.Itoa(busTimeoutMs(l.cfg.Timeout)),
		"++ifc", // take bus control
	}
	for _, c := range cmds {
		if err := l.writeLocked(c, NoAddress); err != nil {
			return err
		}
	}
	return nil
}

func busTimeoutMs(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms < minBusTimeoutMs {
		return minBusTimeoutMs
	}
	if ms > maxBusTimeoutMs {
		return maxBusTimeoutMs
	}
	return ms
}

func (l *Link) fail(err error) {
	l.err = &unavailableError{cause: err}
	if l.port != nil {
		_ = l.port.Close()
		l.port = nil
	}
	level.Error(l.logger).Log("msg", "adapter unavailable", "err", err)
}

// Usable reports whether the link passed construction and is still open.
func (l *Link) Usable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err == nil
}

// Err returns nil for a usable link, otherwise an error matching
// ErrLinkUnavailable that wraps the original cause.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Version is the adapter's ++ver answer.
func (l *Link) Version() string { return l.version }

// Timeout is the configured read timeout.
func (l *Link) Timeout() time.Duration { return l.cfg.Timeout }

// Debug reports whether traffic tracing is enabled.
func (l *Link) Debug() bool { return l.cfg.Debug }

// Logger is the link's logger, shared with device handles on it.
func (l *Link) Logger() log.Logger { return l.logger }

// Close releases the port. The link is unusable afterwards.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if l.err == nil {
		l.err = &unavailableError{cause: errors.New("closed")}
	}
	return err
}

// Write sends a command that produces no response.
// addr >= 0 selects the device with ++addr first.
func (l *Link) Write(cmd string, addr int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return l.writeLocked(cmd, addr)
}

// Poll sends a command and reads one response line within the timeout.
// A nil result with nil error means nothing arrived.
// Text responses are trimmed; Binary responses are returned untouched.
func (l *Link) Poll(cmd string, addr int, flags PollFlags) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.pollLocked(cmd, addr, flags, 0)
}

// PollBinary sends a command and reads exactly n raw bytes. Device output
// that carries no terminator (or may contain '\n') is read this way.
// Fewer than n bytes are returned when the timeout expires first; nil with
// nil error means nothing arrived.
func (l *Link) PollBinary(cmd string, addr, n int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.pollLocked(cmd, addr, Binary, n)
}

// Query is Poll for text answers.
// ok is false when nothing arrived.
func (l *Link) Query(cmd string, addr int) (string, bool, error) {
	b, err := l.Poll(cmd, addr, 0)
	if err != nil || b == nil {
		return "", false, err
	}
	return string(b), true, nil
}

// Clear sends Selected Device Clear to addr.
func (l *Link) Clear(addr int) error {
	return l.Write("++clr", addr)
}

func (l *Link) writeLocked(cmd string, addr int) error {
	if addr >= 0 {
		if err := l.writeLocked("++addr "+strconv.Itoa(addr), NoAddress); err != nil {
			return err
		}
	}

	if _, err := l.port.Write([]byte(cmd + l.cfg.EOL)); err != nil {
		return fmt.Errorf("prologix: write %q: %w", cmd, err)
	}
	if l.cfg.Debug {
		level.Debug(l.logger).Log("dir", ">>", "cmd", cmd)
	}
	if f, ok := l.port.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("prologix: flush: %w", err)
		}
	}
	return nil
}

// pollLocked reads one line, or exactly n bytes when n > 0.
func (l *Link) pollLocked(cmd string, addr int, flags PollFlags, n int) ([]byte, error) {
	if err := l.discardInput(); err != nil {
		return nil, err
	}
	if err := l.writeLocked(cmd, addr); err != nil {
		return nil, err
	}
	if flags&NoReadDirective == 0 {
		if err := l.writeLocked("++read eoi", NoAddress); err != nil {
			return nil, err
		}
	}

	var (
		line []byte
		err  error
	)
	if n > 0 {
		line, err = l.readN(n)
	} else {
		line, err = l.readLine()
	}
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, nil
	}

	if flags&Binary != 0 {
		if l.cfg.Debug {
			for _, b := range line {
				level.Debug(l.logger).Log("dir", "<<", "bin", fmt.Sprintf("0b%08b", b))
			}
		}
		return line, nil
	}

	text := bytes.TrimSpace(line)
	if l.cfg.Debug && len(text) > 0 {
		level.Debug(l.logger).Log("dir", "<<", "text", string(text))
	}
	return text, nil
}

// discardInput drops anything left over from an earlier exchange so the
// next line read belongs to the next command.
func (l *Link) discardInput() error {
	l.pending = l.pending[:0]
	for i := 0; i < maxDrainReads; i++ {
		n, err := l.port.Read(l.buf[:])
		if err != nil {
			if isTimeout(err) {
				return nil
			}
			return fmt.Errorf("prologix: read: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// readN returns the first n bytes, or whatever arrived before the timeout.
func (l *Link) readN(n int) ([]byte, error) {
	deadline := time.Now().Add(l.cfg.Timeout)
	for len(l.pending) < n && time.Now().Before(deadline) {
		got, err := l.port.Read(l.buf[:])
		if got > 0 {
			l.pending = append(l.pending, l.buf[:got]...)
		}
		if err != nil && !isTimeout(err) {
			return nil, fmt.Errorf("prologix: read: %w", err)
		}
	}
	if len(l.pending) < n {
		n = len(l.pending)
	}
	out := append([]byte(nil), l.pending[:n]...)
	l.pending = append(l.pending[:0], l.pending[n:]...)
	return out, nil
}

// readLine returns bytes up to and including the first '\n', or whatever
// arrived before the timeout.
func (l *Link) readLine() ([]byte, error) {
	deadline := time.Now().Add(l.cfg.Timeout)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := append([]byte(nil), l.pending[:i+1]...)
			l.pending = append(l.pending[:0], l.pending[i+1:]...)
			return line, nil
		}
		if !time.Now().Before(deadline) {
			line := append([]byte(nil), l.pending...)
			l.pending = l.pending[:0]
			return line, nil
		}

		n, err := l.port.Read(l.buf[:])
		if n > 0 {
			l.pending = append(l.pending, l.buf[:n]...)
		}
		if err != nil && !isTimeout(err) {
			return nil, fmt.Errorf("prologix: read: %w", err)
		}
	}
}
