// internal/prologix/port.go
package prologix

import (
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Port is the byte transport underneath a Link.
// Read may return a timeout error (serial.ErrTimeout or any error with
// Timeout() == true) when no data arrived within the port's own slice;
// the link keeps reading until its configured timeout elapses.
type Port interface {
	io.ReadWriteCloser
}

// flusher is implemented by ports that buffer writes.
type flusher interface {
	Flush() error
}

// readSlice bounds a single blocking Read on a serial port so the link
// can enforce its own deadline and drain stale input quickly.
const readSlice = 10 * time.Millisecond

// openSerial opens the adapter's virtual COM port 8N1.
func openSerial(path string, baud int) (Port, error) {
	if err := checkPort(path); err != nil {
		return nil, err
	}

	p, err := serial.Open(&serial.Config{
		Address:  path,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readSlice,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return p, nil
}
