// internal/writer/ingest/client.go
package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Raw Ingest v1 framing.
const (
	magic      = "RI"
	version    = 0x01
	headerSize = 10

	statusAccepted = 0x00
	statusRefused  = 0x01

	defaultTimeout = 2 * time.Second
)

// ErrRejected is returned when the server refuses a packet.
var ErrRejected = errors.New("writer ingest: rejected")

type Config struct {
	Endpoint string
	Timeout  time.Duration // 0 => 2s, covers dial and the whole exchange
}

// EndpointClient pushes blocks straight into a server's memory areas.
// It holds no connection: every packet dials, sends, and waits for one
// status byte.
type EndpointClient struct {
	addr    string
	timeout time.Duration
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer ingest: endpoint required")
	}
	t := cfg.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	return &EndpointClient{addr: cfg.Endpoint, timeout: t}, nil
}

// Close is a no-op; there is nothing held between packets.
func (c *EndpointClient) Close() error { return nil }

// WriteBits sends coils or discrete inputs, LSB first.
func (c *EndpointClient) WriteBits(area byte, unitID uint8, addr uint16, bits []bool) error {
	payload := make([]byte, (len(bits)+7)/8)
	for i, on := range bits {
		if on {
			payload[i/8] |= 1 << uint(i%8)
		}
	}
	return c.exchange(BuildPacket(area, unitID, addr, uint16(len(bits)), payload))
}

// WriteRegisters sends holding or input registers, big-endian.
func (c *EndpointClient) WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error {
	payload := make([]byte, 2*len(regs))
	for i, r := range regs {
		binary.BigEndian.PutUint16(payload[2*i:], r)
	}
	return c.exchange(BuildPacket(area, unitID, addr, uint16(len(regs)), payload))
}

func (c *EndpointClient) exchange(pkt []byte) error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return fmt.Errorf("writer ingest: %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("writer ingest: %s: %w", c.addr, err)
	}
	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("writer ingest: %s: send: %w", c.addr, err)
	}

	var st [1]byte
	if _, err := io.ReadFull(conn, st[:]); err != nil {
		return fmt.Errorf("writer ingest: %s: no status: %w", c.addr, err)
	}

	switch st[0] {
	case statusAccepted:
		return nil
	case statusRefused:
		return ErrRejected
	}
	return fmt.Errorf("writer ingest: %s: status byte 0x%02x", c.addr, st[0])
}

// BuildPacket lays out a Raw Ingest v1 packet:
//
//	0-1  magic "RI"
//	2    version
//	3    area
//	4-5  unit id
//	6-7  address
//	8-9  count
//	10+  payload
func BuildPacket(area byte, unitID uint8, addr, count uint16, payload []byte) []byte {
	pkt := make([]byte, headerSize, headerSize+len(payload))
	copy(pkt, magic)
	pkt[2] = version
	pkt[3] = area
	binary.BigEndian.PutUint16(pkt[4:], uint16(unitID))
	binary.BigEndian.PutUint16(pkt[6:], addr)
	binary.BigEndian.PutUint16(pkt[8:], count)
	return append(pkt, payload...)
}
