// internal/writer/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Writable areas.
const (
	AreaCoils            byte = 1
	AreaHoldingRegisters byte = 3
)

// Config names one Modbus TCP server.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// EndpointClient writes reading and status blocks to one Modbus TCP server.
// The unit id lives on the shared handler, so writes are serialized.
type EndpointClient struct {
	endpoint string

	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	cli     modbus.Client
}

// NewEndpointClient does not dial: goburrow connects on the first request,
// so a server that is down at startup only fails writes until it is back.
func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &EndpointClient{endpoint: cfg.Endpoint, handler: h, cli: modbus.NewClient(h)}, nil
}

// Close drops the TCP connection, if any.
func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteBits writes coils (FC15).
func (c *EndpointClient) WriteBits(area byte, unitID uint8, addr uint16, bits []bool) error {
	if area != AreaCoils {
		return c.notWritable(area)
	}
	packed := make([]byte, (len(bits)+7)/8)
	for i, on := range bits {
		if on {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	return c.as(unitID, func() error {
		_, err := c.cli.WriteMultipleCoils(addr, uint16(len(bits)), packed)
		return err
	})
}

// WriteRegisters writes holding registers (FC16).
func (c *EndpointClient) WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error {
	if area != AreaHoldingRegisters {
		return c.notWritable(area)
	}
	packed := make([]byte, 2*len(regs))
	for i, r := range regs {
		binary.BigEndian.PutUint16(packed[2*i:], r)
	}
	return c.as(unitID, func() error {
		_, err := c.cli.WriteMultipleRegisters(addr, uint16(len(regs)), packed)
		return err
	})
}

func (c *EndpointClient) as(unitID uint8, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler.SlaveId = unitID
	return fn()
}

func (c *EndpointClient) notWritable(area byte) error {
	return fmt.Errorf("writer modbus: %s: area %d is read-only over Modbus", c.endpoint, area)
}
