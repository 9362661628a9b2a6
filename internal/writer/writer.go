// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

// endpointClient is the exact contract the writers use.
// Both the modbus and the ingest clients satisfy it.
type endpointClient interface {
	WriteBits(area byte, unitID uint8, addr uint16, bits []bool) error
	WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error
}

// areaHoldingRegisters is where reading and status blocks live.
const areaHoldingRegisters byte = 3

type readingWriter struct {
	plan    Plan
	clients map[string]endpointClient
}

// New returns a writer delivering reading blocks to every target of plan.
func New(plan Plan, clients map[string]endpointClient) Writer {
	return &readingWriter{
		plan:    plan,
		clients: clients,
	}
}

// Write delivers one reading block per target. Failed polls write nothing:
// targets keep the last good reading and the status block carries the error.
func (w *readingWriter) Write(res poller.PollResult) error {
	if res.Err != nil {
		return nil
	}

	regs := status.EncodeReading(res.Value, res.Status)

	var errs []string
	for _, tgt := range w.plan.Targets {
		cli := w.clients[tgt.Endpoint]
		if cli == nil {
			errs = append(errs, fmt.Sprintf("writer: missing client for endpoint %s", tgt.Endpoint))
			continue
		}

		if err := cli.WriteRegisters(areaHoldingRegisters, tgt.UnitID, tgt.Address, regs); err != nil {
			errs = append(errs, fmt.Sprintf(
				"writer: ep=%s unit=%d addr=%d err=%v",
				tgt.Endpoint, tgt.UnitID, tgt.Address, err,
			))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}
