// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

// StatusWriter delivers a meter's status snapshot verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// blockStatusWriter keeps one status block in target memory current.
// The first write and the first write after any failure assert the full
// block including the device name; otherwise only changed slots are sent.
type blockStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     status.Snapshot
	nameRegs []uint16
}

// NewStatusWriter builds a status writer if the plan enables status.
func NewStatusWriter(plan Plan, clients map[string]endpointClient) (StatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	sp := plan.Status
	return &blockStatusWriter{
		plan:     sp,
		cli:      clients[sp.Endpoint],
		needFull: true,
		last:     status.Snapshot{Health: status.HealthUnknown},
		nameRegs: encodeDeviceNameRegs(sp.DeviceName),
	}, true
}

func (sw *blockStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return fmt.Errorf("status writer: missing client for endpoint %s", sw.plan.Endpoint)
	}

	base := sw.plan.BaseSlot * status.SlotsPerDevice
	unitID := sw.plan.UnitID

	if sw.needFull {
		if err := sw.cli.WriteRegisters(areaHoldingRegisters, unitID, base, sw.fullBlockRegs(s)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	slots := []struct {
		name string
		slot uint16
		have *uint16
		want uint16
	}{
		{"health", status.SlotHealthCode, &sw.last.Health, s.Health},
		{"last_error", status.SlotLastErrorCode, &sw.last.LastErrorCode, s.LastErrorCode},
		{"seconds_in_error", status.SlotSecondsInError, &sw.last.SecondsInError, s.SecondsInError},
	}

	var errs []string
	for _, sl := range slots {
		if *sl.have == sl.want {
			continue
		}
		if err := sw.cli.WriteRegisters(areaHoldingRegisters, unitID, base+sl.slot, []uint16{sl.want}); err != nil {
			errs = append(errs, fmt.Sprintf("%s write failed: %v", sl.name, err))
			continue
		}
		*sl.have = sl.want
	}

	if len(errs) > 0 {
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}

func (sw *blockStatusWriter) fullBlockRegs(s status.Snapshot) []uint16 {
	regs := status.Encode(s)
	copy(regs[status.SlotDeviceNameStart:status.SlotDeviceNameEnd+1], sw.nameRegs)
	return regs
}

// encodeDeviceNameRegs packs up to 16 ASCII characters into 8 registers,
// two bytes each, high byte first. Non-printable bytes become '?'.
func encodeDeviceNameRegs(name string) []uint16 {
	out := make([]uint16, status.SlotDeviceNameSlots)

	b := []byte(name)
	if len(b) > status.DeviceNameMaxChars {
		b = b[:status.DeviceNameMaxChars]
	}
	for i, c := range b {
		if c < 0x20 || c > 0x7E {
			c = '?'
		}
		if i%2 == 0 {
			out[i/2] |= uint16(c) << 8
		} else {
			out[i/2] |= uint16(c)
		}
	}
	return out
}
