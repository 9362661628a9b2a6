// internal/writer/writer_test.go
package writer

import (
	"errors"
	"testing"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

// ---- fake endpoint client ----

type writeCall struct {
	area   byte
	unitID uint8
	addr   uint16
	regs   []uint16
}

type fakeEndpointClient struct {
	writes []writeCall
	fail   error

	lastRegsAddr uint16
	lastRegs     []uint16
}

func (f *fakeEndpointClient) WriteBits(area byte, unitID uint8, addr uint16, bits []bool) error {
	return errors.New("fake: bits not expected")
}

func (f *fakeEndpointClient) WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error {
	if f.fail != nil {
		return f.fail
	}
	f.writes = append(f.writes, writeCall{area: area, unitID: unitID, addr: addr, regs: regs})
	f.lastRegsAddr = addr
	f.lastRegs = regs
	return nil
}

// ---- tests ----

func reading(v float64) poller.PollResult {
	return poller.PollResult{
		MeterID: "m1",
		Value:   v,
		Status: hp3478a.Status{
			Function: hp3478a.DCVolts,
			Range:    3,
			Digits:   1,
			AutoZero: true,
			DAC:      0x5A,
		},
	}
}

func TestWriter_ReadingBlockToEveryTarget(t *testing.T) {
	a := &fakeEndpointClient{}
	b := &fakeEndpointClient{}

	plan := Plan{
		MeterID: "m1",
		Targets: []TargetEndpoint{
			{Endpoint: "ep1", UnitID: 1, Address: 100},
			{Endpoint: "ep2", UnitID: 7, Address: 0},
		},
	}
	w := New(plan, map[string]endpointClient{"ep1": a, "ep2": b})

	if err := w.Write(reading(1.5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(a.writes) != 1 || len(b.writes) != 1 {
		t.Fatalf("writes a=%d b=%d", len(a.writes), len(b.writes))
	}
	got := a.writes[0]
	if got.area != 3 || got.unitID != 1 || got.addr != 100 {
		t.Fatalf("write=%+v", got)
	}
	if len(got.regs) != status.ReadingRegisters {
		t.Fatalf("expected %d regs, got %d", status.ReadingRegisters, len(got.regs))
	}
	if v := status.DecodeReadingValue(got.regs); v != 1.5 {
		t.Fatalf("value=%v", v)
	}
	if got.regs[status.ReadingFunction] != uint16(hp3478a.DCVolts) || got.regs[status.ReadingDAC] != 0x5A {
		t.Fatalf("regs=%v", got.regs)
	}
	if b.writes[0].unitID != 7 || b.writes[0].addr != 0 {
		t.Fatalf("second target=%+v", b.writes[0])
	}
}

func TestWriter_FailedPollWritesNothing(t *testing.T) {
	a := &fakeEndpointClient{}
	w := New(Plan{Targets: []TargetEndpoint{{Endpoint: "ep1"}}}, map[string]endpointClient{"ep1": a})

	res := reading(2)
	res.Err = errors.New("no response")
	if err := w.Write(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(a.writes))
	}
}

func TestWriter_CollectsErrors(t *testing.T) {
	broken := &fakeEndpointClient{fail: errors.New("connection refused")}
	ok := &fakeEndpointClient{}

	plan := Plan{Targets: []TargetEndpoint{
		{Endpoint: "bad"},
		{Endpoint: "missing"},
		{Endpoint: "good", Address: 8},
	}}
	w := New(plan, map[string]endpointClient{"bad": broken, "good": ok})

	if err := w.Write(reading(3)); err == nil {
		t.Fatalf("expected error")
	}
	if len(ok.writes) != 1 || ok.writes[0].addr != 8 {
		t.Fatalf("healthy target not written: %+v", ok.writes)
	}
}
