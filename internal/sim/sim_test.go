// internal/sim/sim_test.go
package sim

import (
	"strings"
	"testing"
	"time"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
)

func readAll(a *Adapter) string {
	var sb strings.Builder
	buf := make([]byte, 64)
	for {
		n, err := a.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String()
		}
	}
}

func TestAdapter_RoutesByAddress(t *testing.T) {
	a := NewAdapter()
	m1 := NewHP3478A()
	m2 := NewHP3478A()
	m1.SetReading(1.5)
	m2.SetReading(-2)
	a.Attach(23, m1)
	a.Attach(24, m2)

	a.Write([]byte("++addr 24\n \n++read eoi\n"))
	if got := readAll(a); got != "-2.00000E+00\r\n" {
		t.Fatalf("reading=%q", got)
	}

	a.Write([]byte("++addr 23\nF3\n"))
	if m1.State().Function != hp3478a.Ohms2Wire {
		t.Fatalf("m1 function=%v", m1.State().Function)
	}
	if m2.State().Function != hp3478a.DCVolts {
		t.Fatalf("m2 function changed")
	}
}

func TestAdapter_VersionAndSilence(t *testing.T) {
	a := NewAdapter()
	a.Write([]byte("++ver\n"))
	if got := readAll(a); got != DefaultVersion+"\r\n" {
		t.Fatalf("ver=%q", got)
	}

	a.SetVersion("")
	a.Write([]byte("++ver\n"))
	if got := readAll(a); got != "" {
		t.Fatalf("silent adapter answered %q", got)
	}
}

func TestAdapter_UnescapesDeviceText(t *testing.T) {
	a := NewAdapter()
	m := NewHP3478A()
	a.Attach(1, m)

	a.Write([]byte("++addr 1\nD2A\x1b+B\x1b\nC\n"))
	text, mode := m.Display()
	if text != "A+B\nC" || mode != DisplayOnline {
		t.Fatalf("display=%q mode=%d", text, mode)
	}
	lines := a.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines=%q", lines)
	}
}

func TestAdapter_Closed(t *testing.T) {
	a := NewAdapter()
	a.Close()
	if _, err := a.Write([]byte("x\n")); err != ErrClosed {
		t.Fatalf("write err=%v", err)
	}
	if _, err := a.Read(make([]byte, 1)); err != ErrClosed {
		t.Fatalf("read err=%v", err)
	}
	if !a.Closed() {
		t.Fatalf("Closed()=false")
	}
}

func TestHP3478A_StatusFrame(t *testing.T) {
	m := NewHP3478A()
	m.Command("B")
	out := m.Talk()
	if len(out) != hp3478a.FrameSize {
		t.Fatalf("len=%d", len(out))
	}
	var f hp3478a.Frame
	copy(f[:], out)
	s := hp3478a.DecodeFrame(f, time.Time{})
	if s.Function != hp3478a.DCVolts || s.Range != 3 || s.Digits != 1 {
		t.Fatalf("status=%+v", s)
	}
	if !s.AutoRange || !s.AutoZero || !s.TriggerInternal || !s.SRQ.PowerOn {
		t.Fatalf("flags=%+v", s)
	}
	if s.DAC != 0x5A {
		t.Fatalf("dac=%#x", s.DAC)
	}

	// talk mode falls back to readings
	if got := string(m.Talk()); got != "+0.00000E+00\r\n" {
		t.Fatalf("second talk=%q", got)
	}
}

func TestHP3478A_Settings(t *testing.T) {
	m := NewHP3478A()

	m.Command("F1R-2N4Z0T4")
	s := m.State()
	if s.Range != 1 || s.AutoRange {
		t.Fatalf("range=%d auto=%t", s.Range, s.AutoRange)
	}
	if s.Digits != 2 || s.AutoZero {
		t.Fatalf("digits=%d autozero=%t", s.Digits, s.AutoZero)
	}
	if s.TriggerInternal || s.TriggerExternal {
		t.Fatalf("hold left trigger flags set")
	}

	m.Command("RA")
	if !m.State().AutoRange {
		t.Fatalf("RA did not enable auto range")
	}
}

func TestHP3478A_RejectsRangeFunctionLacks(t *testing.T) {
	m := NewHP3478A()
	before := m.State()

	m.Command("R7") // 30M under DC volts
	if m.State() != before {
		t.Fatalf("state changed on rejected range")
	}
	if m.SyntaxErrors() != 1 {
		t.Fatalf("syntax errors=%d", m.SyntaxErrors())
	}
}

func TestHP3478A_FunctionChangeFitsRange(t *testing.T) {
	m := NewHP3478A()
	m.Command("F3R7") // 30MΩ, code 7
	m.Command("F1")
	if m.State().Range != 5 {
		t.Fatalf("range=%d, want highest DCV range 5", m.State().Range)
	}
}

func TestHP3478A_ErrorsClearOnRead(t *testing.T) {
	m := NewHP3478A()
	m.SetErrors(hp3478a.ErrorFlags{ROM: true})

	m.Command("E")
	out := m.Talk()
	if out[0] != 0x04 {
		t.Fatalf("errors byte=%#x", out[0])
	}
	if m.State().Errors.Any() {
		t.Fatalf("errors not cleared")
	}
}

func TestHP3478A_ClearRestoresPowerOn(t *testing.T) {
	m := NewHP3478A()
	m.SetReading(3)
	m.Command("F5D3HELLO")
	m.Clear()

	if m.State().Function != hp3478a.DCVolts {
		t.Fatalf("function=%v", m.State().Function)
	}
	if text, mode := m.Display(); text != "" || mode != DisplayNormal {
		t.Fatalf("display=%q mode=%d", text, mode)
	}
	if got := string(m.Talk()); got != "+3.00000E+00\r\n" {
		t.Fatalf("reading lost: %q", got)
	}
}

func TestHP3478A_MuteAndTruncate(t *testing.T) {
	m := NewHP3478A()
	m.Mute(true)
	if out := m.Talk(); out != nil {
		t.Fatalf("muted talk=%q", out)
	}
	m.Mute(false)

	m.TruncateStatus(3)
	m.Command("B")
	if out := m.Talk(); len(out) != 3 {
		t.Fatalf("truncated len=%d", len(out))
	}
}
