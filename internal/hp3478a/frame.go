// internal/hp3478a/frame.go
package hp3478a

import "time"

// FrameSize is the length of the answer to the B command.
const FrameSize = 5

// Frame is the raw binary status as sent by the meter.
//
// Layout (bit 0 = LSB):
//
//	byte 0  bits 0-1 digits, 2-4 range, 5-7 function
//	byte 1  status bits (trigger, auto range/zero, 50Hz, front, cal RAM)
//	byte 2  SRQ mask
//	byte 3  error flags
//	byte 4  raw DAC value
type Frame [FrameSize]byte

// byte 1
const (
	bitTriggerInternal = 0
	bitAutoRange       = 1
	bitAutoZero        = 2
	bitFreq50Hz        = 3
	bitFrontPorts      = 4
	bitCalRAM          = 5
	bitTriggerExternal = 6
)

// byte 2; bit 1 unused, bit 6 always zero
const (
	bitSRQReading   = 0
	bitSRQSyntaxErr = 2
	bitSRQHWErr     = 3
	bitSRQKbd       = 4
	bitSRQCalFailed = 5
	bitSRQPowerOn   = 7
)

// byte 3
const (
	bitErrChecksum   = 0
	bitErrRAM        = 1
	bitErrROM        = 2
	bitErrADSlope    = 3
	bitErrADSelfTest = 4
	bitErrADLink     = 5
)

// Status is the last known configuration of one meter.
// It is always replaced as a whole; every field comes from one frame.
type Status struct {
	Function Function // 1..7
	Range    int      // 1..7, meaning depends on Function
	Digits   int      // 1 = 5½, 2 = 4½, 3 = 3½

	TriggerExternal bool
	CalRAM          bool
	FrontPorts      bool
	Freq50Hz        bool // false = 60 Hz
	AutoZero        bool
	AutoRange       bool
	TriggerInternal bool // false = single/hold

	SRQ    SRQMask
	Errors ErrorFlags

	DAC uint8

	Fetched time.Time
}

// SRQMask holds the conditions on which the meter asserts SRQ.
type SRQMask struct {
	Reading   bool
	SyntaxErr bool
	HWErr     bool
	Kbd       bool
	CalFailed bool
	PowerOn   bool // rear switch 3
}

// ErrorFlags are the self-test results.
type ErrorFlags struct {
	Checksum   bool // CAL RAM checksum; re-asserted on every affected range
	RAM        bool
	ROM        bool
	ADSlope    bool
	ADSelfTest bool
	ADLink     bool
}

// Any reports whether at least one error flag is set.
func (e ErrorFlags) Any() bool {
	return e.Checksum || e.RAM || e.ROM || e.ADSlope || e.ADSelfTest || e.ADLink
}

func bit(b byte, n uint) bool { return b&(1<<n) != 0 }

func setBit(b *byte, n uint, v bool) {
	if v {
		*b |= 1 << n
	}
}

// DecodeFrame unpacks a status frame. fetched is stored as-is.
func DecodeFrame(f Frame, fetched time.Time) Status {
	var s Status

	b0 := f[0]
	s.Digits = int(b0 & 0x03)
	s.Range = int((b0 >> 2) & 0x07)
	s.Function = Function((b0 >> 5) & 0x07)

	b1 := f[1]
	s.TriggerInternal = bit(b1, bitTriggerInternal)
	s.AutoRange = bit(b1, bitAutoRange)
	s.AutoZero = bit(b1, bitAutoZero)
	s.Freq50Hz = bit(b1, bitFreq50Hz)
	s.FrontPorts = bit(b1, bitFrontPorts)
	s.CalRAM = bit(b1, bitCalRAM)
	s.TriggerExternal = bit(b1, bitTriggerExternal)

	b2 := f[2]
	s.SRQ = SRQMask{
		Reading:   bit(b2, bitSRQReading),
		SyntaxErr: bit(b2, bitSRQSyntaxErr),
		HWErr:     bit(b2, bitSRQHWErr),
		Kbd:       bit(b2, bitSRQKbd),
		CalFailed: bit(b2, bitSRQCalFailed),
		PowerOn:   bit(b2, bitSRQPowerOn),
	}

	s.Errors = decodeErrors(f[3])
	s.DAC = f[4]
	s.Fetched = fetched

	return s
}

func decodeErrors(b byte) ErrorFlags {
	return ErrorFlags{
		Checksum:   bit(b, bitErrChecksum),
		RAM:        bit(b, bitErrRAM),
		ROM:        bit(b, bitErrROM),
		ADSlope:    bit(b, bitErrADSlope),
		ADSelfTest: bit(b, bitErrADSelfTest),
		ADLink:     bit(b, bitErrADLink),
	}
}

// EncodeFrame packs s the way the meter would report it.
// Out of range codes are truncated to their bit width.
func EncodeFrame(s Status) Frame {
	var f Frame

	f[0] = byte(s.Digits)&0x03 | (byte(s.Range)&0x07)<<2 | (byte(s.Function)&0x07)<<5

	setBit(&f[1], bitTriggerInternal, s.TriggerInternal)
	setBit(&f[1], bitAutoRange, s.AutoRange)
	setBit(&f[1], bitAutoZero, s.AutoZero)
	setBit(&f[1], bitFreq50Hz, s.Freq50Hz)
	setBit(&f[1], bitFrontPorts, s.FrontPorts)
	setBit(&f[1], bitCalRAM, s.CalRAM)
	setBit(&f[1], bitTriggerExternal, s.TriggerExternal)

	setBit(&f[2], bitSRQReading, s.SRQ.Reading)
	setBit(&f[2], bitSRQSyntaxErr, s.SRQ.SyntaxErr)
	setBit(&f[2], bitSRQHWErr, s.SRQ.HWErr)
	setBit(&f[2], bitSRQKbd, s.SRQ.Kbd)
	setBit(&f[2], bitSRQCalFailed, s.SRQ.CalFailed)
	setBit(&f[2], bitSRQPowerOn, s.SRQ.PowerOn)

	f[3] = EncodeErrors(s.Errors)
	f[4] = s.DAC

	return f
}

// EncodeErrors packs error flags into the byte 3 layout, which is also
// the layout of the E command's answer.
func EncodeErrors(e ErrorFlags) byte {
	var b byte
	setBit(&b, bitErrChecksum, e.Checksum)
	setBit(&b, bitErrRAM, e.RAM)
	setBit(&b, bitErrROM, e.ROM)
	setBit(&b, bitErrADSlope, e.ADSlope)
	setBit(&b, bitErrADSelfTest, e.ADSelfTest)
	setBit(&b, bitErrADLink, e.ADLink)
	return b
}

// StatusByte is byte 1 of the frame for s.
func (s Status) StatusByte() byte { return EncodeFrame(s)[1] }

// FunctionName is the label of the status' function.
func (s Status) FunctionName() (string, bool) { return FunctionName(s.Function) }

// RangeName is the label of the status' range, e.g. "30mV".
func (s Status) RangeName() (string, bool) { return RangeName(s.Range, s.Function) }

// RangeValue is the full scale of the status' range.
func (s Status) RangeValue() (float64, bool) { return RangeValue(s.Range, s.Function) }

// DigitsValue is the status' resolution (3.5, 4.5 or 5.5).
func (s Status) DigitsValue() (float64, bool) { return DigitsValue(s.Digits) }
