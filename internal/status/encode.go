// internal/status/encode.go
package status

import (
	"math"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
)

// Encode converts a Snapshot into the live part of a device status block.
// Reserved and device name slots are left zero.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError

	return regs
}

// EncodeReading packs one measurement and the status it was taken under
// into a reading block.
func EncodeReading(value float64, st hp3478a.Status) []uint16 {
	regs := make([]uint16, ReadingRegisters)

	bits := math.Float32bits(float32(value))
	regs[ReadingValueHi] = uint16(bits >> 16)
	regs[ReadingValueLo] = uint16(bits)

	f := hp3478a.EncodeFrame(st)
	regs[ReadingFunction] = uint16(st.Function)
	regs[ReadingRange] = uint16(st.Range)
	regs[ReadingDigits] = uint16(st.Digits)
	regs[ReadingStatusBits] = uint16(f[1])
	regs[ReadingErrorBits] = uint16(f[3])
	regs[ReadingDAC] = uint16(st.DAC)

	return regs
}

// DecodeReadingValue recovers the float32 value from a reading block.
func DecodeReadingValue(regs []uint16) float32 {
	if len(regs) < 2 {
		return 0
	}
	return math.Float32frombits(uint32(regs[ReadingValueHi])<<16 | uint32(regs[ReadingValueLo]))
}
