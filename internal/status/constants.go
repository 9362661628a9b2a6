// internal/status/constants.go
package status

// Status block: a fixed run of holding registers per meter, addressed as
// slot*SlotsPerDevice. The layout is wire format; nothing here is configurable.
const (
	SlotsPerDevice = 20

	SlotHealthCode     = 0 // one of the Health* codes
	SlotLastErrorCode  = 1 // Error* code or a driver error class
	SlotSecondsInError = 2 // saturates at MaxSecondsInError

	// 3..10 stay zero
	SlotReservedStart = 3
	SlotReservedEnd   = 10

	// ASCII name, two characters per register, high byte first;
	// it always occupies the tail of the block.
	SlotDeviceNameStart = 11
	SlotDeviceNameSlots = 8
	SlotDeviceNameEnd   = SlotDeviceNameStart + SlotDeviceNameSlots - 1
	DeviceNameMaxChars  = 2 * SlotDeviceNameSlots
)

const MaxSecondsInError = 65535

// Health codes.
const (
	HealthUnknown  uint16 = 0 // nothing polled yet
	HealthOK       uint16 = 1
	HealthError    uint16 = 2
	HealthStale    uint16 = 3 // healthy, but no result for too long
	HealthDisabled uint16 = 4
)

// Error codes. Codes 2..6 belong to the driver: link unavailable,
// communication, parse, validation, verification.
const (
	ErrorNone         uint16 = 0
	ErrorUnclassified uint16 = 1
)

// Reading block: written at each target's address after every good poll.
const (
	ReadingValueHi    = 0 // float32 bits, high word
	ReadingValueLo    = 1 // float32 bits, low word
	ReadingFunction   = 2
	ReadingRange      = 3
	ReadingDigits     = 4
	ReadingStatusBits = 5 // status frame byte 1
	ReadingErrorBits  = 6 // status frame byte 3
	ReadingDAC        = 7

	ReadingRegisters = 8
)
