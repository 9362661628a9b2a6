// internal/config/config.go
package config

type Config struct {
	Bridge BridgeConfig `yaml:"bridge" toml:"bridge"`
}

type BridgeConfig struct {
	Links  []LinkConfig  `yaml:"links" toml:"links"`
	Meters []MeterConfig `yaml:"meters" toml:"meters"`
	API    APIConfig     `yaml:"api" toml:"api"`
	Log    LogConfig     `yaml:"log" toml:"log"`
}

// ---- LINK (one Prologix adapter) ----

type LinkConfig struct {
	ID        string `yaml:"id" toml:"id"`
	Port      string `yaml:"port" toml:"port"` // serial device; unused when simulated
	Baud      int    `yaml:"baud" toml:"baud"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
	Debug     bool   `yaml:"debug" toml:"debug"`
	Identity  string `yaml:"identity" toml:"identity"` // required substring of ++ver

	// Simulate replaces the serial port with an in-process adapter and
	// simulated meters at every configured address.
	Simulate bool `yaml:"simulate" toml:"simulate"`
}

// ---- METER ----

type MeterConfig struct {
	ID      string         `yaml:"id" toml:"id"`
	Link    string         `yaml:"link" toml:"link"`
	Address int            `yaml:"address" toml:"address"`
	Poll    PollConfig     `yaml:"poll" toml:"poll"`
	Setup   SetupConfig    `yaml:"setup" toml:"setup"`
	Targets []TargetConfig `yaml:"targets" toml:"targets"`

	// Device status block (optional, opt-in by endpoint)
	Status StatusConfig `yaml:"status" toml:"status"`
}

// SetupConfig is applied at startup and after every link reopen.
// Empty fields leave the meter as it is.
type SetupConfig struct {
	Function      string  `yaml:"function" toml:"function"`   // VDC, VAC, OHM2W, OHM4W, ADC, AAC, EXTOHM or 1..7
	Range         string  `yaml:"range" toml:"range"`         // 30m .. 30M or AUTO
	Digits        float64 `yaml:"digits" toml:"digits"`       // 3, 3.5, 4, 4.5, 5, 5.5
	AutoZero      string  `yaml:"auto_zero" toml:"auto_zero"` // on | off
	Trigger       string  `yaml:"trigger" toml:"trigger"`     // internal, external, single, hold, fast
	Display       string  `yaml:"display" toml:"display"`
	DisplayOnline bool    `yaml:"display_online" toml:"display_online"`
}

// Empty reports whether no setting is requested.
func (s SetupConfig) Empty() bool {
	return s.Function == "" && s.Range == "" && s.Digits == 0 &&
		s.AutoZero == "" && s.Trigger == "" && s.Display == ""
}

// ---- TARGET ----

const (
	TargetModbus = "modbus"
	TargetIngest = "ingest"
)

type TargetConfig struct {
	Kind      string `yaml:"kind" toml:"kind"` // modbus | ingest
	Endpoint  string `yaml:"endpoint" toml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id" toml:"unit_id"`
	Address   uint16 `yaml:"address" toml:"address"` // first holding register of the reading block
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

// ---- STATUS ----

type StatusConfig struct {
	Kind       string `yaml:"kind" toml:"kind"`
	Endpoint   string `yaml:"endpoint" toml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id" toml:"unit_id"`
	Slot       uint16 `yaml:"slot" toml:"slot"`
	DeviceName string `yaml:"device_name" toml:"device_name"`
}

// Enabled reports whether the meter opted into a status block.
func (s StatusConfig) Enabled() bool { return s.Endpoint != "" }

// ---- POLL ----

type PollConfig struct {
	IntervalMs int `yaml:"interval_ms" toml:"interval_ms"`
}

// ---- API / LOG ----

type APIConfig struct {
	Listen string `yaml:"listen" toml:"listen"` // empty disables the REST view
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error
}
