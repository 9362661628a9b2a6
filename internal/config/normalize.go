// internal/config/normalize.go
package config

// Defaults filled in by Normalize.
const (
	DefaultBaud          = 921600
	DefaultLinkTimeoutMs = 250
	DefaultIdentity      = "Prologix"
	DefaultIntervalMs    = 1000
	DefaultTargetTimeout = 2000
	DefaultLogLevel      = "info"

	deviceNameMaxChars = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Bridge.Log.Level == "" {
		cfg.Bridge.Log.Level = DefaultLogLevel
	}

	for i := range cfg.Bridge.Links {
		l := &cfg.Bridge.Links[i]
		if l.Baud <= 0 {
			l.Baud = DefaultBaud
		}
		if l.TimeoutMs <= 0 {
			l.TimeoutMs = DefaultLinkTimeoutMs
		}
		if l.Identity == "" {
			l.Identity = DefaultIdentity
		}
	}

	for mi := range cfg.Bridge.Meters {
		m := &cfg.Bridge.Meters[mi]

		if m.Poll.IntervalMs <= 0 {
			m.Poll.IntervalMs = DefaultIntervalMs
		}

		for ti := range m.Targets {
			t := &m.Targets[ti]
			if t.Kind == "" {
				t.Kind = TargetModbus
			}
			if t.TimeoutMs <= 0 {
				t.TimeoutMs = DefaultTargetTimeout
			}
		}

		// Skip meters that did not opt into a status block
		if !m.Status.Enabled() {
			continue
		}
		if m.Status.Kind == "" {
			m.Status.Kind = TargetModbus
		}

		// device_name: ASCII already validated; defaults to the meter id,
		// truncated to the 16 characters the block can hold
		if m.Status.DeviceName == "" {
			m.Status.DeviceName = m.ID
		}
		if len(m.Status.DeviceName) > deviceNameMaxChars {
			m.Status.DeviceName = m.Status.DeviceName[:deviceNameMaxChars]
		}
	}
}
