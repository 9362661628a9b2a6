// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: empty")
	}

	switch strings.ToLower(cfg.Bridge.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", cfg.Bridge.Log.Level)
	}

	// ------------------------------------------------------------
	// LINKS
	// ------------------------------------------------------------

	links := make(map[string]bool)
	for _, l := range cfg.Bridge.Links {
		if l.ID == "" {
			return fmt.Errorf("link: id required")
		}
		if links[l.ID] {
			return fmt.Errorf("link %q: duplicate id", l.ID)
		}
		links[l.ID] = true

		if l.Port == "" && !l.Simulate {
			return fmt.Errorf("link %q: port required unless simulate is set", l.ID)
		}
		if l.Baud < 0 || l.TimeoutMs < 0 {
			return fmt.Errorf("link %q: baud and timeout_ms must not be negative", l.ID)
		}
	}

	if len(cfg.Bridge.Meters) == 0 {
		return fmt.Errorf("config: at least one meter required")
	}

	// ------------------------------------------------------------
	// METERS
	// ------------------------------------------------------------

	meters := make(map[string]bool)
	// key = link | address
	busOwner := make(map[string]string)

	for _, m := range cfg.Bridge.Meters {
		if m.ID == "" {
			return fmt.Errorf("meter: id required")
		}
		if meters[m.ID] {
			return fmt.Errorf("meter %q: duplicate id", m.ID)
		}
		meters[m.ID] = true

		if !links[m.Link] {
			return fmt.Errorf("meter %q: unknown link %q", m.ID, m.Link)
		}
		if m.Address < 0 || m.Address > hp3478a.MaxAddress {
			return fmt.Errorf("meter %q: address %d out of range 0..%d", m.ID, m.Address, hp3478a.MaxAddress)
		}

		key := fmt.Sprintf("%s|%d", m.Link, m.Address)
		if prev, exists := busOwner[key]; exists {
			return fmt.Errorf(
				"bus address collision: link=%s address=%d used by meters %q and %q",
				m.Link, m.Address, prev, m.ID,
			)
		}
		busOwner[key] = m.ID

		if m.Poll.IntervalMs < 0 {
			return fmt.Errorf("meter %q: poll.interval_ms must not be negative", m.ID)
		}

		if err := validateSetup(m.Setup); err != nil {
			return fmt.Errorf("meter %q: setup: %w", m.ID, err)
		}

		for _, t := range m.Targets {
			if err := validateKind(t.Kind); err != nil {
				return fmt.Errorf("meter %q: target %q: %w", m.ID, t.Endpoint, err)
			}
			if t.Endpoint == "" {
				return fmt.Errorf("meter %q: target endpoint required", m.ID)
			}
			if int(t.Address)+status.ReadingRegisters > 0x10000 {
				return fmt.Errorf("meter %q: target %q: reading block at %d exceeds register space", m.ID, t.Endpoint, t.Address)
			}
		}
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (PER-METER, OPT-IN)
	// ------------------------------------------------------------

	// key = endpoint | unit_id | slot
	statusOwner := make(map[string]string)

	for _, m := range cfg.Bridge.Meters {
		// device_name sanity (ASCII only)
		for i := 0; i < len(m.Status.DeviceName); i++ {
			if m.Status.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"meter %q: device_name must contain ASCII characters only",
					m.ID,
				)
			}
		}

		// status is opt-in
		if !m.Status.Enabled() {
			continue
		}
		if err := validateKind(m.Status.Kind); err != nil {
			return fmt.Errorf("meter %q: status: %w", m.ID, err)
		}
		if (int(m.Status.Slot)+1)*status.SlotsPerDevice > 0x10000 {
			return fmt.Errorf("meter %q: status slot %d exceeds register space", m.ID, m.Status.Slot)
		}

		key := fmt.Sprintf("%s|%d|%d", m.Status.Endpoint, m.Status.UnitID, m.Status.Slot)
		if prev, exists := statusOwner[key]; exists {
			return fmt.Errorf(
				"status slot collision: endpoint=%s unit_id=%d slot=%d used by meters %q and %q",
				m.Status.Endpoint,
				m.Status.UnitID,
				m.Status.Slot,
				prev,
				m.ID,
			)
		}
		statusOwner[key] = m.ID
	}

	// ------------------------------------------------------------
	// DESTINATION MEMORY GEOMETRY VALIDATION
	// ------------------------------------------------------------

	type span struct {
		start uint16
		end   uint16
		owner string
	}

	// key = endpoint | unit_id
	spans := make(map[string][]span)

	add := func(endpoint string, unitID uint8, start, qty uint16, owner string) error {
		end := start + qty - 1
		key := fmt.Sprintf("%s|%d", endpoint, unitID)

		for _, s := range spans[key] {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"memory overlap: endpoint=%s unit_id=%d range=%d-%d (%s) overlaps with range=%d-%d (%s)",
					endpoint, unitID, start, end, owner, s.start, s.end, s.owner,
				)
			}
		}
		spans[key] = append(spans[key], span{start: start, end: end, owner: owner})
		return nil
	}

	for _, m := range cfg.Bridge.Meters {
		for _, t := range m.Targets {
			if err := add(t.Endpoint, t.UnitID, t.Address, status.ReadingRegisters, "meter "+m.ID+" reading"); err != nil {
				return err
			}
		}
		if m.Status.Enabled() {
			base := m.Status.Slot * status.SlotsPerDevice
			if err := add(m.Status.Endpoint, m.Status.UnitID, base, status.SlotsPerDevice, "meter "+m.ID+" status"); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateKind(kind string) error {
	switch kind {
	case "", TargetModbus, TargetIngest:
		return nil
	}
	return fmt.Errorf("kind %q: must be %s or %s", kind, TargetModbus, TargetIngest)
}

// validateSetup parses every requested setting the way the poller will.
func validateSetup(s SetupConfig) error {
	if s.Function != "" {
		if _, err := hp3478a.ParseFunction(s.Function); err != nil {
			return err
		}
	}
	if s.Range != "" {
		if _, err := hp3478a.ParseRange(s.Range); err != nil {
			return err
		}
	}
	if s.Digits != 0 {
		if _, err := hp3478a.DigitsCode(s.Digits); err != nil {
			return err
		}
	}
	if _, err := ParseAutoZero(s.AutoZero); err != nil {
		return err
	}
	if s.Trigger != "" {
		if _, err := hp3478a.ParseTrigger(s.Trigger); err != nil {
			return err
		}
	}
	if s.Display != "" {
		if err := hp3478a.ValidateDisplay(s.Display); err != nil {
			return err
		}
	}
	return nil
}

// ParseAutoZero maps "on"/"off" to a setting; "" means unset.
func ParseAutoZero(s string) (*bool, error) {
	var v bool
	switch strings.ToLower(s) {
	case "":
		return nil, nil
	case "on", "true", "1":
		v = true
	case "off", "false", "0":
		v = false
	default:
		return nil, fmt.Errorf("auto_zero %q: must be on or off", s)
	}
	return &v, nil
}
