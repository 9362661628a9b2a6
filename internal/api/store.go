// internal/api/store.go
package api

import (
	"sort"
	"sync"
	"time"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

// MeterView is the JSON shape of one meter's latest state.
type MeterView struct {
	ID     string `codec:"id"`
	Link   string `codec:"link"`
	Health string `codec:"health"`

	LastErrorCode  uint16 `codec:"last_error_code"`
	SecondsInError uint16 `codec:"seconds_in_error"`

	// Set from the last successful poll; Error from the last failed one.
	CycleID   string    `codec:"cycle_id,omitempty"`
	UpdatedAt time.Time `codec:"updated_at,omitempty"`
	Value     *float64  `codec:"value,omitempty"`
	Function  string    `codec:"function,omitempty"`
	Range     string    `codec:"range,omitempty"`
	Digits    float64   `codec:"digits,omitempty"`
	AutoZero  bool      `codec:"auto_zero"`
	AutoRange bool      `codec:"auto_range"`
	Trigger   string    `codec:"trigger,omitempty"`
	SelfTest  []string  `codec:"self_test_errors,omitempty"`
	Error     string    `codec:"error,omitempty"`
}

// Store holds the latest view of every meter.
type Store struct {
	mu     sync.RWMutex
	meters map[string]*MeterView
}

func NewStore() *Store {
	return &Store{meters: make(map[string]*MeterView)}
}

// Register makes a meter visible before its first poll.
func (s *Store) Register(id, link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meters[id]; !ok {
		s.meters[id] = &MeterView{ID: id, Link: link, Health: HealthName(status.HealthUnknown)}
	}
}

// Observe records a poll result. A failed poll keeps the last good reading.
func (s *Store) Observe(res poller.PollResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view(res.MeterID, res.LinkID)
	if res.Err != nil {
		v.Error = res.Err.Error()
		return
	}

	value := res.Value
	st := res.Status
	v.Error = ""
	v.CycleID = res.CycleID
	v.UpdatedAt = res.At
	v.Value = &value
	v.Function, _ = st.FunctionName()
	v.Range, _ = st.RangeName()
	v.Digits, _ = st.DigitsValue()
	v.AutoZero = st.AutoZero
	v.AutoRange = st.AutoRange
	v.Trigger = triggerName(st.TriggerInternal, st.TriggerExternal)
	v.SelfTest = selfTestErrors(st)
}

// SetHealth records the meter's status snapshot.
func (s *Store) SetHealth(id, link string, snap status.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view(id, link)
	v.Health = HealthName(snap.Health)
	v.LastErrorCode = snap.LastErrorCode
	v.SecondsInError = snap.SecondsInError
}

// Get returns a copy of one meter's view.
func (s *Store) Get(id string) (MeterView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meters[id]
	if !ok {
		return MeterView{}, false
	}
	return *v, true
}

// List returns copies of all views ordered by id.
func (s *Store) List() []MeterView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MeterView, 0, len(s.meters))
	for _, v := range s.meters {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) view(id, link string) *MeterView {
	v, ok := s.meters[id]
	if !ok {
		v = &MeterView{ID: id, Link: link}
		s.meters[id] = v
	}
	return v
}

// HealthName is the label of a health code.
func HealthName(h uint16) string {
	switch h {
	case status.HealthOK:
		return "ok"
	case status.HealthError:
		return "error"
	case status.HealthStale:
		return "stale"
	case status.HealthDisabled:
		return "disabled"
	}
	return "unknown"
}

func triggerName(internal, external bool) string {
	switch {
	case internal && external:
		return "internal+external"
	case internal:
		return "internal"
	case external:
		return "external"
	}
	return "single/hold"
}

func selfTestErrors(st hp3478a.Status) []string {
	e := st.Errors
	var out []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{e.Checksum, "cal_checksum"},
		{e.RAM, "ram"},
		{e.ROM, "rom"},
		{e.ADSlope, "ad_slope"},
		{e.ADSelfTest, "ad_self_test"},
		{e.ADLink, "ad_link"},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}
