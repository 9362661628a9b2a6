// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	cfg "github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
)

type fakeClient struct {
	values  map[string]float64
	failing map[string]error
	closed  bool
	calls   []string
}

func newFake() *fakeClient {
	return &fakeClient{values: map[string]float64{}, failing: map[string]error{}}
}

func (f *fakeClient) GetStatus(id string) (hp3478a.Status, error) {
	f.calls = append(f.calls, "B:"+id)
	if err := f.failing[id]; err != nil {
		return hp3478a.Status{}, err
	}
	return hp3478a.Status{Function: hp3478a.DCVolts, Range: 3}, nil
}

func (f *fakeClient) Measure(id string) (float64, error) {
	f.calls = append(f.calls, "M:"+id)
	return f.values[id], nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func twoMeters() Config {
	return Config{
		LinkID: "gpib0",
		Meters: []MeterSchedule{
			{ID: "a", Interval: time.Second},
			{ID: "b", Interval: time.Second},
		},
	}
}

func TestPollOnce_Success(t *testing.T) {
	fc := newFake()
	fc.values["a"] = 1.25
	fc.values["b"] = -3

	p, err := New(twoMeters(), fc, nil, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := p.PollOnce()
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Err != nil || res[0].Value != 1.25 || res[1].Value != -3 {
		t.Fatalf("results=%+v", res)
	}
	if res[0].Status.Function != hp3478a.DCVolts {
		t.Fatalf("status=%+v", res[0].Status)
	}
	if res[0].CycleID == "" || res[0].CycleID != res[1].CycleID {
		t.Fatalf("cycle ids %q %q", res[0].CycleID, res[1].CycleID)
	}
	if res[0].LinkID != "gpib0" {
		t.Fatalf("link id=%q", res[0].LinkID)
	}
}

func TestPollOnce_MeterErrorKeepsLink(t *testing.T) {
	fc := newFake()
	fc.failing["a"] = &hp3478a.CommunicationError{Op: "status", Addr: 22, Reason: "no response"}

	p, _ := New(twoMeters(), fc, nil, nil)

	res := p.PollOnce()
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].Err == nil || res[0].Value != 0 {
		t.Fatalf("meter a should fail: %+v", res[0])
	}
	if res[1].Err != nil {
		t.Fatalf("meter b err=%v", res[1].Err)
	}
	if fc.closed {
		t.Fatalf("client closed on a meter error")
	}
	// status failed: no measurement for a
	for _, c := range fc.calls {
		if c == "M:a" {
			t.Fatalf("measured after failed status: %v", fc.calls)
		}
	}
}

func TestPollOnce_TransportDeathRebuilds(t *testing.T) {
	dead := newFake()
	dead.failing["a"] = prologix.ErrLinkUnavailable
	fresh := newFake()
	fresh.values["b"] = 7

	opened := 0
	factory := func() (Client, error) {
		opened++
		return fresh, nil
	}

	p, _ := New(twoMeters(), dead, factory, nil)
	clock := time.Unix(1000, 0)
	p.now = func() time.Time { return clock }

	res := p.PollOnce()
	if len(res) != 2 || res[0].Err == nil || res[1].Err == nil {
		t.Fatalf("cycle should fail for both meters: %+v", res)
	}
	if !dead.closed {
		t.Fatalf("dead client not closed")
	}
	for _, c := range dead.calls {
		if c == "B:b" {
			t.Fatalf("meter b polled on a dead link")
		}
	}

	clock = clock.Add(time.Second)
	res = p.PollOnce()
	if opened != 1 {
		t.Fatalf("factory calls=%d", opened)
	}
	if res[1].Err != nil || res[1].Value != 7 {
		t.Fatalf("after rebuild: %+v", res[1])
	}
}

func TestPollOnce_FactoryFailure(t *testing.T) {
	boom := errors.New("no adapter")
	p, err := New(twoMeters(), nil, func() (Client, error) { return nil, boom }, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	res := p.PollOnce()
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	for _, r := range res {
		if !errors.Is(r.Err, boom) {
			t.Fatalf("err=%v", r.Err)
		}
	}
}

func TestPollOnce_RespectsIntervals(t *testing.T) {
	c := Config{
		LinkID: "gpib0",
		Meters: []MeterSchedule{
			{ID: "fast", Interval: time.Second},
			{ID: "slow", Interval: 3 * time.Second},
		},
	}
	fc := newFake()
	p, _ := New(c, fc, nil, nil)
	if p.Interval() != time.Second {
		t.Fatalf("interval=%v", p.Interval())
	}

	clock := time.Unix(0, 0)
	p.now = func() time.Time { return clock }

	polled := func() []string {
		var ids []string
		for _, r := range p.PollOnce() {
			ids = append(ids, r.MeterID)
		}
		return ids
	}

	if got := polled(); len(got) != 2 {
		t.Fatalf("first cycle=%v", got)
	}
	clock = clock.Add(time.Second - 50*time.Millisecond) // early tick within jitter
	if got := polled(); len(got) != 1 || got[0] != "fast" {
		t.Fatalf("second cycle=%v", got)
	}
	clock = clock.Add(time.Second)
	polled()
	clock = clock.Add(time.Second)
	if got := polled(); len(got) != 2 {
		t.Fatalf("fourth cycle=%v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	fc := newFake()
	cases := []Config{
		{Meters: []MeterSchedule{{ID: "a", Interval: time.Second}}},
		{LinkID: "l"},
		{LinkID: "l", Meters: []MeterSchedule{{Interval: time.Second}}},
		{LinkID: "l", Meters: []MeterSchedule{{ID: "a"}}},
	}
	for i, c := range cases {
		if _, err := New(c, fc, nil, nil); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	if _, err := New(twoMeters(), nil, nil, nil); err == nil {
		t.Fatalf("expected error without client and factory")
	}
}

func TestRun_EmitsAndStops(t *testing.T) {
	c := Config{LinkID: "l", Meters: []MeterSchedule{{ID: "a", Interval: 5 * time.Millisecond}}}
	p, _ := New(c, newFake(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan PollResult)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	select {
	case r := <-out:
		if r.MeterID != "a" {
			t.Fatalf("result=%+v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("no result")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestBuild_SimulatedLink(t *testing.T) {
	link := cfg.LinkConfig{ID: "sim", Simulate: true, TimeoutMs: 20}
	meters := []cfg.MeterConfig{
		{
			ID: "m1", Link: "sim", Address: 22,
			Poll:  cfg.PollConfig{IntervalMs: 100},
			Setup: cfg.SetupConfig{Function: "OHM2W", Range: "30k", Digits: 4.5},
		},
		{ID: "m2", Link: "sim", Address: 23, Poll: cfg.PollConfig{IntervalMs: 100}},
		{ID: "other", Link: "gpib9", Address: 1, Poll: cfg.PollConfig{IntervalMs: 100}},
	}

	p, closer, err := Build(link, meters, nil)
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	defer closer()

	res := p.PollOnce()
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	for _, r := range res {
		if r.Err != nil {
			t.Fatalf("%s err=%v", r.MeterID, r.Err)
		}
	}

	st := res[0].Status
	if st.Function != hp3478a.Ohms2Wire {
		t.Fatalf("function=%v", st.Function)
	}
	if name, _ := st.RangeName(); name != "30kΩ" {
		t.Fatalf("range=%q", name)
	}
	if d, _ := st.DigitsValue(); d != 4.5 {
		t.Fatalf("digits=%v", d)
	}
	if res[1].Status.Function != hp3478a.DCVolts {
		t.Fatalf("m2 function=%v", res[1].Status.Function)
	}
	if res[1].Value < 1.2 || res[1].Value > 1.8 {
		t.Fatalf("simulated value=%v", res[1].Value)
	}
}

func TestBuild_MissingAdapterIsNotFatal(t *testing.T) {
	link := cfg.LinkConfig{ID: "gpib0", Port: "/nonexistent/tty", TimeoutMs: 20}
	meters := []cfg.MeterConfig{{ID: "m1", Link: "gpib0", Address: 22, Poll: cfg.PollConfig{IntervalMs: 100}}}

	p, closer, err := Build(link, meters, nil)
	if err != nil {
		t.Fatalf("Build err=%v", err)
	}
	defer closer()

	res := p.PollOnce()
	if len(res) != 1 || !errors.Is(res[0].Err, prologix.ErrLinkUnavailable) {
		t.Fatalf("results=%+v", res)
	}
}
