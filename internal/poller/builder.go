// internal/poller/builder.go
package poller

import (
	"fmt"
	"math"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	cfg "github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
	"github.com/tamzrod/hp3478a-bridge/internal/sim"
)

// Build constructs the Poller of one link and wires the link lifecycle.
// The link is reused while healthy.
// On transport death, Poller discards it and uses factory on a future tick;
// every (re)open applies the meters' setup again.
// An adapter that is missing at startup is not an error: the meters
// report it through their poll results until it appears.
func Build(l cfg.LinkConfig, meters []cfg.MeterConfig, logger log.Logger) (*Poller, func() error, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "link", l.ID)

	var schedule []MeterSchedule
	var own []cfg.MeterConfig
	for _, m := range meters {
		if m.Link != l.ID {
			continue
		}
		own = append(own, m)
		schedule = append(schedule, MeterSchedule{
			ID:       m.ID,
			Interval: time.Duration(m.Poll.IntervalMs) * time.Millisecond,
		})
	}

	// client factory: ONE attempt per call
	factory := func() (Client, error) {
		return openClient(l, own, logger)
	}

	// initial client; failure is retried by the poller
	client, err := factory()
	if err != nil {
		level.Warn(logger).Log("msg", "link not available at startup", "err", err)
		client = nil
	}

	p, err := New(Config{LinkID: l.ID, Meters: schedule}, client, factory, logger)
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, err
	}

	return p, p.Close, nil
}

// linkClient is one open link and a handle per configured meter.
type linkClient struct {
	link   *prologix.Link
	meters map[string]*hp3478a.Meter
}

func (c *linkClient) meter(id string) (*hp3478a.Meter, error) {
	m, ok := c.meters[id]
	if !ok {
		return nil, fmt.Errorf("poller: unknown meter %q", id)
	}
	return m, nil
}

func (c *linkClient) GetStatus(id string) (hp3478a.Status, error) {
	m, err := c.meter(id)
	if err != nil {
		return hp3478a.Status{}, err
	}
	return m.GetStatus()
}

func (c *linkClient) Measure(id string) (float64, error) {
	m, err := c.meter(id)
	if err != nil {
		return 0, err
	}
	return m.Measure()
}

func (c *linkClient) Close() error { return c.link.Close() }

func openClient(l cfg.LinkConfig, meters []cfg.MeterConfig, logger log.Logger) (Client, error) {
	pc := prologix.Config{
		Port:     l.Port,
		Baud:     l.Baud,
		Timeout:  time.Duration(l.TimeoutMs) * time.Millisecond,
		Identity: l.Identity,
		Debug:    l.Debug,
		Logger:   logger,
	}

	var link *prologix.Link
	if l.Simulate {
		if pc.Port == "" {
			pc.Port = "sim:" + l.ID
		}
		link = prologix.NewLink(simulatedBus(meters), pc)
	} else {
		link = prologix.Open(pc)
	}
	if err := link.Err(); err != nil {
		return nil, err
	}

	c := &linkClient{link: link, meters: make(map[string]*hp3478a.Meter, len(meters))}
	for _, mc := range meters {
		m, err := hp3478a.NewShared(link, mc.Address)
		if err != nil {
			_ = link.Close()
			return nil, err
		}
		if err := ApplySetup(m, mc.Setup, log.With(logger, "meter", mc.ID)); err != nil {
			_ = link.Close()
			return nil, err
		}
		c.meters[mc.ID] = m
	}
	return c, nil
}

// simulatedBus places a simulated meter at every configured address.
// Readings follow a slow sine so consumers see live data.
func simulatedBus(meters []cfg.MeterConfig) *sim.Adapter {
	a := sim.NewAdapter()
	start := time.Now()
	for i, mc := range meters {
		d := sim.NewHP3478A()
		phase := float64(i)
		d.SetSource(func() float64 {
			t := time.Since(start).Seconds()
			return 1.5 + 0.25*math.Sin(t/10+phase)
		})
		a.Attach(mc.Address, d)
	}
	return a
}

// ApplySetup writes the configured settings in a fixed order: function,
// range, digits, auto-zero, trigger, display. Rejected or unconfirmed
// settings are logged; only an unusable link is returned as an error.
func ApplySetup(m *hp3478a.Meter, s cfg.SetupConfig, logger log.Logger) error {
	if s.Empty() {
		return nil
	}

	type step struct {
		name string
		run  func() (hp3478a.Verification, error)
	}
	var steps []step

	if s.Function != "" {
		steps = append(steps, step{"function", func() (hp3478a.Verification, error) {
			f, err := hp3478a.ParseFunction(s.Function)
			if err != nil {
				return hp3478a.Verification{}, err
			}
			return m.SetFunction(f)
		}})
	}
	if s.Range != "" {
		steps = append(steps, step{"range", func() (hp3478a.Verification, error) {
			r, err := hp3478a.ParseRange(s.Range)
			if err != nil {
				return hp3478a.Verification{}, err
			}
			return m.SetRange(r)
		}})
	}
	if s.Digits != 0 {
		steps = append(steps, step{"digits", func() (hp3478a.Verification, error) {
			return m.SetDigits(s.Digits)
		}})
	}
	if s.AutoZero != "" {
		steps = append(steps, step{"auto-zero", func() (hp3478a.Verification, error) {
			on, err := cfg.ParseAutoZero(s.AutoZero)
			if err != nil {
				return hp3478a.Verification{}, err
			}
			return m.SetAutoZero(*on)
		}})
	}
	if s.Trigger != "" {
		steps = append(steps, step{"trigger", func() (hp3478a.Verification, error) {
			t, err := hp3478a.ParseTrigger(s.Trigger)
			if err != nil {
				return hp3478a.Verification{}, err
			}
			return m.SetTrigger(t)
		}})
	}
	if s.Display != "" {
		steps = append(steps, step{"display", func() (hp3478a.Verification, error) {
			return m.SetDisplay(s.Display, s.DisplayOnline)
		}})
	}

	for _, st := range steps {
		v, err := st.run()
		if err != nil {
			if m.Err() != nil {
				return err
			}
			level.Error(logger).Log("msg", "setup step failed", "setting", st.name, "err", err)
			continue
		}
		if v.Confirmed() {
			level.Debug(logger).Log("msg", "setup step confirmed", "setting", st.name, "value", v.Got)
		}
	}
	return nil
}
