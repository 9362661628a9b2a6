// internal/poller/poller.go
package poller

import (
	"errors"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/prologix"
)

// Client abstracts one opened link and the meters behind it.
// The poller depends on these reads only.
type Client interface {
	GetStatus(meterID string) (hp3478a.Status, error)
	Measure(meterID string) (float64, error)
	Close() error
}

// Factory opens a client. ONE attempt per call.
type Factory func() (Client, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	LinkID string
	Meters []MeterSchedule
}

// Poller is a dumb, clock-driven reader for all meters of one link.
// Meters are read one after another; the link is never used concurrently.
type Poller struct {
	cfg     Config
	factory Factory
	logger  log.Logger
	now     func() time.Time

	mu       sync.Mutex
	client   Client
	lastPoll map[string]time.Time
}

// New creates a poller with immutable config.
// client may be nil; factory is then used on the first cycle.
func New(cfg Config, client Client, factory Factory, logger log.Logger) (*Poller, error) {
	if cfg.LinkID == "" {
		return nil, errors.New("poller: link id required")
	}
	if len(cfg.Meters) == 0 {
		return nil, errors.New("poller: at least one meter required")
	}
	for _, m := range cfg.Meters {
		if m.ID == "" {
			return nil, errors.New("poller: meter id required")
		}
		if m.Interval <= 0 {
			return nil, errors.New("poller: interval must be > 0")
		}
	}
	if client == nil && factory == nil {
		return nil, errors.New("poller: client or factory required")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Poller{
		cfg:      cfg,
		client:   client,
		factory:  factory,
		logger:   log.With(logger, "link", cfg.LinkID),
		now:      time.Now,
		lastPoll: make(map[string]time.Time),
	}, nil
}

// Interval is the tick period: the shortest meter interval.
func (p *Poller) Interval() time.Duration {
	shortest := p.cfg.Meters[0].Interval
	for _, m := range p.cfg.Meters[1:] {
		if m.Interval < shortest {
			shortest = m.Interval
		}
	}
	return shortest
}

// PollOnce performs exactly one poll cycle over every due meter.
// Per meter all-or-nothing: status then measurement, any failure aborts
// that meter. A dead transport aborts the cycle for the remaining meters
// and the client is rebuilt on a later cycle.
func (p *Poller) PollOnce() []PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	cycle := uuid.New().String()

	var due []MeterSchedule
	for _, m := range p.cfg.Meters {
		last, seen := p.lastPoll[m.ID]
		// tolerate tick jitter of a tenth of the interval
		if !seen || now.Sub(last) >= m.Interval-m.Interval/10 {
			due = append(due, m)
		}
	}
	if len(due) == 0 {
		return nil
	}

	results := make([]PollResult, 0, len(due))
	fail := func(from int, err error) []PollResult {
		for _, m := range due[from:] {
			p.lastPoll[m.ID] = now
			results = append(results, PollResult{
				MeterID: m.ID, LinkID: p.cfg.LinkID, CycleID: cycle, At: now, Err: err,
			})
		}
		return results
	}

	if p.client == nil {
		c, err := p.factory()
		if err != nil {
			level.Debug(p.logger).Log("msg", "link reopen failed", "cycle", cycle, "err", err)
			return fail(0, err)
		}
		level.Info(p.logger).Log("msg", "link opened", "cycle", cycle)
		p.client = c
	}

	for i, m := range due {
		res := PollResult{MeterID: m.ID, LinkID: p.cfg.LinkID, CycleID: cycle, At: now}

		st, err := p.client.GetStatus(m.ID)
		if err == nil {
			res.Value, err = p.client.Measure(m.ID)
		}
		if err != nil {
			if transportDead(err) {
				level.Warn(p.logger).Log("msg", "link lost, reopening on a later cycle", "meter", m.ID, "cycle", cycle, "err", err)
				p.dropClient()
				return fail(i, err)
			}
			res.Value = 0
			res.Err = err
		} else {
			res.Status = st
		}

		p.lastPoll[m.ID] = now
		results = append(results, res)
	}

	return results
}

// Close releases the current client, if any.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropClient()
}

func (p *Poller) dropClient() error {
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

// transportDead separates link failures from a meter that answered badly
// or not at all. Only the former warrants reopening the link.
func transportDead(err error) bool {
	if errors.Is(err, prologix.ErrLinkUnavailable) {
		return true
	}
	var ce *hp3478a.CommunicationError
	var pe *hp3478a.ParseError
	return !errors.As(err, &ce) && !errors.As(err, &pe)
}
