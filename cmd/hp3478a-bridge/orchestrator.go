// cmd/hp3478a-bridge/orchestrator.go
package main

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/tamzrod/hp3478a-bridge/internal/api"
	"github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
	"github.com/tamzrod/hp3478a-bridge/internal/writer"
)

// a healthy meter silent for this many poll intervals turns stale
const staleIntervals = 3

// pipeline is the runner-owned state of one meter.
type pipeline struct {
	id      string
	data    writer.Writer
	status  writer.StatusWriter // nil => disabled
	tracker *status.Tracker
	logger  log.Logger
}

// orchestrator delivers one link's poll results and keeps every meter's
// status block ticking at 1 Hz.
type orchestrator struct {
	link   string
	meters map[string]*pipeline
	order  []string
	store  *api.Store
	logger log.Logger
}

func newOrchestrator(linkID string, meters []config.MeterConfig, store *api.Store, logger log.Logger) (*orchestrator, func() error, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	o := &orchestrator{
		link:   linkID,
		meters: make(map[string]*pipeline, len(meters)),
		store:  store,
		logger: log.With(logger, "link", linkID),
	}

	var closers []func() error
	closeAll := func() error {
		var last error
		for _, fn := range closers {
			if err := fn(); err != nil {
				last = err
			}
		}
		return last
	}

	for _, m := range meters {
		data, sw, closeWriters, err := writer.Build(m)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		closers = append(closers, closeWriters)

		interval := time.Duration(m.Poll.IntervalMs) * time.Millisecond
		o.meters[m.ID] = &pipeline{
			id:      m.ID,
			data:    data,
			status:  sw,
			tracker: status.NewTracker(staleIntervals * interval),
			logger:  log.With(o.logger, "meter", m.ID),
		}
		o.order = append(o.order, m.ID)
		store.Register(m.ID, linkID)
	}

	return o, closeAll, nil
}

func (o *orchestrator) run(ctx context.Context, in <-chan poller.PollResult) {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Full block write on start (identity re-assert).
	for _, id := range o.order {
		o.publish(o.meters[id])
	}

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			pl, ok := o.meters[res.MeterID]
			if !ok {
				continue
			}
			o.deliver(pl, res)

		case now := <-secTicker.C:
			for _, id := range o.order {
				pl := o.meters[id]
				if pl.tracker.Tick(now) {
					o.publish(pl)
				}
			}
		}
	}
}

func (o *orchestrator) deliver(pl *pipeline, res poller.PollResult) {
	if res.Err != nil {
		level.Warn(pl.logger).Log("msg", "poll failed", "cycle", res.CycleID, "err", res.Err)
	}

	if err := pl.data.Write(res); err != nil {
		level.Error(pl.logger).Log("msg", "writer error", "err", err)
	}
	o.store.Observe(res)

	if pl.tracker.Observe(res.Err, res.At) {
		o.publish(pl)
	}
}

func (o *orchestrator) publish(pl *pipeline) {
	snap := pl.tracker.Snapshot()
	o.store.SetHealth(pl.id, o.link, snap)

	if pl.status == nil {
		return
	}
	if err := pl.status.WriteStatus(snap); err != nil {
		level.Error(pl.logger).Log("msg", "status write failed", "err", err)
	}
}
