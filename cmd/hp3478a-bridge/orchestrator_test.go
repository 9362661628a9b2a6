// cmd/hp3478a-bridge/orchestrator_test.go
package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/hp3478a-bridge/internal/api"
	"github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/hp3478a"
	"github.com/tamzrod/hp3478a-bridge/internal/poller"
	"github.com/tamzrod/hp3478a-bridge/internal/status"
)

func TestOrchestrator_TracksHealthPerMeter(t *testing.T) {
	store := api.NewStore()
	meters := []config.MeterConfig{
		{ID: "a", Link: "gpib0", Address: 22, Poll: config.PollConfig{IntervalMs: 1000}},
		{ID: "b", Link: "gpib0", Address: 23, Poll: config.PollConfig{IntervalMs: 1000}},
	}

	o, closeAll, err := newOrchestrator("gpib0", meters, store, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer closeAll()

	now := time.Now()
	o.deliver(o.meters["a"], poller.PollResult{MeterID: "a", LinkID: "gpib0", At: now, Value: 1, Status: hp3478a.Status{Function: hp3478a.DCVolts}})
	o.deliver(o.meters["b"], poller.PollResult{MeterID: "b", LinkID: "gpib0", At: now, Err: &hp3478a.CommunicationError{Op: "status", Addr: 23, Reason: "no response"}})

	a, _ := store.Get("a")
	b, _ := store.Get("b")
	if a.Health != "ok" || a.Value == nil {
		t.Fatalf("a=%+v", a)
	}
	if b.Health != "error" || b.LastErrorCode != hp3478a.CodeCommunication {
		t.Fatalf("b=%+v", b)
	}

	// one tick: b accrues a second in error, a stays ok
	for _, pl := range o.meters {
		if pl.tracker.Tick(now.Add(time.Second)) {
			o.publish(pl)
		}
	}
	a, _ = store.Get("a")
	b, _ = store.Get("b")
	if a.Health != "ok" || b.SecondsInError != 1 {
		t.Fatalf("after tick a=%+v b=%+v", a, b)
	}

	// silent past three intervals: stale
	if o.meters["a"].tracker.Tick(now.Add(4 * time.Second)) {
		o.publish(o.meters["a"])
	}
	a, _ = store.Get("a")
	if a.Health != api.HealthName(status.HealthStale) {
		t.Fatalf("a=%+v", a)
	}
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	meters := []config.MeterConfig{{ID: "a", Link: "l", Poll: config.PollConfig{IntervalMs: 100}}}
	o, closeAll, err := newOrchestrator("l", meters, api.NewStore(), nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer closeAll()

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan poller.PollResult)
	done := make(chan struct{})
	go func() {
		o.run(ctx, in)
		close(done)
	}()

	in <- poller.PollResult{MeterID: "a", LinkID: "l", Err: errors.New("boom")}
	in <- poller.PollResult{MeterID: "unknown"}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
}
