// internal/writer/builder.go
package writer

import (
	"errors"
	"fmt"
	"time"

	cfg "github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/writer/ingest"
	wmodbus "github.com/tamzrod/hp3478a-bridge/internal/writer/modbus"
)

// BuildPlan converts one meter config into a write plan.
// Assumes config has already passed validation and normalization.
func BuildPlan(m cfg.MeterConfig) (Plan, error) {
	if m.ID == "" {
		return Plan{}, errors.New("writer: meter.id required")
	}

	plan := Plan{MeterID: m.ID}
	for _, t := range m.Targets {
		plan.Targets = append(plan.Targets, TargetEndpoint{
			Kind:     t.Kind,
			Endpoint: t.Endpoint,
			UnitID:   t.UnitID,
			Address:  t.Address,
			Timeout:  time.Duration(t.TimeoutMs) * time.Millisecond,
		})
	}

	if m.Status.Enabled() {
		plan.Status = &StatusPlan{
			Kind:       m.Status.Kind,
			Endpoint:   m.Status.Endpoint,
			UnitID:     m.Status.UnitID,
			BaseSlot:   m.Status.Slot,
			DeviceName: m.Status.DeviceName,
		}
	}

	return plan, nil
}

// Build wires the reading writer and, if enabled, the status writer of
// one meter. The returned closer releases every endpoint client.
func Build(m cfg.MeterConfig) (Writer, StatusWriter, func() error, error) {
	plan, err := BuildPlan(m)
	if err != nil {
		return nil, nil, nil, err
	}

	clients, closeAll, err := buildEndpointClients(plan)
	if err != nil {
		return nil, nil, nil, err
	}

	sw, _ := NewStatusWriter(plan, clients)
	return New(plan, clients), sw, closeAll, nil
}

type closingClient interface {
	endpointClient
	Close() error
}

// buildEndpointClients creates one client per unique endpoint.
func buildEndpointClients(plan Plan) (map[string]endpointClient, func() error, error) {
	type want struct {
		kind    string
		timeout time.Duration
	}
	unique := map[string]want{}
	add := func(kind, endpoint string, timeout time.Duration) error {
		if prev, ok := unique[endpoint]; ok {
			if prev.kind != kind {
				return fmt.Errorf("writer: endpoint %s used as both %s and %s", endpoint, prev.kind, kind)
			}
			if timeout <= prev.timeout {
				return nil
			}
		}
		unique[endpoint] = want{kind: kind, timeout: timeout}
		return nil
	}

	for _, t := range plan.Targets {
		if err := add(t.Kind, t.Endpoint, t.Timeout); err != nil {
			return nil, nil, err
		}
	}
	if sp := plan.Status; sp != nil {
		if err := add(sp.Kind, sp.Endpoint, cfg.DefaultTargetTimeout*time.Millisecond); err != nil {
			return nil, nil, err
		}
	}

	clients := make(map[string]endpointClient, len(unique))
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

	for endpoint, w := range unique {
		var c closingClient
		var err error
		switch w.kind {
		case cfg.TargetIngest:
			c, err = ingest.NewEndpointClient(ingest.Config{Endpoint: endpoint, Timeout: w.timeout})
		default:
			c, err = wmodbus.NewEndpointClient(wmodbus.Config{Endpoint: endpoint, Timeout: w.timeout})
		}
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	return clients, closeAll, nil
}
