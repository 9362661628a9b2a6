// internal/writer/builder_test.go
package writer

import (
	"testing"
	"time"

	cfg "github.com/tamzrod/hp3478a-bridge/internal/config"
	"github.com/tamzrod/hp3478a-bridge/internal/writer/ingest"
	wmodbus "github.com/tamzrod/hp3478a-bridge/internal/writer/modbus"
)

func meterConfig() cfg.MeterConfig {
	return cfg.MeterConfig{
		ID:   "m1",
		Link: "gpib0",
		Targets: []cfg.TargetConfig{
			{Kind: cfg.TargetModbus, Endpoint: "127.0.0.1:1502", UnitID: 1, Address: 100, TimeoutMs: 500},
			{Kind: cfg.TargetIngest, Endpoint: "127.0.0.1:9000", UnitID: 2, Address: 0, TimeoutMs: 500},
		},
		Status: cfg.StatusConfig{
			Kind: cfg.TargetModbus, Endpoint: "127.0.0.1:1502", UnitID: 9, Slot: 3, DeviceName: "M1",
		},
	}
}

func TestBuildPlan(t *testing.T) {
	plan, err := BuildPlan(meterConfig())
	if err != nil {
		t.Fatalf("BuildPlan err=%v", err)
	}
	if plan.MeterID != "m1" || len(plan.Targets) != 2 {
		t.Fatalf("plan=%+v", plan)
	}
	if plan.Targets[0].Address != 100 || plan.Targets[0].Timeout != 500*time.Millisecond {
		t.Fatalf("target=%+v", plan.Targets[0])
	}
	if plan.Status == nil || plan.Status.BaseSlot != 3 || plan.Status.UnitID != 9 {
		t.Fatalf("status=%+v", plan.Status)
	}

	m := meterConfig()
	m.Status = cfg.StatusConfig{}
	plan, _ = BuildPlan(m)
	if plan.Status != nil {
		t.Fatalf("status should be disabled")
	}

	if _, err := BuildPlan(cfg.MeterConfig{}); err == nil {
		t.Fatalf("expected error without id")
	}
}

func TestBuildEndpointClients_ByKind(t *testing.T) {
	plan, _ := BuildPlan(meterConfig())

	clients, closeAll, err := buildEndpointClients(plan)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	defer closeAll()

	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if _, ok := clients["127.0.0.1:1502"].(*wmodbus.EndpointClient); !ok {
		t.Fatalf("modbus endpoint got %T", clients["127.0.0.1:1502"])
	}
	if _, ok := clients["127.0.0.1:9000"].(*ingest.EndpointClient); !ok {
		t.Fatalf("ingest endpoint got %T", clients["127.0.0.1:9000"])
	}
}

func TestBuildEndpointClients_KindConflict(t *testing.T) {
	m := meterConfig()
	m.Status.Kind = cfg.TargetIngest

	plan, _ := BuildPlan(m)
	if _, _, err := buildEndpointClients(plan); err == nil {
		t.Fatalf("expected kind conflict error")
	}
}
