// internal/writer/types.go
package writer

import (
	"time"

	"github.com/tamzrod/hp3478a-bridge/internal/poller"
)

// TargetEndpoint is one destination of a meter's reading block.
type TargetEndpoint struct {
	Kind     string // modbus | ingest
	Endpoint string
	UnitID   uint8
	Address  uint16
	Timeout  time.Duration
}

// StatusPlan places a meter's status block.
type StatusPlan struct {
	Kind       string
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan for one meter.
type Plan struct {
	MeterID string
	Targets []TargetEndpoint
	Status  *StatusPlan // nil => status disabled
}

// Writer writes poll results into targets.
type Writer interface {
	Write(res poller.PollResult) error
}
