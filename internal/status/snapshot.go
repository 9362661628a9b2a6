// internal/status/snapshot.go
package status

// Snapshot is the live part of a status block: exactly what a status
// writer delivers, nothing it has to interpret.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
}

// Healthy reports HealthOK.
func (s Snapshot) Healthy() bool { return s.Health == HealthOK }
