//go:build !linux
// +build !linux

// internal/prologix/portcheck_other.go
package prologix

// checkPort is a no-op where device nodes cannot be inspected (COM ports).
func checkPort(path string) error { return nil }
