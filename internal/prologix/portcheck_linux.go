//go:build linux
// +build linux

// internal/prologix/portcheck_linux.go
package prologix

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkPort rejects paths that are not character devices before the
// serial library tries to configure them as a tty.
func checkPort(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return fmt.Errorf("%s is not a character device", path)
	}
	return nil
}
