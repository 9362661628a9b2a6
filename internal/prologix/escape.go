// internal/prologix/escape.go
package prologix

import "strings"

const esc = 0x1B

// Escape prefixes every byte the adapter would otherwise interpret
// (LF, CR, ESC and '+') with ESC so it reaches the instrument verbatim.
// Write and Poll never escape on their own.
func Escape(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch c {
		case '\n', '\r', esc, '+':
			b.WriteByte(esc)
		}
		b.WriteByte(c)
	}
	return b.String()
}
