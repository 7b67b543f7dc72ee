// Package normalize cleans raw log text before any pattern matching runs on it.
package normalize

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Strip removes terminal control sequences (OSC, CSI and two-character ESC
// sequences) from text. It is pure and idempotent.
func Strip(text string) string {
	if !hasEscape(text) {
		return text
	}
	return ansi.Strip(text)
}

// StripLines applies Strip to every line in place and returns the slice
func StripLines(lines []string) []string {
	for i, line := range lines {
		lines[i] = Strip(line)
	}
	return lines
}

func hasEscape(text string) bool {
	// 0x9b is the single-byte C1 form of CSI
	return strings.IndexByte(text, 0x1b) >= 0 || strings.IndexByte(text, 0x9b) >= 0
}
