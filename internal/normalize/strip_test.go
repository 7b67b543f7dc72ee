package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text is untouched", "2025-01-02T03:04:05.000Z info ready", "2025-01-02T03:04:05.000Z info ready"},
		{"csi color codes", "\x1b[32mINFO\x1b[0m codex_core: FunctionCall: shell", "INFO codex_core: FunctionCall: shell"},
		{"csi with parameters", "\x1b[1;31merror\x1b[0m: boom", "error: boom"},
		{"osc hyperlink terminated by BEL", "open \x1b]8;;https://example.com\x07link\x1b]8;;\x07 now", "open link now"},
		{"osc title terminated by ST", "\x1b]0;codex\x1b\\ToolCall: lint", "ToolCall: lint"},
		{"two character escape", "reset\x1bc done", "reset done"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.in))
		})
	}
}

func TestStripIsIdempotent(t *testing.T) {
	in := "\x1b[2m2025-01-02T03:04:05Z\x1b[0m \x1b[32m INFO\x1b[0m ToolCall: exec_command status=ok"
	once := Strip(in)
	assert.Equal(t, once, Strip(once))
}

func TestStripLines(t *testing.T) {
	lines := []string{"\x1b[31ma\x1b[0m", "b"}
	assert.Equal(t, []string{"a", "b"}, StripLines(lines))
}
