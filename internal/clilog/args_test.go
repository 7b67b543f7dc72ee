package clilog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs_JSON(t *testing.T) {
	args := ParseArgs(`({"command":["bash","-lc","ls -la"],"timeout_ms":120000})`)
	assert.True(t, args.JSON)
	assert.Equal(t, "bash -lc ls -la", args.Command())

	v, ok := args.Int("timeout_ms")
	assert.True(t, ok)
	assert.Equal(t, int64(120000), v)
}

func TestParseArgs_JSONArrayAndString(t *testing.T) {
	assert.Equal(t, "git status", ParseArgs(`["git","status"]`).Command())
	assert.Equal(t, "make test", ParseArgs(`"make test"`).Command())
}

func TestParseArgs_KeyValue(t *testing.T) {
	args := ParseArgs(`status=ok exit_code=0 duration_ms=120 cmd="go test ./..." note='two words'`)
	assert.False(t, args.JSON)

	status, ok := args.Status()
	assert.True(t, ok)
	assert.Equal(t, "ok", status)
	assert.Equal(t, "go test ./...", args.Command())

	require.NotNil(t, args.ExitCode())
	assert.Equal(t, 0, *args.ExitCode())
	require.NotNil(t, args.DurationMs())
	assert.Equal(t, int64(120), *args.DurationMs())

	note, _ := args.String("note")
	assert.Equal(t, "two words", note)
}

func TestParseArgs_InvalidJSONFallsBack(t *testing.T) {
	args := ParseArgs(`{"cmd": "ls" exit_code=2`)
	assert.False(t, args.JSON)
	require.NotNil(t, args.ExitCode())
	assert.Equal(t, 2, *args.ExitCode())
}

func TestArgs_DurationUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"duration=1.5s", 1500},
		{"duration=250ms", 250},
		{"elapsed=42", 42},
		{`{"durationMs":7}`, 7},
	}
	for _, tt := range tests {
		got := ParseArgs(tt.in).DurationMs()
		require.NotNil(t, got, tt.in)
		assert.Equal(t, tt.want, *got, tt.in)
	}
	assert.Nil(t, ParseArgs("duration=soon").DurationMs())
}

func TestArgs_CommandPriority(t *testing.T) {
	args := ParseArgs(`{"argv":["a"],"command":"b","cmd":"c"}`)
	assert.Equal(t, "c", args.Command())

	args = ParseArgs(`{"script":"s","args":["x","y"]}`)
	assert.Equal(t, "x y", args.Command())

	assert.Equal(t, "", ParseArgs("").Command())
}

func TestArgs_ErrorAndBytes(t *testing.T) {
	args := ParseArgs(`{"error":"boom","stdout_bytes":10,"stderrBytes":"3"}`)
	assert.Equal(t, "boom", args.ErrorText())
	assert.Equal(t, int64(10), *args.StdoutBytes())
	assert.Equal(t, int64(3), *args.StderrBytes())

	assert.Equal(t, "", ParseArgs(`{"error":null}`).ErrorText())
}
