package clilog

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Args are the arguments attached to a marker. Values decoded from JSON keep
// their JSON types; key=value tokens are always strings.
type Args struct {
	Fields map[string]any
	JSON   bool
}

// key=value, key="quoted value" or key='quoted value'
var keyValueToken = regexp.MustCompile(`([A-Za-z_][\w.-]*)=("(?:[^"\\]|\\.)*"|'[^']*'|[^\s,;)]+)`)

// ParseArgs decodes argument text. Strict JSON is tried first; anything else is
// scanned for key=value tokens.
func ParseArgs(text string) Args {
	text = unwrapParens(text)
	if text == "" {
		return Args{Fields: map[string]any{}}
	}

	if v, ok := decodeJSON(text); ok {
		switch val := v.(type) {
		case map[string]any:
			return Args{Fields: val, JSON: true}
		case []any:
			return Args{Fields: map[string]any{"argv": val}, JSON: true}
		case string:
			return Args{Fields: map[string]any{"command": val}, JSON: true}
		}
	}

	fields := map[string]any{}
	for _, m := range keyValueToken.FindAllStringSubmatch(text, -1) {
		if _, seen := fields[m[1]]; seen {
			continue
		}
		fields[m[1]] = unquote(m[2])
	}
	return Args{Fields: fields}
}

// unwrapParens drops the call parentheses around argument text. Either side may
// be missing when the arguments spanned several lines.
func unwrapParens(text string) string {
	text = strings.TrimPrefix(strings.TrimSpace(text), "(")
	text = strings.TrimSuffix(strings.TrimSpace(text), ")")
	return strings.TrimSpace(text)
}

func decodeJSON(text string) (any, bool) {
	switch text[0] {
	case '{', '[', '"':
	default:
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return nil, false
	}
	return v, true
}

// isCompleteJSON reports whether parenthesized argument text is valid JSON
func isCompleteJSON(text string) bool {
	return json.Valid([]byte(unwrapParens(text)))
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			if s, err := strconv.Unquote(v); err == nil {
				return s
			}
			return v[1 : len(v)-1]
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1]
		}
	}
	return v
}

// String returns the first of keys holding a scalar value
func (a Args) String(keys ...string) (string, bool) {
	for _, key := range keys {
		switch v := a.Fields[key].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case json.Number:
			return v.String(), true
		case bool:
			return strconv.FormatBool(v), true
		}
	}
	return "", false
}

// Int returns the first of keys holding an integer value
func (a Args) Int(keys ...string) (int64, bool) {
	for _, key := range keys {
		switch v := a.Fields[key].(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return n, true
			}
			if f, err := v.Float64(); err == nil {
				return int64(f), true
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// commandExtractors are tried in order, first hit wins
var commandExtractors = []func(Args) (string, bool){
	field("cmd"),
	field("command"),
	field("argv"),
	field("args"),
	field("script"),
}

func field(key string) func(Args) (string, bool) {
	return func(a Args) (string, bool) {
		switch v := a.Fields[key].(type) {
		case string:
			return v, strings.TrimSpace(v) != ""
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				switch p := item.(type) {
				case string:
					parts = append(parts, p)
				case json.Number:
					parts = append(parts, p.String())
				}
			}
			return strings.Join(parts, " "), len(parts) > 0
		}
		return "", false
	}
}

// Command returns the invoked command line, if any
func (a Args) Command() string {
	for _, extract := range commandExtractors {
		if v, ok := extract(a); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Status returns an explicit status-like field
func (a Args) Status() (string, bool) {
	return a.String("status", "state", "phase", "event", "outcome", "result")
}

// ExitCode returns the reported exit code
func (a Args) ExitCode() *int {
	if v, ok := a.Int("exit_code", "exitCode", "code"); ok {
		code := int(v)
		return &code
	}
	return nil
}

// DurationMs returns the reported duration. Bare numbers are milliseconds;
// values with a unit ("1.5s", "120ms") are parsed as Go durations.
func (a Args) DurationMs() *int64 {
	for _, key := range []string{"duration_ms", "durationMs", "duration", "elapsed_ms", "elapsed"} {
		raw, ok := a.String(key)
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			ms := int64(n)
			return &ms
		}
		if d, err := time.ParseDuration(raw); err == nil {
			ms := d.Milliseconds()
			return &ms
		}
	}
	return nil
}

// StdoutBytes returns the reported stdout size
func (a Args) StdoutBytes() *int64 {
	return a.intPtr("stdout_bytes", "stdoutBytes")
}

// StderrBytes returns the reported stderr size
func (a Args) StderrBytes() *int64 {
	return a.intPtr("stderr_bytes", "stderrBytes")
}

// ErrorText returns the reported error text
func (a Args) ErrorText() string {
	v, _ := a.String("error", "err", "error_message", "errorMessage")
	return v
}

func (a Args) intPtr(keys ...string) *int64 {
	if v, ok := a.Int(keys...); ok {
		return &v
	}
	return nil
}
