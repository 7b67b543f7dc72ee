package desktoplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrBadHeader is returned when a record's first line cannot be parsed
var ErrBadHeader = errors.New("invalid record header")

const timestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// recordStart is deliberately strict: only lines of this shape open a record
	recordStart = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z\s+\w+`)
	headerParts = regexp.MustCompile(`(?s)^(\S+)\s+(\w+)(.*)$`)
	// a trailing JSON-looking object separated from the message by whitespace
	trailingPayload = regexp.MustCompile(`(?s)^(.*?)\s+(\{.*\})\s*$`)
)

var knownLevels = map[string]string{
	"trace":   "trace",
	"debug":   "debug",
	"verbose": "debug",
	"info":    "info",
	"log":     "info",
	"warn":    "warn",
	"warning": "warn",
	"error":   "error",
	"err":     "error",
	"fatal":   "error",
}

// Header is a parsed record
type Header struct {
	Time      time.Time
	Level     string // normalized; empty when the word after the timestamp is not a level
	Component string
	Message   string
}

// IsRecordStart reports whether line opens a new record
func IsRecordStart(line string) bool {
	return recordStart.MatchString(line)
}

// ParseHeader parses "<timestamp> <level> [component] message" from a full
// record text (continuation lines included).
func ParseHeader(text string) (Header, error) {
	m := headerParts.FindStringSubmatch(text)
	if m == nil {
		return Header{}, fmt.Errorf("%w: no timestamp/level prefix", ErrBadHeader)
	}

	ts, err := time.Parse(timestampLayout, m[1])
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	h := Header{Time: ts.UTC()}
	rest := m[3]
	if level, ok := knownLevels[strings.ToLower(m[2])]; ok {
		h.Level = level
	} else {
		rest = m[2] + rest
	}

	rest = strings.TrimLeft(rest, " \t")
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 1 && !strings.ContainsAny(rest[:end], "\n") {
			h.Component = strings.TrimSpace(rest[1:end])
			rest = rest[end+1:]
		}
	}
	h.Message = strings.TrimSpace(rest)
	return h, nil
}

// SplitPayload separates a trailing "{...}" payload from a message. A suffix
// that is valid JSON wins over the first brace, so placeholders like
// "{attempt}" earlier in the text stay in the message.
func SplitPayload(message string) (string, string) {
	trimmed := strings.TrimRight(message, " \t\r\n")
	if strings.HasSuffix(trimmed, "}") {
		for i := 1; i < len(trimmed); i++ {
			if trimmed[i] != '{' || !isBlank(trimmed[i-1]) {
				continue
			}
			if json.Valid([]byte(trimmed[i:])) {
				return strings.TrimSpace(trimmed[:i]), trimmed[i:]
			}
		}
	}

	m := trailingPayload.FindStringSubmatch(message)
	if m == nil {
		return message, ""
	}
	return strings.TrimSpace(m[1]), m[2]
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// IsSevere reports whether a normalized level is warn or error
func IsSevere(level string) bool {
	return level == "warn" || level == "error"
}
