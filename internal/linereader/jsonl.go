package linereader

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxErrorText caps how much of a bad line is kept in an error
const MaxErrorText = 200

// ParsedLine is a successfully decoded JSONL record
type ParsedLine struct {
	LineNumber int
	Offset     int64
	JSON       json.RawMessage
}

// LineError is a line-level failure. It never aborts the rest of the file.
type LineError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (e LineError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// DecodeJSONL decodes every line of a read as a JSON object. Lines that fail to
// decode become LineErrors carrying a truncated copy of the raw text.
func DecodeJSONL(result *Result) ([]ParsedLine, []LineError) {
	parsed := make([]ParsedLine, 0, len(result.Lines))
	var lineErrors []LineError

	for _, line := range result.Lines {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line.Text), &obj); err != nil {
			lineErrors = append(lineErrors, LineError{
				File:    result.Path,
				Line:    line.Number,
				Message: fmt.Sprintf("invalid JSON (%v): %s", err, Truncate(line.Text, MaxErrorText)),
			})
			continue
		}
		parsed = append(parsed, ParsedLine{
			LineNumber: line.Number,
			Offset:     line.Offset,
			JSON:       json.RawMessage(line.Text),
		})
	}

	return parsed, lineErrors
}

// Truncate shortens s to at most max bytes without splitting a rune
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
