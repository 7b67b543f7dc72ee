// Package clilog extracts tool-call lifecycle markers from the CLI's free-text
// log.
package clilog

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/normalize"
	"github.com/vanpelt/codexlens/internal/redact"
)

const (
	// DefaultContinuationLines caps how many following lines may complete a
	// FunctionCall's argument text
	DefaultContinuationLines = 20
	// MaxSignatureLength caps a signature in runes
	MaxSignatureLength = 200
	// MaxErrorText caps error text carried on an end marker
	MaxErrorText = 500
)

// Marker origins
const (
	OriginFunctionCall    = "FunctionCall"
	OriginToolCall        = "ToolCall"
	OriginBackgroundEvent = "BackgroundEvent"
)

// EventKind is the lifecycle position of a marker
type EventKind string

const (
	EventStart   EventKind = "start"
	EventExit    EventKind = "exit"
	EventFailure EventKind = "failure"
)

var (
	functionCallMarker    = regexp.MustCompile(`\bFunctionCall:\s*([A-Za-z_][\w.-]*)(.*)$`)
	toolCallMarker        = regexp.MustCompile(`\bToolCall:\s*([A-Za-z_][\w.-]*)(.*)$`)
	backgroundEventMarker = regexp.MustCompile(`\bBackgroundEvent:\s*(.*)$`)

	failureWords = regexp.MustCompile(`(?i)\b(fail(s|ed|ure)?|errored|error|exception|panic(ked)?)\b`)
	leadingName  = regexp.MustCompile(`^([A-Za-z_][\w.-]*)`)
	exitCodeText = regexp.MustCompile(`(?i)\bexit(?:ed)?(?:[ _]?code|[ _]status| with(?: code)?)?[=:\s]+(-?\d+)\b`)
)

// OutcomeRule maps a pattern to a lifecycle kind
type OutcomeRule struct {
	Kind    EventKind
	Pattern *regexp.Regexp
}

// StatusRules classify an explicit status-like argument value, in order
var StatusRules = []OutcomeRule{
	{EventFailure, regexp.MustCompile(`(?i)^(fail|error|err\b)`)},
	{EventExit, regexp.MustCompile(`(?i)^(ok|succe|complet|done|exit|finish)`)},
	{EventStart, regexp.MustCompile(`(?i)^(start|run|pending|begin|began)`)},
}

// KeywordRules classify the marker text when no status field is present
var KeywordRules = []OutcomeRule{
	{EventFailure, regexp.MustCompile(`(?i)\b(failed|failure|errored)\b`)},
	{EventExit, regexp.MustCompile(`(?i)\b(exited|completed|succeeded|finished)\b`)},
	{EventStart, regexp.MustCompile(`(?i)\b(started|starting|running|begin|began)\b`)},
}

// StartMarker is a tool invocation request
type StartMarker struct {
	Ts         int64
	ToolName   string
	Command    string
	Signature  string
	SourceFile string
	SourceLine int
	Offset     int64
	Origin     string
}

// EndMarker is a tool completion or failure
type EndMarker struct {
	Ts          int64
	ToolName    string
	Command     string
	Signature   string
	SourceFile  string
	SourceLine  int
	Offset      int64
	Origin      string
	Kind        EventKind
	ExitCode    *int
	DurationMs  *int64
	StdoutBytes *int64
	StderrBytes *int64
	Error       *string
}

// Options configures Extract
type Options struct {
	ContinuationLines int
	Sanitizer         *redact.Sanitizer
	// Settled means the input will not grow: a FunctionCall whose arguments
	// run to the end is emitted with the text read so far instead of held.
	Settled bool
}

// Markers is everything extracted from one read of the CLI log
type Markers struct {
	Starts      []StartMarker
	Ends        []EndMarker
	Timestamped int   // lines that opened a record
	LastTs      int64 // latest timestamp seen, 0 when none

	// Held is set when the read ended inside a FunctionCall's argument text.
	// HoldOffset is that call's line offset; nothing from it onward was emitted.
	Held       bool
	HoldOffset int64
}

// Signature identifies repeated or matching invocations of the same command
func Signature(tool, command string) string {
	command = strings.Join(strings.Fields(command), " ")
	sig := tool
	if command != "" {
		sig = tool + "|" + command
	}
	if utf8.RuneCountInString(sig) > MaxSignatureLength {
		sig = string([]rune(sig)[:MaxSignatureLength])
	}
	return sig
}

// Extract scans lines for FunctionCall, ToolCall and BackgroundEvent markers.
// Only timestamped lines are scanned; untimestamped lines can only complete a
// FunctionCall's arguments.
func Extract(lines []linereader.Line, file string, opts Options) *Markers {
	if opts.ContinuationLines <= 0 {
		opts.ContinuationLines = DefaultContinuationLines
	}
	if opts.Sanitizer == nil {
		opts.Sanitizer = redact.New("")
	}

	texts := make([]string, len(lines))
	for i, line := range lines {
		texts[i] = strings.TrimSpace(normalize.Strip(line.Raw))
	}

	out := &Markers{}
	for i, line := range lines {
		ts, rest, ok := ParseTimestamp(texts[i])
		if !ok {
			continue
		}
		out.Timestamped++
		if ts > out.LastTs {
			out.LastTs = ts
		}
		src := source{ts: ts, file: file, line: line.Number, offset: line.Offset}

		if m := functionCallMarker.FindStringSubmatch(rest); m != nil {
			argText := m[2]
			if needsContinuation(argText) {
				var exhausted bool
				argText, exhausted = continueArgs(argText, texts[i+1:], opts.ContinuationLines)
				if exhausted && !opts.Settled && unterminated(argText) {
					// arguments still being written; leave the call for the next read
					out.Held = true
					out.HoldOffset = line.Offset
					break
				}
			}
			out.Starts = append(out.Starts, newStart(src, OriginFunctionCall, m[1], ParseArgs(argText), opts.Sanitizer))
			continue
		}

		if m := toolCallMarker.FindStringSubmatch(rest); m != nil {
			args := ParseArgs(m[2])
			kind := classifyToolCall(args, m[2])
			if kind == EventStart {
				out.Starts = append(out.Starts, newStart(src, OriginToolCall, m[1], args, opts.Sanitizer))
			} else {
				out.Ends = append(out.Ends, newEnd(src, OriginToolCall, m[1], kind, args, "", opts.Sanitizer))
			}
			continue
		}

		if m := backgroundEventMarker.FindStringSubmatch(rest); m != nil && failureWords.MatchString(m[1]) {
			out.Ends = append(out.Ends, backgroundEnd(src, m[1], opts.Sanitizer))
		}
	}
	return out
}

type source struct {
	ts     int64
	file   string
	line   int
	offset int64
}

// needsContinuation reports whether a FunctionCall's argument text is missing
// or an unterminated JSON value
func needsContinuation(argText string) bool {
	trimmed := unwrapParens(argText)
	if trimmed == "" {
		return true
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return !isCompleteJSON(trimmed)
	}
	return false
}

// unterminated reports whether argument text cut off by the end of a read
// still looks like it is being written
func unterminated(argText string) bool {
	trimmed := strings.TrimSpace(argText)
	if strings.HasPrefix(trimmed, "(") && !strings.HasSuffix(trimmed, ")") {
		return true
	}
	return unwrapParens(trimmed) != ""
}

// continueArgs appends following untimestamped lines until the text parses as
// JSON, the cap is hit, or a timestamped line appears. exhausted reports that
// the read ended first, so the rest of the arguments may not be written yet.
func continueArgs(argText string, following []string, limit int) (string, bool) {
	var b strings.Builder
	b.WriteString(argText)
	for n, text := range following {
		if n >= limit {
			return b.String(), false
		}
		if _, _, ok := ParseTimestamp(text); ok {
			return b.String(), false
		}
		b.WriteByte('\n')
		b.WriteString(text)
		if isCompleteJSON(b.String()) {
			return b.String(), false
		}
	}
	return b.String(), len(following) < limit
}

func classifyToolCall(args Args, text string) EventKind {
	if status, ok := args.Status(); ok {
		if kind, ok := firstOutcome(StatusRules, status); ok {
			return kind
		}
	}
	if kind, ok := firstOutcome(KeywordRules, text); ok {
		return kind
	}
	if code := args.ExitCode(); code != nil {
		if *code == 0 {
			return EventExit
		}
		return EventFailure
	}
	if args.ErrorText() != "" {
		return EventFailure
	}
	if args.DurationMs() != nil {
		return EventExit
	}
	return EventStart
}

func firstOutcome(rules []OutcomeRule, text string) (EventKind, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Kind, true
		}
	}
	return "", false
}

func newStart(src source, origin, tool string, args Args, s *redact.Sanitizer) StartMarker {
	command := s.String(args.Command())
	return StartMarker{
		Ts:         src.ts,
		ToolName:   tool,
		Command:    command,
		Signature:  Signature(tool, command),
		SourceFile: src.file,
		SourceLine: src.line,
		Offset:     src.offset,
		Origin:     origin,
	}
}

func newEnd(src source, origin, tool string, kind EventKind, args Args, fallbackError string, s *redact.Sanitizer) EndMarker {
	command := s.String(args.Command())
	end := EndMarker{
		Ts:          src.ts,
		ToolName:    tool,
		Command:     command,
		Signature:   Signature(tool, command),
		SourceFile:  src.file,
		SourceLine:  src.line,
		Offset:      src.offset,
		Origin:      origin,
		Kind:        kind,
		ExitCode:    args.ExitCode(),
		DurationMs:  args.DurationMs(),
		StdoutBytes: args.StdoutBytes(),
		StderrBytes: args.StderrBytes(),
	}
	errText := args.ErrorText()
	if errText == "" {
		errText = fallbackError
	}
	if errText != "" {
		errText = linereader.Truncate(s.String(errText), MaxErrorText)
		end.Error = &errText
	}
	return end
}

// backgroundEnd builds a failure end from a BackgroundEvent line. These lines
// are mostly prose, so the tool name and exit code are scraped from the text
// when no structured arguments are present.
func backgroundEnd(src source, text string, s *redact.Sanitizer) EndMarker {
	args := ParseArgs(text)

	tool, ok := args.String("tool", "tool_name", "toolName", "name")
	if !ok {
		tool = "background"
		if m := leadingName.FindStringSubmatch(strings.TrimSpace(text)); m != nil && !failureWords.MatchString(m[1]) {
			tool = m[1]
		}
	}

	if args.ExitCode() == nil {
		if m := exitCodeText.FindStringSubmatch(text); m != nil {
			args.Fields["exit_code"] = m[1]
		}
	}

	return newEnd(src, OriginBackgroundEvent, tool, EventFailure, args, strings.TrimSpace(text), s)
}
