// Package correlate pairs tool-call start and end markers into one record per
// logical call.
package correlate

import (
	"sort"
	"time"

	"github.com/vanpelt/codexlens/internal/clilog"
	"github.com/vanpelt/codexlens/internal/dedup"
	"github.com/vanpelt/codexlens/internal/models"
)

const (
	DefaultDuplicateStartWindow = time.Second
	DefaultCorrelationWindow    = 5 * time.Minute
)

// Options tunes matching
type Options struct {
	// starts with the same signature this close together are one invocation
	DuplicateStartWindow time.Duration
	// maximum distance between a start and the end it matches
	CorrelationWindow time.Duration
	// send BackgroundEvent failures through matching instead of emitting them
	// standalone
	CorrelateBackground bool
	Keys                *dedup.Generator
}

// DefaultOptions returns the stock windows
func DefaultOptions() Options {
	return Options{
		DuplicateStartWindow: DefaultDuplicateStartWindow,
		CorrelationWindow:    DefaultCorrelationWindow,
		Keys:                 dedup.New(dedup.DefaultKeyLength),
	}
}

func (o Options) withDefaults() Options {
	if o.DuplicateStartWindow <= 0 {
		o.DuplicateStartWindow = DefaultDuplicateStartWindow
	}
	if o.CorrelationWindow <= 0 {
		o.CorrelationWindow = DefaultCorrelationWindow
	}
	if o.Keys == nil {
		o.Keys = dedup.New(dedup.DefaultKeyLength)
	}
	return o
}

// Result holds the reconstructed calls
type Result struct {
	Records    []*models.ToolCallRecord
	Dangling   []clilog.StartMarker // starts that found no end, already in Records as unknown
	Suppressed int                  // duplicate starts dropped
}

type event struct {
	start *clilog.StartMarker
	end   *clilog.EndMarker
}

func (e event) ts() int64 {
	if e.start != nil {
		return e.start.Ts
	}
	return e.end.Ts
}

func (e event) position() (string, int, int64, string, string) {
	if e.start != nil {
		return e.start.SourceFile, e.start.SourceLine, e.start.Offset, e.start.Signature, e.start.ToolName
	}
	return e.end.SourceFile, e.end.SourceLine, e.end.Offset, e.end.Signature, e.end.ToolName
}

// less is a total order so output never depends on extraction order
func less(a, b event) bool {
	if a.ts() != b.ts() {
		return a.ts() < b.ts()
	}
	if (a.start != nil) != (b.start != nil) {
		return a.start != nil
	}
	af, al, ao, as, at := a.position()
	bf, bl, bo, bs, bt := b.position()
	switch {
	case af != bf:
		return af < bf
	case al != bl:
		return al < bl
	case ao != bo:
		return ao < bo
	case as != bs:
		return as < bs
	default:
		return at < bt
	}
}

// Correlate merges starts and ends from one batch. Every start yields exactly
// one record (matched or unknown) unless it duplicates a pending start; every
// end yields one record (matched or standalone).
func Correlate(starts []clilog.StartMarker, ends []clilog.EndMarker, opts Options) *Result {
	opts = opts.withDefaults()
	c := &correlator{opts: opts, result: &Result{}}

	events := make([]event, 0, len(starts)+len(ends))
	for i := range starts {
		events = append(events, event{start: &starts[i]})
	}
	for i := range ends {
		end := &ends[i]
		if end.Origin == clilog.OriginBackgroundEvent && !opts.CorrelateBackground {
			c.emit(c.standalone(end))
			continue
		}
		events = append(events, event{end: end})
	}
	sort.Slice(events, func(i, j int) bool { return less(events[i], events[j]) })

	for _, ev := range events {
		if ev.start != nil {
			c.addStart(ev.start)
		} else {
			c.matchEnd(ev.end)
		}
	}

	for _, s := range c.pending {
		c.result.Dangling = append(c.result.Dangling, *s)
		c.emit(c.dangling(s))
	}

	sort.Slice(c.result.Records, func(i, j int) bool {
		a, b := c.result.Records[i], c.result.Records[j]
		if a.StartTs != b.StartTs {
			return a.StartTs < b.StartTs
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.SourceLine != b.SourceLine {
			return a.SourceLine < b.SourceLine
		}
		return a.DedupKey < b.DedupKey
	})
	return c.result
}

type correlator struct {
	opts    Options
	pending []*clilog.StartMarker
	result  *Result
}

func (c *correlator) addStart(s *clilog.StartMarker) {
	window := c.opts.DuplicateStartWindow.Milliseconds()
	for _, p := range c.pending {
		if p.Signature == s.Signature && abs(s.Ts-p.Ts) <= window {
			c.result.Suppressed++
			return
		}
	}
	c.pending = append(c.pending, s)
}

func (c *correlator) matchEnd(e *clilog.EndMarker) {
	window := c.opts.CorrelationWindow.Milliseconds()
	best, bestScore := -1, -1
	var bestDelta int64

	for i, p := range c.pending {
		delta := abs(e.Ts - p.Ts)
		if delta > window {
			continue
		}
		score := 0
		if p.Signature == e.Signature {
			score += 2
		}
		if p.ToolName == e.ToolName {
			score++
		}
		// earlier pending entries win exact ties
		if score > bestScore || (score == bestScore && delta < bestDelta) {
			best, bestScore, bestDelta = i, score, delta
		}
	}

	if best < 0 {
		c.emit(c.standalone(e))
		return
	}
	start := c.pending[best]
	c.pending = append(c.pending[:best], c.pending[best+1:]...)
	c.emit(c.matched(start, e))
}

func (c *correlator) emit(rec *models.ToolCallRecord) {
	c.result.Records = append(c.result.Records, rec)
}

func (c *correlator) keys(rec *models.ToolCallRecord, signature string, ts int64) {
	payload := map[string]any{"signature": signature, "ts": ts}
	rec.CorrelationKey = c.opts.Keys.Hash(payload)
	rec.DedupKey = c.opts.Keys.Key(rec.SourceFile, rec.SourceLine, payload)
}

func (c *correlator) matched(s *clilog.StartMarker, e *clilog.EndMarker) *models.ToolCallRecord {
	endTs := e.Ts
	duration := e.DurationMs
	if duration == nil {
		duration = models.Int64Ptr(endTs - s.Ts)
	}
	kind := e.Kind
	rec := &models.ToolCallRecord{
		ToolName:    firstNonEmpty(s.ToolName, e.ToolName),
		Command:     firstNonEmpty(s.Command, e.Command),
		Status:      DeriveStatus(&kind, e.ExitCode),
		StartTs:     s.Ts,
		EndTs:       &endTs,
		DurationMs:  duration,
		ExitCode:    e.ExitCode,
		Error:       e.Error,
		StdoutBytes: e.StdoutBytes,
		StderrBytes: e.StderrBytes,
		SourceFile:  s.SourceFile,
		SourceLine:  s.SourceLine,
	}
	c.keys(rec, s.Signature, s.Ts)
	return rec
}

func (c *correlator) standalone(e *clilog.EndMarker) *models.ToolCallRecord {
	endTs := e.Ts
	startTs := e.Ts
	if e.DurationMs != nil {
		startTs = e.Ts - *e.DurationMs
	}
	kind := e.Kind
	rec := &models.ToolCallRecord{
		ToolName:    e.ToolName,
		Command:     e.Command,
		Status:      DeriveStatus(&kind, e.ExitCode),
		StartTs:     startTs,
		EndTs:       &endTs,
		DurationMs:  e.DurationMs,
		ExitCode:    e.ExitCode,
		Error:       e.Error,
		StdoutBytes: e.StdoutBytes,
		StderrBytes: e.StderrBytes,
		SourceFile:  e.SourceFile,
		SourceLine:  e.SourceLine,
	}
	c.keys(rec, e.Signature, endTs)
	return rec
}

func (c *correlator) dangling(s *clilog.StartMarker) *models.ToolCallRecord {
	rec := &models.ToolCallRecord{
		ToolName:   s.ToolName,
		Command:    s.Command,
		Status:     DeriveStatus(nil, nil),
		StartTs:    s.Ts,
		SourceFile: s.SourceFile,
		SourceLine: s.SourceLine,
	}
	c.keys(rec, s.Signature, s.Ts)
	return rec
}

// DeriveStatus maps the matched end, if any, to a call status. A nil kind
// means no end was seen.
func DeriveStatus(kind *clilog.EventKind, exitCode *int) models.ToolCallStatus {
	if kind == nil {
		return models.ToolCallUnknown
	}
	if *kind == clilog.EventFailure || (exitCode != nil && *exitCode != 0) {
		return models.ToolCallFailed
	}
	if *kind == clilog.EventExit {
		return models.ToolCallOK
	}
	return models.ToolCallUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
