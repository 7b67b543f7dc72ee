// Package desktoplog turns the desktop application's free-text logs into
// retained, redacted events plus the worktree and automation facts they imply.
package desktoplog

import (
	"fmt"

	"github.com/vanpelt/codexlens/internal/dedup"
	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/models"
	"github.com/vanpelt/codexlens/internal/redact"
)

// MaxErrorText caps error text copied into derived events
const MaxErrorText = 500

// Options configures a Parser
type Options struct {
	Sanitizer *redact.Sanitizer
	Keys      *dedup.Generator
}

// Batch is everything derived from one read of a desktop log
type Batch struct {
	Events      []*models.DesktopLogEvent
	Worktrees   []*models.WorktreeEvent
	Automations []*models.AutomationEvent
	Errors      []linereader.LineError
	Records     int // records reconstructed, retained or not
	Rejected    int // records dropped by the retention policy
	Orphans     int // continuation lines with no header in this read

	// TailOffset is the header offset of the last record seen. The record may
	// still be growing, so callers resume from here rather than from the
	// reader's offset. Only meaningful when HasTail is set.
	TailOffset int64
	HasTail    bool
}

// All returns every record of the batch in write order
func (b *Batch) All() []models.Record {
	out := make([]models.Record, 0, len(b.Events)+len(b.Worktrees)+len(b.Automations))
	for _, e := range b.Events {
		out = append(out, e)
	}
	for _, w := range b.Worktrees {
		out = append(out, w)
	}
	for _, a := range b.Automations {
		out = append(out, a)
	}
	return out
}

// Parser reconstructs records from the lines of one desktop log file
type Parser struct {
	path  string
	meta  FileMeta
	opts  Options
	asm   Assembler
	batch Batch
}

// NewParser returns a parser for the file at path
func NewParser(path string, opts Options) *Parser {
	if opts.Sanitizer == nil {
		opts.Sanitizer = redact.New("")
	}
	if opts.Keys == nil {
		opts.Keys = dedup.New(dedup.DefaultKeyLength)
	}
	return &Parser{path: path, meta: ParseFilename(path), opts: opts}
}

// Feed consumes the next line of the file
func (p *Parser) Feed(line linereader.Line) {
	if rec := p.asm.Feed(line); rec != nil {
		p.handle(rec)
	}
}

// Flush finishes the buffered record and returns the batch
func (p *Parser) Flush() *Batch {
	if rec := p.asm.Flush(); rec != nil {
		p.handle(rec)
	}
	p.batch.Orphans = p.asm.Orphans()
	return &p.batch
}

// Process parses every line of a read
func Process(path string, lines []linereader.Line, opts Options) *Batch {
	p := NewParser(path, opts)
	for _, line := range lines {
		p.Feed(line)
	}
	return p.Flush()
}

func (p *Parser) handle(rec *RawRecord) {
	p.batch.Records++
	p.batch.TailOffset = rec.Offset
	p.batch.HasTail = true

	h, err := ParseHeader(rec.Text)
	if err != nil {
		p.batch.Errors = append(p.batch.Errors, linereader.LineError{
			File:    p.path,
			Line:    rec.Line,
			Message: fmt.Sprintf("%v: %s", err, linereader.Truncate(p.opts.Sanitizer.String(rec.Text), linereader.MaxErrorText)),
		})
		return
	}

	if verdict := Retain(h); !verdict.Keep {
		p.batch.Rejected++
		return
	}

	message, payload := SplitPayload(h.Message)
	ts := h.Time.UnixMilli()

	// identity is the header only, so a record re-read with more continuation
	// lines keeps its key
	key := p.opts.Keys.Key(p.path, rec.Line, map[string]any{
		"ts":        ts,
		"level":     h.Level,
		"component": h.Component,
	})

	event := &models.DesktopLogEvent{
		ID:           key,
		Ts:           ts,
		Level:        models.StrPtr(h.Level),
		Component:    models.StrPtr(h.Component),
		Message:      p.opts.Sanitizer.String(message),
		PayloadText:  p.opts.Sanitizer.Ptr(models.StrPtr(payload)),
		AppSessionID: p.meta.AppSessionID,
		ProcessID:    p.meta.ProcessID,
		ThreadID:     p.meta.ThreadID,
		InstanceID:   p.meta.InstanceID,
		SegmentIndex: p.meta.SegmentIndex,
		FilePath:     p.path,
		LineNumber:   rec.Line,
		DedupKey:     key,
	}
	p.batch.Events = append(p.batch.Events, event)

	if facts, ok := ExtractWorktreeEvent(h, message, payload); ok {
		p.batch.Worktrees = append(p.batch.Worktrees, p.worktreeEvent(event, rec, facts, message))
	}
	if facts, ok := ExtractAutomationEvent(h, message, payload); ok {
		p.batch.Automations = append(p.batch.Automations, p.automationEvent(event, rec, facts, message))
	}
}

func (p *Parser) worktreeEvent(src *models.DesktopLogEvent, rec *RawRecord, facts WorktreeFacts, message string) *models.WorktreeEvent {
	key := p.opts.Keys.Key(p.path, rec.Line, map[string]any{
		"kind":   "worktree",
		"action": facts.Action,
		"ts":     src.Ts,
		"path":   facts.Path,
	})
	ev := &models.WorktreeEvent{
		ID:           key,
		Ts:           src.Ts,
		Action:       facts.Action,
		WorktreePath: models.StrPtr(facts.Path),
		Branch:       models.StrPtr(facts.Branch),
		Status:       models.EventStatusOK,
		SourceLogID:  &src.ID,
		DedupKey:     key,
	}
	if facts.Action == models.WorktreeError {
		ev.Status = models.EventStatusFailed
		ev.Error = p.errorText(message)
	}
	return ev
}

func (p *Parser) automationEvent(src *models.DesktopLogEvent, rec *RawRecord, facts AutomationFacts, message string) *models.AutomationEvent {
	key := p.opts.Keys.Key(p.path, rec.Line, map[string]any{
		"kind":         "automation",
		"action":       facts.Action,
		"ts":           src.Ts,
		"automationId": facts.ID,
	})
	ev := &models.AutomationEvent{
		ID:           key,
		Ts:           src.Ts,
		Action:       facts.Action,
		AutomationID: models.StrPtr(facts.ID),
		Name:         p.opts.Sanitizer.Ptr(models.StrPtr(facts.Name)),
		Status:       models.EventStatusOK,
		SourceLogID:  &src.ID,
		DedupKey:     key,
	}
	if facts.Action == models.AutomationFailed {
		ev.Status = models.EventStatusFailed
		ev.Error = p.errorText(message)
	}
	return ev
}

func (p *Parser) errorText(message string) *string {
	return models.StrPtr(linereader.Truncate(p.opts.Sanitizer.String(message), MaxErrorText))
}
