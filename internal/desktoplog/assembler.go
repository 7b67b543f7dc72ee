package desktoplog

import (
	"strings"

	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/normalize"
)

// RawRecord is one reconstructed multi-line record
type RawRecord struct {
	Line   int   // line number of the header
	Offset int64 // byte offset of the header line
	Text   string
}

// Assembler folds continuation lines (stack traces, wrapped text) into the
// record opened by the most recent header line.
type Assembler struct {
	current *RawRecord
	buf     strings.Builder
	orphans int
}

// Feed consumes one line and returns the previous record when line opens a new one
func (a *Assembler) Feed(line linereader.Line) *RawRecord {
	text := strings.TrimRight(normalize.Strip(line.Raw), " \t\r")

	if IsRecordStart(strings.TrimLeft(text, " \t")) {
		flushed := a.Flush()
		a.current = &RawRecord{Line: line.Number, Offset: line.Offset}
		a.buf.WriteString(strings.TrimLeft(text, " \t"))
		return flushed
	}

	if a.current == nil {
		// continuation of a record whose header was never read
		a.orphans++
		return nil
	}
	a.buf.WriteByte('\n')
	a.buf.WriteString(text)
	return nil
}

// Flush returns the buffered record, if any, and resets the assembler
func (a *Assembler) Flush() *RawRecord {
	if a.current == nil {
		return nil
	}
	rec := a.current
	rec.Text = a.buf.String()
	a.current = nil
	a.buf.Reset()
	return rec
}

// Orphans returns how many continuation lines arrived with no open record
func (a *Assembler) Orphans() int {
	return a.orphans
}
