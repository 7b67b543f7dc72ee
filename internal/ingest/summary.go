package ingest

import (
	"time"

	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/models"
)

// Run modes
const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// MaxErrorMessage bounds the message of one summary error
const MaxErrorMessage = 300

// RunError is one failure recorded during a run. Line is 0 when the failure
// is not tied to a line.
type RunError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Summary is the result of one run. A run never fails as a whole; callers
// inspect Errors for partial success.
type Summary struct {
	Mode           string              `json:"mode"`
	StartedAt      time.Time           `json:"startedAt"`
	Rejected       bool                `json:"rejected,omitempty"`
	FilesProcessed int                 `json:"filesProcessed"`
	FilesSkipped   int                 `json:"filesSkipped"`
	FilesReset     int                 `json:"filesReset"`
	LinesIngested  int                 `json:"linesIngested"`
	RowsInserted   int                 `json:"rowsInserted"`
	RowsUpdated    int                 `json:"rowsUpdated"`
	Inserted       map[models.Kind]int `json:"inserted"`
	DurationMs     int64               `json:"durationMs"`
	Errors         []RunError          `json:"errors"`
}

func newSummary(mode string, started time.Time) *Summary {
	return &Summary{
		Mode:      mode,
		StartedAt: started,
		Inserted:  make(map[models.Kind]int),
		Errors:    []RunError{},
	}
}

func (s *Summary) addError(file string, line int, err error) {
	s.Errors = append(s.Errors, RunError{
		File:    file,
		Line:    line,
		Message: linereader.Truncate(err.Error(), MaxErrorMessage),
	})
}

func (s *Summary) addLineErrors(errs []linereader.LineError) {
	for _, e := range errs {
		s.Errors = append(s.Errors, RunError{File: e.File, Line: e.Line, Message: e.Message})
	}
}

func (s *Summary) merge(f *fileStats) {
	s.RowsInserted += f.inserted
	s.RowsUpdated += f.updated
	for kind, n := range f.byKind {
		s.Inserted[kind] += n
	}
}

// fileStats accumulates write outcomes for one file
type fileStats struct {
	inserted int
	updated  int
	failed   int
	byKind   map[models.Kind]int
}

func newFileStats() *fileStats {
	return &fileStats{byKind: make(map[models.Kind]int)}
}
