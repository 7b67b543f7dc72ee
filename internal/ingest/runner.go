// Package ingest runs incremental ingestion: it discovers source files, reads
// each from its watermark, routes lines to the matching extractor, writes the
// resulting records in chunked transactions and then advances the watermark.
package ingest

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanpelt/codexlens/internal/config"
	"github.com/vanpelt/codexlens/internal/correlate"
	"github.com/vanpelt/codexlens/internal/dedup"
	"github.com/vanpelt/codexlens/internal/git"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/redact"
	"github.com/vanpelt/codexlens/internal/sessions"
	"github.com/vanpelt/codexlens/internal/store"
)

// ErrRunInProgress is reported when a run is requested while another is active
var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// Options selects the run mode
type Options struct {
	// Full ignores watermarks and reprocesses every file from the start
	Full bool
}

// Runner executes ingestion runs against one store. At most one run is active
// at a time.
type Runner struct {
	store     *store.Store
	cfg       *config.Config
	projects  sessions.ProjectResolver
	sanitizer *redact.Sanitizer
	keys      *dedup.Generator

	// worktreeExists and now are replaced in tests
	worktreeExists func(path string) bool
	now            func() time.Time

	mu   sync.Mutex
	last atomic.Pointer[Summary]
}

// NewRunner creates a runner. projects may be nil, in which case sessions get
// no project name.
func NewRunner(st *store.Store, cfg *config.Config, projects sessions.ProjectResolver) *Runner {
	home, _ := os.UserHomeDir()
	return &Runner{
		store:          st,
		cfg:            cfg,
		projects:       projects,
		sanitizer:      redact.New(home),
		keys:           dedup.New(cfg.Tuning.DedupKeyLength),
		worktreeExists: git.WorktreeExists,
		now:            time.Now,
	}
}

// LastSummary returns the summary of the most recent completed run, or nil
func (r *Runner) LastSummary() *Summary {
	return r.last.Load()
}

// Running reports whether a run is active
func (r *Runner) Running() bool {
	if r.mu.TryLock() {
		r.mu.Unlock()
		return false
	}
	return true
}

// Run performs one ingestion pass and always returns a summary. Cancelling
// ctx stops the run between files; a file in flight is always finished.
func (r *Runner) Run(ctx context.Context, opts Options) *Summary {
	started := r.now()
	mode := ModeIncremental
	if opts.Full || r.cfg.Full {
		mode = ModeFull
	}
	sum := newSummary(mode, started)

	if !r.mu.TryLock() {
		sum.Rejected = true
		sum.addError("", 0, ErrRunInProgress)
		return sum
	}
	defer r.mu.Unlock()

	log := logger.WithFields(map[string]interface{}{"mode": mode})
	log.Debug().Msg("ingestion run started")

	sources, errs := r.discover(ctx)
	sum.Errors = append(sum.Errors, errs...)

	for _, src := range sources {
		if ctx.Err() != nil {
			sum.addError("", 0, ctx.Err())
			break
		}
		r.processFile(context.WithoutCancel(ctx), src, mode == ModeFull, sum)
	}

	if ctx.Err() == nil {
		r.pruneWatermarks(ctx, sum)
		r.reconcile(ctx, sum)
	}

	sum.DurationMs = r.now().Sub(started).Milliseconds()
	r.last.Store(sum)
	logSummary(log, sum)
	return sum
}

func logSummary(log zerolog.Logger, sum *Summary) {
	event := log.Info()
	if len(sum.Errors) > 0 {
		event = log.Warn()
	}
	event.
		Int("files", sum.FilesProcessed).
		Int("skipped", sum.FilesSkipped).
		Int("lines", sum.LinesIngested).
		Int("inserted", sum.RowsInserted).
		Int("updated", sum.RowsUpdated).
		Int("errors", len(sum.Errors)).
		Int64("duration_ms", sum.DurationMs).
		Msg("ingestion run finished")
}

func (r *Runner) pruneWatermarks(ctx context.Context, sum *Summary) {
	marks, err := r.store.ListWatermarks(ctx)
	if err != nil {
		sum.addError("", 0, err)
		return
	}
	for _, wm := range marks {
		if _, err := os.Stat(wm.Path); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := r.store.DeleteWatermark(ctx, wm.Path); err != nil {
			sum.addError(wm.Path, 0, err)
			continue
		}
		logger.Debugf("dropped watermark for vanished file %s", wm.Path)
	}
}

func (r *Runner) correlateOptions() correlate.Options {
	return correlate.Options{
		DuplicateStartWindow: r.cfg.Tuning.DuplicateStartWindow,
		CorrelationWindow:    r.cfg.Tuning.CorrelationWindow,
		CorrelateBackground:  r.cfg.Tuning.CorrelateBackgroundEvents,
		Keys:                 r.keys,
	}
}
