package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vanpelt/codexlens/internal/clilog"
	"github.com/vanpelt/codexlens/internal/correlate"
	"github.com/vanpelt/codexlens/internal/desktoplog"
	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/models"
	"github.com/vanpelt/codexlens/internal/sessions"
	"github.com/vanpelt/codexlens/internal/store"
)

// extraction is what one file read produced
type extraction struct {
	records   []models.Record
	errors    []linereader.LineError
	watermark int64
}

// processFile reads src from its watermark, writes every derived record and
// advances the watermark only if every chunk committed.
func (r *Runner) processFile(ctx context.Context, src Source, full bool, sum *Summary) {
	var offset int64
	var prev *models.Watermark
	if !full {
		wm, err := r.store.GetWatermark(ctx, src.Path)
		switch {
		case err == nil:
			if src.Size == wm.ByteOffset && src.ModTime.UnixMilli() == wm.MtimeMs {
				sum.FilesSkipped++
				return
			}
			offset = wm.ByteOffset
			prev = wm
		case errors.Is(err, store.ErrNotFound):
		default:
			sum.addError(src.Path, 0, fmt.Errorf("failed to load watermark: %w", err))
			return
		}
	}

	res, err := linereader.Read(src.Path, offset)
	if err != nil {
		sum.addError(src.Path, 0, fmt.Errorf("failed to read: %w", err))
		return
	}
	sum.FilesProcessed++
	sum.LinesIngested += len(res.Lines)
	if res.WasReset {
		sum.FilesReset++
	}

	var ex *extraction
	switch src.Kind {
	case models.SourceSession:
		ex = r.extractSession(ctx, res)
	case models.SourceDesktopLog:
		ex = r.extractDesktopLog(res)
	case models.SourceCLILog:
		ex = r.extractCLILog(ctx, res, full, prev, sum)
	default:
		sum.addError(src.Path, 0, fmt.Errorf("unknown source kind %q", src.Kind))
		return
	}
	sum.addLineErrors(ex.errors)

	stats := newFileStats()
	committed := r.write(ctx, src.Path, ex.records, stats, sum)
	sum.merge(stats)

	log := logger.WithFields(map[string]interface{}{"file": src.Path, "kind": string(src.Kind)})
	log.Debug().
		Int("lines", len(res.Lines)).
		Int("records", len(ex.records)).
		Int("inserted", stats.inserted).
		Int("updated", stats.updated).
		Int("failed", stats.failed).
		Int("line_errors", len(ex.errors)).
		Bool("reset", res.WasReset).
		Int64("offset", ex.watermark).
		Msg("file ingested")

	if !committed {
		log.Warn().Int64("offset", offset).Msg("watermark left unchanged after failed chunk")
		return
	}
	if err := r.store.SetWatermark(ctx, src.Path, ex.watermark, res.ModTime.UnixMilli()); err != nil {
		sum.addError(src.Path, 0, fmt.Errorf("failed to save watermark: %w", err))
	}
}

func (r *Runner) extractSession(ctx context.Context, res *linereader.Result) *extraction {
	parsed, errs := linereader.DecodeJSONL(res)
	x := &sessions.Extractor{
		RetainBodies: r.cfg.RetainMessageBodies,
		Projects:     r.projects,
		Models:       &modelLookup{ctx: ctx, store: r.store, path: res.Path, until: res.FromOffset},
		Keys:         r.keys,
		Sanitizer:    r.sanitizer,
	}
	batch := x.Extract(res.Path, parsed)
	return &extraction{
		records:   batch.All(),
		errors:    append(errs, batch.Errors...),
		watermark: res.NewOffset,
	}
}

// extractDesktopLog resumes from the last record's header next time, since
// that record may still gain continuation lines.
func (r *Runner) extractDesktopLog(res *linereader.Result) *extraction {
	batch := desktoplog.Process(res.Path, res.Lines, desktoplog.Options{
		Sanitizer: r.sanitizer,
		Keys:      r.keys,
	})
	watermark := res.NewOffset
	if batch.HasTail && batch.TailOffset < watermark {
		watermark = batch.TailOffset
	}
	return &extraction{records: batch.All(), errors: batch.Errors, watermark: watermark}
}

// extractCLILog correlates this read's markers together with starts from
// earlier reads that are still waiting for an end. An end arriving in a later
// read upgrades the stored call, and a repeated start arriving in a later read
// is suppressed against it, so neither produces a second call.
//
// A call whose arguments were cut off by the end of the file is held for the
// next read, unless the file has not been written since the run that held it
// or the run is full. Then it is emitted with the arguments read so far.
func (r *Runner) extractCLILog(ctx context.Context, res *linereader.Result, full bool, prev *models.Watermark, sum *Summary) *extraction {
	settled := full || (prev != nil && !res.WasReset && prev.MtimeMs == res.ModTime.UnixMilli())
	markers := clilog.Extract(res.Lines, res.Path, clilog.Options{
		ContinuationLines: r.cfg.Tuning.ArgumentContinuationLines,
		Sanitizer:         r.sanitizer,
		Settled:           settled,
	})

	starts := markers.Starts
	if !res.WasReset && !full && (len(markers.Starts) > 0 || len(markers.Ends) > 0) {
		carried, err := r.pendingStarts(ctx, res.Path, markers)
		if err != nil {
			sum.addError(res.Path, 0, fmt.Errorf("failed to load pending tool calls: %w", err))
		}
		starts = append(carried, starts...)
	}

	result := correlate.Correlate(starts, markers.Ends, r.correlateOptions())
	records := make([]models.Record, 0, len(result.Records))
	for _, rec := range result.Records {
		records = append(records, rec)
	}

	watermark := res.NewOffset
	if markers.Held && markers.HoldOffset < watermark {
		watermark = markers.HoldOffset
	}
	return &extraction{records: records, watermark: watermark}
}

// pendingStarts loads stored calls still waiting for an end that this read
// can affect: those a new end may match, and those a new start may repeat.
func (r *Runner) pendingStarts(ctx context.Context, path string, markers *clilog.Markers) ([]clilog.StartMarker, error) {
	since := int64(math.MaxInt64)
	for _, s := range markers.Starts {
		since = min(since, s.Ts-r.cfg.Tuning.DuplicateStartWindow.Milliseconds())
	}
	for _, e := range markers.Ends {
		since = min(since, e.Ts-r.cfg.Tuning.CorrelationWindow.Milliseconds())
	}

	pending, err := r.store.PendingToolCalls(ctx, path, since)
	if err != nil {
		return nil, err
	}
	out := make([]clilog.StartMarker, 0, len(pending))
	for _, p := range pending {
		out = append(out, clilog.StartMarker{
			Ts:         p.StartTs,
			ToolName:   p.ToolName,
			Command:    p.Command,
			Signature:  clilog.Signature(p.ToolName, p.Command),
			SourceFile: p.SourceFile,
			SourceLine: p.SourceLine,
			Origin:     clilog.OriginFunctionCall,
		})
	}
	return out, nil
}

// write stores records in chunks, one transaction each. It reports whether
// every chunk committed.
func (r *Runner) write(ctx context.Context, path string, records []models.Record, stats *fileStats, sum *Summary) bool {
	size := r.cfg.ChunkSize
	if size <= 0 {
		size = len(records)
	}
	ok := true
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := r.writeChunk(ctx, path, records[start:end], stats, sum); err != nil {
			sum.addError(path, 0, err)
			ok = false
		}
	}
	return ok
}

func (r *Runner) writeChunk(ctx context.Context, path string, chunk []models.Record, stats *fileStats, sum *Summary) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk: %w", err)
	}

	local := newFileStats()
	for _, rec := range chunk {
		outcome, err := tx.Write(ctx, rec)
		if err != nil {
			local.failed++
			sum.addError(path, recordLine(rec), err)
			logger.Debugf("row write failed in %s: %v", path, err)
			continue
		}
		switch outcome {
		case store.Inserted:
			local.inserted++
			local.byKind[rec.Kind()]++
		case store.Updated:
			local.updated++
		}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to commit chunk: %w", err)
	}
	stats.inserted += local.inserted
	stats.updated += local.updated
	stats.failed += local.failed
	for kind, n := range local.byKind {
		stats.byKind[kind] += n
	}
	return nil
}

// recordLine is the source line a record came from, 0 when it has none
func recordLine(rec models.Record) int {
	switch r := rec.(type) {
	case *models.SessionRecord:
		return r.LineNumber
	case *models.MessageRecord:
		return r.LineNumber
	case *models.ModelCallRecord:
		return r.LineNumber
	case *models.ToolCallRecord:
		return r.SourceLine
	case *models.DesktopLogEvent:
		return r.LineNumber
	}
	return 0
}
