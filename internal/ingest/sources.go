package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanpelt/codexlens/internal/models"
)

// statConcurrency bounds parallel stat calls during discovery
const statConcurrency = 8

// Source is one discovered input file
type Source struct {
	Path    string
	Kind    models.SourceKind
	Size    int64
	ModTime time.Time
}

type candidate struct {
	path string
	kind models.SourceKind
}

// discover lists every input file, oldest first. A listing failure drops only
// that source's contribution and is reported.
func (r *Runner) discover(ctx context.Context) ([]Source, []RunError) {
	var candidates []candidate
	var errs []RunError

	sessions, err := listSessions(r.cfg.SessionsDir())
	if err != nil {
		errs = append(errs, RunError{File: r.cfg.SessionsDir(), Message: err.Error()})
	}
	candidates = append(candidates, sessions...)

	if r.cfg.CLILogPath != "" {
		candidates = append(candidates, candidate{path: r.cfg.CLILogPath, kind: models.SourceCLILog})
	}

	for _, dir := range r.cfg.DesktopLogDirs {
		logs, err := listDesktopLogs(dir)
		if err != nil {
			errs = append(errs, RunError{File: dir, Message: err.Error()})
			continue
		}
		candidates = append(candidates, logs...)
	}

	sources := make([]*Source, len(candidates))
	statErrs := make([]error, len(candidates))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(statConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			info, err := os.Stat(c.path)
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					statErrs[i] = err
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			sources[i] = &Source{Path: c.path, Kind: c.kind, Size: info.Size(), ModTime: info.ModTime()}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Source, 0, len(sources))
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if statErrs[i] != nil {
			errs = append(errs, RunError{File: candidates[i].path, Message: statErrs[i].Error()})
		}
		if src == nil || seen[src.Path] {
			continue
		}
		seen[src.Path] = true
		out = append(out, *src)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Path < out[j].Path
	})
	return out, errs
}

// listSessions walks the rollout tree; a missing tree is empty
func listSessions(root string) ([]candidate, error) {
	var out []candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			out = append(out, candidate{path: path, kind: models.SourceSession})
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("failed to list sessions: %w", err)
	}
	return out, nil
}

// IsDesktopLogName reports whether name looks like a desktop app log
func IsDesktopLogName(name string) bool {
	return strings.HasPrefix(name, "codex-desktop-") && strings.HasSuffix(name, ".log")
}

func listDesktopLogs(dir string) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list desktop logs: %w", err)
	}

	var out []candidate
	for _, e := range entries {
		if !e.IsDir() && IsDesktopLogName(e.Name()) {
			out = append(out, candidate{path: filepath.Join(dir, e.Name()), kind: models.SourceDesktopLog})
		}
	}
	return out, nil
}
