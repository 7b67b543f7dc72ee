package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanpelt/codexlens/internal/config"
	"github.com/vanpelt/codexlens/internal/models"
	"github.com/vanpelt/codexlens/internal/store"
)

const sessionUUID = "3e37c2ff-c596-4cab-8346-a5d4e6b81514"

const desktopName = "codex-desktop-0b9f5c2e-3f1a-4c6e-9d2a-7e8f9a0b1c2d-4312-t7-i1-3.log"

var rolloutLines = []string{
	`{"timestamp":"2025-09-01T12:00:00.000Z","type":"session_meta","payload":{"id":"` + sessionUUID + `","timestamp":"2025-09-01T12:00:00.000Z","cwd":"/Users/alice/src/app","originator":"codex_cli_rs","cli_version":"0.36.0"}}`,
	`{"timestamp":"2025-09-01T12:00:01.000Z","type":"turn_context","payload":{"model":"gpt-5-codex"}}`,
	`{"timestamp":"2025-09-01T12:00:02.000Z","type":"response_item","payload":{"type":"message","id":"msg_1","role":"user","content":[{"type":"input_text","text":"hello"}]}}`,
	`{"timestamp":"2025-09-01T12:00:03.000Z","type":"event_msg","payload":{"type":"token_count","info":{"last_token_usage":{"input_tokens":100,"cached_input_tokens":40,"output_tokens":20,"total_tokens":120}}}}`,
}

var cliLines = []string{
	`2025-09-01T12:00:00.000Z INFO FunctionCall: exec_command(cmd="ls")`,
	`2025-09-01T12:00:01.000Z INFO ToolCall: exec_command status=ok exit_code=0 duration_ms=120`,
	`2025-09-01T12:00:02.000Z INFO ToolCall: lint status=failed exit_code=1`,
	`2025-09-01T12:00:03.000Z INFO FunctionCall: deploy({"env":"prod"})`,
}

func desktopLines(worktree string) []string {
	return []string{
		`2025-09-01T12:00:00.000Z info [worktree] created worktree {"worktreePath":"` + worktree + `","branch":"codex/a"}`,
		`2025-09-01T12:00:01.000Z info [renderer] window focused`,
		`2025-09-01T12:00:02.000Z info [automation] automation queued {"automationId":"auto-1","name":"Nightly"}`,
		`2025-09-01T12:00:03.000Z error [main] Uncaught exception`,
		`    at foo (/Users/alice/app.js:1:2)`,
		`    at bar`,
	}
}

type fixture struct {
	root     string
	cfg      *config.Config
	store    *store.Store
	runner   *Runner
	rollout  string
	cliLog   string
	desktop  string
	worktree string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	rt := &config.Runtime{
		HomeDir:   root,
		CodexHome: filepath.Join(root, "codex"),
		StateDir:  filepath.Join(root, "state"),
	}
	cfg := config.Default(rt)
	cfg.DesktopLogDirs = []string{filepath.Join(root, "desktop")}

	st, err := store.Open(rt.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	r := NewRunner(st, cfg, nil)
	r.worktreeExists = func(string) bool { return true }

	return &fixture{
		root:     root,
		cfg:      cfg,
		store:    st,
		runner:   r,
		rollout:  filepath.Join(cfg.SessionsDir(), "2025", "09", "01", "rollout-2025-09-01T12-00-00-"+sessionUUID+".jsonl"),
		cliLog:   cfg.CLILogPath,
		desktop:  filepath.Join(root, "desktop", desktopName),
		worktree: filepath.Join(root, "worktrees", "wt1"),
	}
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) writeAll(t *testing.T) {
	f.write(t, f.rollout, joinLines(rolloutLines))
	f.write(t, f.cliLog, joinLines(cliLines))
	f.write(t, f.desktop, joinLines(desktopLines(f.worktree)))
}

func (f *fixture) run(t *testing.T, opts Options) *Summary {
	t.Helper()
	sum := f.runner.Run(context.Background(), opts)
	require.NotNil(t, sum)
	return sum
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}

type snapshot struct {
	keys     map[models.Kind][]string
	statuses map[string]models.ToolCallStatus
}

func takeSnapshot(t *testing.T, st *store.Store) snapshot {
	t.Helper()
	ctx := context.Background()
	snap := snapshot{keys: map[models.Kind][]string{}, statuses: map[string]models.ToolCallStatus{}}
	for _, kind := range models.AllKinds {
		keys, err := st.Keys(ctx, kind)
		require.NoError(t, err)
		snap.keys[kind] = keys
	}
	for _, key := range snap.keys[models.KindToolCall] {
		call, err := st.ToolCall(ctx, key)
		require.NoError(t, err)
		snap.statuses[key] = call.Status
	}
	return snap
}

func (s snapshot) count(kind models.Kind) int {
	return len(s.keys[kind])
}

func (s snapshot) statusList() []string {
	var out []string
	for _, status := range s.statuses {
		out = append(out, string(status))
	}
	sort.Strings(out)
	return out
}

func TestRun_IngestsEverySource(t *testing.T) {
	f := newFixture(t)
	f.writeAll(t)

	sum := f.run(t, Options{})

	assert.Empty(t, sum.Errors)
	assert.False(t, sum.Rejected)
	assert.Equal(t, ModeIncremental, sum.Mode)
	assert.Equal(t, 3, sum.FilesProcessed)
	assert.Equal(t, len(rolloutLines)+len(cliLines)+6, sum.LinesIngested)

	snap := takeSnapshot(t, f.store)
	assert.Equal(t, 1, snap.count(models.KindSession))
	assert.Equal(t, 1, snap.count(models.KindMessage))
	assert.Equal(t, 1, snap.count(models.KindModelCall))
	assert.Equal(t, 3, snap.count(models.KindToolCall))
	assert.Equal(t, 3, snap.count(models.KindDesktopLog))
	assert.Equal(t, 1, snap.count(models.KindWorktree))
	assert.Equal(t, 1, snap.count(models.KindAutomation))
	assert.Equal(t, []string{"failed", "ok", "unknown"}, snap.statusList())

	assert.Equal(t, 11, sum.RowsInserted)
	assert.Equal(t, 3, sum.Inserted[models.KindToolCall])
	assert.Same(t, sum, f.runner.LastSummary())

	model, err := f.store.LastModel(context.Background(), sessionUUID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-codex", model)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.cfg.ChunkSize = 2
	f.writeAll(t)

	first := f.run(t, Options{})
	require.Empty(t, first.Errors)
	before := takeSnapshot(t, f.store)

	second := f.run(t, Options{})
	assert.Empty(t, second.Errors)
	assert.Zero(t, second.RowsInserted)
	assert.Zero(t, second.RowsUpdated)
	// the desktop log's last record is always re-read
	assert.Equal(t, 2, second.FilesSkipped)
	assert.Equal(t, 1, second.FilesProcessed)

	full := f.run(t, Options{Full: true})
	assert.Empty(t, full.Errors)
	assert.Equal(t, ModeFull, full.Mode)
	assert.Zero(t, full.RowsInserted)
	assert.Zero(t, full.RowsUpdated)
	assert.Equal(t, 3, full.FilesProcessed)

	assert.Equal(t, before, takeSnapshot(t, f.store))
}

// splitPoints returns every line boundary of content plus the offsets on
// either side of it and the middle of each line.
func splitPoints(content string) []int {
	seen := map[int]bool{}
	add := func(k int) {
		if k > 0 && k < len(content) {
			seen[k] = true
		}
	}
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] != '\n' {
			continue
		}
		add(start + (i-start)/2)
		add(i)
		add(i + 1)
		add(i + 2)
		start = i + 1
	}
	out := make([]int, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func TestRun_ResumableAtAnyOffset(t *testing.T) {
	baseline := newFixture(t)
	baseline.writeAll(t)
	require.Empty(t, baseline.run(t, Options{}).Errors)
	want := takeSnapshot(t, baseline.store)

	sources := []struct {
		name    string
		path    func(f *fixture) string
		content func(f *fixture) string
	}{
		{"rollout", func(f *fixture) string { return f.rollout }, func(*fixture) string { return joinLines(rolloutLines) }},
		{"cli log", func(f *fixture) string { return f.cliLog }, func(*fixture) string { return joinLines(cliLines) }},
		{"desktop log", func(f *fixture) string { return f.desktop }, func(f *fixture) string { return joinLines(desktopLines(f.worktree)) }},
	}

	for _, src := range sources {
		probe := newFixture(t)
		probe.worktree = baseline.worktree
		for _, k := range splitPoints(src.content(probe)) {
			f := newFixture(t)
			f.worktree = baseline.worktree
			f.writeAll(t)
			content := src.content(f)
			f.write(t, src.path(f), content[:k])

			first := f.run(t, Options{})
			require.Empty(t, first.Errors, "%s split at %d", src.name, k)

			f.write(t, src.path(f), content)
			second := f.run(t, Options{})
			require.Empty(t, second.Errors, "%s split at %d", src.name, k)

			got := takeSnapshot(t, f.store)
			assert.Equal(t, want.statusList(), got.statusList(), "%s split at %d", src.name, k)
			for _, kind := range models.AllKinds {
				assert.Len(t, got.keys[kind], len(want.keys[kind]), "%s split at %d: %s", src.name, k, kind)
			}
		}
	}
}

func TestRun_SplitToolCallIsUpgradedInPlace(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.cliLog, joinLines(cliLines[:1]))

	first := f.run(t, Options{})
	require.Empty(t, first.Errors)
	snap := takeSnapshot(t, f.store)
	require.Equal(t, []string{"unknown"}, snap.statusList())
	key := snap.keys[models.KindToolCall][0]

	f.write(t, f.cliLog, joinLines(cliLines[:2]))
	second := f.run(t, Options{})
	require.Empty(t, second.Errors)
	assert.Equal(t, 1, second.RowsUpdated)
	assert.Zero(t, second.RowsInserted)

	call, err := f.store.ToolCall(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.ToolCallOK, call.Status)
	require.NotNil(t, call.DurationMs)
	assert.Equal(t, int64(120), *call.DurationMs)
	assert.Equal(t, "ls", call.Command)
}

func TestRun_DuplicateStartAcrossRunsIsSuppressed(t *testing.T) {
	lines := []string{
		`2025-09-01T12:00:00.000Z INFO FunctionCall: deploy({"env":"prod"})`,
		`2025-09-01T12:00:00.500Z INFO FunctionCall: deploy({"env":"prod"})`,
	}

	whole := newFixture(t)
	whole.write(t, whole.cliLog, joinLines(lines))
	require.Empty(t, whole.run(t, Options{}).Errors)
	require.Equal(t, 1, takeSnapshot(t, whole.store).count(models.KindToolCall))

	split := newFixture(t)
	split.write(t, split.cliLog, joinLines(lines[:1]))
	require.Empty(t, split.run(t, Options{}).Errors)
	split.write(t, split.cliLog, joinLines(lines))
	second := split.run(t, Options{})
	require.Empty(t, second.Errors)
	assert.Zero(t, second.RowsInserted)

	snap := takeSnapshot(t, split.store)
	assert.Equal(t, 1, snap.count(models.KindToolCall))
	assert.Equal(t, []string{"unknown"}, snap.statusList())

	call, err := split.store.ToolCall(context.Background(), snap.keys[models.KindToolCall][0])
	require.NoError(t, err)
	assert.Equal(t, 1, call.SourceLine)
}

func TestRun_UnfinishedArgumentsAreReleasedOnceTheFileSettles(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.cliLog, joinLines([]string{
		`2025-09-01T12:00:00.000Z INFO FunctionCall: deploy`,
		`  target=prod`,
	}))

	first := f.run(t, Options{})
	require.Empty(t, first.Errors)
	assert.Zero(t, takeSnapshot(t, f.store).count(models.KindToolCall))

	wm, err := f.store.GetWatermark(context.Background(), f.cliLog)
	require.NoError(t, err)
	assert.Zero(t, wm.ByteOffset)

	for i := 0; i < 2; i++ {
		sum := f.run(t, Options{})
		require.Empty(t, sum.Errors)
		snap := takeSnapshot(t, f.store)
		require.Equal(t, 1, snap.count(models.KindToolCall))
		assert.Equal(t, []string{"unknown"}, snap.statusList())
	}

	full := f.run(t, Options{Full: true})
	require.Empty(t, full.Errors)
	assert.Zero(t, full.RowsInserted)
	assert.Equal(t, 1, takeSnapshot(t, f.store).count(models.KindToolCall))
}

func TestRun_UnfinishedArgumentsStayHeldWhileTheFileGrows(t *testing.T) {
	f := newFixture(t)
	mtime := time.Now()
	writeAt := func(lines ...string) {
		f.write(t, f.cliLog, joinLines(lines))
		mtime = mtime.Add(time.Minute)
		require.NoError(t, os.Chtimes(f.cliLog, mtime, mtime))
	}

	lines := []string{
		`2025-09-01T12:00:00.000Z INFO FunctionCall: shell(`,
		`{"command": ["bash", "-lc",`,
	}
	writeAt(lines...)
	require.Empty(t, f.run(t, Options{}).Errors)

	lines = append(lines, `"make test",`)
	writeAt(lines...)
	require.Empty(t, f.run(t, Options{}).Errors)
	assert.Zero(t, takeSnapshot(t, f.store).count(models.KindToolCall))

	lines = append(lines, `"-v"]})`, `2025-09-01T12:00:02.000Z INFO ToolCall: shell status=ok exit_code=0`)
	writeAt(lines...)
	require.Empty(t, f.run(t, Options{}).Errors)

	snap := takeSnapshot(t, f.store)
	require.Equal(t, 1, snap.count(models.KindToolCall))
	assert.Equal(t, []string{"ok"}, snap.statusList())
}

func TestRun_ResumedRolloutRecoversModel(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.rollout, joinLines(rolloutLines[:2]))
	require.Empty(t, f.run(t, Options{}).Errors)

	f.write(t, f.rollout, joinLines(rolloutLines))
	require.Empty(t, f.run(t, Options{}).Errors)

	model, err := f.store.LastModel(context.Background(), sessionUUID)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5-codex", model)
}

func TestRun_GrowingDesktopRecordIsExtended(t *testing.T) {
	f := newFixture(t)
	lines := desktopLines(f.worktree)
	f.write(t, f.desktop, joinLines(lines[:4]))
	require.Empty(t, f.run(t, Options{}).Errors)

	f.write(t, f.desktop, joinLines(lines))
	sum := f.run(t, Options{})
	require.Empty(t, sum.Errors)
	assert.Zero(t, sum.RowsInserted)
	assert.Equal(t, 1, sum.RowsUpdated)
}

func TestRun_TruncatedFileResets(t *testing.T) {
	f := newFixture(t)
	f.writeAll(t)
	require.Empty(t, f.run(t, Options{}).Errors)

	f.write(t, f.cliLog, joinLines([]string{
		`2025-09-02T08:00:00.000Z INFO ToolCall: build status=ok exit_code=0`,
	}))
	sum := f.run(t, Options{})

	assert.Empty(t, sum.Errors)
	assert.Equal(t, 1, sum.FilesReset)
	assert.Equal(t, 1, sum.Inserted[models.KindToolCall])

	wm, err := f.store.GetWatermark(context.Background(), f.cliLog)
	require.NoError(t, err)
	info, err := os.Stat(f.cliLog)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), wm.ByteOffset)
}

func TestRun_LineErrorsAreReportedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, f.rollout, joinLines([]string{rolloutLines[0], `{not json`, rolloutLines[2]}))
	f.write(t, f.desktop, joinLines([]string{"2025-09-01 12:00:00 info [main] not an iso header"}))

	sum := f.run(t, Options{})

	require.Len(t, sum.Errors, 1)
	assert.Equal(t, f.rollout, sum.Errors[0].File)
	assert.Equal(t, 2, sum.Errors[0].Line)
	assert.Equal(t, 1, sum.Inserted[models.KindMessage])

	wm, err := f.store.GetWatermark(context.Background(), f.rollout)
	require.NoError(t, err)
	assert.Positive(t, wm.ByteOffset)
}

func TestRun_EmptyRoot(t *testing.T) {
	f := newFixture(t)

	sum := f.run(t, Options{})

	assert.Empty(t, sum.Errors)
	assert.Zero(t, sum.FilesProcessed)
	assert.Zero(t, sum.RowsInserted)
}

func TestRun_PrunesWatermarksOfVanishedFiles(t *testing.T) {
	f := newFixture(t)
	f.writeAll(t)
	require.Empty(t, f.run(t, Options{}).Errors)

	require.NoError(t, os.Remove(f.cliLog))
	require.Empty(t, f.run(t, Options{}).Errors)

	marks, err := f.store.ListWatermarks(context.Background())
	require.NoError(t, err)
	var paths []string
	for _, wm := range marks {
		paths = append(paths, wm.Path)
	}
	assert.ElementsMatch(t, []string{f.rollout, f.desktop}, paths)
}

func TestRun_ReconcilesVanishedWorktrees(t *testing.T) {
	f := newFixture(t)
	f.runner.worktreeExists = func(path string) bool { return path != f.worktree }
	f.runner.now = func() time.Time { return time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC) }
	f.writeAll(t)

	first := f.run(t, Options{})
	require.Empty(t, first.Errors)
	assert.Equal(t, 2, first.Inserted[models.KindWorktree])

	states, err := f.store.LatestWorktreeStates(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, f.worktree, states[0].Path)
	assert.Equal(t, models.WorktreeArchived, states[0].Action)

	second := f.run(t, Options{Full: true})
	require.Empty(t, second.Errors)
	assert.Zero(t, second.Inserted[models.KindWorktree])
}

func TestRun_RejectsOverlappingRuns(t *testing.T) {
	f := newFixture(t)
	f.runner.mu.Lock()

	assert.True(t, f.runner.Running())
	sum := f.run(t, Options{})
	assert.True(t, sum.Rejected)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, ErrRunInProgress.Error(), sum.Errors[0].Message)
	assert.Nil(t, f.runner.LastSummary())

	f.runner.mu.Unlock()
	assert.False(t, f.runner.Running())
	assert.False(t, f.run(t, Options{}).Rejected)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.writeAll(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := f.runner.Run(ctx, Options{})

	assert.Zero(t, sum.FilesProcessed)
	require.NotEmpty(t, sum.Errors)
	assert.Equal(t, context.Canceled.Error(), sum.Errors[len(sum.Errors)-1].Message)
}

func TestDiscover_OrdersByModTime(t *testing.T) {
	f := newFixture(t)
	f.writeAll(t)
	f.write(t, filepath.Join(f.root, "desktop", "unrelated.log"), "x\n")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(f.desktop, old, old))

	sources, errs := f.runner.discover(context.Background())
	require.Empty(t, errs)
	require.Len(t, sources, 3)
	assert.Equal(t, f.desktop, sources[0].Path)
	assert.Equal(t, models.SourceDesktopLog, sources[0].Kind)

	kinds := map[models.SourceKind]string{}
	for _, src := range sources {
		kinds[src.Kind] = src.Path
	}
	assert.Equal(t, f.rollout, kinds[models.SourceSession])
	assert.Equal(t, f.cliLog, kinds[models.SourceCLILog])
}

func TestIsDesktopLogName(t *testing.T) {
	assert.True(t, IsDesktopLogName(desktopName))
	assert.True(t, IsDesktopLogName("codex-desktop-unknown.log"))
	assert.False(t, IsDesktopLogName("codex-desktop-x.log.1"))
	assert.False(t, IsDesktopLogName("main.log"))
}
