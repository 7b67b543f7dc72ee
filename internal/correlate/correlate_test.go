package correlate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanpelt/codexlens/internal/clilog"
	"github.com/vanpelt/codexlens/internal/models"
)

const logFile = "/logs/codex-tui.log"

func start(ts int64, line int, tool, command string) clilog.StartMarker {
	return clilog.StartMarker{
		Ts:         ts,
		ToolName:   tool,
		Command:    command,
		Signature:  clilog.Signature(tool, command),
		SourceFile: logFile,
		SourceLine: line,
		Offset:     int64(line * 100),
		Origin:     clilog.OriginFunctionCall,
	}
}

func end(ts int64, line int, tool, command string, kind clilog.EventKind) clilog.EndMarker {
	return clilog.EndMarker{
		Ts:         ts,
		ToolName:   tool,
		Command:    command,
		Signature:  clilog.Signature(tool, command),
		SourceFile: logFile,
		SourceLine: line,
		Offset:     int64(line * 100),
		Origin:     clilog.OriginToolCall,
		Kind:       kind,
	}
}

func intp(v int) *int { return &v }

func TestCorrelate_MatchedPair(t *testing.T) {
	e := end(1000, 2, "exec_command", "", clilog.EventExit)
	e.ExitCode = intp(0)
	e.DurationMs = models.Int64Ptr(120)

	res := Correlate([]clilog.StartMarker{start(0, 1, "exec_command", "ls")}, []clilog.EndMarker{e}, DefaultOptions())

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, models.ToolCallOK, rec.Status)
	assert.Equal(t, int64(0), rec.StartTs)
	assert.Equal(t, int64(1000), *rec.EndTs)
	assert.Equal(t, int64(120), *rec.DurationMs)
	assert.Equal(t, "ls", rec.Command)
	assert.Equal(t, 1, rec.SourceLine)
	assert.Empty(t, res.Dangling)
}

func TestCorrelate_DurationFallsBackToDelta(t *testing.T) {
	res := Correlate(
		[]clilog.StartMarker{start(100, 1, "build", "make")},
		[]clilog.EndMarker{end(450, 2, "build", "make", clilog.EventExit)},
		DefaultOptions())

	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(350), *res.Records[0].DurationMs)
}

func TestCorrelate_UnmatchedEnd(t *testing.T) {
	e := end(5000, 7, "lint", "", clilog.EventFailure)
	e.ExitCode = intp(1)

	res := Correlate(nil, []clilog.EndMarker{e}, DefaultOptions())

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.Equal(t, models.ToolCallFailed, rec.Status)
	assert.Equal(t, int64(5000), rec.StartTs)
	assert.Equal(t, 7, rec.SourceLine)
}

func TestCorrelate_UnmatchedEndInfersStart(t *testing.T) {
	e := end(5000, 7, "lint", "", clilog.EventExit)
	e.DurationMs = models.Int64Ptr(1500)

	res := Correlate(nil, []clilog.EndMarker{e}, DefaultOptions())

	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(3500), res.Records[0].StartTs)
	assert.Equal(t, models.ToolCallOK, res.Records[0].Status)
}

func TestCorrelate_DanglingStart(t *testing.T) {
	res := Correlate([]clilog.StartMarker{start(0, 1, "deploy", "prod")}, nil, DefaultOptions())

	require.Len(t, res.Records, 1)
	assert.Equal(t, models.ToolCallUnknown, res.Records[0].Status)
	assert.Nil(t, res.Records[0].EndTs)
	require.Len(t, res.Dangling, 1)
	assert.Equal(t, "deploy|prod", res.Dangling[0].Signature)
}

func TestCorrelate_SuppressesDuplicateStarts(t *testing.T) {
	starts := []clilog.StartMarker{
		start(0, 1, "exec_command", "ls"),
		start(400, 2, "exec_command", "ls"),
		start(2000, 3, "exec_command", "ls"),
	}
	res := Correlate(starts, nil, DefaultOptions())

	assert.Equal(t, 1, res.Suppressed)
	assert.Len(t, res.Records, 2)
}

func TestCorrelate_PrefersSignatureThenNearest(t *testing.T) {
	starts := []clilog.StartMarker{
		start(0, 1, "exec_command", "make build"),
		start(100, 2, "exec_command", "make test"),
		start(200, 3, "exec_command", "make lint"),
	}
	ends := []clilog.EndMarker{
		end(1000, 4, "exec_command", "make build", clilog.EventExit),
		end(1100, 5, "exec_command", "", clilog.EventFailure),
	}

	res := Correlate(starts, ends, DefaultOptions())
	require.Len(t, res.Records, 3)

	byLine := map[int]*models.ToolCallRecord{}
	for _, r := range res.Records {
		byLine[r.SourceLine] = r
	}
	assert.Equal(t, models.ToolCallOK, byLine[1].Status)
	// tool-only match picks the closest remaining start
	assert.Equal(t, models.ToolCallFailed, byLine[3].Status)
	assert.Equal(t, models.ToolCallUnknown, byLine[2].Status)
}

func TestCorrelate_FallbackToNearestWithinWindow(t *testing.T) {
	starts := []clilog.StartMarker{start(0, 1, "apply_patch", "")}
	ends := []clilog.EndMarker{end(2000, 2, "shell", "true", clilog.EventExit)}

	res := Correlate(starts, ends, DefaultOptions())

	require.Len(t, res.Records, 1)
	assert.Equal(t, "apply_patch", res.Records[0].ToolName)
	assert.Equal(t, "true", res.Records[0].Command)
}

func TestCorrelate_WindowExcludesFarStarts(t *testing.T) {
	starts := []clilog.StartMarker{start(0, 1, "exec_command", "ls")}
	ends := []clilog.EndMarker{end(6*60*1000, 2, "exec_command", "ls", clilog.EventExit)}

	res := Correlate(starts, ends, DefaultOptions())

	require.Len(t, res.Records, 2)
	assert.Equal(t, models.ToolCallUnknown, res.Records[0].Status)
	assert.Equal(t, models.ToolCallOK, res.Records[1].Status)
}

func TestCorrelate_BackgroundEventsStandaloneByDefault(t *testing.T) {
	bg := end(500, 2, "exec_command", "ls", clilog.EventFailure)
	bg.Origin = clilog.OriginBackgroundEvent
	starts := []clilog.StartMarker{start(0, 1, "exec_command", "ls")}

	res := Correlate(starts, []clilog.EndMarker{bg}, DefaultOptions())
	require.Len(t, res.Records, 2)
	assert.Len(t, res.Dangling, 1)

	opts := DefaultOptions()
	opts.CorrelateBackground = true
	res = Correlate(starts, []clilog.EndMarker{bg}, opts)
	require.Len(t, res.Records, 1)
	assert.Equal(t, models.ToolCallFailed, res.Records[0].Status)
}

func TestCorrelate_OrderIndependent(t *testing.T) {
	starts := []clilog.StartMarker{
		start(0, 1, "exec_command", "ls"),
		start(10, 2, "exec_command", "pwd"),
		start(20, 3, "apply_patch", ""),
		start(20, 4, "exec_command", "ls"),
		start(5000, 9, "deploy", "prod"),
	}
	ends := []clilog.EndMarker{
		end(100, 5, "exec_command", "pwd", clilog.EventExit),
		end(100, 6, "exec_command", "ls", clilog.EventFailure),
		end(300, 7, "apply_patch", "", clilog.EventExit),
		end(9000, 10, "lint", "", clilog.EventFailure),
	}

	want := Correlate(starts, ends, DefaultOptions()).Records

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		s := append([]clilog.StartMarker(nil), starts...)
		e := append([]clilog.EndMarker(nil), ends...)
		rng.Shuffle(len(s), func(a, b int) { s[a], s[b] = s[b], s[a] })
		rng.Shuffle(len(e), func(a, b int) { e[a], e[b] = e[b], e[a] })

		assert.Equal(t, want, Correlate(s, e, DefaultOptions()).Records)
	}
}

func TestCorrelate_KeysAreStable(t *testing.T) {
	s := start(0, 1, "deploy", "prod")
	dangling := Correlate([]clilog.StartMarker{s}, nil, DefaultOptions()).Records[0]

	matched := Correlate([]clilog.StartMarker{s},
		[]clilog.EndMarker{end(10, 2, "deploy", "prod", clilog.EventExit)}, DefaultOptions()).Records[0]

	assert.Equal(t, dangling.DedupKey, matched.DedupKey)
	assert.Equal(t, dangling.CorrelationKey, matched.CorrelationKey)
	assert.Len(t, dangling.DedupKey, 24)
}

func TestDeriveStatus(t *testing.T) {
	exit, failure, startKind := clilog.EventExit, clilog.EventFailure, clilog.EventStart

	assert.Equal(t, models.ToolCallUnknown, DeriveStatus(nil, nil))
	assert.Equal(t, models.ToolCallOK, DeriveStatus(&exit, nil))
	assert.Equal(t, models.ToolCallOK, DeriveStatus(&exit, intp(0)))
	assert.Equal(t, models.ToolCallFailed, DeriveStatus(&exit, intp(2)))
	assert.Equal(t, models.ToolCallFailed, DeriveStatus(&failure, nil))
	assert.Equal(t, models.ToolCallFailed, DeriveStatus(&failure, intp(0)))
	assert.Equal(t, models.ToolCallUnknown, DeriveStatus(&startKind, nil))
}
