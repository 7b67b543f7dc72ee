package store

import (
	"fmt"
	"strings"

	"github.com/vanpelt/codexlens/internal/models"
)

// table describes how one record kind is inserted
type table struct {
	name    string
	columns []string
	values  func(models.Record) []any
}

func (t table) insertSQL() string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		t.name, strings.Join(t.columns, ", "), marks)
}

var tables = map[models.Kind]table{
	models.KindSession: {
		name: "sessions",
		columns: []string{"id", "started_at", "cwd", "project", "originator", "cli_version",
			"git_branch", "git_commit", "repository_url", "source_file", "line_number", "dedup_key"},
		values: func(r models.Record) []any {
			s := r.(*models.SessionRecord)
			return []any{s.ID, s.StartedAt, s.Cwd, s.Project, s.Originator, s.CLIVersion,
				s.GitBranch, s.GitCommit, s.RepositoryURL, s.SourceFile, s.LineNumber, s.DedupKey}
		},
	},
	models.KindMessage: {
		name: "messages",
		columns: []string{"id", "session_id", "role", "ts", "content_chars", "content",
			"source_file", "line_number", "dedup_key"},
		values: func(r models.Record) []any {
			m := r.(*models.MessageRecord)
			return []any{m.ID, m.SessionID, m.Role, m.Ts, m.ContentChars, m.Content,
				m.SourceFile, m.LineNumber, m.DedupKey}
		},
	},
	models.KindModelCall: {
		name: "model_calls",
		columns: []string{"id", "session_id", "ts", "model", "input_tokens", "cached_input_tokens",
			"output_tokens", "reasoning_output_tokens", "total_tokens", "source_file", "line_number", "dedup_key"},
		values: func(r models.Record) []any {
			c := r.(*models.ModelCallRecord)
			return []any{c.ID, c.SessionID, c.Ts, c.Model, c.InputTokens, c.CachedInputTokens,
				c.OutputTokens, c.ReasoningOutputTokens, c.TotalTokens, c.SourceFile, c.LineNumber, c.DedupKey}
		},
	},
	models.KindToolCall: {
		name: "tool_calls",
		columns: []string{"id", "tool_name", "command", "status", "start_ts", "end_ts", "duration_ms",
			"exit_code", "error", "stdout_bytes", "stderr_bytes", "source_file", "source_line",
			"correlation_key", "dedup_key"},
		values: func(r models.Record) []any {
			c := r.(*models.ToolCallRecord)
			return []any{c.DedupKey, c.ToolName, c.Command, string(c.Status), c.StartTs, c.EndTs, c.DurationMs,
				c.ExitCode, c.Error, c.StdoutBytes, c.StderrBytes, c.SourceFile, c.SourceLine,
				c.CorrelationKey, c.DedupKey}
		},
	},
	models.KindDesktopLog: {
		name: "desktop_log_events",
		columns: []string{"id", "ts", "level", "component", "message", "payload_text", "app_session_id",
			"process_id", "thread_id", "instance_id", "segment_index", "file_path", "line_number", "dedup_key"},
		values: func(r models.Record) []any {
			e := r.(*models.DesktopLogEvent)
			return []any{e.ID, e.Ts, e.Level, e.Component, e.Message, e.PayloadText, e.AppSessionID,
				e.ProcessID, e.ThreadID, e.InstanceID, e.SegmentIndex, e.FilePath, e.LineNumber, e.DedupKey}
		},
	},
	models.KindWorktree: {
		name: "worktree_events",
		columns: []string{"id", "ts", "action", "worktree_path", "branch", "status", "error",
			"source_log_id", "dedup_key"},
		values: func(r models.Record) []any {
			w := r.(*models.WorktreeEvent)
			return []any{w.ID, w.Ts, w.Action, w.WorktreePath, w.Branch, w.Status, w.Error,
				w.SourceLogID, w.DedupKey}
		},
	},
	models.KindAutomation: {
		name: "automation_events",
		columns: []string{"id", "ts", "action", "automation_id", "name", "status", "error",
			"source_log_id", "dedup_key"},
		values: func(r models.Record) []any {
			a := r.(*models.AutomationEvent)
			return []any{a.ID, a.Ts, a.Action, a.AutomationID, a.Name, a.Status, a.Error,
				a.SourceLogID, a.DedupKey}
		},
	},
}

// A matched call replaces the unknown row its start produced earlier. Known
// statuses are never rewritten.
const upgradeToolCallSQL = `UPDATE tool_calls SET
		status = ?, end_ts = ?, duration_ms = ?, exit_code = ?, error = ?,
		stdout_bytes = ?, stderr_bytes = ?, tool_name = ?, command = ?
	WHERE dedup_key = ? AND status = 'unknown' AND ? <> 'unknown'`

// A desktop record re-read with more continuation lines replaces the shorter
// text stored before.
const extendDesktopEventSQL = `UPDATE desktop_log_events SET message = ?, payload_text = ?
	WHERE dedup_key = ? AND length(message) + coalesce(length(payload_text), 0) < ?`
