package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vanpelt/codexlens/internal/models"
)

// WorktreeState is the latest recorded action for one worktree path
type WorktreeState struct {
	Path   string
	Action string
	Ts     int64
}

// LatestWorktreeStates returns the most recent event per worktree path
func (s *Store) LatestWorktreeStates(ctx context.Context) ([]WorktreeState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worktree_path, action, ts FROM (
			SELECT worktree_path, action, ts,
				ROW_NUMBER() OVER (PARTITION BY worktree_path ORDER BY ts DESC, rowid DESC) AS rn
			FROM worktree_events
			WHERE worktree_path IS NOT NULL AND worktree_path <> ''
		) WHERE rn = 1
		ORDER BY worktree_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WorktreeState
	for rows.Next() {
		var st WorktreeState
		if err := rows.Scan(&st.Path, &st.Action, &st.Ts); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LastModel returns the model of the session's latest model call
func (s *Store) LastModel(ctx context.Context, sessionID string) (string, error) {
	var model string
	err := s.db.QueryRowContext(ctx, `
		SELECT model FROM model_calls
		WHERE session_id = ? AND model <> ''
		ORDER BY ts DESC, rowid DESC LIMIT 1`, sessionID).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return model, err
}

// PendingToolCalls returns calls from sourceFile still waiting for an end,
// started at or after sinceTs, oldest first
func (s *Store) PendingToolCalls(ctx context.Context, sourceFile string, sinceTs int64) ([]models.ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, command, start_ts, source_file, source_line, correlation_key, dedup_key
		FROM tool_calls
		WHERE source_file = ? AND status = 'unknown' AND end_ts IS NULL AND start_ts >= ?
		ORDER BY start_ts, source_line`, sourceFile, sinceTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ToolCallRecord
	for rows.Next() {
		rec := models.ToolCallRecord{Status: models.ToolCallUnknown}
		if err := rows.Scan(&rec.ToolName, &rec.Command, &rec.StartTs, &rec.SourceFile,
			&rec.SourceLine, &rec.CorrelationKey, &rec.DedupKey); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ToolCall loads one tool call by dedup key
func (s *Store) ToolCall(ctx context.Context, dedupKey string) (*models.ToolCallRecord, error) {
	var rec models.ToolCallRecord
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT tool_name, command, status, start_ts, end_ts, duration_ms, exit_code, error,
			stdout_bytes, stderr_bytes, source_file, source_line, correlation_key, dedup_key
		FROM tool_calls WHERE dedup_key = ?`, dedupKey).Scan(
		&rec.ToolName, &rec.Command, &status, &rec.StartTs, &rec.EndTs, &rec.DurationMs,
		&rec.ExitCode, &rec.Error, &rec.StdoutBytes, &rec.StderrBytes, &rec.SourceFile,
		&rec.SourceLine, &rec.CorrelationKey, &rec.DedupKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = models.ToolCallStatus(status)
	return &rec, nil
}

// Counts returns the number of stored rows per record kind
func (s *Store) Counts(ctx context.Context) (map[models.Kind]int64, error) {
	out := make(map[models.Kind]int64, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tables[kind].name)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		out[kind] = n
	}
	return out, nil
}

// Keys returns every stored dedup key of one kind in key order
func (s *Store) Keys(ctx context.Context, kind models.Kind) ([]string, error) {
	tbl, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown record kind %q", kind)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT dedup_key FROM `+tbl.name+` ORDER BY dedup_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
