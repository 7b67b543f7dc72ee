package store

// schema is applied on every Open; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		started_at     INTEGER NOT NULL,
		cwd            TEXT,
		project        TEXT,
		originator     TEXT,
		cli_version    TEXT,
		git_branch     TEXT,
		git_commit     TEXT,
		repository_url TEXT,
		source_file    TEXT NOT NULL,
		line_number    INTEGER NOT NULL,
		dedup_key      TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		role          TEXT NOT NULL,
		ts            INTEGER NOT NULL,
		content_chars INTEGER NOT NULL,
		content       TEXT,
		source_file   TEXT NOT NULL,
		line_number   INTEGER NOT NULL,
		dedup_key     TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS model_calls (
		id                      TEXT PRIMARY KEY,
		session_id              TEXT NOT NULL,
		ts                      INTEGER NOT NULL,
		model                   TEXT NOT NULL,
		input_tokens            INTEGER NOT NULL,
		cached_input_tokens     INTEGER NOT NULL,
		output_tokens           INTEGER NOT NULL,
		reasoning_output_tokens INTEGER NOT NULL,
		total_tokens            INTEGER NOT NULL,
		source_file             TEXT NOT NULL,
		line_number             INTEGER NOT NULL,
		dedup_key               TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_model_calls_session ON model_calls (session_id, ts)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id              TEXT PRIMARY KEY,
		tool_name       TEXT NOT NULL,
		command         TEXT NOT NULL,
		status          TEXT NOT NULL CHECK (status IN ('ok', 'failed', 'unknown')),
		start_ts        INTEGER NOT NULL,
		end_ts          INTEGER,
		duration_ms     INTEGER,
		exit_code       INTEGER,
		error           TEXT,
		stdout_bytes    INTEGER,
		stderr_bytes    INTEGER,
		source_file     TEXT NOT NULL,
		source_line     INTEGER NOT NULL,
		correlation_key TEXT NOT NULL,
		dedup_key       TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_calls_pending ON tool_calls (source_file, status, start_ts)`,
	`CREATE TABLE IF NOT EXISTS desktop_log_events (
		id             TEXT PRIMARY KEY,
		ts             INTEGER NOT NULL,
		level          TEXT,
		component      TEXT,
		message        TEXT NOT NULL,
		payload_text   TEXT,
		app_session_id TEXT,
		process_id     INTEGER,
		thread_id      INTEGER,
		instance_id    INTEGER,
		segment_index  INTEGER,
		file_path      TEXT NOT NULL,
		line_number    INTEGER NOT NULL,
		dedup_key      TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS worktree_events (
		id            TEXT PRIMARY KEY,
		ts            INTEGER NOT NULL,
		action        TEXT NOT NULL,
		worktree_path TEXT,
		branch        TEXT,
		status        TEXT NOT NULL,
		error         TEXT,
		source_log_id TEXT,
		dedup_key     TEXT NOT NULL UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_worktree_events_path ON worktree_events (worktree_path, ts)`,
	`CREATE TABLE IF NOT EXISTS automation_events (
		id            TEXT PRIMARY KEY,
		ts            INTEGER NOT NULL,
		action        TEXT NOT NULL,
		automation_id TEXT,
		name          TEXT,
		status        TEXT NOT NULL,
		error         TEXT,
		source_log_id TEXT,
		dedup_key     TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		path        TEXT PRIMARY KEY,
		byte_offset INTEGER NOT NULL,
		mtime_ms    INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
}
