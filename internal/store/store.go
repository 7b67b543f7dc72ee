// Package store persists ingested records and per-file watermarks in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/vanpelt/codexlens/internal/models"
)

// ErrNotFound is returned by lookups that match no row
var ErrNotFound = errors.New("not found")

// Outcome is the effect of writing one record
type Outcome int

const (
	Skipped Outcome = iota // dedup key already present, nothing changed
	Inserted
	Updated // existing row upgraded in place
)

// Store is the SQLite storage adapter. It owns its prepared statements.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	s := &Store{db: db, stmts: make(map[string]*sql.Stmt)}
	if err := s.warm(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

// warm prepares the write statements up front. The pool has a single
// connection, so nothing can be prepared on the DB while a transaction holds it.
func (s *Store) warm(ctx context.Context) error {
	queries := []string{upgradeToolCallSQL, extendDesktopEventSQL}
	for _, kind := range models.AllKinds {
		queries = append(queries, tables[kind].insertSQL())
	}
	for _, q := range queries {
		if _, err := s.prepare(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Close releases prepared statements and the database
func (s *Store) Close() error {
	s.mu.Lock()
	for _, stmt := range s.stmts {
		stmt.Close()
	}
	s.stmts = map[string]*sql.Stmt{}
	s.mu.Unlock()
	return s.db.Close()
}

// prepare returns the cached statement for query
func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	s.stmts[query] = stmt
	return stmt, nil
}

func (s *Store) cached(query string) (*sql.Stmt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt, ok := s.stmts[query]
	return stmt, ok
}

// Tx groups writes into one all-or-nothing transaction. A failed row does not
// poison the transaction: SQLite rolls back only the failing statement.
type Tx struct {
	store *Store
	tx    *sql.Tx
}

// Begin starts a write transaction
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{store: s, tx: tx}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var res sql.Result
	var err error
	if stmt, ok := t.store.cached(query); ok {
		res, err = t.tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	} else {
		res, err = t.tx.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Write inserts rec unless its dedup key is already stored. For an existing
// tool call or desktop event, Write may upgrade the stored row instead.
func (t *Tx) Write(ctx context.Context, rec models.Record) (Outcome, error) {
	tbl, ok := tables[rec.Kind()]
	if !ok {
		return Skipped, fmt.Errorf("unknown record kind %q", rec.Kind())
	}

	n, err := t.exec(ctx, tbl.insertSQL(), tbl.values(rec)...)
	if err != nil {
		return Skipped, fmt.Errorf("insert %s %s: %w", rec.Kind(), rec.Key(), err)
	}
	if n > 0 {
		return Inserted, nil
	}

	switch r := rec.(type) {
	case *models.ToolCallRecord:
		n, err = t.exec(ctx, upgradeToolCallSQL,
			string(r.Status), r.EndTs, r.DurationMs, r.ExitCode, r.Error,
			r.StdoutBytes, r.StderrBytes, r.ToolName, r.Command,
			r.DedupKey, string(r.Status))
	case *models.DesktopLogEvent:
		size := utf8.RuneCountInString(r.Message)
		if r.PayloadText != nil {
			size += utf8.RuneCountInString(*r.PayloadText)
		}
		n, err = t.exec(ctx, extendDesktopEventSQL, r.Message, r.PayloadText, r.DedupKey, size)
	default:
		return Skipped, nil
	}
	if err != nil {
		return Skipped, fmt.Errorf("update %s %s: %w", rec.Kind(), rec.Key(), err)
	}
	if n > 0 {
		return Updated, nil
	}
	return Skipped, nil
}

// InsertIfAbsent writes one record in its own transaction and reports whether
// a new row was created
func (s *Store) InsertIfAbsent(ctx context.Context, rec models.Record) (bool, error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return false, err
	}
	outcome, err := tx.Write(ctx, rec)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return outcome == Inserted, nil
}

// GetWatermark returns the cursor for path, or ErrNotFound
func (s *Store) GetWatermark(ctx context.Context, path string) (*models.Watermark, error) {
	stmt, err := s.prepare(ctx, `SELECT path, byte_offset, mtime_ms, updated_at FROM watermarks WHERE path = ?`)
	if err != nil {
		return nil, err
	}
	wm, err := scanWatermark(stmt.QueryRowContext(ctx, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return wm, nil
}

// SetWatermark creates or overwrites the cursor for path
func (s *Store) SetWatermark(ctx context.Context, path string, byteOffset, mtimeMs int64) error {
	stmt, err := s.prepare(ctx, `INSERT INTO watermarks (path, byte_offset, mtime_ms, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			byte_offset = excluded.byte_offset,
			mtime_ms = excluded.mtime_ms,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, path, byteOffset, mtimeMs, time.Now().UnixMilli())
	return err
}

// DeleteWatermark forgets the cursor for path
func (s *Store) DeleteWatermark(ctx context.Context, path string) error {
	stmt, err := s.prepare(ctx, `DELETE FROM watermarks WHERE path = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, path)
	return err
}

// ListWatermarks returns every cursor ordered by path
func (s *Store) ListWatermarks(ctx context.Context) ([]models.Watermark, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, byte_offset, mtime_ms, updated_at FROM watermarks ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Watermark
	for rows.Next() {
		wm, err := scanWatermark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *wm)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWatermark(row scanner) (*models.Watermark, error) {
	var wm models.Watermark
	var updated int64
	if err := row.Scan(&wm.Path, &wm.ByteOffset, &wm.MtimeMs, &updated); err != nil {
		return nil, err
	}
	wm.UpdatedAt = time.UnixMilli(updated).UTC()
	return &wm, nil
}
