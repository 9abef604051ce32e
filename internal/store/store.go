// Package store implements the durable tabular store over SQLite.
//
// The store exclusively owns the five persisted tables (entities, relations,
// summaries, vectors, access_log) plus the sessions table. Writes are visible
// in-memory immediately; durability follows the debounced flush: every write
// schedules a WAL checkpoint ~500ms out, and further writes within the window
// push it back. Close cancels the timer and flushes synchronously.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/latentcontext/latentcontext/internal/jsonx"
)

const flushDelay = 500 * time.Millisecond

// timeFormat is ISO-8601 UTC with millisecond precision, as persisted.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Store provides typed CRUD over the persisted tables.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	flushMu    sync.Mutex
	flushTimer *time.Timer
	closed     bool
}

// Open locates or creates the data directory, opens the database, applies the
// idempotent schema and flushes once. Failure here is fatal to the engine.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(off)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{db: db, logger: logger.Named("store")}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.Flush()

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id                TEXT PRIMARY KEY,
		label             TEXT NOT NULL,
		entity_type       TEXT NOT NULL DEFAULT 'unknown',
		properties        TEXT NOT NULL DEFAULT '{}',
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		confidence        REAL NOT NULL DEFAULT 1.0,
		source_summary_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entities_label ON entities(label);
	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);

	CREATE TABLE IF NOT EXISTS relations (
		id                TEXT PRIMARY KEY,
		subject_id        TEXT NOT NULL,
		predicate         TEXT NOT NULL,
		object_id         TEXT NOT NULL,
		properties        TEXT NOT NULL DEFAULT '{}',
		temporal_start    TEXT,
		temporal_end      TEXT,
		confidence        REAL NOT NULL DEFAULT 1.0,
		source_summary_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_relations_subject ON relations(subject_id);
	CREATE INDEX IF NOT EXISTS idx_relations_object ON relations(object_id);
	CREATE INDEX IF NOT EXISTS idx_relations_predicate ON relations(predicate);

	CREATE TABLE IF NOT EXISTS summaries (
		id          TEXT PRIMARY KEY,
		tier        INTEGER NOT NULL DEFAULT 0,
		content     TEXT NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		session_id  TEXT,
		source_ids  TEXT NOT NULL DEFAULT '[]',
		metadata    TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_tier ON summaries(tier);
	CREATE INDEX IF NOT EXISTS idx_summaries_session ON summaries(session_id);

	CREATE TABLE IF NOT EXISTS vectors (
		id              TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL,
		source_type     TEXT NOT NULL DEFAULT 'raw',
		content_preview TEXT NOT NULL DEFAULT '',
		embedding       BLOB,
		dimensions      INTEGER NOT NULL DEFAULT 384,
		metadata        TEXT NOT NULL DEFAULT '{}',
		created_at      TEXT NOT NULL,
		confidence      REAL NOT NULL DEFAULT 1.0
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_source ON vectors(source_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_type ON vectors(source_type);

	CREATE TABLE IF NOT EXISTS access_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id   TEXT NOT NULL,
		memory_type TEXT NOT NULL,
		accessed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_access_memory ON access_log(memory_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		ended_at   TEXT,
		metadata   TEXT NOT NULL DEFAULT '{}'
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return err
	}

	// Columns added after the first release; errors mean "already exists"
	s.db.Exec(`ALTER TABLE entities ADD COLUMN source_summary_id TEXT`)
	s.db.Exec(`ALTER TABLE relations ADD COLUMN source_summary_id TEXT`)

	return nil
}

// scheduleFlush arms or extends the trailing-edge flush window.
func (s *Store) scheduleFlush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if s.closed {
		return
	}
	if s.flushTimer != nil {
		s.flushTimer.Reset(flushDelay)
		return
	}
	s.flushTimer = time.AfterFunc(flushDelay, s.Flush)
}

// Flush checkpoints the WAL synchronously. I/O errors are logged and
// swallowed; writes continue in-memory.
func (s *Store) Flush() {
	if _, err := s.db.Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		s.logger.Warn("flush failed", zap.Error(err))
	}
}

// Close cancels the pending flush, flushes synchronously and releases the
// database handle.
func (s *Store) Close() error {
	s.flushMu.Lock()
	s.closed = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.flushMu.Unlock()

	s.Flush()
	return s.db.Close()
}

// FormatTime renders a timestamp in the persisted ISO-8601 UTC form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// ParseTime reads a persisted timestamp, tolerating RFC3339 variants.
func ParseTime(s string) time.Time {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalJSON(v interface{}, empty string) string {
	out, err := jsonx.MarshalToString(v)
	if err != nil || out == "null" {
		return empty
	}
	return out
}

func unmarshalProps(s string) map[string]interface{} {
	if s == "" || s == "{}" {
		return nil
	}
	var m map[string]interface{}
	if err := jsonx.UnmarshalFromString(s, &m); err != nil {
		return nil
	}
	return m
}

func unmarshalIDs(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var ids []string
	if err := jsonx.UnmarshalFromString(s, &ids); err != nil {
		return nil
	}
	return ids
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := ParseTime(ns.String)
	return &t
}

// execWrite runs a mutation and schedules the debounced flush.
func (s *Store) execWrite(ctx context.Context, query string, args ...interface{}) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	s.scheduleFlush()
	return nil
}
