// Package history keeps a local log of every statement sent to the warehouse.
package history

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

// Entry is one recorded statement
type Entry struct {
	ID        int
	Schema    models.Schema
	Owner     string
	SQL       string
	StartedAt time.Time
	Duration  time.Duration
	Rows      int64
	Outcome   string
	Error     string
}

// Failed reports whether the statement ended with an error
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Store persists statement history in a sqlite file
type Store struct {
	db *sql.DB
}

// NewStore opens the history file at path, creating it if needed
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores a finished statement. It satisfies connection.Recorder.
func (s *Store) Record(exec connection.Execution) error {
	var msg string
	if exec.Err != nil {
		msg = exec.Err.Error()
	}
	_, err := s.db.Exec(`
		INSERT INTO statement_history
		(schema_name, owner, statement, started_at, duration_ms, row_count, outcome, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(exec.Schema),
		exec.Owner,
		exec.SQL,
		exec.StartedAt.UTC().Format(timeLayout),
		exec.Duration.Milliseconds(),
		exec.Rows,
		exec.Outcome.String(),
		msg,
	)
	return err
}

// Recent returns the latest entries, newest first
func (s *Store) Recent(limit int) ([]Entry, error) {
	return s.query(`
		SELECT id, schema_name, owner, statement, started_at,
		       duration_ms, row_count, outcome, error_message
		FROM statement_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
}

// Search returns entries whose statement text contains text, newest first
func (s *Store) Search(text string, limit int) ([]Entry, error) {
	return s.query(`
		SELECT id, schema_name, owner, statement, started_at,
		       duration_ms, row_count, outcome, error_message
		FROM statement_history
		WHERE statement LIKE ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, "%"+text+"%", limit)
}

// Prune deletes entries started before cutoff
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM statement_history WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) query(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			schema     string
			startedAt  string
			durationMs int64
		)
		err := rows.Scan(
			&e.ID,
			&schema,
			&e.Owner,
			&e.SQL,
			&startedAt,
			&durationMs,
			&e.Rows,
			&e.Outcome,
			&e.Error,
		)
		if err != nil {
			return nil, err
		}

		e.Schema = models.Schema(schema)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.StartedAt, _ = time.Parse(timeLayout, startedAt)

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
