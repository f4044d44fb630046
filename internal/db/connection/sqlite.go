package connection

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLitePool serves a local warehouse file through database/sql
type SQLitePool struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a sqlite database file
func OpenSQLite(ctx context.Context, path string, maxConns int) (*SQLitePool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	return &SQLitePool{db: db}, nil
}

// Close closes the database
func (p *SQLitePool) Close() {
	if p.db != nil {
		_ = p.db.Close()
	}
}

// Ping tests the database
func (p *SQLitePool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Dialect reports the placeholder style of the pool
func (p *SQLitePool) Dialect() Dialect {
	return SQLite
}

// Query executes a query and returns its rows
func (p *SQLitePool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &sqlRows{rows: rows, columns: columns}, nil
}

// Exec executes a statement without returning rows
func (p *SQLitePool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type sqlRows struct {
	rows    *sql.Rows
	columns []string
}

func (r *sqlRows) Columns() []string { return r.columns }
func (r *sqlRows) Next() bool        { return r.rows.Next() }
func (r *sqlRows) Err() error        { return r.rows.Err() }
func (r *sqlRows) Close()            { _ = r.rows.Close() }

func (r *sqlRows) Values() ([]any, error) {
	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		// text columns come back as []byte from some sqlite paths
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}
