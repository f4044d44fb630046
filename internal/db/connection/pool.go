package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Dialect selects the SQL flavour a pool speaks
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// Placeholder returns the squirrel placeholder format of the dialect
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	if d == SQLite {
		return sq.Question
	}
	return sq.Dollar
}

// Rows is a forward-only result set produced by a Pool
type Rows interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Pool runs statements against one logical schema. Acquiring a connection
// blocks while the pool is exhausted.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Ping(ctx context.Context) error
	Dialect() Dialect
	Close()
}

// PgPool wraps pgxpool with our configuration
type PgPool struct {
	pool   *pgxpool.Pool
	schema models.Schema
}

// NewPgPool creates a new connection pool for one schema
func NewPgPool(ctx context.Context, params models.Parameters, schema models.Schema) (*PgPool, error) {
	connString := buildConnectionString(params, schema)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = 5
	if params.MaxConns > 0 {
		poolConfig.MaxConns = params.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	if params.Compression {
		log.Printf("Warning: transport compression requested for schema %s but not supported by the postgres driver", schema)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PgPool{
		pool:   pool,
		schema: schema,
	}, nil
}

// Close closes the connection pool
func (p *PgPool) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping tests the connection
func (p *PgPool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Dialect reports the placeholder style of the pool
func (p *PgPool) Dialect() Dialect {
	return Postgres
}

// Query executes a query and returns its rows
func (p *PgPool) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgRows{rows: rows}, nil
}

// Exec executes a statement without returning rows (INSERT, UPDATE, DELETE, CREATE, etc.)
func (p *PgPool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	result, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

type pgRows struct {
	rows    pgx.Rows
	columns []string
}

func (r *pgRows) Columns() []string {
	if r.columns == nil {
		fieldDescriptions := r.rows.FieldDescriptions()
		r.columns = make([]string, len(fieldDescriptions))
		for i, fd := range fieldDescriptions {
			r.columns[i] = fd.Name
		}
	}
	return r.columns
}

func (r *pgRows) Next() bool             { return r.rows.Next() }
func (r *pgRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgRows) Err() error             { return r.rows.Err() }
func (r *pgRows) Close()                 { r.rows.Close() }

// buildConnectionString creates a PostgreSQL connection string
func buildConnectionString(params models.Parameters, schema models.Schema) string {
	sslMode := params.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	port := params.Port
	if port == 0 {
		port = 5432
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s database=%s sslmode=%s application_name=lazyvar",
		params.Host,
		port,
		params.User,
		params.Database(schema),
		sslMode,
	)

	if params.Password != "" {
		connStr += fmt.Sprintf(" password=%s", params.Password)
	}

	return connStr
}
