package connection

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	conc "github.com/sourcegraph/conc/pool"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Execution describes a finished statement for history and metrics
type Execution struct {
	Schema    models.Schema
	SQL       string
	Owner     string
	StartedAt time.Time
	Duration  time.Duration
	Rows      int64
	Outcome   Outcome
	Err       error
}

// Recorder receives every finished statement
type Recorder interface {
	Record(exec Execution) error
}

// Gateway executes statements on per-schema pools and keeps a registry of the
// SELECT statements currently running
type Gateway struct {
	mu       sync.RWMutex
	pools    map[models.Schema]Pool
	running  map[uuid.UUID]*Statement
	recorder Recorder
	metrics  *Metrics
}

// NewGateway creates a gateway with no pools. Recorder and metrics may be nil.
func NewGateway(recorder Recorder, metrics *Metrics) *Gateway {
	return &Gateway{
		pools:    make(map[models.Schema]Pool),
		running:  make(map[uuid.UUID]*Statement),
		recorder: recorder,
		metrics:  metrics,
	}
}

// Open connects one pool per schema listed in params
func Open(ctx context.Context, params models.Parameters, recorder Recorder, metrics *Metrics) (*Gateway, error) {
	g := NewGateway(recorder, metrics)
	if _, ok := params.Schemas[string(models.SchemaMain)]; !ok {
		return nil, fmt.Errorf("no %s schema configured", models.SchemaMain)
	}

	names := make([]string, 0, len(params.Schemas))
	for name := range params.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		schema := models.Schema(name)
		var (
			pool Pool
			err  error
		)
		switch params.Driver {
		case "", "postgres":
			pool, err = NewPgPool(ctx, params, schema)
		case "sqlite":
			pool, err = OpenSQLite(ctx, params.Database(schema), int(params.MaxConns))
		default:
			err = fmt.Errorf("unsupported driver: %s", params.Driver)
		}
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("failed to connect schema %s: %w", schema, err)
		}
		g.Register(schema, pool)
	}

	return g, nil
}

// Register attaches a pool to a schema, replacing any previous one
func (g *Gateway) Register(schema models.Schema, pool Pool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.pools[schema]; ok && old != pool {
		old.Close()
	}
	g.pools[schema] = pool
}

// Dialect returns the dialect of a schema's pool
func (g *Gateway) Dialect(schema models.Schema) (Dialect, error) {
	pool, err := g.pool(schema)
	if err != nil {
		return Postgres, err
	}
	return pool.Dialect(), nil
}

// Ping checks every pool concurrently
func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p := conc.New().WithErrors().WithContext(ctx)
	for schema, conn := range g.pools {
		p.Go(func(ctx context.Context) error {
			if err := conn.Ping(ctx); err != nil {
				return fmt.Errorf("failed to ping schema %s: %w", schema, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// Close cancels running statements and closes every pool
func (g *Gateway) Close() {
	g.CancelAll()

	g.mu.Lock()
	defer g.mu.Unlock()

	for schema, pool := range g.pools {
		pool.Close()
		delete(g.pools, schema)
	}
}

// Execute runs a SELECT and returns a cursor over its rows. The statement
// stays registered, and cancellable, until the cursor is closed.
func (g *Gateway) Execute(ctx context.Context, schema models.Schema, sql string, args ...any) (*Cursor, error) {
	pool, err := g.pool(schema)
	if err != nil {
		return nil, err
	}

	stmtCtx, cancel := context.WithCancel(ctx)
	st := newStatement(schema, sql, OwnerFrom(ctx), cancel)
	g.track(st)

	rows, err := pool.Query(stmtCtx, sql, args...)
	if err != nil {
		err = classify(st, err)
		st.settle(Completed)
		g.finish(st, 0, err)
		return nil, err
	}

	return &Cursor{rows: rows, stmt: st, gw: g}, nil
}

// Select runs a SELECT and hands the cursor to fn. The cursor is closed when
// fn returns, whatever the outcome.
func (g *Gateway) Select(ctx context.Context, schema models.Schema, sql string, args []any, fn func(*Cursor) error) (err error) {
	cur, err := g.Execute(ctx, schema, sql, args...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cur.Close(); err == nil {
			err = cerr
		}
	}()

	if err := fn(cur); err != nil {
		if cur.Statement().Cancelled() {
			return &CancelledError{SQL: sql}
		}
		return err
	}
	return cur.Err()
}

// Exec runs a statement that returns no rows. Writes are not registered as
// running statements.
func (g *Gateway) Exec(ctx context.Context, schema models.Schema, sql string, args ...any) (int64, error) {
	pool, err := g.pool(schema)
	if err != nil {
		return 0, err
	}
	n, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, &QueryExecutionError{Schema: schema, SQL: sql, Err: err}
	}
	return n, nil
}

// Running lists the statements currently executing, oldest first
func (g *Gateway) Running() []StatementInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]StatementInfo, 0, len(g.running))
	for _, st := range g.running {
		infos = append(infos, st.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Cancel stops a running statement. Cancelling a statement that already
// finished, or is unknown, does nothing and returns false.
func (g *Gateway) Cancel(id uuid.UUID) bool {
	g.mu.RLock()
	st, ok := g.running[id]
	g.mu.RUnlock()
	if !ok {
		return false
	}
	return cancelStatement(st)
}

// CancelOwner stops every running statement tagged with owner
func (g *Gateway) CancelOwner(owner string) int {
	return g.cancelWhere(func(st *Statement) bool { return st.Owner == owner })
}

// CancelAll stops every running statement
func (g *Gateway) CancelAll() int {
	return g.cancelWhere(func(*Statement) bool { return true })
}

func (g *Gateway) cancelWhere(match func(*Statement) bool) int {
	g.mu.RLock()
	var targets []*Statement
	for _, st := range g.running {
		if match(st) {
			targets = append(targets, st)
		}
	}
	g.mu.RUnlock()

	n := 0
	for _, st := range targets {
		if cancelStatement(st) {
			n++
		}
	}
	return n
}

func cancelStatement(st *Statement) bool {
	if !st.settle(Cancelled) {
		return false
	}
	st.cancel()
	return true
}

func (g *Gateway) pool(schema models.Schema) (Pool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pool, ok := g.pools[schema]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, schema)
	}
	return pool, nil
}

func (g *Gateway) track(st *Statement) {
	g.mu.Lock()
	g.running[st.ID] = st
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.started()
	}
}

// finish removes a statement from the registry and reports it
func (g *Gateway) finish(st *Statement, rows int64, err error) {
	g.mu.Lock()
	delete(g.running, st.ID)
	g.mu.Unlock()
	st.cancel()

	exec := Execution{
		Schema:    st.Schema,
		SQL:       st.SQL,
		Owner:     st.Owner,
		StartedAt: st.StartedAt,
		Duration:  time.Since(st.StartedAt),
		Rows:      rows,
		Outcome:   st.Outcome(),
		Err:       err,
	}

	if g.metrics != nil {
		g.metrics.finished(exec)
	}
	if g.recorder != nil {
		if rerr := g.recorder.Record(exec); rerr != nil {
			log.Printf("Warning: failed to record statement history: %v", rerr)
		}
	}
}
