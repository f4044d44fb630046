package query

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Executor is the part of the gateway the engine runs statements through
type Executor interface {
	Execute(ctx context.Context, schema models.Schema, sql string, args ...any) (*connection.Cursor, error)
	Select(ctx context.Context, schema models.Schema, sql string, args []any, fn func(*connection.Cursor) error) error
	Dialect(schema models.Schema) (connection.Dialect, error)
}

// Engine runs the four query shapes of a tree against the variant schema
type Engine struct {
	exec     Executor
	compiler *Compiler
	schema   models.Schema
}

// NewEngine creates an engine querying SchemaMain
func NewEngine(exec Executor, compiler *Compiler) *Engine {
	return &Engine{exec: exec, compiler: compiler, schema: models.SchemaMain}
}

// Compile builds a statement in the dialect of the variant schema
func (e *Engine) Compile(ctx context.Context, req Request) (Statement, error) {
	dialect, err := e.exec.Dialect(e.schema)
	if err != nil {
		return Statement{}, err
	}
	return e.compiler.Compile(ctx, req, dialect)
}

// AllSamples returns the samples carrying at least one match, sorted
func (e *Engine) AllSamples(ctx context.Context, a models.Analysis, tree filter.Tree) ([]string, error) {
	stmt, err := e.Compile(ctx, Request{Analysis: a, Tree: tree, Shape: SampleNames})
	if err != nil {
		return nil, err
	}
	var samples []string
	err = e.exec.Select(ctx, e.schema, stmt.SQL, stmt.Args, func(c *connection.Cursor) error {
		for c.Next() {
			values, err := c.Values()
			if err != nil {
				return err
			}
			if values[0] != nil {
				samples = append(samples, FormatValue(values[0]))
			}
		}
		return c.Err()
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// ResultIDs returns the identifiers of the matching variant rows, in
// ascending order
func (e *Engine) ResultIDs(ctx context.Context, a models.Analysis, tree filter.Tree, samples []string) ([]int64, error) {
	stmt, err := e.Compile(ctx, Request{Analysis: a, Tree: tree, Shape: IDs, Samples: samples})
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = e.exec.Select(ctx, e.schema, stmt.SQL, stmt.Args, func(c *connection.Cursor) error {
		for c.Next() {
			values, err := c.Values()
			if err != nil {
				return err
			}
			id, err := toInt64(values[0])
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return c.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RetrieveCount returns the number of matching variant rows
func (e *Engine) RetrieveCount(ctx context.Context, a models.Analysis, tree filter.Tree, samples []string) (int64, error) {
	stmt, err := e.Compile(ctx, Request{Analysis: a, Tree: tree, Shape: Count, Samples: samples})
	if err != nil {
		return 0, err
	}
	var count int64
	err = e.exec.Select(ctx, e.schema, stmt.SQL, stmt.Args, func(c *connection.Cursor) error {
		if !c.Next() {
			if err := c.Err(); err != nil {
				return err
			}
			return fmt.Errorf("count query returned no row")
		}
		values, err := c.Values()
		if err != nil {
			return err
		}
		count, err = toInt64(values[0])
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// RetrieveData starts the projection of fields over the matching rows. The
// caller owns the returned result and must close it.
func (e *Engine) RetrieveData(ctx context.Context, a models.Analysis, tree filter.Tree, fields []*models.Field, samples []string, title string) (*Result, error) {
	stmt, err := e.Compile(ctx, Request{Analysis: a, Tree: tree, Shape: Projection, Fields: fields, Samples: samples})
	if err != nil {
		return nil, err
	}
	cursor, err := e.exec.Execute(ctx, e.schema, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	return &Result{Title: title, Analysis: a, Statement: stmt, cursor: cursor}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected integer value %v (%T)", v, v)
	}
}
