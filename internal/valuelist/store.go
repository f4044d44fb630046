package valuelist

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Querier is the part of the gateway the store reads through
type Querier interface {
	Select(ctx context.Context, schema models.Schema, sql string, args []any, fn func(*connection.Cursor) error) error
	Dialect(schema models.Schema) (connection.Dialect, error)
}

// SQLStore reads lists from the user_value_lists table of a schema
type SQLStore struct {
	q      Querier
	schema models.Schema
}

// NewSQLStore creates a store over the given schema, usually SchemaUsers
func NewSQLStore(q Querier, schema models.Schema) *SQLStore {
	return &SQLStore{q: q, schema: schema}
}

// Values returns the values of a list in insertion order
func (s *SQLStore) Values(ctx context.Context, ref models.ValueListReference) ([]string, error) {
	dialect, err := s.q.Dialect(s.schema)
	if err != nil {
		return nil, err
	}
	query, args, err := sq.Select("value").
		From("user_value_lists").
		Where(sq.Eq{"owner": ref.Owner, "name": ref.Name}).
		PlaceholderFormat(dialect.Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build value list query: %w", err)
	}

	var values []string
	err = s.q.Select(ctx, s.schema, query, args, func(c *connection.Cursor) error {
		for c.Next() {
			row, err := c.Values()
			if err != nil {
				return err
			}
			if row[0] != nil {
				values = append(values, fmt.Sprint(row[0]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// MemoryStore keeps lists in memory. It backs offline sessions and tests.
type MemoryStore map[models.ValueListReference][]string

// Values returns a copy of the stored values
func (m MemoryStore) Values(_ context.Context, ref models.ValueListReference) ([]string, error) {
	return append([]string(nil), m[ref]...), nil
}
