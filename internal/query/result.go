package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Result is a running projection. Its columns are exactly the requested
// fields, whatever tables the filter needed.
type Result struct {
	Title     string
	Analysis  models.Analysis
	Statement Statement
	cursor    *connection.Cursor
}

// Columns returns the projected field names
func (r *Result) Columns() []string {
	return append([]string(nil), r.Statement.Columns...)
}

// Cursor returns the underlying cursor for streaming reads
func (r *Result) Cursor() *connection.Cursor {
	return r.cursor
}

// Close releases the cursor. It is safe to call more than once.
func (r *Result) Close() error {
	return r.cursor.Close()
}

// Table is a fully read result, formatted for display
type Table struct {
	Title    string
	Columns  []string
	Rows     [][]string
	Duration time.Duration
	// Truncated is set when more rows were available than were read
	Truncated bool
}

// Collect reads up to limit rows, or every row when limit <= 0, and closes
// the result
func (r *Result) Collect(limit int) (Table, error) {
	start := time.Now()
	defer r.Close()

	t := Table{Title: r.Title, Columns: r.Columns()}
	for r.cursor.Next() {
		if limit > 0 && len(t.Rows) == limit {
			t.Truncated = true
			break
		}
		values, err := r.cursor.Values()
		if err != nil {
			return Table{}, err
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = FormatValue(v)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	if err := r.cursor.Err(); err != nil {
		return Table{}, err
	}
	t.Duration = time.Since(start)
	return t, nil
}

// FormatValue converts a database value to its display form
func FormatValue(val any) string {
	switch v := val.(type) {
	case map[string]any, []any:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(jsonBytes)
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
