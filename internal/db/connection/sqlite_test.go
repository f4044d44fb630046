package connection

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLitePoolThroughGateway(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.db")

	g, err := Open(ctx, models.Parameters{
		Driver:  "sqlite",
		Schemas: map[string]string{"main": path},
	}, nil, nil)
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.Ping(ctx))
	dialect, err := g.Dialect(models.SchemaMain)
	require.NoError(t, err)
	assert.Equal(t, SQLite, dialect)

	_, err = g.Exec(ctx, models.SchemaMain, `CREATE TABLE genes (symbol TEXT, score REAL, chr INTEGER)`)
	require.NoError(t, err)
	n, err := g.Exec(ctx, models.SchemaMain, `INSERT INTO genes VALUES (?, ?, ?), (?, ?, ?)`,
		"BRCA1", 0.5, 17, "TP53", nil, 17)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var rows [][]any
	err = g.Select(ctx, models.SchemaMain, `SELECT symbol, score, chr FROM genes ORDER BY symbol`, nil, func(c *Cursor) error {
		assert.Equal(t, []string{"symbol", "score", "chr"}, c.Columns())
		for c.Next() {
			values, err := c.Values()
			if err != nil {
				return err
			}
			rows = append(rows, values)
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"BRCA1", 0.5, int64(17)}, rows[0])
	assert.Equal(t, []any{"TP53", nil, int64(17)}, rows[1])
}

func TestSQLiteSyntaxErrorIsQueryExecutionError(t *testing.T) {
	ctx := context.Background()
	pool, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "w.db"), 1)
	require.NoError(t, err)

	g := NewGateway(nil, nil)
	g.Register(models.SchemaMain, pool)
	defer g.Close()

	err = g.Select(ctx, models.SchemaMain, `SELECT * FROM nowhere`, nil, func(c *Cursor) error { return nil })
	var qe *QueryExecutionError
	require.ErrorAs(t, err, &qe)
	assert.False(t, IsCancelled(err))
	assert.Empty(t, g.Running())
}

func TestBuildConnectionString(t *testing.T) {
	params := models.Parameters{
		Host:     "db.example.org",
		User:     "viewer",
		Password: "secret",
		Schemas:  map[string]string{"main": "highlander", "users": "highlander_users"},
	}

	got := buildConnectionString(params, models.SchemaUsers)
	want := "host=db.example.org port=5432 user=viewer database=highlander_users sslmode=prefer application_name=lazyvar password=secret"
	if got != want {
		t.Errorf("buildConnectionString() = %q, want %q", got, want)
	}

	got = buildConnectionString(params, models.Schema("reference"))
	if want := "database=highlander "; !strings.Contains(got, want) {
		t.Errorf("unknown schema should fall back to main database, got %q", got)
	}
}

