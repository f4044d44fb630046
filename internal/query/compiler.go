// Package query compiles filter trees into SQL statements and runs them
// through the gateway.
package query

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/valuelist"
)

// ErrNoFields is returned when a projection asks for no column
var ErrNoFields = errors.New("no field requested")

// Shape selects what a statement returns. Every shape shares the same
// FROM, JOIN and WHERE clauses.
type Shape int

const (
	// Count returns one row holding the number of matching variant rows
	Count Shape = iota
	// SampleNames returns the distinct samples carrying a match
	SampleNames
	// IDs returns the variant-sample identifier of every match
	IDs
	// Projection returns the requested fields of every match
	Projection
)

func (s Shape) String() string {
	switch s {
	case Count:
		return "count"
	case SampleNames:
		return "samples"
	case IDs:
		return "ids"
	case Projection:
		return "projection"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Request describes one statement to compile
type Request struct {
	Analysis models.Analysis
	Tree     filter.Tree
	Shape    Shape
	// Fields is only read for Projection
	Fields []*models.Field
	// Samples restricts matches to these samples. Nil or empty means no
	// restriction.
	Samples []string
}

// Statement is a compiled query ready for the gateway
type Statement struct {
	SQL     string
	Args    []any
	Shape   Shape
	Columns []string
}

// Compiler turns requests into statements. It is safe for concurrent use.
type Compiler struct {
	fields   filter.FieldSource
	resolver *valuelist.Resolver
}

// NewCompiler creates a compiler resolving well-known fields through fields
// and value lists through resolver
func NewCompiler(fields filter.FieldSource, resolver *valuelist.Resolver) *Compiler {
	return &Compiler{fields: fields, resolver: resolver}
}

// Compile checks the request and builds its SQL. Checks run in this order:
// field compatibility, stale lists, projection fields. Each referenced list
// is read once.
func (c *Compiler) Compile(ctx context.Context, req Request, dialect connection.Dialect) (Statement, error) {
	a := req.Analysis
	if a.IsZero() {
		return Statement{}, fmt.Errorf("no analysis selected")
	}
	if incompatible := filter.NewIncompatibleFieldError("filter", req.Tree, a); incompatible != nil {
		return Statement{}, incompatible
	}

	lists, stale, err := c.resolver.Collect(ctx, req.Tree.References())
	if err != nil {
		return Statement{}, err
	}
	if len(stale) > 0 {
		return Statement{}, &valuelist.StaleListError{Ref: stale[0]}
	}

	if req.Shape == Projection {
		if err := checkProjection(req.Fields, a); err != nil {
			return Statement{}, err
		}
	}

	frag, err := filter.Compile(req.Tree, a, lists)
	if err != nil {
		return Statement{}, err
	}

	return c.build(req, frag, dialect)
}

func checkProjection(fields []*models.Field, a models.Analysis) error {
	if len(fields) == 0 {
		return ErrNoFields
	}
	e := &filter.IncompatibleFieldError{Analysis: a, Artifact: "projection"}
	for _, f := range fields {
		if !f.HasAnalysis(a) {
			e.Fields = append(e.Fields, f.Name)
		}
	}
	if len(e.Fields) > 0 {
		return e
	}
	return nil
}

func (c *Compiler) build(req Request, frag filter.Fragment, dialect connection.Dialect) (Statement, error) {
	a := req.Analysis
	families := make(map[models.TableFamily]bool)
	for _, f := range frag.Families {
		families[f] = true
	}

	sample := c.wellKnown(models.FieldSample, models.FamilyProjects)
	id := c.wellKnown(models.FieldVariantSampleID, models.FamilySampleAnnotations)

	var (
		sb      sq.SelectBuilder
		columns []string
	)
	switch req.Shape {
	case Count:
		sb = sq.Select("COUNT(*) AS " + pgx.Identifier{"count"}.Sanitize())
		columns = []string{"count"}
	case SampleNames:
		families[sample.Family] = true
		sb = sq.Select(sample.SelectExpression(a)).Distinct().OrderBy(sample.WhereExpression(a))
		columns = []string{sample.Name}
	case IDs:
		families[id.Family] = true
		sb = sq.Select(id.SelectExpression(a)).OrderBy(id.WhereExpression(a))
		columns = []string{id.Name}
	case Projection:
		exprs := make([]string, len(req.Fields))
		columns = make([]string, len(req.Fields))
		for i, f := range req.Fields {
			families[f.Family] = true
			exprs[i] = f.SelectExpression(a)
			columns[i] = f.Name
		}
		families[id.Family] = true
		sb = sq.Select(exprs...).OrderBy(id.WhereExpression(a))
	default:
		return Statement{}, fmt.Errorf("unsupported shape: %s", req.Shape)
	}

	var where sq.And
	if frag.Where != nil {
		where = append(where, frag.Where)
	}
	if len(req.Samples) > 0 {
		families[sample.Family] = true
		where = append(where, sq.Eq{sample.WhereExpression(a): req.Samples})
	}

	sb = sb.From(pgx.Identifier{a.Table(models.FamilySampleAnnotations)}.Sanitize())
	for _, f := range filter.OrderFamilies(families) {
		if f.IsBase() {
			continue
		}
		sb = sb.JoinClause(filter.JoinClause(a, f))
	}
	if len(where) > 0 {
		sb = sb.Where(where)
	}

	sql, args, err := sb.PlaceholderFormat(dialect.Placeholder()).ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("failed to build %s query: %w", req.Shape, err)
	}
	return Statement{SQL: sql, Args: args, Shape: req.Shape, Columns: columns}, nil
}

// wellKnown resolves a structural field, falling back to its usual location
// when the catalog does not list it
func (c *Compiler) wellKnown(name string, family models.TableFamily) *models.Field {
	if c.fields != nil {
		if f, err := c.fields.Resolve(name); err == nil {
			return f
		}
	}
	return models.NewField(name, family, "TEXT")
}
