package query

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/fields"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/valuelist"
	"github.com/rebeliceyang/lazyvar/internal/warehousetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingExecutor counts the statements sent to the variant schema
type countingExecutor struct {
	*connection.Gateway
	calls atomic.Int32
}

func (c *countingExecutor) Execute(ctx context.Context, schema models.Schema, sql string, args ...any) (*connection.Cursor, error) {
	c.calls.Add(1)
	return c.Gateway.Execute(ctx, schema, sql, args...)
}

func (c *countingExecutor) Select(ctx context.Context, schema models.Schema, sql string, args []any, fn func(*connection.Cursor) error) error {
	c.calls.Add(1)
	return c.Gateway.Select(ctx, schema, sql, args, fn)
}

type fixture struct {
	engine   *Engine
	exec     *countingExecutor
	registry *fields.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := warehousetest.Open(t)
	registry, err := fields.Load(context.Background(), g)
	require.NoError(t, err)

	exec := &countingExecutor{Gateway: g}
	resolver := valuelist.NewResolver(valuelist.NewSQLStore(g, models.SchemaUsers))
	return &fixture{
		engine:   NewEngine(exec, NewCompiler(registry, resolver)),
		exec:     exec,
		registry: registry,
	}
}

func (f *fixture) field(t *testing.T, name string) *models.Field {
	t.Helper()
	field, err := f.registry.Resolve(name)
	require.NoError(t, err)
	return field
}

func (f *fixture) leaf(t *testing.T, name string, op models.ComparisonOperator, operands ...filter.Operand) filter.Leaf {
	return filter.Custom(filter.Criterion{Field: f.field(t, name), Operator: op, Operands: operands})
}

func lit(v string) filter.Operand { return filter.Literal(v) }

func TestShapesAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := warehousetest.Exome

	trees := map[string]filter.Tree{
		"empty": filter.Empty(filter.NewArena()),
		"list":  filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, filter.ListRef(warehousetest.Owner, "brca"))),
		"joins": filter.NewTree(filter.NewArena(), f.leaf(t, "cadd_phred", models.OpGreater, lit("20"))).
			AddLeaf(f.leaf(t, "gene_family", models.OpEqual, lit("BRCT")), models.And).
			AddLeaf(f.leaf(t, "mean_depth", models.OpGreater, lit("50")), models.Or),
	}
	restrictions := [][]string{nil, {}, {"S1", "S2"}, {"S3"}}

	for name, tree := range trees {
		for _, samples := range restrictions {
			ids, err := f.engine.ResultIDs(ctx, a, tree, samples)
			require.NoError(t, err, name)
			count, err := f.engine.RetrieveCount(ctx, a, tree, samples)
			require.NoError(t, err, name)
			assert.Equal(t, int64(len(ids)), count, "%s with samples %v", name, samples)
		}
	}
}

func TestSampleRestriction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	empty := filter.Empty(filter.NewArena())

	ids, err := f.engine.ResultIDs(ctx, warehousetest.Exome, empty, []string{"S1", "S2"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 7, 8}, ids)

	count, err := f.engine.RetrieveCount(ctx, warehousetest.Exome, empty, []string{"S1", "S2"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), count)

	all, err := f.engine.RetrieveCount(ctx, warehousetest.Exome, empty, []string{})
	require.NoError(t, err)
	assert.Equal(t, int64(8), all, "an empty restriction means no restriction")
}

func TestAllSamples(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tree := filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, lit("CFTR")))
	samples, err := f.engine.AllSamples(ctx, warehousetest.Exome, tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, samples)

	ids, err := f.engine.ResultIDs(ctx, warehousetest.Exome, tree, samples)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, ids)
}

func TestFilterSemantics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := warehousetest.Exome

	intervals, err := filter.NewIntervals(f.registry, "brca1", []filter.Interval{{Chromosome: "17", Start: 41196000, End: 41198000}}, false)
	require.NoError(t, err)
	common, err := filter.NewCommonToSamples(f.registry, []string{"S1", "S2"})
	require.NoError(t, err)
	variants, err := filter.NewListOfVariants(f.registry, []filter.VariantKey{{Chromosome: "13", Position: 32315000, Reference: "G", Alternative: "A"}})
	require.NoError(t, err)
	specific, err := filter.NewSampleSpecificVariants(f.registry, []string{"S2", "S3"}, []string{"S1"}, false)
	require.NoError(t, err)
	sharedSpecific, err := filter.NewSampleSpecificVariants(f.registry, []string{"S1", "S2"}, []string{"S3"}, true)
	require.NoError(t, err)
	genes, err := filter.NewCommonGeneVariants(f.registry, []string{"S1", "S2", "S3"}, 2, filter.AtLeast, 1)
	require.NoError(t, err)
	singleHit, err := filter.NewCommonGeneVariants(f.registry, []string{"S1", "S2"}, 0, filter.AtMost, 1)
	require.NoError(t, err)
	doubleHit, err := filter.NewCommonGeneVariants(f.registry, []string{"S1", "S2"}, 0, filter.Exactly, 2)
	require.NoError(t, err)

	tests := []struct {
		name string
		tree filter.Tree
		want []int64
	}{
		{
			name: "value list is upper-cased",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, filter.ListRef(warehousetest.Owner, "brca"))),
			want: []int64{1, 2, 3, 4, 6},
		},
		{
			name: "static annotation join",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, lit("BRCA1"))).
				AddLeaf(f.leaf(t, "cadd_phred", models.OpGreater, lit("20")), models.And),
			want: []int64{1, 3},
		},
		{
			name: "default value matches null",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "evaluation", models.OpEqual, lit("0"))),
			want: []int64{2, 4, 5, 7},
		},
		{
			name: "custom annotation is per project",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "comment", models.OpContains, lit("review"))),
			want: []int64{1},
		},
		{
			name: "coverage join",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "mean_depth", models.OpGreater, lit("40"))),
			want: []int64{1, 2, 3, 7, 8},
		},
		{
			name: "grouping",
			tree: filter.NewTree(filter.NewArena(), f.leaf(t, "chr", models.OpEqual, lit("7"))).
				AddLeaf(f.leaf(t, "read_depth", models.OpGreater, lit("50")), models.And).
				AddLeaf(f.leaf(t, "gene_symbol", models.OpEqual, lit("TP53")), models.Or),
			want: []int64{5, 7},
		},
		{
			name: "intervals",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(intervals)),
			want: []int64{1, 2, 3},
		},
		{
			name: "common to samples",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(common)),
			want: []int64{1, 3, 7, 8},
		},
		{
			name: "list of variants",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(variants)),
			want: []int64{4, 6},
		},
		{
			name: "variants of any kept sample absent from excluded",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(specific)),
			want: []int64{4, 5, 6},
		},
		{
			name: "variants shared by kept samples absent from excluded",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(sharedSpecific)),
			want: []int64{1, 3, 7, 8},
		},
		{
			name: "genes mutated in two of three samples",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(genes)),
			want: []int64{1, 2, 3, 4, 6, 7, 8},
		},
		{
			name: "genes with at most one variant per sample",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(singleHit)),
			want: []int64{7, 8},
		},
		{
			name: "genes with exactly two variants per sample",
			tree: filter.NewTree(filter.NewArena(), filter.Magic(doubleHit)),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := f.engine.ResultIDs(ctx, a, tt.tree, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestRetrieveDataExposesRequestedFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tree := filter.NewTree(filter.NewArena(), f.leaf(t, "cadd_phred", models.OpGreater, lit("30"))).
		AddLeaf(f.leaf(t, "mean_depth", models.OpGreater, lit("0")), models.And)
	result, err := f.engine.RetrieveData(ctx, warehousetest.Exome, tree,
		[]*models.Field{f.field(t, "gene_symbol"), f.field(t, "read_depth")}, nil, "t")
	require.NoError(t, err)

	assert.Equal(t, []string{"gene_symbol", "read_depth"}, result.Cursor().Columns())

	table, err := result.Collect(0)
	require.NoError(t, err)
	assert.Equal(t, "t", table.Title)
	assert.Equal(t, []string{"gene_symbol", "read_depth"}, table.Columns)
	assert.Equal(t, [][]string{{"BRCA2", "8"}, {"BRCA2", "25"}}, table.Rows)
	assert.NoError(t, result.Close())
}

func TestRetrieveDataAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	tree := filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, lit("CFTR")))

	result, err := f.engine.RetrieveData(context.Background(), warehousetest.Exome, tree,
		[]*models.Field{f.field(t, "evaluation")}, nil, "")
	require.NoError(t, err)
	table, err := result.Collect(1)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0"}}, table.Rows)
	assert.True(t, table.Truncated)
}

// The list itself is read from the users schema; the counter only sees
// statements sent to the variant schema.
func TestStaleListFailsBeforeVariantSchemaSQL(t *testing.T) {
	f := newFixture(t)
	tree := filter.NewTree(filter.NewArena(), f.leaf(t, "gene_symbol", models.OpEqual, lit("BRCA1"))).
		AddLeaf(f.leaf(t, "sample", models.OpEqual, filter.ListRef(warehousetest.Owner, "deleted")), models.And)

	_, err := f.engine.RetrieveCount(context.Background(), warehousetest.Exome, tree, nil)

	var stale *valuelist.StaleListError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "deleted", stale.Ref.Name)
	assert.Zero(t, f.exec.calls.Load(), "no variant-schema SQL")
}

func TestIncompatibleFieldsFailBeforeAnySQL(t *testing.T) {
	f := newFixture(t)
	tree := filter.NewTree(filter.NewArena(), f.leaf(t, "cadd_phred", models.OpGreater, lit("20")))

	_, err := f.engine.ResultIDs(context.Background(), warehousetest.Panel, tree, nil)
	var incompatible *filter.IncompatibleFieldError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []string{"cadd_phred"}, incompatible.Fields)

	_, err = f.engine.RetrieveData(context.Background(), warehousetest.Panel, filter.Empty(filter.NewArena()),
		[]*models.Field{f.field(t, "mean_depth")}, nil, "")
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "projection", incompatible.Artifact)

	_, err = f.engine.RetrieveData(context.Background(), warehousetest.Panel, filter.Empty(filter.NewArena()), nil, nil, "")
	assert.ErrorIs(t, err, ErrNoFields)

	assert.Zero(t, f.exec.calls.Load())
}

func TestCompilePostgresPlaceholders(t *testing.T) {
	gene := models.NewField("gene_symbol", models.FamilySampleAnnotations, "TEXT", "exome_hg38")
	c := NewCompiler(nil, valuelist.NewResolver(valuelist.MemoryStore{}))
	tree := filter.NewTree(filter.NewArena(), filter.Custom(filter.Criterion{
		Field: gene, Operator: models.OpEqual, Operands: []filter.Operand{lit("BRCA1")},
	}))

	stmt, err := c.Compile(context.Background(), Request{
		Analysis: models.Analysis{Name: "exome_hg38"},
		Tree:     tree,
		Shape:    Count,
		Samples:  []string{"S1"},
	}, connection.Postgres)
	require.NoError(t, err)

	want := `SELECT COUNT(*) AS "count" FROM "exome_hg38_sample_annotations" ` +
		`JOIN "projects" ON "projects"."project_id" = "exome_hg38_sample_annotations"."project_id" ` +
		`WHERE ("exome_hg38_sample_annotations"."gene_symbol" IN ($1) AND "projects"."sample" IN ($2))`
	assert.Equal(t, want, stmt.SQL)
	assert.Equal(t, []any{"BRCA1", "S1"}, stmt.Args)
	assert.Equal(t, []string{"count"}, stmt.Columns)
}
