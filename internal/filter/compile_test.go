package filter

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

func col(f testFields, name string) string {
	return f[name].WhereExpression(exome)
}

func TestCompileCriterion(t *testing.T) {
	f := newTestFields()
	gene := col(f, "gene_symbol")
	depth := col(f, "read_depth")
	eval := col(f, "evaluation")
	lists := Lists{{Owner: "alice", Name: "brca"}: {"BRCA1", "BRCA2"}}

	tests := []struct {
		name      string
		criterion Criterion
		wantSQL   string
		wantArgs  []any
	}{
		{
			name:      "equal merges literals and lists",
			criterion: Criterion{Field: f["gene_symbol"], Operator: models.OpEqual, Operands: []Operand{Literal("BRCA1"), ListRef("alice", "brca")}},
			wantSQL:   gene + " IN (?,?)",
			wantArgs:  []any{"BRCA1", "BRCA2"},
		},
		{
			name:      "different",
			criterion: Criterion{Field: f["gene_symbol"], Operator: models.OpDifferent, Operands: []Operand{Literal("TP53")}},
			wantSQL:   gene + " NOT IN (?)",
			wantArgs:  []any{"TP53"},
		},
		{
			name:      "greater binds an integer",
			criterion: Criterion{Field: f["read_depth"], Operator: models.OpGreater, Operands: []Operand{Literal("5")}},
			wantSQL:   depth + " > ?",
			wantArgs:  []any{int64(5)},
		},
		{
			name:      "include nulls",
			criterion: Criterion{Field: f["read_depth"], Operator: models.OpSmaller, Operands: []Operand{Literal("20")}, IncludeNulls: true},
			wantSQL:   "(" + depth + " < ? OR " + depth + " IS NULL)",
			wantArgs:  []any{int64(20)},
		},
		{
			name:      "null value without default",
			criterion: Criterion{Field: f["read_depth"], Operator: models.OpEqual, NullValue: true},
			wantSQL:   depth + " IS NULL",
		},
		{
			name:      "equal to the default also matches null",
			criterion: Criterion{Field: f["evaluation"], Operator: models.OpEqual, Operands: []Operand{Literal("0"), Literal("1")}},
			wantSQL:   "(" + eval + " IN (?,?) OR " + eval + " IS NULL)",
			wantArgs:  []any{int64(0), int64(1)},
		},
		{
			name:      "different from the default excludes null",
			criterion: Criterion{Field: f["evaluation"], Operator: models.OpDifferent, Operands: []Operand{Literal("0")}},
			wantSQL:   "(" + eval + " NOT IN (?) AND " + eval + " IS NOT NULL)",
			wantArgs:  []any{int64(0)},
		},
		{
			name:      "include nulls is ignored with a default",
			criterion: Criterion{Field: f["evaluation"], Operator: models.OpGreater, Operands: []Operand{Literal("1")}, IncludeNulls: true},
			wantSQL:   eval + " > ?",
			wantArgs:  []any{int64(1)},
		},
		{
			name:      "contains escapes wildcards",
			criterion: Criterion{Field: f["consequence"], Operator: models.OpContains, Operands: []Operand{Literal("5_prime%")}},
			wantSQL:   "CAST(" + col(f, "consequence") + ` AS TEXT) LIKE ? ESCAPE '\'`,
			wantArgs:  []any{`%5\_prime\%%`},
		},
		{
			name:      "inclusive exclusive range",
			criterion: Criterion{Field: f["cadd_phred"], Operator: models.OpRangeIE, Operands: []Operand{Literal("10"), Literal("20.5")}},
			wantSQL:   "(" + col(f, "cadd_phred") + " >= ? AND " + col(f, "cadd_phred") + " < ?)",
			wantArgs:  []any{10.0, 20.5},
		},
		{
			name:      "boolean",
			criterion: Criterion{Field: f["is_snp"], Operator: models.OpEqual, Operands: []Operand{Literal("true")}},
			wantSQL:   col(f, "is_snp") + " = ?",
			wantArgs:  []any{true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := compileCriterion(tt.criterion, exome, lists)
			if err != nil {
				t.Fatalf("compileCriterion() error = %v", err)
			}
			sql, args, err := pred.ToSql()
			if err != nil {
				t.Fatalf("ToSql() error = %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql = %s\nwant  %s", sql, tt.wantSQL)
			}
			if len(args) != len(tt.wantArgs) || (len(args) > 0 && !reflect.DeepEqual(args, tt.wantArgs)) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestCompileRejectsInvalidCriteria(t *testing.T) {
	f := newTestFields()
	tests := []struct {
		name      string
		criterion Criterion
	}{
		{"contains on a number", Criterion{Field: f["read_depth"], Operator: models.OpContains, Operands: []Operand{Literal("1")}}},
		{"not a number", Criterion{Field: f["read_depth"], Operator: models.OpGreater, Operands: []Operand{Literal("deep")}}},
		{"range with one bound", Criterion{Field: f["pos"], Operator: models.OpRangeII, Operands: []Operand{Literal("1")}}},
		{"null with greater", Criterion{Field: f["pos"], Operator: models.OpGreater, NullValue: true}},
		{"no operand", Criterion{Field: f["gene_symbol"], Operator: models.OpEqual}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileCriterion(tt.criterion, exome, nil)
			if !errors.Is(err, ErrInvalidCriterion) {
				t.Errorf("error = %v, want ErrInvalidCriterion", err)
			}
		})
	}
}

func TestCompileUnresolvedList(t *testing.T) {
	f := newTestFields()
	c := Criterion{Field: f["gene_symbol"], Operator: models.OpEqual, Operands: []Operand{ListRef("alice", "gone")}}

	if _, err := compileCriterion(c, exome, Lists{}); err == nil {
		t.Error("expected an error for an unresolved list")
	}
}

func TestCompileTreeKeepsGrouping(t *testing.T) {
	f := newTestFields()
	tree := NewTree(NewArena(), leaf(f, "gene_symbol", models.OpEqual, "BRCA1")).
		AddLeaf(leaf(f, "read_depth", models.OpGreater, "5"), models.And).
		AddLeaf(leaf(f, "cadd_phred", models.OpGreater, "20"), models.Or)

	frag, err := Compile(tree, exome, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	sql, args, err := frag.Where.ToSql()
	if err != nil {
		t.Fatalf("ToSql() error = %v", err)
	}

	want := "((" + col(f, "gene_symbol") + " IN (?) AND " + col(f, "read_depth") + " > ?) OR " + col(f, "cadd_phred") + " > ?)"
	if sql != want {
		t.Errorf("sql = %s\nwant  %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"BRCA1", int64(5), 20.0}) {
		t.Errorf("args = %#v", args)
	}

	wantFamilies := []models.TableFamily{models.FamilySampleAnnotations, models.FamilyStaticAnnotations}
	if !reflect.DeepEqual(frag.Families, wantFamilies) {
		t.Errorf("Families = %v, want %v", frag.Families, wantFamilies)
	}
}

func TestCompileEmptyTree(t *testing.T) {
	frag, err := Compile(Empty(NewArena()), exome, nil)
	if err != nil || frag.Where != nil || len(frag.Families) != 0 {
		t.Errorf("Compile(empty) = %+v, %v", frag, err)
	}
}

func TestCompileMagicPredicates(t *testing.T) {
	f := newTestFields()
	chr, pos := col(f, "chr"), col(f, "pos")

	ivs, err := NewIntervals(f, "brca", []Interval{{Chromosome: "17", Start: 41196000, End: 41198000}}, true)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := ivs.Compile(exome)
	if err != nil {
		t.Fatal(err)
	}
	sql, args, _ := pred.ToSql()
	if want := "NOT ((" + chr + " = ? AND " + pos + " BETWEEN ? AND ?))"; sql != want {
		t.Errorf("intervals sql = %s\nwant %s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"17", int64(41196000), int64(41198000)}) {
		t.Errorf("intervals args = %#v", args)
	}

	common, err := NewCommonToSamples(f, []string{"S2", "S1", "S2"})
	if err != nil {
		t.Fatal(err)
	}
	pred, err = common.Compile(exome)
	if err != nil {
		t.Fatal(err)
	}
	sql, args, _ = pred.ToSql()
	if !strings.Contains(sql, "HAVING COUNT(DISTINCT") || !strings.Contains(sql, `JOIN "projects" ON`) {
		t.Errorf("common to samples sql = %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"S1", "S2", 2}) {
		t.Errorf("common to samples args = %#v", args)
	}
}

func TestCompileSampleSpecificVariants(t *testing.T) {
	f := newTestFields()
	sample := col(f, "sample")

	specific, err := NewSampleSpecificVariants(f, []string{"S2", "S1"}, []string{"S3"}, true)
	if err != nil {
		t.Fatal(err)
	}
	pred, err := specific.Compile(exome)
	if err != nil {
		t.Fatal(err)
	}
	sql, args, _ := pred.ToSql()
	if !strings.HasPrefix(sql, "("+sample+" IN (?,?) AND (") {
		t.Errorf("sample specific sql = %s", sql)
	}
	if !strings.Contains(sql, ") NOT IN (SELECT") || strings.Count(sql, "HAVING") != 1 {
		t.Errorf("sample specific sql = %s", sql)
	}
	if !reflect.DeepEqual(args, []any{"S1", "S2", "S1", "S2", 2, "S3"}) {
		t.Errorf("sample specific args = %#v", args)
	}

	if _, err := NewSampleSpecificVariants(f, []string{"S1"}, []string{"S1"}, false); !errors.Is(err, ErrInvalidCriterion) {
		t.Errorf("overlapping samples error = %v", err)
	}
	if _, err := NewSampleSpecificVariants(f, nil, []string{"S1"}, false); !errors.Is(err, ErrInvalidCriterion) {
		t.Errorf("no kept sample error = %v", err)
	}
}

func TestCompileCommonGeneVariants(t *testing.T) {
	f := newTestFields()

	tests := []struct {
		threshold GeneThreshold
		having    string
		args      []any
	}{
		{AtLeast, "HAVING COUNT(*) >= ? AND MIN(hits) >= ?", []any{"S1", "S2", "S1", "S2", 2, 1}},
		{AtMost, "HAVING COUNT(*) >= ? AND MAX(hits) <= ?", []any{"S1", "S2", "S1", "S2", 2, 1}},
		{Exactly, "HAVING COUNT(*) >= ? AND MIN(hits) = ? AND MAX(hits) = ?", []any{"S1", "S2", "S1", "S2", 2, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.threshold), func(t *testing.T) {
			genes, err := NewCommonGeneVariants(f, []string{"S2", "S1"}, 0, tt.threshold, 1)
			if err != nil {
				t.Fatal(err)
			}
			pred, err := genes.Compile(exome)
			if err != nil {
				t.Fatal(err)
			}
			sql, args, _ := pred.ToSql()
			if !strings.Contains(sql, col(f, "gene_symbol")+" IN (SELECT gene FROM (SELECT") || !strings.Contains(sql, ") AS per_sample GROUP BY gene "+tt.having) {
				t.Errorf("common gene sql = %s", sql)
			}
			if !reflect.DeepEqual(args, tt.args) {
				t.Errorf("common gene args = %#v, want %#v", args, tt.args)
			}
		})
	}

	if _, err := NewCommonGeneVariants(f, []string{"S1"}, 2, AtLeast, 1); !errors.Is(err, ErrInvalidCriterion) {
		t.Errorf("min common above sample count error = %v", err)
	}
	if _, err := NewCommonGeneVariants(f, []string{"S1"}, 1, GeneThreshold("around"), 1); !errors.Is(err, ErrInvalidCriterion) {
		t.Errorf("unknown threshold error = %v", err)
	}
}

func TestJoinClause(t *testing.T) {
	got := JoinClause(exome, models.FamilyGeneAnnotations)
	want := `LEFT JOIN "exome_hg38_gene_annotations" ON "exome_hg38_gene_annotations"."gene_symbol" = "exome_hg38_sample_annotations"."gene_symbol"`
	if got != want {
		t.Errorf("JoinClause() = %s\nwant %s", got, want)
	}
}
