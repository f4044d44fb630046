package models

import (
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Well-known field names the engine relies on
const (
	FieldVariantSampleID = "variant_sample_id"
	FieldSample          = "sample"
	FieldChromosome      = "chr"
	FieldPosition        = "pos"
	FieldReference       = "reference"
	FieldAlternative     = "alternative"
	FieldLength          = "length"
	FieldGeneSymbol      = "gene_symbol"
)

// FieldKind is the value class of a field, derived from its SQL type
type FieldKind int

const (
	KindString FieldKind = iota
	KindInteger
	KindDouble
	KindBoolean
	KindTimestamp
)

func (k FieldKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// KindForSQLType maps a column type as stored in the fields catalog to a kind
func KindForSQLType(sqlType string) FieldKind {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "int", "integer", "smallint", "bigint", "tinyint", "mediumint", "int2", "int4", "int8", "serial", "bigserial":
		return KindInteger
	case "double", "double precision", "float", "float4", "float8", "real", "decimal", "numeric":
		return KindDouble
	case "boolean", "bool", "bit":
		return KindBoolean
	case "timestamp", "timestamptz", "datetime", "date", "timestamp with time zone", "timestamp without time zone":
		return KindTimestamp
	default:
		return KindString
	}
}

// Field is a queryable warehouse column. Fields are created once when the
// catalog is loaded and never change afterwards.
type Field struct {
	Name          string
	Description   string
	Family        TableFamily
	SQLType       string
	Kind          FieldKind
	Default       string
	HasDefault    bool
	SampleRelated bool

	analyses map[string]struct{}
}

// NewField creates a field valid for the given analysis names
func NewField(name string, family TableFamily, sqlType string, analyses ...string) *Field {
	f := &Field{
		Name:     name,
		Family:   family,
		SQLType:  sqlType,
		Kind:     KindForSQLType(sqlType),
		analyses: make(map[string]struct{}, len(analyses)),
	}
	for _, a := range analyses {
		f.analyses[a] = struct{}{}
	}
	return f
}

// WithDefault sets the value a NULL column stands for
func (f *Field) WithDefault(value string) *Field {
	f.Default = value
	f.HasDefault = true
	return f
}

// HasAnalysis reports whether the field exists in the analysis
func (f *Field) HasAnalysis(a Analysis) bool {
	_, ok := f.analyses[a.Name]
	return ok
}

// AnalysisNames returns the analyses the field is valid for, sorted
func (f *Field) AnalysisNames() []string {
	names := make([]string, 0, len(f.analyses))
	for name := range f.analyses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Table returns the table holding the field for an analysis
func (f *Field) Table(a Analysis) string {
	return a.Table(f.Family)
}

// WhereExpression returns the qualified column used in WHERE and JOIN clauses
func (f *Field) WhereExpression(a Analysis) string {
	return pgx.Identifier{f.Table(a), f.Name}.Sanitize()
}

// SelectExpression returns the SELECT list entry for the field. Columns with a
// default are coalesced so NULL reads as the default.
func (f *Field) SelectExpression(a Analysis) string {
	alias := pgx.Identifier{f.Name}.Sanitize()
	if f.HasDefault {
		return "COALESCE(" + f.WhereExpression(a) + ", " + quoteLiteral(f.Default) + ") AS " + alias
	}
	return f.WhereExpression(a) + " AS " + alias
}

// Operators returns the comparison operators that make sense for the field
func (f *Field) Operators() []ComparisonOperator {
	switch f.Kind {
	case KindBoolean:
		return []ComparisonOperator{OpEqual}
	case KindInteger, KindDouble, KindTimestamp:
		return []ComparisonOperator{
			OpEqual, OpDifferent,
			OpGreater, OpGreaterOrEqual, OpSmaller, OpSmallerOrEqual,
			OpRangeII, OpRangeIE, OpRangeEI, OpRangeEE,
		}
	default:
		return []ComparisonOperator{OpEqual, OpDifferent, OpContains, OpDoesNotContain}
	}
}

// Supports reports whether op is allowed on the field
func (f *Field) Supports(op ComparisonOperator) bool {
	for _, o := range f.Operators() {
		if o == op {
			return true
		}
	}
	return false
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
