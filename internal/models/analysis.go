package models

import "fmt"

// TableFamily names one group of warehouse tables. Most families exist once
// per analysis; projects is shared by every analysis.
type TableFamily string

const (
	FamilySampleAnnotations TableFamily = "sample_annotations"
	FamilyStaticAnnotations TableFamily = "static_annotations"
	FamilyCustomAnnotations TableFamily = "custom_annotations"
	FamilyGeneAnnotations   TableFamily = "gene_annotations"
	FamilyAlleleFrequencies TableFamily = "allele_frequencies"
	FamilyCoverage          TableFamily = "coverage"
	FamilyProjects          TableFamily = "projects"
)

// Families lists every family in join order. The base table comes first.
var Families = []TableFamily{
	FamilySampleAnnotations,
	FamilyProjects,
	FamilyStaticAnnotations,
	FamilyCustomAnnotations,
	FamilyGeneAnnotations,
	FamilyAlleleFrequencies,
	FamilyCoverage,
}

// JoinKind is the SQL join used to attach a family to the base table
type JoinKind string

const (
	InnerJoin JoinKind = "JOIN"
	LeftJoin  JoinKind = "LEFT JOIN"
)

// ParseTableFamily converts a stored family name into a TableFamily
func ParseTableFamily(s string) (TableFamily, error) {
	for _, f := range Families {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown table family: %s", s)
}

// PerAnalysis reports whether the family has one table per analysis
func (f TableFamily) PerAnalysis() bool {
	return f != FamilyProjects
}

// IsBase reports whether the family is the table every query selects from
func (f TableFamily) IsBase() bool {
	return f == FamilySampleAnnotations
}

// Join returns how the family attaches to the base table and on which columns
func (f TableFamily) Join() (JoinKind, []string) {
	switch f {
	case FamilyProjects:
		return InnerJoin, []string{"project_id"}
	case FamilyStaticAnnotations:
		return InnerJoin, []string{"pos", "chr", "alternative", "reference", "length", "gene_symbol"}
	case FamilyCustomAnnotations:
		return LeftJoin, []string{"pos", "gene_symbol", "project_id", "alternative", "reference", "chr", "length"}
	case FamilyGeneAnnotations:
		return LeftJoin, []string{"gene_symbol"}
	case FamilyAlleleFrequencies:
		return InnerJoin, []string{"pos", "alternative", "reference", "chr", "length"}
	case FamilyCoverage:
		return LeftJoin, []string{"region_id"}
	default:
		return "", nil
	}
}

// Analysis identifies a sequencing pipeline or cohort. Two analyses are the
// same analysis when their names match.
type Analysis struct {
	Name          string `yaml:"name"`
	Reference     string `yaml:"reference"`
	VariantCaller string `yaml:"variant_caller"`
}

func (a Analysis) String() string {
	return a.Name
}

// Equal compares analyses by name
func (a Analysis) Equal(other Analysis) bool {
	return a.Name == other.Name
}

// IsZero reports whether no analysis is set
func (a Analysis) IsZero() bool {
	return a.Name == ""
}

// Table returns the concrete table name of a family for this analysis
func (a Analysis) Table(f TableFamily) string {
	if !f.PerAnalysis() {
		return string(f)
	}
	return a.Name + "_" + string(f)
}
