package models

// SortDirection is the order of a sorting criterion
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// SortingCriterion orders the result table by one field
type SortingCriterion struct {
	Field     *Field
	Direction SortDirection
}

// Name identifies the criterion in prompts
func (s SortingCriterion) Name() string {
	return s.Field.Name + " " + string(s.Direction)
}

// HighlightMode selects how matching cells are rendered
type HighlightMode string

const (
	HighlightCell    HighlightMode = "cell"
	HighlightRow     HighlightMode = "row"
	HighlightHeatMap HighlightMode = "heatmap"
)

// HighlightingRule colours the cells of one field. Heat maps ignore the
// operator and values and scale over the column range instead.
type HighlightingRule struct {
	Field    *Field
	Operator ComparisonOperator
	Values   []string
	Mode     HighlightMode
	Color    string
}

// Name identifies the rule in prompts
func (h HighlightingRule) Name() string {
	if h.Mode == HighlightHeatMap {
		return h.Field.Name + " heat map"
	}
	return h.Field.Name + " " + h.Operator.Symbol()
}
