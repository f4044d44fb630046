package models

import "fmt"

// ComparisonOperator is the operator of a filter criterion
type ComparisonOperator string

const (
	OpEqual          ComparisonOperator = "EQUAL"
	OpDifferent      ComparisonOperator = "DIFFERENT"
	OpGreater        ComparisonOperator = "GREATER"
	OpGreaterOrEqual ComparisonOperator = "GREATEROREQUAL"
	OpSmaller        ComparisonOperator = "SMALLER"
	OpSmallerOrEqual ComparisonOperator = "SMALLEROREQUAL"
	OpContains       ComparisonOperator = "CONTAINS"
	OpDoesNotContain ComparisonOperator = "DOESNOTCONTAIN"
	// Ranges take two values. I is an inclusive bound, E an exclusive one.
	OpRangeII ComparisonOperator = "RANGE_II"
	OpRangeIE ComparisonOperator = "RANGE_IE"
	OpRangeEI ComparisonOperator = "RANGE_EI"
	OpRangeEE ComparisonOperator = "RANGE_EE"
)

var comparisonOperators = []ComparisonOperator{
	OpEqual, OpDifferent,
	OpGreater, OpGreaterOrEqual, OpSmaller, OpSmallerOrEqual,
	OpContains, OpDoesNotContain,
	OpRangeII, OpRangeIE, OpRangeEI, OpRangeEE,
}

// ParseComparisonOperator converts a stored operator name
func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	for _, op := range comparisonOperators {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unsupported operator: %s", s)
}

// Symbol returns the short form shown to users
func (op ComparisonOperator) Symbol() string {
	switch op {
	case OpEqual:
		return "="
	case OpDifferent:
		return "!="
	case OpGreater:
		return ">"
	case OpGreaterOrEqual:
		return ">="
	case OpSmaller:
		return "<"
	case OpSmallerOrEqual:
		return "<="
	case OpContains:
		return "~"
	case OpDoesNotContain:
		return "!~"
	case OpRangeII:
		return "[.,.]"
	case OpRangeIE:
		return "[.,.["
	case OpRangeEI:
		return "].,.]"
	case OpRangeEE:
		return "].,.["
	default:
		return string(op)
	}
}

// IsRange reports whether the operator takes a lower and an upper bound
func (op ComparisonOperator) IsRange() bool {
	switch op {
	case OpRangeII, OpRangeIE, OpRangeEI, OpRangeEE:
		return true
	}
	return false
}

// LogicalOperator combines two filter trees
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// ParseLogicalOperator converts a stored logical operator
func ParseLogicalOperator(s string) (LogicalOperator, error) {
	switch LogicalOperator(s) {
	case And, Or:
		return LogicalOperator(s), nil
	}
	return "", fmt.Errorf("unsupported logical operator: %s", s)
}

// ValueListReference names a list of values owned by a user. The list is
// looked up every time a query is compiled.
type ValueListReference struct {
	Owner string `yaml:"owner"`
	Name  string `yaml:"name"`
}

func (r ValueListReference) String() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}
