// Package profile saves and restores workspaces: a filter tree together with
// its highlighting rules and sorting criteria.
package profile

import (
	"errors"
	"fmt"

	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/switcher"
	"gopkg.in/yaml.v3"
)

const profileVersion = 1

type document struct {
	Version      int           `yaml:"version"`
	Filter       string        `yaml:"filter,omitempty"`
	Highlighting []encodedRule `yaml:"highlighting,omitempty"`
	Sorting      []encodedSort `yaml:"sorting,omitempty"`
}

type encodedRule struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator,omitempty"`
	Values   []string `yaml:"values,omitempty"`
	Mode     string   `yaml:"mode"`
	Color    string   `yaml:"color,omitempty"`
}

type encodedSort struct {
	Field     string `yaml:"field"`
	Direction string `yaml:"direction"`
}

// Serialize encodes a workspace
func Serialize(ws switcher.Workspace) ([]byte, error) {
	doc := document{Version: profileVersion}
	if !ws.Filter.IsEmpty() {
		data, err := filter.Encode(ws.Filter)
		if err != nil {
			return nil, err
		}
		doc.Filter = string(data)
	}
	for _, r := range ws.Highlighting {
		doc.Highlighting = append(doc.Highlighting, encodedRule{
			Field:    r.Field.Name,
			Operator: string(r.Operator),
			Values:   r.Values,
			Mode:     string(r.Mode),
			Color:    r.Color,
		})
	}
	for _, s := range ws.Sorting {
		doc.Sorting = append(doc.Sorting, encodedSort{Field: s.Field.Name, Direction: string(s.Direction)})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	return data, nil
}

// Deserialize decodes a workspace and checks it against analysis a. The
// whole workspace is always returned when the document parses; criteria
// using fields missing from a are reported as IncompatibleFieldErrors, one
// per artifact, so the caller can prune them with consent.
func Deserialize(data []byte, fields filter.FieldSource, a models.Analysis) (switcher.Workspace, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return switcher.Workspace{}, fmt.Errorf("failed to parse profile: %w", err)
	}
	if doc.Version != profileVersion {
		return switcher.Workspace{}, fmt.Errorf("unsupported profile version: %d", doc.Version)
	}

	ws := switcher.Workspace{Filter: filter.Empty(filter.NewArena())}
	if doc.Filter != "" {
		tree, err := filter.Decode([]byte(doc.Filter), fields, ws.Filter.Arena())
		if err != nil {
			return switcher.Workspace{}, err
		}
		ws.Filter = tree
	}

	for _, r := range doc.Highlighting {
		rule := models.HighlightingRule{
			Field:  filter.ResolveOrOrphan(fields, r.Field),
			Values: r.Values,
			Mode:   models.HighlightMode(r.Mode),
			Color:  r.Color,
		}
		switch rule.Mode {
		case models.HighlightCell, models.HighlightRow:
			op, err := models.ParseComparisonOperator(r.Operator)
			if err != nil {
				return switcher.Workspace{}, fmt.Errorf("highlighting rule on %s: %w", r.Field, err)
			}
			rule.Operator = op
		case models.HighlightHeatMap:
		default:
			return switcher.Workspace{}, fmt.Errorf("unknown highlighting mode: %s", r.Mode)
		}
		ws.Highlighting = append(ws.Highlighting, rule)
	}

	for _, s := range doc.Sorting {
		dir := models.SortDirection(s.Direction)
		if dir != models.Ascending && dir != models.Descending {
			return switcher.Workspace{}, fmt.Errorf("unknown sort direction: %s", s.Direction)
		}
		ws.Sorting = append(ws.Sorting, models.SortingCriterion{Field: filter.ResolveOrOrphan(fields, s.Field), Direction: dir})
	}

	var errs []error
	for _, c := range switcher.Check(a, ws) {
		errs = append(errs, c.Err)
	}
	return ws, errors.Join(errs...)
}
