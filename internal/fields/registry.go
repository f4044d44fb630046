// Package fields holds the catalog of queryable warehouse columns.
package fields

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// ErrFieldNotFound is returned by Resolve for unknown names
var ErrFieldNotFound = errors.New("field not found")

// ErrAnalysisNotFound is returned by Analysis for unknown names
var ErrAnalysisNotFound = errors.New("analysis not found")

// ConfigurationError means the catalog could not be read at startup. The
// process cannot run without it.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Querier is the part of the gateway the registry reads through
type Querier interface {
	Select(ctx context.Context, schema models.Schema, sql string, args []any, fn func(*connection.Cursor) error) error
}

// Registry is the read-only field catalog. It is safe for concurrent use.
type Registry struct {
	analyses []models.Analysis
	fields   []*models.Field
	byName   map[string]*models.Field
}

// New builds a registry from already loaded values
func New(analyses []models.Analysis, fields []*models.Field) *Registry {
	r := &Registry{
		analyses: append([]models.Analysis(nil), analyses...),
		fields:   append([]*models.Field(nil), fields...),
		byName:   make(map[string]*models.Field, len(fields)),
	}
	sort.Slice(r.analyses, func(i, j int) bool { return r.analyses[i].Name < r.analyses[j].Name })
	sort.Slice(r.fields, func(i, j int) bool { return r.fields[i].Name < r.fields[j].Name })
	for _, f := range r.fields {
		r.byName[f.Name] = f
	}
	return r
}

const analysesQuery = `
	SELECT analysis, reference, variant_caller
	FROM analyses
	ORDER BY analysis`

const fieldsQuery = `
	SELECT field, table_family, sql_datatype, description, default_value, sample_related, analyses
	FROM fields
	ORDER BY field`

// Load reads the analyses and fields catalogs once. Any failure is returned
// as a ConfigurationError.
func Load(ctx context.Context, q Querier) (*Registry, error) {
	var analyses []models.Analysis
	err := q.Select(ctx, models.SchemaMain, analysesQuery, nil, func(c *connection.Cursor) error {
		for c.Next() {
			values, err := c.Values()
			if err != nil {
				return err
			}
			analyses = append(analyses, models.Analysis{
				Name:          toString(values[0]),
				Reference:     toString(values[1]),
				VariantCaller: toString(values[2]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to load analyses: %w", err)}
	}

	var fields []*models.Field
	err = q.Select(ctx, models.SchemaMain, fieldsQuery, nil, func(c *connection.Cursor) error {
		for c.Next() {
			values, err := c.Values()
			if err != nil {
				return err
			}
			f, err := fieldFromRow(values)
			if err != nil {
				return err
			}
			fields = append(fields, f)
		}
		return nil
	})
	if err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to load fields: %w", err)}
	}

	return New(analyses, fields), nil
}

func fieldFromRow(values []any) (*models.Field, error) {
	name := toString(values[0])
	family, err := models.ParseTableFamily(toString(values[1]))
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}

	var analyses []string
	for _, a := range strings.Split(toString(values[6]), ",") {
		if a = strings.TrimSpace(a); a != "" {
			analyses = append(analyses, a)
		}
	}

	f := models.NewField(name, family, toString(values[2]), analyses...)
	f.Description = toString(values[3])
	if values[4] != nil {
		f.WithDefault(toString(values[4]))
	}
	f.SampleRelated = toBool(values[5])
	return f, nil
}

// Resolve returns the field with the given name
func (r *Registry) Resolve(name string) (*models.Field, error) {
	f, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return f, nil
}

// FieldsFor returns the fields valid for an analysis, sorted by name
func (r *Registry) FieldsFor(a models.Analysis) []*models.Field {
	var out []*models.Field
	for _, f := range r.fields {
		if f.HasAnalysis(a) {
			out = append(out, f)
		}
	}
	return out
}

// Analyses returns every known analysis, sorted by name
func (r *Registry) Analyses() []models.Analysis {
	return append([]models.Analysis(nil), r.analyses...)
}

// Analysis looks up an analysis by name
func (r *Registry) Analysis(name string) (models.Analysis, error) {
	for _, a := range r.analyses {
		if a.Name == name {
			return a, nil
		}
	}
	return models.Analysis{}, fmt.Errorf("%w: %s", ErrAnalysisNotFound, name)
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int32:
		return val != 0
	case string:
		return val == "1" || strings.EqualFold(val, "true")
	default:
		return false
	}
}
