package filter

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Lists holds the resolved values of every value list used by a tree
type Lists map[models.ValueListReference][]string

// Fragment is a compiled tree: the predicate, with ? placeholders, and the
// table families the predicate reads
type Fragment struct {
	Where    sq.Sqlizer
	Families []models.TableFamily
}

// Compile turns the tree into a WHERE predicate for analysis a. An empty tree
// compiles to a nil predicate. Value lists must already be resolved.
func Compile(t Tree, a models.Analysis, lists Lists) (Fragment, error) {
	if t.IsEmpty() {
		return Fragment{}, nil
	}

	used := make(map[models.TableFamily]bool)
	var build func(NodeID) (sq.Sqlizer, error)
	build = func(id NodeID) (sq.Sqlizer, error) {
		n := t.arena.get(id)
		if n.leaf != nil {
			for _, f := range n.leaf.Fields() {
				used[f.Family] = true
			}
			return compileLeaf(*n.leaf, a, lists)
		}
		left, err := build(n.left)
		if err != nil {
			return nil, err
		}
		right, err := build(n.right)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case models.And:
			return sq.And{left, right}, nil
		case models.Or:
			return sq.Or{left, right}, nil
		default:
			return nil, fmt.Errorf("unsupported logical operator: %s", n.op)
		}
	}

	where, err := build(t.root)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{Where: where, Families: OrderFamilies(used)}, nil
}

// OrderFamilies returns the families of a set in join order
func OrderFamilies(set map[models.TableFamily]bool) []models.TableFamily {
	var out []models.TableFamily
	for _, f := range models.Families {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

func compileLeaf(l Leaf, a models.Analysis, lists Lists) (sq.Sqlizer, error) {
	if l.magic != nil {
		pred, err := l.magic.Compile(a)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", l.magic.Kind(), err)
		}
		return pred, nil
	}
	if l.custom == nil {
		return nil, fmt.Errorf("%w: empty leaf", ErrInvalidCriterion)
	}
	return compileCriterion(*l.custom, a, lists)
}

// compileCriterion builds the predicate of one criterion. Fields with a
// default store NULL for that default, so comparisons involving the default
// also match NULL.
func compileCriterion(c Criterion, a models.Analysis, lists Lists) (sq.Sqlizer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	f := c.Field
	col := f.WhereExpression(a)
	isNull := sq.Expr(col + " IS NULL")
	notNull := sq.Expr(col + " IS NOT NULL")

	if c.NullValue {
		if !f.HasDefault {
			if c.Operator == models.OpEqual {
				return isNull, nil
			}
			return notNull, nil
		}
		def, err := typedValues(f, []string{f.Default})
		if err != nil {
			return nil, err
		}
		if c.Operator == models.OpEqual {
			return sq.Or{sq.Eq{col: def[0]}, isNull}, nil
		}
		return sq.And{sq.NotEq{col: def[0]}, notNull}, nil
	}

	raw, err := operandValues(c, lists)
	if err != nil {
		return nil, err
	}
	vals, err := typedValues(f, raw)
	if err != nil {
		return nil, err
	}

	var pred sq.Sqlizer
	if f.Kind == models.KindBoolean {
		pred = sq.Eq{col: vals[0]}
	} else {
		nullIsDefault := f.HasDefault && (f.Default == "0" || f.Default == "NOT_CHECKED") && contains(raw, f.Default)
		zeroDefault := f.HasDefault && f.Default == "0" && f.Kind != models.KindTimestamp

		switch c.Operator {
		case models.OpEqual:
			pred = sq.Eq{col: vals}
			if nullIsDefault {
				pred = sq.Or{pred, isNull}
			}
		case models.OpDifferent:
			pred = sq.NotEq{col: vals}
			switch {
			case nullIsDefault:
				pred = sq.And{pred, notNull}
			case f.HasDefault && (f.Default == "0" || f.Default == "NOT_CHECKED" || f.Default == ""):
				pred = sq.Or{pred, isNull}
			}
		case models.OpGreater:
			pred = sq.Gt{col: vals[0]}
		case models.OpGreaterOrEqual:
			pred = orNullIf(sq.GtOrEq{col: vals[0]}, isNull, zeroDefault)
		case models.OpSmaller:
			pred = orNullIf(sq.Lt{col: vals[0]}, isNull, zeroDefault)
		case models.OpSmallerOrEqual:
			pred = orNullIf(sq.LtOrEq{col: vals[0]}, isNull, zeroDefault)
		case models.OpContains:
			pred = sq.Expr("CAST("+col+" AS TEXT) LIKE ? ESCAPE '\\'", likePattern(raw[0]))
		case models.OpDoesNotContain:
			pred = sq.Expr("CAST("+col+" AS TEXT) NOT LIKE ? ESCAPE '\\'", likePattern(raw[0]))
			pred = orNullIf(pred, isNull, f.HasDefault && f.Default == "")
		case models.OpRangeII:
			pred = sq.And{sq.GtOrEq{col: vals[0]}, sq.LtOrEq{col: vals[1]}}
		case models.OpRangeIE:
			pred = sq.And{sq.GtOrEq{col: vals[0]}, sq.Lt{col: vals[1]}}
		case models.OpRangeEI:
			pred = sq.And{sq.Gt{col: vals[0]}, sq.LtOrEq{col: vals[1]}}
		case models.OpRangeEE:
			pred = sq.And{sq.Gt{col: vals[0]}, sq.Lt{col: vals[1]}}
		default:
			return nil, fmt.Errorf("unsupported operator: %s", c.Operator)
		}
	}

	if c.IncludeNulls && !f.HasDefault {
		pred = sq.Or{pred, isNull}
	}
	return pred, nil
}

func orNullIf(pred, isNull sq.Sqlizer, cond bool) sq.Sqlizer {
	if cond {
		return sq.Or{pred, isNull}
	}
	return pred
}

// operandValues merges literals and resolved lists, keeping first-seen order
func operandValues(c Criterion, lists Lists) ([]string, error) {
	var out []string
	for _, o := range c.Operands {
		if o.List == nil {
			out = append(out, o.Literal)
			continue
		}
		values, ok := lists[*o.List]
		if !ok {
			return nil, fmt.Errorf("value list %s was not resolved", o.List)
		}
		out = append(out, values...)
	}
	if c.Operator.IsRange() {
		return out, nil
	}
	out = dedupe(out)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no value for %s", ErrInvalidCriterion, c.Field.Name)
	}
	return out, nil
}

// typedValues converts operand strings to the field's kind so drivers bind
// them with the column type
func typedValues(f *models.Field, raw []string) ([]any, error) {
	out := make([]any, len(raw))
	for i, s := range raw {
		var (
			v   any
			err error
		)
		switch f.Kind {
		case models.KindInteger:
			v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		case models.KindDouble:
			v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		case models.KindBoolean:
			v = s == "1" || strings.EqualFold(s, "true")
		default:
			v = s
		}
		if err != nil {
			return nil, fmt.Errorf("%w: value %q is not a valid %s for %s", ErrInvalidCriterion, s, f.Kind, f.Name)
		}
		out[i] = v
	}
	return out, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func quoteTable(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// JoinClause returns the join attaching a family to the base table of a
func JoinClause(a models.Analysis, f models.TableFamily) string {
	return joinClause(a, f)
}

func joinClause(a models.Analysis, f models.TableFamily) string {
	kind, keys := f.Join()
	base := a.Table(models.FamilySampleAnnotations)
	table := a.Table(f)

	conds := make([]string, len(keys))
	for i, k := range keys {
		conds[i] = pgx.Identifier{table, k}.Sanitize() + " = " + pgx.Identifier{base, k}.Sanitize()
	}
	return string(kind) + " " + quoteTable(table) + " ON " + strings.Join(conds, " AND ")
}
