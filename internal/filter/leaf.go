package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

// ErrInvalidCriterion is wrapped by every criterion validation error
var ErrInvalidCriterion = errors.New("invalid criterion")

// FieldSource resolves field names. The field registry implements it.
type FieldSource interface {
	Resolve(name string) (*models.Field, error)
}

// Operand is a literal value or a reference to a user value list
type Operand struct {
	Literal string
	List    *models.ValueListReference
}

// Literal creates a literal operand
func Literal(v string) Operand {
	return Operand{Literal: v}
}

// ListRef creates an operand referring to a user value list
func ListRef(owner, name string) Operand {
	return Operand{List: &models.ValueListReference{Owner: owner, Name: name}}
}

// IsList reports whether the operand refers to a value list
func (o Operand) IsList() bool {
	return o.List != nil
}

func (o Operand) String() string {
	if o.List != nil {
		return "@" + o.List.String()
	}
	return o.Literal
}

// Criterion is a user-built predicate over one field
type Criterion struct {
	Field    *models.Field
	Operator models.ComparisonOperator
	Operands []Operand
	// NullValue compares the field to NULL instead of to the operands
	NullValue bool
	// IncludeNulls also matches rows where the field is NULL. It is ignored
	// for fields with a default, whose NULLs read as the default.
	IncludeNulls bool
}

// Validate checks the operator and operands against the field
func (c Criterion) Validate() error {
	if c.Field == nil {
		return fmt.Errorf("%w: no field", ErrInvalidCriterion)
	}
	if !c.Field.Supports(c.Operator) {
		return fmt.Errorf("%w: operator %s not supported for %s field %s", ErrInvalidCriterion, c.Operator, c.Field.Kind, c.Field.Name)
	}
	if c.NullValue {
		if c.Operator != models.OpEqual && c.Operator != models.OpDifferent {
			return fmt.Errorf("%w: NULL can only be compared with EQUAL or DIFFERENT", ErrInvalidCriterion)
		}
		return nil
	}
	if len(c.Operands) == 0 {
		return fmt.Errorf("%w: no value for %s", ErrInvalidCriterion, c.Field.Name)
	}
	if c.Operator.IsRange() {
		if len(c.Operands) != 2 || c.Operands[0].IsList() || c.Operands[1].IsList() {
			return fmt.Errorf("%w: range on %s needs two literal bounds", ErrInvalidCriterion, c.Field.Name)
		}
	}
	return nil
}

// References returns the value lists used by the criterion, in order
func (c Criterion) References() []models.ValueListReference {
	var refs []models.ValueListReference
	for _, o := range c.Operands {
		if o.List != nil {
			refs = append(refs, *o.List)
		}
	}
	return refs
}

func (c Criterion) String() string {
	if c.Field == nil {
		return "?"
	}
	if c.NullValue {
		return c.Field.Name + " " + c.Operator.Symbol() + " NULL"
	}
	parts := make([]string, len(c.Operands))
	for i, o := range c.Operands {
		parts[i] = o.String()
	}
	s := c.Field.Name + " " + c.Operator.Symbol() + " (" + strings.Join(parts, ", ") + ")"
	if c.IncludeNulls && !c.Field.HasDefault {
		s += " +null"
	}
	return s
}

func (c Criterion) clone() Criterion {
	out := c
	out.Operands = make([]Operand, len(c.Operands))
	for i, o := range c.Operands {
		out.Operands[i] = o
		if o.List != nil {
			ref := *o.List
			out.Operands[i].List = &ref
		}
	}
	return out
}

func (c Criterion) equal(other Criterion) bool {
	if c.Field != other.Field && (c.Field == nil || other.Field == nil || c.Field.Name != other.Field.Name) {
		return false
	}
	if c.Operator != other.Operator || c.NullValue != other.NullValue || c.IncludeNulls != other.IncludeNulls {
		return false
	}
	if len(c.Operands) != len(other.Operands) {
		return false
	}
	for i, o := range c.Operands {
		p := other.Operands[i]
		if o.Literal != p.Literal || o.IsList() != p.IsList() {
			return false
		}
		if o.List != nil && *o.List != *p.List {
			return false
		}
	}
	return true
}

// Leaf is one node of a filter tree: either a user criterion or a magic
// predicate that is compiled as a whole
type Leaf struct {
	custom *Criterion
	magic  MagicPredicate
}

// Custom wraps a criterion. The criterion is copied so later changes to the
// caller's operands do not leak into the tree.
func Custom(c Criterion) Leaf {
	cc := c.clone()
	return Leaf{custom: &cc}
}

// Magic wraps a prebuilt predicate
func Magic(m MagicPredicate) Leaf {
	return Leaf{magic: m}
}

// Criterion returns a copy of the criterion of a custom leaf
func (l Leaf) Criterion() (Criterion, bool) {
	if l.custom == nil {
		return Criterion{}, false
	}
	return l.custom.clone(), true
}

// IsMagic reports whether the leaf is a magic predicate
func (l Leaf) IsMagic() bool {
	return l.magic != nil
}

// MagicKind returns the kind of a magic leaf
func (l Leaf) MagicKind() string {
	if l.magic == nil {
		return ""
	}
	return l.magic.Kind()
}

// Fields returns the fields the leaf reads
func (l Leaf) Fields() []*models.Field {
	if l.magic != nil {
		return l.magic.Fields()
	}
	if l.custom != nil && l.custom.Field != nil {
		return []*models.Field{l.custom.Field}
	}
	return nil
}

// CompatibleWith reports whether every field of the leaf exists in a
func (l Leaf) CompatibleWith(a models.Analysis) bool {
	for _, f := range l.Fields() {
		if !f.HasAnalysis(a) {
			return false
		}
	}
	return true
}

// IncompatibleFields returns the names of the leaf's fields missing from a
func (l Leaf) IncompatibleFields(a models.Analysis) []string {
	var names []string
	for _, f := range l.Fields() {
		if !f.HasAnalysis(a) {
			names = append(names, f.Name)
		}
	}
	return names
}

// References returns the value lists the leaf uses
func (l Leaf) References() []models.ValueListReference {
	if l.custom != nil {
		return l.custom.References()
	}
	return nil
}

func (l Leaf) String() string {
	if l.magic != nil {
		return l.magic.String()
	}
	if l.custom != nil {
		return l.custom.String()
	}
	return "<empty>"
}

func (l Leaf) equal(other Leaf) bool {
	switch {
	case l.custom != nil && other.custom != nil:
		return l.custom.equal(*other.custom)
	case l.magic != nil && other.magic != nil:
		return magicEqual(l.magic, other.magic)
	default:
		return false
	}
}
