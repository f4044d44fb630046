package filter

import (
	"fmt"

	"github.com/rebeliceyang/lazyvar/internal/models"
	"gopkg.in/yaml.v3"
)

const codecVersion = 1

type document struct {
	Version int          `yaml:"version"`
	Root    *encodedNode `yaml:"root,omitempty"`
}

type encodedNode struct {
	Op        string            `yaml:"op,omitempty"`
	Left      *encodedNode      `yaml:"left,omitempty"`
	Right     *encodedNode      `yaml:"right,omitempty"`
	Criterion *encodedCriterion `yaml:"criterion,omitempty"`
	Magic     *encodedMagic     `yaml:"magic,omitempty"`
}

type encodedCriterion struct {
	Field        string           `yaml:"field"`
	Operator     string           `yaml:"operator"`
	Operands     []encodedOperand `yaml:"operands,omitempty"`
	NullValue    bool             `yaml:"null_value,omitempty"`
	IncludeNulls bool             `yaml:"include_nulls"`
}

type encodedOperand struct {
	Value *string                    `yaml:"value,omitempty"`
	List  *models.ValueListReference `yaml:"list,omitempty"`
}

type encodedMagic struct {
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

// Encode serializes a tree to YAML. Nodes keep their left/right shape so
// decoding restores the same grouping.
func Encode(t Tree) ([]byte, error) {
	doc := document{Version: codecVersion}
	if !t.IsEmpty() {
		doc.Root = encodeNode(t.arena, t.root)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}
	return data, nil
}

func encodeNode(arena *Arena, id NodeID) *encodedNode {
	n := arena.get(id)
	if n.leaf == nil {
		return &encodedNode{
			Op:    string(n.op),
			Left:  encodeNode(arena, n.left),
			Right: encodeNode(arena, n.right),
		}
	}
	if n.leaf.magic != nil {
		return &encodedNode{Magic: &encodedMagic{Kind: n.leaf.magic.Kind(), Params: n.leaf.magic.Params()}}
	}

	c := n.leaf.custom
	ec := &encodedCriterion{
		Field:        c.Field.Name,
		Operator:     string(c.Operator),
		NullValue:    c.NullValue,
		IncludeNulls: c.IncludeNulls,
	}
	for _, o := range c.Operands {
		if o.List != nil {
			ref := *o.List
			ec.Operands = append(ec.Operands, encodedOperand{List: &ref})
			continue
		}
		v := o.Literal
		ec.Operands = append(ec.Operands, encodedOperand{Value: &v})
	}
	return &encodedNode{Criterion: ec}
}

// Decode rebuilds a tree in arena. Field names unknown to fields decode as
// fields valid for no analysis, so they show up as incompatible leaves
// instead of failing the whole document.
func Decode(data []byte, fields FieldSource, arena *Arena) (Tree, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Tree{}, fmt.Errorf("failed to parse filter: %w", err)
	}
	if doc.Version != codecVersion {
		return Tree{}, fmt.Errorf("unsupported filter version: %d", doc.Version)
	}
	if doc.Root == nil {
		return Empty(arena), nil
	}
	root, err := decodeNode(doc.Root, fields, arena)
	if err != nil {
		return Tree{}, err
	}
	return Tree{arena: arena, root: root}, nil
}

func decodeNode(en *encodedNode, fields FieldSource, arena *Arena) (NodeID, error) {
	switch {
	case en.Criterion != nil:
		c, err := decodeCriterion(en.Criterion, fields)
		if err != nil {
			return NoNode, err
		}
		return arena.leaf(Custom(c)), nil
	case en.Magic != nil:
		m, err := decodeMagic(fields, en.Magic.Kind, en.Magic.Params)
		if err != nil {
			return NoNode, err
		}
		return arena.leaf(Magic(m)), nil
	case en.Left != nil && en.Right != nil:
		op, err := models.ParseLogicalOperator(en.Op)
		if err != nil {
			return NoNode, err
		}
		left, err := decodeNode(en.Left, fields, arena)
		if err != nil {
			return NoNode, err
		}
		right, err := decodeNode(en.Right, fields, arena)
		if err != nil {
			return NoNode, err
		}
		return arena.combine(left, op, right), nil
	default:
		return NoNode, fmt.Errorf("invalid filter node")
	}
}

func decodeCriterion(ec *encodedCriterion, fields FieldSource) (Criterion, error) {
	op, err := models.ParseComparisonOperator(ec.Operator)
	if err != nil {
		return Criterion{}, err
	}
	c := Criterion{
		Field:        ResolveOrOrphan(fields, ec.Field),
		Operator:     op,
		NullValue:    ec.NullValue,
		IncludeNulls: ec.IncludeNulls,
	}
	for _, eo := range ec.Operands {
		switch {
		case eo.List != nil:
			c.Operands = append(c.Operands, Operand{List: eo.List})
		case eo.Value != nil:
			c.Operands = append(c.Operands, Literal(*eo.Value))
		}
	}
	return c, nil
}
