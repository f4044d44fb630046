package filter

import (
	"strings"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := newTestFields()
	ivs, err := NewIntervals(f, "brca", []Interval{{Chromosome: "17", Start: 1, End: 100}}, false)
	if err != nil {
		t.Fatal(err)
	}
	common, err := NewCommonToSamples(f, []string{"S1", "S2"})
	if err != nil {
		t.Fatal(err)
	}
	specific, err := NewSampleSpecificVariants(f, []string{"S1", "S2"}, []string{"S3"}, true)
	if err != nil {
		t.Fatal(err)
	}
	genes, err := NewCommonGeneVariants(f, []string{"S1", "S2", "S3"}, 2, AtMost, 3)
	if err != nil {
		t.Fatal(err)
	}

	tree := NewTree(NewArena(), Custom(Criterion{
		Field:    f["gene_symbol"],
		Operator: models.OpEqual,
		Operands: []Operand{Literal("TP53"), ListRef("alice", "brca")},
	})).
		AddLeaf(Custom(Criterion{Field: f["read_depth"], Operator: models.OpSmaller, Operands: []Operand{Literal("10")}, IncludeNulls: true}), models.And).
		AddLeaf(Magic(ivs), models.Or).
		AddLeaf(Magic(common), models.And).
		AddLeaf(Magic(specific), models.Or).
		AddLeaf(Magic(genes), models.And)

	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data, f, NewArena())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !got.Equal(tree) {
		t.Errorf("decoded tree = %s\nwant %s", got, tree)
	}
	if got.String() != tree.String() {
		t.Errorf("String() = %s, want %s", got, tree)
	}
}

func TestDecodeEmpty(t *testing.T) {
	data, err := Encode(Tree{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data, newTestFields(), NewArena())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !got.IsEmpty() {
		t.Errorf("expected empty tree, got %s", got)
	}
}

func TestDecodeUnknownFieldIsIncompatible(t *testing.T) {
	doc := `
version: 1
root:
  op: AND
  left:
    criterion:
      field: gene_symbol
      operator: EQUAL
      operands:
        - value: BRCA1
  right:
    criterion:
      field: retired_score
      operator: GREATER
      operands:
        - value: "3"
`
	tree, err := Decode([]byte(doc), newTestFields(), NewArena())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tree.CheckFieldCompatibility(exome) {
		t.Error("a leaf on an unknown field should be incompatible with every analysis")
	}
	pruned, removed := tree.Prune(exome)
	if len(removed) != 1 || pruned.String() != "gene_symbol = (BRCA1)" {
		t.Errorf("Prune() = %s, removed %d", pruned, len(removed))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"version", "version: 7\n", "unsupported filter version"},
		{"operator", "version: 1\nroot:\n  criterion:\n    field: chr\n    operator: LIKE\n", "unsupported operator"},
		{"logical operator", "version: 1\nroot:\n  op: XOR\n  left: {criterion: {field: chr, operator: EQUAL}}\n  right: {criterion: {field: pos, operator: EQUAL}}\n", "unsupported logical operator"},
		{"magic kind", "version: 1\nroot:\n  magic:\n    kind: nearby\n    params: {}\n", "unknown magic filter kind"},
		{"empty node", "version: 1\nroot:\n  op: AND\n", "invalid filter node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), newTestFields(), NewArena())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Decode() error = %v, want %q", err, tt.want)
			}
		})
	}
}
