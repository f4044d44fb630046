package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/fields"
	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/rebeliceyang/lazyvar/internal/switcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exome = models.Analysis{Name: "exome_hg38"}
	panel = models.Analysis{Name: "panel_hg19"}
)

func testRegistry() *fields.Registry {
	return fields.New([]models.Analysis{exome, panel}, []*models.Field{
		models.NewField("gene_symbol", models.FamilySampleAnnotations, "VARCHAR(255)", exome.Name, panel.Name),
		models.NewField("read_depth", models.FamilySampleAnnotations, "INT", exome.Name, panel.Name),
		models.NewField("cadd_phred", models.FamilyStaticAnnotations, "DOUBLE", exome.Name),
	})
}

func testWorkspace(t *testing.T, r *fields.Registry) switcher.Workspace {
	t.Helper()
	field := func(name string) *models.Field {
		f, err := r.Resolve(name)
		require.NoError(t, err)
		return f
	}
	tree := filter.NewTree(filter.NewArena(), filter.Custom(filter.Criterion{
		Field: field("gene_symbol"), Operator: models.OpEqual,
		Operands: []filter.Operand{filter.Literal("BRCA1"), filter.ListRef("alice", "brca")},
	})).AddLeaf(filter.Custom(filter.Criterion{
		Field: field("cadd_phred"), Operator: models.OpGreaterOrEqual, Operands: []filter.Operand{filter.Literal("20")},
	}), models.And)

	return switcher.Workspace{
		Filter: tree,
		Highlighting: []models.HighlightingRule{
			{Field: field("read_depth"), Operator: models.OpSmaller, Values: []string{"10"}, Mode: models.HighlightCell, Color: "#ff0000"},
			{Field: field("cadd_phred"), Mode: models.HighlightHeatMap},
		},
		Sorting: []models.SortingCriterion{{Field: field("cadd_phred"), Direction: models.Descending}},
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	r := testRegistry()
	ws := testWorkspace(t, r)

	data, err := Serialize(ws)
	require.NoError(t, err)

	got, err := Deserialize(data, r, exome)
	require.NoError(t, err)
	assert.True(t, got.Filter.Equal(ws.Filter), "filter = %s", got.Filter)
	assert.Equal(t, ws.Highlighting, got.Highlighting)
	assert.Equal(t, ws.Sorting, got.Sorting)
}

func TestDeserializeReportsIncompatibleArtifacts(t *testing.T) {
	r := testRegistry()
	data, err := Serialize(testWorkspace(t, r))
	require.NoError(t, err)

	ws, err := Deserialize(data, r, panel)

	var incompatible *filter.IncompatibleFieldError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "filter", incompatible.Artifact)
	assert.Equal(t, []string{"cadd_phred"}, incompatible.Fields)
	assert.Equal(t, 2, ws.Filter.LeafCount(), "the full tree is returned")
	assert.Len(t, ws.Highlighting, 2)
	assert.Len(t, switcher.Check(panel, ws), 3)
}

func TestDeserializeUnknownField(t *testing.T) {
	doc := `
version: 1
sorting:
  - field: retired_score
    direction: ASC
`
	ws, err := Deserialize([]byte(doc), testRegistry(), exome)
	var incompatible *filter.IncompatibleFieldError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []string{"retired_score"}, incompatible.Fields)
	assert.True(t, ws.Filter.IsEmpty())
}

func TestDeserializeErrors(t *testing.T) {
	r := testRegistry()
	for name, doc := range map[string]string{
		"version":   "version: 2\n",
		"mode":      "version: 1\nhighlighting:\n  - {field: read_depth, mode: blink}\n",
		"operator":  "version: 1\nhighlighting:\n  - {field: read_depth, mode: cell, operator: LIKE}\n",
		"direction": "version: 1\nsorting:\n  - {field: read_depth, direction: UP}\n",
		"yaml":      "version: [\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Deserialize([]byte(doc), r, exome)
			require.Error(t, err)
			var incompatible *filter.IncompatibleFieldError
			assert.False(t, errors.As(err, &incompatible))
		})
	}
}

func TestStoreLifecycle(t *testing.T) {
	dir := t.TempDir()
	r := testRegistry()
	ws := testWorkspace(t, r)

	s, err := NewStore(dir, "Alice Smith")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "profiles", "alice-smith.yaml"), s.Path())

	entry, err := s.Save("BRCA rare", "rare BRCA variants", []string{"brca"}, exome, ws)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)

	_, err = s.Save("brca RARE", "", nil, exome, ws)
	assert.Error(t, err, "names are unique ignoring case")

	empty := switcher.Workspace{Filter: filter.Empty(filter.NewArena())}
	other, err := s.Save("Empty", "", []string{"scratch"}, panel, empty)
	require.NoError(t, err)

	got, err := s.Open(entry.ID, r, exome)
	require.NoError(t, err)
	assert.True(t, got.Filter.Equal(ws.Filter))

	_, err = s.Open(entry.ID, r, panel)
	var incompatible *filter.IncompatibleFieldError
	assert.ErrorAs(t, err, &incompatible, "opening under another analysis reports incompatibility")

	reloaded, err := NewStore(dir, "Alice Smith")
	require.NoError(t, err)
	require.Len(t, reloaded.All(), 2)
	e, err := reloaded.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.UsageCount)
	assert.Equal(t, entry.ID, reloaded.MostUsed(1)[0].ID)
	assert.Equal(t, entry.ID, reloaded.Recent(1)[0].ID)

	assert.Len(t, reloaded.Search("SCRATCH"), 1)
	assert.Len(t, reloaded.Search("hg"), 2)

	require.NoError(t, reloaded.Update(other.ID, "Scratch", "", nil, exome, empty))
	assert.Error(t, reloaded.Update(other.ID, "brca rare", "", nil, exome, empty))

	path, err := reloaded.ExportToJSON("")
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	require.NoError(t, reloaded.Delete(other.ID))
	assert.Error(t, reloaded.Delete(other.ID))
	assert.Len(t, reloaded.All(), 1)
}

func TestNewStoreRejectsBlankUser(t *testing.T) {
	_, err := NewStore(t.TempDir(), "  ")
	assert.Error(t, err)
}
