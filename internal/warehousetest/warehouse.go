// Package warehousetest builds a small sqlite variant warehouse for tests.
package warehousetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// The two analyses of the fixture. cadd_phred only exists in Exome.
var (
	Exome = models.Analysis{Name: "exome_hg38", Reference: "GRCh38", VariantCaller: "gatk"}
	Panel = models.Analysis{Name: "panel_hg19", Reference: "GRCh37", VariantCaller: "torrent"}
)

// Owner of the seeded value lists
const Owner = "alice"

var schema = []string{
	`CREATE TABLE analyses (analysis TEXT PRIMARY KEY, reference TEXT, variant_caller TEXT)`,
	`CREATE TABLE fields (
		field TEXT PRIMARY KEY,
		table_family TEXT NOT NULL,
		sql_datatype TEXT NOT NULL,
		description TEXT,
		default_value TEXT,
		sample_related INTEGER NOT NULL DEFAULT 0,
		analyses TEXT NOT NULL)`,
	`CREATE TABLE projects (project_id INTEGER PRIMARY KEY, sample TEXT NOT NULL, pathology TEXT)`,
	`CREATE TABLE user_value_lists (owner TEXT NOT NULL, name TEXT NOT NULL, value TEXT NOT NULL)`,
}

var perAnalysis = []string{
	`CREATE TABLE %[1]s_sample_annotations (
		variant_sample_id INTEGER PRIMARY KEY, project_id INTEGER, chr TEXT, pos INTEGER, length INTEGER,
		reference TEXT, alternative TEXT, gene_symbol TEXT, region_id INTEGER,
		read_depth INTEGER, zygosity TEXT, evaluation INTEGER)`,
	`CREATE TABLE %[1]s_custom_annotations (
		chr TEXT, pos INTEGER, length INTEGER, reference TEXT, alternative TEXT, gene_symbol TEXT,
		project_id INTEGER, comment TEXT)`,
	`CREATE TABLE %[1]s_gene_annotations (gene_symbol TEXT PRIMARY KEY, gene_family TEXT)`,
	`CREATE TABLE %[1]s_coverage (region_id INTEGER PRIMARY KEY, mean_depth REAL)`,
}

var fieldRows = [][]any{
	{"variant_sample_id", "sample_annotations", "INT", "Variant id", nil, 0, "exome_hg38,panel_hg19"},
	{"project_id", "sample_annotations", "INT", "Project", nil, 1, "exome_hg38,panel_hg19"},
	{"sample", "projects", "VARCHAR(255)", "Sample name", nil, 1, "exome_hg38,panel_hg19"},
	{"pathology", "projects", "VARCHAR(255)", "Pathology", nil, 1, "exome_hg38,panel_hg19"},
	{"chr", "sample_annotations", "VARCHAR(2)", "Chromosome", nil, 0, "exome_hg38,panel_hg19"},
	{"pos", "sample_annotations", "INT", "Position", nil, 0, "exome_hg38,panel_hg19"},
	{"length", "sample_annotations", "INT", "Length", nil, 0, "exome_hg38,panel_hg19"},
	{"reference", "sample_annotations", "VARCHAR(1000)", "Reference allele", nil, 0, "exome_hg38,panel_hg19"},
	{"alternative", "sample_annotations", "VARCHAR(1000)", "Alternative allele", nil, 0, "exome_hg38,panel_hg19"},
	{"gene_symbol", "sample_annotations", "VARCHAR(255)", "Gene", nil, 0, "exome_hg38,panel_hg19"},
	{"read_depth", "sample_annotations", "INT", "Read depth", nil, 1, "exome_hg38,panel_hg19"},
	{"zygosity", "sample_annotations", "VARCHAR(20)", "Zygosity", nil, 1, "exome_hg38,panel_hg19"},
	{"evaluation", "sample_annotations", "INT", "Evaluation", "0", 1, "exome_hg38,panel_hg19"},
	{"cadd_phred", "static_annotations", "DOUBLE", "CADD phred", nil, 0, "exome_hg38"},
	{"consequence", "static_annotations", "VARCHAR(255)", "Consequence", nil, 0, "exome_hg38,panel_hg19"},
	{"comment", "custom_annotations", "TEXT", "Comment", nil, 1, "exome_hg38,panel_hg19"},
	{"gene_family", "gene_annotations", "VARCHAR(255)", "Gene family", nil, 0, "exome_hg38,panel_hg19"},
	{"mean_depth", "coverage", "DOUBLE", "Mean region depth", nil, 1, "exome_hg38"},
}

// variant_sample_id, project_id, chr, pos, length, reference, alternative,
// gene_symbol, region_id, read_depth, zygosity, evaluation
var variantRows = [][]any{
	{1, 1, "17", 41196312, 1, "A", "G", "BRCA1", 1, 40, "Heterozygous", 1},
	{2, 1, "17", 41197000, 1, "C", "T", "BRCA1", 1, 12, "Homozygous", nil},
	{3, 2, "17", 41196312, 1, "A", "G", "BRCA1", 1, 55, "Heterozygous", 2},
	{4, 2, "13", 32315000, 1, "G", "A", "BRCA2", 2, 8, "Heterozygous", nil},
	{5, 3, "17", 7675000, 1, "T", "C", "TP53", 3, 30, "Homozygous", 0},
	{6, 3, "13", 32315000, 1, "G", "A", "BRCA2", 2, 25, "Heterozygous", 1},
	{7, 1, "7", 117559590, 3, "ATC", "A", "CFTR", 4, 60, "Heterozygous", nil},
	{8, 2, "7", 117559590, 3, "ATC", "A", "CFTR", 4, 18, "Homozygous", 3},
}

// Sample of each project_id
var Samples = map[int]string{1: "S1", 2: "S2", 3: "S3"}

// Open creates a seeded warehouse in a temporary directory and returns a
// gateway serving it as both the main and the users schema.
func Open(t testing.TB) *connection.Gateway {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.db")

	g, err := connection.Open(ctx, models.Parameters{
		Driver:  "sqlite",
		Schemas: map[string]string{"main": path, "users": path},
	}, nil, nil)
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	t.Cleanup(g.Close)

	if err := Seed(ctx, g); err != nil {
		t.Fatalf("failed to seed warehouse: %v", err)
	}
	return g
}

// Seed creates and fills the fixture tables
func Seed(ctx context.Context, g *connection.Gateway) error {
	exec := func(sql string, args ...any) error {
		_, err := g.Exec(ctx, models.SchemaMain, sql, args...)
		return err
	}

	for _, stmt := range schema {
		if err := exec(stmt); err != nil {
			return err
		}
	}
	for _, a := range []models.Analysis{Exome, Panel} {
		if err := exec(`INSERT INTO analyses VALUES (?, ?, ?)`, a.Name, a.Reference, a.VariantCaller); err != nil {
			return err
		}
		for _, stmt := range perAnalysis {
			if err := exec(fmt.Sprintf(stmt, a.Name)); err != nil {
				return err
			}
		}
	}
	if err := exec(`CREATE TABLE exome_hg38_static_annotations (
		chr TEXT, pos INTEGER, length INTEGER, reference TEXT, alternative TEXT, gene_symbol TEXT,
		cadd_phred REAL, consequence TEXT)`); err != nil {
		return err
	}
	if err := exec(`CREATE TABLE panel_hg19_static_annotations (
		chr TEXT, pos INTEGER, length INTEGER, reference TEXT, alternative TEXT, gene_symbol TEXT,
		consequence TEXT)`); err != nil {
		return err
	}

	for _, row := range fieldRows {
		if err := exec(`INSERT INTO fields VALUES (?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
			return err
		}
	}
	for id := 1; id <= 3; id++ {
		if err := exec(`INSERT INTO projects VALUES (?, ?, ?)`, id, Samples[id], "hereditary cancer"); err != nil {
			return err
		}
	}

	for _, row := range variantRows {
		if err := exec(`INSERT INTO exome_hg38_sample_annotations VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
			return err
		}
		if id := row[0].(int); id <= 5 {
			if err := exec(`INSERT INTO panel_hg19_sample_annotations VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
				return err
			}
		}
	}

	static := [][]any{
		{"17", 41196312, 1, "A", "G", "BRCA1", 25.1, "missense"},
		{"17", 41197000, 1, "C", "T", "BRCA1", 12.0, "synonymous"},
		{"13", 32315000, 1, "G", "A", "BRCA2", 31.5, "stop_gained"},
		{"17", 7675000, 1, "T", "C", "TP53", nil, "missense"},
		{"7", 117559590, 3, "ATC", "A", "CFTR", 22.0, "frameshift"},
	}
	for _, row := range static {
		if err := exec(`INSERT INTO exome_hg38_static_annotations VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, row...); err != nil {
			return err
		}
		panelRow := append(append([]any(nil), row[:6]...), row[7])
		if err := exec(`INSERT INTO panel_hg19_static_annotations VALUES (?, ?, ?, ?, ?, ?, ?)`, panelRow...); err != nil {
			return err
		}
	}

	for _, a := range []models.Analysis{Exome, Panel} {
		if err := exec(fmt.Sprintf(`INSERT INTO %s_custom_annotations VALUES ('17', 41196312, 1, 'A', 'G', 'BRCA1', 1, 'reviewed')`, a.Name)); err != nil {
			return err
		}
		if err := exec(fmt.Sprintf(`INSERT INTO %s_gene_annotations VALUES ('BRCA1', 'BRCT'), ('BRCA2', 'BRCT'), ('TP53', 'p53')`, a.Name)); err != nil {
			return err
		}
		if err := exec(fmt.Sprintf(`INSERT INTO %s_coverage VALUES (1, 48.5), (2, 31.0), (3, 20.25), (4, 60.0)`, a.Name)); err != nil {
			return err
		}
	}

	lists := map[string][]string{
		"brca":  {"brca1", "BRCA2"},
		"trio":  {"S1", "S2"},
		"tp53":  {"TP53"},
		"depth": {"40"},
	}
	for name, values := range lists {
		for _, v := range values {
			if err := exec(`INSERT INTO user_value_lists VALUES (?, ?, ?)`, Owner, name, v); err != nil {
				return err
			}
		}
	}

	return nil
}
