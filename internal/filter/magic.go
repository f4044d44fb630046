package filter

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/rebeliceyang/lazyvar/internal/models"
)

// Kinds of magic predicates
const (
	KindIntervals       = "intervals"
	KindListOfVariants  = "list_of_variants"
	KindCommonToSamples = "common_to_samples"
	KindSampleSpecific  = "sample_specific_variants"
	KindCommonGene      = "common_gene_variants"
)

// MagicPredicate is a prebuilt filter compiled as one unit. The tree never
// looks inside it beyond the fields it reads.
type MagicPredicate interface {
	Kind() string
	// Fields returns every field the predicate reads
	Fields() []*models.Field
	// Compile returns the predicate with ? placeholders
	Compile(a models.Analysis) (sq.Sqlizer, error)
	// Params returns the values needed to rebuild the predicate
	Params() map[string]any
	String() string
}

func magicEqual(a, b MagicPredicate) bool {
	return a.Kind() == b.Kind() && reflect.DeepEqual(a.Params(), b.Params())
}

// ResolveOrOrphan returns the named field, or a field valid for no analysis
// when the catalog does not know it. Orphans fail every compatibility check.
func ResolveOrOrphan(fields FieldSource, name string) *models.Field {
	if f, err := fields.Resolve(name); err == nil {
		return f
	}
	return models.NewField(name, models.FamilySampleAnnotations, "")
}

func resolveAll(fields FieldSource, names ...string) []*models.Field {
	out := make([]*models.Field, len(names))
	for i, n := range names {
		out[i] = ResolveOrOrphan(fields, n)
	}
	return out
}

// Interval is a closed 1-based chromosome range
type Interval struct {
	Chromosome string
	Start      int64
	End        int64
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s:%d-%d", iv.Chromosome, iv.Start, iv.End)
}

// ParseInterval reads "chr:start-end"
func ParseInterval(s string) (Interval, error) {
	chr, rng, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || chr == "" {
		return Interval{}, fmt.Errorf("invalid interval %q", s)
	}
	startStr, endStr, ok := strings.Cut(rng, "-")
	if !ok {
		endStr = startStr
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval start %q: %w", s, err)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid interval end %q: %w", s, err)
	}
	if end < start {
		return Interval{}, fmt.Errorf("invalid interval %q: end before start", s)
	}
	return Interval{Chromosome: chr, Start: start, End: end}, nil
}

// Intervals keeps variants inside (or outside) a set of genomic ranges
type Intervals struct {
	name      string
	intervals []Interval
	exclude   bool
	chr, pos  *models.Field
}

// NewIntervals creates an interval predicate
func NewIntervals(fields FieldSource, name string, intervals []Interval, exclude bool) (*Intervals, error) {
	if len(intervals) == 0 {
		return nil, fmt.Errorf("%w: no interval given", ErrInvalidCriterion)
	}
	f := resolveAll(fields, models.FieldChromosome, models.FieldPosition)
	return &Intervals{
		name:      name,
		intervals: append([]Interval(nil), intervals...),
		exclude:   exclude,
		chr:       f[0],
		pos:       f[1],
	}, nil
}

func (p *Intervals) Kind() string            { return KindIntervals }
func (p *Intervals) Fields() []*models.Field { return []*models.Field{p.chr, p.pos} }

func (p *Intervals) Compile(a models.Analysis) (sq.Sqlizer, error) {
	chr := p.chr.WhereExpression(a)
	pos := p.pos.WhereExpression(a)

	anyOf := sq.Or{}
	for _, iv := range p.intervals {
		anyOf = append(anyOf, sq.And{
			sq.Eq{chr: iv.Chromosome},
			sq.Expr(pos+" BETWEEN ? AND ?", iv.Start, iv.End),
		})
	}
	if !p.exclude {
		return anyOf, nil
	}
	return negate(anyOf)
}

func (p *Intervals) Params() map[string]any {
	ivs := make([]string, len(p.intervals))
	for i, iv := range p.intervals {
		ivs[i] = iv.String()
	}
	return map[string]any{"name": p.name, "exclude": p.exclude, "intervals": ivs}
}

func (p *Intervals) String() string {
	where := "inside"
	if p.exclude {
		where = "outside"
	}
	label := p.name
	if label == "" {
		label = fmt.Sprintf("%d intervals", len(p.intervals))
	}
	return fmt.Sprintf("variants %s %s", where, label)
}

// VariantKey identifies a variant independently of the sample carrying it
type VariantKey struct {
	Chromosome  string
	Position    int64
	Reference   string
	Alternative string
}

func (k VariantKey) String() string {
	return fmt.Sprintf("%s-%d-%s-%s", k.Chromosome, k.Position, k.Reference, k.Alternative)
}

// ParseVariantKey reads "chr-pos-ref-alt"
func ParseVariantKey(s string) (VariantKey, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 4 {
		return VariantKey{}, fmt.Errorf("invalid variant %q", s)
	}
	pos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return VariantKey{}, fmt.Errorf("invalid variant position %q: %w", s, err)
	}
	return VariantKey{Chromosome: parts[0], Position: pos, Reference: parts[2], Alternative: parts[3]}, nil
}

// ListOfVariants keeps an explicit set of variants
type ListOfVariants struct {
	variants []VariantKey
	fields   []*models.Field
}

// NewListOfVariants creates a variant list predicate
func NewListOfVariants(fields FieldSource, variants []VariantKey) (*ListOfVariants, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no variant given", ErrInvalidCriterion)
	}
	return &ListOfVariants{
		variants: append([]VariantKey(nil), variants...),
		fields:   resolveAll(fields, models.FieldChromosome, models.FieldPosition, models.FieldReference, models.FieldAlternative),
	}, nil
}

func (p *ListOfVariants) Kind() string            { return KindListOfVariants }
func (p *ListOfVariants) Fields() []*models.Field { return p.fields }

func (p *ListOfVariants) Compile(a models.Analysis) (sq.Sqlizer, error) {
	chr := p.fields[0].WhereExpression(a)
	pos := p.fields[1].WhereExpression(a)
	ref := p.fields[2].WhereExpression(a)
	alt := p.fields[3].WhereExpression(a)

	anyOf := sq.Or{}
	for _, v := range p.variants {
		anyOf = append(anyOf, sq.And{
			sq.Eq{chr: v.Chromosome},
			sq.Eq{pos: v.Position},
			sq.Eq{ref: v.Reference},
			sq.Eq{alt: v.Alternative},
		})
	}
	return anyOf, nil
}

func (p *ListOfVariants) Params() map[string]any {
	keys := make([]string, len(p.variants))
	for i, v := range p.variants {
		keys[i] = v.String()
	}
	return map[string]any{"variants": keys}
}

func (p *ListOfVariants) String() string {
	return fmt.Sprintf("list of %d variants", len(p.variants))
}

// CommonToSamples keeps variants carried by every one of a set of samples
type CommonToSamples struct {
	samples []string
	keys    []*models.Field
	sample  *models.Field
}

var variantKeyFields = []string{
	models.FieldChromosome, models.FieldPosition, models.FieldLength,
	models.FieldReference, models.FieldAlternative,
}

// NewCommonToSamples creates a predicate for variants shared by all samples
func NewCommonToSamples(fields FieldSource, samples []string) (*CommonToSamples, error) {
	set := dedupe(samples)
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no sample given", ErrInvalidCriterion)
	}
	sort.Strings(set)
	return &CommonToSamples{
		samples: set,
		keys:    resolveAll(fields, variantKeyFields...),
		sample:  ResolveOrOrphan(fields, models.FieldSample),
	}, nil
}

func (p *CommonToSamples) Kind() string { return KindCommonToSamples }

func (p *CommonToSamples) Fields() []*models.Field {
	return append(append([]*models.Field(nil), p.keys...), p.sample)
}

func (p *CommonToSamples) Compile(a models.Analysis) (sq.Sqlizer, error) {
	keys, subSQL, args, err := carriedBy(a, p.keys, p.sample, p.samples, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build common variants subquery: %w", err)
	}
	// inner table names shadow the outer ones inside the subquery
	return sq.Expr("("+keys+") IN ("+subSQL+")", args...), nil
}

func (p *CommonToSamples) Params() map[string]any {
	return map[string]any{"samples": append([]string(nil), p.samples...)}
}

func (p *CommonToSamples) String() string {
	return "variants common to " + strings.Join(p.samples, ", ")
}

// carriedBy selects the keys of variants found in any of samples, or in all
// of them when all is set. It returns the key columns and the subquery.
func carriedBy(a models.Analysis, keys []*models.Field, sample *models.Field, samples []string, all bool) (string, string, []any, error) {
	cols := make([]string, len(keys))
	for i, f := range keys {
		cols[i] = f.WhereExpression(a)
	}
	col := sample.WhereExpression(a)

	sub := fromSampleAnnotations(sq.Select(cols...), a, sample).
		Where(sq.Eq{col: samples}).
		GroupBy(cols...)
	if all {
		sub = sub.Having("COUNT(DISTINCT "+col+") = ?", len(samples))
	}
	subSQL, args, err := sub.ToSql()
	if err != nil {
		return "", "", nil, err
	}
	return strings.Join(cols, ", "), subSQL, args, nil
}

// fromSampleAnnotations adds the base table and the joins needed by fields
func fromSampleAnnotations(b sq.SelectBuilder, a models.Analysis, fields ...*models.Field) sq.SelectBuilder {
	b = b.From(quoteTable(a.Table(models.FamilySampleAnnotations)))
	seen := map[models.TableFamily]bool{models.FamilySampleAnnotations: true}
	for _, f := range fields {
		if seen[f.Family] {
			continue
		}
		seen[f.Family] = true
		b = b.JoinClause(joinClause(a, f.Family))
	}
	return b
}

// SampleSpecificVariants keeps the variants of some samples that none of
// another set of samples carries
type SampleSpecificVariants struct {
	keep    []string
	exclude []string
	all     bool
	keys    []*models.Field
	sample  *models.Field
}

// NewSampleSpecificVariants creates a predicate keeping variants found in
// keep (in every one of them when all is set) and absent from exclude
func NewSampleSpecificVariants(fields FieldSource, keep, exclude []string, all bool) (*SampleSpecificVariants, error) {
	keepSet, excludeSet := dedupe(keep), dedupe(exclude)
	if len(keepSet) == 0 {
		return nil, fmt.Errorf("%w: no sample to keep", ErrInvalidCriterion)
	}
	for _, s := range excludeSet {
		if slices.Contains(keepSet, s) {
			return nil, fmt.Errorf("%w: sample %s is both kept and excluded", ErrInvalidCriterion, s)
		}
	}
	sort.Strings(keepSet)
	sort.Strings(excludeSet)
	return &SampleSpecificVariants{
		keep:    keepSet,
		exclude: excludeSet,
		all:     all,
		keys:    resolveAll(fields, variantKeyFields...),
		sample:  ResolveOrOrphan(fields, models.FieldSample),
	}, nil
}

func (p *SampleSpecificVariants) Kind() string { return KindSampleSpecific }

func (p *SampleSpecificVariants) Fields() []*models.Field {
	return append(append([]*models.Field(nil), p.keys...), p.sample)
}

func (p *SampleSpecificVariants) Compile(a models.Analysis) (sq.Sqlizer, error) {
	keys, keepSQL, keepArgs, err := carriedBy(a, p.keys, p.sample, p.keep, p.all)
	if err != nil {
		return nil, fmt.Errorf("failed to build kept variants subquery: %w", err)
	}
	pred := sq.And{
		sq.Eq{p.sample.WhereExpression(a): p.keep},
		sq.Expr("("+keys+") IN ("+keepSQL+")", keepArgs...),
	}
	if len(p.exclude) > 0 {
		_, exclSQL, exclArgs, err := carriedBy(a, p.keys, p.sample, p.exclude, false)
		if err != nil {
			return nil, fmt.Errorf("failed to build excluded variants subquery: %w", err)
		}
		pred = append(pred, sq.Expr("("+keys+") NOT IN ("+exclSQL+")", exclArgs...))
	}
	return pred, nil
}

func (p *SampleSpecificVariants) Params() map[string]any {
	return map[string]any{
		"keep":    append([]string(nil), p.keep...),
		"exclude": append([]string(nil), p.exclude...),
		"all":     p.all,
	}
}

func (p *SampleSpecificVariants) String() string {
	of := "union"
	if p.all {
		of = "intersection"
	}
	s := fmt.Sprintf("variants of the %s of %s", of, strings.Join(p.keep, ", "))
	if len(p.exclude) > 0 {
		s += " absent from " + strings.Join(p.exclude, ", ")
	}
	return s
}

// GeneThreshold bounds the number of variants each sample has in a gene
type GeneThreshold string

const (
	AtLeast GeneThreshold = "at_least"
	AtMost  GeneThreshold = "at_most"
	Exactly GeneThreshold = "exactly"
)

// ParseGeneThreshold reads a stored threshold
func ParseGeneThreshold(s string) (GeneThreshold, error) {
	switch t := GeneThreshold(strings.ToLower(strings.TrimSpace(s))); t {
	case AtLeast, AtMost, Exactly:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown gene threshold %q", ErrInvalidCriterion, s)
	}
}

func (t GeneThreshold) String() string {
	return strings.ReplaceAll(string(t), "_", " ")
}

// CommonGeneVariants keeps the variants of samples in genes mutated in at
// least minCommon of them, where each carrier has a bounded number of
// variants in the gene
type CommonGeneVariants struct {
	samples   []string
	minCommon int
	threshold GeneThreshold
	variants  int
	gene      *models.Field
	sample    *models.Field
}

// NewCommonGeneVariants creates a common gene predicate. A minCommon of
// zero requires every sample to carry the gene.
func NewCommonGeneVariants(fields FieldSource, samples []string, minCommon int, threshold GeneThreshold, variants int) (*CommonGeneVariants, error) {
	set := dedupe(samples)
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no sample given", ErrInvalidCriterion)
	}
	if minCommon == 0 {
		minCommon = len(set)
	}
	if minCommon < 0 || minCommon > len(set) {
		return nil, fmt.Errorf("%w: %d common samples requested out of %d", ErrInvalidCriterion, minCommon, len(set))
	}
	if variants < 0 {
		return nil, fmt.Errorf("%w: negative variant count", ErrInvalidCriterion)
	}
	if _, err := ParseGeneThreshold(string(threshold)); err != nil {
		return nil, err
	}
	sort.Strings(set)
	return &CommonGeneVariants{
		samples:   set,
		minCommon: minCommon,
		threshold: threshold,
		variants:  variants,
		gene:      ResolveOrOrphan(fields, models.FieldGeneSymbol),
		sample:    ResolveOrOrphan(fields, models.FieldSample),
	}, nil
}

func (p *CommonGeneVariants) Kind() string            { return KindCommonGene }
func (p *CommonGeneVariants) Fields() []*models.Field { return []*models.Field{p.gene, p.sample} }

func (p *CommonGeneVariants) Compile(a models.Analysis) (sq.Sqlizer, error) {
	gene := p.gene.WhereExpression(a)
	sample := p.sample.WhereExpression(a)

	perSample := fromSampleAnnotations(sq.Select(gene+" AS gene", sample+" AS carrier", "COUNT(*) AS hits"), a, p.gene, p.sample).
		Where(sq.Eq{sample: p.samples}).
		GroupBy(gene, sample)

	genes := sq.Select("gene").
		FromSelect(perSample, "per_sample").
		GroupBy("gene").
		Having("COUNT(*) >= ?", p.minCommon)
	switch p.threshold {
	case AtLeast:
		genes = genes.Having("MIN(hits) >= ?", p.variants)
	case AtMost:
		genes = genes.Having("MAX(hits) <= ?", p.variants)
	case Exactly:
		genes = genes.Having("MIN(hits) = ?", p.variants).Having("MAX(hits) = ?", p.variants)
	}

	subSQL, args, err := genes.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build common genes subquery: %w", err)
	}
	return sq.And{
		sq.Eq{sample: p.samples},
		sq.Expr(gene+" IN ("+subSQL+")", args...),
	}, nil
}

func (p *CommonGeneVariants) Params() map[string]any {
	return map[string]any{
		"samples":    append([]string(nil), p.samples...),
		"min_common": p.minCommon,
		"threshold":  string(p.threshold),
		"variants":   p.variants,
	}
}

func (p *CommonGeneVariants) String() string {
	return fmt.Sprintf("genes shared by %d of %s with %s %d variants each",
		p.minCommon, strings.Join(p.samples, ", "), p.threshold, p.variants)
}

func negate(s sq.Sqlizer) (sq.Sqlizer, error) {
	sql, args, err := s.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("NOT "+sql, args...), nil
}

// decodeMagic rebuilds a magic predicate from its kind and params
func decodeMagic(fields FieldSource, kind string, params map[string]any) (MagicPredicate, error) {
	switch kind {
	case KindIntervals:
		var ivs []Interval
		for _, s := range stringsParam(params["intervals"]) {
			iv, err := ParseInterval(s)
			if err != nil {
				return nil, err
			}
			ivs = append(ivs, iv)
		}
		name, _ := params["name"].(string)
		exclude, _ := params["exclude"].(bool)
		return NewIntervals(fields, name, ivs, exclude)
	case KindListOfVariants:
		var keys []VariantKey
		for _, s := range stringsParam(params["variants"]) {
			k, err := ParseVariantKey(s)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return NewListOfVariants(fields, keys)
	case KindCommonToSamples:
		return NewCommonToSamples(fields, stringsParam(params["samples"]))
	case KindSampleSpecific:
		all, _ := params["all"].(bool)
		return NewSampleSpecificVariants(fields, stringsParam(params["keep"]), stringsParam(params["exclude"]), all)
	case KindCommonGene:
		minCommon, err := intParam(params["min_common"])
		if err != nil {
			return nil, err
		}
		variants, err := intParam(params["variants"])
		if err != nil {
			return nil, err
		}
		threshold, _ := params["threshold"].(string)
		t, err := ParseGeneThreshold(threshold)
		if err != nil {
			return nil, err
		}
		return NewCommonGeneVariants(fields, stringsParam(params["samples"]), minCommon, t, variants)
	default:
		return nil, fmt.Errorf("unknown magic filter kind: %s", kind)
	}
}

func stringsParam(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

func intParam(v any) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		return strconv.Atoi(val)
	default:
		return 0, fmt.Errorf("invalid integer parameter %v", v)
	}
}
