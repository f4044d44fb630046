// Package valuelist resolves user value lists referenced by filter criteria.
// Lists are read on every compilation; nothing is cached.
package valuelist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rebeliceyang/lazyvar/internal/filter"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StaleListError means a referenced list was deleted or emptied after the
// criterion using it was built
type StaleListError struct {
	Ref models.ValueListReference
}

func (e *StaleListError) Error() string {
	return fmt.Sprintf("value list %s is missing or empty", e.Ref)
}

// Store reads the raw values of a list. A missing list yields no values and
// no error.
type Store interface {
	Values(ctx context.Context, ref models.ValueListReference) ([]string, error)
}

// Resolver turns list references into the values a query compares against
type Resolver struct {
	store Store
	upper cases.Caser
	mu    sync.Mutex
}

// NewResolver creates a resolver reading from store
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, upper: cases.Upper(language.Und)}
}

// Resolve returns the normalised values of a list
func (r *Resolver) Resolve(ctx context.Context, ref models.ValueListReference) ([]string, error) {
	raw, err := r.store.Values(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read value list %s: %w", ref, err)
	}
	values := r.normalise(raw)
	if len(values) == 0 {
		return nil, &StaleListError{Ref: ref}
	}
	return values, nil
}

// normalise trims and upper-cases values, dropping blanks. Caser is not
// safe for concurrent use.
func (r *Resolver) normalise(raw []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, r.upper.String(v))
	}
	return out
}

// ResolveAll resolves every distinct reference once, concurrently. The
// first stale list, in reference order, is returned as a StaleListError.
func (r *Resolver) ResolveAll(ctx context.Context, refs []models.ValueListReference) (filter.Lists, error) {
	lists, stale, err := r.Collect(ctx, refs)
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		return nil, &StaleListError{Ref: stale[0]}
	}
	return lists, nil
}

// CheckAll returns the stale lists used by tree, in order of first use. The
// error is only set when the store itself fails.
func (r *Resolver) CheckAll(ctx context.Context, tree filter.Tree) ([]models.ValueListReference, error) {
	_, stale, err := r.Collect(ctx, tree.References())
	return stale, err
}

// Collect reads every distinct reference once, concurrently, and splits
// them into resolved lists and stale references
func (r *Resolver) Collect(ctx context.Context, refs []models.ValueListReference) (filter.Lists, []models.ValueListReference, error) {
	refs = distinct(refs)
	values := make([][]string, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			v, err := r.Resolve(ctx, ref)
			var staleErr *StaleListError
			if err != nil && !errors.As(err, &staleErr) {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	lists := make(filter.Lists, len(refs))
	var stale []models.ValueListReference
	for i, ref := range refs {
		if values[i] == nil {
			stale = append(stale, ref)
			continue
		}
		lists[ref] = values[i]
	}
	return lists, stale, nil
}

func distinct(refs []models.ValueListReference) []models.ValueListReference {
	seen := make(map[models.ValueListReference]struct{}, len(refs))
	out := make([]models.ValueListReference, 0, len(refs))
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
