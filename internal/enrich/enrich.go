// Package enrich attaches related rows to a batch of records without a
// store-side join.
//
// For every declared relation the engine collects the distinct foreign keys
// referenced by the batch, loads them with a single "key IN (...)" select and
// attaches the match (or nil) to each record. A batch of N records therefore
// costs one query per relation, never one per record.
package enrich

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/thebtf/placefeed/internal/db"
)

// Source describes where entities of type T live and how they are keyed.
type Source[T any] struct {
	KeyOf   func(*T) string
	Table   string
	Key     string
	Columns []string
}

// Relation is one foreign reference carried by records of type R.
// Build it with BelongsTo.
type Relation[R any] struct {
	ref   func(*R) *string
	clear func(*R)
	fetch func(ctx context.Context, c db.Client, ids []string) (func(r *R, id string), error)
	Name  string
}

// BelongsTo declares that ref(r) points at an entity in src, and that the
// resolved entity (or nil) is stored on the record with set.
func BelongsTo[R, T any](name string, src Source[T], ref func(*R) *string, set func(*R, *T)) Relation[R] {
	return Relation[R]{
		Name:  name,
		ref:   ref,
		clear: func(r *R) { set(r, nil) },
		fetch: func(ctx context.Context, c db.Client, ids []string) (func(r *R, id string), error) {
			found, err := Lookup(ctx, c, src, ids)
			if err != nil {
				return nil, err
			}
			return func(r *R, id string) {
				set(r, found[id])
			}, nil
		},
	}
}

// Keys returns the distinct non-empty values of ref across records, in
// first-seen order.
func Keys[R any](records []R, ref func(*R) *string) []string {
	seen := make(map[string]struct{}, len(records))
	keys := make([]string, 0, len(records))
	for i := range records {
		k := ref(&records[i])
		if k == nil || *k == "" {
			continue
		}
		if _, ok := seen[*k]; ok {
			continue
		}
		seen[*k] = struct{}{}
		keys = append(keys, *k)
	}
	return keys
}

// Lookup loads every entity of src whose key is in ids with one select and
// returns them by key. Keys with no row are simply absent from the map.
func Lookup[T any](ctx context.Context, c db.Client, src Source[T], ids []string) (map[string]*T, error) {
	found := make(map[string]*T, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	var rows []T
	err := c.Select(ctx, db.Query{
		Table:   src.Table,
		Columns: src.Columns,
		Filters: []db.Filter{db.In(src.Key, ids)},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", src.Table, err)
	}

	for i := range rows {
		found[src.KeyOf(&rows[i])] = &rows[i]
	}
	return found, nil
}

// Enrich returns a copy of records with every relation resolved. Order and
// length are preserved and the input slice is not modified. Relations are
// loaded concurrently; if any load fails the whole call fails.
func Enrich[R any](ctx context.Context, c db.Client, records []R, relations ...Relation[R]) ([]R, error) {
	out := make([]R, len(records))
	copy(out, records)
	if len(out) == 0 || len(relations) == 0 {
		return out, nil
	}

	attachers := make([]func(r *R, id string), len(relations))
	keys := make([][]string, len(relations))

	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range relations {
		i, rel := i, rel
		keys[i] = Keys(out, rel.ref)
		if len(keys[i]) == 0 {
			continue
		}
		g.Go(func() error {
			attach, err := rel.fetch(gctx, c, keys[i])
			if err != nil {
				return fmt.Errorf("enrich %s: %w", rel.Name, err)
			}
			attachers[i] = attach
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range out {
		for j, rel := range relations {
			k := rel.ref(&out[i])
			if attachers[j] == nil || k == nil || *k == "" {
				rel.clear(&out[i])
				continue
			}
			attachers[j](&out[i], *k)
		}
	}
	return out, nil
}
