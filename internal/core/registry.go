package core

import (
	"context"

	"github.com/pkg/errors"

	"interactiondb/pkg/domain"
)

// Registry maps external references onto unified entity ids.
type Registry struct {
	store  domain.PersistentStore
	merger *MergeEngine
}

// NewRegistry constructs a registry merging through merger.
func NewRegistry(store domain.PersistentStore, merger *MergeEngine) *Registry {
	return &Registry{store: store, merger: merger}
}

// ResolveOrCreate returns the entity described by urns. With no bound
// reference a new entity of type t is allocated; with several distinct bound
// entities they are merged. Every reference ends up bound to the returned id
// except those held by entities the unification policy kept apart.
func (r *Registry) ResolveOrCreate(ctx context.Context, urns []string, t domain.EntityType) (domain.EntityID, error) {
	urns = distinctStrings(urns)
	bound := make(map[string]domain.EntityID, len(urns))
	var ids []domain.EntityID
	for _, u := range urns {
		ref, err := r.store.EnsureReference(ctx, u)
		if err != nil {
			return 0, errors.Wrapf(err, "ensure reference %s", u)
		}
		if ref.Bound() {
			bound[u] = *ref.Entity
			ids = append(ids, *ref.Entity)
		}
	}
	ids = distinctSorted(ids)

	var id domain.EntityID
	skipped := map[domain.EntityID]struct{}{}
	switch len(ids) {
	case 0:
		created, err := r.store.CreateEntity(ctx, t)
		if err != nil {
			return 0, errors.Wrapf(err, "create %s", t)
		}
		id = created
	case 1:
		id = ids[0]
	default:
		out, err := r.merger.Merge(ctx, ids)
		if err != nil {
			return 0, err
		}
		id = out.Representative
		for _, s := range out.Skipped {
			skipped[s] = struct{}{}
		}
	}

	for _, u := range urns {
		if owner, ok := bound[u]; ok {
			if owner == id {
				continue
			}
			if _, kept := skipped[owner]; kept {
				continue
			}
		}
		if err := r.store.BindReference(ctx, u, id); err != nil && !domain.IsDuplicate(err) {
			return 0, errors.Wrapf(err, "bind %s to %s", u, id)
		}
	}
	return id, nil
}

func distinctStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
