package core

import (
	"context"

	"entitysync/pkg/domain"
)

// CollectionMutator edits set and ordered relations through a Mutator. Set
// semantics (no duplicate members, idempotent add) and rollback to the
// original position come from the engine and the reducer.
type CollectionMutator struct {
	mutator Mutator
}

// NewCollectionMutator constructs a mutator submitting through m.
func NewCollectionMutator(m Mutator) *CollectionMutator {
	return &CollectionMutator{mutator: m}
}

// AddItem inserts item into relation. Adding an existing member of a set
// relation is a no-op and issues no remote call.
func (c *CollectionMutator) AddItem(ctx context.Context, ref EntityRef, relation string, item RelationItem) (Entity, error) {
	return c.mutator.Mutate(ctx, domain.AddRelationItem(ref, relation, item))
}

// RemoveItem removes itemID from relation. body, when non-nil, is sent with
// the remote DELETE.
func (c *CollectionMutator) RemoveItem(ctx context.Context, ref EntityRef, relation, itemID string, body any) (Entity, error) {
	intent := domain.RemoveRelationItem(ref, relation, itemID)
	if body != nil {
		intent = intent.WithBody(body)
	}
	return c.mutator.Mutate(ctx, intent)
}

// SetItem merges fields into the attributes of an existing item.
func (c *CollectionMutator) SetItem(ctx context.Context, ref EntityRef, relation, itemID string, fields map[string]any) (Entity, error) {
	return c.mutator.Mutate(ctx, domain.SetRelationItem(ref, relation, itemID, fields))
}

// Submit forwards a prepared intent, e.g. one carrying a route override.
func (c *CollectionMutator) Submit(ctx context.Context, intent MutationIntent) (Entity, error) {
	return c.mutator.Mutate(ctx, intent)
}
