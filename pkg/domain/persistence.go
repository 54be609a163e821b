package domain

import (
	"context"
	"fmt"
)

// Transaction exposes the operations a backend persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Create(Entity) (Entity, error)
	Update(ref EntityRef, mutator func(*Entity) error) (Entity, error)
	Delete(ref EntityRef) error
	Find(ref EntityRef) (Entity, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	Find(ref EntityRef) (Entity, bool)
	List(kind EntityKind) []Entity
}

// PersistentStore is a minimal abstraction over durable backends used by the
// reference server.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Get(ref EntityRef) (Entity, bool)
	List(kind EntityKind) []Entity
}

// ErrEntityNotFound is returned by backends when a referenced record is missing.
type ErrEntityNotFound struct {
	Ref EntityRef
}

func (e ErrEntityNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Ref.Kind, e.Ref.ID)
}
