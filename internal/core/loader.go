package core

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/singleflight"

	"entitysync/pkg/domain"
)

// Loader fetches entities from the remote store into the EntityStore.
// Concurrent loads of the same entity share one request.
type Loader struct {
	store  *EntityStore
	client domain.RemoteClient
	logger Logger
	group  singleflight.Group
}

// NewLoader constructs a loader.
func NewLoader(store *EntityStore, client domain.RemoteClient, logger Logger) *Loader {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loader{store: store, client: client, logger: logger}
}

// Load fetches ref and stores the authoritative value.
func (l *Loader) Load(ctx context.Context, ref EntityRef) (Entity, error) {
	v, err, shared := l.group.Do(ref.String(), func() (any, error) {
		resp, err := l.client.Get(ctx, ref.Kind.Plural()+"/"+ref.ID)
		if err != nil {
			var remote *domain.RemoteError
			if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
				return Entity{}, &domain.MutationError{Kind: domain.ErrorNotFound, Ref: ref, Cause: err}
			}
			return Entity{}, domain.NetworkFailure(ref, err)
		}
		entity, err := domain.DecodeEntity(ref.Kind, resp.Body)
		if err != nil {
			return Entity{}, domain.NetworkFailure(ref, err)
		}
		if entity.Ref() != ref {
			return Entity{}, domain.NotFound(ref, "response described "+entity.Ref().String())
		}
		if err := l.store.Put(entity); err != nil {
			return Entity{}, err
		}
		return entity, nil
	})
	if err != nil {
		l.logger.Warn("load failed", "entity", ref.String(), "error", err)
		return Entity{}, err
	}
	if shared {
		l.logger.Debug("load shared", "entity", ref.String())
	}
	return v.(Entity).Clone(), nil
}

// Ensure returns the stored entity, loading it when absent.
func (l *Loader) Ensure(ctx context.Context, ref EntityRef) (Entity, error) {
	if entity, ok := l.store.Get(ref); ok {
		return entity, nil
	}
	return l.Load(ctx, ref)
}
