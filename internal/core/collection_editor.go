package core

import (
	"context"
	"net/http"

	"entitysync/pkg/domain"
)

// CollectionEditor exposes the named operations of a collection page.
type CollectionEditor struct {
	session     *Session
	view        *View
	ref         EntityRef
	collections *CollectionMutator
	assets      *AssetPipeline
}

// CollectionEditor opens an editor for collectionID submitting through view.
func (s *Session) CollectionEditor(view *View, collectionID string) *CollectionEditor {
	return &CollectionEditor{
		session:     s,
		view:        view,
		ref:         domain.Ref(domain.KindCollection, collectionID),
		collections: NewCollectionMutator(view),
		assets:      s.Assets(view),
	}
}

// Ref returns the edited collection.
func (c *CollectionEditor) Ref() EntityRef { return c.ref }

// Collection returns the current value of the collection.
func (c *CollectionEditor) Collection() (Entity, bool) {
	return c.session.store.Get(c.ref)
}

// AddProjectToCollection appends projectID and confirms through the
// collection add endpoint.
func (c *CollectionEditor) AddProjectToCollection(ctx context.Context, projectID string) (Entity, error) {
	intent := domain.AddRelationItem(c.ref, domain.RelationProjects, domain.Item(projectID, nil)).
		WithRoute(http.MethodPatch, "collections/"+c.ref.ID+"/add/"+projectID)
	return c.collections.Submit(ctx, intent)
}

// RemoveProjectFromCollection removes projectID through the collection remove endpoint.
func (c *CollectionEditor) RemoveProjectFromCollection(ctx context.Context, projectID string) (Entity, error) {
	intent := domain.RemoveRelationItem(c.ref, domain.RelationProjects, projectID).
		WithRoute(http.MethodPatch, "collections/"+c.ref.ID+"/remove/"+projectID)
	return c.collections.Submit(ctx, intent)
}

func (c *CollectionEditor) UpdateFields(ctx context.Context, fields map[string]any) (Entity, error) {
	return c.view.Mutate(ctx, domain.PatchFields(c.ref, fields))
}

func (c *CollectionEditor) UpdateName(ctx context.Context, name string) (Entity, error) {
	return c.UpdateFields(ctx, map[string]any{"name": name, "url": KebabCase(name)})
}

func (c *CollectionEditor) UpdateDescription(ctx context.Context, description string) (Entity, error) {
	return c.UpdateFields(ctx, map[string]any{"description": description})
}

func (c *CollectionEditor) UploadAvatar(ctx context.Context, blob domain.Blob) (FieldUpdate, error) {
	return c.assets.Upload(ctx, blob, SingleAvatar(c.ref))
}

// CurrentUserIsAuthor reports whether the signed-in user owns the collection.
func (c *CollectionEditor) CurrentUserIsAuthor() bool {
	collection, ok := c.Collection()
	if !ok {
		return false
	}
	owner, ok := domain.IdentifierFrom(collection.Attr("userId"))
	return ok && owner == c.session.currentUser
}
