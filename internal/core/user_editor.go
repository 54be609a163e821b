package core

import (
	"context"

	"entitysync/pkg/domain"
)

// UserEditor exposes the named operations of a user profile page.
type UserEditor struct {
	session     *Session
	view        *View
	ref         EntityRef
	collections *CollectionMutator
	assets      *AssetPipeline
}

// UserEditor opens an editor for userID submitting through view.
func (s *Session) UserEditor(view *View, userID string) *UserEditor {
	return &UserEditor{
		session:     s,
		view:        view,
		ref:         domain.Ref(domain.KindUser, userID),
		collections: NewCollectionMutator(view),
		assets:      s.Assets(view),
	}
}

// Ref returns the edited user.
func (u *UserEditor) Ref() EntityRef { return u.ref }

// IsCurrentUser reports whether the profile belongs to the signed-in user.
func (u *UserEditor) IsCurrentUser() bool {
	return u.ref.ID == u.session.currentUser
}

func (u *UserEditor) UpdateFields(ctx context.Context, fields map[string]any) (Entity, error) {
	return u.view.Mutate(ctx, domain.PatchFields(u.ref, fields))
}

func (u *UserEditor) UpdateName(ctx context.Context, name string) (Entity, error) {
	return u.UpdateFields(ctx, map[string]any{"name": name})
}

func (u *UserEditor) UpdateLogin(ctx context.Context, login string) (Entity, error) {
	return u.UpdateFields(ctx, map[string]any{"login": login})
}

func (u *UserEditor) UpdateDescription(ctx context.Context, description string) (Entity, error) {
	return u.UpdateFields(ctx, map[string]any{"description": description})
}

func (u *UserEditor) UploadAvatar(ctx context.Context, blob domain.Blob) (FieldUpdate, error) {
	return u.assets.Upload(ctx, blob, SingleAvatar(u.ref))
}

func (u *UserEditor) AddPin(ctx context.Context, projectID string) (Entity, error) {
	return u.collections.AddItem(ctx, u.ref, domain.RelationPins, domain.Item(projectID, nil))
}

func (u *UserEditor) RemovePin(ctx context.Context, projectID string) (Entity, error) {
	return u.collections.RemoveItem(ctx, u.ref, domain.RelationPins, projectID, nil)
}
