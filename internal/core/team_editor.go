package core

import (
	"context"
	"errors"
	"net/http"

	"entitysync/pkg/domain"
)

// TeamEditor exposes the named team operations of a team page.
type TeamEditor struct {
	session     *Session
	view        *View
	ref         EntityRef
	collections *CollectionMutator
	assets      *AssetPipeline
}

// TeamEditor opens an editor for teamID submitting through view.
func (s *Session) TeamEditor(view *View, teamID string) *TeamEditor {
	return &TeamEditor{
		session:     s,
		view:        view,
		ref:         domain.Ref(domain.KindTeam, teamID),
		collections: NewCollectionMutator(view),
		assets:      s.Assets(view),
	}
}

// Ref returns the edited team.
func (t *TeamEditor) Ref() EntityRef { return t.ref }

// Team returns the current value of the team.
func (t *TeamEditor) Team() (Entity, bool) {
	return t.session.store.Get(t.ref)
}

func (t *TeamEditor) UpdateFields(ctx context.Context, fields map[string]any) (Entity, error) {
	return t.view.Mutate(ctx, domain.PatchFields(t.ref, fields))
}

func (t *TeamEditor) UpdateDescription(ctx context.Context, description string) (Entity, error) {
	return t.UpdateFields(ctx, map[string]any{"description": description})
}

func (t *TeamEditor) UploadAvatar(ctx context.Context, blob domain.Blob) (FieldUpdate, error) {
	return t.assets.Upload(ctx, blob, TeamAvatar(t.ref.ID))
}

func (t *TeamEditor) UploadCover(ctx context.Context, blob domain.Blob) (FieldUpdate, error) {
	return t.assets.Upload(ctx, blob, TeamCover(t.ref.ID))
}

// ClearCover drops the cover image flag.
func (t *TeamEditor) ClearCover(ctx context.Context) (Entity, error) {
	return t.UpdateFields(ctx, map[string]any{"hasCoverImage": false})
}

// AddUser adds user to the team. user.Attributes may carry display fields
// such as login or avatarUrl.
func (t *TeamEditor) AddUser(ctx context.Context, user RelationItem) (Entity, error) {
	return t.collections.AddItem(ctx, t.ref, domain.RelationUsers, user)
}

// RemoveUser removes userID from the team. Removing the signed-in user also
// drops the team from that user's teams.
func (t *TeamEditor) RemoveUser(ctx context.Context, userID string) (Entity, error) {
	team, err := t.collections.RemoveItem(ctx, t.ref, domain.RelationUsers, userID, nil)
	if err != nil {
		return Entity{}, err
	}
	self := t.session.CurrentUser()
	if userID == self.ID {
		if _, ok := t.session.store.Get(self); ok {
			_, err := t.view.ApplyLocal(ctx, domain.RemoveRelationItem(self, domain.RelationTeams, t.ref.ID))
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return team, err
			}
		}
	}
	return team, nil
}

// UpdateUserPermissions sets a member's access level. Demoting the last
// admin is rejected before any change.
func (t *TeamEditor) UpdateUserPermissions(ctx context.Context, userID string, accessLevel int) (Entity, error) {
	intent := domain.SetRelationItem(t.ref, domain.RelationUsers, userID, map[string]any{domain.AccessLevelField: accessLevel}).
		WithBody(map[string]any{"access_level": accessLevel})
	return t.collections.Submit(ctx, intent)
}

// AddProject prepends project to the team's projects.
func (t *TeamEditor) AddProject(ctx context.Context, project RelationItem) (Entity, error) {
	return t.collections.AddItem(ctx, t.ref, domain.RelationProjects, project)
}

func (t *TeamEditor) RemoveProject(ctx context.Context, projectID string) (Entity, error) {
	return t.collections.RemoveItem(ctx, t.ref, domain.RelationProjects, projectID, nil)
}

func (t *TeamEditor) AddPin(ctx context.Context, projectID string) (Entity, error) {
	return t.collections.AddItem(ctx, t.ref, domain.RelationTeamPins, domain.Item(projectID, nil))
}

func (t *TeamEditor) RemovePin(ctx context.Context, projectID string) (Entity, error) {
	return t.collections.RemoveItem(ctx, t.ref, domain.RelationTeamPins, projectID, nil)
}

// JoinTeamProject adds the signed-in user to a project owned by the team.
// When the project is loaded its users are updated optimistically.
func (t *TeamEditor) JoinTeamProject(ctx context.Context, projectID string) error {
	path := "teams/" + t.ref.ID + "/projects/" + projectID + "/join"
	project := domain.Ref(domain.KindProject, projectID)
	if _, ok := t.session.store.Get(project); ok {
		intent := domain.AddRelationItem(project, domain.RelationUsers, domain.Item(t.session.currentUser, nil)).
			WithRoute(http.MethodPost, path)
		_, err := t.view.Mutate(ctx, intent)
		return err
	}
	_, err := t.view.Call(ctx, http.MethodPost, path, nil)
	return err
}

// LeaveTeamProject removes userID from a project's authorizations.
func (t *TeamEditor) LeaveTeamProject(ctx context.Context, projectID, userID string) error {
	path := "projects/" + projectID + "/authorization"
	body := map[string]any{"targetUserId": domain.WireID(userID)}
	project := domain.Ref(domain.KindProject, projectID)
	if _, ok := t.session.store.Get(project); ok {
		intent := domain.RemoveRelationItem(project, domain.RelationUsers, userID).
			WithRoute(http.MethodDelete, path).
			WithBody(body)
		_, err := t.view.Mutate(ctx, intent)
		return err
	}
	_, err := t.view.Call(ctx, http.MethodDelete, path, body)
	return err
}

// CurrentUserIsOnTeam reports whether the signed-in user is a member.
func (t *TeamEditor) CurrentUserIsOnTeam() bool {
	team, ok := t.Team()
	return ok && team.Relation(domain.RelationUsers).Contains(t.session.currentUser)
}

// CurrentUserIsAdmin reports whether the signed-in user administers the team.
func (t *TeamEditor) CurrentUserIsAdmin() bool {
	team, ok := t.Team()
	return ok && domain.IsAdmin(team, t.session.currentUser)
}

// HasFeature reports whether the team has the named feature switch.
func (t *TeamEditor) HasFeature(name string) bool {
	team, ok := t.Team()
	if !ok {
		return false
	}
	features, _ := team.Attr("features").([]any)
	for _, feature := range features {
		switch f := feature.(type) {
		case string:
			if f == name {
				return true
			}
		case map[string]any:
			if f["name"] == name {
				return true
			}
		}
	}
	return false
}
