package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"entitysync/pkg/domain"
)

func (h *Handler) handleGet(w http.ResponseWriter, ref domain.EntityRef) {
	entity, ok := h.Store.Get(ref)
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrEntityNotFound{Ref: ref}.Error())
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request, ref domain.EntityRef) {
	fields, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch payload")
		return
	}
	delete(fields, "id")
	entity, err := h.mutate(r.Context(), domain.PatchFields(ref, fields))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, spec domain.RelationSpec, itemID string) {
	attrs, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item payload")
		return
	}
	attrs = itemAttributes(attrs)
	delete(attrs, spec.ItemKey)
	if ref.Kind == domain.KindTeam && spec.Name == domain.RelationUsers {
		if _, ok := attrs[domain.AccessLevelField]; !ok {
			attrs[domain.AccessLevelField] = domain.MemberAccessLevel
		}
	}
	entity, err := h.mutate(r.Context(), domain.AddRelationItem(ref, spec.Name, domain.Item(itemID, attrs)))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, spec domain.RelationSpec, itemID string) {
	if _, err := readObject(r); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	entity, err := h.mutate(r.Context(), domain.RemoveRelationItem(ref, spec.Name, itemID))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleSetItem(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, spec domain.RelationSpec, itemID string) {
	fields, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item payload")
		return
	}
	entity, err := h.mutate(r.Context(), domain.SetRelationItem(ref, spec.Name, itemID, itemAttributes(fields)))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleCollectionProject(w http.ResponseWriter, r *http.Request, ref domain.EntityRef, action, projectID string) {
	intent := domain.AddRelationItem(ref, domain.RelationProjects, domain.Item(projectID, nil))
	if action == "remove" {
		intent = domain.RemoveRelationItem(ref, domain.RelationProjects, projectID)
	}
	entity, err := h.mutate(r.Context(), intent)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, teamID, projectID string) {
	caller := Caller(r)
	if caller == "" {
		writeError(w, http.StatusUnauthorized, "sign in to join projects")
		return
	}
	team, ok := h.Store.Get(domain.Ref(domain.KindTeam, teamID))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrEntityNotFound{Ref: domain.Ref(domain.KindTeam, teamID)}.Error())
		return
	}
	if !team.Relation(domain.RelationUsers).Contains(caller) {
		writeError(w, http.StatusForbidden, "only team members can join team projects")
		return
	}
	if !team.Relation(domain.RelationProjects).Contains(projectID) {
		writeError(w, http.StatusNotFound, "project is not owned by the team")
		return
	}
	project := domain.Ref(domain.KindProject, projectID)
	entity, err := h.mutate(r.Context(), domain.AddRelationItem(project, domain.RelationUsers, domain.Item(caller, nil)))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleRevokeAuthorization(w http.ResponseWriter, r *http.Request, projectID string) {
	body, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid authorization payload")
		return
	}
	target, ok := domain.IdentifierFrom(body["targetUserId"])
	if !ok {
		target = Caller(r)
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "targetUserId required")
		return
	}
	project := domain.Ref(domain.KindProject, projectID)
	entity, err := h.mutate(r.Context(), domain.RemoveRelationItem(project, domain.RelationUsers, target))
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeEntity(w, http.StatusOK, entity)
}

func (h *Handler) handleTeamByURL(w http.ResponseWriter, r *http.Request, url string) {
	var found *domain.Entity
	err := h.Store.View(r.Context(), func(v domain.TransactionView) error {
		for _, team := range v.List(domain.KindTeam) {
			if teamURL, _ := team.Attr("url").(string); strings.EqualFold(teamURL, url) {
				found = &team
				return nil
			}
		}
		return nil
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "team not found")
		return
	}
	writeEntity(w, http.StatusOK, *found)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, kind domain.EntityKind) {
	body, err := readObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid create payload")
		return
	}
	if name, _ := body["name"].(string); strings.TrimSpace(name) == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s name required", kind))
		return
	}
	caller := Caller(r)
	delete(body, "id")
	entity := domain.Entity{Kind: kind, Attributes: body, Relations: map[string]domain.Relation{}}
	switch kind {
	case domain.KindTeam:
		if caller != "" {
			entity.Relations[domain.RelationUsers] = domain.Relation{Items: []domain.RelationItem{
				domain.Item(caller, map[string]any{domain.AccessLevelField: domain.AdminAccessLevel}),
			}}
			entity.Relations[domain.RelationAdminIDs] = domain.Relation{Items: domain.Items(caller)}
		}
	case domain.KindCollection:
		if _, ok := domain.IdentifierFrom(body["userId"]); !ok {
			if caller == "" {
				writeError(w, http.StatusBadRequest, "userId required")
				return
			}
			body["userId"] = domain.WireID(caller)
		}
	}
	var created domain.Entity
	_, err = h.Store.RunInTransaction(r.Context(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.Create(entity)
		if err != nil {
			return err
		}
		if kind == domain.KindTeam && caller != "" {
			return addMembership(tx, caller, created.ID)
		}
		return nil
	})
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.logger().Info("entity created", "kind", kind, "id", created.ID)
	writeEntity(w, http.StatusCreated, created)
}

// mutate applies intent inside a store transaction: guards first, then the
// pure reducer, then the write. Team membership changes are mirrored onto
// the member's teams relation when that user exists.
func (h *Handler) mutate(ctx context.Context, intent domain.MutationIntent) (domain.Entity, error) {
	var out domain.Entity
	_, err := h.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.Find(intent.Entity)
		if !ok {
			return domain.ErrEntityNotFound{Ref: intent.Entity}
		}
		if res := h.Guards.Check(intent, current); res.HasBlocking() {
			return domain.InvariantViolation(intent.Entity, res)
		}
		next, changed, err := domain.Apply(current, intent)
		if err != nil {
			var merr *domain.MutationError
			if errors.As(err, &merr) {
				return err
			}
			return badRequest(err)
		}
		if !changed {
			out = next
			return nil
		}
		out, err = tx.Update(intent.Entity, func(e *domain.Entity) error {
			*e = next
			return nil
		})
		if err != nil {
			return err
		}
		return mirrorMembership(tx, intent)
	})
	return out, err
}

func mirrorMembership(tx domain.Transaction, intent domain.MutationIntent) error {
	if intent.Entity.Kind != domain.KindTeam || intent.Payload.Relation != domain.RelationUsers {
		return nil
	}
	switch intent.Kind {
	case domain.MutationAddRelationItem:
		return addMembership(tx, intent.Payload.ItemID, intent.Entity.ID)
	case domain.MutationRemoveRelationItem:
		user := domain.Ref(domain.KindUser, intent.Payload.ItemID)
		if _, ok := tx.Find(user); !ok {
			return nil
		}
		_, err := tx.Update(user, func(e *domain.Entity) error {
			next, _, err := domain.Apply(*e, domain.RemoveRelationItem(user, domain.RelationTeams, intent.Entity.ID))
			*e = next
			return err
		})
		return err
	}
	return nil
}

func addMembership(tx domain.Transaction, userID, teamID string) error {
	user := domain.Ref(domain.KindUser, userID)
	if _, ok := tx.Find(user); !ok {
		return nil
	}
	_, err := tx.Update(user, func(e *domain.Entity) error {
		next, _, err := domain.Apply(*e, domain.AddRelationItem(user, domain.RelationTeams, domain.Item(teamID, nil)))
		*e = next
		return err
	})
	return err
}

// itemAttributes renames wire item fields to their stored names.
func itemAttributes(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "access_level" {
			k = domain.AccessLevelField
		}
		if n, ok := domain.IntValue(v); ok && k == domain.AccessLevelField {
			v = n
		}
		out[k] = v
	}
	return out
}
