package core

import (
	"fmt"

	"entitysync/pkg/domain"
)

// LastAdminMessage is the reason reported when a change would leave a team without admins.
const LastAdminMessage = "at least one admin required"

// DefaultGuards builds the built-in guard set.
func DefaultGuards() *domain.GuardSet {
	return domain.NewGuardSet(
		NewSchemaGuard(),
		NewRelationItemGuard(),
		NewLastAdminGuard(),
	)
}

// NewLastAdminGuard rejects removals and demotions that would leave a team
// without an admin.
func NewLastAdminGuard() domain.Guard {
	return lastAdminGuard{}
}

type lastAdminGuard struct{}

func (lastAdminGuard) Name() string { return "team_last_admin" }

func (lastAdminGuard) Applies(kind EntityKind, mutation MutationKind) bool {
	if kind != domain.KindTeam {
		return false
	}
	return mutation == domain.MutationRemoveRelationItem || mutation == domain.MutationSetRelationItem
}

func (g lastAdminGuard) Evaluate(intent MutationIntent, current Entity) Result {
	target := intent.Payload.ItemID
	if !domain.IsAdmin(current, target) {
		return Result{}
	}
	if len(current.Relation(domain.RelationAdminIDs).Items) > 1 {
		return Result{}
	}
	switch intent.Kind {
	case domain.MutationRemoveRelationItem:
		if intent.Payload.Relation != domain.RelationUsers && intent.Payload.Relation != domain.RelationAdminIDs {
			return Result{}
		}
	case domain.MutationSetRelationItem:
		if intent.Payload.Relation != domain.RelationUsers {
			return Result{}
		}
		level, ok := domain.IntValue(intent.Payload.Fields[domain.AccessLevelField])
		if !ok || level >= domain.AdminAccessLevel {
			return Result{}
		}
	}
	return domain.Block(g.Name(), intent, LastAdminMessage)
}

// NewSchemaGuard rejects patches of undeclared attributes or relations and
// attempts to change an entity id.
func NewSchemaGuard() domain.Guard {
	return schemaGuard{}
}

type schemaGuard struct{}

func (schemaGuard) Name() string { return "schema" }

func (schemaGuard) Applies(EntityKind, MutationKind) bool { return true }

func (g schemaGuard) Evaluate(intent MutationIntent, current Entity) Result {
	schema, ok := domain.SchemaFor(intent.Entity.Kind)
	if !ok {
		return domain.Block(g.Name(), intent, fmt.Sprintf("unknown entity kind %q", intent.Entity.Kind))
	}
	var res Result
	switch intent.Kind {
	case domain.MutationPatchFields:
		for name := range intent.Payload.Fields {
			if name == "id" {
				res.Merge(domain.Block(g.Name(), intent, "id cannot be changed"))
				continue
			}
			if !schema.HasAttribute(name) {
				res.Merge(domain.Block(g.Name(), intent, fmt.Sprintf("%s has no attribute %q", schema.Kind, name)))
			}
		}
	case domain.MutationAddRelationItem, domain.MutationRemoveRelationItem, domain.MutationSetRelationItem:
		if _, ok := schema.Relation(intent.Payload.Relation); !ok {
			res.Merge(domain.Block(g.Name(), intent, fmt.Sprintf("%s has no relation %q", schema.Kind, intent.Payload.Relation)))
		}
	default:
		res.Merge(domain.Block(g.Name(), intent, fmt.Sprintf("unsupported mutation %q", intent.Kind)))
	}
	if current.ID != "" && current.Ref() != intent.Entity {
		res.Merge(domain.Block(g.Name(), intent, "intent does not target the loaded entity"))
	}
	return res
}

// NewRelationItemGuard rejects relation mutations without an item id.
func NewRelationItemGuard() domain.Guard {
	return relationItemGuard{}
}

type relationItemGuard struct{}

func (relationItemGuard) Name() string { return "relation_item" }

func (relationItemGuard) Applies(_ EntityKind, mutation MutationKind) bool {
	return mutation != domain.MutationPatchFields
}

func (g relationItemGuard) Evaluate(intent MutationIntent, _ Entity) Result {
	id := intent.Payload.ItemID
	if intent.Kind == domain.MutationAddRelationItem && intent.Payload.Item.ID != "" {
		id = intent.Payload.Item.ID
	}
	if id == "" {
		return domain.Block(g.Name(), intent, "relation item id required")
	}
	return Result{}
}
