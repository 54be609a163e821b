package domain

import (
	"fmt"
	"reflect"
)

// Team access levels carried on team user items.
const (
	MemberAccessLevel = 20
	AdminAccessLevel  = 30
)

// AccessLevelField is the item attribute holding a team member's access level.
const AccessLevelField = "accessLevel"

// Apply computes the next value of current under intent. It never mutates
// current. changed is false when the intent leaves the value as it was, e.g.
// adding an existing member to a set relation.
func Apply(current Entity, intent MutationIntent) (Entity, bool, error) {
	schema, ok := schemas[current.Kind]
	if !ok {
		return Entity{}, false, fmt.Errorf("unknown entity kind %q", current.Kind)
	}
	next, err := Normalize(current)
	if err != nil {
		return Entity{}, false, err
	}
	switch intent.Kind {
	case MutationPatchFields:
		changed := false
		for name, value := range intent.Payload.Fields {
			if !schema.HasAttribute(name) {
				return Entity{}, false, fmt.Errorf("%s has no attribute %q", current.Kind, name)
			}
			if reflect.DeepEqual(next.Attributes[name], value) {
				continue
			}
			next.Attributes[name] = cloneValue(value)
			changed = true
		}
		return next, changed, nil
	case MutationAddRelationItem:
		spec, ok := schema.Relation(intent.Payload.Relation)
		if !ok {
			return Entity{}, false, fmt.Errorf("%s has no relation %q", current.Kind, intent.Payload.Relation)
		}
		item := intent.Payload.Item.Clone()
		if item.ID == "" {
			item.ID = intent.Payload.ItemID
		}
		rel := next.Relations[spec.Name]
		if !spec.Ordered && rel.Contains(item.ID) {
			return next, false, nil
		}
		if spec.Prepend {
			rel.Items = append([]RelationItem{item}, rel.Items...)
		} else {
			rel.Items = append(rel.Items, item)
		}
		next.Relations[spec.Name] = rel
		projectAdmins(&next, spec.Name, item)
		return next, true, nil
	case MutationRemoveRelationItem:
		spec, ok := schema.Relation(intent.Payload.Relation)
		if !ok {
			return Entity{}, false, fmt.Errorf("%s has no relation %q", current.Kind, intent.Payload.Relation)
		}
		rel := next.Relations[spec.Name]
		removed := removeItems(&rel, intent.Payload.ItemID)
		next.Relations[spec.Name] = rel
		if current.Kind == KindTeam && spec.Name == RelationUsers {
			admins := next.Relations[RelationAdminIDs]
			if removeItems(&admins, intent.Payload.ItemID) {
				removed = true
			}
			next.Relations[RelationAdminIDs] = admins
		}
		return next, removed, nil
	case MutationSetRelationItem:
		spec, ok := schema.Relation(intent.Payload.Relation)
		if !ok {
			return Entity{}, false, fmt.Errorf("%s has no relation %q", current.Kind, intent.Payload.Relation)
		}
		rel := next.Relations[spec.Name]
		idx := rel.IndexOf(intent.Payload.ItemID)
		if idx < 0 {
			return Entity{}, false, NotFound(current.Ref(), fmt.Sprintf("%s item %s not found", spec.Name, intent.Payload.ItemID))
		}
		item := rel.Items[idx]
		changed := false
		for name, value := range intent.Payload.Fields {
			if item.Attributes != nil && reflect.DeepEqual(item.Attributes[name], value) {
				continue
			}
			if item.Attributes == nil {
				item.Attributes = make(map[string]any, len(intent.Payload.Fields))
			}
			item.Attributes[name] = cloneValue(value)
			changed = true
		}
		rel.Items[idx] = item
		next.Relations[spec.Name] = rel
		if projectAdmins(&next, spec.Name, item) {
			changed = true
		}
		return next, changed, nil
	default:
		return Entity{}, false, fmt.Errorf("unsupported mutation kind %q", intent.Kind)
	}
}

// IsAdmin reports whether userID is listed in a team's adminIds.
func IsAdmin(team Entity, userID string) bool {
	return team.Relations[RelationAdminIDs].Contains(userID)
}

// projectAdmins keeps a team's adminIds in step with its users' access levels.
func projectAdmins(team *Entity, relation string, item RelationItem) bool {
	if team.Kind != KindTeam || relation != RelationUsers {
		return false
	}
	level, ok := IntValue(item.Attributes[AccessLevelField])
	if !ok {
		return false
	}
	admins := team.Relations[RelationAdminIDs]
	if level >= AdminAccessLevel {
		if admins.Contains(item.ID) {
			return false
		}
		admins.Items = append(admins.Items, RelationItem{ID: item.ID})
		team.Relations[RelationAdminIDs] = admins
		return true
	}
	changed := removeItems(&admins, item.ID)
	team.Relations[RelationAdminIDs] = admins
	return changed
}

func removeItems(rel *Relation, id string) bool {
	kept := rel.Items[:0:0]
	for _, item := range rel.Items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	removed := len(kept) != len(rel.Items)
	rel.Items = kept
	return removed
}
