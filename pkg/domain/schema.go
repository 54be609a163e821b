package domain

import "fmt"

// RelationSpec describes one named relation of a kind.
type RelationSpec struct {
	Name    string
	Ordered bool
	// ItemKey is the JSON key carrying an item's id. Empty means items are
	// serialized as bare ids.
	ItemKey string
	// Prepend places newly added items at the front of ordered relations.
	Prepend bool
	// Route is the remote path segment for item calls. Empty means the
	// relation is a local projection with no remote endpoint of its own.
	Route string
}

// Schema fixes the attribute keys and relations of an entity kind.
type Schema struct {
	Kind       EntityKind
	Attributes []string
	Relations  []RelationSpec
}

// HasAttribute reports whether name is a declared attribute.
func (s Schema) HasAttribute(name string) bool {
	for _, attr := range s.Attributes {
		if attr == name {
			return true
		}
	}
	return false
}

// Relation returns the RelationSpec of the named relation.
func (s Schema) Relation(name string) (RelationSpec, bool) {
	for _, rel := range s.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationSpec{}, false
}

// Team relation names shared by guards and editors.
const (
	RelationUsers    = "users"
	RelationAdminIDs = "adminIds"
	RelationProjects = "projects"
	RelationTeamPins = "teamPins"
	RelationPins     = "pins"
	RelationTeams    = "teams"
)

var schemas = map[EntityKind]Schema{
	KindTeam: {
		Kind: KindTeam,
		Attributes: []string{
			"name", "url", "description", "location",
			"hasAvatarImage", "backgroundColor", "hasCoverImage", "coverColor",
			"isVerified", "verifiedImage", "verifiedTooltip", "features",
		},
		Relations: []RelationSpec{
			{Name: RelationUsers, ItemKey: "id", Route: "users"},
			{Name: RelationAdminIDs},
			{Name: RelationProjects, Ordered: true, ItemKey: "id", Prepend: true, Route: "projects"},
			{Name: RelationTeamPins, Ordered: true, ItemKey: "projectId", Route: "pinned-projects"},
		},
	},
	KindUser: {
		Kind:       KindUser,
		Attributes: []string{"name", "login", "description", "avatarUrl", "color", "hasCoverImage", "coverColor"},
		Relations: []RelationSpec{
			{Name: RelationProjects, Ordered: true, ItemKey: "id", Route: "projects"},
			{Name: RelationPins, Ordered: true, ItemKey: "projectId", Route: "pinned-projects"},
			{Name: RelationTeams, ItemKey: "id"},
		},
	},
	KindCollection: {
		Kind:       KindCollection,
		Attributes: []string{"name", "description", "url", "avatarUrl", "coverColor", "userId"},
		Relations: []RelationSpec{
			{Name: RelationProjects, Ordered: true, ItemKey: "id", Route: "projects"},
		},
	},
	KindProject: {
		Kind:       KindProject,
		Attributes: []string{"domain", "description", "private"},
		Relations: []RelationSpec{
			{Name: RelationUsers, ItemKey: "id", Route: "users"},
		},
	},
}

// SchemaFor returns the schema registered for kind.
func SchemaFor(kind EntityKind) (Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// Normalize returns a copy of the entity shaped by its schema: every declared
// attribute and relation is present, unknown keys are dropped and set
// relations hold unique ids.
func Normalize(entity Entity) (Entity, error) {
	schema, ok := schemas[entity.Kind]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity kind %q", entity.Kind)
	}
	if entity.ID == "" {
		return Entity{}, fmt.Errorf("%s entity requires an id", entity.Kind)
	}
	out := Entity{
		Kind:       entity.Kind,
		ID:         entity.ID,
		Attributes: make(map[string]any, len(schema.Attributes)),
		Relations:  make(map[string]Relation, len(schema.Relations)),
	}
	for _, attr := range schema.Attributes {
		out.Attributes[attr] = cloneValue(entity.Attributes[attr])
	}
	for _, spec := range schema.Relations {
		src := entity.Relations[spec.Name]
		rel := Relation{Ordered: spec.Ordered, Items: make([]RelationItem, 0, len(src.Items))}
		for _, item := range src.Items {
			if !spec.Ordered && rel.Contains(item.ID) {
				continue
			}
			rel.Items = append(rel.Items, item.Clone())
		}
		out.Relations[spec.Name] = rel
	}
	return out, nil
}

// NewEntity builds a normalized entity from attribute and relation id lists.
// It panics on an unknown kind and is intended for fixtures and creation flows.
func NewEntity(kind EntityKind, id string, attrs map[string]any, relations map[string][]RelationItem) Entity {
	raw := Entity{Kind: kind, ID: id, Attributes: attrs, Relations: make(map[string]Relation, len(relations))}
	for name, items := range relations {
		raw.Relations[name] = Relation{Items: items}
	}
	out, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return out
}

// Items builds id-only relation items.
func Items(ids ...string) []RelationItem {
	out := make([]RelationItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, RelationItem{ID: id})
	}
	return out
}
