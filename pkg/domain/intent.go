package domain

import (
	"encoding/json"
	"net/http"
	"strings"
)

// MutationKind enumerates the supported change operations.
type MutationKind string

// Supported mutation kinds.
const (
	MutationPatchFields        MutationKind = "patchFields"
	MutationAddRelationItem    MutationKind = "addRelationItem"
	MutationRemoveRelationItem MutationKind = "removeRelationItem"
	MutationSetRelationItem    MutationKind = "setRelationItem"
)

// Payload carries the data of a mutation. Which fields are meaningful depends
// on the MutationKind.
type Payload struct {
	// Fields holds attribute updates (patchFields) or item updates (setRelationItem).
	Fields   map[string]any
	Relation string
	// Item is the member added by addRelationItem.
	Item   RelationItem
	ItemID string
	// Body overrides the remote request body.
	Body any
	// Method and Path override the remote route.
	Method string
	Path   string
	// Force issues the remote request even when the value is unchanged.
	Force bool
}

// MutationIntent describes one requested change. Intents are values; holders
// must not mutate the maps they carry once submitted.
type MutationIntent struct {
	Entity  EntityRef
	Kind    MutationKind
	Payload Payload
}

// PatchFields builds an attribute patch intent.
func PatchFields(ref EntityRef, fields map[string]any) MutationIntent {
	return MutationIntent{Entity: ref, Kind: MutationPatchFields, Payload: Payload{Fields: cloneAttributes(fields)}}
}

// Forced returns a copy of the intent that always reaches the remote store.
func (i MutationIntent) Forced() MutationIntent {
	i.Payload.Force = true
	return i
}

// AddRelationItem builds an intent adding item to relation.
func AddRelationItem(ref EntityRef, relation string, item RelationItem) MutationIntent {
	return MutationIntent{Entity: ref, Kind: MutationAddRelationItem, Payload: Payload{Relation: relation, Item: item.Clone(), ItemID: item.ID}}
}

// RemoveRelationItem builds an intent removing itemID from relation.
func RemoveRelationItem(ref EntityRef, relation, itemID string) MutationIntent {
	return MutationIntent{Entity: ref, Kind: MutationRemoveRelationItem, Payload: Payload{Relation: relation, ItemID: itemID}}
}

// SetRelationItem builds an intent merging fields into an existing item.
func SetRelationItem(ref EntityRef, relation, itemID string, fields map[string]any) MutationIntent {
	return MutationIntent{Entity: ref, Kind: MutationSetRelationItem, Payload: Payload{Relation: relation, ItemID: itemID, Fields: cloneAttributes(fields)}}
}

// WithBody returns a copy of the intent carrying an explicit remote body.
func (i MutationIntent) WithBody(body any) MutationIntent {
	i.Payload.Body = body
	return i
}

// WithRoute returns a copy of the intent with an overridden remote route.
func (i MutationIntent) WithRoute(method, path string) MutationIntent {
	i.Payload.Method = method
	i.Payload.Path = path
	return i
}

// Route resolves the remote method, path and body for the intent.
func (i MutationIntent) Route() (method, path string, body any) {
	base := i.Entity.Kind.Plural() + "/" + i.Entity.ID
	switch i.Kind {
	case MutationPatchFields:
		method, path, body = http.MethodPatch, base, i.Payload.Fields
	case MutationAddRelationItem:
		method, path = http.MethodPost, base+"/"+relationRoute(i.Entity.Kind, i.Payload.Relation)+"/"+i.itemID()
	case MutationRemoveRelationItem:
		method, path = http.MethodDelete, base+"/"+relationRoute(i.Entity.Kind, i.Payload.Relation)+"/"+i.itemID()
	case MutationSetRelationItem:
		method, path, body = http.MethodPatch, base+"/"+relationRoute(i.Entity.Kind, i.Payload.Relation)+"/"+i.itemID(), i.Payload.Fields
	}
	if i.Payload.Method != "" {
		method = i.Payload.Method
	}
	if i.Payload.Path != "" {
		path = strings.TrimPrefix(i.Payload.Path, "/")
	}
	if i.Payload.Body != nil {
		body = i.Payload.Body
	}
	return method, path, body
}

// TargetsEntity reports whether the resolved path addresses the entity
// resource itself, so a response body can be read as its representation.
func (i MutationIntent) TargetsEntity() bool {
	_, path, _ := i.Route()
	return path == i.Entity.Kind.Plural()+"/"+i.Entity.ID
}

func (i MutationIntent) itemID() string {
	if i.Payload.ItemID != "" {
		return i.Payload.ItemID
	}
	return i.Payload.Item.ID
}

func relationRoute(kind EntityKind, relation string) string {
	if schema, ok := schemas[kind]; ok {
		if spec, ok := schema.Relation(relation); ok && spec.Route != "" {
			return spec.Route
		}
	}
	return relation
}

// MarshalBody encodes a remote body. Nil bodies and raw messages pass through.
func MarshalBody(body any) ([]byte, error) {
	switch t := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return t, nil
	case []byte:
		return t, nil
	default:
		return json.Marshal(body)
	}
}
