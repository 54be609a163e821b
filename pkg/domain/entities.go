// Package domain defines the shared entity model, mutation intents, invariant
// guard primitives and the ports used by entitysync.
package domain

import (
	"encoding/json"
	"reflect"
	"strconv"
	"time"
)

// EntityKind identifies the type of record mirrored from the remote store.
type EntityKind string

// Supported entity kinds used for store keys, schemas and remote routes.
const (
	// KindTeam identifies a team record.
	KindTeam EntityKind = "team"
	// KindUser identifies a user record.
	KindUser EntityKind = "user"
	// KindCollection identifies a collection of projects.
	KindCollection EntityKind = "collection"
	KindProject    EntityKind = "project"
)

// Plural returns the collection segment used by the remote API.
func (k EntityKind) Plural() string {
	return string(k) + "s"
}

// Valid reports whether the kind has a registered schema.
func (k EntityKind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// EntityRef keys an entity within the store.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// Ref is shorthand for building an EntityRef.
func Ref(kind EntityKind, id string) EntityRef {
	return EntityRef{Kind: kind, ID: id}
}

func (r EntityRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// RelationItem is a member of a relation. Attributes carry per-item data such
// as a team member's access level.
type RelationItem struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Item builds a relation item with optional attributes.
func Item(id string, attrs map[string]any) RelationItem {
	return RelationItem{ID: id, Attributes: cloneItemAttributes(attrs)}
}

// Clone returns a deep copy of the item. Empty attribute maps collapse to nil.
func (i RelationItem) Clone() RelationItem {
	return RelationItem{ID: i.ID, Attributes: cloneItemAttributes(i.Attributes)}
}

// Relation is either a set (unique ids, order insignificant) or an ordered list.
type Relation struct {
	Ordered bool           `json:"ordered"`
	Items   []RelationItem `json:"items"`
}

// IndexOf returns the index of the first item with id, or -1.
func (r Relation) IndexOf(id string) int {
	for i, item := range r.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Contains reports whether an item with id is present.
func (r Relation) Contains(id string) bool {
	return r.IndexOf(id) >= 0
}

// IDs lists item ids in relation order.
func (r Relation) IDs() []string {
	out := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, item.ID)
	}
	return out
}

// Clone returns a deep copy preserving item order.
func (r Relation) Clone() Relation {
	items := make([]RelationItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = item.Clone()
	}
	return Relation{Ordered: r.Ordered, Items: items}
}

// Entity is the canonical local representation of a remote record.
type Entity struct {
	Kind       EntityKind          `json:"kind"`
	ID         string              `json:"id"`
	Attributes map[string]any      `json:"attributes"`
	Relations  map[string]Relation `json:"relations"`
}

// Ref returns the store key for the entity.
func (e Entity) Ref() EntityRef {
	return EntityRef{Kind: e.Kind, ID: e.ID}
}

// Attr returns the named attribute value.
func (e Entity) Attr(name string) any {
	return e.Attributes[name]
}

// Relation returns the named relation, or an empty one when absent.
func (e Entity) Relation(name string) Relation {
	return e.Relations[name]
}

// Clone returns a deep copy. Maps and slices of the copy are never nil.
func (e Entity) Clone() Entity {
	out := Entity{
		Kind:       e.Kind,
		ID:         e.ID,
		Attributes: make(map[string]any, len(e.Attributes)),
		Relations:  make(map[string]Relation, len(e.Relations)),
	}
	for k, v := range e.Attributes {
		out.Attributes[k] = cloneValue(v)
	}
	for k, rel := range e.Relations {
		out.Relations[k] = rel.Clone()
	}
	return out
}

// Equal reports deep equality of two entities.
func (e Entity) Equal(other Entity) bool {
	return reflect.DeepEqual(e.Clone(), other.Clone())
}

// EntitySnapshot is an immutable copy of an entity taken at a store version.
type EntitySnapshot struct {
	entity  Entity
	version uint64
	takenAt time.Time
}

// NewSnapshot captures a deep copy of the entity.
func NewSnapshot(entity Entity, version uint64, takenAt time.Time) EntitySnapshot {
	return EntitySnapshot{entity: entity.Clone(), version: version, takenAt: takenAt}
}

// Entity returns a copy of the captured entity.
func (s EntitySnapshot) Entity() Entity {
	return s.entity.Clone()
}

// Ref returns the key of the captured entity.
func (s EntitySnapshot) Ref() EntityRef {
	return s.entity.Ref()
}

// Version returns the store version at capture time.
func (s EntitySnapshot) Version() uint64 {
	return s.version
}

// TakenAt returns the capture timestamp.
func (s EntitySnapshot) TakenAt() time.Time {
	return s.takenAt
}

// IsZero reports whether the snapshot is uninitialized.
func (s EntitySnapshot) IsZero() bool {
	return s.entity.Kind == "" && s.entity.ID == ""
}

// IntValue converts JSON-ish numeric values to int.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func cloneAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneItemAttributes(attrs map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	return cloneAttributes(attrs)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAttributes(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
