package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNotEntity is returned when a payload does not carry an entity id.
var ErrNotEntity = errors.New("payload is not an entity representation")

// IdentifierFrom renders a JSON id value as an Identifier string. Numeric ids
// are rendered in base 10.
func IdentifierFrom(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// WireID renders an id for the wire: integer ids go out as JSON numbers.
func WireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && strconv.FormatInt(n, 10) == id {
		return json.Number(id)
	}
	return id
}

// DecodeObject parses a JSON object into a map, keeping numbers as json.Number.
func DecodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// DecodeEntity converts a flat remote representation into a normalized entity.
func DecodeEntity(kind EntityKind, raw []byte) (Entity, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Entity{}, ErrNotEntity
	}
	obj, err := DecodeObject(raw)
	if err != nil {
		return Entity{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	return EntityFromObject(kind, obj)
}

// EntityFromObject converts a decoded JSON object into a normalized entity.
func EntityFromObject(kind EntityKind, obj map[string]any) (Entity, error) {
	schema, ok := schemas[kind]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	id, ok := IdentifierFrom(obj["id"])
	if !ok {
		return Entity{}, ErrNotEntity
	}
	entity := Entity{Kind: kind, ID: id, Attributes: make(map[string]any), Relations: make(map[string]Relation)}
	for _, attr := range schema.Attributes {
		entity.Attributes[attr] = obj[attr]
	}
	for _, spec := range schema.Relations {
		list, _ := obj[spec.Name].([]any)
		rel := Relation{Ordered: spec.Ordered}
		for _, elem := range list {
			item, ok := decodeItem(spec, elem)
			if !ok {
				return Entity{}, fmt.Errorf("decode %s %s: invalid %s item", kind, id, spec.Name)
			}
			rel.Items = append(rel.Items, item)
		}
		entity.Relations[spec.Name] = rel
	}
	return Normalize(entity)
}

func decodeItem(spec RelationSpec, elem any) (RelationItem, bool) {
	if spec.ItemKey == "" {
		id, ok := IdentifierFrom(elem)
		return RelationItem{ID: id}, ok
	}
	switch t := elem.(type) {
	case map[string]any:
		id, ok := IdentifierFrom(t[spec.ItemKey])
		if !ok {
			return RelationItem{}, false
		}
		attrs := make(map[string]any, len(t))
		for k, v := range t {
			if k == spec.ItemKey {
				continue
			}
			attrs[k] = v
		}
		return Item(id, attrs), true
	default:
		id, ok := IdentifierFrom(elem)
		return RelationItem{ID: id}, ok
	}
}

// EntityObject renders the flat remote representation of an entity.
func EntityObject(entity Entity) (map[string]any, error) {
	schema, ok := schemas[entity.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", entity.Kind)
	}
	obj := make(map[string]any, len(schema.Attributes)+len(schema.Relations)+1)
	obj["id"] = WireID(entity.ID)
	for _, attr := range schema.Attributes {
		obj[attr] = cloneValue(entity.Attributes[attr])
	}
	for _, spec := range schema.Relations {
		rel := entity.Relations[spec.Name]
		list := make([]any, 0, len(rel.Items))
		for _, item := range rel.Items {
			if spec.ItemKey == "" {
				list = append(list, WireID(item.ID))
				continue
			}
			elem := make(map[string]any, len(item.Attributes)+1)
			for k, v := range item.Attributes {
				elem[k] = cloneValue(v)
			}
			elem[spec.ItemKey] = WireID(item.ID)
			list = append(list, elem)
		}
		obj[spec.Name] = list
	}
	return obj, nil
}

// EncodeEntity marshals the flat remote representation of an entity.
func EncodeEntity(entity Entity) ([]byte, error) {
	obj, err := EntityObject(entity)
	if err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}
