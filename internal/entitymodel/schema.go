// Package entitymodel exposes runtime helpers for serving the entity model
// schema derived from the domain schemas.
package entitymodel

import (
	"encoding/json"
	"net/http"

	"entitysync/pkg/domain"
)

// Kinds lists the entity kinds in document order.
var Kinds = []domain.EntityKind{domain.KindTeam, domain.KindUser, domain.KindCollection, domain.KindProject}

// Relation describes one relation of a kind.
type Relation struct {
	Name    string `json:"name"`
	Ordered bool   `json:"ordered"`
	ItemKey string `json:"itemKey,omitempty"`
	Prepend bool   `json:"prepend,omitempty"`
	Route   string `json:"route,omitempty"`
}

// Kind describes the attributes and relations of one entity kind.
type Kind struct {
	Name       string     `json:"name"`
	Collection string     `json:"collection"`
	Attributes []string   `json:"attributes"`
	Relations  []Relation `json:"relations"`
}

// Document is the entity model served to clients.
type Document struct {
	Kinds []Kind `json:"kinds"`
}

// Build returns the entity model document. Each call returns a fresh copy.
func Build() Document {
	doc := Document{Kinds: make([]Kind, 0, len(Kinds))}
	for _, k := range Kinds {
		schema, ok := domain.SchemaFor(k)
		if !ok {
			continue
		}
		kind := Kind{
			Name:       string(k),
			Collection: k.Plural(),
			Attributes: append([]string(nil), schema.Attributes...),
			Relations:  make([]Relation, 0, len(schema.Relations)),
		}
		for _, rel := range schema.Relations {
			kind.Relations = append(kind.Relations, Relation(rel))
		}
		doc.Kinds = append(doc.Kinds, kind)
	}
	return doc
}

// NewHandler serves the entity model document as JSON.
func NewHandler() http.Handler {
	body, err := json.Marshal(Build())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}
