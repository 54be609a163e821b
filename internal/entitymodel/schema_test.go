package entitymodel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"entitysync/pkg/domain"
)

func TestBuildReturnsCopy(t *testing.T) {
	doc := Build()
	if len(doc.Kinds) != len(Kinds) {
		t.Fatalf("expected %d kinds, got %d", len(Kinds), len(doc.Kinds))
	}
	doc.Kinds[0].Attributes[0] = "mutated"
	if Build().Kinds[0].Attributes[0] == "mutated" {
		t.Fatalf("Build leaked a shared attribute slice")
	}
	schema, _ := domain.SchemaFor(domain.KindTeam)
	if schema.Attributes[0] == "mutated" {
		t.Fatalf("Build exposed the domain schema")
	}
}

func TestBuildDescribesTeamRelations(t *testing.T) {
	var team Kind
	for _, k := range Build().Kinds {
		if k.Name == string(domain.KindTeam) {
			team = k
		}
	}
	if team.Collection != "teams" {
		t.Fatalf("unexpected collection %q", team.Collection)
	}
	want := map[string]Relation{
		domain.RelationProjects: {Name: domain.RelationProjects, Ordered: true, ItemKey: "id", Prepend: true, Route: "projects"},
		domain.RelationAdminIDs: {Name: domain.RelationAdminIDs},
	}
	for _, rel := range team.Relations {
		if w, ok := want[rel.Name]; ok {
			if rel != w {
				t.Fatalf("relation %s: expected %+v, got %+v", rel.Name, w, rel)
			}
			delete(want, rel.Name)
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing relations %v", want)
	}
}

func TestNewHandler(t *testing.T) {
	cases := []struct {
		method string
		status int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
	}
	h := NewHandler()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, "/schema", nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.method, tc.status, rec.Code)
		}
		if tc.status != http.StatusOK {
			continue
		}
		if got := rec.Header().Get("Content-Type"); got != "application/json" {
			t.Fatalf("unexpected content type %q", got)
		}
		var doc Document
		if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(doc.Kinds) != len(Kinds) {
			t.Fatalf("expected %d kinds, got %d", len(Kinds), len(doc.Kinds))
		}
	}
}
