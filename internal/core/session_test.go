package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"testing"

	"entitysync/pkg/domain"
)

func TestKebabCase(t *testing.T) {
	cases := map[string]string{
		"My Great Team":     "my-great-team",
		"  spaced   out ":   "spaced-out",
		"camelCaseName":     "camel-case-name",
		"Team #42!":         "team-42",
		"already-kebab":     "already-kebab",
		"":                  "",
		"Ünïcode Wörds":     "ünïcode-wörds",
		"HTTPServer rocks":  "httpserver-rocks",
		"trailing-hyphen--": "trailing-hyphen",
	}
	for in, want := range cases {
		if got := KebabCase(in); got != want {
			t.Errorf("KebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRandomDefaults(t *testing.T) {
	for i := 0; i < 20; i++ {
		if !slices.Contains(CollectionColors, RandomColor()) {
			t.Fatalf("colour outside the palette")
		}
		if RandomTeamDescription() == "" {
			t.Fatalf("expected a description")
		}
	}
}

func TestTeamURLAvailable(t *testing.T) {
	cases := []struct {
		name      string
		handler   func(remoteCall) (domain.Response, error)
		available bool
		wantErr   bool
	}{
		{"missing team", remoteFailure(http.StatusNotFound, ""), true, false},
		{"null body", func(remoteCall) (domain.Response, error) {
			return domain.Response{Status: http.StatusOK, Body: []byte("null")}, nil
		}, true, false},
		{"existing team", func(remoteCall) (domain.Response, error) {
			return domain.Response{Status: http.StatusOK, Body: []byte(`{"id":1,"url":"taken"}`)}, nil
		}, false, false},
		{"server error", remoteFailure(http.StatusInternalServerError, ""), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remote := &fakeRemote{handler: tc.handler}
			notifier := &captureNotifier{}
			session := NewSession(SessionConfig{Client: remote}, WithNotifier(notifier))
			available, err := session.TeamURLAvailable(context.Background(), "taken")
			if (err != nil) != tc.wantErr || available != tc.available {
				t.Fatalf("got available=%v err=%v", available, err)
			}
			if calls := remote.Calls(); len(calls) != 1 || calls[0].Path != "teams/byUrl/taken" {
				t.Fatalf("unexpected calls %+v", calls)
			}
			if len(notifier.Notes()) != 0 {
				t.Fatalf("availability checks must not notify")
			}
		})
	}
}

func TestCreateTeamStoresServerEntity(t *testing.T) {
	remote := &fakeRemote{}
	remote.setHandler(func(call remoteCall) (domain.Response, error) {
		body, _ := call.Body.(map[string]any)
		created := map[string]any{"id": 12, "name": body["name"], "url": body["url"], "users": []any{map[string]any{"id": 3, "accessLevel": 30}}, "adminIds": []any{3}}
		raw, err := json.Marshal(created)
		return domain.Response{Status: http.StatusOK, Body: raw}, err
	})
	session := NewSession(SessionConfig{Client: remote, CurrentUserID: "3"})
	view := session.OpenView(nil)
	defer view.Close()

	team, err := session.CreateTeam(context.Background(), view, "Night Owls")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if team.ID != "12" || team.Attr("url") != "night-owls" {
		t.Fatalf("unexpected team %+v", team)
	}
	if _, ok := session.Store().Get(domain.Ref(domain.KindTeam, "12")); !ok {
		t.Fatalf("expected created team in store")
	}
	calls := remote.Calls()
	if len(calls) != 1 || calls[0].Method != http.MethodPost || calls[0].Path != "teams" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if body, _ := calls[0].Body.(map[string]any); body["description"] == "" || body["isVerified"] != false {
		t.Fatalf("unexpected create body %v", calls[0].Body)
	}

	if _, err := session.CreateTeam(context.Background(), view, "!!!"); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected empty url to be rejected, got %v", err)
	}
}

func TestCreateCollectionSendsOwner(t *testing.T) {
	remote := &fakeRemote{}
	remote.setHandler(func(remoteCall) (domain.Response, error) {
		return domain.Response{Status: http.StatusOK, Body: []byte(`{"id":40,"name":"Faves","userId":3,"projects":[]}`)}, nil
	})
	session := NewSession(SessionConfig{Client: remote, CurrentUserID: "3"})
	view := session.OpenView(nil)
	defer view.Close()

	collection, err := session.CreateCollection(context.Background(), view, "Faves")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if collection.Ref() != domain.Ref(domain.KindCollection, "40") {
		t.Fatalf("unexpected collection %s", collection.Ref())
	}
	body, _ := remote.Calls()[0].Body.(map[string]any)
	if body["userId"] != json.Number("3") || body["avatarUrl"] != DefaultCollectionAvatar || body["url"] != "faves" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestLoaderLoadsAndClassifies(t *testing.T) {
	remote := &fakeRemote{}
	remote.setHandler(func(call remoteCall) (domain.Response, error) {
		if call.Path == "teams/7" {
			body, err := domain.EncodeEntity(teamFixture())
			return domain.Response{Status: http.StatusOK, Body: body}, err
		}
		return domain.Response{}, &domain.RemoteError{Status: http.StatusNotFound}
	})
	store := NewEntityStore()
	loader := NewLoader(store, remote, nil)
	ref := teamFixture().Ref()

	team, err := loader.Load(context.Background(), ref)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if team.Attr("name") != "Cool Team" || !domain.IsAdmin(team, "3") {
		t.Fatalf("unexpected loaded team %+v", team)
	}
	if ids := team.Relation(domain.RelationProjects).IDs(); !slices.Equal(ids, []string{"p1", "p2"}) {
		t.Fatalf("unexpected projects %v", ids)
	}
	if _, err := loader.Ensure(context.Background(), ref); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if n := len(remote.Calls()); n != 1 {
		t.Fatalf("ensure must use the stored entity, got %d calls", n)
	}

	_, err = loader.Load(context.Background(), domain.Ref(domain.KindTeam, "8"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
