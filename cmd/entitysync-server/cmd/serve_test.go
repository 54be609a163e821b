package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"entitysync/internal/blob"
	"entitysync/internal/core"
	"entitysync/internal/infra/persistence"
	"entitysync/internal/infra/persistence/memory"
	"entitysync/pkg/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestServerMountsAPIAndMetrics(t *testing.T) {
	t.Setenv(persistence.EnvDriver, string(persistence.DriverMemory))
	t.Setenv(blob.EnvDriver, string(blob.DriverMemory))

	srv, err := newServer(context.Background(), ":0", nopLogger{})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()
	ts := httptest.NewServer(srv.http.Handler)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/teams", strings.NewReader(`{"name":"Acme","url":"acme"}`))
	req.Header.Set("Authorization", "Bearer 1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`entitysync_http_operations_total{operation="http.create",success="true"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}

	resp, err = http.Get(ts.URL + "/debug/vars")
	if err != nil {
		t.Fatalf("debug vars: %v", err)
	}
	var vars map[string]json.RawMessage
	err = json.NewDecoder(resp.Body).Decode(&vars)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode debug vars: %v", err)
	}
	var ops map[string]map[string]float64
	if err := json.Unmarshal(vars[ExpvarName], &ops); err != nil {
		t.Fatalf("decode %s: %v", ExpvarName, err)
	}
	if ops["http.create"]["success"] < 1 {
		t.Fatalf("expected http.create in %s, got %v", ExpvarName, ops)
	}

	resp, err = http.Get(ts.URL + "/schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected schema 200, got %d", resp.StatusCode)
	}
}

func TestServerRejectsUnknownDrivers(t *testing.T) {
	cases := []struct {
		name    string
		storage string
		blobs   string
	}{
		{name: "storage", storage: "oracle", blobs: string(blob.DriverMemory)},
		{name: "blob", storage: string(persistence.DriverMemory), blobs: "tape"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(persistence.EnvDriver, tc.storage)
			t.Setenv(blob.EnvDriver, tc.blobs)
			if _, err := newServer(context.Background(), ":0", nopLogger{}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

const fixtures = `{
  "users": [{"id": 1, "login": "ada", "teams": [7]}],
  "projects": [{"id": "p1", "name": "Engine", "users": [1]}],
  "teams": [{"id": 7, "name": "Acme", "url": "acme", "users": [{"id": 1, "accessLevel": 30}], "adminIds": [1], "projects": ["p1"]}],
  "collections": [{"id": 4, "name": "Favourites", "userId": 1, "projects": ["p1"]}]
}`

func TestSeedLoadsFixtures(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	n, err := seed(context.Background(), store, []byte(fixtures))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 entities, got %d", n)
	}
	team, ok := store.Get(domain.Ref(domain.KindTeam, "7"))
	if !ok {
		t.Fatalf("team not seeded")
	}
	if !domain.IsAdmin(team, "1") {
		t.Fatalf("expected user 1 to administer the seeded team")
	}
}

func TestSeedIsAllOrNothing(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{name: "malformed", payload: `{"teams": {}}`},
		{name: "unknown bucket", payload: `{"widgets": [{"id": 1}]}`},
		{name: "missing id", payload: `{"users": [{"id": 1}, {"login": "nobody"}]}`},
		{name: "duplicate", payload: `{"users": [{"id": 1}, {"id": 1}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore(core.NewDefaultRulesEngine())
			if _, err := seed(context.Background(), store, []byte(tc.payload)); err == nil {
				t.Fatalf("expected error")
			}
			if _, ok := store.Get(domain.Ref(domain.KindUser, "1")); ok {
				t.Fatalf("partial seed persisted")
			}
		})
	}
}

func TestSeedReportsDuplicateIDs(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	_, err := seed(context.Background(), store, []byte(`{"users": [{"id": 1}, {"id": 1}]}`))
	if !errors.Is(err, memory.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}
