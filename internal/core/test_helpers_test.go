package core

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"entitysync/pkg/domain"
)

type remoteCall struct {
	Method string
	Path   string
	Body   any
}

// fakeRemote records every call and answers through handler. A nil handler
// replies 200 with an empty body.
type fakeRemote struct {
	mu      sync.Mutex
	calls   []remoteCall
	handler func(call remoteCall) (domain.Response, error)
}

func (f *fakeRemote) do(method, path string, body any) (domain.Response, error) {
	call := remoteCall{Method: method, Path: path, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return domain.Response{Status: http.StatusOK}, nil
	}
	return handler(call)
}

func (f *fakeRemote) Get(_ context.Context, path string) (domain.Response, error) {
	return f.do(http.MethodGet, path, nil)
}

func (f *fakeRemote) Patch(_ context.Context, path string, body any) (domain.Response, error) {
	return f.do(http.MethodPatch, path, body)
}

func (f *fakeRemote) Post(_ context.Context, path string, body any) (domain.Response, error) {
	return f.do(http.MethodPost, path, body)
}

func (f *fakeRemote) Delete(_ context.Context, path string, body any) (domain.Response, error) {
	return f.do(http.MethodDelete, path, body)
}

func (f *fakeRemote) Calls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remoteCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeRemote) setHandler(h func(call remoteCall) (domain.Response, error)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

type notification struct {
	Message  string
	Severity domain.NotifySeverity
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []notification
}

func (c *captureNotifier) Notify(message string, severity domain.NotifySeverity) {
	c.mu.Lock()
	c.notes = append(c.notes, notification{Message: message, Severity: severity})
	c.mu.Unlock()
}

func (c *captureNotifier) Notes() []notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notification, len(c.notes))
	copy(out, c.notes)
	return out
}

type captureMetricsRecorder struct {
	mu      sync.Mutex
	records []metricRecord
}

type metricRecord struct {
	operation string
	success   bool
	duration  time.Duration
}

func (c *captureMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	c.mu.Lock()
	c.records = append(c.records, metricRecord{operation: operation, success: success, duration: duration})
	c.mu.Unlock()
}

func (c *captureMetricsRecorder) Records() []metricRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]metricRecord(nil), c.records...)
}

type captureTracer struct {
	mu    sync.Mutex
	spans []*captureSpan
}

type captureSpan struct {
	operation string
	ended     bool
	err       error
}

func (t *captureTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &captureSpan{operation: operation}
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return ctx, span
}

func (s *captureSpan) End(err error) {
	s.ended = true
	s.err = err
}

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
}

func (c *captureAuditRecorder) Entries() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuditEntry(nil), c.entries...)
}

func teamFixture() Entity {
	return domain.NewEntity(domain.KindTeam, "7", map[string]any{"name": "Cool Team", "url": "cool-team"}, map[string][]RelationItem{
		domain.RelationUsers: {
			domain.Item("3", map[string]any{domain.AccessLevelField: domain.AdminAccessLevel}),
			domain.Item("9", map[string]any{domain.AccessLevelField: domain.MemberAccessLevel}),
		},
		domain.RelationAdminIDs: domain.Items("3"),
		domain.RelationProjects: domain.Items("p1", "p2"),
	})
}

func collectionFixture() Entity {
	return domain.NewEntity(domain.KindCollection, "5", map[string]any{"name": "Faves", "userId": json.Number("3")}, map[string][]RelationItem{
		domain.RelationProjects: domain.Items("1", "2", "3"),
	})
}

func newTestEngine(t *testing.T, remote *fakeRemote, opts ...EngineOption) *MutationEngine {
	t.Helper()
	store := NewEntityStore()
	if err := store.Put(teamFixture()); err != nil {
		t.Fatalf("seed team: %v", err)
	}
	if err := store.Put(collectionFixture()); err != nil {
		t.Fatalf("seed collection: %v", err)
	}
	return NewMutationEngine(store, remote, opts...)
}

func relationIDs(t *testing.T, store *EntityStore, ref EntityRef, relation string) []string {
	t.Helper()
	entity, ok := store.Get(ref)
	if !ok {
		t.Fatalf("%s missing from store", ref)
	}
	return entity.Relation(relation).IDs()
}

func remoteFailure(status int, message string) func(remoteCall) (domain.Response, error) {
	return func(remoteCall) (domain.Response, error) {
		return domain.Response{}, &domain.RemoteError{Status: status, Message: message}
	}
}
