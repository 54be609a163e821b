package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"testing"
	"time"

	"entitysync/pkg/domain"
)

func TestExpvarRecorderWithEngine(t *testing.T) {
	recorder := NewExpvarRecorder("")
	if !strings.HasPrefix(recorder.Name(), "entitysync_operations_") {
		t.Fatalf("unexpected generated name %q", recorder.Name())
	}
	remote := &fakeRemote{handler: remoteFailure(http.StatusInternalServerError, "")}
	engine := newTestEngine(t, remote, WithMetricsRecorder(recorder))
	ref := teamFixture().Ref()

	_, _ = engine.Mutate(context.Background(), domain.PatchFields(ref, map[string]any{"name": "x"}))
	remote.setHandler(nil)
	_, _ = engine.Mutate(context.Background(), domain.PatchFields(ref, map[string]any{"name": "y"}))
	recorder.Observe(context.Background(), "", true, time.Second)

	if got := recorder.Count("mutate.patchFields", "success"); got != 1 {
		t.Fatalf("success count = %d", got)
	}
	if got := recorder.Count("mutate.patchFields", "error"); got != 1 {
		t.Fatalf("error count = %d", got)
	}
	if got := recorder.Count("", "success"); got != 0 {
		t.Fatalf("empty operations must be ignored, got %d", got)
	}
	published := expvar.Get(recorder.Name())
	if published == nil {
		t.Fatalf("recorder not published")
	}
	var doc map[string]map[string]float64
	if err := json.Unmarshal([]byte(published.String()), &doc); err != nil {
		t.Fatalf("decode published map: %v", err)
	}
	if _, ok := doc["mutate.patchFields"]["duration_ms"]; !ok {
		t.Fatalf("expected durations in %v", doc)
	}

	shared := NewExpvarRecorder(recorder.Name())
	shared.Observe(context.Background(), "mutate.patchFields", true, time.Millisecond)
	if got := recorder.Count("mutate.patchFields", "success"); got != 2 {
		t.Fatalf("recorders with one name must share counts, got %d", got)
	}
}

func TestMultiRecorderFansOut(t *testing.T) {
	first := &captureMetricsRecorder{}
	second := &captureMetricsRecorder{}
	recorder := MultiRecorder(first, nil, second)

	recorder.Observe(context.Background(), "http.patch", false, time.Millisecond)

	for i, c := range []*captureMetricsRecorder{first, second} {
		records := c.Records()
		if len(records) != 1 || records[0].operation != "http.patch" || records[0].success {
			t.Fatalf("recorder %d got %+v", i, records)
		}
	}
}

func TestJSONTracerRecordsMutationScope(t *testing.T) {
	cases := []struct {
		name      string
		handler   func(remoteCall) (domain.Response, error)
		intent    MutationIntent
		want      TraceRecord
		wantError bool
	}{
		{
			name:   "success",
			intent: domain.PatchFields(teamFixture().Ref(), map[string]any{"name": "Traced"}),
			want:   TraceRecord{Operation: "mutate.patchFields", Entity: "team/7", Mutation: "patchFields", Outcome: "ok"},
		},
		{
			name:      "rolled back",
			handler:   remoteFailure(http.StatusInternalServerError, "boom"),
			intent:    domain.AddRelationItem(collectionFixture().Ref(), domain.RelationProjects, domain.Item("10", nil)),
			want:      TraceRecord{Operation: "mutate.addRelationItem", Entity: "collection/5", Mutation: "addRelationItem", Outcome: "failed", ErrorKind: "NetworkFailure"},
			wantError: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tracer := NewJSONTracer(&buf)
			engine := newTestEngine(t, &fakeRemote{handler: tc.handler}, WithTracer(tracer))

			if _, err := engine.Mutate(context.Background(), tc.intent); (err != nil) != tc.wantError {
				t.Fatalf("unexpected error %v", err)
			}

			scanner := bufio.NewScanner(&buf)
			var records []TraceRecord
			for scanner.Scan() {
				var record TraceRecord
				if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
					t.Fatalf("decode line %q: %v", scanner.Text(), err)
				}
				records = append(records, record)
			}
			if len(records) != 1 {
				t.Fatalf("expected one record, got %d", len(records))
			}
			got := records[0]
			if got.Operation != tc.want.Operation || got.Entity != tc.want.Entity || got.Mutation != tc.want.Mutation ||
				got.Outcome != tc.want.Outcome || got.ErrorKind != tc.want.ErrorKind {
				t.Fatalf("unexpected record %+v", got)
			}
			if tc.wantError && got.Error == "" {
				t.Fatalf("failed span must carry the error")
			}
			if tracer.Err() != nil {
				t.Fatalf("write error: %v", tracer.Err())
			}
		})
	}
}

type failingWriter struct{ writes int }

func (w *failingWriter) Write([]byte) (int, error) {
	w.writes++
	return 0, errors.New("disk full")
}

func TestJSONTracerKeepsFirstWriteError(t *testing.T) {
	w := &failingWriter{}
	tracer := NewJSONTracer(w)
	for i := 0; i < 2; i++ {
		_, span := tracer.Start(context.Background(), "mutate.patchFields")
		span.End(nil)
		span.End(errors.New("ended twice"))
	}
	if err := tracer.Err(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
	if w.writes != 1 {
		t.Fatalf("tracer kept writing after an error: %d writes", w.writes)
	}
}
