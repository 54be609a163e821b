package prometheus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	ctx := context.Background()
	r.Observe(ctx, "mutate.patchFields", true, 20*time.Millisecond)
	r.Observe(ctx, "mutate.patchFields", true, 30*time.Millisecond)
	r.Observe(ctx, "mutate.patchFields", false, time.Second)

	if got := testutil.ToFloat64(r.total.WithLabelValues("mutate.patchFields", "true")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.total.WithLabelValues("mutate.patchFields", "false")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if n := testutil.CollectAndCount(r.duration); n != 2 {
		t.Fatalf("expected two histogram series, got %d", n)
	}
	expected := `
# HELP entitysync_engine_operations_total Operations by name and outcome.
# TYPE entitysync_engine_operations_total counter
entitysync_engine_operations_total{operation="mutate.patchFields",success="false"} 1
entitysync_engine_operations_total{operation="mutate.patchFields",success="true"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "entitysync_engine_operations_total"); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestNewRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(reg, ""); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewRecorder(reg, ""); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewRecorder(nil, "http"); err != nil {
		t.Fatalf("private registry: %v", err)
	}
}
