package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"entitysync/pkg/domain"
)

var expvarSeq atomic.Uint64

// ExpvarRecorder publishes operation outcomes as one expvar map keyed by
// operation name:
//
//	{"mutate.patchFields": {"success": 3, "error": 1, "duration_ms": 41.5}}
type ExpvarRecorder struct {
	name string
	ops  *expvar.Map
	mu   sync.Mutex
}

// NewExpvarRecorder publishes a recorder under name, or under a generated
// name when empty. Recorders built with the same name share one map.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		name = fmt.Sprintf("entitysync_operations_%d", expvarSeq.Add(1))
	}
	if existing, ok := expvar.Get(name).(*expvar.Map); ok {
		return &ExpvarRecorder{name: name, ops: existing}
	}
	return &ExpvarRecorder{name: name, ops: expvar.NewMap(name)}
}

// Name returns the expvar key.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Observe implements MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m := r.operation(operation)
	m.Add(status, 1)
	m.AddFloat("duration_ms", float64(duration)/float64(time.Millisecond))
}

// Count returns how many outcomes of status were recorded for operation.
func (r *ExpvarRecorder) Count(operation, status string) int64 {
	m, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		return 0
	}
	if v, ok := m.Get(status).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

func (r *ExpvarRecorder) operation(name string) *expvar.Map {
	if m, ok := r.ops.Get(name).(*expvar.Map); ok {
		return m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.ops.Get(name).(*expvar.Map); ok {
		return m
	}
	m := new(expvar.Map).Init()
	r.ops.Set(name, m)
	return m
}

// MultiRecorder fans every observation out to each recorder.
func MultiRecorder(recorders ...MetricsRecorder) MetricsRecorder {
	out := make(multiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []MetricsRecorder

func (m multiRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		r.Observe(ctx, operation, success, duration)
	}
}

// TraceRecord is one JSON line written by JSONTracer.
type TraceRecord struct {
	Operation  string    `json:"operation"`
	Entity     string    `json:"entity,omitempty"`
	Mutation   string    `json:"mutation,omitempty"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes one TraceRecord per finished span. Spans started inside
// the engine carry the entity and mutation kind they belong to.
type JSONTracer struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
	now func() time.Time
}

// NewJSONTracer writes records to w.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{
		enc: json.NewEncoder(w),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Err returns the first write error, if any.
func (t *JSONTracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	record := TraceRecord{Operation: operation, StartedAt: t.now()}
	if scope, ok := MutationScopeFrom(ctx); ok {
		record.Entity = scope.Entity.String()
		record.Mutation = string(scope.Mutation)
	}
	return ctx, &jsonSpan{tracer: t, record: record}
}

type jsonSpan struct {
	tracer *JSONTracer
	record TraceRecord
	once   sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() {
		record := s.record
		record.DurationMS = float64(s.tracer.now().Sub(record.StartedAt)) / float64(time.Millisecond)
		record.Outcome = "ok"
		if err != nil {
			record.Outcome = "failed"
			record.Error = err.Error()
			if kind, ok := domain.KindOf(err); ok {
				record.ErrorKind = string(kind)
			}
		}
		s.tracer.write(record)
	})
}

func (t *JSONTracer) write(record TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = t.enc.Encode(record)
}
