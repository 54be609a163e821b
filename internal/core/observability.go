package core

import (
	"context"
	"time"

	"entitysync/pkg/domain"
)

// DefaultMutationTimeout bounds remote calls issued by the engine.
const DefaultMutationTimeout = 30 * time.Second

// Logger is the structured logging surface used by the engine. Arguments are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// MetricsRecorder observes engine operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around engine operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

func (noopSpan) End(error) {}

// MutationScope names the mutation an engine span belongs to.
type MutationScope struct {
	Entity   EntityRef
	Mutation MutationKind
}

type mutationScopeKey struct{}

func withMutationScope(ctx context.Context, scope MutationScope) context.Context {
	return context.WithValue(ctx, mutationScopeKey{}, scope)
}

// MutationScopeFrom returns the scope the engine attached to ctx.
func MutationScopeFrom(ctx context.Context) (MutationScope, bool) {
	scope, ok := ctx.Value(mutationScopeKey{}).(MutationScope)
	return scope, ok
}

// AuditStatus reports the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry captures one completed mutation.
type AuditEntry struct {
	Operation  string
	Entity     EntityRef
	Mutation   MutationKind
	MutationID string
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}

type engineOptions struct {
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	notifier domain.Notifier
	guards   *domain.GuardSet
	timeout  time.Duration
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		guards:  DefaultGuards(),
		timeout: DefaultMutationTimeout,
	}
}

// EngineOption configures a MutationEngine.
type EngineOption func(*engineOptions)

// WithClock overrides the engine clock. Nil keeps the default.
func WithClock(clock Clock) EngineOption {
	return func(o *engineOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger injects a logger. Nil keeps the no-op logger.
func WithLogger(logger Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder injects a metrics recorder.
func WithMetricsRecorder(recorder MetricsRecorder) EngineOption {
	return func(o *engineOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer injects a tracer.
func WithTracer(tracer Tracer) EngineOption {
	return func(o *engineOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder injects an audit recorder.
func WithAuditRecorder(recorder AuditRecorder) EngineOption {
	return func(o *engineOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithNotifier sets the notifier used for mutations submitted outside a view.
func WithNotifier(notifier domain.Notifier) EngineOption {
	return func(o *engineOptions) {
		o.notifier = notifier
	}
}

// WithGuards replaces the default guard set.
func WithGuards(guards *domain.GuardSet) EngineOption {
	return func(o *engineOptions) {
		if guards != nil {
			o.guards = guards
		}
	}
}

// WithTimeout bounds remote calls. Non-positive values keep the default.
func WithTimeout(timeout time.Duration) EngineOption {
	return func(o *engineOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}
