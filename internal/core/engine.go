package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"entitysync/pkg/domain"
)

// PendingStatus tracks the lifecycle of an optimistic mutation.
type PendingStatus string

// Pending mutation states.
const (
	PendingInflight  PendingStatus = "inflight"
	PendingSucceeded PendingStatus = "succeeded"
	PendingFailed    PendingStatus = "failed"
)

// PendingMutation is an optimistic change awaiting remote confirmation.
type PendingMutation struct {
	ID       uuid.UUID
	Intent   MutationIntent
	Previous EntitySnapshot
	IssuedAt time.Time
	Status   PendingStatus
}

// Mutator submits intents and waits for their outcome. MutationEngine and
// View both implement it.
type Mutator interface {
	Mutate(ctx context.Context, intent MutationIntent) (Entity, error)
}

// Submission is the handle of an asynchronously running mutation.
type Submission struct {
	done   chan struct{}
	entity Entity
	err    error
}

// Done is closed once the mutation reconciled, rolled back or was rejected.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the mutation finishes and returns its outcome.
func (s *Submission) Wait() (Entity, error) {
	<-s.done
	return s.entity, s.err
}

func (s *Submission) finish(entity Entity, err error) {
	s.entity, s.err = entity, err
	close(s.done)
}

// MutationEngine applies intents optimistically, mirrors them to the remote
// store and reconciles or rolls back. Intents for the same entity run one at a
// time in submission order; different entities proceed concurrently.
type MutationEngine struct {
	store  *EntityStore
	client domain.RemoteClient
	opts   engineOptions

	mu      sync.Mutex
	lanes   map[EntityRef]chan struct{}
	pending map[EntityRef][]*PendingMutation
	running sync.WaitGroup
}

var _ Mutator = (*MutationEngine)(nil)

// NewMutationEngine constructs an engine over store and client.
func NewMutationEngine(store *EntityStore, client domain.RemoteClient, opts ...EngineOption) *MutationEngine {
	options := defaultEngineOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &MutationEngine{
		store:   store,
		client:  client,
		opts:    options,
		lanes:   make(map[EntityRef]chan struct{}),
		pending: make(map[EntityRef][]*PendingMutation),
	}
}

// Store returns the entity store the engine writes to.
func (e *MutationEngine) Store() *EntityStore {
	return e.store
}

// Client returns the remote client used by the engine.
func (e *MutationEngine) Client() domain.RemoteClient {
	return e.client
}

// Logger returns the configured logger.
func (e *MutationEngine) Logger() Logger {
	return e.opts.logger
}

// Timeout returns the bound applied to remote calls.
func (e *MutationEngine) Timeout() time.Duration {
	return e.opts.timeout
}

// Mutate submits intent and waits for its outcome. If ctx is cancelled first
// the mutation keeps running, its notifications are suppressed and ctx.Err()
// is returned.
func (e *MutationEngine) Mutate(ctx context.Context, intent MutationIntent) (Entity, error) {
	return waitFor(ctx, e.Submit(ctx, intent))
}

// Submit queues intent on its entity lane and returns immediately.
func (e *MutationEngine) Submit(ctx context.Context, intent MutationIntent) *Submission {
	return e.submit(ctx, intent, e.opts.notifier, nil, true)
}

// ApplyLocal runs intent through the entity lane and guards without issuing
// a remote call. It is used for local projections of changes confirmed elsewhere.
func (e *MutationEngine) ApplyLocal(ctx context.Context, intent MutationIntent) (Entity, error) {
	return waitFor(ctx, e.submit(ctx, intent, e.opts.notifier, nil, false))
}

// Pending lists in-flight mutations for ref in submission order.
func (e *MutationEngine) Pending(ref EntityRef) []PendingMutation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingMutation, 0, len(e.pending[ref]))
	for _, p := range e.pending[ref] {
		out = append(out, *p)
	}
	return out
}

// Drain blocks until every submitted mutation has finished or ctx is done.
func (e *MutationEngine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call issues a non-optimistic remote request bounded by the engine timeout.
// Failures produce one notification through notifier unless ctx is cancelled.
func (e *MutationEngine) Call(ctx context.Context, notifier domain.Notifier, method, path string, body any) (domain.Response, error) {
	ref := EntityRef{}
	resp, err := e.remote(ctx, method, path, body)
	if err != nil {
		merr := e.classify(ref, err)
		e.notify(ctx, notifier, nil, merr)
		return domain.Response{}, merr
	}
	return resp, nil
}

func waitFor(ctx context.Context, sub *Submission) (Entity, error) {
	select {
	case <-sub.Done():
		return sub.Wait()
	case <-ctx.Done():
		return Entity{}, ctx.Err()
	}
}

func (e *MutationEngine) submit(ctx context.Context, intent MutationIntent, notifier domain.Notifier, view *View, remote bool) *Submission {
	sub := &Submission{done: make(chan struct{})}
	ref := intent.Entity

	e.mu.Lock()
	prev := e.lanes[ref]
	turn := make(chan struct{})
	e.lanes[ref] = turn
	e.mu.Unlock()

	e.running.Add(1)
	go func() {
		defer e.running.Done()
		if prev != nil {
			<-prev
		}
		entity, err := e.execute(ctx, intent, notifier, view, remote)
		e.mu.Lock()
		if e.lanes[ref] == turn {
			delete(e.lanes, ref)
		}
		e.mu.Unlock()
		close(turn)
		sub.finish(entity, err)
	}()
	return sub
}

func (e *MutationEngine) execute(ctx context.Context, intent MutationIntent, notifier domain.Notifier, view *View, remote bool) (entity Entity, err error) {
	ref := intent.Entity
	op := "mutate." + string(intent.Kind)
	if !remote {
		op = "apply_local." + string(intent.Kind)
	}
	started := e.opts.clock.Now()
	spanCtx, span := e.opts.tracer.Start(withMutationScope(ctx, MutationScope{Entity: ref, Mutation: intent.Kind}), op)
	mutationID := ""
	defer func() {
		finished := e.opts.clock.Now()
		span.End(err)
		e.opts.metrics.Observe(spanCtx, op, err == nil, finished.Sub(started))
		entry := AuditEntry{
			Operation:  op,
			Entity:     ref,
			Mutation:   intent.Kind,
			MutationID: mutationID,
			Status:     AuditStatusSuccess,
			Duration:   finished.Sub(started),
			StartedAt:  started,
			FinishedAt: finished,
		}
		if err != nil {
			entry.Status = AuditStatusError
			entry.Error = err.Error()
		}
		e.opts.audit.Record(spanCtx, entry)
	}()

	fail := func(merr *domain.MutationError) (Entity, error) {
		e.notify(ctx, notifier, view, merr)
		return Entity{}, merr
	}

	current, ok := e.store.Get(ref)
	if !ok {
		return fail(domain.NotFound(ref, ""))
	}
	if res := e.opts.guards.Check(intent, current); res.HasBlocking() {
		e.opts.logger.Debug("mutation rejected by guard", "entity", ref.String(), "mutation", string(intent.Kind), "violations", len(res.Violations))
		return fail(domain.InvariantViolation(ref, res))
	}
	if remote && !routable(intent) {
		return fail(domain.InvariantViolation(ref, domain.Block("remote_route", intent, fmt.Sprintf("relation %q cannot be changed remotely", intent.Payload.Relation))))
	}
	_, changed, err := domain.Apply(current, intent)
	if err != nil {
		return fail(asMutationError(ref, err))
	}
	if !changed && !(remote && intent.Payload.Force) {
		return current, nil
	}

	previous, err := e.store.ApplyOptimistic(ref, func(working *Entity) error {
		next, _, err := domain.Apply(*working, intent)
		if err != nil {
			return err
		}
		*working = next
		return nil
	})
	if err != nil {
		return fail(asMutationError(ref, err))
	}
	if !remote {
		applied, _ := e.store.Get(ref)
		return applied, nil
	}

	pending := e.track(intent, previous)
	mutationID = pending.ID.String()
	method, path, body := intent.Route()
	resp, callErr := e.remote(spanCtx, method, path, body)
	if callErr != nil {
		e.finishPending(pending, PendingFailed)
		if rbErr := e.store.Rollback(ref, previous); rbErr != nil {
			e.logStoreSkip("rollback", ref, rbErr)
		}
		merr := e.classify(ref, callErr)
		e.opts.logger.Warn("mutation rolled back", "entity", ref.String(), "mutation", string(intent.Kind), "error", callErr)
		return fail(merr)
	}

	e.finishPending(pending, PendingSucceeded)
	confirmed, _, _ := domain.Apply(current, intent)
	if intent.TargetsEntity() {
		if server, decErr := domain.DecodeEntity(ref.Kind, resp.Body); decErr == nil && server.Ref() == ref {
			confirmed = server
			if recErr := e.store.Reconcile(ref, server); recErr != nil {
				e.logStoreSkip("reconcile", ref, recErr)
			}
		}
	}
	if result, ok := e.store.Get(ref); ok {
		return result, nil
	}
	return confirmed, nil
}

func (e *MutationEngine) logStoreSkip(step string, ref EntityRef, err error) {
	if errors.Is(err, ErrNotStored) || errors.Is(err, ErrSuperseded) {
		e.opts.logger.Debug(step+" skipped", "entity", ref.String(), "reason", err)
		return
	}
	e.opts.logger.Error(step+" failed", "entity", ref.String(), "error", err)
}

// remote performs the call detached from caller cancellation and bounded by
// the engine timeout. A late result is dropped.
func (e *MutationEngine) remote(ctx context.Context, method, path string, body any) (domain.Response, error) {
	if e.client == nil {
		return domain.Response{}, errors.New("no remote client configured")
	}
	callCtx := context.WithoutCancel(ctx)
	type outcome struct {
		resp domain.Response
		err  error
	}
	results := make(chan outcome, 1)
	go func() {
		resp, err := dispatch(callCtx, e.client, method, path, body)
		results <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(e.opts.timeout)
	defer timer.Stop()
	select {
	case out := <-results:
		return out.resp, out.err
	case <-timer.C:
		return domain.Response{}, errCallTimedOut
	}
}

var errCallTimedOut = errors.New("no response before deadline")

func dispatch(ctx context.Context, client domain.RemoteClient, method, path string, body any) (domain.Response, error) {
	switch method {
	case http.MethodGet:
		return client.Get(ctx, path)
	case http.MethodPatch:
		return client.Patch(ctx, path, body)
	case http.MethodPost:
		return client.Post(ctx, path, body)
	case http.MethodDelete:
		return client.Delete(ctx, path, body)
	default:
		return domain.Response{}, fmt.Errorf("unsupported method %s", method)
	}
}

func (e *MutationEngine) classify(ref EntityRef, err error) *domain.MutationError {
	var merr *domain.MutationError
	if errors.As(err, &merr) {
		return merr
	}
	if errors.Is(err, errCallTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Timeout(ref, err)
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return domain.Timeout(ref, err)
	}
	var remote *domain.RemoteError
	if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
		return &domain.MutationError{Kind: domain.ErrorNotFound, Ref: ref, Cause: err}
	}
	return domain.NetworkFailure(ref, err)
}

func (e *MutationEngine) notify(ctx context.Context, notifier domain.Notifier, view *View, merr *domain.MutationError) {
	if notifier == nil {
		return
	}
	if view != nil && view.Closed() {
		e.opts.logger.Debug("notification suppressed for closed view", "entity", merr.Ref.String())
		return
	}
	if ctx.Err() != nil {
		e.opts.logger.Debug("notification suppressed for cancelled caller", "entity", merr.Ref.String())
		return
	}
	notifier.Notify(merr.UserMessage(), domain.NotifyError)
}

func (e *MutationEngine) track(intent MutationIntent, previous EntitySnapshot) *PendingMutation {
	p := &PendingMutation{
		ID:       uuid.New(),
		Intent:   intent,
		Previous: previous,
		IssuedAt: e.opts.clock.Now(),
		Status:   PendingInflight,
	}
	e.mu.Lock()
	e.pending[intent.Entity] = append(e.pending[intent.Entity], p)
	e.mu.Unlock()
	return p
}

func (e *MutationEngine) finishPending(p *PendingMutation, status PendingStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p.Status = status
	ref := p.Intent.Entity
	list := e.pending[ref]
	for i, candidate := range list {
		if candidate == p {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(e.pending, ref)
		return
	}
	e.pending[ref] = list
}

func routable(intent MutationIntent) bool {
	if intent.Kind == domain.MutationPatchFields || intent.Payload.Path != "" {
		return true
	}
	schema, ok := domain.SchemaFor(intent.Entity.Kind)
	if !ok {
		return false
	}
	spec, ok := schema.Relation(intent.Payload.Relation)
	return ok && spec.Route != ""
}

func asMutationError(ref EntityRef, err error) *domain.MutationError {
	var merr *domain.MutationError
	if errors.As(err, &merr) {
		return merr
	}
	return &domain.MutationError{Kind: domain.ErrorInvariantViolation, Ref: ref, Reason: err.Error()}
}
