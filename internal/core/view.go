package core

import (
	"context"
	"sync"
	"sync/atomic"

	"entitysync/pkg/domain"
)

// View is a consumer of entity state. It submits intents through the engine
// and receives their failure notifications until it is closed. Closing does
// not cancel in-flight mutations; they still reconcile or roll back.
type View struct {
	engine   *MutationEngine
	notifier domain.Notifier
	closed   atomic.Bool

	mu       sync.Mutex
	watches  []func()
	retained []EntityRef
}

var _ Mutator = (*View)(nil)

// OpenView creates a view routing notifications to notifier.
func (e *MutationEngine) OpenView(notifier domain.Notifier) *View {
	return &View{engine: e, notifier: notifier}
}

// Engine returns the engine backing the view.
func (v *View) Engine() *MutationEngine {
	return v.engine
}

// Notifier returns the notifier attached to the view.
func (v *View) Notifier() domain.Notifier {
	return v.notifier
}

// Mutate submits intent and waits for its outcome.
func (v *View) Mutate(ctx context.Context, intent MutationIntent) (Entity, error) {
	return waitFor(ctx, v.Submit(ctx, intent))
}

// Submit queues intent and returns its handle.
func (v *View) Submit(ctx context.Context, intent MutationIntent) *Submission {
	return v.engine.submit(ctx, intent, v.notifier, v, true)
}

// ApplyLocal applies intent to the store without a remote call.
func (v *View) ApplyLocal(ctx context.Context, intent MutationIntent) (Entity, error) {
	return waitFor(ctx, v.engine.submit(ctx, intent, v.notifier, v, false))
}

// Call issues a plain remote request and notifies this view on failure.
func (v *View) Call(ctx context.Context, method, path string, body any) (domain.Response, error) {
	notifier := v.notifier
	if v.Closed() {
		notifier = nil
	}
	return v.engine.Call(ctx, notifier, method, path, body)
}

// Notify forwards a message unless the view is closed.
func (v *View) Notify(message string, severity domain.NotifySeverity) {
	if v.notifier == nil || v.Closed() {
		return
	}
	v.notifier.Notify(message, severity)
}

// Watch retains ref and subscribes fn to its events until the view closes.
func (v *View) Watch(ref EntityRef, fn Subscriber) {
	store := v.engine.store
	store.Retain(ref)
	unsubscribe := store.Subscribe(ref, fn)
	v.mu.Lock()
	v.watches = append(v.watches, unsubscribe)
	v.retained = append(v.retained, ref)
	v.mu.Unlock()
}

// Close detaches the view: notifications stop and watched entities are released.
func (v *View) Close() {
	if v.closed.Swap(true) {
		return
	}
	v.mu.Lock()
	watches, retained := v.watches, v.retained
	v.watches, v.retained = nil, nil
	v.mu.Unlock()
	for _, unsubscribe := range watches {
		unsubscribe()
	}
	for _, ref := range retained {
		v.engine.store.Release(ref)
	}
}

// Closed reports whether Close has been called.
func (v *View) Closed() bool {
	return v.closed.Load()
}
