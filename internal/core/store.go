package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"entitysync/pkg/domain"
)

// EventKind describes why a store entry changed.
type EventKind string

// Store event kinds delivered to subscribers.
const (
	EventLoaded     EventKind = "loaded"
	EventOptimistic EventKind = "optimistic"
	EventReconciled EventKind = "reconciled"
	EventRolledBack EventKind = "rolled_back"
	EventEvicted    EventKind = "evicted"
)

// StoreEvent is delivered to subscribers after a write. Entity is a private
// copy; it is the zero value for evictions.
type StoreEvent struct {
	Kind    EventKind
	Ref     EntityRef
	Entity  Entity
	Version uint64
}

// Subscriber receives store events synchronously after the write that caused them.
type Subscriber func(StoreEvent)

type storeEntry struct {
	entity  Entity
	version uint64
	// loaded is the version of the last authoritative Put.
	loaded uint64
}

var (
	// ErrNotStored reports a reconcile or rollback of an entity that was
	// evicted in the meantime.
	ErrNotStored = errors.New("entity is not stored")
	// ErrSuperseded reports a rollback to a snapshot older than the last
	// authoritative load of the entity.
	ErrSuperseded = errors.New("snapshot superseded by a newer load")
)

// EntityStore owns the canonical in-memory entities. Readers always receive
// deep copies.
type EntityStore struct {
	mu      sync.RWMutex
	entries map[EntityRef]storeEntry
	refs    map[EntityRef]int
	subs    map[EntityRef]map[uint64]Subscriber
	global  map[uint64]Subscriber
	nextSub uint64
	version uint64
	now     func() time.Time
}

// NewEntityStore constructs an empty store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entries: make(map[EntityRef]storeEntry),
		refs:    make(map[EntityRef]int),
		subs:    make(map[EntityRef]map[uint64]Subscriber),
		global:  make(map[uint64]Subscriber),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a copy of the entity. The boolean is false when the entity is unknown.
func (s *EntityStore) Get(ref EntityRef) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[ref]
	if !ok {
		return Entity{}, false
	}
	return entry.entity.Clone(), true
}

// Snapshot captures the current value of the entity with its version.
func (s *EntityStore) Snapshot(ref EntityRef) (EntitySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[ref]
	if !ok {
		return EntitySnapshot{}, false
	}
	return domain.NewSnapshot(entry.entity, entry.version, s.now()), true
}

// Put inserts or overwrites an entity from an authoritative source.
func (s *EntityStore) Put(entity Entity) error {
	normalized, err := domain.Normalize(entity)
	if err != nil {
		return err
	}
	s.write(normalized, EventLoaded)
	return nil
}

// ApplyOptimistic runs mutator against a private copy of the entity, stores
// the result and returns the snapshot taken before the change.
func (s *EntityStore) ApplyOptimistic(ref EntityRef, mutator func(*Entity) error) (EntitySnapshot, error) {
	s.mu.Lock()
	entry, ok := s.entries[ref]
	if !ok {
		s.mu.Unlock()
		return EntitySnapshot{}, domain.NotFound(ref, "")
	}
	previous := domain.NewSnapshot(entry.entity, entry.version, s.now())
	working := entry.entity.Clone()
	if err := mutator(&working); err != nil {
		s.mu.Unlock()
		return EntitySnapshot{}, err
	}
	if working.Ref() != ref {
		s.mu.Unlock()
		return EntitySnapshot{}, fmt.Errorf("optimistic update of %s must not change kind or id", ref)
	}
	normalized, err := domain.Normalize(working)
	if err != nil {
		s.mu.Unlock()
		return EntitySnapshot{}, err
	}
	event := s.storeLocked(normalized, EventOptimistic)
	subs := s.subscribersLocked(ref)
	s.mu.Unlock()

	deliver(subs, event)
	return previous, nil
}

// Reconcile overwrites the entity with the server-authoritative value. It
// returns ErrNotStored when the entity is no longer held.
func (s *EntityStore) Reconcile(ref EntityRef, remote Entity) error {
	if remote.Ref() != ref {
		return fmt.Errorf("reconcile %s with %s", ref, remote.Ref())
	}
	normalized, err := domain.Normalize(remote)
	if err != nil {
		return err
	}
	return s.replace(normalized, EventReconciled, func(storeEntry) error { return nil })
}

// Rollback restores the entity to a previously captured snapshot. It returns
// ErrNotStored when the entity was evicted and ErrSuperseded when a load
// stored a newer authoritative value after the snapshot was taken.
func (s *EntityStore) Rollback(ref EntityRef, snapshot EntitySnapshot) error {
	if snapshot.IsZero() || snapshot.Ref() != ref {
		return fmt.Errorf("rollback %s with snapshot of %s", ref, snapshot.Ref())
	}
	return s.replace(snapshot.Entity(), EventRolledBack, func(entry storeEntry) error {
		if entry.loaded > snapshot.Version() {
			return fmt.Errorf("rollback %s to version %d: %w", ref, snapshot.Version(), ErrSuperseded)
		}
		return nil
	})
}

// Subscribe registers fn for events on ref. The returned function removes
// the subscription and may be called any number of times.
func (s *EntityStore) Subscribe(ref EntityRef, fn Subscriber) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[ref] == nil {
		s.subs[ref] = make(map[uint64]Subscriber)
	}
	s.subs[ref][id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[ref], id)
			if len(s.subs[ref]) == 0 {
				delete(s.subs, ref)
			}
		})
	}
}

// SubscribeAll registers fn for events on every entity.
func (s *EntityStore) SubscribeAll(fn Subscriber) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.global[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.global, id)
			s.mu.Unlock()
		})
	}
}

// Retain records interest in ref and returns the new retain count.
func (s *EntityStore) Retain(ref EntityRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ref]++
	return s.refs[ref]
}

// Release drops interest in ref. The entity is evicted when the count reaches zero.
func (s *EntityStore) Release(ref EntityRef) int {
	s.mu.Lock()
	count, ok := s.refs[ref]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	count--
	if count > 0 {
		s.refs[ref] = count
		s.mu.Unlock()
		return count
	}
	delete(s.refs, ref)
	event, evicted := s.evictLocked(ref)
	subs := s.subscribersLocked(ref)
	s.mu.Unlock()

	if evicted {
		deliver(subs, event)
	}
	return 0
}

// Evict removes ref regardless of its retain count.
func (s *EntityStore) Evict(ref EntityRef) bool {
	s.mu.Lock()
	delete(s.refs, ref)
	event, evicted := s.evictLocked(ref)
	subs := s.subscribersLocked(ref)
	s.mu.Unlock()

	if evicted {
		deliver(subs, event)
	}
	return evicted
}

// Refs lists the stored entity keys in a stable order.
func (s *EntityStore) Refs() []EntityRef {
	s.mu.RLock()
	out := make([]EntityRef, 0, len(s.entries))
	for ref := range s.entries {
		out = append(out, ref)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Version returns the store-wide write counter.
func (s *EntityStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *EntityStore) write(entity Entity, kind EventKind) {
	s.mu.Lock()
	event := s.storeLocked(entity, kind)
	subs := s.subscribersLocked(entity.Ref())
	s.mu.Unlock()
	deliver(subs, event)
}

// replace overwrites an existing entry when check accepts it.
func (s *EntityStore) replace(entity Entity, kind EventKind, check func(storeEntry) error) error {
	ref := entity.Ref()
	s.mu.Lock()
	entry, ok := s.entries[ref]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s %s: %w", kind, ref, ErrNotStored)
	}
	if err := check(entry); err != nil {
		s.mu.Unlock()
		return err
	}
	event := s.storeLocked(entity, kind)
	subs := s.subscribersLocked(ref)
	s.mu.Unlock()
	deliver(subs, event)
	return nil
}

func (s *EntityStore) storeLocked(entity Entity, kind EventKind) StoreEvent {
	s.version++
	entry := storeEntry{entity: entity, version: s.version, loaded: s.entries[entity.Ref()].loaded}
	if kind == EventLoaded {
		entry.loaded = s.version
	}
	s.entries[entity.Ref()] = entry
	return StoreEvent{Kind: kind, Ref: entity.Ref(), Entity: entity.Clone(), Version: s.version}
}

func (s *EntityStore) evictLocked(ref EntityRef) (StoreEvent, bool) {
	if _, ok := s.entries[ref]; !ok {
		return StoreEvent{}, false
	}
	delete(s.entries, ref)
	s.version++
	return StoreEvent{Kind: EventEvicted, Ref: ref, Version: s.version}, true
}

func (s *EntityStore) subscribersLocked(ref EntityRef) []Subscriber {
	out := make([]Subscriber, 0, len(s.subs[ref])+len(s.global))
	ids := make([]uint64, 0, len(s.subs[ref])+len(s.global))
	byID := make(map[uint64]Subscriber, cap(ids))
	for id, fn := range s.subs[ref] {
		ids = append(ids, id)
		byID[id] = fn
	}
	for id, fn := range s.global {
		ids = append(ids, id)
		byID[id] = fn
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func deliver(subs []Subscriber, event StoreEvent) {
	for _, fn := range subs {
		delivered := event
		if event.Kind != EventEvicted {
			delivered.Entity = event.Entity.Clone()
		}
		fn(delivered)
	}
}
