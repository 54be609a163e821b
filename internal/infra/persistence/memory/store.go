// Package memory provides the in-memory transactional entity store backing
// the reference server and the snapshotting SQL stores.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"entitysync/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Entity aliases domain.Entity.
	Entity = domain.Entity
	// EntityRef aliases domain.EntityRef.
	EntityRef = domain.EntityRef
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
)

// Kinds lists the persisted entity kinds in bucket order.
var Kinds = []domain.EntityKind{domain.KindTeam, domain.KindUser, domain.KindCollection, domain.KindProject}

// BucketName returns the snapshot bucket of kind, e.g. "teams".
func BucketName(kind domain.EntityKind) string { return kind.Plural() }

// Snapshot is a serializable copy of the store, one bucket per kind.
type Snapshot struct {
	Entities map[domain.EntityKind][]Entity
}

// MarshalBucket encodes the entities of kind as a JSON array of their flat
// wire representations, sorted by id.
func (s Snapshot) MarshalBucket(kind domain.EntityKind) ([]byte, error) {
	entities := s.Entities[kind]
	objs := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		obj, err := domain.EntityObject(e)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", BucketName(kind), err)
		}
		objs = append(objs, obj)
	}
	return json.Marshal(objs)
}

// UnmarshalBucket decodes a payload produced by MarshalBucket into s.
func (s *Snapshot) UnmarshalBucket(kind domain.EntityKind, payload []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return fmt.Errorf("decode %s: %w", BucketName(kind), err)
	}
	out := make([]Entity, 0, len(raws))
	for _, raw := range raws {
		e, err := domain.DecodeEntity(kind, raw)
		if err != nil {
			return fmt.Errorf("decode %s: %w", BucketName(kind), err)
		}
		out = append(out, e)
	}
	if s.Entities == nil {
		s.Entities = make(map[domain.EntityKind][]Entity, len(Kinds))
	}
	s.Entities[kind] = out
	return nil
}

type memoryState map[domain.EntityKind]map[string]Entity

func newMemoryState() memoryState {
	state := make(memoryState, len(Kinds))
	for _, kind := range Kinds {
		state[kind] = make(map[string]Entity)
	}
	return state
}

func (s memoryState) clone() memoryState {
	out := make(memoryState, len(s))
	for kind, bucket := range s {
		cp := make(map[string]Entity, len(bucket))
		for id, e := range bucket {
			cp[id] = e.Clone()
		}
		out[kind] = cp
	}
	return out
}

func (s memoryState) list(kind domain.EntityKind) []Entity {
	bucket := s[kind]
	out := make([]Entity, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// lessID orders numeric ids numerically and before non-numeric ones.
func lessID(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

func snapshotFromState(state memoryState) Snapshot {
	snap := Snapshot{Entities: make(map[domain.EntityKind][]Entity, len(Kinds))}
	for _, kind := range Kinds {
		snap.Entities[kind] = state.list(kind)
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for kind, entities := range snap.Entities {
		if _, ok := state[kind]; !ok {
			continue
		}
		for _, e := range entities {
			normalized, err := domain.Normalize(e)
			if err != nil {
				continue
			}
			state[kind][normalized.ID] = normalized
		}
	}
	return state
}

// Store provides an in-memory transactional store of entities.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store evaluating engine on every commit.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the store state with the provided snapshot. Entities
// that fail normalization are dropped.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Get returns a copy of the referenced entity.
func (s *Store) Get(ref EntityRef) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state[ref.Kind][ref.ID]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// List returns copies of every entity of kind ordered by id.
func (s *Store) List(kind domain.EntityKind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.list(kind)
}

type transaction struct {
	state   memoryState
	changes []Change
}

type transactionView struct {
	state memoryState
}

func (v transactionView) Find(ref EntityRef) (Entity, bool) {
	e, ok := v.state[ref.Kind][ref.ID]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

func (v transactionView) List(kind domain.EntityKind) []Entity {
	return v.state.list(kind)
}

// RunInTransaction applies fn to a copy of the state, evaluates the rules
// engine over the recorded changes and commits only when nothing blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, transactionView{state: tx.state}, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: snapshot})
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView {
	return transactionView{state: tx.state}
}

func (tx *transaction) Find(ref EntityRef) (Entity, bool) {
	return transactionView{state: tx.state}.Find(ref)
}

// ErrDuplicateID is returned when Create targets an existing id.
var ErrDuplicateID = errors.New("entity id already exists")

// Create stores a new entity. An empty id is assigned: projects get a UUID,
// other kinds the next integer id.
func (tx *transaction) Create(entity Entity) (Entity, error) {
	bucket, ok := tx.state[entity.Kind]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity kind %q", entity.Kind)
	}
	if entity.ID == "" {
		entity.ID = tx.nextID(entity.Kind)
	}
	if _, exists := bucket[entity.ID]; exists {
		return Entity{}, fmt.Errorf("%s %s: %w", entity.Kind, entity.ID, ErrDuplicateID)
	}
	normalized, err := domain.Normalize(entity)
	if err != nil {
		return Entity{}, err
	}
	bucket[normalized.ID] = normalized
	after := normalized.Clone()
	tx.recordChange(Change{Entity: normalized.Ref(), Action: domain.ActionCreate, After: &after})
	return normalized.Clone(), nil
}

// Update applies mutator to a copy of the referenced entity and stores the
// normalized result. The id and kind cannot change.
func (tx *transaction) Update(ref EntityRef, mutator func(*Entity) error) (Entity, error) {
	current, ok := tx.state[ref.Kind][ref.ID]
	if !ok {
		return Entity{}, domain.ErrEntityNotFound{Ref: ref}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Entity{}, err
	}
	next.Kind, next.ID = ref.Kind, ref.ID
	normalized, err := domain.Normalize(next)
	if err != nil {
		return Entity{}, err
	}
	tx.state[ref.Kind][ref.ID] = normalized
	after := normalized.Clone()
	tx.recordChange(Change{Entity: ref, Action: domain.ActionUpdate, Before: &before, After: &after})
	return normalized.Clone(), nil
}

// Delete removes the referenced entity.
func (tx *transaction) Delete(ref EntityRef) error {
	current, ok := tx.state[ref.Kind][ref.ID]
	if !ok {
		return domain.ErrEntityNotFound{Ref: ref}
	}
	delete(tx.state[ref.Kind], ref.ID)
	before := current.Clone()
	tx.recordChange(Change{Entity: ref, Action: domain.ActionDelete, Before: &before})
	return nil
}

func (tx *transaction) nextID(kind domain.EntityKind) string {
	if kind == domain.KindProject {
		return uuid.NewString()
	}
	var maxID int64
	for id := range tx.state[kind] {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > maxID {
			maxID = n
		}
	}
	return strconv.FormatInt(maxID+1, 10)
}
