package domain

import "context"

// Severity captures guard outcomes.
type Severity string

// Guard evaluation severities determine whether a mutation may proceed.
const (
	// SeverityBlock rejects the mutation before any write.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows the mutation.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed guard evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityKind
	EntityID string
}

// Result aggregates violations from a guard set.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Guard is a pure predicate evaluated before a mutation is applied. Guards
// never perform I/O.
type Guard interface {
	Name() string
	Applies(kind EntityKind, mutation MutationKind) bool
	Evaluate(intent MutationIntent, current Entity) Result
}

// GuardSet orchestrates guard evaluation.
type GuardSet struct {
	guards []Guard
}

// NewGuardSet constructs a set from the supplied guards.
func NewGuardSet(guards ...Guard) *GuardSet {
	return &GuardSet{guards: append([]Guard(nil), guards...)}
}

// Register appends a guard to the set.
func (s *GuardSet) Register(guard Guard) {
	s.guards = append(s.guards, guard)
}

// Guards returns the registered guards in evaluation order.
func (s *GuardSet) Guards() []Guard {
	return append([]Guard(nil), s.guards...)
}

// Check evaluates every applicable guard and aggregates their results.
func (s *GuardSet) Check(intent MutationIntent, current Entity) Result {
	var combined Result
	if s == nil {
		return combined
	}
	for _, guard := range s.guards {
		if !guard.Applies(intent.Entity.Kind, intent.Kind) {
			continue
		}
		combined.Merge(guard.Evaluate(intent, current))
	}
	return combined
}

// Block is a helper for guards building a single blocking violation.
func Block(rule string, intent MutationIntent, message string) Result {
	return Result{Violations: []Violation{{
		Rule:     rule,
		Severity: SeverityBlock,
		Message:  message,
		Entity:   intent.Entity.Kind,
		EntityID: intent.Entity.ID,
	}}}
}

// Action enumerates persisted change operations.
type Action string

// Change actions captured by the reference backend.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Change describes a persisted mutation evaluated by backend rules.
type Change struct {
	Entity EntityRef
	Action Action
	Before *Entity
	After  *Entity
}

// Rule defines an evaluation executed within a backend transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return v.Message
		}
	}
	return "transaction blocked by rules"
}
