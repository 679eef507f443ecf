package domain

import "context"

// Severity captures rule outcomes.
type Severity string

// Supported severities.
const (
	// SeverityBlock prevents the merge.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows the merge.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Kept     EntityID
	Merged   EntityID
}

// Result aggregates violations from the rules engine.
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

// MergeCandidate names the two sides of a proposed unification together with
// the references each side currently carries.
type MergeCandidate struct {
	Kept             EntityID
	Merged           EntityID
	KeptReferences   []string
	MergedReferences []string
}

// Rule decides whether a proposed unification is acceptable.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, candidate MergeCandidate) (Result, error)
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

// Len returns the number of registered rules.
func (e *RulesEngine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, candidate MergeCandidate) (Result, error) {
	var combined Result
	if e == nil {
		return combined, nil
	}
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, candidate)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
