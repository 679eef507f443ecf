package core

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/internal/blob"
	"interactiondb/pkg/domain"
)

// DenyListRuleName identifies violations raised by DenyListRule.
const DenyListRuleName = "deny_unification"

// DenyListRule blocks merging a kept entity carrying the left URN of a deny
// rule with a merged entity carrying its right URN. Lookups are directional
// unless the rule is symmetric.
type DenyListRule struct {
	deny      map[string]map[string]struct{}
	symmetric bool
}

// NewDenyListRule indexes rules for lookup.
func NewDenyListRule(rules []domain.DenyRule, symmetric bool) *DenyListRule {
	r := &DenyListRule{deny: make(map[string]map[string]struct{}), symmetric: symmetric}
	for _, rule := range rules {
		if rule.Left == "" || rule.Right == "" {
			continue
		}
		if r.deny[rule.Left] == nil {
			r.deny[rule.Left] = make(map[string]struct{})
		}
		r.deny[rule.Left][rule.Right] = struct{}{}
	}
	return r
}

func (r *DenyListRule) Name() string { return DenyListRuleName }

// Len returns the number of distinct rules.
func (r *DenyListRule) Len() int {
	n := 0
	for _, rights := range r.deny {
		n += len(rights)
	}
	return n
}

func (r *DenyListRule) denies(left, right string) bool {
	_, ok := r.deny[left][right]
	return ok
}

func (r *DenyListRule) Evaluate(_ context.Context, c domain.MergeCandidate) (domain.Result, error) {
	var res domain.Result
	for _, a := range c.KeptReferences {
		for _, b := range c.MergedReferences {
			if r.denies(a, b) || (r.symmetric && r.denies(b, a)) {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  "unification of " + a + " and " + b + " is denied",
					Kept:     c.Kept,
					Merged:   c.Merged,
				})
			}
		}
	}
	return res, nil
}

type urnRulesDocument struct {
	XMLName xml.Name      `xml:"urnRules"`
	Deny    []denyElement `xml:"denyUnification"`
}

type denyElement struct {
	URN1 string `xml:"urn1,attr"`
	URN2 string `xml:"urn2,attr"`
}

// ParseDenyRules reads an urnRules document:
//
//	<urnRules><denyUnification urn1="..." urn2="..."/></urnRules>
func ParseDenyRules(r io.Reader) ([]domain.DenyRule, error) {
	var doc urnRulesDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode urn rules")
	}
	rules := make([]domain.DenyRule, 0, len(doc.Deny))
	for _, d := range doc.Deny {
		left, right := strings.TrimSpace(d.URN1), strings.TrimSpace(d.URN2)
		if left == "" || right == "" {
			return nil, errors.Errorf("denyUnification requires urn1 and urn2, got %q and %q", d.URN1, d.URN2)
		}
		rules = append(rules, domain.DenyRule{Left: left, Right: right})
	}
	return rules, nil
}

// LoadDenyRules reads the rule document stored under key.
func LoadDenyRules(ctx context.Context, store blob.Store, key string) ([]domain.DenyRule, error) {
	if store == nil {
		return nil, errors.New("no rule store configured")
	}
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", key)
	}
	defer func() { _ = rc.Close() }()
	return ParseDenyRules(rc)
}

// Policy decides whether two entities may be unified.
type Policy struct {
	refs   domain.ReferenceStore
	engine *domain.RulesEngine
}

// NewPolicy evaluates engine against the references held in refs. A nil
// engine allows every merge.
func NewPolicy(refs domain.ReferenceStore, engine *domain.RulesEngine) *Policy {
	return &Policy{refs: refs, engine: engine}
}

// LoadRules builds a rules engine from the rule document under key. Missing
// or unreadable rules yield an empty engine, which allows every merge.
func LoadRules(ctx context.Context, rules blob.Store, key string, symmetric bool, logger zerolog.Logger) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	deny, err := LoadDenyRules(ctx, rules, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("unification rules unavailable, allowing all merges")
		return engine
	}
	rule := NewDenyListRule(deny, symmetric)
	engine.Register(rule)
	logger.Info().Int("rules", rule.Len()).Bool("symmetric", symmetric).Msg("unification rules loaded")
	return engine
}

// LoadPolicy is LoadRules bound to the references held in refs.
func LoadPolicy(ctx context.Context, refs domain.ReferenceStore, rules blob.Store, key string, symmetric bool, logger zerolog.Logger) *Policy {
	return NewPolicy(refs, LoadRules(ctx, rules, key, symmetric, logger))
}

// MayMerge reports whether merged may be folded into kept.
func (p *Policy) MayMerge(ctx context.Context, kept, merged domain.EntityID) (bool, domain.Result, error) {
	if p == nil || p.engine.Len() == 0 {
		return true, domain.Result{}, nil
	}
	keptRefs, err := p.refs.ReferencesOf(ctx, kept)
	if err != nil {
		return false, domain.Result{}, err
	}
	mergedRefs, err := p.refs.ReferencesOf(ctx, merged)
	if err != nil {
		return false, domain.Result{}, err
	}
	res, err := p.engine.Evaluate(ctx, domain.MergeCandidate{
		Kept:             kept,
		Merged:           merged,
		KeptReferences:   keptRefs,
		MergedReferences: mergedRefs,
	})
	if err != nil {
		return false, domain.Result{}, err
	}
	return !res.HasBlocking(), res, nil
}
