package core

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
	"interactiondb/pkg/domain/urn"
)

// DefaultMaxEscalations bounds how often a curator is asked about one
// reference before the import aborts.
const DefaultMaxEscalations = 3

// FormulaResolver looks up the formulas published for a reference.
type FormulaResolver interface {
	CandidateFormulas(ctx context.Context, urn string) ([]formula.Formula, error)
}

// Interactor asks a curator to settle a contested reference.
type Interactor interface {
	Ask(ctx context.Context, e domain.Escalation) (domain.Verdict, error)
}

// Conflict describes a reference of a new substance that is bound to an
// existing substance with a different formula.
type Conflict struct {
	URN             string
	NewSource       string
	NewID           domain.EntityID
	NewFormula      formula.Formula
	ExistingID      domain.EntityID
	ExistingFormula formula.Formula
}

// ConflictResolver settles conflicts by heuristics, then cached decisions,
// then by asking a curator.
type ConflictResolver struct {
	store          domain.ReferenceStore
	cache          *DecisionCache
	formulas       FormulaResolver
	interactor     Interactor
	maxEscalations int
	logger         zerolog.Logger
	metrics        MetricsRecorder
}

// ResolverConfig carries the collaborators of a ConflictResolver.
type ResolverConfig struct {
	References     domain.ReferenceStore
	Cache          *DecisionCache
	Formulas       FormulaResolver
	Interactor     Interactor
	MaxEscalations int
	Logger         zerolog.Logger
	Metrics        MetricsRecorder
}

// NewConflictResolver constructs a resolver.
func NewConflictResolver(cfg ResolverConfig) *ConflictResolver {
	r := &ConflictResolver{
		store:          cfg.References,
		cache:          cfg.Cache,
		formulas:       cfg.Formulas,
		interactor:     cfg.Interactor,
		maxEscalations: cfg.MaxEscalations,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
	}
	if r.maxEscalations <= 0 {
		r.maxEscalations = DefaultMaxEscalations
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	return r
}

// Resolve decides who keeps the contested reference and applies the
// verdict to its binding.
func (r *ConflictResolver) Resolve(ctx context.Context, c Conflict) (domain.Verdict, error) {
	sources, err := r.store.ReferenceSources(ctx, c.URN)
	if err != nil {
		return "", errors.Wrapf(err, "load sources of %s", c.URN)
	}
	key := domain.ResolutionKey(c.NewSource, c.URN, sources)

	verdict, origin, err := r.decide(ctx, c, sources, key)
	if err != nil {
		return "", err
	}
	r.logger.Info().
		Str("urn", c.URN).
		Str("verdict", string(verdict)).
		Str("origin", origin).
		Int64("new", int64(c.NewID)).
		Int64("existing", int64(c.ExistingID)).
		Msg("conflict resolved")
	r.metrics.CountVerdict(string(verdict), origin)
	return verdict, r.apply(ctx, c, verdict)
}

func (r *ConflictResolver) decide(ctx context.Context, c Conflict, sources []string, key string) (domain.Verdict, string, error) {
	verdict, err := r.heuristic(ctx, c, sources)
	if err != nil {
		return "", "", err
	}
	if verdict != "" {
		if err := r.cache.Put(ctx, key, verdict, true); err != nil {
			return "", "", errors.Wrap(err, "store automatic decision")
		}
		return verdict, OriginHeuristic, nil
	}
	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		return "", "", errors.Wrap(err, "read decision")
	}
	if ok && cached.Valid() {
		return cached, OriginCache, nil
	}
	if ok {
		// First writer wins, so the answer below cannot replace this entry.
		r.logger.Warn().Str("key", key).Str("verdict", string(cached)).
			Msg("cached decision is not a valid verdict, asking again")
	}
	verdict, err = r.escalate(ctx, c, sources)
	if err != nil {
		return "", "", err
	}
	if err := r.cache.Put(ctx, key, verdict, false); err != nil {
		return "", "", errors.Wrap(err, "store manual decision")
	}
	return verdict, OriginHuman, nil
}

// heuristic applies the automatic rules in order. An empty verdict means
// none of them fired.
func (r *ConflictResolver) heuristic(ctx context.Context, c Conflict, sources []string) (domain.Verdict, error) {
	suffix := canonicalSuffix(c.URN)
	if suffix != "" {
		if strings.HasSuffix(c.NewSource, suffix) {
			return domain.VerdictAssignToNew, nil
		}
		for _, s := range sources {
			if strings.HasSuffix(s, suffix) {
				return domain.VerdictAssignToOld, nil
			}
		}
	}
	if r.formulas == nil {
		return "", nil
	}
	candidates, err := r.formulas.CandidateFormulas(ctx, c.URN)
	if err != nil {
		var malformed *formula.MalformedError
		if errors.As(err, &malformed) {
			return "", errors.Wrapf(err, "resolve formulas of %s", c.URN)
		}
		r.logger.Warn().Err(err).Str("urn", c.URN).Msg("formula resolution failed")
		return "", nil
	}
	for _, f := range candidates {
		if f.Equal(c.NewFormula) {
			return domain.VerdictAssignToNew, nil
		}
	}
	for _, f := range candidates {
		if f.Equal(c.ExistingFormula) {
			return domain.VerdictAssignToOld, nil
		}
	}
	return "", nil
}

func (r *ConflictResolver) escalate(ctx context.Context, c Conflict, sources []string) (domain.Verdict, error) {
	if r.interactor == nil {
		return "", errors.Wrapf(domain.ErrEscalationExhausted, "%s: no curator available", c.URN)
	}
	e := domain.Escalation{
		URN:             c.URN,
		NewSource:       c.NewSource,
		ExistingSources: sources,
		Locations:       escalationLocations(c, sources),
	}
	for attempt := 1; attempt <= r.maxEscalations; attempt++ {
		v, err := r.interactor.Ask(ctx, e)
		if err != nil {
			return "", errors.Wrapf(err, "ask about %s", c.URN)
		}
		if v.Valid() {
			return v, nil
		}
		r.logger.Warn().Str("urn", c.URN).Str("answer", string(v)).Int("attempt", attempt).Msg("unrecognised verdict")
	}
	return "", errors.Wrapf(domain.ErrEscalationExhausted, "%s after %d attempts", c.URN, r.maxEscalations)
}

func (r *ConflictResolver) apply(ctx context.Context, c Conflict, v domain.Verdict) error {
	switch v {
	case domain.VerdictAssignToNew:
		return errors.Wrapf(r.store.BindReference(ctx, c.URN, c.NewID), "bind %s", c.URN)
	case domain.VerdictDeassign:
		return errors.Wrapf(r.store.UnbindReference(ctx, c.URN), "unbind %s", c.URN)
	default:
		return nil
	}
}

func canonicalSuffix(ref string) string {
	u, err := urn.Parse(ref)
	if err != nil {
		return ""
	}
	return u.Suffix()
}

func escalationLocations(c Conflict, sources []string) []string {
	locs := make([]string, 0, len(sources)+2)
	if c.NewSource != "" {
		locs = append(locs, c.NewSource)
	}
	locs = append(locs, sources...)
	if u, err := urn.Parse(c.URN); err == nil {
		locs = append(locs, u.Locations()...)
	}
	return distinctStrings(locs)
}
