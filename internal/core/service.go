// Package core unifies entities imported from external reaction databases:
// it resolves references to entity ids, merges duplicates and settles
// conflicting references.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"interactiondb/internal/blob"
	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

// Record carries what every imported entity has: its references, the
// source that described it and the names it goes by.
type Record struct {
	URNs   []string
	Source string
	Names  []string
}

// SubstanceRecord describes an imported substance. Formula is nil when the
// source does not state one.
type SubstanceRecord struct {
	Record
	Formula *formula.Formula
}

// EnzymeRecord describes an imported enzyme.
type EnzymeRecord struct {
	Record
	EC        string
	Substance *domain.EntityID
}

// CompartmentRecord describes an imported compartment.
type CompartmentRecord struct {
	Record
	Group string
}

// ReactionRecord describes an imported reaction.
type ReactionRecord struct {
	Record
	Spontaneous bool
}

// Service imports records into the unified store.
type Service struct {
	store     domain.PersistentStore
	decisions domain.DecisionStore
	blobs     blob.Store
	rules     *domain.RulesEngine

	formulas       FormulaResolver
	interactor     Interactor
	maxEscalations int

	logger  zerolog.Logger
	metrics MetricsRecorder
	now     func() time.Time

	registry *Registry
	merger   *MergeEngine
	resolver *ConflictResolver
	cache    *DecisionCache
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics records operation metrics with m.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRules sets the unification rules evaluated before every merge.
func WithRules(engine *domain.RulesEngine) Option { return func(s *Service) { s.rules = engine } }

// WithDecisionStore keeps decisions outside the primary store.
func WithDecisionStore(d domain.DecisionStore) Option { return func(s *Service) { s.decisions = d } }

// WithBlobStore sets the document store used for exports.
func WithBlobStore(b blob.Store) Option { return func(s *Service) { s.blobs = b } }

// WithFormulaResolver enables the formula lookup heuristic.
func WithFormulaResolver(f FormulaResolver) Option { return func(s *Service) { s.formulas = f } }

// WithInteractor sets who is asked when heuristics and cache are silent.
func WithInteractor(i Interactor) Option { return func(s *Service) { s.interactor = i } }

// WithMaxEscalations bounds the questions asked per contested reference.
func WithMaxEscalations(n int) Option { return func(s *Service) { s.maxEscalations = n } }

// WithClock overrides the clock used for timings.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires the registry, merge engine and conflict resolver over
// store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		logger:  zerolog.Nop(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.decisions == nil {
		s.decisions = store
	}
	s.cache = NewDecisionCache(s.decisions)
	s.merger = NewMergeEngine(store, NewPolicy(store, s.rules), s.logger, s.metrics)
	s.registry = NewRegistry(store, s.merger)
	s.resolver = NewConflictResolver(ResolverConfig{
		References:     store,
		Cache:          s.cache,
		Formulas:       s.formulas,
		Interactor:     s.interactor,
		MaxEscalations: s.maxEscalations,
		Logger:         s.logger,
		Metrics:        s.metrics,
	})
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Registry returns the identity registry.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, s.now().Sub(start))
}

// CreateSubstance imports a substance and returns its id. References bound
// to a substance with a different formula are settled by the conflict
// resolver; the others are unified with the new record.
func (s *Service) CreateSubstance(ctx context.Context, rec SubstanceRecord) (id domain.EntityID, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_substance", start, err) }(s.now())

	compatible, conflicts, err := s.partition(ctx, rec)
	if err != nil {
		return 0, err
	}
	id, err = s.registry.ResolveOrCreate(ctx, compatible, domain.EntitySubstance)
	if err != nil {
		return 0, err
	}
	kept := compatible
	for _, c := range conflicts {
		c.NewID = id
		v, err := s.resolver.Resolve(ctx, c)
		if err != nil {
			return 0, err
		}
		if v == domain.VerdictAssignToNew {
			kept = append(kept, c.URN)
		}
	}
	if err := s.recordBase(ctx, id, rec.Record, kept); err != nil {
		return 0, err
	}
	if err := s.putSubstance(ctx, id, rec.Formula); err != nil {
		return 0, err
	}
	return id, nil
}

// partition splits the record references into those compatible with the
// record formula and those bound to a substance with a different formula.
func (s *Service) partition(ctx context.Context, rec SubstanceRecord) ([]string, []Conflict, error) {
	var compatible []string
	var conflicts []Conflict
	for _, u := range distinctStrings(rec.URNs) {
		owner, ok, err := s.store.BoundEntity(ctx, u)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "lookup %s", u)
		}
		if !ok || rec.Formula == nil {
			compatible = append(compatible, u)
			continue
		}
		existing, found, err := s.store.Substance(ctx, owner)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "load substance %s", owner)
		}
		if !found || formula.SameOrUnknown(existing.Formula, rec.Formula) {
			compatible = append(compatible, u)
			continue
		}
		conflicts = append(conflicts, Conflict{
			URN:             u,
			NewSource:       rec.Source,
			NewFormula:      *rec.Formula,
			ExistingID:      owner,
			ExistingFormula: *existing.Formula,
		})
	}
	return compatible, conflicts, nil
}

func (s *Service) putSubstance(ctx context.Context, id domain.EntityID, f *formula.Formula) error {
	err := s.store.PutSubstance(ctx, domain.Substance{ID: id, Formula: f})
	if err == nil {
		return nil
	}
	if !domain.IsDuplicate(err) {
		return errors.Wrapf(err, "store substance %s", id)
	}
	if f == nil {
		return nil
	}
	return errors.Wrapf(s.store.FillFormula(ctx, id, *f), "fill formula of %s", id)
}

// recordBase stores names and the reference to source associations.
func (s *Service) recordBase(ctx context.Context, id domain.EntityID, rec Record, urns []string) error {
	for _, label := range distinctStrings(rec.Names) {
		err := s.store.AddName(ctx, domain.Name{Entity: id, Label: label, Source: rec.Source})
		if err != nil && !domain.IsDuplicate(err) {
			return errors.Wrapf(err, "add name %q", label)
		}
	}
	if rec.Source == "" {
		return nil
	}
	for _, u := range urns {
		err := s.store.AddReferenceSource(ctx, u, rec.Source)
		if err != nil && !domain.IsDuplicate(err) {
			return errors.Wrapf(err, "record source of %s", u)
		}
	}
	return nil
}

func (s *Service) createBase(ctx context.Context, rec Record, t domain.EntityType) (domain.EntityID, error) {
	urns := distinctStrings(rec.URNs)
	id, err := s.registry.ResolveOrCreate(ctx, urns, t)
	if err != nil {
		return 0, err
	}
	if err := s.recordBase(ctx, id, rec, urns); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateEnzyme imports an enzyme.
func (s *Service) CreateEnzyme(ctx context.Context, rec EnzymeRecord) (id domain.EntityID, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_enzyme", start, err) }(s.now())
	if id, err = s.createBase(ctx, rec.Record, domain.EntityEnzyme); err != nil {
		return 0, err
	}
	err = s.store.PutEnzyme(ctx, domain.Enzyme{ID: id, EC: rec.EC, Substance: rec.Substance})
	if err != nil && !domain.IsDuplicate(err) {
		return 0, errors.Wrapf(err, "store enzyme %s", id)
	}
	return id, nil
}

// CreateCompartment imports a compartment.
func (s *Service) CreateCompartment(ctx context.Context, rec CompartmentRecord) (id domain.EntityID, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_compartment", start, err) }(s.now())
	if id, err = s.createBase(ctx, rec.Record, domain.EntityCompartment); err != nil {
		return 0, err
	}
	err = s.store.PutCompartment(ctx, domain.Compartment{ID: id, Group: rec.Group})
	if err != nil && !domain.IsDuplicate(err) {
		return 0, errors.Wrapf(err, "store compartment %s", id)
	}
	return id, nil
}

// CreatePathway imports a pathway. Pathways carry no attributes.
func (s *Service) CreatePathway(ctx context.Context, rec Record) (id domain.EntityID, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_pathway", start, err) }(s.now())
	return s.createBase(ctx, rec, domain.EntityPathway)
}

// CreateReaction imports a reaction. A reaction once marked spontaneous
// stays spontaneous.
func (s *Service) CreateReaction(ctx context.Context, rec ReactionRecord) (id domain.EntityID, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_reaction", start, err) }(s.now())
	if id, err = s.createBase(ctx, rec.Record, domain.EntityReaction); err != nil {
		return 0, err
	}
	err = s.store.PutReaction(ctx, domain.Reaction{ID: id, Spontaneous: rec.Spontaneous})
	switch {
	case err == nil:
	case domain.IsDuplicate(err):
		if rec.Spontaneous {
			if err := s.store.MarkSpontaneous(ctx, id); err != nil {
				return 0, errors.Wrapf(err, "mark reaction %s spontaneous", id)
			}
		}
	default:
		return 0, errors.Wrapf(err, "store reaction %s", id)
	}
	return id, nil
}

// AddSubstrate records substance as consumed by reaction.
func (s *Service) AddSubstrate(ctx context.Context, substance, reaction domain.EntityID, coefficient decimal.Decimal) error {
	return s.addParticipation(ctx, "add_substrate", domain.Participation{
		Substance: substance, Reaction: reaction, Role: domain.RoleSubstrate, Coefficient: coefficient,
	})
}

// AddProduct records substance as produced by reaction.
func (s *Service) AddProduct(ctx context.Context, substance, reaction domain.EntityID, coefficient decimal.Decimal) error {
	return s.addParticipation(ctx, "add_product", domain.Participation{
		Substance: substance, Reaction: reaction, Role: domain.RoleProduct, Coefficient: coefficient,
	})
}

func (s *Service) addParticipation(ctx context.Context, op string, p domain.Participation) (err error) {
	defer func(start time.Time) { s.observe(ctx, op, start, err) }(s.now())
	types, err := s.store.EntityTypes(ctx, []domain.EntityID{p.Substance, p.Reaction})
	if err != nil {
		return errors.Wrap(err, "load entity types")
	}
	if types[p.Substance] != domain.EntitySubstance {
		return domain.ErrNotFound{Entity: domain.EntitySubstance, ID: p.Substance.String()}
	}
	if types[p.Reaction] != domain.EntityReaction {
		return domain.ErrNotFound{Entity: domain.EntityReaction, ID: p.Reaction.String()}
	}
	err = s.store.AddParticipation(ctx, p)
	if err != nil && !domain.IsDuplicate(err) {
		return errors.Wrapf(err, "add %s of reaction %s", p.Role, p.Reaction)
	}
	return nil
}

// Merge folds the given entities into the one with the smallest id.
func (s *Service) Merge(ctx context.Context, ids ...domain.EntityID) (out MergeOutcome, err error) {
	defer func(start time.Time) { s.observe(ctx, "merge", start, err) }(s.now())
	return s.merger.Merge(ctx, ids)
}

// Resolve returns the entity a reference is bound to.
func (s *Service) Resolve(ctx context.Context, urn string) (domain.EntityID, bool, error) {
	return s.store.BoundEntity(ctx, urn)
}

// Names returns the distinct labels of an entity in stored order.
func (s *Service) Names(ctx context.Context, id domain.EntityID) ([]string, error) {
	names, err := s.store.Names(ctx, id)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(names))
	for _, n := range names {
		labels = append(labels, n.Label)
	}
	return distinctStrings(labels), nil
}

// ExportDecisions writes every stored decision as JSON lines under key and
// returns how many were written.
func (s *Service) ExportDecisions(ctx context.Context, key string) (n int, err error) {
	defer func(start time.Time) { s.observe(ctx, "export_decisions", start, err) }(s.now())
	if s.blobs == nil {
		return 0, errors.New("no blob store configured")
	}
	decisions, err := s.cache.All(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list decisions")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range decisions {
		if err := enc.Encode(d); err != nil {
			return 0, errors.Wrap(err, "encode decision")
		}
	}
	if _, err := s.blobs.Put(ctx, key, &buf, blob.PutOptions{ContentType: "application/x-ndjson"}); err != nil {
		return 0, errors.Wrapf(err, "write %s", key)
	}
	s.logger.Info().Int("decisions", len(decisions)).Str("key", key).Msg("decisions exported")
	return len(decisions), nil
}
