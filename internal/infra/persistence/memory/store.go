// Package memory provides an in-memory implementation of the reaction-network
// store used for tests and ephemeral runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type participationKey struct {
	substance domain.EntityID
	reaction  domain.EntityID
	role      domain.Role
}

type nameKey struct {
	entity domain.EntityID
	label  string
}

type memoryState struct {
	nextID         domain.EntityID
	entities       map[domain.EntityID]domain.EntityType
	refs           map[string]*domain.EntityID
	sources        map[string]map[string]struct{}
	names          map[nameKey]domain.Name
	substances     map[domain.EntityID]domain.Substance
	enzymes        map[domain.EntityID]domain.Enzyme
	compartments   map[domain.EntityID]domain.Compartment
	reactions      map[domain.EntityID]domain.Reaction
	participations map[participationKey]decimal.Decimal
	decisions      map[string]domain.Decision
}

func newMemoryState() memoryState {
	return memoryState{
		nextID:         1,
		entities:       make(map[domain.EntityID]domain.EntityType),
		refs:           make(map[string]*domain.EntityID),
		sources:        make(map[string]map[string]struct{}),
		names:          make(map[nameKey]domain.Name),
		substances:     make(map[domain.EntityID]domain.Substance),
		enzymes:        make(map[domain.EntityID]domain.Enzyme),
		compartments:   make(map[domain.EntityID]domain.Compartment),
		reactions:      make(map[domain.EntityID]domain.Reaction),
		participations: make(map[participationKey]decimal.Decimal),
		decisions:      make(map[string]domain.Decision),
	}
}

// Store keeps the whole reaction network in maps guarded by a single lock.
type Store struct {
	mu    sync.RWMutex
	state memoryState
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newMemoryState()}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func duplicate(what string) error {
	return errors.Wrap(domain.ErrDuplicate, what)
}

func clonePtr(id *domain.EntityID) *domain.EntityID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// EnsureReference creates an unbound reference when urn is unknown.
func (s *Store) EnsureReference(_ context.Context, urn string) (domain.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bound, ok := s.state.refs[urn]
	if !ok {
		s.state.refs[urn] = nil
	}
	return domain.Reference{URN: urn, Entity: clonePtr(bound)}, nil
}

func (s *Store) BoundEntity(_ context.Context, urn string) (domain.EntityID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bound := s.state.refs[urn]
	if bound == nil {
		return 0, false, nil
	}
	return *bound, true, nil
}

func (s *Store) BindReference(_ context.Context, urn string, id domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.refs[urn] = &id
	return nil
}

func (s *Store) UnbindReference(_ context.Context, urn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.refs[urn]; ok {
		s.state.refs[urn] = nil
	}
	return nil
}

func (s *Store) ReferencesOf(_ context.Context, id domain.EntityID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for urn, bound := range s.state.refs {
		if bound != nil && *bound == id {
			out = append(out, urn)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RebindReferences(_ context.Context, from, to domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for urn, bound := range s.state.refs {
		if bound != nil && *bound == from {
			target := to
			s.state.refs[urn] = &target
		}
	}
	return nil
}

func (s *Store) AddReferenceSource(_ context.Context, urn, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.state.sources[urn]
	if !ok {
		set = make(map[string]struct{})
		s.state.sources[urn] = set
	}
	if _, exists := set[source]; exists {
		return duplicate("reference source " + urn)
	}
	set[source] = struct{}{}
	return nil
}

func (s *Store) ReferenceSources(_ context.Context, urn string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.state.sources[urn]))
	for src := range s.state.sources[urn] {
		out = append(out, src)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) CreateEntity(_ context.Context, t domain.EntityType) (domain.EntityID, error) {
	if !t.Valid() {
		return 0, errors.Errorf("unknown entity type %q", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.nextID
	s.state.nextID++
	s.state.entities[id] = t
	return id, nil
}

func (s *Store) EntityTypes(_ context.Context, ids []domain.EntityID) (map[domain.EntityID]domain.EntityType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.EntityID]domain.EntityType, len(ids))
	for _, id := range ids {
		if t, ok := s.state.entities[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (s *Store) AddName(_ context.Context, name domain.Name) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := nameKey{entity: name.Entity, label: name.Label}
	if _, ok := s.state.names[key]; ok {
		return duplicate("name " + name.Label)
	}
	s.state.names[key] = name
	return nil
}

func (s *Store) Names(_ context.Context, id domain.EntityID) ([]domain.Name, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Name
	for key, n := range s.state.names {
		if key.entity == id {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *Store) MoveNames(_ context.Context, from, to domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, n := range s.state.names {
		if key.entity != from {
			continue
		}
		delete(s.state.names, key)
		target := nameKey{entity: to, label: key.label}
		if _, ok := s.state.names[target]; ok {
			continue
		}
		n.Entity = to
		s.state.names[target] = n
	}
	return nil
}

func (s *Store) Substance(_ context.Context, id domain.EntityID) (domain.Substance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.state.substances[id]
	return sub, ok, nil
}

func (s *Store) PutSubstance(_ context.Context, sub domain.Substance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.substances[sub.ID]; ok {
		return duplicate("substance " + sub.ID.String())
	}
	s.state.substances[sub.ID] = sub
	return nil
}

func (s *Store) FillFormula(_ context.Context, id domain.EntityID, f formula.Formula) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.state.substances[id]
	if !ok || sub.Formula != nil {
		return nil
	}
	sub.Formula = &f
	s.state.substances[id] = sub
	return nil
}

func (s *Store) DeleteSubstance(_ context.Context, id domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.substances, id)
	return nil
}

func (s *Store) AddParticipation(_ context.Context, p domain.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{substance: p.Substance, reaction: p.Reaction, role: p.Role}
	if _, ok := s.state.participations[key]; ok {
		return duplicate("participation")
	}
	s.state.participations[key] = p.Coefficient
	return nil
}

func (s *Store) Participations(_ context.Context, substance domain.EntityID, role domain.Role) ([]domain.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participation
	for key, coef := range s.state.participations {
		if key.substance == substance && key.role == role {
			out = append(out, domain.Participation{Substance: key.substance, Reaction: key.reaction, Role: key.role, Coefficient: coef})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reaction < out[j].Reaction })
	return out, nil
}

func (s *Store) Participation(_ context.Context, substance, reaction domain.EntityID, role domain.Role) (domain.Participation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coef, ok := s.state.participations[participationKey{substance: substance, reaction: reaction, role: role}]
	if !ok {
		return domain.Participation{}, false, nil
	}
	return domain.Participation{Substance: substance, Reaction: reaction, Role: role, Coefficient: coef}, true, nil
}

func (s *Store) SetCoefficient(_ context.Context, substance, reaction domain.EntityID, role domain.Role, coefficient decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := participationKey{substance: substance, reaction: reaction, role: role}
	if _, ok := s.state.participations[key]; ok {
		s.state.participations[key] = coefficient
	}
	return nil
}

func (s *Store) RepointParticipation(_ context.Context, from, to, reaction domain.EntityID, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := participationKey{substance: from, reaction: reaction, role: role}
	coef, ok := s.state.participations[src]
	if !ok {
		return nil
	}
	dst := participationKey{substance: to, reaction: reaction, role: role}
	if _, exists := s.state.participations[dst]; exists {
		return duplicate("participation")
	}
	delete(s.state.participations, src)
	s.state.participations[dst] = coef
	return nil
}

func (s *Store) DeleteParticipations(_ context.Context, substance domain.EntityID, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.state.participations {
		if key.substance == substance && key.role == role {
			delete(s.state.participations, key)
		}
	}
	return nil
}

func (s *Store) PutEnzyme(_ context.Context, e domain.Enzyme) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.enzymes[e.ID]; ok {
		return duplicate("enzyme " + e.ID.String())
	}
	e.Substance = clonePtr(e.Substance)
	s.state.enzymes[e.ID] = e
	return nil
}

func (s *Store) Enzyme(_ context.Context, id domain.EntityID) (domain.Enzyme, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.enzymes[id]
	e.Substance = clonePtr(e.Substance)
	return e, ok, nil
}

func (s *Store) PutCompartment(_ context.Context, c domain.Compartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.compartments[c.ID]; ok {
		return duplicate("compartment " + c.ID.String())
	}
	s.state.compartments[c.ID] = c
	return nil
}

func (s *Store) Compartment(_ context.Context, id domain.EntityID) (domain.Compartment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.compartments[id]
	return c, ok, nil
}

func (s *Store) PutReaction(_ context.Context, r domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.reactions[r.ID]; ok {
		return duplicate("reaction " + r.ID.String())
	}
	s.state.reactions[r.ID] = r
	return nil
}

func (s *Store) Reaction(_ context.Context, id domain.EntityID) (domain.Reaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.reactions[id]
	return r, ok, nil
}

func (s *Store) MarkSpontaneous(_ context.Context, id domain.EntityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.state.reactions[id]; ok {
		r.Spontaneous = true
		s.state.reactions[id] = r
	}
	return nil
}

func (s *Store) PutDecision(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.decisions[d.Key]; ok {
		return duplicate("decision " + d.Key)
	}
	s.state.decisions[d.Key] = d
	return nil
}

func (s *Store) Decision(_ context.Context, key string) (domain.Decision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.decisions[key]
	return d, ok, nil
}

func (s *Store) Decisions(_ context.Context) ([]domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Decision, 0, len(s.state.decisions))
	for _, d := range s.state.decisions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
