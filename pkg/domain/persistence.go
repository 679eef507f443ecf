package domain

import (
	"context"

	"github.com/shopspring/decimal"

	"interactiondb/pkg/domain/formula"
)

// Stores report uniqueness violations as ErrDuplicate and leave the decision
// of whether that is benign to the caller.

// ReferenceStore manages external references and their bindings.
type ReferenceStore interface {
	// EnsureReference creates the reference when missing and returns its
	// current state.
	EnsureReference(ctx context.Context, urn string) (Reference, error)
	// BoundEntity returns the entity the reference is bound to, if any.
	BoundEntity(ctx context.Context, urn string) (EntityID, bool, error)
	BindReference(ctx context.Context, urn string, id EntityID) error
	UnbindReference(ctx context.Context, urn string) error
	// ReferencesOf returns the URNs bound to id in ascending order.
	ReferencesOf(ctx context.Context, id EntityID) ([]string, error)
	// RebindReferences moves every reference bound to from onto to.
	RebindReferences(ctx context.Context, from, to EntityID) error
	AddReferenceSource(ctx context.Context, urn, source string) error
	// ReferenceSources returns the source locators recorded for urn in
	// ascending order.
	ReferenceSources(ctx context.Context, urn string) ([]string, error)
}

// EntityStore allocates entities and manages their names.
type EntityStore interface {
	CreateEntity(ctx context.Context, t EntityType) (EntityID, error)
	// EntityTypes returns the type of every known id; unknown ids are absent.
	EntityTypes(ctx context.Context, ids []EntityID) (map[EntityID]EntityType, error)
	AddName(ctx context.Context, name Name) error
	Names(ctx context.Context, id EntityID) ([]Name, error)
	// MoveNames re-points names from one entity to another. Names the target
	// already carries are dropped from the source.
	MoveNames(ctx context.Context, from, to EntityID) error
}

// SubstanceStore manages substance attributes and participations.
type SubstanceStore interface {
	Substance(ctx context.Context, id EntityID) (Substance, bool, error)
	PutSubstance(ctx context.Context, s Substance) error
	// FillFormula sets the formula of a substance whose formula is unknown.
	FillFormula(ctx context.Context, id EntityID, f formula.Formula) error
	DeleteSubstance(ctx context.Context, id EntityID) error

	AddParticipation(ctx context.Context, p Participation) error
	Participations(ctx context.Context, substance EntityID, role Role) ([]Participation, error)
	Participation(ctx context.Context, substance, reaction EntityID, role Role) (Participation, bool, error)
	SetCoefficient(ctx context.Context, substance, reaction EntityID, role Role, coefficient decimal.Decimal) error
	// RepointParticipation moves the (from, reaction, role) row onto to.
	RepointParticipation(ctx context.Context, from, to, reaction EntityID, role Role) error
	DeleteParticipations(ctx context.Context, substance EntityID, role Role) error
}

// ComponentStore manages the attributes of the remaining entity types.
type ComponentStore interface {
	PutEnzyme(ctx context.Context, e Enzyme) error
	Enzyme(ctx context.Context, id EntityID) (Enzyme, bool, error)
	PutCompartment(ctx context.Context, c Compartment) error
	Compartment(ctx context.Context, id EntityID) (Compartment, bool, error)
	PutReaction(ctx context.Context, r Reaction) error
	Reaction(ctx context.Context, id EntityID) (Reaction, bool, error)
	MarkSpontaneous(ctx context.Context, id EntityID) error
}

// DecisionStore persists conflict decisions.
type DecisionStore interface {
	PutDecision(ctx context.Context, d Decision) error
	Decision(ctx context.Context, key string) (Decision, bool, error)
	// Decisions lists every stored decision ordered by key.
	Decisions(ctx context.Context) ([]Decision, error)
}

// PersistentStore is the storage collaborator of the merge engine.
type PersistentStore interface {
	ReferenceStore
	EntityStore
	SubstanceStore
	ComponentStore
	DecisionStore
	Close() error
}
