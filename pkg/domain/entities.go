// Package domain defines the persistent entities, value types, storage ports
// and merge rule primitives of the reaction-network database.
package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"interactiondb/pkg/domain/formula"
)

// EntityID identifies a unified real-world entity. Identifiers are allocated
// from 1; the zero value never names a stored entity.
type EntityID int64

// Valid reports whether the identifier can name a stored entity.
func (id EntityID) Valid() bool { return id > 0 }

func (id EntityID) String() string { return fmt.Sprintf("%d", int64(id)) }

// EntityType identifies the kind of a unified entity. It is fixed at creation.
type EntityType string

// Supported entity types.
const (
	// EntityCompartmentGroup groups compartments (for example an organism).
	EntityCompartmentGroup EntityType = "compartment_group"
	// EntityCompartment identifies a cellular or organismal compartment.
	EntityCompartment EntityType = "compartment"
	// EntityPathway identifies a pathway.
	EntityPathway EntityType = "pathway"
	// EntitySubstance identifies a chemical substance.
	EntitySubstance EntityType = "substance"
	// EntityEnzyme identifies an enzyme.
	EntityEnzyme EntityType = "enzyme"
	// EntityReaction identifies a reaction.
	EntityReaction EntityType = "reaction"
)

// Valid reports whether t is one of the supported entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCompartmentGroup, EntityCompartment, EntityPathway,
		EntitySubstance, EntityEnzyme, EntityReaction:
		return true
	}
	return false
}

// Reference is an external identifier (URN) naming an entity in some source
// database. A reference is bound to at most one entity; Entity is nil while
// the reference is unbound.
type Reference struct {
	URN    string
	Entity *EntityID
}

// Bound reports whether the reference currently resolves to an entity.
func (r Reference) Bound() bool { return r.Entity != nil }

// Name is a human-readable label attached to an entity together with the
// locator of the source that supplied it.
type Name struct {
	Entity EntityID
	Label  string
	Source string
}

// Substance carries the substance specific attributes. Formula is nil when
// the substance formula is unknown.
type Substance struct {
	ID      EntityID
	Formula *formula.Formula
}

// Enzyme carries the enzyme specific attributes.
type Enzyme struct {
	ID        EntityID
	EC        string
	Substance *EntityID
}

// Compartment carries the compartment specific attributes.
type Compartment struct {
	ID    EntityID
	Group string
}

// Reaction carries the reaction specific attributes. Spontaneous only ever
// upgrades from false to true.
type Reaction struct {
	ID          EntityID
	Spontaneous bool
}

// Role distinguishes the two participation relations of a substance in a
// reaction.
type Role string

// Supported participation roles.
const (
	RoleSubstrate Role = "substrate"
	RoleProduct   Role = "product"
)

// Roles lists every participation role in evaluation order.
func Roles() []Role { return []Role{RoleSubstrate, RoleProduct} }

// Participation records a substance taking part in a reaction with a
// stoichiometric coefficient. (Substance, Reaction, Role) is unique.
type Participation struct {
	Substance   EntityID
	Reaction    EntityID
	Role        Role
	Coefficient decimal.Decimal
}

// DenyRule forbids unifying an entity carrying Left with one carrying Right.
type DenyRule struct {
	Left  string
	Right string
}

// Verdict is the outcome of resolving a contested reference.
type Verdict string

// Supported verdicts.
const (
	// VerdictAssignToNew rebinds the reference to the entity being imported.
	VerdictAssignToNew Verdict = "assign_to_new"
	// VerdictAssignToOld leaves the reference on its existing entity.
	VerdictAssignToOld Verdict = "assign_to_old"
	// VerdictDeassign unbinds the reference.
	VerdictDeassign Verdict = "deassign"
)

// Valid reports whether v is a recognised verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAssignToNew, VerdictAssignToOld, VerdictDeassign:
		return true
	}
	return false
}

// Decision is a persisted verdict keyed by its resolution key.
type Decision struct {
	Key       string  `json:"key"`
	Verdict   Verdict `json:"verdict"`
	Automatic bool    `json:"automatic"`
}

// ResolutionKey derives the decision cache key for a contested reference from
// the source of the new entry, the URN and the known source locators of the
// existing entry. Existing sources are expected in sorted order.
func ResolutionKey(newSource, urn string, existingSources []string) string {
	return fmt.Sprintf("%s <%s> [%s]", newSource, urn, strings.Join(existingSources, ", "))
}

// Escalation describes a contested reference handed to a human curator.
type Escalation struct {
	URN             string
	NewSource       string
	ExistingSources []string
	Locations       []string
}
