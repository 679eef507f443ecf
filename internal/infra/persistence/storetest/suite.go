// Package storetest holds the behavioural contract every domain.PersistentStore
// implementation must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.PersistentStore

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s domain.PersistentStore)
	}{
		{"references", testReferences},
		{"reference sources", testReferenceSources},
		{"entities and names", testEntitiesAndNames},
		{"substances", testSubstances},
		{"participations", testParticipations},
		{"components", testComponents},
		{"decisions", testDecisions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testReferences(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	ref, err := s.EnsureReference(ctx, "K:C1")
	require.NoError(t, err)
	assert.False(t, ref.Bound())

	_, ok, err := s.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	assert.True(t, id.Valid())
	require.NoError(t, s.BindReference(ctx, "K:C1", id))

	ref, err = s.EnsureReference(ctx, "K:C1")
	require.NoError(t, err)
	require.True(t, ref.Bound())
	assert.Equal(t, id, *ref.Entity)

	_, err = s.EnsureReference(ctx, "C:2")
	require.NoError(t, err)
	require.NoError(t, s.BindReference(ctx, "C:2", id))
	refs, err := s.ReferencesOf(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"C:2", "K:C1"}, refs)

	other, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	require.NoError(t, s.RebindReferences(ctx, id, other))
	refs, err = s.ReferencesOf(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, []string{"C:2", "K:C1"}, refs)
	refs, err = s.ReferencesOf(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, s.UnbindReference(ctx, "K:C1"))
	_, ok, err = s.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testReferenceSources(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	_, err := s.EnsureReference(ctx, "K:C1")
	require.NoError(t, err)
	require.NoError(t, s.AddReferenceSource(ctx, "K:C1", "http://b"))
	require.NoError(t, s.AddReferenceSource(ctx, "K:C1", "http://a"))
	err = s.AddReferenceSource(ctx, "K:C1", "http://a")
	assert.True(t, domain.IsDuplicate(err), "duplicate source must report ErrDuplicate, got %v", err)

	sources, err := s.ReferenceSources(ctx, "K:C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, sources)

	none, err := s.ReferenceSources(ctx, "K:unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testEntitiesAndNames(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	a, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	b, err := s.CreateEntity(ctx, domain.EntityEnzyme)
	require.NoError(t, err)
	assert.Less(t, a, b)

	types, err := s.EntityTypes(ctx, []domain.EntityID{a, b, b + 100})
	require.NoError(t, err)
	assert.Equal(t, map[domain.EntityID]domain.EntityType{a: domain.EntitySubstance, b: domain.EntityEnzyme}, types)

	require.NoError(t, s.AddName(ctx, domain.Name{Entity: a, Label: "water", Source: "http://a"}))
	err = s.AddName(ctx, domain.Name{Entity: a, Label: "water", Source: "http://b"})
	assert.True(t, domain.IsDuplicate(err), "got %v", err)
	require.NoError(t, s.AddName(ctx, domain.Name{Entity: b, Label: "water", Source: "http://c"}))
	require.NoError(t, s.AddName(ctx, domain.Name{Entity: b, Label: "H2O", Source: "http://c"}))

	require.NoError(t, s.MoveNames(ctx, b, a))
	names, err := s.Names(ctx, a)
	require.NoError(t, err)
	labels := make([]string, len(names))
	for i, n := range names {
		labels[i] = n.Label
	}
	assert.Equal(t, []string{"H2O", "water"}, labels)
	left, err := s.Names(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func testSubstances(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	id, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	require.NoError(t, s.PutSubstance(ctx, domain.Substance{ID: id}))
	err = s.PutSubstance(ctx, domain.Substance{ID: id})
	assert.True(t, domain.IsDuplicate(err), "got %v", err)

	water := formula.MustParse("H2O")
	require.NoError(t, s.FillFormula(ctx, id, water))
	require.NoError(t, s.FillFormula(ctx, id, formula.MustParse("H2O2")))
	sub, ok, err := s.Substance(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, sub.Formula)
	assert.True(t, water.Equal(*sub.Formula))

	require.NoError(t, s.DeleteSubstance(ctx, id))
	_, ok, err = s.Substance(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testParticipations(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	sub1, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	sub2, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	rx, err := s.CreateEntity(ctx, domain.EntityReaction)
	require.NoError(t, err)

	p := domain.Participation{Substance: sub1, Reaction: rx, Role: domain.RoleSubstrate, Coefficient: decimal.NewFromInt(2)}
	require.NoError(t, s.AddParticipation(ctx, p))
	assert.True(t, domain.IsDuplicate(s.AddParticipation(ctx, p)))
	require.NoError(t, s.AddParticipation(ctx, domain.Participation{Substance: sub1, Reaction: rx, Role: domain.RoleProduct, Coefficient: decimal.RequireFromString("0.5")}))

	list, err := s.Participations(ctx, sub1, domain.RoleSubstrate)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Coefficient.Equal(decimal.NewFromInt(2)))

	require.NoError(t, s.SetCoefficient(ctx, sub1, rx, domain.RoleSubstrate, decimal.RequireFromString("3.5")))
	got, ok, err := s.Participation(ctx, sub1, rx, domain.RoleSubstrate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Coefficient.Equal(decimal.RequireFromString("3.5")))

	require.NoError(t, s.RepointParticipation(ctx, sub1, sub2, rx, domain.RoleSubstrate))
	_, ok, err = s.Participation(ctx, sub1, rx, domain.RoleSubstrate)
	require.NoError(t, err)
	assert.False(t, ok)
	moved, ok, err := s.Participation(ctx, sub2, rx, domain.RoleSubstrate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, moved.Coefficient.Equal(decimal.RequireFromString("3.5")))

	require.NoError(t, s.AddParticipation(ctx, domain.Participation{Substance: sub1, Reaction: rx, Role: domain.RoleSubstrate, Coefficient: decimal.NewFromInt(1)}))
	err = s.RepointParticipation(ctx, sub1, sub2, rx, domain.RoleSubstrate)
	assert.True(t, domain.IsDuplicate(err), "got %v", err)

	require.NoError(t, s.DeleteParticipations(ctx, sub1, domain.RoleProduct))
	list, err = s.Participations(ctx, sub1, domain.RoleProduct)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = s.Participations(ctx, sub1, domain.RoleSubstrate)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testComponents(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	enzID, err := s.CreateEntity(ctx, domain.EntityEnzyme)
	require.NoError(t, err)
	subID, err := s.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	require.NoError(t, s.PutEnzyme(ctx, domain.Enzyme{ID: enzID, EC: "1.1.1.1", Substance: &subID}))
	assert.True(t, domain.IsDuplicate(s.PutEnzyme(ctx, domain.Enzyme{ID: enzID, EC: "2.2.2.2"})))
	enz, ok, err := s.Enzyme(ctx, enzID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1.1.1", enz.EC)
	require.NotNil(t, enz.Substance)
	assert.Equal(t, subID, *enz.Substance)

	compID, err := s.CreateEntity(ctx, domain.EntityCompartment)
	require.NoError(t, err)
	require.NoError(t, s.PutCompartment(ctx, domain.Compartment{ID: compID, Group: "Homo sapiens"}))
	assert.True(t, domain.IsDuplicate(s.PutCompartment(ctx, domain.Compartment{ID: compID, Group: "other"})))
	comp, ok, err := s.Compartment(ctx, compID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Homo sapiens", comp.Group)

	rxID, err := s.CreateEntity(ctx, domain.EntityReaction)
	require.NoError(t, err)
	require.NoError(t, s.PutReaction(ctx, domain.Reaction{ID: rxID}))
	assert.True(t, domain.IsDuplicate(s.PutReaction(ctx, domain.Reaction{ID: rxID})))
	require.NoError(t, s.MarkSpontaneous(ctx, rxID))
	rx, ok, err := s.Reaction(ctx, rxID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rx.Spontaneous)
}

func testDecisions(t *testing.T, s domain.PersistentStore) {
	ctx := context.Background()
	first := domain.Decision{Key: "src <K:C1> []", Verdict: domain.VerdictAssignToOld, Automatic: false}
	require.NoError(t, s.PutDecision(ctx, first))
	err := s.PutDecision(ctx, domain.Decision{Key: first.Key, Verdict: domain.VerdictDeassign, Automatic: true})
	assert.True(t, domain.IsDuplicate(err), "got %v", err)

	got, ok, err := s.Decision(ctx, first.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	_, ok, err = s.Decision(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutDecision(ctx, domain.Decision{Key: "a", Verdict: domain.VerdictAssignToNew, Automatic: true}))
	all, err := s.Decisions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
}
