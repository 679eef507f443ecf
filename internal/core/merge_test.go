package core

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactiondb/internal/infra/persistence/memory"
	"interactiondb/pkg/domain"
)

func TestMergeSumsSharedCoefficientsAndTransfersTheRest(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedSubstance(t, store, fptr("H2O"), "K:C1")
	b := seedSubstance(t, store, nil, "K:C2")
	r1 := seedEntity(t, store, domain.EntityReaction)
	r2 := seedEntity(t, store, domain.EntityReaction)
	require.NoError(t, store.AddParticipation(ctx, domain.Participation{Substance: a, Reaction: r1, Role: domain.RoleSubstrate, Coefficient: dec(2)}))
	require.NoError(t, store.AddParticipation(ctx, domain.Participation{Substance: b, Reaction: r1, Role: domain.RoleSubstrate, Coefficient: dec(3)}))
	require.NoError(t, store.AddParticipation(ctx, domain.Participation{Substance: b, Reaction: r2, Role: domain.RoleProduct, Coefficient: dec(1)}))
	require.NoError(t, store.AddName(ctx, domain.Name{Entity: b, Label: "water", Source: "src"}))

	metrics := newRecordingMetrics()
	engine := NewMergeEngine(store, nil, zerolog.Nop(), metrics)
	out, err := engine.Merge(ctx, []domain.EntityID{b, a})
	require.NoError(t, err)
	assert.Equal(t, a, out.Representative)
	assert.Equal(t, []domain.EntityID{b}, out.Merged)
	assert.Empty(t, out.Skipped)

	row, ok, err := store.Participation(ctx, a, r1, domain.RoleSubstrate)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Coefficient.Equal(dec(5)), "got %s", row.Coefficient)

	row, ok, err = store.Participation(ctx, a, r2, domain.RoleProduct)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Coefficient.Equal(dec(1)))

	for _, role := range domain.Roles() {
		rows, err := store.Participations(ctx, b, role)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
	_, found, err := store.Substance(ctx, b)
	require.NoError(t, err)
	assert.False(t, found)

	owner, ok, err := store.BoundEntity(ctx, "K:C2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, owner)

	names, err := store.Names(ctx, a)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "water", names[0].Label)
	assert.Equal(t, 1, metrics.merges["substance/merged"])
}

func TestMergeRejectsMixedTypesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	sub := seedSubstance(t, store, nil, "K:C1")
	enz := seedEntity(t, store, domain.EntityEnzyme)
	rx := seedEntity(t, store, domain.EntityReaction)
	require.NoError(t, store.AddParticipation(ctx, domain.Participation{Substance: sub, Reaction: rx, Role: domain.RoleSubstrate, Coefficient: dec(1)}))

	_, err := NewMergeEngine(store, nil, zerolog.Nop(), nil).Merge(ctx, []domain.EntityID{sub, enz})
	var ambiguous domain.AmbiguousTypeError
	require.ErrorAs(t, err, &ambiguous)
	assert.ElementsMatch(t, []domain.EntityType{domain.EntitySubstance, domain.EntityEnzyme}, ambiguous.Types)

	_, found, err := store.Substance(ctx, sub)
	require.NoError(t, err)
	assert.True(t, found)
	rows, err := store.Participations(ctx, sub, domain.RoleSubstrate)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMergeRejectsUnknownIDs(t *testing.T) {
	store := memory.NewStore()
	sub := seedSubstance(t, store, nil)
	_, err := NewMergeEngine(store, nil, zerolog.Nop(), nil).Merge(context.Background(), []domain.EntityID{sub, 99})
	var ambiguous domain.AmbiguousTypeError
	assert.ErrorAs(t, err, &ambiguous)
}

func TestMergeOfNonSubstancesIsUnsupported(t *testing.T) {
	store := memory.NewStore()
	a := seedEntity(t, store, domain.EntityEnzyme)
	b := seedEntity(t, store, domain.EntityEnzyme)
	_, err := NewMergeEngine(store, nil, zerolog.Nop(), nil).Merge(context.Background(), []domain.EntityID{a, b})
	var unsupported domain.UnsupportedMergeTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, domain.EntityEnzyme, unsupported.Type)
}

func TestDeniedNonSubstancesAreSkippedNotRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedEntity(t, store, domain.EntityEnzyme)
	b := seedEntity(t, store, domain.EntityEnzyme)
	for urn, id := range map[string]domain.EntityID{"E:X": a, "E:Y": b} {
		_, err := store.EnsureReference(ctx, urn)
		require.NoError(t, err)
		require.NoError(t, store.BindReference(ctx, urn, id))
	}

	metrics := newRecordingMetrics()
	policy := NewPolicy(store, denyEngine(false, domain.DenyRule{Left: "E:X", Right: "E:Y"}))
	out, err := NewMergeEngine(store, policy, zerolog.Nop(), metrics).Merge(ctx, []domain.EntityID{a, b})
	require.NoError(t, err)
	assert.Equal(t, a, out.Representative)
	assert.Empty(t, out.Merged)
	assert.Equal(t, []domain.EntityID{b}, out.Skipped)
	assert.Equal(t, 1, metrics.merges["enzyme/denied"])

	owner, ok, err := store.BoundEntity(ctx, "E:Y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, owner)
}

func TestPermittedNonSubstanceAmongDeniedIsUnsupported(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ids := make([]domain.EntityID, 0, 3)
	for _, urn := range []string{"C:X", "C:Y", "C:Z"} {
		id := seedEntity(t, store, domain.EntityCompartment)
		_, err := store.EnsureReference(ctx, urn)
		require.NoError(t, err)
		require.NoError(t, store.BindReference(ctx, urn, id))
		ids = append(ids, id)
	}

	policy := NewPolicy(store, denyEngine(false, domain.DenyRule{Left: "C:X", Right: "C:Y"}))
	_, err := NewMergeEngine(store, policy, zerolog.Nop(), nil).Merge(ctx, ids)
	var unsupported domain.UnsupportedMergeTypeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, domain.EntityCompartment, unsupported.Type)

	owner, ok, err := store.BoundEntity(ctx, "C:Z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[2], owner)
}

func TestMergeSingleIDIsNoop(t *testing.T) {
	store := memory.NewStore()
	a := seedEntity(t, store, domain.EntityPathway)
	out, err := NewMergeEngine(store, nil, zerolog.Nop(), nil).Merge(context.Background(), []domain.EntityID{a, a})
	require.NoError(t, err)
	assert.Equal(t, a, out.Representative)
	assert.Empty(t, out.Merged)
}

func TestMergeSkipsDeniedIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	a := seedSubstance(t, store, nil, "K:X")
	b := seedSubstance(t, store, nil, "K:Y")
	c := seedSubstance(t, store, nil, "K:Z")

	metrics := newRecordingMetrics()
	policy := NewPolicy(store, denyEngine(false, domain.DenyRule{Left: "K:X", Right: "K:Y"}))
	out, err := NewMergeEngine(store, policy, zerolog.Nop(), metrics).Merge(ctx, []domain.EntityID{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, a, out.Representative)
	assert.Equal(t, []domain.EntityID{c}, out.Merged)
	assert.Equal(t, []domain.EntityID{b}, out.Skipped)

	_, found, err := store.Substance(ctx, b)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, metrics.merges["substance/denied"])
}
