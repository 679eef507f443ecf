package core

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobmemory "interactiondb/internal/infra/blob/memory"
	"interactiondb/internal/infra/persistence/memory"
	"interactiondb/pkg/domain"
)

func substance(source, f string, urns ...string) SubstanceRecord {
	rec := SubstanceRecord{Record: Record{URNs: urns, Source: source, Names: []string{"name from " + source}}}
	if f != "" {
		rec.Formula = fptr(f)
	}
	return rec
}

func TestImportScenarios(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	interactor := &scriptedInteractor{}
	svc := NewService(store, WithInteractor(interactor))

	// A new reference yields the first id.
	id1, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "H2O", "K:C1"))
	require.NoError(t, err)
	assert.Equal(t, domain.EntityID(1), id1)

	// Same reference and formula unify with it.
	again, err := svc.CreateSubstance(ctx, substance("http://db.example/b", "H2O", "K:C1"))
	require.NoError(t, err)
	assert.Equal(t, id1, again)
	sub, ok, err := store.Substance(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "H2O", sub.Formula.String())

	// A different formula from a source named after the reference takes it over.
	id3, err := svc.CreateSubstance(ctx, substance("http://db.example/C1", "H2O2", "K:C1"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	owner, ok, err := store.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id3, owner)
	assert.Empty(t, interactor.asked)

	key := domain.ResolutionKey("http://db.example/C1", "K:C1", []string{"http://db.example/a", "http://db.example/b"})
	d, ok, err := store.Decision(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.VerdictAssignToNew, d.Verdict)
	assert.True(t, d.Automatic)

	sources, err := store.ReferenceSources(ctx, "K:C1")
	require.NoError(t, err)
	assert.Contains(t, sources, "http://db.example/C1")
}

func TestCachedVerdictAppliesWithoutAsking(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	interactor := &scriptedInteractor{}
	svc := NewService(store, WithInteractor(interactor))

	old, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "H2O", "K:C1"))
	require.NoError(t, err)
	key := domain.ResolutionKey("http://db.example/other", "K:C1", []string{"http://db.example/a"})
	require.NoError(t, store.PutDecision(ctx, domain.Decision{Key: key, Verdict: domain.VerdictAssignToNew}))

	id, err := svc.CreateSubstance(ctx, substance("http://db.example/other", "H2O2", "K:C1"))
	require.NoError(t, err)
	assert.NotEqual(t, old, id)
	owner, _, err := store.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	assert.Equal(t, id, owner)
	assert.Empty(t, interactor.asked)
}

func TestAssignToOldDropsReferenceFromNewRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, WithInteractor(&scriptedInteractor{answers: []domain.Verdict{domain.VerdictAssignToOld}}))

	old, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "H2O", "K:C1"))
	require.NoError(t, err)
	id, err := svc.CreateSubstance(ctx, substance("http://db.example/x", "H2O2", "K:C1", "K:C2"))
	require.NoError(t, err)
	assert.NotEqual(t, old, id)

	owner, _, err := store.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	assert.Equal(t, old, owner)
	owner, _, err = store.BoundEntity(ctx, "K:C2")
	require.NoError(t, err)
	assert.Equal(t, id, owner)
	sources, err := store.ReferenceSources(ctx, "K:C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://db.example/a"}, sources)
}

func TestMergeOfDifferentTypesFailsWithoutWrites(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store)
	sub, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "H2O", "K:C1"))
	require.NoError(t, err)
	enz, err := svc.CreateEnzyme(ctx, EnzymeRecord{Record: Record{URNs: []string{"EC:1.1.1.1"}}, EC: "1.1.1.1"})
	require.NoError(t, err)

	_, err = svc.Merge(ctx, sub, enz)
	var ambiguous domain.AmbiguousTypeError
	require.ErrorAs(t, err, &ambiguous)
	_, ok, err := store.Substance(ctx, sub)
	require.NoError(t, err)
	assert.True(t, ok)
	e, ok, err := store.Enzyme(ctx, enz)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1.1.1", e.EC)
}

func TestDeniedEnzymesKeepTheirOwnIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store, WithRules(denyEngine(false, domain.DenyRule{Left: "E:X", Right: "E:Y"})))
	x, err := svc.CreateEnzyme(ctx, EnzymeRecord{Record: Record{URNs: []string{"E:X"}}, EC: "1.1.1.1"})
	require.NoError(t, err)
	y, err := svc.CreateEnzyme(ctx, EnzymeRecord{Record: Record{URNs: []string{"E:Y"}}, EC: "1.1.1.2"})
	require.NoError(t, err)

	got, err := svc.CreateEnzyme(ctx, EnzymeRecord{Record: Record{URNs: []string{"E:X", "E:Y"}}, EC: "1.1.1.1"})
	require.NoError(t, err)
	assert.Equal(t, x, got)

	owner, ok, err := svc.Resolve(ctx, "E:Y")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, y, owner)
}

func TestFormulaIsFilledButNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store)

	id, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "", "K:C1"))
	require.NoError(t, err)
	sub, _, err := store.Substance(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, sub.Formula)

	again, err := svc.CreateSubstance(ctx, substance("http://db.example/b", "H2O", "K:C1"))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	sub, _, err = store.Substance(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sub.Formula)
	assert.Equal(t, "H2O", sub.Formula.String())

	names, err := svc.Names(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"name from http://db.example/a", "name from http://db.example/b"}, names)
}

func TestReactionsAndParticipations(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	metrics := newRecordingMetrics()
	svc := NewService(store, WithMetrics(metrics))

	rx, err := svc.CreateReaction(ctx, ReactionRecord{Record: Record{URNs: []string{"K:R1"}}, Spontaneous: true})
	require.NoError(t, err)
	again, err := svc.CreateReaction(ctx, ReactionRecord{Record: Record{URNs: []string{"K:R1"}}})
	require.NoError(t, err)
	assert.Equal(t, rx, again)
	r, _, err := store.Reaction(ctx, rx)
	require.NoError(t, err)
	assert.True(t, r.Spontaneous)

	water, err := svc.CreateSubstance(ctx, substance("http://db.example/a", "H2O", "K:C1"))
	require.NoError(t, err)
	require.NoError(t, svc.AddSubstrate(ctx, water, rx, dec(2)))
	require.NoError(t, svc.AddSubstrate(ctx, water, rx, dec(2)))
	require.NoError(t, svc.AddProduct(ctx, water, rx, dec(1)))

	var notFound domain.ErrNotFound
	require.ErrorAs(t, svc.AddProduct(ctx, rx, rx, dec(1)), &notFound)
	assert.Equal(t, domain.EntitySubstance, notFound.Entity)
	require.ErrorAs(t, svc.AddProduct(ctx, water, water, dec(1)), &notFound)
	assert.Equal(t, domain.EntityReaction, notFound.Entity)

	rows, err := store.Participations(ctx, water, domain.RoleSubstrate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Coefficient.Equal(dec(2)))
	assert.Equal(t, 2, metrics.ops["create_reaction"])
	assert.Equal(t, 2, metrics.ops["add_substrate"])
}

func TestComponentsUnifyByReference(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore())
	c1, err := svc.CreateCompartment(ctx, CompartmentRecord{Record: Record{URNs: []string{"GO:0005737"}, Names: []string{"cytosol"}}, Group: "eukaryota"})
	require.NoError(t, err)
	c2, err := svc.CreateCompartment(ctx, CompartmentRecord{Record: Record{URNs: []string{"GO:0005737"}, Names: []string{"cytoplasm"}}})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	c, _, err := svc.Store().Compartment(ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, "eukaryota", c.Group)

	p1, err := svc.CreatePathway(ctx, Record{URNs: []string{"K:map00010"}})
	require.NoError(t, err)
	p2, err := svc.CreatePathway(ctx, Record{URNs: []string{"K:map00010"}})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	got, ok, err := svc.Resolve(ctx, "K:map00010")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, p1, got)
}

func TestExportDecisions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := blobmemory.New()
	svc := NewService(store, WithBlobStore(blobs))
	require.NoError(t, store.PutDecision(ctx, domain.Decision{Key: "b", Verdict: domain.VerdictDeassign}))
	require.NoError(t, store.PutDecision(ctx, domain.Decision{Key: "a", Verdict: domain.VerdictAssignToNew, Automatic: true}))

	n, err := svc.ExportDecisions(ctx, "exports/decisions.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, rc, err := blobs.Get(ctx, "exports/decisions.jsonl")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	var first domain.Decision
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, domain.Decision{Key: "a", Verdict: domain.VerdictAssignToNew, Automatic: true}, first)

	_, err = NewService(store).ExportDecisions(ctx, "x")
	assert.Error(t, err)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	svc := NewService(memory.NewStore(), WithMetrics(rec))
	_, err = svc.CreatePathway(context.Background(), Record{URNs: []string{"K:map00010"}})
	require.NoError(t, err)
	rec.CountMerge("substance", MergeMerged)
	rec.CountVerdict("assign_to_new", OriginHeuristic)

	assert.Equal(t, 1, testutil.CollectAndCount(rec.durations))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.merges.WithLabelValues("substance", MergeMerged)))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.verdicts.WithLabelValues("assign_to_new", OriginHeuristic)))

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}
