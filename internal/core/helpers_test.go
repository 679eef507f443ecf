package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"interactiondb/internal/infra/persistence/memory"
	"interactiondb/pkg/domain"
	"interactiondb/pkg/domain/formula"
)

type scriptedInteractor struct {
	answers []domain.Verdict
	asked   []domain.Escalation
}

func (s *scriptedInteractor) Ask(_ context.Context, e domain.Escalation) (domain.Verdict, error) {
	s.asked = append(s.asked, e)
	if len(s.answers) == 0 {
		return "", nil
	}
	v := s.answers[0]
	s.answers = s.answers[1:]
	return v, nil
}

type stubFormulas struct {
	byURN map[string][]formula.Formula
	err   error
	calls int
}

func (s *stubFormulas) CandidateFormulas(_ context.Context, urn string) ([]formula.Formula, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.byURN[urn], nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	ops      map[string]int
	merges   map[string]int
	verdicts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{ops: map[string]int{}, merges: map[string]int{}, verdicts: map[string]int{}}
}

func (m *recordingMetrics) Observe(_ context.Context, op string, _ bool, _ time.Duration) {
	m.mu.Lock()
	m.ops[op]++
	m.mu.Unlock()
}

func (m *recordingMetrics) CountMerge(t, outcome string) {
	m.mu.Lock()
	m.merges[t+"/"+outcome]++
	m.mu.Unlock()
}

func (m *recordingMetrics) CountVerdict(v, origin string) {
	m.mu.Lock()
	m.verdicts[v+"/"+origin]++
	m.mu.Unlock()
}

func fptr(s string) *formula.Formula {
	f := formula.MustParse(s)
	return &f
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// seedSubstance creates a substance bound to urns with formula f.
func seedSubstance(t *testing.T, store *memory.Store, f *formula.Formula, urns ...string) domain.EntityID {
	t.Helper()
	ctx := context.Background()
	id, err := store.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	require.NoError(t, store.PutSubstance(ctx, domain.Substance{ID: id, Formula: f}))
	for _, u := range urns {
		_, err := store.EnsureReference(ctx, u)
		require.NoError(t, err)
		require.NoError(t, store.BindReference(ctx, u, id))
	}
	return id
}

func seedEntity(t *testing.T, store *memory.Store, typ domain.EntityType) domain.EntityID {
	t.Helper()
	id, err := store.CreateEntity(context.Background(), typ)
	require.NoError(t, err)
	return id
}

func denyEngine(symmetric bool, rules ...domain.DenyRule) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewDenyListRule(rules, symmetric))
	return engine
}
