package redis

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactiondb/pkg/domain"
)

type fakeHash struct {
	fields map[string]map[string]string
	err    error
}

func newFakeHash() *fakeHash {
	return &fakeHash{fields: map[string]map[string]string{}}
}

func (f *fakeHash) HSetNX(_ context.Context, key, field string, value interface{}) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	h, ok := f.fields[key]
	if !ok {
		h = map[string]string{}
		f.fields[key] = h
	}
	if _, exists := h[field]; exists {
		return redis.NewBoolResult(false, nil)
	}
	h[field] = string(value.([]byte))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeHash) HGet(_ context.Context, key, field string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.fields[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeHash) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	out := map[string]string{}
	for k, v := range f.fields[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func TestFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeHash(), "")
	first := domain.Decision{Key: "src <K:C1> []", Verdict: domain.VerdictAssignToOld}
	require.NoError(t, store.PutDecision(ctx, first))
	err := store.PutDecision(ctx, domain.Decision{Key: first.Key, Verdict: domain.VerdictDeassign, Automatic: true})
	assert.True(t, domain.IsDuplicate(err), "got %v", err)

	got, ok, err := store.Decision(ctx, first.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestMissingDecision(t *testing.T) {
	_, ok, err := NewStore(newFakeHash(), "").Decision(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecisionsAreSortedByKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeHash(), "custom")
	require.NoError(t, store.PutDecision(ctx, domain.Decision{Key: "b", Verdict: domain.VerdictAssignToNew, Automatic: true}))
	require.NoError(t, store.PutDecision(ctx, domain.Decision{Key: "a", Verdict: domain.VerdictDeassign}))
	all, err := store.Decisions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, domain.VerdictAssignToNew, all[1].Verdict)
	assert.True(t, all[1].Automatic)
}

func TestClientErrorsPropagate(t *testing.T) {
	boom := errors.New("connection refused")
	fake := newFakeHash()
	fake.err = boom
	store := NewStore(fake, "")
	assert.ErrorIs(t, store.PutDecision(context.Background(), domain.Decision{Key: "k", Verdict: domain.VerdictDeassign}), boom)
	_, _, err := store.Decision(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	_, err = store.Decisions(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCorruptPayload(t *testing.T) {
	fake := newFakeHash()
	fake.fields[DefaultHashKey] = map[string]string{"k": "{not json"}
	_, _, err := NewStore(fake, "").Decision(context.Background(), "k")
	assert.Error(t, err)
}
