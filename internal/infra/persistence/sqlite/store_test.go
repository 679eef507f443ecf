package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interactiondb/internal/infra/persistence/storetest"
	"interactiondb/pkg/domain"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.PersistentStore {
		store, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "network.db"))
		require.NoError(t, err)
		return store
	})
}

func TestReopenKeepsDataAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "network.db")
	store, err := NewStore(ctx, path)
	require.NoError(t, err)
	id, err := store.CreateEntity(ctx, domain.EntitySubstance)
	require.NoError(t, err)
	require.NoError(t, store.BindReference(ctx, "K:C1", id))
	require.NoError(t, store.Close())

	reopened, err := NewStore(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	bound, ok, err := reopened.BoundEntity(ctx, "K:C1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, bound)
}
