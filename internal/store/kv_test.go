package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string) *KVStore {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKVStore_GetSetDelete(t *testing.T) {
	s := openTestStore(t, MemoryPath)
	ctx := context.Background()

	_, err := s.Get(ctx, "app_products")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "app_products", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "app_products", []byte(`[1,2]`)))

	got, err := s.Get(ctx, "app_products")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))

	require.NoError(t, s.Delete(ctx, "app_products"))
	_, err = s.Get(ctx, "app_products")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStore_EmptyValueIsNotMissing(t *testing.T) {
	s := openTestStore(t, MemoryPath)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", nil))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKVStore_PrefixOperations(t *testing.T) {
	s := openTestStore(t, MemoryPath)
	ctx := context.Background()

	for _, k := range []string{
		"app_tenant_a_products",
		"app_tenant_a_sales",
		"app_tenant_ab_products",
		"app_pending_sync",
	} {
		require.NoError(t, s.Set(ctx, k, []byte("[]")))
	}

	keys, err := s.Keys(ctx, "app_tenant_a_")
	require.NoError(t, err)
	assert.Equal(t, []string{"app_tenant_a_products", "app_tenant_a_sales"}, keys)

	// "_" must match literally, not as a wildcard.
	n, err := s.DeletePrefix(ctx, "app_tenant_a_")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err = s.Keys(ctx, "app_")
	require.NoError(t, err)
	assert.Equal(t, []string{"app_pending_sync", "app_tenant_ab_products"}, keys)
}

func TestKVStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local", "retailplus.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "app_pending_sync", []byte(`[{"id":"e1"}]`)))
	require.NoError(t, s.Close())

	reopened := openTestStore(t, path)
	got, err := reopened.Get(ctx, "app_pending_sync")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"e1"}]`, string(got))
}

func TestKVStore_SetMany(t *testing.T) {
	s := openTestStore(t, MemoryPath)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "app_tenant_t1_products", []byte(`["old"]`)))

	require.NoError(t, s.SetMany(ctx, map[string][]byte{
		"app_tenant_t1_products":  []byte(`["new"]`),
		"app_tenant_t1_customers": []byte(`[]`),
	}))

	got, err := s.Get(ctx, "app_tenant_t1_products")
	require.NoError(t, err)
	assert.Equal(t, `["new"]`, string(got))
	got, err = s.Get(ctx, "app_tenant_t1_customers")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	assert.NoError(t, s.SetMany(ctx, nil))
}

func TestKVStore_SetManyIsAllOrNothing(t *testing.T) {
	s := openTestStore(t, MemoryPath)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "app_tenant_t1_products", []byte(`["old"]`)))

	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_sales BEFORE INSERT ON kv
		WHEN NEW.key = 'app_tenant_t1_sales'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	err = s.SetMany(ctx, map[string][]byte{
		"app_tenant_t1_products":  []byte(`["new"]`),
		"app_tenant_t1_customers": []byte(`[]`),
		"app_tenant_t1_sales":     []byte(`[]`),
	})
	require.Error(t, err)

	got, err := s.Get(ctx, "app_tenant_t1_products")
	require.NoError(t, err)
	assert.Equal(t, `["old"]`, string(got))
	_, err = s.Get(ctx, "app_tenant_t1_customers")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVStore_Closed(t *testing.T) {
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SetMany(context.Background(), map[string][]byte{"k": nil}), ErrClosed)
}
