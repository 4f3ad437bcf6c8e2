package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"https://your-project.supabase.co", true},
		{"YOUR_API_KEY", true},
		{"placeholder", true},
		{"changeme", true},
		{"https://abcd1234.supabase.co", false},
		{"eyJhbGciOiJIUzI1NiJ9.real", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPlaceholder(tt.value))
		})
	}
}

func TestNewClient_Providers(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()
	configured := Options{URL: "https://abcd1234.supabase.co", APIKey: "real-key"}

	t.Run("defaults to rest", func(t *testing.T) {
		c, err := NewClient(ctx, "", configured, logger)
		require.NoError(t, err)
		assert.IsType(t, &RESTClient{}, c)
	})

	t.Run("unconfigured rest degrades", func(t *testing.T) {
		c, err := NewClient(ctx, ProviderREST, Options{URL: "https://your-project.supabase.co"}, logger)
		require.NoError(t, err)
		assert.IsType(t, &UnconfiguredClient{}, c)
	})

	t.Run("unconfigured postgres degrades", func(t *testing.T) {
		c, err := NewClient(ctx, ProviderPostgres, Options{}, logger)
		require.NoError(t, err)
		assert.IsType(t, &UnconfiguredClient{}, c)
	})

	t.Run("mock", func(t *testing.T) {
		c, err := NewClient(ctx, ProviderMock, Options{}, logger)
		require.NoError(t, err)
		assert.IsType(t, &MockClient{}, c)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewClient(ctx, "firebase", configured, logger)
		assert.Error(t, err)
	})
}

func TestUnconfiguredClient_EveryCallIsNotConfigured(t *testing.T) {
	ctx := context.Background()
	c := NewUnconfiguredClient()
	p := domain.Category{ID: "x"}

	assert.ErrorIs(t, c.Insert(ctx, domain.TableCategories, p), domain.ErrNotConfigured)
	assert.ErrorIs(t, c.Update(ctx, domain.TableCategories, "x", p), domain.ErrNotConfigured)
	assert.ErrorIs(t, c.Delete(ctx, domain.TableCategories, "x"), domain.ErrNotConfigured)
	_, err := c.Select(ctx, domain.TableCategories, nil)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.ErrorIs(t, c.Ping(ctx), domain.ErrNotConfigured)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(c.Ping(ctx)))
}

func TestMockClient_QueuedErrorsAndFilters(t *testing.T) {
	ctx := context.Background()
	c := NewMockClient()
	boom := errors.New("boom")
	c.FailNext(boom)

	a := domain.Product{ID: "a", TenantID: "t1", Name: "A"}
	b := domain.Product{ID: "b", TenantID: "t2", Name: "B"}

	assert.ErrorIs(t, c.Insert(ctx, domain.TableProducts, a), boom)
	require.NoError(t, c.Insert(ctx, domain.TableProducts, a))
	require.NoError(t, c.Insert(ctx, domain.TableProducts, b))
	assert.ErrorIs(t, c.Insert(ctx, domain.TableProducts, a), domain.ErrConflict)

	rows, err := c.Select(ctx, domain.TableProducts, domain.Filter{"tenant_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Payload{a}, rows)

	calls := c.CallsFor("a")
	require.Len(t, calls, 3)
	assert.Equal(t, "t1", calls[0].Row["tenant_id"])

	require.NoError(t, c.Delete(ctx, domain.TableProducts, "a"))
	assert.Equal(t, []domain.Payload{b}, c.Rows(domain.TableProducts))
}
