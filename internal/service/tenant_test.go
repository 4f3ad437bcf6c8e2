package service

import (
	"context"
	"strings"
	"testing"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolve_LookupFailureFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	gw := &mockGateway{}
	gw.On("Select", mock.Anything, domain.TableUsers, mock.Anything).Return(nil, domain.ErrUnreachable)

	h := newHarnessWith(t, newMemKV(), gw)
	tenant := h.resolver.Resolve(ctx, ResolveRequest{UserID: uuid.NewString()})

	assert.Equal(t, domain.ResolverResolvedDefault, h.resolver.State())
	active, ok := h.resolver.ActiveTenant()
	require.True(t, ok)
	assert.Equal(t, tenant, active)
	assert.Equal(t, domain.DefaultTenantID, active.ID)
	assert.True(t, ValidIdentifier(active.ID))

	key := h.cache.Key(domain.TableProducts)
	assert.Equal(t, TenantKey(domain.DefaultTenantID, domain.TableProducts), key)
	assert.True(t, h.cache.Loaded(ctx, domain.TableProducts))
}

func TestResolve_UnconfiguredBackendFallsBackToDefault(t *testing.T) {
	h := newHarnessWith(t, newMemKV(), gateway.NewUnconfiguredClient())
	tenant := h.resolver.Resolve(context.Background(), ResolveRequest{UserID: uuid.NewString()})

	assert.Equal(t, domain.DefaultTenantID, tenant.ID)
	assert.Equal(t, domain.ResolverResolvedDefault, h.resolver.State())
}

func TestResolve_FromAuthenticatedUser(t *testing.T) {
	h := newHarness(t)
	shop := domain.Tenant{ID: uuid.NewString(), Name: "Corner Shop", Plan: domain.PlanPro, Active: true}
	user := domain.User{ID: uuid.NewString(), TenantID: shop.ID, Email: "a@corner.shop"}
	h.mockgw.Seed(shop, user)

	tenant := h.resolver.Resolve(context.Background(), ResolveRequest{UserID: user.ID})

	assert.Equal(t, domain.ResolverResolved, h.resolver.State())
	assert.Equal(t, shop.ID, tenant.ID)
	assert.Equal(t, "Corner Shop", tenant.Name)
}

func TestResolve_RunsOnce(t *testing.T) {
	h := newHarness(t)
	first := h.resolve(t)

	shop := domain.Tenant{ID: uuid.NewString(), Name: "Other"}
	user := domain.User{ID: uuid.NewString(), TenantID: shop.ID}
	h.mockgw.Seed(shop, user)

	second := h.resolver.Resolve(context.Background(), ResolveRequest{UserID: user.ID})
	assert.Equal(t, first.ID, second.ID)
}

func TestResolve_OwnerMode(t *testing.T) {
	ctx := context.Background()

	t.Run("matching pair", func(t *testing.T) {
		h := newHarness(t)
		h.resolver.SetOwnerCredentials("owner", "s3cret")
		h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "owner", OwnerSecret: "s3cret"})

		assert.Equal(t, domain.ResolverOwner, h.resolver.State())
		assert.True(t, h.resolver.IsOwner())
		_, ok := h.resolver.ActiveTenant()
		assert.True(t, ok)
	})

	t.Run("wrong secret", func(t *testing.T) {
		h := newHarness(t)
		h.resolver.SetOwnerCredentials("owner", "s3cret")
		h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "owner", OwnerSecret: "guess"})

		assert.False(t, h.resolver.IsOwner())
	})

	t.Run("settled session promoted by matching pair", func(t *testing.T) {
		h := newHarness(t)
		h.resolver.SetOwnerCredentials("owner", "s3cret")
		first := h.resolve(t)
		require.Equal(t, domain.ResolverResolvedDefault, h.resolver.State())

		h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "owner", OwnerSecret: "guess"})
		assert.False(t, h.resolver.IsOwner())

		again := h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "owner", OwnerSecret: "s3cret"})
		assert.True(t, h.resolver.IsOwner())
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("owner mode disabled when unconfigured", func(t *testing.T) {
		h := newHarness(t)
		h.resolver.Resolve(ctx, ResolveRequest{})

		assert.False(t, h.resolver.IsOwner())
	})
}

func TestResolve_RestoresPersistedTenant(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	h := newHarnessWith(t, kv, gateway.NewUnconfiguredClient())
	h.resolve(t)
	shop, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Kiosk"})
	require.NoError(t, err)

	restarted := newHarnessWith(t, kv, gateway.NewUnconfiguredClient())
	tenant := restarted.resolver.Resolve(ctx, ResolveRequest{})

	assert.Equal(t, shop.ID, tenant.ID)
	assert.Equal(t, domain.ResolverResolved, restarted.resolver.State())
}

func TestCreateTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.resolve(t)

	tenant, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "  Market  ", Plan: domain.PlanAdvance})
	require.NoError(t, err)

	assert.True(t, ValidIdentifier(tenant.ID))
	assert.Equal(t, "Market", tenant.Name)
	assert.Equal(t, 10, tenant.MaxSystems)
	assert.Equal(t, 10, tenant.MaxPhones)
	assert.True(t, tenant.Active)
	assert.Equal(t, domain.DefaultTenantSettings(), tenant.Settings)

	active, _ := h.resolver.ActiveTenant()
	assert.Equal(t, tenant.ID, active.ID)

	for _, c := range domain.TenantCollections {
		assert.True(t, h.cache.Loaded(ctx, c), string(c))
		assert.Empty(t, h.cache.Read(ctx, c), string(c))
	}

	pending := h.queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.TableTenants, pending[0].Collection)
	assert.Equal(t, domain.ActionCreate, pending[0].Action)
}

func TestCreateTenant_Validation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Early"})
	assert.ErrorIs(t, err, ErrNotResolved)

	h.resolve(t)
	_, err = h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "  "})
	assert.ErrorIs(t, err, ErrTenantNameEmpty)
	_, err = h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "X", Plan: "platinum"})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestSwitchTenant_ViewFollowsActiveTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.resolve(t)

	a, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Shop A"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.records.Create(ctx, product("item", i))
		require.NoError(t, err)
	}
	productsOfA := h.cache.Read(ctx, domain.TableProducts)
	require.Len(t, productsOfA, 3)

	b, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Shop B"})
	require.NoError(t, err)
	active, _ := h.resolver.ActiveTenant()
	require.Equal(t, b.ID, active.ID)

	assert.Empty(t, h.cache.Read(ctx, domain.TableProducts))

	_, err = h.resolver.SwitchTenant(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, productsOfA, h.cache.Read(ctx, domain.TableProducts))
}

func TestSwitchTenant_Errors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.resolver.SwitchTenant(ctx, domain.DefaultTenantID)
	assert.ErrorIs(t, err, ErrNotResolved)

	h.resolve(t)
	_, err = h.resolver.SwitchTenant(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrTenantNotFound)
}

func TestUpdateTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.resolve(t)
	shop, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Shop"})
	require.NoError(t, err)

	plan := domain.PlanPro
	name := "Shop & Co"
	updated, err := h.resolver.UpdateTenant(ctx, shop.ID, domain.TenantPatch{Name: &name, Plan: &plan})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, 3, updated.MaxSystems)
	assert.True(t, shop.CreatedAt.Equal(updated.CreatedAt))

	active, _ := h.resolver.ActiveTenant()
	assert.Equal(t, name, active.Name)

	_, err = h.resolver.UpdateTenant(ctx, domain.DefaultTenantID, domain.TenantPatch{Name: &name})
	assert.ErrorIs(t, err, ErrOwnerOnly)

	bad := domain.Plan("gold")
	_, err = h.resolver.UpdateTenant(ctx, shop.ID, domain.TenantPatch{Plan: &bad})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestListTenants(t *testing.T) {
	ctx := context.Background()

	t.Run("ordinary session sees only the active tenant", func(t *testing.T) {
		h := newHarness(t)
		h.resolve(t)
		_, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Second"})
		require.NoError(t, err)

		tenants, err := h.resolver.ListTenants(ctx)
		require.NoError(t, err)
		require.Len(t, tenants, 1)
		assert.Equal(t, "Second", tenants[0].Name)
	})

	t.Run("owner sees remote and local tenants", func(t *testing.T) {
		h := newHarness(t)
		h.mockgw.Seed(domain.Tenant{ID: uuid.NewString(), Name: "Remote Only"})
		h.resolver.SetOwnerCredentials("k", "s")
		h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "k", OwnerSecret: "s"})

		tenants, err := h.resolver.ListTenants(ctx)
		require.NoError(t, err)
		var names []string
		for _, tn := range tenants {
			names = append(names, tn.Name)
		}
		assert.ElementsMatch(t, []string{"Remote Only", "Demo Store"}, names)
	})
}

func TestPurgeTenant(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.resolver.SetOwnerCredentials("k", "s")
	h.resolver.Resolve(ctx, ResolveRequest{OwnerKey: "k", OwnerSecret: "s"})

	doomed, err := h.resolver.CreateTenant(ctx, domain.TenantInput{Name: "Closing Down"})
	require.NoError(t, err)

	_, err = h.resolver.PurgeTenant(ctx, doomed.ID)
	assert.ErrorIs(t, err, ErrTenantActive)

	_, err = h.resolver.SwitchTenant(ctx, domain.DefaultTenantID)
	require.NoError(t, err)

	n, err := h.resolver.PurgeTenant(ctx, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(domain.TenantCollections)), n)

	keys, err := h.kv.Keys(ctx, TenantKeyPrefix(doomed.ID))
	require.NoError(t, err)
	assert.Empty(t, keys)

	for _, tn := range h.resolver.directory(ctx) {
		assert.False(t, strings.EqualFold(tn.ID, doomed.ID))
	}
}

func TestPurgeTenant_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	h.resolve(t)

	_, err := h.resolver.PurgeTenant(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrOwnerOnly)
}
