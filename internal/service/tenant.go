package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 5 * time.Second

// ResolveRequest carries the startup credentials of a session.
type ResolveRequest struct {
	OwnerKey    string `json:"ownerKey,omitempty"`
	OwnerSecret string `json:"ownerSecret,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// TenantResolver decides which tenant the session works against. Resolution
// never fails: when every lookup fails it settles on the demo tenant.
type TenantResolver struct {
	kv      domain.KVStore
	gateway domain.Gateway
	cache   *CacheService
	queue   *QueueService
	scope   *Scope
	logger  *zap.Logger

	ownerKey      string
	ownerSecret   string
	lookupTimeout time.Duration

	mu     sync.Mutex
	state  domain.ResolverState
	active *domain.Tenant

	// serializes resolution, switches and tenant writes
	pivotMu sync.Mutex
}

func NewTenantResolver(
	kv domain.KVStore,
	gw domain.Gateway,
	cache *CacheService,
	queue *QueueService,
	scope *Scope,
	logger *zap.Logger,
) *TenantResolver {
	return &TenantResolver{
		kv:            kv,
		gateway:       gw,
		cache:         cache,
		queue:         queue,
		scope:         scope,
		logger:        logger,
		lookupTimeout: defaultLookupTimeout,
		state:         domain.ResolverUnresolved,
	}
}

// SetOwnerCredentials configures the owner override pair. Owner mode is
// disabled while either value is empty.
func (r *TenantResolver) SetOwnerCredentials(key, secret string) {
	r.ownerKey = key
	r.ownerSecret = secret
}

func (r *TenantResolver) SetLookupTimeout(d time.Duration) {
	if d > 0 {
		r.lookupTimeout = d
	}
}

// Resolve runs once; later calls return the tenant already chosen. A later
// call presenting the owner pair promotes the settled session to owner mode
// without changing the active tenant.
func (r *TenantResolver) Resolve(ctx context.Context, req ResolveRequest) domain.Tenant {
	r.pivotMu.Lock()
	defer r.pivotMu.Unlock()

	r.mu.Lock()
	if r.state != domain.ResolverUnresolved && r.active != nil {
		t := *r.active
		if req.OwnerKey != "" && r.state != domain.ResolverOwner {
			if r.ownerMatch(req.OwnerKey, req.OwnerSecret) {
				r.state = domain.ResolverOwner
				r.logger.Info("session promoted to owner", zap.String("tenant_id", t.ID))
			} else {
				r.logger.Warn("owner credentials rejected", zap.String("tenant_id", t.ID))
			}
		}
		r.mu.Unlock()
		return t
	}
	r.state = domain.ResolverResolving
	r.mu.Unlock()

	tenant, state := r.resolve(ctx, req)
	if err := r.activate(ctx, tenant); err != nil {
		// the scope is still pivoted; only local persistence failed
		r.logger.Error("failed to persist resolved tenant", zap.String("tenant_id", tenant.ID), zap.Error(err))
	}

	r.mu.Lock()
	r.state = state
	r.mu.Unlock()

	r.logger.Info("tenant resolved",
		zap.String("tenant_id", tenant.ID),
		zap.String("state", string(state)))
	return tenant
}

func (r *TenantResolver) resolve(ctx context.Context, req ResolveRequest) (domain.Tenant, domain.ResolverState) {
	if r.ownerMatch(req.OwnerKey, req.OwnerSecret) {
		if t, ok := r.persistedTenant(ctx); ok {
			return t, domain.ResolverOwner
		}
		if dir := r.directory(ctx); len(dir) > 0 {
			return dir[0], domain.ResolverOwner
		}
		return r.defaultTenant(ctx), domain.ResolverOwner
	}

	if req.UserID != "" {
		t, err := r.lookupUserTenant(ctx, req.UserID)
		if err == nil {
			return t, domain.ResolverResolved
		}
		r.logger.Warn("tenant lookup failed, falling back",
			zap.String("user_id", req.UserID),
			zap.String("reason", string(domain.KindOf(err))),
			zap.Error(err))
	}

	if t, ok := r.persistedTenant(ctx); ok {
		return t, domain.ResolverResolved
	}
	return r.defaultTenant(ctx), domain.ResolverResolvedDefault
}

func (r *TenantResolver) ownerMatch(key, secret string) bool {
	if r.ownerKey == "" || r.ownerSecret == "" {
		return false
	}
	keyOK := subtle.ConstantTimeCompare([]byte(key), []byte(r.ownerKey)) == 1
	secretOK := subtle.ConstantTimeCompare([]byte(secret), []byte(r.ownerSecret)) == 1
	return keyOK && secretOK
}

func (r *TenantResolver) lookupUserTenant(ctx context.Context, userID string) (domain.Tenant, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	users, err := r.gateway.Select(ctx, domain.TableUsers, domain.Filter{"id": userID})
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(users) == 0 {
		return domain.Tenant{}, fmt.Errorf("user %s: %w", userID, ErrRecordNotFound)
	}
	u, ok := users[0].(domain.User)
	if !ok || u.TenantID == "" {
		return domain.Tenant{}, fmt.Errorf("user %s has no tenant: %w", userID, ErrTenantNotFound)
	}
	return r.findTenant(ctx, u.TenantID, true)
}

// findTenant looks in the local directory, then optionally the backend.
func (r *TenantResolver) findTenant(ctx context.Context, id string, remote bool) (domain.Tenant, error) {
	for _, t := range r.directory(ctx) {
		if t.ID == id {
			return t, nil
		}
	}
	if !remote {
		return domain.Tenant{}, ErrTenantNotFound
	}

	rows, err := r.gateway.Select(ctx, domain.TableTenants, domain.Filter{"id": id})
	if err != nil {
		return domain.Tenant{}, err
	}
	if len(rows) == 0 {
		return domain.Tenant{}, ErrTenantNotFound
	}
	t, ok := rows[0].(domain.Tenant)
	if !ok {
		return domain.Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

func (r *TenantResolver) persistedTenant(ctx context.Context) (domain.Tenant, bool) {
	raw, err := r.kv.Get(ctx, KeyCurrentTenant)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("failed to read current tenant pointer", zap.Error(err))
		}
		return domain.Tenant{}, false
	}
	t, err := r.findTenant(ctx, string(raw), false)
	if err != nil {
		return domain.Tenant{}, false
	}
	return t, true
}

func (r *TenantResolver) defaultTenant(ctx context.Context) domain.Tenant {
	if t, err := r.findTenant(ctx, domain.DefaultTenantID, false); err == nil {
		return t
	}
	t := domain.DefaultTenant()
	t.CreatedAt = time.Now().UTC()
	return t
}

// activate records t locally and pivots the scope to it.
func (r *TenantResolver) activate(ctx context.Context, t domain.Tenant) error {
	r.scope.Pivot(t.ID)
	r.mu.Lock()
	r.active = &t
	r.mu.Unlock()

	if err := r.saveTenant(ctx, t); err != nil {
		return err
	}
	if err := r.kv.Set(ctx, KeyCurrentTenant, []byte(t.ID)); err != nil {
		return fmt.Errorf("persist current tenant: %w", err)
	}
	return r.cache.InitTenant(ctx, t.ID)
}

// ActiveTenant returns the active tenant; ok is false before Resolve.
func (r *TenantResolver) ActiveTenant() (domain.Tenant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return domain.Tenant{}, false
	}
	return *r.active, true
}

func (r *TenantResolver) State() domain.ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *TenantResolver) IsOwner() bool {
	return r.State() == domain.ResolverOwner
}

// ListTenants returns every known tenant in owner mode and only the active
// tenant otherwise.
func (r *TenantResolver) ListTenants(ctx context.Context) ([]domain.Tenant, error) {
	if !r.State().Settled() {
		return nil, ErrNotResolved
	}
	if !r.IsOwner() {
		t, _ := r.ActiveTenant()
		return []domain.Tenant{t}, nil
	}

	local := r.directory(ctx)
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	rows, err := r.gateway.Select(ctx, domain.TableTenants, nil)
	if err != nil {
		r.logger.Warn("listing remote tenants failed, using local directory",
			zap.String("reason", string(domain.KindOf(err))),
			zap.Error(err))
		return local, nil
	}

	seen := make(map[string]bool, len(rows))
	out := make([]domain.Tenant, 0, len(rows)+len(local))
	for _, p := range rows {
		if t, ok := p.(domain.Tenant); ok {
			seen[t.ID] = true
			out = append(out, t)
		}
	}
	for _, t := range local {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// SwitchTenant makes id the active tenant once in-flight cache operations
// complete. Ordinary sessions may only switch between tenants known on this
// device.
func (r *TenantResolver) SwitchTenant(ctx context.Context, id string) (domain.Tenant, error) {
	r.pivotMu.Lock()
	defer r.pivotMu.Unlock()

	if !r.State().Settled() {
		return domain.Tenant{}, ErrNotResolved
	}
	t, err := r.findTenant(ctx, id, r.IsOwner())
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return domain.Tenant{}, ErrTenantNotFound
		}
		return domain.Tenant{}, fmt.Errorf("switch tenant: %w", err)
	}
	if err := r.activate(ctx, t); err != nil {
		return domain.Tenant{}, err
	}

	r.logger.Info("tenant switched", zap.String("tenant_id", t.ID))
	return t, nil
}

// CreateTenant onboards a tenant, queues its remote insert and makes it active.
func (r *TenantResolver) CreateTenant(ctx context.Context, in domain.TenantInput) (domain.Tenant, error) {
	r.pivotMu.Lock()
	defer r.pivotMu.Unlock()

	if !r.State().Settled() {
		return domain.Tenant{}, ErrNotResolved
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Tenant{}, ErrTenantNameEmpty
	}
	plan := in.Plan
	if plan == "" {
		plan = domain.PlanBasic
	}
	if !domain.ValidPlan(string(plan)) {
		return domain.Tenant{}, ErrInvalidPlan
	}
	settings := domain.DefaultTenantSettings()
	if in.Settings != nil {
		settings = *in.Settings
	}

	maxSystems, maxPhones := plan.Limits()
	t := domain.Tenant{
		ID:              uuid.NewString(),
		Name:            name,
		RegistrationRef: in.RegistrationRef,
		Email:           in.Email,
		Phone:           in.Phone,
		Address:         in.Address,
		Plan:            plan,
		MaxSystems:      maxSystems,
		MaxPhones:       maxPhones,
		Active:          true,
		Settings:        settings,
		CreatedAt:       time.Now().UTC(),
	}

	if err := r.saveTenant(ctx, t); err != nil {
		return domain.Tenant{}, err
	}
	if _, err := r.queue.Enqueue(ctx, domain.ActionCreate, domain.TableTenants, t, t.ID); err != nil {
		return domain.Tenant{}, fmt.Errorf("queue tenant insert: %w", err)
	}
	if err := r.activate(ctx, t); err != nil {
		return domain.Tenant{}, err
	}

	r.logger.Info("tenant created", zap.String("tenant_id", t.ID), zap.String("plan", string(plan)))
	return t, nil
}

// UpdateTenant merges patch into a tenant. Ordinary sessions may only update
// the active tenant.
func (r *TenantResolver) UpdateTenant(ctx context.Context, id string, patch domain.TenantPatch) (domain.Tenant, error) {
	r.pivotMu.Lock()
	defer r.pivotMu.Unlock()

	if !r.State().Settled() {
		return domain.Tenant{}, ErrNotResolved
	}
	active, _ := r.ActiveTenant()
	if !r.IsOwner() && id != active.ID {
		return domain.Tenant{}, ErrOwnerOnly
	}
	if patch.Plan != nil && !domain.ValidPlan(string(*patch.Plan)) {
		return domain.Tenant{}, ErrInvalidPlan
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Tenant{}, ErrTenantNameEmpty
	}

	current, err := r.findTenant(ctx, id, r.IsOwner())
	if err != nil {
		return domain.Tenant{}, err
	}
	updated := patch.Apply(current)

	if err := r.saveTenant(ctx, updated); err != nil {
		return domain.Tenant{}, err
	}
	if _, err := r.queue.Enqueue(ctx, domain.ActionUpdate, domain.TableTenants, updated, updated.ID); err != nil {
		return domain.Tenant{}, fmt.Errorf("queue tenant update: %w", err)
	}
	if updated.ID == active.ID {
		r.mu.Lock()
		r.active = &updated
		r.mu.Unlock()
	}
	return updated, nil
}

// PurgeTenant removes every local key of a tenant. Remote rows are kept.
func (r *TenantResolver) PurgeTenant(ctx context.Context, id string) (int64, error) {
	r.pivotMu.Lock()
	defer r.pivotMu.Unlock()

	if !r.IsOwner() {
		return 0, ErrOwnerOnly
	}
	if active, _ := r.ActiveTenant(); active.ID == id {
		return 0, ErrTenantActive
	}

	n, err := r.cache.Purge(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("purge tenant %s: %w", id, err)
	}
	if err := r.removeTenant(ctx, id); err != nil {
		return n, err
	}
	r.logger.Info("tenant purged", zap.String("tenant_id", id), zap.Int64("keys", n))
	return n, nil
}

// directory returns the tenants known on this device.
func (r *TenantResolver) directory(ctx context.Context) []domain.Tenant {
	raw, err := r.kv.Get(ctx, KeyTenants)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("failed to read tenant directory", zap.Error(err))
		}
		return []domain.Tenant{}
	}
	var tenants []domain.Tenant
	if err := json.Unmarshal(raw, &tenants); err != nil {
		r.logger.Warn("discarding corrupt tenant directory", zap.Error(err))
		return []domain.Tenant{}
	}
	return tenants
}

func (r *TenantResolver) saveTenant(ctx context.Context, t domain.Tenant) error {
	dir := r.directory(ctx)
	replaced := false
	for i := range dir {
		if dir[i].ID == t.ID {
			dir[i] = t
			replaced = true
		}
	}
	if !replaced {
		dir = append(dir, t)
	}
	return r.writeDirectory(ctx, dir)
}

func (r *TenantResolver) removeTenant(ctx context.Context, id string) error {
	dir := r.directory(ctx)
	out := dir[:0]
	for _, t := range dir {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return r.writeDirectory(ctx, out)
}

func (r *TenantResolver) writeDirectory(ctx context.Context, dir []domain.Tenant) error {
	raw, err := json.Marshal(dir)
	if err != nil {
		return fmt.Errorf("encode tenant directory: %w", err)
	}
	if err := r.kv.Set(ctx, KeyTenants, raw); err != nil {
		return fmt.Errorf("persist tenant directory: %w", err)
	}
	return nil
}
