package service

import (
	"sync"

	"github.com/brainbox/retailplus/internal/domain"
	"go.uber.org/zap"
)

const (
	keyPrefix       = "app_"
	tenantKeyPrefix = "app_tenant_"
)

// Global keys are never tenant-scoped.
const (
	KeyCurrentTenant = "app_current_tenant"
	KeyPendingSync   = "app_pending_sync"
	KeyLastSync      = "app_last_sync"
	KeyDeviceID      = "app_device_id"
	KeyTenants       = "app_tenants"
	KeySyncAttempts  = "app_sync_attempts"
	KeySyncFailures  = "app_sync_failures"

	// CorruptQueuePrefix prefixes backups of unreadable queue content; the
	// suffix is the backup time in Unix nanoseconds.
	CorruptQueuePrefix = KeyPendingSync + "_corrupt_"
)

// UnscopedKey is the fallback key used before a tenant is resolved.
func UnscopedKey(c domain.Table) string {
	return keyPrefix + string(c)
}

func TenantKey(tenantID string, c domain.Table) string {
	return TenantKeyPrefix(tenantID) + string(c)
}

// TenantKeyPrefix is shared by every key owned by tenantID.
func TenantKeyPrefix(tenantID string) string {
	return tenantKeyPrefix + tenantID + "_"
}

// TenantSource reports the active tenant. ok is false before resolution.
type TenantSource interface {
	ActiveTenantID() (id string, ok bool)
}

// Namespace derives storage keys from the active tenant.
type Namespace struct {
	source TenantSource
	logger *zap.Logger
}

func NewNamespace(source TenantSource, logger *zap.Logger) *Namespace {
	return &Namespace{source: source, logger: logger}
}

// ScopeKey returns the key for collection c under the active tenant. A
// failing tenant source degrades to the unscoped key.
func (n *Namespace) ScopeKey(c domain.Table) (key string) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("tenant source failed, using unscoped key",
				zap.String("table", string(c)),
				zap.Any("panic", r))
			key = UnscopedKey(c)
		}
	}()

	if n.source == nil {
		return UnscopedKey(c)
	}
	id, ok := n.source.ActiveTenantID()
	if !ok || id == "" {
		return UnscopedKey(c)
	}
	return TenantKey(id, c)
}

// Scope holds the active tenant and the pivot lock. Cache operations run
// under Hold; a tenant switch takes the write side, so it waits for them and
// no cache operation starts until the switch completes.
type Scope struct {
	pivot sync.RWMutex

	mu       sync.Mutex
	tenantID string
}

func NewScope() *Scope {
	return &Scope{}
}

func (s *Scope) ActiveTenantID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantID, s.tenantID != ""
}

// Hold runs fn with the active tenant pinned.
func (s *Scope) Hold(fn func(tenantID string)) {
	s.pivot.RLock()
	defer s.pivot.RUnlock()
	id, _ := s.ActiveTenantID()
	fn(id)
}

// Pivot re-points the active tenant once in-flight cache operations finish.
func (s *Scope) Pivot(tenantID string) {
	s.pivot.Lock()
	defer s.pivot.Unlock()
	s.mu.Lock()
	s.tenantID = tenantID
	s.mu.Unlock()
}
