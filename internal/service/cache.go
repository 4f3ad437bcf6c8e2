package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/store"
	"go.uber.org/zap"
)

// CacheService is the local mirror of every collection for the active
// tenant. Writes replace the whole collection; the last writer wins.
type CacheService struct {
	kv     domain.KVStore
	scope  *Scope
	ns     *Namespace
	logger *zap.Logger

	// serializes read-modify-write cycles
	mu sync.Mutex
}

func NewCacheService(kv domain.KVStore, scope *Scope, logger *zap.Logger) *CacheService {
	return &CacheService{
		kv:     kv,
		scope:  scope,
		ns:     NewNamespace(scope, logger),
		logger: logger,
	}
}

// Key returns the storage key of c under the active tenant.
func (s *CacheService) Key(c domain.Table) string {
	return s.ns.ScopeKey(c)
}

// Read returns the cached collection. It never returns nil: missing and
// corrupt content both read as empty.
func (s *CacheService) Read(ctx context.Context, c domain.Table) []domain.Payload {
	var items []domain.Payload
	s.scope.Hold(func(string) {
		items, _ = s.load(ctx, c, s.ns.ScopeKey(c))
	})
	return items
}

// Loaded distinguishes an empty collection from one never written.
func (s *CacheService) Loaded(ctx context.Context, c domain.Table) bool {
	var loaded bool
	s.scope.Hold(func(string) {
		_, loaded = s.load(ctx, c, s.ns.ScopeKey(c))
	})
	return loaded
}

// Write replaces the collection. Every item must belong to c and, once a
// tenant is active, to that tenant.
func (s *CacheService) Write(ctx context.Context, c domain.Table, items []domain.Payload) error {
	var err error
	s.scope.Hold(func(tenantID string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		err = s.store(ctx, c, s.ns.ScopeKey(c), tenantID, items)
	})
	return err
}

// Init writes an explicit empty collection.
func (s *CacheService) Init(ctx context.Context, c domain.Table) error {
	return s.Write(ctx, c, []domain.Payload{})
}

// Update runs a read-modify-write cycle on c. fn receives a copy it may
// modify freely.
func (s *CacheService) Update(ctx context.Context, c domain.Table, fn func(items []domain.Payload) ([]domain.Payload, error)) error {
	var err error
	s.scope.Hold(func(tenantID string) {
		s.mu.Lock()
		defer s.mu.Unlock()

		key := s.ns.ScopeKey(c)
		items, _ := s.load(ctx, c, key)
		var next []domain.Payload
		next, err = fn(items)
		if err != nil {
			return
		}
		err = s.store(ctx, c, key, tenantID, next)
	})
	return err
}

// InitTenant writes empty collections under tenantID's namespace, leaving
// collections that already hold data untouched.
func (s *CacheService) InitTenant(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range domain.TenantCollections {
		key := TenantKey(tenantID, c)
		if _, loaded := s.load(ctx, c, key); loaded {
			continue
		}
		if err := s.store(ctx, c, key, tenantID, []domain.Payload{}); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceFor overwrites several collections of tenantID at once: every
// collection is validated first, then all are written in one batch, so a
// failure leaves every collection as it was. It fails with ErrScopeChanged
// if tenantID is no longer active.
func (s *CacheService) ReplaceFor(ctx context.Context, tenantID string, collections map[domain.Table][]domain.Payload) error {
	var err error
	s.scope.Hold(func(active string) {
		if active != tenantID {
			err = ErrScopeChanged
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()

		batch := make(map[string][]byte, len(collections))
		for c, items := range collections {
			var raw []byte
			if raw, err = encodeCollection(c, tenantID, items); err != nil {
				return
			}
			batch[TenantKey(tenantID, c)] = raw
		}
		if err = s.kv.SetMany(ctx, batch); err != nil {
			err = fmt.Errorf("replace %s collections: %w", tenantID, err)
		}
	})
	return err
}

// Purge deletes every key in tenantID's namespace.
func (s *CacheService) Purge(ctx context.Context, tenantID string) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.DeletePrefix(ctx, TenantKeyPrefix(tenantID))
}

func (s *CacheService) load(ctx context.Context, c domain.Table, key string) ([]domain.Payload, bool) {
	empty := []domain.Payload{}

	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return empty, false
	}
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return empty, false
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		s.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return empty, true
	}
	items := make([]domain.Payload, 0, len(elems))
	for _, e := range elems {
		p, err := domain.DecodePayload(c, e)
		if err != nil {
			s.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
			return empty, true
		}
		items = append(items, p)
	}
	return items, true
}

func (s *CacheService) store(ctx context.Context, c domain.Table, key, tenantID string, items []domain.Payload) error {
	raw, err := encodeCollection(c, tenantID, items)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// encodeCollection checks that items belong to c and tenantID and encodes them.
func encodeCollection(c domain.Table, tenantID string, items []domain.Payload) ([]byte, error) {
	if items == nil {
		items = []domain.Payload{}
	}
	for _, p := range items {
		if p.Table() != c {
			return nil, fmt.Errorf("%w: %s into %s", ErrWrongCollection, p.Table(), c)
		}
		if owned, ok := p.(domain.TenantOwned); ok && tenantID != "" && owned.OwnerTenant() != tenantID {
			return nil, fmt.Errorf("%w: %s %s", ErrTenantMismatch, c, p.EntityID())
		}
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c, err)
	}
	return raw, nil
}
