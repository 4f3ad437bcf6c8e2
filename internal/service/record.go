package service

import (
	"context"
	"fmt"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordService is the write path for feature modules: every mutation lands
// in the local cache first, then in the pending queue.
type RecordService struct {
	cache  *CacheService
	queue  *QueueService
	scope  *Scope
	logger *zap.Logger
}

func NewRecordService(cache *CacheService, queue *QueueService, scope *Scope, logger *zap.Logger) *RecordService {
	return &RecordService{cache: cache, queue: queue, scope: scope, logger: logger}
}

// Create stores p under the active tenant, assigning an id when missing.
// A supplied id must be a UUID; the backend would never accept anything else.
func (s *RecordService) Create(ctx context.Context, p domain.Payload) (domain.Payload, error) {
	c, tenantID, err := s.target(p)
	if err != nil {
		return nil, err
	}
	switch id := p.EntityID(); {
	case id == "":
		p = p.WithID(uuid.NewString())
	case !ValidIdentifier(id):
		return nil, fmt.Errorf("%w: %s %q", domain.ErrInvalidIdentifier, c, id)
	}
	p = p.WithTenant(tenantID)

	err = s.cache.Update(ctx, c, func(items []domain.Payload) ([]domain.Payload, error) {
		if indexOf(items, p.EntityID()) >= 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrRecordExists, c, p.EntityID())
		}
		return append(items, p), nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, domain.ActionCreate, c, p, tenantID); err != nil {
		s.revert(ctx, c, p.EntityID(), nil)
		return nil, err
	}
	return p, nil
}

// Update replaces an existing record.
func (s *RecordService) Update(ctx context.Context, p domain.Payload) (domain.Payload, error) {
	c, tenantID, err := s.target(p)
	if err != nil {
		return nil, err
	}
	p = p.WithTenant(tenantID)

	var previous domain.Payload
	err = s.cache.Update(ctx, c, func(items []domain.Payload) ([]domain.Payload, error) {
		i := indexOf(items, p.EntityID())
		if i < 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, c, p.EntityID())
		}
		previous = items[i]
		items[i] = p
		return items, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.queue.Enqueue(ctx, domain.ActionUpdate, c, p, tenantID); err != nil {
		s.revert(ctx, c, p.EntityID(), previous)
		return nil, err
	}
	return p, nil
}

// Delete removes a record and queues the remote delete.
func (s *RecordService) Delete(ctx context.Context, c domain.Table, id string) error {
	tenantID, ok := s.scope.ActiveTenantID()
	if !ok {
		return ErrNotResolved
	}
	if !c.TenantScoped() {
		return fmt.Errorf("%w: %s", ErrWrongCollection, c)
	}

	var removed domain.Payload
	err := s.cache.Update(ctx, c, func(items []domain.Payload) ([]domain.Payload, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s %s", ErrRecordNotFound, c, id)
		}
		removed = items[i]
		return append(items[:i:i], items[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	if _, err := s.queue.Enqueue(ctx, domain.ActionDelete, c, removed, tenantID); err != nil {
		s.revert(ctx, c, id, removed)
		return err
	}
	return nil
}

func (s *RecordService) List(ctx context.Context, c domain.Table) []domain.Payload {
	return s.cache.Read(ctx, c)
}

func (s *RecordService) Get(ctx context.Context, c domain.Table, id string) (domain.Payload, error) {
	items := s.cache.Read(ctx, c)
	if i := indexOf(items, id); i >= 0 {
		return items[i], nil
	}
	return nil, ErrRecordNotFound
}

func (s *RecordService) target(p domain.Payload) (domain.Table, string, error) {
	if p == nil {
		return "", "", fmt.Errorf("%w: nil payload", domain.ErrInvalidPayload)
	}
	c := p.Table()
	if !c.TenantScoped() {
		return "", "", fmt.Errorf("%w: %s", ErrWrongCollection, c)
	}
	tenantID, ok := s.scope.ActiveTenantID()
	if !ok {
		return "", "", ErrNotResolved
	}
	return c, tenantID, nil
}

// revert undoes a cache write whose enqueue failed: the record is removed,
// or restored to previous when one is given.
func (s *RecordService) revert(ctx context.Context, c domain.Table, id string, previous domain.Payload) {
	err := s.cache.Update(ctx, c, func(items []domain.Payload) ([]domain.Payload, error) {
		i := indexOf(items, id)
		switch {
		case previous == nil && i >= 0:
			return append(items[:i:i], items[i+1:]...), nil
		case previous != nil && i >= 0:
			items[i] = previous
		case previous != nil:
			items = append(items, previous)
		}
		return items, nil
	})
	if err != nil {
		s.logger.Error("failed to revert cache write", zap.String("table", string(c)), zap.String("entity_id", id), zap.Error(err))
	}
}

func indexOf(items []domain.Payload, id string) int {
	for i, p := range items {
		if p.EntityID() == id {
			return i
		}
	}
	return -1
}
