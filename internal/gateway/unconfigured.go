package gateway

import (
	"context"

	"github.com/brainbox/retailplus/internal/domain"
)

// UnconfiguredClient stands in when no backend credentials exist.
// Every call fails with domain.ErrNotConfigured.
type UnconfiguredClient struct{}

func NewUnconfiguredClient() *UnconfiguredClient {
	return &UnconfiguredClient{}
}

func (UnconfiguredClient) Insert(ctx context.Context, table domain.Table, row domain.Payload) error {
	return domain.ErrNotConfigured
}

func (UnconfiguredClient) Update(ctx context.Context, table domain.Table, id string, patch domain.Payload) error {
	return domain.ErrNotConfigured
}

func (UnconfiguredClient) Delete(ctx context.Context, table domain.Table, id string) error {
	return domain.ErrNotConfigured
}

func (UnconfiguredClient) Select(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Payload, error) {
	return nil, domain.ErrNotConfigured
}

func (UnconfiguredClient) Ping(ctx context.Context) error {
	return domain.ErrNotConfigured
}
