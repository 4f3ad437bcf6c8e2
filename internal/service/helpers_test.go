package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/brainbox/retailplus/internal/store"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memKV implements domain.KVStore in memory.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memKV) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) SetMany(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// failingKV fails writes to keys ending in suffix once suffix is set. A
// batch containing such a key fails as a whole, like a rolled-back
// transaction.
type failingKV struct {
	*memKV
	suffix string
}

func (f *failingKV) rejects(key string) bool {
	return f.suffix != "" && strings.HasSuffix(key, f.suffix)
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.rejects(key) {
		return errors.New("disk full")
	}
	return f.memKV.Set(ctx, key, value)
}

func (f *failingKV) SetMany(ctx context.Context, entries map[string][]byte) error {
	for k := range entries {
		if f.rejects(k) {
			return errors.New("disk full")
		}
	}
	return f.memKV.SetMany(ctx, entries)
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// mockGateway is a testify mock for call-count assertions.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Insert(ctx context.Context, table domain.Table, row domain.Payload) error {
	return m.Called(ctx, table, row).Error(0)
}

func (m *mockGateway) Update(ctx context.Context, table domain.Table, id string, patch domain.Payload) error {
	return m.Called(ctx, table, id, patch).Error(0)
}

func (m *mockGateway) Delete(ctx context.Context, table domain.Table, id string) error {
	return m.Called(ctx, table, id).Error(0)
}

func (m *mockGateway) Select(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Payload, error) {
	args := m.Called(ctx, table, filter)
	rows, _ := args.Get(0).([]domain.Payload)
	return rows, args.Error(1)
}

func (m *mockGateway) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// staticSource is a TenantSource with a fixed answer.
type staticSource string

func (s staticSource) ActiveTenantID() (string, bool) {
	return string(s), s != ""
}

// harness wires the services the way the agent does.
type harness struct {
	kv       domain.KVStore
	gw       domain.Gateway
	mockgw   *gateway.MockClient
	scope    *Scope
	cache    *CacheService
	queue    *QueueService
	monitor  *ConnectivityMonitor
	sync     *SyncService
	resolver *TenantResolver
	records  *RecordService
	sales    *SaleService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, newMemKV(), gateway.NewMockClient())
}

func newHarnessWith(t *testing.T, kv domain.KVStore, gw domain.Gateway) *harness {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	h := &harness{kv: kv, gw: gw, scope: NewScope()}
	h.mockgw, _ = gw.(*gateway.MockClient)
	h.cache = NewCacheService(kv, h.scope, logger)
	h.queue = NewQueueService(ctx, kv, gw, logger)
	h.monitor = NewConnectivityMonitor(gw, logger)
	h.sync = NewSyncService(h.queue, h.cache, h.monitor, gw, h.scope, kv, logger)
	h.resolver = NewTenantResolver(kv, gw, h.cache, h.queue, h.scope, logger)
	h.records = NewRecordService(h.cache, h.queue, h.scope, logger)
	h.sales = NewSaleService(h.records, h.resolver, logger)
	return h
}

// resolve settles the resolver on whatever the gateway and store allow.
func (h *harness) resolve(t *testing.T) domain.Tenant {
	t.Helper()
	tenant := h.resolver.Resolve(context.Background(), ResolveRequest{})
	require.True(t, h.resolver.State().Settled())
	return tenant
}

func product(name string, stock int) domain.Product {
	return domain.Product{Name: name, Price: 2.5, Stock: stock}
}
