package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/brainbox/retailplus/internal/domain"
)

// MockCall records one gateway call. Row holds the snake_case columns the
// real clients would send.
type MockCall struct {
	Op    string
	Table domain.Table
	ID    string
	Row   map[string]any
}

// MockClient is an in-memory backend for tests and for running the agent
// without a real backend. Queued errors are returned by mutating calls in
// order, one per call.
type MockClient struct {
	mu           sync.Mutex
	tables       map[domain.Table]map[string]domain.Payload
	order        map[domain.Table][]string
	queued       []error
	pingError    error
	selectErrors map[domain.Table]error
	calls        []MockCall
}

func NewMockClient() *MockClient {
	return &MockClient{
		tables:       make(map[domain.Table]map[string]domain.Payload),
		order:        make(map[domain.Table][]string),
		selectErrors: make(map[domain.Table]error),
	}
}

// FailNext queues errors for the next mutating calls.
func (c *MockClient) FailNext(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, errs...)
}

func (c *MockClient) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingError = err
}

// SetSelectError makes every select on table fail with err; nil clears it.
func (c *MockClient) SetSelectError(table domain.Table, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.selectErrors, table)
		return
	}
	c.selectErrors[table] = err
}

// Seed stores rows directly, bypassing call tracking.
func (c *MockClient) Seed(rows ...domain.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rows {
		c.put(r.Table(), r)
	}
}

// Rows returns the stored rows of table in insertion order.
func (c *MockClient) Rows(table domain.Table) []domain.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Payload, 0, len(c.order[table]))
	for _, id := range c.order[table] {
		out = append(out, c.tables[table][id])
	}
	return out
}

func (c *MockClient) Calls() []MockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MockCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallsFor returns the calls made for one entity id.
func (c *MockClient) CallsFor(id string) []MockCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []MockCall
	for _, call := range c.calls {
		if call.ID == id {
			out = append(out, call)
		}
	}
	return out
}

func (c *MockClient) Insert(ctx context.Context, table domain.Table, row domain.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "insert", table, row.EntityID(), row); err != nil {
		return err
	}
	if _, exists := c.tables[table][row.EntityID()]; exists {
		return fmt.Errorf("insert %s: %w: duplicate key %s", table, domain.ErrConflict, row.EntityID())
	}
	c.put(table, row)
	return nil
}

func (c *MockClient) Update(ctx context.Context, table domain.Table, id string, patch domain.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "update", table, id, patch); err != nil {
		return err
	}
	// PostgREST reports success when no row matches.
	if _, exists := c.tables[table][id]; exists {
		c.tables[table][id] = patch.WithID(id)
	}
	return nil
}

func (c *MockClient) Delete(ctx context.Context, table domain.Table, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(ctx, "delete", table, id, nil); err != nil {
		return err
	}
	if _, exists := c.tables[table][id]; !exists {
		return nil
	}
	delete(c.tables[table], id)
	ids := c.order[table]
	for i, v := range ids {
		if v == id {
			c.order[table] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (c *MockClient) Select(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, domain.ErrTimeout)
	}
	c.calls = append(c.calls, MockCall{Op: "select", Table: table})
	if err := c.selectErrors[table]; err != nil {
		return nil, err
	}

	out := []domain.Payload{}
	for _, id := range c.order[table] {
		p := c.tables[table][id]
		ok, err := matches(p, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *MockClient) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, MockCall{Op: "ping", Table: domain.TableHeartbeat})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ping: %w", domain.ErrTimeout)
	}
	return c.pingError
}

// record must be called with mu held.
func (c *MockClient) record(ctx context.Context, op string, table domain.Table, id string, p domain.Payload) error {
	call := MockCall{Op: op, Table: table, ID: id}
	if p != nil {
		row, err := ToRow(p)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		call.Row = row
	}
	c.calls = append(c.calls, call)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %w", op, table, domain.ErrTimeout)
	}
	if len(c.queued) > 0 {
		err := c.queued[0]
		c.queued = c.queued[1:]
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *MockClient) put(table domain.Table, p domain.Payload) {
	if c.tables[table] == nil {
		c.tables[table] = make(map[string]domain.Payload)
	}
	if _, exists := c.tables[table][p.EntityID()]; !exists {
		c.order[table] = append(c.order[table], p.EntityID())
	}
	c.tables[table][p.EntityID()] = p
}

func matches(p domain.Payload, filter domain.Filter) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	row, err := ToRow(p)
	if err != nil {
		return false, err
	}
	for col, want := range filter {
		if fmt.Sprint(row[col]) != fmt.Sprint(want) {
			return false, nil
		}
	}
	return true, nil
}
