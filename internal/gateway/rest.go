package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const restPrefix = "/rest/v1/"

// RESTClient talks to a PostgREST-compatible backend (Supabase) over HTTP.
type RESTClient struct {
	http   *resty.Client
	logger *zap.Logger
}

// postgrestError is the error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func NewRESTClient(opts Options, logger *zap.Logger) *RESTClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// No transport-level retries: the pending queue owns retry policy.
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.URL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("apikey", opts.APIKey).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &RESTClient{
		http:   client,
		logger: logger,
	}
}

func (c *RESTClient) Insert(ctx context.Context, table domain.Table, row domain.Payload) error {
	body, err := ToRow(row)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(body).
		Post(restPrefix + string(table))
	return c.check("insert", table, resp, err)
}

func (c *RESTClient) Update(ctx context.Context, table domain.Table, id string, patch domain.Payload) error {
	body, err := ToRow(patch)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	delete(body, "id")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetQueryParam("id", "eq."+id).
		SetBody(body).
		Patch(restPrefix + string(table))
	return c.check("update", table, resp, err)
}

func (c *RESTClient) Delete(ctx context.Context, table domain.Table, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("id", "eq."+id).
		Delete(restPrefix + string(table))
	return c.check("delete", table, resp, err)
}

func (c *RESTClient) Select(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Payload, error) {
	var rows []map[string]any
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("select", "*").
		SetResult(&rows)

	cols := make([]string, 0, len(filter))
	for col := range filter {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		req.SetQueryParam(col, fmt.Sprintf("eq.%v", filter[col]))
	}

	resp, err := req.Get(restPrefix + string(table))
	if err := c.check("select", table, resp, err); err != nil {
		return nil, err
	}
	return FromRows(table, rows)
}

// Ping reads at most one heartbeat row.
func (c *RESTClient) Ping(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("select", "id").
		SetQueryParam("limit", "1").
		Get(restPrefix + string(domain.TableHeartbeat))
	return c.check("ping", domain.TableHeartbeat, resp, err)
}

func (c *RESTClient) check(op string, table domain.Table, resp *resty.Response, err error) error {
	if err != nil {
		mapped := transportError(requestContext(resp), err)
		c.logger.Debug("backend call failed",
			zap.String("op", op),
			zap.String("table", string(table)),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", op, table, mapped)
	}
	if !resp.IsError() {
		return nil
	}

	var pgErr postgrestError
	_ = json.Unmarshal(resp.Body(), &pgErr)
	detail := pgErr.Message
	if detail == "" {
		detail = http.StatusText(resp.StatusCode())
	}

	c.logger.Warn("backend rejected call",
		zap.String("op", op),
		zap.String("table", string(table)),
		zap.Int("status_code", resp.StatusCode()),
		zap.String("pg_code", pgErr.Code),
		zap.String("message", pgErr.Message))

	return fmt.Errorf("%s %s: %w (%d %s)", op, table, statusError(resp.StatusCode()), resp.StatusCode(), detail)
}

func requestContext(resp *resty.Response) context.Context {
	if resp == nil || resp.Request == nil {
		return context.Background()
	}
	return resp.Request.Context()
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTimeout
	}
	return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
}

func statusError(code int) error {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound:
		return domain.ErrRejected
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return domain.ErrTimeout
	case code == http.StatusTooManyRequests, code >= 500:
		return domain.ErrServer
	default:
		return domain.ErrConflict
	}
}
