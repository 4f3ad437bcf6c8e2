// Package gateway implements the Remote Data Gateway: the only code that
// talks to the hosted backend. Every client reports failures through the
// domain error taxonomy so callers can decide to stay offline-only.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"go.uber.org/zap"
)

// Provider constants
const (
	ProviderREST     = "rest"
	ProviderPostgres = "postgres"
	ProviderMock     = "mock"
)

const defaultTimeout = 15 * time.Second

type Options struct {
	URL         string
	APIKey      string
	DatabaseURL string
	Timeout     time.Duration
	UserAgent   string
}

var placeholderMarkers = []string{
	"your-project",
	"your_project",
	"your-api-key",
	"your_api_key",
	"placeholder",
	"changeme",
	"example.supabase",
	"xxx",
}

// IsPlaceholder reports whether a setting is empty or an obvious template value.
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// Configured reports whether the options are usable for provider.
func (o Options) Configured(provider string) bool {
	switch provider {
	case ProviderMock:
		return true
	case ProviderPostgres:
		return !IsPlaceholder(o.DatabaseURL)
	default:
		return !IsPlaceholder(o.URL) && !IsPlaceholder(o.APIKey)
	}
}

// NewClient creates a gateway for the provider. Missing or placeholder
// settings yield an UnconfiguredClient rather than an error: the agent
// then runs offline-only. Unknown providers are an error.
func NewClient(ctx context.Context, provider string, opts Options, logger *zap.Logger) (domain.Gateway, error) {
	if provider == "" {
		provider = ProviderREST
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	switch provider {
	case ProviderREST, ProviderPostgres:
		if !opts.Configured(provider) {
			logger.Warn("remote backend not configured, running offline-only", zap.String("provider", provider))
			return NewUnconfiguredClient(), nil
		}
		if provider == ProviderPostgres {
			return NewPostgresClient(ctx, opts.DatabaseURL, logger)
		}
		return NewRESTClient(opts, logger), nil

	case ProviderMock:
		return NewMockClient(), nil

	default:
		return nil, fmt.Errorf("unknown backend provider: %s (valid options: rest, postgres, mock)", provider)
	}
}
