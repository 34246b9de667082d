// Package notion reads configuration tables kept in Notion databases.
package notion

import (
	"context"
	"errors"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadsync/internal/resilience"
)

// Client is the Notion API surface used by leadsync.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default limit of 3 req/s.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry retries queries that fail with a rate limit, a Notion 5xx or a
// transport error. Queries only read, so every attempt is safe to repeat.
func WithRetry(cfg resilience.RetryConfig) ClientOption {
	return func(c *notionClient) {
		if cfg.ShouldRetry == nil {
			cfg.ShouldRetry = IsRetryable
		}
		if cfg.OnRetry == nil {
			cfg.OnRetry = resilience.RetryLogger("notion", "query database")
		}
		c.retry = &cfg
	}
}

type queryFunc func(ctx context.Context, dbID notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

type notionClient struct {
	query   queryFunc
	limiter *rate.Limiter
	retry   *resilience.RetryConfig
}

// NewClient creates a Notion client for the given integration token.
func NewClient(token string, opts ...ClientOption) Client {
	inner := notionapi.NewClient(notionapi.Token(token))
	c := &notionClient{
		query:   inner.Database.Query,
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if c.retry == nil {
		return c.queryOnce(ctx, dbID, req)
	}
	return resilience.DoVal(ctx, *c.retry, func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		return c.queryOnce(ctx, dbID, req)
	})
}

func (c *notionClient) queryOnce(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "notion: rate limit")
		}
	}
	resp, err := c.query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, eris.Wrapf(err, "notion: query database %s", dbID)
	}
	return resp, nil
}

// IsRetryable reports whether a Notion error is temporary.
func IsRetryable(err error) bool {
	var limited *notionapi.RateLimitedError
	if errors.As(err, &limited) {
		return true
	}
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusConflict || resilience.IsTransientHTTPStatus(apiErr.Status)
	}
	return resilience.IsTransient(err)
}
