// Package bitrix provides access to the Bitrix24 REST API through an inbound
// webhook URL.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadsync/internal/resilience"
)

// Client is the single request/response operation the sync engine depends on.
// Transport, authentication (embedded in the webhook URL) and JSON encoding are
// the client's concern. A payload carrying an "error" key is returned as an
// *APIError.
type Client interface {
	Call(ctx context.Context, method string, params map[string]any) (*Response, error)
}

// Response is the decoded Bitrix envelope of a successful call.
type Response struct {
	Result json.RawMessage `json:"result"`
	Next   int             `json:"next,omitempty"`
	Total  int             `json:"total,omitempty"`
}

// Decode unmarshals the result payload into out.
func (r *Response) Decode(out any) error {
	if r == nil || len(r.Result) == 0 {
		return eris.New("bitrix: empty result")
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return eris.Wrap(err, "bitrix: decode result")
	}
	return nil
}

// NewResponse builds a Response whose result is v encoded as JSON. Fakes use
// it to answer calls without a server.
func NewResponse(v any) *Response {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("bitrix: encode fake result: %v", err))
	}
	return &Response{Result: raw}
}

// APIError is an error reported by Bitrix in the response payload.
type APIError struct {
	Method      string
	Code        string
	Description string
	StatusCode  int
}

func (e *APIError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("bitrix %s: %s", e.Method, msg)
}

// methodUnavailableCodes are the error codes Bitrix uses when a REST method
// does not exist or is not allowed for the webhook.
var methodUnavailableCodes = map[string]bool{
	"ERROR_METHOD_NOT_FOUND":   true,
	"METHOD_NOT_FOUND":         true,
	"ERROR_METHOD_NOT_ALLOWED": true,
}

// IsMethodUnavailable reports whether err says the called method is not
// available on this portal.
func IsMethodUnavailable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return methodUnavailableCodes[strings.ToUpper(apiErr.Code)]
}

// readMethodSuffixes mark methods that only read portal data.
var readMethodSuffixes = []string{".list", ".get", ".fields"}

// IsReadMethod reports whether method only reads data, so sending it twice
// has no effect on the portal.
func IsReadMethod(method string) bool {
	for _, s := range readMethodSuffixes {
		if strings.HasSuffix(method, s) {
			return true
		}
	}
	return false
}

// notProcessed reports whether err proves Bitrix turned the request away
// without running it.
func notProcessed(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeQueryLimit {
		return true
	}
	return resilience.IsRejected(err)
}

// retryPolicy returns the retry predicate for method. Reads retry on any
// transient failure. Writes retry only when the request provably never ran;
// a timed-out write may already be applied.
func retryPolicy(method string, base func(error) bool) func(error) bool {
	if base == nil {
		base = resilience.IsTransient
	}
	if IsReadMethod(method) {
		return base
	}
	return func(err error) bool {
		return notProcessed(err) && base(err)
	}
}

// codeQueryLimit is the error Bitrix returns when the portal rate limit is
// hit. The request is dropped unprocessed.
const codeQueryLimit = "QUERY_LIMIT_EXCEEDED"

// envelope is the raw wire shape of every Bitrix response.
type envelope struct {
	Result           json.RawMessage `json:"result"`
	Next             int             `json:"next"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// ClientOption configures the HTTP client.
type ClientOption func(*httpClient)

// WithRateLimit caps outgoing calls per second. Bitrix allows 2 req/s per
// portal before answering QUERY_LIMIT_EXCEEDED.
func WithRateLimit(rps float64) ClientOption {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry retries failed calls. Read methods retry on transient transport
// failures (HTTP 408/429/5xx, network timeouts). Write methods retry only on
// QUERY_LIMIT_EXCEEDED, HTTP 429 and refused connections. Other error
// payloads are never retried.
func WithRetry(cfg resilience.RetryConfig) ClientOption {
	return func(c *httpClient) {
		c.retry = &cfg
	}
}

// WithCircuitBreaker rejects calls while the portal keeps failing.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   *resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewClient creates a client for the given inbound webhook URL, e.g.
// https://example.bitrix24.ru/rest/1/token/.
func NewClient(webhookURL string, opts ...ClientOption) (Client, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil, eris.New("bitrix: webhook url is required")
	}
	if !strings.HasSuffix(webhookURL, "/") {
		webhookURL += "/"
	}
	c := &httpClient{
		baseURL: webhookURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) Call(ctx context.Context, method string, params map[string]any) (*Response, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrapf(err, "bitrix: encode params for %s", method)
	}

	call := func(ctx context.Context) (*Response, error) {
		if c.breaker == nil {
			return c.do(ctx, method, body)
		}
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*Response, error) {
			return c.do(ctx, method, body)
		})
	}

	if c.retry == nil {
		return call(ctx)
	}
	cfg := *c.retry
	cfg.ShouldRetry = retryPolicy(method, cfg.ShouldRetry)
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("bitrix", method)
	}
	return resilience.DoVal(ctx, cfg, call)
}

func (c *httpClient) do(ctx context.Context, method string, body []byte) (*Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "bitrix: rate limit")
	}

	zap.L().Debug("bitrix: call", zap.String("method", method), zap.Int("bytes", len(body)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method+".json", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "bitrix: create request %s", method)
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "bitrix: %s", method)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "bitrix: read response %s", method)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if decodeErr == nil && env.Error != "" {
		apiErr := &APIError{
			Method:      method,
			Code:        env.Error,
			Description: env.ErrorDescription,
			StatusCode:  resp.StatusCode,
		}
		if env.Error == codeQueryLimit || resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, transientError(apiErr, resp)
		}
		return nil, apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := eris.Errorf("bitrix: %s: HTTP %d", method, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, transientError(httpErr, resp)
		}
		return nil, httpErr
	}

	if decodeErr != nil {
		return nil, eris.Wrapf(decodeErr, "bitrix: decode response %s", method)
	}

	return &Response{Result: env.Result, Next: env.Next, Total: env.Total}, nil
}

func transientError(err error, resp *http.Response) *resilience.TransientError {
	te := resilience.NewTransientError(err, resp.StatusCode)
	te.RetryAfter = resilience.ParseRetryAfter(resp.Header)
	return te
}
