// Package vk provides a client for the VK community messaging API.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadsync/internal/resilience"
)

// DefaultAPIVersion is the VK API version sent with every call.
const DefaultAPIVersion = "5.199"

// Client defines the VK messaging operations.
type Client interface {
	// IsMessagesFromGroupAllowed reports whether the user allowed messages
	// from the community.
	IsMessagesFromGroupAllowed(ctx context.Context, userID, groupID int64) (bool, error)
	// SendMessage sends a community message and returns its id.
	SendMessage(ctx context.Context, msg Message) (int64, error)
}

// Message is a community message to a single user.
type Message struct {
	UserID   int64
	RandomID int64
	Text     string
	Keyboard *Keyboard
}

// Keyboard is a bot keyboard attached to a message.
type Keyboard struct {
	OneTime bool       `json:"one_time,omitempty"`
	Inline  bool       `json:"inline,omitempty"`
	Buttons [][]Button `json:"buttons"`
}

// Button is one keyboard button.
type Button struct {
	Action Action `json:"action"`
	Color  string `json:"color,omitempty"`
}

// Action is what a button does when pressed.
type Action struct {
	Type  string `json:"type"`
	Link  string `json:"link,omitempty"`
	Label string `json:"label"`
}

// LinkButton returns a button that opens link.
func LinkButton(label, link string) Button {
	return Button{Action: Action{Type: "open_link", Link: link, Label: label}}
}

// APIError is an error object returned by VK.
type APIError struct {
	Method  string `json:"-"`
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "error " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("vk %s: %s", e.Method, msg)
}

// transientCodes are VK error codes worth retrying: too many requests per
// second, flood control and internal server error.
var transientCodes = map[int]bool{6: true, 9: true, 10: true}

// Option configures the VK client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/") + "/"
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithAPIVersion overrides DefaultAPIVersion.
func WithAPIVersion(v string) Option {
	return func(c *httpClient) {
		if v != "" {
			c.version = v
		}
	}
}

// WithRateLimit caps calls per second. Community tokens allow 20 req/s.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetry retries transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = &cfg
	}
}

type httpClient struct {
	token   string
	version string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   *resilience.RetryConfig
}

// NewClient creates a client authenticated with a community access token.
func NewClient(token string, opts ...Option) (Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, eris.New("vk: group token is required")
	}
	c := &httpClient{
		token:   token,
		version: DefaultAPIVersion,
		baseURL: "https://api.vk.com/method/",
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(20, 20),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *httpClient) IsMessagesFromGroupAllowed(ctx context.Context, userID, groupID int64) (bool, error) {
	var out struct {
		IsAllowed int `json:"is_allowed"`
	}
	err := c.call(ctx, "messages.isMessagesFromGroupAllowed", url.Values{
		"user_id":  {strconv.FormatInt(userID, 10)},
		"group_id": {strconv.FormatInt(groupID, 10)},
	}, &out)
	if err != nil {
		return false, err
	}
	return out.IsAllowed == 1, nil
}

func (c *httpClient) SendMessage(ctx context.Context, msg Message) (int64, error) {
	params := url.Values{
		"user_id":   {strconv.FormatInt(msg.UserID, 10)},
		"random_id": {strconv.FormatInt(msg.RandomID, 10)},
		"message":   {msg.Text},
	}
	if msg.Keyboard != nil {
		kb, err := json.Marshal(msg.Keyboard)
		if err != nil {
			return 0, eris.Wrap(err, "vk: encode keyboard")
		}
		params.Set("keyboard", string(kb))
	}

	var id int64
	if err := c.call(ctx, "messages.send", params, &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *httpClient) call(ctx context.Context, method string, params url.Values, out any) error {
	if c.retry == nil {
		return c.do(ctx, method, params, out)
	}
	cfg := *c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("vk", method)
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return c.do(ctx, method, params, out)
	})
}

func (c *httpClient) do(ctx context.Context, method string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "vk: rate limit")
		}
	}

	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("v", c.version)
	form.Set("access_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, strings.NewReader(form.Encode()))
	if err != nil {
		return eris.Wrapf(err, "vk: create request %s", method)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "vk: %s", method)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "vk: read response %s", method)
	}

	if resp.StatusCode != http.StatusOK {
		httpErr := eris.Errorf("vk: %s: HTTP %d", method, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(httpErr, resp.StatusCode)
		}
		return httpErr
	}

	var env struct {
		Response json.RawMessage `json:"response"`
		Error    *APIError       `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrapf(err, "vk: decode response %s", method)
	}
	if env.Error != nil {
		env.Error.Method = method
		if transientCodes[env.Error.Code] {
			return resilience.NewTransientError(env.Error, resp.StatusCode)
		}
		return env.Error
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(env.Response, out), "vk: decode result %s", method)
}
