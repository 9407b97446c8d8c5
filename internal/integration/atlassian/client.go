// Package atlassian sends requests to Atlassian products on behalf of a
// Connect app, signing each one with a JWT keyed by the installation's
// shared secret.
package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client is the shared signed-request helper for one product installation.
type Client struct {
	baseURL      *url.URL
	sharedSecret string
	appKey       string
	http         *retryablehttp.Client
	now          func() time.Time
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http.HTTPClient = h
		}
	}
}

// WithRetryMax sets how many times failed requests are retried.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.http.RetryMax = n
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.HTTPClient.Timeout = d
		}
	}
}

// WithLogger routes retry diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.http.Logger = logger
		}
	}
}

// WithClock replaces time.Now when stamping tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Client for the product at baseURL.
func New(baseURL, sharedSecret, appKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("atlassian: base url required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", parsed.Scheme)
	}
	if sharedSecret == "" {
		return nil, errors.New("atlassian: shared secret required")
	}
	if strings.TrimSpace(appKey) == "" {
		return nil, errors.New("atlassian: app key required")
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.Logger = nil
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retry.CheckRetry = idempotentRetryPolicy
	retry.HTTPClient.Timeout = 15 * time.Second

	cli := &Client{
		baseURL:      parsed,
		sharedSecret: sharedSecret,
		appKey:       appKey,
		http:         retry,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

type requestMethodKey struct{}

// idempotentMethods may be replayed after a 5xx or a connection error. A
// POST may already have been applied remotely, so it is sent once.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// idempotentRetryPolicy defers to retryablehttp.DefaultRetryPolicy for
// idempotent methods and never retries the others. Connection errors carry
// no response, so the method is read from the request context.
func idempotentRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	method, _ := ctx.Value(requestMethodKey{}).(string)
	if resp != nil && resp.Request != nil {
		method = resp.Request.Method
	}
	if !idempotentMethods[strings.ToUpper(method)] {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// AppKey reports the issuer stamped on signed requests.
func (c *Client) AppKey() string {
	return c.appKey
}

// Response is the product's reply, body left undecoded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 {
		return errors.New("atlassian: empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// APIError represents an error response from the product.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("atlassian request failed with status %d", e.Status)
	}
	return fmt.Sprintf("atlassian request failed (%d): %s", e.Status, strings.Join(e.Messages, "; "))
}

// Do signs and sends a request. path is relative to the base URL; body, when
// non-nil, is sent as JSON. Only idempotent methods are retried.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	if c == nil {
		return nil, errors.New("atlassian: client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	token, err := SignRequest(c.appKey, c.sharedSecret, method, path, query, c.now())
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + "/" + strings.TrimLeft(path, "/")
	endpoint.RawQuery = query.Encode()

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	ctx = context.WithValue(ctx, requestMethodKey{}, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "JWT "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &APIError{Status: resp.StatusCode, Messages: extractErrors(data)}
	}
	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if len(bytes.TrimSpace(data)) > 0 {
		out.Body = json.RawMessage(data)
	}
	return out, nil
}

func extractErrors(data []byte) []string {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{strings.TrimSpace(string(data))}
	}
	messages := append([]string(nil), payload.ErrorMessages...)
	fields := make([]string, 0, len(payload.Errors))
	for field := range payload.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		messages = append(messages, field+": "+payload.Errors[field])
	}
	return messages
}
