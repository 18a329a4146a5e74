// Package paypal is a thin client for the PayPal REST endpoints used for
// credit pack checkout: OAuth client credentials, Orders v2 and webhook
// signature verification.
package paypal

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
)

// Config holds PayPal API configuration
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	Timeout      time.Duration
}

// TokenSource supplies bearer tokens for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context)
}

// Client represents the PayPal REST client
type Client struct {
	httpClient *http.Client
	config     Config
	tokens     TokenSource
}

// NewClient creates new PayPal API client. tokens may be nil and set later
// with SetTokenSource, since the usual source wraps FetchToken itself.
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		tokens:     tokens,
	}
}

// SetTokenSource installs the token source used for authenticated calls.
func (c *Client) SetTokenSource(tokens TokenSource) {
	c.tokens = tokens
}

// WebhookID returns the configured webhook id.
func (c *Client) WebhookID() string {
	return c.config.WebhookID
}

// APIError is a non-2xx PayPal response.
type APIError struct {
	StatusCode int
	Name       string       `json:"name"`
	Message    string       `json:"message"`
	DebugID    string       `json:"debug_id"`
	Details    []ErrorIssue `json:"details"`
	Body       string       `json:"-"`
}

// ErrorIssue is one entry of an API error's details.
type ErrorIssue struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("paypal api %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("paypal api returned non-2xx status: %d", e.StatusCode)
}

// HasIssue reports whether the error lists the given issue code.
func (e *APIError) HasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// IsIssue reports whether err is an APIError carrying issue.
func IsIssue(err error, issue string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.HasIssue(issue)
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// do performs an authenticated JSON call. A 401 invalidates the cached
// token and retries once.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}, opts ...requestOption) error {
	if c == nil || c.httpClient == nil || c.tokens == nil {
		return errors.New("paypal client is not initialized")
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode paypal request: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("paypal access token: %w", err)
		}

		err = c.send(ctx, method, path, token, payload, out, opts...)
		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate(ctx)
			continue
		}
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, token string, payload []byte, out interface{}, opts ...requestOption) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse paypal response: %w", err)
	}
	return nil
}
