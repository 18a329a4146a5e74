// Package paymob is a client for the Paymob Intention API and the
// transaction callback HMAC scheme.
package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds Paymob API configuration
type Config struct {
	BaseURL        string
	SecretKey      string
	PublicKey      string
	HMACSecret     string
	IntegrationIDs []int
	Timeout        time.Duration
}

// Client represents the Paymob API client
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates new Paymob API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// HMACSecret returns the callback signing secret.
func (c *Client) HMACSecret() string {
	return c.config.HMACSecret
}

// Item is a line item of an intention.
type Item struct {
	Name        string `json:"name"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

// BillingData is required by the intention API; unknown values use "NA".
type BillingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// IntentionRequest is the /v1/intention/ body.
type IntentionRequest struct {
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	PaymentMethods   []int                  `json:"payment_methods"`
	Items            []Item                 `json:"items"`
	BillingData      BillingData            `json:"billing_data"`
	SpecialReference string                 `json:"special_reference,omitempty"`
	Extras           map[string]interface{} `json:"extras,omitempty"`
	NotificationURL  string                 `json:"notification_url,omitempty"`
	RedirectionURL   string                 `json:"redirection_url,omitempty"`
}

// Intention is the created intention.
type Intention struct {
	ID               string      `json:"id"`
	ClientSecret     string      `json:"client_secret"`
	IntentionOrderID json.Number `json:"intention_order_id"`
	Status           string      `json:"status"`
}

// APIError is a non-2xx Paymob response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paymob api returned non-2xx status: %d, body: %s", e.StatusCode, e.Body)
}

// CreateIntention creates a payment intention.
func (c *Client) CreateIntention(ctx context.Context, req IntentionRequest) (*Intention, error) {
	if req.Amount <= 0 {
		return nil, errors.New("validation error: amount must be > 0")
	}
	if c == nil || c.httpClient == nil {
		return nil, errors.New("paymob client is not initialized")
	}
	if c.config.SecretKey == "" {
		return nil, errors.New("paymob config error: secret key is empty")
	}
	if len(req.PaymentMethods) == 0 {
		req.PaymentMethods = c.config.IntegrationIDs
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode paymob request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/intention/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("paymob api call failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+c.config.SecretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paymob api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("paymob api call failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Intention
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse paymob response: %w", err)
	}
	if out.ClientSecret == "" {
		return nil, errors.New("paymob response missing client_secret")
	}
	return &out, nil
}

// CheckoutURL returns the unified checkout page for an intention.
func (c *Client) CheckoutURL(clientSecret string) string {
	q := url.Values{}
	q.Set("publicKey", c.config.PublicKey)
	q.Set("clientSecret", clientSecret)
	return c.config.BaseURL + "/unifiedcheckout/?" + q.Encode()
}
