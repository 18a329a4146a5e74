package paypal

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Order and capture status values.
const (
	OrderStatusCompleted = "COMPLETED"
	OrderStatusApproved  = "APPROVED"

	CaptureStatusCompleted = "COMPLETED"
	CaptureStatusPending   = "PENDING"
	CaptureStatusDeclined  = "DECLINED"
	CaptureStatusFailed    = "FAILED"

	IssueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"
)

// Money is a PayPal amount with currency.
type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// Link is a HATEOAS link.
type Link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method,omitempty"`
}

// PurchaseUnit is one unit of a create-order request.
type PurchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      Money  `json:"amount"`
}

// ExperienceContext controls the buyer approval flow.
type ExperienceContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	ShippingPreference string `json:"shipping_preference,omitempty"`
	UserAction         string `json:"user_action,omitempty"`
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
}

// PaymentSource selects the wallet.
type PaymentSource struct {
	PayPal *WalletSource `json:"paypal,omitempty"`
}

// WalletSource carries the experience context for PayPal wallet checkout.
type WalletSource struct {
	ExperienceContext ExperienceContext `json:"experience_context"`
}

// CreateOrderRequest is the Orders v2 create body.
type CreateOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	PaymentSource *PaymentSource `json:"payment_source,omitempty"`
}

// Capture is a settled (or pending) capture of an order.
type Capture struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    *Money `json:"amount"`
	CustomID  string `json:"custom_id"`
	InvoiceID string `json:"invoice_id"`
}

// Payments groups captures of a purchase unit.
type Payments struct {
	Captures []Capture `json:"captures"`
}

// OrderPurchaseUnit is a purchase unit as returned on an order.
type OrderPurchaseUnit struct {
	ReferenceID string    `json:"reference_id"`
	CustomID    string    `json:"custom_id"`
	InvoiceID   string    `json:"invoice_id"`
	Amount      *Money    `json:"amount"`
	Payments    *Payments `json:"payments"`
}

// Order is an Orders v2 resource.
type Order struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	PurchaseUnits []OrderPurchaseUnit `json:"purchase_units"`
	Links         []Link              `json:"links"`
}

// ApproveURL returns the buyer approval link.
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "payer-action" || l.Rel == "approve" {
			return l.Href
		}
	}
	return ""
}

// FirstCapture returns the first capture of the first purchase unit.
func (o *Order) FirstCapture() (*OrderPurchaseUnit, *Capture) {
	for i := range o.PurchaseUnits {
		pu := &o.PurchaseUnits[i]
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			return pu, &pu.Payments.Captures[0]
		}
	}
	if len(o.PurchaseUnits) > 0 {
		return &o.PurchaseUnits[0], nil
	}
	return nil, nil
}

// CreateOrder creates an order with intent CAPTURE.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Intent == "" {
		req.Intent = "CAPTURE"
	}
	if len(req.PurchaseUnits) == 0 {
		return nil, errors.New("validation error: at least one purchase unit is required")
	}

	var out Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", req, &out,
		withHeader("Prefer", "return=representation")); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder loads an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CaptureOrder captures an approved order. The order id doubles as the
// request id so PayPal deduplicates retries; an order captured earlier is
// loaded instead of failing.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("validation error: order id is required")
	}

	var out Order
	err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture",
		struct{}{}, &out,
		withHeader("PayPal-Request-Id", "capture-"+orderID),
		withHeader("Prefer", "return=representation"))
	if err != nil {
		if IsIssue(err, IssueOrderAlreadyCaptured) {
			return c.GetOrder(ctx, orderID)
		}
		return nil, err
	}
	return &out, nil
}
