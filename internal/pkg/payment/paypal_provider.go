package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/formaai/ledger-api/internal/pkg/logger"
	"github.com/formaai/ledger-api/internal/pkg/money"
	"github.com/formaai/ledger-api/internal/pkg/paypal"
)

// maxCustomIDLen is PayPal's limit on purchase_units[].custom_id.
const maxCustomIDLen = 127

const verifyTimeout = 10 * time.Second

// PayPalAPI is the subset of the PayPal client used by the adapter.
type PayPalAPI interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	VerifyWebhookSignature(ctx context.Context, req *paypal.VerifyRequest) (bool, error)
	WebhookID() string
}

// PayPalProvider adapts the PayPal Orders v2 API.
type PayPalProvider struct {
	api       PayPalAPI
	brandName string
}

// NewPayPalProvider creates the PayPal adapter.
func NewPayPalProvider(api PayPalAPI, brandName string) *PayPalProvider {
	return &PayPalProvider{api: api, brandName: brandName}
}

func (p *PayPalProvider) Name() string { return ProviderPayPal }

// Quote charges the catalog price.
func (p *PayPalProvider) Quote(pack Pack) Price { return pack.Price }

func (p *PayPalProvider) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	price := p.Quote(req.Pack)

	unit := paypal.PurchaseUnit{
		ReferenceID: req.Reference,
		InvoiceID:   req.Reference,
		Description: fmt.Sprintf("%s pack: %d credits", req.Pack.Name, req.Pack.Credits),
		Amount: paypal.Money{
			CurrencyCode: price.Currency,
			Value:        money.FormatMinor(price.AmountMinor, price.Currency),
		},
	}
	if len(req.Correlation) <= maxCustomIDLen {
		unit.CustomID = req.Correlation
	} else {
		logger.FromContext(ctx).Warn().Str("user_id", req.UserID).Int("len", len(req.Correlation)).
			Msg("paypal: correlation payload exceeds custom_id, relying on reference")
	}

	order, err := p.api.CreateOrder(ctx, paypal.CreateOrderRequest{
		Intent:        "CAPTURE",
		PurchaseUnits: []paypal.PurchaseUnit{unit},
		PaymentSource: &paypal.PaymentSource{PayPal: &paypal.WalletSource{
			ExperienceContext: paypal.ExperienceContext{
				BrandName:          p.brandName,
				ShippingPreference: "NO_SHIPPING",
				UserAction:         "PAY_NOW",
				ReturnURL:          req.ReturnURL,
				CancelURL:          req.CancelURL,
			},
		}},
	})
	if err != nil {
		return nil, gatewayError(ctx, ProviderPayPal, "create order", err)
	}

	return &Order{
		Provider:    ProviderPayPal,
		OrderID:     order.ID,
		CheckoutURL: order.ApproveURL(),
		Price:       price,
	}, nil
}

func (p *PayPalProvider) Capture(ctx context.Context, orderID string) (*Event, error) {
	order, err := p.api.CaptureOrder(ctx, orderID)
	if err != nil {
		var apiErr *paypal.APIError
		if errors.As(err, &apiErr) && isBuyerSideFailure(apiErr.StatusCode) {
			// The order exists but cannot be captured (not approved, declined).
			return &Event{
				Provider:  ProviderPayPal,
				EventType: apiErr.Name,
				OrderID:   orderID,
				Status:    EventFailed,
			}, nil
		}
		return nil, gatewayError(ctx, ProviderPayPal, "capture", err)
	}

	raw, _ := json.Marshal(order)
	ev := &Event{
		Provider:  ProviderPayPal,
		EventType: "ORDER." + order.Status,
		OrderID:   order.ID,
		Status:    EventFailed,
		Raw:       raw,
	}

	unit, capture := order.FirstCapture()
	if unit != nil {
		ev.Correlation = unit.CustomID
		ev.Reference = firstNonEmpty(unit.ReferenceID, unit.InvoiceID)
	}
	if capture == nil {
		return ev, nil
	}

	ev.CaptureID = capture.ID
	ev.Correlation = firstNonEmpty(capture.CustomID, ev.Correlation)
	ev.Reference = firstNonEmpty(ev.Reference, capture.InvoiceID)
	if capture.Amount != nil {
		amount, err := money.ParseMinor(capture.Amount.Value, capture.Amount.CurrencyCode)
		if err != nil {
			return nil, fmt.Errorf("%w: capture amount: %v", ErrMalformedPayload, err)
		}
		ev.Price = Price{AmountMinor: amount, Currency: capture.Amount.CurrencyCode}
	}

	switch {
	case order.Status == paypal.OrderStatusCompleted && capture.Status == paypal.CaptureStatusCompleted:
		ev.Status = EventSucceeded
	case capture.Status == paypal.CaptureStatusPending:
		ev.Status = EventPending
	}
	return ev, nil
}

func (p *PayPalProvider) VerifyNotification(ctx context.Context, n Notification) bool {
	req, err := paypal.NewVerifyRequest(n.Header, n.Body, p.api.WebhookID())
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("paypal webhook: cannot build verification request")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	ok, err := p.api.VerifyWebhookSignature(ctx, req)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("transmission_id", req.TransmissionID).Msg("paypal webhook: verification call failed")
		return false
	}
	return ok
}

func (p *PayPalProvider) ParseNotification(n Notification) (*Event, error) {
	var evt paypal.WebhookEvent
	if err := json.Unmarshal(n.Body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if evt.ID == "" || evt.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	ev := &Event{
		Provider:  ProviderPayPal,
		EventID:   evt.ID,
		EventType: evt.EventType,
		Raw:       n.Body,
	}

	switch evt.EventType {
	case paypal.EventCaptureCompleted:
		ev.Status = EventSucceeded
	case paypal.EventCapturePending:
		ev.Status = EventPending
	case paypal.EventCaptureDenied, paypal.EventCaptureDeclined:
		ev.Status = EventFailed
	case paypal.EventCaptureRefunded, paypal.EventCaptureReversed:
		ev.Status = EventRefunded
	default:
		ev.Status = EventIgnored
		return ev, nil
	}

	var res paypal.CaptureResource
	if err := json.Unmarshal(evt.Resource, &res); err != nil {
		return nil, fmt.Errorf("%w: resource: %v", ErrMalformedPayload, err)
	}

	ev.CaptureID = res.ID
	if ev.Status == EventRefunded {
		ev.CaptureID = firstNonEmpty(res.ParentCaptureID(), res.ID)
	}
	if ev.CaptureID == "" {
		return nil, fmt.Errorf("%w: missing capture id", ErrMalformedPayload)
	}
	ev.OrderID = res.OrderID()
	ev.Correlation = res.CustomID
	ev.Reference = res.InvoiceID

	if res.Amount != nil {
		amount, err := money.ParseMinor(res.Amount.Value, res.Amount.CurrencyCode)
		if err != nil {
			return nil, fmt.Errorf("%w: amount: %v", ErrMalformedPayload, err)
		}
		ev.Price = Price{AmountMinor: amount, Currency: res.Amount.CurrencyCode}
	} else if ev.Status == EventSucceeded {
		return nil, fmt.Errorf("%w: missing amount", ErrMalformedPayload)
	}
	return ev, nil
}

func isBuyerSideFailure(status int) bool {
	return status == http.StatusUnprocessableEntity || status == http.StatusNotFound || status == http.StatusBadRequest
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
