package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/formaai/ledger-api/internal/pkg/logger"
	"github.com/formaai/ledger-api/internal/pkg/paymob"
)

// PaymobAPI is the subset of the Paymob client used by the adapter.
type PaymobAPI interface {
	CreateIntention(ctx context.Context, req paymob.IntentionRequest) (*paymob.Intention, error)
	CheckoutURL(clientSecret string) string
	HMACSecret() string
}

// PaymobProvider adapts the Paymob Intention API and callbacks.
type PaymobProvider struct {
	api      PaymobAPI
	currency string
	prices   map[string]int64
}

// NewPaymobProvider creates the Paymob adapter. prices overrides the
// catalog amount per pack id, in minor units of currency.
func NewPaymobProvider(api PaymobAPI, currency string, prices map[string]int64) *PaymobProvider {
	return &PaymobProvider{api: api, currency: strings.ToUpper(currency), prices: prices}
}

func (p *PaymobProvider) Name() string { return ProviderPaymob }

func (p *PaymobProvider) Quote(pack Pack) Price {
	price := pack.Price
	if p.currency != "" {
		price.Currency = p.currency
	}
	if amount, ok := p.prices[pack.ID]; ok && amount > 0 {
		price.AmountMinor = amount
	}
	return price
}

func (p *PaymobProvider) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	price := p.Quote(req.Pack)
	first, last := splitName(req.DisplayName)

	intention, err := p.api.CreateIntention(ctx, paymob.IntentionRequest{
		Amount:   price.AmountMinor,
		Currency: price.Currency,
		Items: []paymob.Item{{
			Name:        req.Pack.Name + " pack",
			Amount:      price.AmountMinor,
			Description: fmt.Sprintf("%d credits", req.Pack.Credits),
			Quantity:    1,
		}},
		BillingData: paymob.BillingData{
			FirstName:   first,
			LastName:    last,
			Email:       orNA(req.Email),
			PhoneNumber: "NA",
		},
		SpecialReference: req.Reference,
		Extras:           map[string]interface{}{paymob.CorrelationExtraKey: req.Correlation},
		NotificationURL:  req.NotifyURL,
		RedirectionURL:   req.ReturnURL,
	})
	if err != nil {
		return nil, gatewayError(ctx, ProviderPaymob, "create intention", err)
	}

	return &Order{
		Provider:    ProviderPaymob,
		OrderID:     intention.IntentionOrderID.String(),
		CheckoutURL: p.api.CheckoutURL(intention.ClientSecret),
		Price:       price,
	}, nil
}

// Capture is not offered: Paymob settles on its hosted page and notifies.
func (p *PaymobProvider) Capture(context.Context, string) (*Event, error) {
	return nil, ErrCaptureUnsupported
}

func (p *PaymobProvider) VerifyNotification(ctx context.Context, n Notification) bool {
	secret := p.api.HMACSecret()
	if n.Method == http.MethodGet {
		return paymob.VerifyQuery(secret, n.Query)
	}

	cb, err := paymob.ParseCallback(n.Body)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("paymob webhook: cannot decode body for hmac")
		return false
	}
	return paymob.VerifyObject(secret, cb.Fields, n.Query.Get("hmac"))
}

func (p *PaymobProvider) ParseNotification(n Notification) (*Event, error) {
	if n.Method == http.MethodGet {
		tx, err := paymob.TransactionFromQuery(n.Query)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return p.toEvent(tx, "REDIRECT", []byte(n.Query.Encode()))
	}

	cb, err := paymob.ParseCallback(n.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cb.Type != paymob.CallbackTypeTransaction {
		return &Event{Provider: ProviderPaymob, EventType: cb.Type, Status: EventIgnored, Raw: n.Body}, nil
	}
	return p.toEvent(&cb.Obj, cb.Type, n.Body)
}

func (p *PaymobProvider) toEvent(tx *paymob.Transaction, eventType string, raw []byte) (*Event, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", ErrMalformedPayload)
	}
	amount, err := tx.AmountMinor()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	ev := &Event{
		Provider:    ProviderPaymob,
		EventID:     tx.ID.String(),
		EventType:   eventType,
		OrderID:     tx.OrderID(),
		CaptureID:   tx.CaptureID(),
		Price:       Price{AmountMinor: amount, Currency: strings.ToUpper(tx.Currency)},
		Correlation: tx.Correlation(),
		Reference:   tx.MerchantOrderID(),
		Raw:         raw,
	}

	switch {
	case tx.Refunded():
		ev.Status = EventRefunded
	case tx.Succeeded():
		ev.Status = EventSucceeded
	case tx.IsPending():
		ev.Status = EventPending
	default:
		ev.Status = EventFailed
	}
	return ev, nil
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return orNA(first), orNA(strings.TrimSpace(last))
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
