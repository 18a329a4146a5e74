package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// Provider constants
const (
	ProviderPayPal = "paypal"
	ProviderPaymob = "paymob"
	ProviderManual = "manual"
)

var (
	ErrInvalidPack        = errors.New("invalid credit pack")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMalformedPayload   = errors.New("malformed provider payload")
	ErrCaptureUnsupported = errors.New("provider does not support synchronous capture")
	ErrUnknownProvider    = errors.New("unknown payment provider")
)

//go:generate mockgen -source=provider.go -destination=mocks/provider_mock.go -package=mocks

// Provider is implemented by each payment gateway adapter. Adapters make
// network calls only; they never touch the ledger.
type Provider interface {
	// Name returns the provider identifier ("paypal", "paymob").
	Name() string

	// Quote returns what the provider charges for pack.
	Quote(pack Pack) Price

	// CreateOrder creates a provider order carrying the correlation data.
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// Capture settles an approved order and reports the outcome.
	Capture(ctx context.Context, orderID string) (*Event, error)

	// VerifyNotification authenticates an inbound notification. It never
	// errors: any failure, including timeouts, is false.
	VerifyNotification(ctx context.Context, n Notification) bool

	// ParseNotification normalises a verified notification.
	ParseNotification(n Notification) (*Event, error)
}

// Price is a monetary amount in minor units.
type Price struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// OrderRequest is a provider-neutral create-order request.
type OrderRequest struct {
	UserID      string
	Email       string
	DisplayName string
	Pack        Pack
	// Correlation is the signed structured payload. May be empty when it
	// does not fit the provider's field.
	Correlation string
	// Reference is the userId_packId_timestamp fallback.
	Reference string
	ReturnURL string
	CancelURL string
	NotifyURL string
}

// Order is a created provider order.
type Order struct {
	Provider    string `json:"provider"`
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url"`
	Price
}

// Notification is an inbound webhook or redirect callback.
type Notification struct {
	Method string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// EventStatus is the normalised settlement status.
type EventStatus string

const (
	EventSucceeded EventStatus = "succeeded"
	EventPending   EventStatus = "pending"
	EventFailed    EventStatus = "failed"
	EventRefunded  EventStatus = "refunded"
	// EventIgnored marks deliveries with no ledger meaning.
	EventIgnored EventStatus = "ignored"
)

// Event is the normalised view of a provider notification or capture.
type Event struct {
	Provider  string
	EventID   string
	EventType string
	OrderID   string
	CaptureID string
	Status    EventStatus
	Price
	// Correlation and Reference are the raw correlation channels as
	// returned by the provider; resolve them with a Correlator.
	Correlation string
	Reference   string
	Raw         []byte
}

// Registry holds the configured providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry of providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a payment provider
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get retrieves a payment provider by name
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// List returns all registered provider names
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
