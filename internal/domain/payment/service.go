package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formaai/ledger-api/internal/domain/user"
	"github.com/formaai/ledger-api/internal/pkg/logger"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
)

// Users is the account lookup used when building checkout orders.
type Users interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// URLs are the public addresses providers redirect and notify to.
type URLs struct {
	FrontendURL string
	BackendURL  string
}

// Service reconciles provider events with the credit ledger.
type Service struct {
	store      Store
	providers  *pkgpayment.Registry
	catalog    *pkgpayment.Catalog
	correlator *pkgpayment.Correlator
	users      Users
	archive    Archiver
	urls       URLs
}

// NewService creates the reconciliation service. archive may be nil.
func NewService(store Store, providers *pkgpayment.Registry, catalog *pkgpayment.Catalog,
	correlator *pkgpayment.Correlator, users Users, archive Archiver, urls URLs) *Service {
	return &Service{
		store:      store,
		providers:  providers,
		catalog:    catalog,
		correlator: correlator,
		users:      users,
		archive:    archive,
		urls:       urls,
	}
}

// Packs returns the purchasable credit packs.
func (s *Service) Packs() []pkgpayment.Pack {
	return s.catalog.List()
}

// Providers returns the configured provider names.
func (s *Service) Providers() []string {
	return s.providers.List()
}

// CreateCheckout creates a provider order for packID and returns where to
// send the buyer.
func (s *Service) CreateCheckout(ctx context.Context, userID, providerName, packID string) (*pkgpayment.Order, error) {
	pack, err := s.catalog.Get(packID)
	if err != nil {
		return nil, err
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, user.ErrUserNotFound
	}

	order, err := provider.CreateOrder(ctx, pkgpayment.OrderRequest{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Pack:        pack,
		Correlation: s.correlator.Encode(u.ID, pack.ID, pack.Credits),
		Reference:   s.correlator.Reference(u.ID, pack.ID),
		ReturnURL:   fmt.Sprintf("%s/payment/success?provider=%s", s.urls.FrontendURL, provider.Name()),
		CancelURL:   fmt.Sprintf("%s/payment/cancel?provider=%s", s.urls.FrontendURL, provider.Name()),
		NotifyURL:   fmt.Sprintf("%s/api/webhooks/%s", s.urls.BackendURL, provider.Name()),
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("provider", order.Provider).
		Str("order_id", order.OrderID).
		Str("user_id", u.ID).
		Str("pack_id", pack.ID).
		Msg("checkout created")
	return order, nil
}

// CaptureOrder settles a PayPal order after the buyer approved it. The
// order must have been created for userID.
func (s *Service) CaptureOrder(ctx context.Context, userID, orderID string) (*Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", pkgpayment.ErrMalformedPayload)
	}
	provider, err := s.providers.Get(pkgpayment.ProviderPayPal)
	if err != nil {
		return nil, err
	}

	ev, err := provider.Capture(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch ev.Status {
	case pkgpayment.EventSucceeded:
		return s.settle(ctx, provider, ev, userID)
	case pkgpayment.EventPending:
		return s.recordPending(ctx, provider, ev, userID)
	default:
		logger.FromContext(ctx).Warn().
			Str("provider", ev.Provider).
			Str("order_id", orderID).
			Str("event_type", ev.EventType).
			Msg("capture did not complete")
		return nil, ErrCaptureNotCompleted
	}
}

// HandleNotification verifies and applies an inbound webhook or redirect.
func (s *Service) HandleNotification(ctx context.Context, providerName string, n pkgpayment.Notification) (*Outcome, error) {
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	verified := provider.VerifyNotification(ctx, n)
	if s.archive != nil {
		s.archive.Archive(ctx, providerName, n, verified)
	}
	if !verified {
		logger.FromContext(ctx).Warn().Str("provider", providerName).Msg("notification rejected")
		return nil, ErrVerificationFailed
	}

	ev, err := provider.ParseNotification(n)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, provider, ev)
}

// Apply dispatches a verified event.
func (s *Service) Apply(ctx context.Context, provider pkgpayment.Provider, ev *pkgpayment.Event) (*Outcome, error) {
	log := logger.FromContext(ctx).With().
		Str("provider", ev.Provider).
		Str("event_type", ev.EventType).
		Str("order_id", ev.OrderID).
		Str("capture_id", ev.CaptureID).
		Logger()

	switch ev.Status {
	case pkgpayment.EventSucceeded:
		return s.settle(ctx, provider, ev, "")

	case pkgpayment.EventPending:
		return s.recordPending(ctx, provider, ev, "")

	case pkgpayment.EventFailed:
		n, err := s.store.FailPending(ctx, ev.Provider, ev.CaptureID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			log.Info().Msg("payment failure with no pending record")
		}
		return &Outcome{Status: ev.Status, Duplicate: n == 0}, nil

	case pkgpayment.EventRefunded:
		p, err := s.refund(ctx, Refund{
			Target: Locator{Provider: ev.Provider, CaptureID: ev.CaptureID},
			Reason: "provider refund: " + ev.EventType,
		})
		switch {
		case errors.Is(err, ErrAlreadyRefunded):
			return &Outcome{Status: ev.Status, Duplicate: true}, nil
		case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrNotRefundable):
			log.Warn().Err(err).Msg("refund for unknown or unsettled capture")
			return &Outcome{Status: ev.Status, Duplicate: true}, nil
		case err != nil:
			return nil, err
		}
		return &Outcome{Payment: p, Status: ev.Status}, nil
	}

	log.Debug().Msg("notification ignored")
	return &Outcome{Status: pkgpayment.EventIgnored}, nil
}

// settle grants credits for a completed capture exactly once.
// A non-empty callerID must own the order.
func (s *Service) settle(ctx context.Context, provider pkgpayment.Provider, ev *pkgpayment.Event, callerID string) (*Outcome, error) {
	if ev.CaptureID == "" {
		return nil, fmt.Errorf("%w: missing capture id", pkgpayment.ErrMalformedPayload)
	}
	corr, err := s.resolve(provider, ev)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).
			Str("provider", ev.Provider).
			Str("order_id", ev.OrderID).
			Str("capture_id", ev.CaptureID).
			Msg("cannot resolve settled order")
		return nil, err
	}
	if callerID != "" && corr.UserID != callerID {
		logger.FromContext(ctx).Warn().
			Str("provider", ev.Provider).
			Str("order_id", ev.OrderID).
			Str("user_id", callerID).
			Str("owner_id", corr.UserID).
			Msg("capture requested by a user who does not own the order")
		return nil, ErrForbidden
	}

	p, granted, err := s.store.GrantOnce(ctx, Grant{Payment: Payment{
		UserID:            corr.UserID,
		PackID:            corr.PackID,
		AmountMinor:       ev.AmountMinor,
		Currency:          ev.Currency,
		Credits:           corr.Credits,
		Provider:          ev.Provider,
		OrderID:           ev.OrderID,
		CaptureID:         ev.CaptureID,
		CorrelationSource: corr.Source,
		RawPayload:        ev.Raw,
	}})
	if err != nil {
		return nil, err
	}

	if granted {
		logger.FromContext(ctx).Info().
			Str("provider", p.Provider).
			Str("capture_id", p.CaptureID).
			Str("payment_id", p.ID.String()).
			Str("user_id", p.UserID).
			Int64("credits", p.Credits).
			Msg("credits granted")
	}
	if !granted && p.Status == StatusFailed {
		// failed is terminal; an operator settles it with a manual credit.
		logger.FromContext(ctx).Error().
			Str("provider", p.Provider).
			Str("order_id", ev.OrderID).
			Str("capture_id", p.CaptureID).
			Str("payment_id", p.ID.String()).
			Str("user_id", p.UserID).
			Int64("credits", p.Credits).
			Int64("amount_minor", ev.AmountMinor).
			Msg("provider settled a payment recorded as failed, credits not granted")
		return &Outcome{Payment: p, NeedsReview: true, Status: pkgpayment.EventSucceeded}, nil
	}
	return &Outcome{Payment: p, Duplicate: !granted, Status: pkgpayment.EventSucceeded}, nil
}

func (s *Service) recordPending(ctx context.Context, provider pkgpayment.Provider, ev *pkgpayment.Event, callerID string) (*Outcome, error) {
	if ev.CaptureID == "" {
		return nil, fmt.Errorf("%w: missing capture id", pkgpayment.ErrMalformedPayload)
	}
	corr, err := s.resolve(provider, ev)
	if err != nil {
		return nil, err
	}
	if callerID != "" && corr.UserID != callerID {
		return nil, ErrForbidden
	}

	p, err := s.store.RecordPending(ctx, Payment{
		UserID:            corr.UserID,
		PackID:            corr.PackID,
		AmountMinor:       ev.AmountMinor,
		Currency:          ev.Currency,
		Credits:           corr.Credits,
		Provider:          ev.Provider,
		OrderID:           ev.OrderID,
		CaptureID:         ev.CaptureID,
		CorrelationSource: corr.Source,
		RawPayload:        ev.Raw,
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Payment: p, Duplicate: p != nil && p.Status != StatusPending, Status: pkgpayment.EventPending}, nil
}

// resolve maps an event to its owner and pack. Reference-only events must
// match the provider's price for the pack exactly.
func (s *Service) resolve(provider pkgpayment.Provider, ev *pkgpayment.Event) (*pkgpayment.Correlation, error) {
	corr, err := s.correlator.Resolve(ev.Correlation, ev.Reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvableOrder, err)
	}
	if corr.Source != pkgpayment.SourceReference {
		return corr, nil
	}

	pack, err := s.catalog.Get(corr.PackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnresolvableOrder, err)
	}
	want := provider.Quote(pack)
	if ev.AmountMinor != want.AmountMinor || !strings.EqualFold(ev.Currency, want.Currency) {
		return nil, fmt.Errorf("%w: settled %d %s, pack %s costs %d %s", ErrUnresolvableOrder,
			ev.AmountMinor, ev.Currency, pack.ID, want.AmountMinor, want.Currency)
	}
	return corr, nil
}

func (s *Service) refund(ctx context.Context, r Refund) (*Payment, error) {
	p, res, err := s.store.RefundOnce(ctx, r)
	if err != nil {
		return nil, err
	}

	event := logger.FromContext(ctx).Info()
	if res.Deficit > 0 {
		event = logger.FromContext(ctx).Warn().Int64("deficit", res.Deficit)
	}
	event.
		Str("provider", p.Provider).
		Str("capture_id", p.CaptureID).
		Str("payment_id", p.ID.String()).
		Str("user_id", p.UserID).
		Int64("reversed", -res.Applied).
		Msg("payment refunded")
	return p, nil
}

// RefundPayment reverses a completed payment on behalf of an admin.
func (s *Service) RefundPayment(ctx context.Context, paymentID uuid.UUID, adminID, reason string) (*Payment, error) {
	return s.refund(ctx, Refund{
		Target:  Locator{ID: paymentID},
		ActorID: adminID,
		Reason:  reason,
	})
}

// ManualCreditRequest describes a payment settled outside the providers.
type ManualCreditRequest struct {
	UserID    string
	PackID    string
	Credits   int64
	Reference string
	Reason    string
	ActorID   string
}

// ManualCredit records an offline payment and grants its credits in one
// transaction. Repeating a reference returns the original record.
func (s *Service) ManualCredit(ctx context.Context, req ManualCreditRequest) (*Outcome, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", pkgpayment.ErrMalformedPayload)
	}
	u, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, user.ErrUserNotFound
	}

	p := Payment{
		UserID:            req.UserID,
		Credits:           req.Credits,
		Provider:          pkgpayment.ProviderManual,
		CaptureID:         "manual-" + reference,
		CorrelationSource: pkgpayment.SourceManual,
		PackID:            "custom",
		Currency:          "USD",
	}
	if req.PackID != "" {
		pack, err := s.catalog.Get(req.PackID)
		if err != nil {
			return nil, err
		}
		p.PackID = pack.ID
		p.AmountMinor = pack.Price.AmountMinor
		p.Currency = pack.Price.Currency
		if p.Credits == 0 {
			p.Credits = pack.Credits
		}
	}
	if p.Credits <= 0 {
		return nil, fmt.Errorf("%w: credits must be positive", pkgpayment.ErrInvalidPack)
	}

	stored, granted, err := s.store.GrantOnce(ctx, Grant{Payment: p, ActorID: req.ActorID, Reason: req.Reason})
	if err != nil {
		return nil, err
	}
	if !granted && stored != nil && stored.UserID != req.UserID {
		return nil, ErrDuplicateReference
	}
	return &Outcome{Payment: stored, Duplicate: !granted, Status: pkgpayment.EventSucceeded}, nil
}

// GetPayment returns ErrPaymentNotFound when absent.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments returns the caller's most recent payments.
func (s *Service) ListPayments(ctx context.Context, userID string, limit int) ([]Payment, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// SearchPayments lists payments for admins.
func (s *Service) SearchPayments(ctx context.Context, f Filter) ([]Payment, error) {
	return s.store.List(ctx, f)
}

// FlagStalePending logs pending payments created before olderThan for
// manual review and returns how many were found. The records stay pending
// until the provider reports an outcome.
func (s *Service) FlagStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	stale, err := s.store.List(ctx, Filter{Status: StatusPending, CreatedBefore: olderThan, Limit: 100})
	if err != nil {
		return 0, err
	}
	for _, p := range stale {
		logger.FromContext(ctx).Warn().
			Str("provider", p.Provider).
			Str("order_id", p.OrderID).
			Str("capture_id", p.CaptureID).
			Str("payment_id", p.ID.String()).
			Str("user_id", p.UserID).
			Time("created_at", p.CreatedAt).
			Msg("payment still pending at provider")
	}
	return int64(len(stale)), nil
}
