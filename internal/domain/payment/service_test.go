package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/domain/user"
	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
	"github.com/formaai/ledger-api/internal/pkg/payment/mocks"
)

// memStore mimics the repository: every method runs under one mutex, so
// GrantOnce and RefundOnce are atomic create-if-absent operations.
type memStore struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment
	balances map[string]int64
	entries  []credit.Transaction
}

func newMemStore() *memStore {
	return &memStore{payments: map[string]*payment.Payment{}, balances: map[string]int64{}}
}

func captureKey(provider, captureID string) string { return provider + "/" + captureID }

func (m *memStore) apply(adj credit.Adjustment) (credit.Result, error) {
	balance, ok := m.balances[adj.UserID]
	if !ok {
		return credit.Result{}, credit.ErrUserNotFound
	}
	res, err := credit.Plan(balance, adj)
	if err != nil {
		return credit.Result{}, err
	}
	if res.Applied == 0 {
		return res, nil
	}
	m.balances[adj.UserID] = res.NewBalance
	m.entries = append(m.entries, credit.Transaction{
		ID:           uuid.New(),
		UserID:       adj.UserID,
		Amount:       res.Applied,
		Type:         adj.Type,
		Reference:    adj.Reference,
		Reason:       adj.Reason,
		ActorID:      adj.ActorID,
		BalanceAfter: res.NewBalance,
		CreatedAt:    time.Now(),
	})
	return res, nil
}

func (m *memStore) GrantOnce(_ context.Context, g payment.Grant) (*payment.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := captureKey(g.Payment.Provider, g.Payment.CaptureID)
	existing := m.payments[key]
	if existing != nil && existing.Status != payment.StatusPending {
		cp := *existing
		return &cp, false, nil
	}

	p := g.Payment
	if existing != nil {
		p = *existing
		p.AmountMinor = g.Payment.AmountMinor
		p.Currency = g.Payment.Currency
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.Status = payment.StatusCompleted
	p.CompletedAt = &now

	if _, err := m.apply(credit.Adjustment{
		UserID:    p.UserID,
		Delta:     p.Credits,
		Type:      credit.TxTypePurchase,
		ActorID:   g.ActorID,
		Reason:    g.Reason,
		Reference: p.CaptureID,
	}); err != nil {
		return nil, false, err
	}
	m.payments[key] = &p
	cp := p
	return &cp, true, nil
}

func (m *memStore) RecordPending(_ context.Context, p payment.Payment) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := captureKey(p.Provider, p.CaptureID)
	if existing := m.payments[key]; existing != nil {
		cp := *existing
		return &cp, nil
	}
	p.ID = uuid.New()
	p.Status = payment.StatusPending
	p.CreatedAt = time.Now()
	m.payments[key] = &p
	cp := p
	return &cp, nil
}

func (m *memStore) FailPending(_ context.Context, provider, captureID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.payments[captureKey(provider, captureID)]
	if captureID == "" || p == nil || p.Status != payment.StatusPending {
		return 0, nil
	}
	now := time.Now()
	p.Status = payment.StatusFailed
	p.FailedAt = &now
	return 1, nil
}

func (m *memStore) find(l payment.Locator) *payment.Payment {
	if l.ID != uuid.Nil {
		for _, p := range m.payments {
			if p.ID == l.ID {
				return p
			}
		}
		return nil
	}
	return m.payments[captureKey(l.Provider, l.CaptureID)]
}

func (m *memStore) RefundOnce(_ context.Context, r payment.Refund) (*payment.Payment, credit.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.find(r.Target)
	switch {
	case p == nil:
		return nil, credit.Result{}, payment.ErrPaymentNotFound
	case p.Status == payment.StatusRefunded:
		return nil, credit.Result{}, payment.ErrAlreadyRefunded
	case p.Status != payment.StatusCompleted:
		return nil, credit.Result{}, payment.ErrNotRefundable
	}

	res, err := m.apply(credit.Adjustment{
		UserID:      p.UserID,
		Delta:       -p.Credits,
		Type:        credit.TxTypeRefundReversal,
		ActorID:     r.ActorID,
		Reason:      r.Reason,
		Reference:   p.CaptureID,
		FloorAtZero: true,
	})
	if err != nil {
		return nil, credit.Result{}, err
	}
	p.Status = payment.StatusRefunded
	p.RefundDeficit = res.Deficit
	cp := *p
	return &cp, res, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.find(payment.Locator{ID: id}); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetByCapture(_ context.Context, provider, captureID string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.payments[captureKey(provider, captureID)]; p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) ListByUser(ctx context.Context, userID string, limit int) ([]payment.Payment, error) {
	return m.List(ctx, payment.Filter{UserID: userID, Limit: limit})
}

func (m *memStore) List(_ context.Context, f payment.Filter) ([]payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]payment.Payment, 0)
	for _, p := range m.payments {
		if f.UserID != "" && p.UserID != f.UserID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Provider != "" && p.Provider != f.Provider {
			continue
		}
		if !f.CreatedBefore.IsZero() && !p.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memStore) entriesOf(txType credit.TxType) []credit.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []credit.Transaction
	for _, e := range m.entries {
		if e.Type == txType {
			out = append(out, e)
		}
	}
	return out
}

type memUsers map[string]*user.User

func (u memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	return u[id], nil
}

type recordingArchive struct {
	mu       sync.Mutex
	verdicts []bool
}

func (a *recordingArchive) Archive(_ context.Context, _ string, _ pkgpayment.Notification, accepted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.verdicts = append(a.verdicts, accepted)
}

type ReconcileSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	paypal     *mocks.MockProvider
	store      *memStore
	archive    *recordingArchive
	catalog    *pkgpayment.Catalog
	correlator *pkgpayment.Correlator
	service    *payment.Service
}

func TestReconcileSuite(t *testing.T) {
	suite.Run(t, new(ReconcileSuite))
}

func (s *ReconcileSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.paypal = mocks.NewMockProvider(s.ctrl)
	s.paypal.EXPECT().Name().Return(pkgpayment.ProviderPayPal).AnyTimes()
	s.paypal.EXPECT().Quote(gomock.Any()).DoAndReturn(func(p pkgpayment.Pack) pkgpayment.Price { return p.Price }).AnyTimes()

	s.store = newMemStore()
	s.store.balances["u1"] = 0
	s.store.balances["u2"] = 0
	s.archive = &recordingArchive{}
	s.catalog = pkgpayment.DefaultCatalog()
	s.correlator = pkgpayment.NewCorrelator("test-secret", s.catalog)

	users := memUsers{
		"u1": {ID: "u1", Email: "u1@example.com", Role: user.RoleUser},
		"u2": {ID: "u2", Email: "u2@example.com", Role: user.RoleUser},
	}
	s.service = payment.NewService(s.store, pkgpayment.NewRegistry(s.paypal), s.catalog, s.correlator,
		users, s.archive, payment.URLs{FrontendURL: "http://front", BackendURL: "http://back"})
}

func (s *ReconcileSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ReconcileSuite) starterEvent(captureID string) *pkgpayment.Event {
	return &pkgpayment.Event{
		Provider:    pkgpayment.ProviderPayPal,
		EventType:   "PAYMENT.CAPTURE.COMPLETED",
		OrderID:     "order-" + captureID,
		CaptureID:   captureID,
		Status:      pkgpayment.EventSucceeded,
		Price:       pkgpayment.Price{AmountMinor: 999, Currency: "USD"},
		Correlation: s.correlator.Encode("u1", "starter", 100),
		Raw:         []byte(`{"id":"evt"}`),
	}
}

func (s *ReconcileSuite) expectWebhook(ev *pkgpayment.Event, times int) {
	s.paypal.EXPECT().VerifyNotification(gomock.Any(), gomock.Any()).Return(true).Times(times)
	s.paypal.EXPECT().ParseNotification(gomock.Any()).DoAndReturn(func(pkgpayment.Notification) (*pkgpayment.Event, error) {
		cp := *ev
		return &cp, nil
	}).Times(times)
}

func (s *ReconcileSuite) TestStarterPurchaseScenario() {
	s.paypal.EXPECT().Capture(gomock.Any(), "order-cap_123").Return(s.starterEvent("cap_123"), nil)

	out, err := s.service.CaptureOrder(s.T().Context(), "u1", "order-cap_123")
	s.Require().NoError(err)

	s.False(out.Duplicate)
	s.Equal(payment.StatusCompleted, out.Payment.Status)
	s.Equal(int64(100), out.Payment.Credits)
	s.Equal(int64(999), out.Payment.AmountMinor)
	s.Equal(pkgpayment.SourcePayload, out.Payment.CorrelationSource)
	s.Equal(int64(100), s.store.balance("u1"))

	purchases := s.store.entriesOf(credit.TxTypePurchase)
	s.Require().Len(purchases, 1)
	s.Equal("cap_123", purchases[0].Reference)
	s.Equal(int64(100), purchases[0].Amount)
}

func (s *ReconcileSuite) TestWebhookReplayIsIdempotent() {
	s.expectWebhook(s.starterEvent("cap_replay"), 2)

	first, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	second, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)

	s.False(first.Duplicate)
	s.True(second.Duplicate)
	s.Equal(first.Payment.ID, second.Payment.ID)
	s.Equal(int64(100), s.store.balance("u1"))
	s.Len(s.store.entriesOf(credit.TxTypePurchase), 1)
	s.Equal([]bool{true, true}, s.archive.verdicts)
}

func (s *ReconcileSuite) TestConcurrentRedirectAndWebhookGrantOnce() {
	const workers = 16
	ev := s.starterEvent("cap_race")
	s.paypal.EXPECT().Capture(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, string) (*pkgpayment.Event, error) {
		cp := *ev
		return &cp, nil
	}).Times(workers / 2)
	s.expectWebhook(ev, workers/2)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out *payment.Outcome
			var err error
			if i%2 == 0 {
				out, err = s.service.CaptureOrder(context.Background(), "u1", ev.OrderID)
			} else {
				out, err = s.service.HandleNotification(context.Background(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
			}
			if err != nil {
				s.T().Errorf("unexpected error: %v", err)
				return
			}
			if !out.Duplicate {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Equal(1, granted)
	s.Equal(int64(100), s.store.balance("u1"))
	s.Len(s.store.entriesOf(credit.TxTypePurchase), 1)
}

func (s *ReconcileSuite) TestVerificationFailureHasNoEffect() {
	s.paypal.EXPECT().VerifyNotification(gomock.Any(), gomock.Any()).Return(false)

	_, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST", Body: []byte(`{}`)})
	s.ErrorIs(err, payment.ErrVerificationFailed)
	s.Equal(int64(0), s.store.balance("u1"))
	s.Empty(s.store.payments)
	s.Equal([]bool{false}, s.archive.verdicts)
}

func (s *ReconcileSuite) TestUnresolvableOrder() {
	ev := s.starterEvent("cap_lost")
	ev.Correlation = `{"u":"u1","p":"starter","c":100,"s":"forged"}`
	ev.Reference = "not-a-reference"
	s.paypal.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(ev, nil)

	_, err := s.service.CaptureOrder(s.T().Context(), "u1", ev.OrderID)
	s.ErrorIs(err, payment.ErrUnresolvableOrder)
	s.Empty(s.store.payments)
	s.Equal(int64(0), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestReferenceFallbackRequiresCatalogPrice() {
	ev := s.starterEvent("cap_ref")
	ev.Correlation = ""
	ev.Reference = "u1_pro_1767225600000"
	ev.Price = pkgpayment.Price{AmountMinor: 999, Currency: "USD"}
	s.expectWebhook(ev, 1)

	_, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.ErrorIs(err, payment.ErrUnresolvableOrder)
	s.Equal(int64(0), s.store.balance("u1"))

	ev.Price = pkgpayment.Price{AmountMinor: 3999, Currency: "USD"}
	s.expectWebhook(ev, 1)

	out, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.Equal(pkgpayment.SourceReference, out.Payment.CorrelationSource)
	s.Equal(int64(500), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestCaptureByAnotherUserIsForbidden() {
	s.paypal.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(s.starterEvent("cap_theft"), nil)

	_, err := s.service.CaptureOrder(s.T().Context(), "u2", "order-cap_theft")
	s.ErrorIs(err, payment.ErrForbidden)
	s.Equal(int64(0), s.store.balance("u1"))
	s.Equal(int64(0), s.store.balance("u2"))
	s.Empty(s.store.payments)
}

func (s *ReconcileSuite) TestCaptureNotCompleted() {
	s.paypal.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(&pkgpayment.Event{
		Provider: pkgpayment.ProviderPayPal,
		OrderID:  "order-x",
		Status:   pkgpayment.EventFailed,
	}, nil)

	_, err := s.service.CaptureOrder(s.T().Context(), "u1", "order-x")
	s.ErrorIs(err, payment.ErrCaptureNotCompleted)
	s.Empty(s.store.payments)
}

func (s *ReconcileSuite) TestRefundFloorsAtZeroAndIsMonotonic() {
	s.paypal.EXPECT().Capture(gomock.Any(), gomock.Any()).Return(s.starterEvent("cap_refund"), nil)
	out, err := s.service.CaptureOrder(s.T().Context(), "u1", "order-cap_refund")
	s.Require().NoError(err)

	// 70 of the 100 credits are spent before the refund lands.
	s.store.mu.Lock()
	_, err = s.store.apply(credit.Adjustment{UserID: "u1", Delta: -70, Type: credit.TxTypeDeduction})
	s.store.mu.Unlock()
	s.Require().NoError(err)

	refunded, err := s.service.RefundPayment(s.T().Context(), out.Payment.ID, "admin-1", "chargeback")
	s.Require().NoError(err)
	s.Equal(payment.StatusRefunded, refunded.Status)
	s.Equal(int64(70), refunded.RefundDeficit)
	s.Equal(int64(0), s.store.balance("u1"))

	reversals := s.store.entriesOf(credit.TxTypeRefundReversal)
	s.Require().Len(reversals, 1)
	s.Equal(int64(-30), reversals[0].Amount)

	_, err = s.service.RefundPayment(s.T().Context(), out.Payment.ID, "admin-1", "again")
	s.ErrorIs(err, payment.ErrAlreadyRefunded)

	refundEvent := s.starterEvent("cap_refund")
	refundEvent.Status = pkgpayment.EventRefunded
	s.expectWebhook(refundEvent, 1)
	again, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.True(again.Duplicate)

	// a late success replay must not resurrect the payment
	s.expectWebhook(s.starterEvent("cap_refund"), 1)
	late, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.True(late.Duplicate)
	s.Equal(payment.StatusRefunded, late.Payment.Status)
	s.Len(s.store.entriesOf(credit.TxTypePurchase), 1)
	s.Len(s.store.entriesOf(credit.TxTypeRefundReversal), 1)
	s.Equal(int64(0), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestRefundUnknownPayment() {
	_, err := s.service.RefundPayment(s.T().Context(), uuid.New(), "admin-1", "nope")
	s.ErrorIs(err, payment.ErrPaymentNotFound)
}

func (s *ReconcileSuite) TestPendingThenCompleted() {
	pending := s.starterEvent("cap_slow")
	pending.Status = pkgpayment.EventPending
	s.expectWebhook(pending, 1)

	out, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.Equal(payment.StatusPending, out.Payment.Status)
	s.Equal(int64(0), s.store.balance("u1"))

	s.expectWebhook(s.starterEvent("cap_slow"), 1)
	done, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.False(done.Duplicate)
	s.Equal(out.Payment.ID, done.Payment.ID)
	s.Equal(int64(100), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestFailedEventFailsPendingRecord() {
	pending := s.starterEvent("cap_denied")
	pending.Status = pkgpayment.EventPending
	s.expectWebhook(pending, 1)
	_, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)

	denied := s.starterEvent("cap_denied")
	denied.Status = pkgpayment.EventFailed
	s.expectWebhook(denied, 1)
	out, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.False(out.Duplicate)

	p, err := s.store.GetByCapture(s.T().Context(), pkgpayment.ProviderPayPal, "cap_denied")
	s.Require().NoError(err)
	s.Equal(payment.StatusFailed, p.Status)

	// failed is terminal, so a later settlement is flagged instead of granted
	s.expectWebhook(s.starterEvent("cap_denied"), 1)
	late, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.True(late.NeedsReview)
	s.False(late.Duplicate)
	s.Equal(payment.StatusFailed, late.Payment.Status)
	s.Equal(int64(0), s.store.balance("u1"))
	s.Empty(s.store.entriesOf(credit.TxTypePurchase))
}

func (s *ReconcileSuite) TestSiblingAttemptFailureLeavesPendingCapture() {
	pending := s.starterEvent("txn_A")
	pending.OrderID = "order-X"
	pending.Status = pkgpayment.EventPending
	s.expectWebhook(pending, 1)
	_, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)

	declined := s.starterEvent("txn_B")
	declined.OrderID = "order-X"
	declined.Status = pkgpayment.EventFailed
	s.expectWebhook(declined, 1)
	out, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.True(out.Duplicate)

	a, err := s.store.GetByCapture(s.T().Context(), pkgpayment.ProviderPayPal, "txn_A")
	s.Require().NoError(err)
	s.Equal(payment.StatusPending, a.Status)

	settled := s.starterEvent("txn_A")
	settled.OrderID = "order-X"
	s.expectWebhook(settled, 1)
	done, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.False(done.Duplicate)
	s.False(done.NeedsReview)
	s.Equal(payment.StatusCompleted, done.Payment.Status)
	s.Equal(int64(100), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestStalePendingIsFlaggedNotFailed() {
	pending := s.starterEvent("cap_echeck")
	pending.Status = pkgpayment.EventPending
	s.expectWebhook(pending, 1)
	_, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)

	s.store.mu.Lock()
	s.store.payments[captureKey(pkgpayment.ProviderPayPal, "cap_echeck")].CreatedAt = time.Now().Add(-10 * 24 * time.Hour)
	s.store.mu.Unlock()

	n, err := s.service.FlagStalePending(s.T().Context(), time.Now().Add(-5*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	p, err := s.store.GetByCapture(s.T().Context(), pkgpayment.ProviderPayPal, "cap_echeck")
	s.Require().NoError(err)
	s.Equal(payment.StatusPending, p.Status)

	s.expectWebhook(s.starterEvent("cap_echeck"), 1)
	done, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.False(done.Duplicate)
	s.Equal(int64(100), s.store.balance("u1"))
}

func (s *ReconcileSuite) TestIgnoredEvent() {
	s.expectWebhook(&pkgpayment.Event{Provider: pkgpayment.ProviderPayPal, EventType: "CHECKOUT.ORDER.APPROVED", Status: pkgpayment.EventIgnored}, 1)

	out, err := s.service.HandleNotification(s.T().Context(), pkgpayment.ProviderPayPal, pkgpayment.Notification{Method: "POST"})
	s.Require().NoError(err)
	s.Equal(pkgpayment.EventIgnored, out.Status)
	s.Empty(s.store.payments)
}

func (s *ReconcileSuite) TestManualCreditIsIdempotentOnReference() {
	req := payment.ManualCreditRequest{UserID: "u1", PackID: "pro", Reference: "bank-778", Reason: "wire transfer", ActorID: "admin-1"}

	first, err := s.service.ManualCredit(s.T().Context(), req)
	s.Require().NoError(err)
	s.False(first.Duplicate)
	s.Equal(pkgpayment.ProviderManual, first.Payment.Provider)
	s.Equal(int64(500), first.Payment.Credits)

	second, err := s.service.ManualCredit(s.T().Context(), req)
	s.Require().NoError(err)
	s.True(second.Duplicate)
	s.Equal(int64(500), s.store.balance("u1"))

	req.UserID = "u2"
	_, err = s.service.ManualCredit(s.T().Context(), req)
	s.ErrorIs(err, payment.ErrDuplicateReference)
	s.Equal(int64(0), s.store.balance("u2"))
}

func (s *ReconcileSuite) TestCreateCheckout() {
	s.paypal.EXPECT().CreateOrder(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req pkgpayment.OrderRequest) (*pkgpayment.Order, error) {
			s.Equal("u1", req.UserID)
			s.Equal("starter", req.Pack.ID)
			s.Equal("http://back/api/webhooks/paypal", req.NotifyURL)
			corr, err := s.correlator.Decode(req.Correlation)
			s.Require().NoError(err)
			s.Equal(int64(100), corr.Credits)
			return &pkgpayment.Order{Provider: pkgpayment.ProviderPayPal, OrderID: "O-1", CheckoutURL: "https://paypal/approve"}, nil
		})

	order, err := s.service.CreateCheckout(s.T().Context(), "u1", pkgpayment.ProviderPayPal, "starter")
	s.Require().NoError(err)
	s.Equal("O-1", order.OrderID)

	_, err = s.service.CreateCheckout(s.T().Context(), "u1", pkgpayment.ProviderPayPal, "mega")
	s.ErrorIs(err, pkgpayment.ErrInvalidPack)

	_, err = s.service.CreateCheckout(s.T().Context(), "u1", "stripe", "starter")
	s.ErrorIs(err, pkgpayment.ErrUnknownProvider)
}
