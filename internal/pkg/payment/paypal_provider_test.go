package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/formaai/ledger-api/internal/pkg/paypal"
)

type fakePayPal struct {
	created    paypal.CreateOrderRequest
	order      *paypal.Order
	captureErr error
	verifyOK   bool
	verifyErr  error
}

func (f *fakePayPal) CreateOrder(_ context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error) {
	f.created = req
	return &paypal.Order{ID: "ORDER-1", Links: []paypal.Link{{Rel: "payer-action", Href: "https://paypal.test/checkout"}}}, nil
}

func (f *fakePayPal) CaptureOrder(context.Context, string) (*paypal.Order, error) {
	return f.order, f.captureErr
}

func (f *fakePayPal) VerifyWebhookSignature(context.Context, *paypal.VerifyRequest) (bool, error) {
	return f.verifyOK, f.verifyErr
}

func (f *fakePayPal) WebhookID() string { return "WH-1" }

func completedOrder(status string) *paypal.Order {
	return &paypal.Order{
		ID:     "ORDER-1",
		Status: paypal.OrderStatusCompleted,
		PurchaseUnits: []paypal.OrderPurchaseUnit{{
			ReferenceID: "user-1_starter_1",
			CustomID:    "payload",
			Payments: &paypal.Payments{Captures: []paypal.Capture{{
				ID:     "cap_123",
				Status: status,
				Amount: &paypal.Money{CurrencyCode: "USD", Value: "9.99"},
			}}},
		}},
	}
}

func TestPayPalCreateOrderEmbedsCorrelation(t *testing.T) {
	api := &fakePayPal{}
	p := NewPayPalProvider(api, "FormaAI")
	pack, _ := DefaultCatalog().Get("starter")

	order, err := p.CreateOrder(context.Background(), OrderRequest{
		UserID:      "user-1",
		Pack:        pack,
		Correlation: "payload",
		Reference:   "user-1_starter_1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	unit := api.created.PurchaseUnits[0]
	if unit.CustomID != "payload" || unit.ReferenceID != "user-1_starter_1" || unit.InvoiceID != "user-1_starter_1" {
		t.Fatalf("unexpected purchase unit %+v", unit)
	}
	if unit.Amount.Value != "9.99" || unit.Amount.CurrencyCode != "USD" {
		t.Fatalf("unexpected amount %+v", unit.Amount)
	}
	if order.OrderID != "ORDER-1" || order.CheckoutURL == "" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestPayPalCaptureCompleted(t *testing.T) {
	p := NewPayPalProvider(&fakePayPal{order: completedOrder(paypal.CaptureStatusCompleted)}, "")
	ev, err := p.Capture(context.Background(), "ORDER-1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if ev.Status != EventSucceeded || ev.CaptureID != "cap_123" || ev.AmountMinor != 999 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Correlation != "payload" || ev.Reference != "user-1_starter_1" {
		t.Fatalf("unexpected correlation channels %+v", ev)
	}
}

func TestPayPalCapturePendingIsNotSucceeded(t *testing.T) {
	p := NewPayPalProvider(&fakePayPal{order: completedOrder(paypal.CaptureStatusPending)}, "")
	ev, err := p.Capture(context.Background(), "ORDER-1")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if ev.Status != EventPending {
		t.Fatalf("status = %s", ev.Status)
	}
}

func TestPayPalCaptureErrors(t *testing.T) {
	p := NewPayPalProvider(&fakePayPal{captureErr: errors.New("dial tcp: timeout")}, "")
	if _, err := p.Capture(context.Background(), "ORDER-1"); !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}

	p = NewPayPalProvider(&fakePayPal{captureErr: &paypal.APIError{StatusCode: http.StatusUnprocessableEntity, Name: "ORDER_NOT_APPROVED"}}, "")
	ev, err := p.Capture(context.Background(), "ORDER-1")
	if err != nil || ev.Status != EventFailed {
		t.Fatalf("expected failed event, got %+v %v", ev, err)
	}
}

func TestPayPalVerifyFailsClosed(t *testing.T) {
	header := http.Header{}
	header.Set(paypal.HeaderAuthAlgo, "SHA256withRSA")
	header.Set(paypal.HeaderCertURL, "https://api.paypal.com/cert")
	header.Set(paypal.HeaderTransmissionID, "t")
	header.Set(paypal.HeaderTransmissionSig, "s")
	header.Set(paypal.HeaderTransmissionTime, "now")
	n := Notification{Method: http.MethodPost, Header: header, Body: []byte(`{"id":"WH"}`)}

	if !NewPayPalProvider(&fakePayPal{verifyOK: true}, "").VerifyNotification(context.Background(), n) {
		t.Fatal("expected verified")
	}
	if NewPayPalProvider(&fakePayPal{verifyOK: false}, "").VerifyNotification(context.Background(), n) {
		t.Fatal("unconfirmed verification must fail")
	}
	if NewPayPalProvider(&fakePayPal{verifyOK: true, verifyErr: errors.New("timeout")}, "").VerifyNotification(context.Background(), n) {
		t.Fatal("verification error must fail")
	}
	n.Header = http.Header{}
	if NewPayPalProvider(&fakePayPal{verifyOK: true}, "").VerifyNotification(context.Background(), n) {
		t.Fatal("missing headers must fail")
	}
}

func TestPayPalParseNotification(t *testing.T) {
	p := NewPayPalProvider(&fakePayPal{}, "")

	completed := `{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap_123","status":"COMPLETED","amount":{"currency_code":"USD","value":"9.99"},"custom_id":"payload","invoice_id":"user-1_starter_1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`
	ev, err := p.ParseNotification(Notification{Body: []byte(completed)})
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	if ev.Status != EventSucceeded || ev.CaptureID != "cap_123" || ev.OrderID != "ORDER-1" || ev.AmountMinor != 999 {
		t.Fatalf("unexpected event %+v", ev)
	}

	refunded := `{"id":"WH-2","event_type":"PAYMENT.CAPTURE.REFUNDED","resource":{"id":"REF-1","amount":{"currency_code":"USD","value":"9.99"},"links":[{"rel":"up","href":"https://api.paypal.com/v2/payments/captures/cap_123"}]}}`
	ev, err = p.ParseNotification(Notification{Body: []byte(refunded)})
	if err != nil {
		t.Fatalf("ParseNotification: %v", err)
	}
	if ev.Status != EventRefunded || ev.CaptureID != "cap_123" {
		t.Fatalf("unexpected refund event %+v", ev)
	}

	ignored := `{"id":"WH-3","event_type":"CHECKOUT.ORDER.APPROVED","resource":{}}`
	ev, err = p.ParseNotification(Notification{Body: []byte(ignored)})
	if err != nil || ev.Status != EventIgnored {
		t.Fatalf("expected ignored event, got %+v %v", ev, err)
	}
}

func TestPayPalParseNotificationRejectsMalformed(t *testing.T) {
	p := NewPayPalProvider(&fakePayPal{}, "")
	for _, body := range []string{
		`not json`,
		`{"event_type":"PAYMENT.CAPTURE.COMPLETED"}`,
		`{"id":"WH","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"cap"}}`,
		`{"id":"WH","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"amount":{"currency_code":"USD","value":"1.00"}}}`,
	} {
		if _, err := p.ParseNotification(Notification{Body: []byte(body)}); !errors.Is(err, ErrMalformedPayload) {
			t.Fatalf("%s: expected ErrMalformedPayload, got %v", body, err)
		}
	}
}
