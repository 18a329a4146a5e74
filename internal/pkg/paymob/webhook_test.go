package paymob

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestParseCallbackNormalisesTransaction(t *testing.T) {
	cb, err := ParseCallback([]byte(fixtureBody))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	tx := cb.Obj
	if cb.Type != CallbackTypeTransaction {
		t.Fatalf("type = %q", cb.Type)
	}
	if !tx.Succeeded() || tx.IsPending() || tx.Refunded() {
		t.Fatal("expected a settled transaction")
	}
	if tx.CaptureID() != "192036465" || tx.OrderID() != "217503754" {
		t.Fatalf("ids = %s / %s", tx.CaptureID(), tx.OrderID())
	}
	if tx.MerchantOrderID() != "user-1_starter_1767225600000" {
		t.Fatalf("merchant order id = %q", tx.MerchantOrderID())
	}
	if tx.Correlation() != `{"u":"user-1"}` {
		t.Fatalf("correlation = %q", tx.Correlation())
	}
	if amount, err := tx.AmountMinor(); err != nil || amount != 10000 {
		t.Fatalf("amount = %d, %v", amount, err)
	}
}

func TestRefundTransactionKeysOnParent(t *testing.T) {
	body := strings.Replace(fixtureBody, `"is_refunded": false,`, `"is_refunded": false, "is_refund": true, "parent_transaction": 192036400,`, 1)
	cb, err := ParseCallback([]byte(body))
	if err != nil {
		t.Fatalf("ParseCallback: %v", err)
	}
	if !cb.Obj.Refunded() || cb.Obj.Succeeded() {
		t.Fatal("expected refund")
	}
	if cb.Obj.CaptureID() != "192036400" {
		t.Fatalf("capture id = %s", cb.Obj.CaptureID())
	}
}

func TestParseCallbackRejectsMalformed(t *testing.T) {
	for _, body := range []string{``, `not json`, `{"type":"TRANSACTION"}`, `{"type":"TRANSACTION","obj":null}`} {
		if _, err := ParseCallback([]byte(body)); !errors.Is(err, ErrMalformedCallback) {
			t.Fatalf("%q: expected ErrMalformedCallback, got %v", body, err)
		}
	}
}

func TestTransactionFromQuery(t *testing.T) {
	q := url.Values{}
	q.Set("id", "5")
	q.Set("amount_cents", "999")
	q.Set("success", "true")
	q.Set("pending", "false")
	q.Set("order", "77")
	q.Set("merchant_order_id", "u_starter_1")

	tx, err := TransactionFromQuery(q)
	if err != nil {
		t.Fatalf("TransactionFromQuery: %v", err)
	}
	if !tx.Succeeded() || tx.OrderID() != "77" || tx.MerchantOrderID() != "u_starter_1" {
		t.Fatalf("unexpected tx %+v", tx)
	}

	q.Del("amount_cents")
	if _, err := TransactionFromQuery(q); !errors.Is(err, ErrMalformedCallback) {
		t.Fatalf("expected ErrMalformedCallback, got %v", err)
	}
}
