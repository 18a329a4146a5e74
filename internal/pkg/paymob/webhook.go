package paymob

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// CallbackTypeTransaction is the only callback type carrying a payment.
const CallbackTypeTransaction = "TRANSACTION"

// CorrelationExtraKey is the intention extras key echoed back on callbacks.
const CorrelationExtraKey = "correlation"

// ErrMalformedCallback is returned for bodies that don't decode.
var ErrMalformedCallback = errors.New("paymob: malformed callback")

// Order is the order block of a transaction.
type Order struct {
	ID              json.Number `json:"id"`
	MerchantOrderID string      `json:"merchant_order_id"`
}

// SourceData describes the payment instrument.
type SourceData struct {
	Pan     string `json:"pan"`
	Type    string `json:"type"`
	SubType string `json:"sub_type"`
}

// PaymentKeyClaims echoes the intention, including its extras.
type PaymentKeyClaims struct {
	Extra map[string]interface{} `json:"extra"`
}

// Transaction is the "obj" of a TRANSACTION callback.
type Transaction struct {
	ID                   json.Number       `json:"id"`
	AmountCents          json.Number       `json:"amount_cents"`
	Currency             string            `json:"currency"`
	CreatedAt            string            `json:"created_at"`
	Success              *bool             `json:"success"`
	Pending              *bool             `json:"pending"`
	IsAuth               *bool             `json:"is_auth"`
	IsCapture            *bool             `json:"is_capture"`
	IsVoided             *bool             `json:"is_voided"`
	IsRefunded           *bool             `json:"is_refunded"`
	IsRefund             *bool             `json:"is_refund"`
	IsVoid               *bool             `json:"is_void"`
	ErrorOccured         *bool             `json:"error_occured"`
	HasParentTransaction *bool             `json:"has_parent_transaction"`
	ParentTransaction    json.Number       `json:"parent_transaction"`
	Order                *Order            `json:"order"`
	SourceData           *SourceData       `json:"source_data"`
	PaymentKeyClaims     *PaymentKeyClaims `json:"payment_key_claims"`
}

// Callback is a decoded webhook body. Fields holds the untyped "obj" for
// HMAC computation.
type Callback struct {
	Type   string
	Obj    Transaction
	Fields map[string]interface{}
}

// ParseCallback decodes a POST callback body.
func ParseCallback(body []byte) (*Callback, error) {
	var envelope struct {
		Type string          `json:"type"`
		Obj  json.RawMessage `json:"obj"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if len(envelope.Obj) == 0 || bytes.Equal(envelope.Obj, []byte("null")) {
		return nil, fmt.Errorf("%w: missing obj", ErrMalformedCallback)
	}

	cb := &Callback{Type: envelope.Type}
	if err := json.Unmarshal(envelope.Obj, &cb.Obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Obj))
	dec.UseNumber()
	if err := dec.Decode(&cb.Fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	return cb, nil
}

// TransactionFromQuery reads a redirect callback query into a Transaction.
func TransactionFromQuery(q url.Values) (*Transaction, error) {
	if q.Get("id") == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedCallback)
	}
	tx := &Transaction{
		ID:                   json.Number(q.Get("id")),
		AmountCents:          json.Number(q.Get("amount_cents")),
		Currency:             q.Get("currency"),
		CreatedAt:            q.Get("created_at"),
		Success:              queryBool(q, "success"),
		Pending:              queryBool(q, "pending"),
		IsAuth:               queryBool(q, "is_auth"),
		IsCapture:            queryBool(q, "is_capture"),
		IsVoided:             queryBool(q, "is_voided"),
		IsRefunded:           queryBool(q, "is_refunded"),
		ErrorOccured:         queryBool(q, "error_occured"),
		HasParentTransaction: queryBool(q, "has_parent_transaction"),
		Order:                &Order{ID: json.Number(q.Get("order")), MerchantOrderID: q.Get("merchant_order_id")},
		SourceData: &SourceData{
			Pan:     q.Get("source_data.pan"),
			Type:    q.Get("source_data.type"),
			SubType: q.Get("source_data.sub_type"),
		},
	}
	if _, err := tx.AmountMinor(); err != nil {
		return nil, err
	}
	return tx, nil
}

func queryBool(q url.Values, key string) *bool {
	raw := q.Get(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func isTrue(b *bool) bool { return b != nil && *b }

// Succeeded reports a settled, non-reversed payment.
func (t *Transaction) Succeeded() bool {
	return isTrue(t.Success) && !isTrue(t.Pending) && !t.Refunded() && !isTrue(t.IsVoided) && !isTrue(t.IsVoid)
}

// IsPending reports a payment awaiting settlement.
func (t *Transaction) IsPending() bool { return isTrue(t.Pending) }

// Refunded reports a refund of the transaction (or a refund transaction).
func (t *Transaction) Refunded() bool { return isTrue(t.IsRefunded) || isTrue(t.IsRefund) }

// CaptureID returns the transaction id a ledger change is keyed on: the
// parent for refund transactions, otherwise the transaction itself.
func (t *Transaction) CaptureID() string {
	if isTrue(t.IsRefund) && t.ParentTransaction != "" {
		return t.ParentTransaction.String()
	}
	return t.ID.String()
}

// OrderID returns the Paymob order id.
func (t *Transaction) OrderID() string {
	if t.Order == nil {
		return ""
	}
	return t.Order.ID.String()
}

// MerchantOrderID returns the special_reference set on the intention.
func (t *Transaction) MerchantOrderID() string {
	if t.Order == nil {
		return ""
	}
	return t.Order.MerchantOrderID
}

// Correlation returns the correlation extra echoed from the intention.
func (t *Transaction) Correlation() string {
	if t.PaymentKeyClaims == nil {
		return ""
	}
	s, _ := t.PaymentKeyClaims.Extra[CorrelationExtraKey].(string)
	return s
}

// AmountMinor parses amount_cents.
func (t *Transaction) AmountMinor() (int64, error) {
	if t.AmountCents == "" {
		return 0, fmt.Errorf("%w: missing amount_cents", ErrMalformedCallback)
	}
	n, err := t.AmountCents.Int64()
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid amount_cents %q", ErrMalformedCallback, t.AmountCents)
	}
	return n, nil
}
