package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgpayment "github.com/formaai/ledger-api/internal/pkg/payment"
)

// Status represents payment status
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// rawPayload converts a provider body into a value for the JSONB column.
// Non-JSON bodies (redirect query strings) are stored as a JSON string.
func rawPayload(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return string(raw)
	}
	b, _ := json.Marshal(string(raw))
	return string(b)
}

// Payment is one settled or settling purchase (matches payments table).
type Payment struct {
	ID                uuid.UUID                    `db:"id" json:"id"`
	UserID            string                       `db:"user_id" json:"user_id"`
	PackID            string                       `db:"pack_id" json:"pack_id"`
	AmountMinor       int64                        `db:"amount_minor" json:"amount_minor"`
	Currency          string                       `db:"currency" json:"currency"`
	Credits           int64                        `db:"credits" json:"credits"`
	Status            Status                       `db:"status" json:"status"`
	Provider          string                       `db:"provider" json:"provider"`
	OrderID           string                       `db:"order_id" json:"order_id,omitempty"`
	CaptureID         string                       `db:"capture_id" json:"capture_id"`
	CorrelationSource pkgpayment.CorrelationSource `db:"correlation_source" json:"correlation_source"`
	RefundReason      *string                      `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundedBy        *string                      `db:"refunded_by" json:"refunded_by,omitempty"`
	RefundDeficit     int64                        `db:"refund_deficit" json:"refund_deficit,omitempty"`
	RawPayload        JSONRawMessage               `db:"raw_payload" json:"-"`
	CreatedAt         time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time                    `db:"updated_at" json:"updated_at"`
	CompletedAt       *time.Time                   `db:"completed_at" json:"completed_at,omitempty"`
	FailedAt          *time.Time                   `db:"failed_at" json:"failed_at,omitempty"`
	RefundedAt        *time.Time                   `db:"refunded_at" json:"refunded_at,omitempty"`
}

// Grant asks the store to record p as completed and credit its owner,
// unless the capture was already granted.
type Grant struct {
	Payment Payment
	ActorID string
	Reason  string
}

// Locator identifies a payment either by id or by (provider, capture id).
type Locator struct {
	ID        uuid.UUID
	Provider  string
	CaptureID string
}

func (l Locator) String() string {
	if l.ID != uuid.Nil {
		return l.ID.String()
	}
	return l.Provider + "/" + l.CaptureID
}

// Refund asks the store to reverse a completed payment.
type Refund struct {
	Target  Locator
	ActorID string
	Reason  string
}

// Filter narrows admin payment listings.
type Filter struct {
	UserID        string
	Provider      string
	Status        Status
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// Outcome is what a reconciliation call did.
type Outcome struct {
	Payment *Payment `json:"payment,omitempty"`
	// Duplicate is true when the capture had already been applied and
	// nothing changed.
	Duplicate bool `json:"duplicate"`
	// NeedsReview is set when a provider settled a capture that is already
	// recorded as failed. No credits were granted.
	NeedsReview bool `json:"needs_review,omitempty"`
	// Status is the normalised event status that was applied.
	Status pkgpayment.EventStatus `json:"status"`
}
