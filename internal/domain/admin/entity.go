package admin

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
)

// Direction of a manual balance change
type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionDeduct Direction = "deduct"
)

// Valid reports whether d is add or deduct.
func (d Direction) Valid() bool {
	return d == DirectionAdd || d == DirectionDeduct
}

// Audit actions
const (
	ActionCreditAdd    = "credit.add"
	ActionCreditDeduct = "credit.deduct"
	ActionManualCredit = "payment.manual_credit"
	ActionRefund       = "payment.refund"
	ActionRoleChange   = "user.role"
	ActionSuspend      = "user.suspend"
	ActionUnsuspend    = "user.unsuspend"
)

// AuditLog represents an admin action log entry
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	AdminID    string          `db:"admin_id" json:"admin_id"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"` // user, payment
	EntityID   string          `db:"entity_id" json:"entity_id"`
	OldValue   json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue   json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Reason     sql.NullString  `db:"reason" json:"-"`
	IPAddress  sql.NullString  `db:"ip_address" json:"-"`
	UserAgent  sql.NullString  `db:"user_agent" json:"-"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// MarshalJSON flattens the nullable columns.
func (a AuditLog) MarshalJSON() ([]byte, error) {
	type plain AuditLog
	return json.Marshal(struct {
		plain
		Reason    string `json:"reason,omitempty"`
		IPAddress string `json:"ip_address,omitempty"`
		UserAgent string `json:"user_agent,omitempty"`
	}{plain(a), a.Reason.String, a.IPAddress.String, a.UserAgent.String})
}

// CreditAdjustment is the result of an admin add/deduct.
type CreditAdjustment struct {
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"new_balance"`
	Reason    string    `json:"reason"`
}

// UserCredits is a user's balance with one page of ledger history.
type UserCredits struct {
	UserID       string               `json:"user_id"`
	Balance      int64                `json:"balance"`
	Transactions []credit.Transaction `json:"transactions"`
	NextCursor   string               `json:"next_cursor,omitempty"`
	HasNext      bool                 `json:"has_next"`
}

// ManualCreditInput describes an offline payment to record.
type ManualCreditInput struct {
	UserID    string
	PackID    string
	Credits   int64
	Reference string
	Reason    string
}

// ManualCreditResult wraps the stored record.
type ManualCreditResult struct {
	Payment   *payment.Payment `json:"payment"`
	Duplicate bool             `json:"duplicate"`
}
