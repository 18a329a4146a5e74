package credit

import (
	"time"

	"github.com/google/uuid"
)

// TxType classifies a ledger entry.
type TxType string

const (
	TxTypePurchase       TxType = "purchase"
	TxTypeDeduction      TxType = "deduction"
	TxTypeAdjustment     TxType = "adjustment"
	TxTypeRefundReversal TxType = "refund-reversal"
)

// Valid reports whether t is a known transaction type.
func (t TxType) Valid() bool {
	switch t {
	case TxTypePurchase, TxTypeDeduction, TxTypeAdjustment, TxTypeRefundReversal:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry (matches credit_transactions table).
type Transaction struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Type         TxType    `db:"tx_type" json:"type"`
	Reference    string    `db:"reference" json:"reference,omitempty"`
	Reason       string    `db:"reason" json:"reason,omitempty"`
	ActorID      string    `db:"actor_id" json:"actor_id,omitempty"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Adjustment is a single signed balance change.
type Adjustment struct {
	UserID    string
	Delta     int64
	Type      TxType
	ActorID   string
	Reason    string
	Reference string
	// FloorAtZero clamps a debit at the current balance instead of
	// failing with ErrInsufficientCredits. Used for refund reversals.
	FloorAtZero bool
}

// Result describes an applied adjustment.
type Result struct {
	NewBalance int64 `json:"new_balance"`
	// Applied is the delta actually written, which differs from the
	// requested delta only when FloorAtZero clamps a debit.
	Applied int64 `json:"applied"`
	// Deficit is the part of a clamped debit that could not be taken.
	Deficit int64 `json:"deficit,omitempty"`
}

// TransactionPage is one reverse-chronological page of ledger entries.
type TransactionPage struct {
	Items      []Transaction `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasNext    bool          `json:"has_next"`
}

// Drift reports a user whose cached balance disagrees with the ledger sum.
type Drift struct {
	UserID    string `db:"user_id" json:"user_id"`
	Balance   int64  `db:"credit_balance" json:"balance"`
	LedgerSum int64  `db:"ledger_sum" json:"ledger_sum"`
}

// Difference is balance minus ledger sum.
func (d Drift) Difference() int64 {
	return d.Balance - d.LedgerSum
}
