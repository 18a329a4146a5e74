package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

const uniqueViolation = "23505"

type Repository interface {
	Adjust(ctx context.Context, adj Adjustment) (Result, error)
	AdjustTx(ctx context.Context, tx *sqlx.Tx, adj Adjustment) (Result, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID string, after *Cursor, limit int) ([]Transaction, error)
	Drift(ctx context.Context, limit int) ([]Drift, error)
}

// CreditRepository provides credit ledger and balance operations.
type CreditRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Adjust applies adj in its own transaction.
func (r *CreditRepository) Adjust(ctx context.Context, adj Adjustment) (Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx2, &sql.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	res, err := r.AdjustTx(ctx2, tx, adj)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return res, nil
}

// AdjustTx applies adj within an external transaction using a FOR UPDATE row lock.
// This method does NOT commit or rollback the transaction, the caller is responsible.
// A clamped adjustment whose applied delta is zero writes no ledger row.
func (r *CreditRepository) AdjustTx(ctx context.Context, tx *sqlx.Tx, adj Adjustment) (Result, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE`, adj.UserID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrUserNotFound
		}
		return Result{}, fmt.Errorf("%w: lock user row: %v", ErrInternal, err)
	}

	res, err := Plan(balance, adj)
	if err != nil {
		return Result{}, err
	}
	if res.Applied == 0 {
		return res, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE users SET credit_balance = $2, updated_at = NOW() WHERE id = $1`, adj.UserID, res.NewBalance)
	if err != nil {
		return Result{}, fmt.Errorf("%w: update user balance: %v", ErrInternal, err)
	}

	if err := r.insertLedger(ctx, tx, adj, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *CreditRepository) insertLedger(ctx context.Context, tx *sqlx.Tx, adj Adjustment, res Result) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, amount, tx_type, reference, reason, actor_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), adj.UserID, res.Applied, string(adj.Type),
		nullString(adj.Reference), nullString(adj.Reason), nullString(adj.ActorID), res.NewBalance)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateReference
		}
		return fmt.Errorf("%w: insert ledger: %v", ErrInternal, err)
	}
	return nil
}

func (r *CreditRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := r.db.GetContext(ctx2, &balance, `SELECT credit_balance FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("%w: get balance", ErrInternal)
	}

	return balance, nil
}

const transactionColumns = `id, user_id, amount, tx_type,
	COALESCE(reference, '') AS reference, COALESCE(reason, '') AS reason,
	COALESCE(actor_id, '') AS actor_id, balance_after, created_at`

// ListTransactions returns up to limit entries older than after, newest first.
func (r *CreditRepository) ListTransactions(ctx context.Context, userID string, after *Cursor, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	transactions := make([]Transaction, 0)
	var err error
	if after == nil {
		err = r.db.SelectContext(ctx2, &transactions, `
			SELECT `+transactionColumns+`
			FROM credit_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, userID, limit)
	} else {
		err = r.db.SelectContext(ctx2, &transactions, `
			SELECT `+transactionColumns+`
			FROM credit_transactions
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, userID, after.CreatedAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list transactions", ErrInternal)
	}

	return transactions, nil
}

// Drift lists users whose balance differs from the sum of their ledger entries.
func (r *CreditRepository) Drift(ctx context.Context, limit int) ([]Drift, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	drift := make([]Drift, 0)
	err := r.db.SelectContext(ctx2, &drift, `
		SELECT u.id AS user_id, u.credit_balance, COALESCE(SUM(t.amount), 0) AS ledger_sum
		FROM users u
		LEFT JOIN credit_transactions t ON t.user_id = u.id
		GROUP BY u.id, u.credit_balance
		HAVING u.credit_balance <> COALESCE(SUM(t.amount), 0)
		ORDER BY u.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: ledger drift", ErrInternal)
	}
	return drift, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
