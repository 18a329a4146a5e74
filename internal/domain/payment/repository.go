package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/formaai/ledger-api/internal/domain/credit"
)

const queryTimeout = 5 * time.Second

// Store persists payment records. GrantOnce and RefundOnce apply the
// matching ledger entry in the same database transaction.
type Store interface {
	// GrantOnce returns granted=false and the existing record when the
	// capture was already completed.
	GrantOnce(ctx context.Context, g Grant) (p *Payment, granted bool, err error)
	// RecordPending creates a pending record unless the capture is known.
	RecordPending(ctx context.Context, p Payment) (*Payment, error)
	// FailPending moves the pending record for (provider, captureID) to failed.
	FailPending(ctx context.Context, provider, captureID string) (int64, error)
	// RefundOnce returns ErrAlreadyRefunded when the record is already refunded.
	RefundOnce(ctx context.Context, r Refund) (*Payment, credit.Result, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByCapture(ctx context.Context, provider, captureID string) (*Payment, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error)
	List(ctx context.Context, f Filter) ([]Payment, error)
}

// Ledger is the credit operation run inside payment transactions.
type Ledger interface {
	AdjustTx(ctx context.Context, tx *sqlx.Tx, adj credit.Adjustment) (credit.Result, error)
}

type repository struct {
	db     *sqlx.DB
	ledger Ledger
}

// NewRepository creates payment repository
func NewRepository(db *sqlx.DB, ledger Ledger) Store {
	return &repository{db: db, ledger: ledger}
}

const selectColumns = `id, user_id, pack_id, amount_minor, currency, credits, status, provider,
	order_id, capture_id, correlation_source, refund_reason, refunded_by, refund_deficit,
	raw_payload, created_at, updated_at, completed_at, failed_at, refunded_at`

func (r *repository) GrantOnce(ctx context.Context, g Grant) (*Payment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("payment grant: begin tx: %w", err)
	}
	defer tx.Rollback()

	p := g.Payment
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	// A pending row for the same capture is upgraded; a completed,
	// failed or refunded row suppresses RETURNING.
	var stored Payment
	err = tx.GetContext(ctx, &stored, `
		INSERT INTO payments (id, user_id, pack_id, amount_minor, currency, credits, status, provider,
			order_id, capture_id, correlation_source, raw_payload, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'completed', $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (provider, capture_id) DO UPDATE SET
			status = 'completed',
			amount_minor = EXCLUDED.amount_minor,
			currency = EXCLUDED.currency,
			order_id = COALESCE(NULLIF(EXCLUDED.order_id, ''), payments.order_id),
			raw_payload = COALESCE(EXCLUDED.raw_payload, payments.raw_payload),
			completed_at = NOW(),
			updated_at = NOW()
		WHERE payments.status = 'pending'
		RETURNING `+selectColumns,
		p.ID, p.UserID, p.PackID, p.AmountMinor, p.Currency, p.Credits, p.Provider,
		p.OrderID, p.CaptureID, string(p.CorrelationSource), rawPayload(p.RawPayload))
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByCapture(ctx, p.Provider, p.CaptureID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("payment grant: upsert: %w", err)
	}

	_, err = r.ledger.AdjustTx(ctx, tx, credit.Adjustment{
		UserID:    stored.UserID,
		Delta:     stored.Credits,
		Type:      credit.TxTypePurchase,
		ActorID:   g.ActorID,
		Reason:    g.Reason,
		Reference: stored.CaptureID,
	})
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("payment grant: commit: %w", err)
	}
	return &stored, true, nil
}

func (r *repository) RecordPending(ctx context.Context, p Payment) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	var stored Payment
	err := r.db.GetContext(ctx, &stored, `
		INSERT INTO payments (id, user_id, pack_id, amount_minor, currency, credits, status, provider,
			order_id, capture_id, correlation_source, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, $10, $11)
		ON CONFLICT (provider, capture_id) DO NOTHING
		RETURNING `+selectColumns,
		p.ID, p.UserID, p.PackID, p.AmountMinor, p.Currency, p.Credits, p.Provider,
		p.OrderID, p.CaptureID, string(p.CorrelationSource), rawPayload(p.RawPayload))
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetByCapture(ctx, p.Provider, p.CaptureID)
	}
	if err != nil {
		return nil, fmt.Errorf("payment record pending: %w", err)
	}
	return &stored, nil
}

func (r *repository) FailPending(ctx context.Context, provider, captureID string) (int64, error) {
	if captureID == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', failed_at = NOW(), updated_at = NOW()
		WHERE provider = $1 AND capture_id = $2 AND status = 'pending'
	`, provider, captureID)
	if err != nil {
		return 0, fmt.Errorf("payment fail pending: %w", err)
	}
	return result.RowsAffected()
}

func (r *repository) RefundOnce(ctx context.Context, req Refund) (*Payment, credit.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, credit.Result{}, fmt.Errorf("payment refund: begin tx: %w", err)
	}
	defer tx.Rollback()

	where, args := locatorClause(req.Target, 3)
	var stored Payment
	err = tx.GetContext(ctx, &stored, `
		UPDATE payments
		SET status = 'refunded', refunded_at = NOW(), updated_at = NOW(),
			refund_reason = NULLIF($1, ''), refunded_by = NULLIF($2, '')
		WHERE `+where+` AND status = 'completed'
		RETURNING `+selectColumns, append([]any{req.Reason, req.ActorID}, args...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, credit.Result{}, r.refundRejection(ctx, req.Target)
	}
	if err != nil {
		return nil, credit.Result{}, fmt.Errorf("payment refund: update: %w", err)
	}

	res, err := r.ledger.AdjustTx(ctx, tx, credit.Adjustment{
		UserID:      stored.UserID,
		Delta:       -stored.Credits,
		Type:        credit.TxTypeRefundReversal,
		ActorID:     req.ActorID,
		Reason:      req.Reason,
		Reference:   stored.CaptureID,
		FloorAtZero: true,
	})
	if err != nil {
		return nil, credit.Result{}, err
	}

	if res.Deficit > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE payments SET refund_deficit = $2 WHERE id = $1`, stored.ID, res.Deficit); err != nil {
			return nil, credit.Result{}, fmt.Errorf("payment refund: record deficit: %w", err)
		}
		stored.RefundDeficit = res.Deficit
	}

	if err := tx.Commit(); err != nil {
		return nil, credit.Result{}, fmt.Errorf("payment refund: commit: %w", err)
	}
	return &stored, res, nil
}

// refundRejection explains why the conditional update matched nothing.
func (r *repository) refundRejection(ctx context.Context, target Locator) error {
	var (
		existing *Payment
		err      error
	)
	if target.ID != uuid.Nil {
		existing, err = r.GetByID(ctx, target.ID)
	} else {
		existing, err = r.GetByCapture(ctx, target.Provider, target.CaptureID)
	}
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrPaymentNotFound
	}
	if existing.Status == StatusRefunded {
		return ErrAlreadyRefunded
	}
	return fmt.Errorf("%w: status %s", ErrNotRefundable, existing.Status)
}

func locatorClause(l Locator, next int) (string, []any) {
	if l.ID != uuid.Nil {
		return fmt.Sprintf("id = $%d", next), []any{l.ID}
	}
	return fmt.Sprintf("provider = $%d AND capture_id = $%d", next, next+1), []any{l.Provider, l.CaptureID}
}

// GetByID returns nil, nil when the payment is absent.
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+selectColumns+` FROM payments WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payment get: %w", err)
	}
	return &p, nil
}

// GetByCapture returns nil, nil when the capture is unknown.
func (r *repository) GetByCapture(ctx context.Context, provider, captureID string) (*Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var p Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+selectColumns+` FROM payments WHERE provider = $1 AND capture_id = $2`, provider, captureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payment get by capture: %w", err)
	}
	return &p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit int) ([]Payment, error) {
	return r.List(ctx, Filter{UserID: userID, Limit: limit})
}

func (r *repository) List(ctx context.Context, f Filter) ([]Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + selectColumns + ` FROM payments WHERE 1=1`
	args := make([]any, 0, 5)
	idx := 1

	if f.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", idx)
		args = append(args, f.UserID)
		idx++
	}
	if f.Provider != "" {
		query += fmt.Sprintf(" AND provider = $%d", idx)
		args = append(args, f.Provider)
		idx++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(f.Status))
		idx++
	}
	if !f.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, f.CreatedBefore)
		idx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query = strings.TrimSpace(query) + fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	payments := make([]Payment, 0)
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("payment list: %w", err)
	}
	return payments, nil
}
