package credit

import (
	"context"
	"iter"

	"github.com/jmoiron/sqlx"

	"github.com/formaai/ledger-api/internal/pkg/logger"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is the only writer of credit balances.
type Service struct {
	repo Repository
}

// NewService creates a new credit service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AdjustCredits applies a signed change to a user's balance and records it
// in the ledger. It returns the balance after the change.
func (s *Service) AdjustCredits(ctx context.Context, userID string, amount int64, actorID, reason string, txType TxType) (int64, error) {
	res, err := s.Adjust(ctx, Adjustment{
		UserID:  userID,
		Delta:   amount,
		Type:    txType,
		ActorID: actorID,
		Reason:  reason,
	})
	if err != nil {
		return 0, err
	}
	return res.NewBalance, nil
}

// Adjust applies adj in its own transaction.
func (s *Service) Adjust(ctx context.Context, adj Adjustment) (Result, error) {
	if _, err := Plan(0, withoutBalanceCheck(adj)); err != nil {
		return Result{}, err
	}

	res, err := s.repo.Adjust(ctx, adj)
	if err != nil {
		return Result{}, err
	}

	logger.FromContext(ctx).Info().
		Str("user_id", adj.UserID).
		Str("tx_type", string(adj.Type)).
		Int64("amount", res.Applied).
		Int64("balance", res.NewBalance).
		Msg("credit balance adjusted")
	return res, nil
}

// AdjustTx applies adj inside a caller-owned transaction so the ledger
// entry commits together with the caller's own writes.
func (s *Service) AdjustTx(ctx context.Context, tx *sqlx.Tx, adj Adjustment) (Result, error) {
	return s.repo.AdjustTx(ctx, tx, adj)
}

// GetBalance returns the current credit balance for a user
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// ListTransactions returns one page of a user's history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID, cursor string, limit int) (*TransactionPage, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	items, err := s.repo.ListTransactions(ctx, userID, after, limit+1)
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.HasNext = true
		last := page.Items[limit-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// Transactions iterates over a user's full history, newest first, fetching
// pages lazily. Each range over the sequence starts from the newest entry.
func (s *Service) Transactions(ctx context.Context, userID string) iter.Seq2[Transaction, error] {
	return func(yield func(Transaction, error) bool) {
		cursor := ""
		for {
			page, err := s.ListTransactions(ctx, userID, cursor, maxPageSize)
			if err != nil {
				yield(Transaction{}, err)
				return
			}
			for _, t := range page.Items {
				if !yield(t, nil) {
					return
				}
			}
			if !page.HasNext {
				return
			}
			cursor = page.NextCursor
		}
	}
}

// Drift reports users whose balance disagrees with their ledger.
func (s *Service) Drift(ctx context.Context, limit int) ([]Drift, error) {
	return s.repo.Drift(ctx, limit)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// withoutBalanceCheck lets Plan validate the request shape before any
// row is locked.
func withoutBalanceCheck(adj Adjustment) Adjustment {
	adj.FloorAtZero = true
	return adj
}
