package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/formaai/ledger-api/internal/domain/auth"
	"github.com/formaai/ledger-api/internal/domain/credit"
	"github.com/formaai/ledger-api/internal/domain/payment"
	"github.com/formaai/ledger-api/internal/domain/user"
)

// Ledger is the credit ledger surface used by admins.
type Ledger interface {
	AdjustCredits(ctx context.Context, userID string, amount int64, actorID, reason string, txType credit.TxType) (int64, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID, cursor string, limit int) (*credit.TransactionPage, error)
	Drift(ctx context.Context, limit int) ([]credit.Drift, error)
}

// Payments is the reconciliation surface used by admins.
type Payments interface {
	RefundPayment(ctx context.Context, paymentID uuid.UUID, adminID, reason string) (*payment.Payment, error)
	ManualCredit(ctx context.Context, req payment.ManualCreditRequest) (*payment.Outcome, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	SearchPayments(ctx context.Context, f payment.Filter) ([]payment.Payment, error)
}

// Service handles admin business logic
type Service struct {
	repo     Repository
	ledger   Ledger
	payments Payments
	users    user.Repository
}

// NewService creates admin service
func NewService(repo Repository, ledger Ledger, payments Payments, users user.Repository) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		payments: payments,
		users:    users,
	}
}

// --- Credits ---

// AdjustUserCredits adds or deducts credits as a ledger adjustment.
func (s *Service) AdjustUserCredits(ctx context.Context, actorID, targetID string, amount int64, reason string, direction Direction) (*CreditAdjustment, error) {
	if !direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if amount <= 0 {
		return nil, credit.ErrInvalidAmount
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, credit.ErrReasonRequired
	}

	delta := amount
	action := ActionCreditAdd
	if direction == DirectionDeduct {
		delta = -amount
		action = ActionCreditDeduct
	}

	balance, err := s.ledger.AdjustCredits(ctx, targetID, delta, actorID, reason, credit.TxTypeAdjustment)
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actorID, action, "user", targetID, reason,
		map[string]int64{"balance": balance - delta},
		map[string]int64{"balance": balance, "delta": delta},
	)

	return &CreditAdjustment{
		UserID:    targetID,
		Direction: direction,
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
	}, nil
}

// GetUserCredits returns the balance and one page of history.
func (s *Service) GetUserCredits(ctx context.Context, userID, cursor string, limit int) (*UserCredits, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	page, err := s.ledger.ListTransactions(ctx, userID, cursor, limit)
	if err != nil {
		return nil, err
	}
	return &UserCredits{
		UserID:       userID,
		Balance:      balance,
		Transactions: page.Items,
		NextCursor:   page.NextCursor,
		HasNext:      page.HasNext,
	}, nil
}

// LedgerDrift lists accounts whose cached balance disagrees with the ledger.
func (s *Service) LedgerDrift(ctx context.Context, limit int) ([]credit.Drift, error) {
	return s.ledger.Drift(ctx, limit)
}

// --- Payments ---

// RefundPayment reverses a completed payment.
func (s *Service) RefundPayment(ctx context.Context, actorID string, paymentID uuid.UUID, reason string) (*payment.Payment, error) {
	p, err := s.payments.RefundPayment(ctx, paymentID, actorID, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actorID, ActionRefund, "payment", p.ID.String(), reason,
		map[string]any{"status": payment.StatusCompleted},
		map[string]any{"status": p.Status, "credits": p.Credits, "refund_deficit": p.RefundDeficit},
	)
	return p, nil
}

// ManualCredit records an offline payment and grants its credits.
func (s *Service) ManualCredit(ctx context.Context, actorID string, in ManualCreditInput) (*ManualCreditResult, error) {
	out, err := s.payments.ManualCredit(ctx, payment.ManualCreditRequest{
		UserID:    in.UserID,
		PackID:    in.PackID,
		Credits:   in.Credits,
		Reference: in.Reference,
		Reason:    strings.TrimSpace(in.Reason),
		ActorID:   actorID,
	})
	if err != nil {
		return nil, err
	}

	if !out.Duplicate {
		s.logAction(ctx, actorID, ActionManualCredit, "user", in.UserID, in.Reason, nil, map[string]any{
			"payment_id": out.Payment.ID,
			"reference":  in.Reference,
			"credits":    out.Payment.Credits,
		})
	}
	return &ManualCreditResult{Payment: out.Payment, Duplicate: out.Duplicate}, nil
}

// GetPayment returns a single payment record.
func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return s.payments.GetPayment(ctx, id)
}

// ListPayments searches all payment records.
func (s *Service) ListPayments(ctx context.Context, f payment.Filter) ([]payment.Payment, error) {
	return s.payments.SearchPayments(ctx, f)
}

// --- Users ---

// GetUser returns ErrUserNotFound when absent.
func (s *Service) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

// ChangeRole sets a user's role. Admins cannot change their own role.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, role user.Role, reason string) (*user.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := auth.GuardSelfAction(actorID, targetID, auth.ActionDemote); err != nil {
		return nil, err
	}

	before, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	after, err := s.users.UpdateRole(ctx, targetID, role)
	if err != nil {
		return nil, err
	}

	s.logAction(ctx, actorID, ActionRoleChange, "user", targetID, reason,
		map[string]user.Role{"role": before.Role},
		map[string]user.Role{"role": after.Role},
	)
	return after, nil
}

// Suspend blocks a user. Admins cannot suspend themselves.
func (s *Service) Suspend(ctx context.Context, actorID, targetID, reason string) (*user.User, error) {
	if err := auth.GuardSelfAction(actorID, targetID, auth.ActionSuspend); err != nil {
		return nil, err
	}
	return s.setSuspension(ctx, actorID, targetID, true, strings.TrimSpace(reason))
}

// Unsuspend restores a suspended user.
func (s *Service) Unsuspend(ctx context.Context, actorID, targetID, reason string) (*user.User, error) {
	return s.setSuspension(ctx, actorID, targetID, false, strings.TrimSpace(reason))
}

func (s *Service) setSuspension(ctx context.Context, actorID, targetID string, suspended bool, reason string) (*user.User, error) {
	before, err := s.GetUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	after, err := s.users.UpdateSuspension(ctx, targetID, suspended, reason)
	if err != nil {
		return nil, err
	}

	action := ActionUnsuspend
	if suspended {
		action = ActionSuspend
	}
	s.logAction(ctx, actorID, action, "user", targetID, reason,
		map[string]bool{"is_suspended": before.IsSuspended},
		map[string]bool{"is_suspended": after.IsSuspended},
	)
	return after, nil
}

// --- Audit Logs ---

// ListAuditLogs returns audit logs
func (s *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]*AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, filter)
}

// logAction creates an audit log entry. Failures never fail the action.
func (s *Service) logAction(ctx context.Context, adminID, action, entityType, entityID, reason string, oldValue, newValue interface{}) {
	meta := requestMetaFrom(ctx)

	var oldJSON, newJSON []byte
	if oldValue != nil {
		oldJSON, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		newJSON, _ = json.Marshal(newValue)
	}

	entry := &AuditLog{
		ID:         uuid.New(),
		AdminID:    adminID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		OldValue:   oldJSON,
		NewValue:   newJSON,
		Reason:     sql.NullString{String: reason, Valid: reason != ""},
		IPAddress:  sql.NullString{String: meta.IP, Valid: meta.IP != ""},
		UserAgent:  sql.NullString{String: meta.UserAgent, Valid: meta.UserAgent != ""},
		CreatedAt:  time.Now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := s.repo.CreateAuditLog(writeCtx, entry); err != nil {
		log.Error().Err(err).
			Str("admin_id", adminID).
			Str("action", action).
			Str("entity_id", entityID).
			Msg("Failed to create audit log")
		return
	}

	log.Info().
		Str("admin_id", adminID).
		Str("action", action).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Msg("admin action recorded")
}
