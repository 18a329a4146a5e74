package credit

import (
	"errors"

	"github.com/formaai/ledger-api/internal/domain/user"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid credit amount")
	ErrInvalidType         = errors.New("invalid transaction type")
	ErrReasonRequired      = errors.New("reason is required for adjustments")
	ErrInvalidCursor       = errors.New("invalid cursor")
	ErrDuplicateReference  = errors.New("ledger reference already recorded")
	ErrUserNotFound        = user.ErrUserNotFound
	ErrInternal            = errors.New("internal error")
)
