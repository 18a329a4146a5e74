package admin

import (
	"fmt"

	"github.com/formaai/ledger-api/internal/domain/auth"
)

var (
	ErrInvalidDirection = fmt.Errorf("%w: direction must be add or deduct", auth.ErrInvalidOperation)
	ErrInvalidRole      = fmt.Errorf("%w: role must be user or admin", auth.ErrInvalidOperation)
	ErrInvalidAction    = fmt.Errorf("%w: unsupported payment action", auth.ErrInvalidOperation)
)
