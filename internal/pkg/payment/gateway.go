package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/formaai/ledger-api/internal/pkg/errorhandler"
	"github.com/formaai/ledger-api/internal/pkg/paymob"
	"github.com/formaai/ledger-api/internal/pkg/paypal"
)

// gatewayError logs a failed provider call with its HTTP status and body
// and wraps it as ErrGatewayUnavailable.
func gatewayError(ctx context.Context, provider, op string, err error) error {
	status, body := 0, ""
	var paypalErr *paypal.APIError
	var paymobErr *paymob.APIError
	switch {
	case errors.As(err, &paypalErr):
		status, body = paypalErr.StatusCode, paypalErr.Body
	case errors.As(err, &paymobErr):
		status, body = paymobErr.StatusCode, paymobErr.Body
	}
	errorhandler.LogExternalServiceError(ctx, provider, op, status, err, body)
	return fmt.Errorf("%w: %s %s: %v", ErrGatewayUnavailable, provider, op, err)
}
