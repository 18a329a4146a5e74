package payment

import "errors"

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrAlreadyRefunded     = errors.New("payment already refunded")
	ErrNotRefundable       = errors.New("payment is not in a refundable state")
	ErrUnresolvableOrder   = errors.New("order cannot be matched to a user and credit pack")
	ErrVerificationFailed  = errors.New("notification verification failed")
	ErrForbidden           = errors.New("order belongs to another user")
	ErrCaptureNotCompleted = errors.New("payment was not completed")
	ErrDuplicateReference  = errors.New("manual credit reference already used")
)
