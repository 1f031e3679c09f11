package payment

import "errors"

var (
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrInvalidSignature      = errors.New("invalid webhook signature")
	ErrMalformedEvent        = errors.New("malformed webhook event")
	ErrMissingOrderReference = errors.New("missing or malformed order reference")
	ErrDuplicateTransaction  = errors.New("transaction id already recorded")
	ErrInvalidAmount         = errors.New("payment amount must be positive")
	ErrInvalidMethod         = errors.New("invalid payment method")
	ErrGatewayRejected       = errors.New("payment gateway rejected the request")
	ErrTransactionIDRequired = errors.New("transaction id is required")
)
