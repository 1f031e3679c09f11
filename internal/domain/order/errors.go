package order

import "errors"

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatus           = errors.New("invalid order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrEmptyCart               = errors.New("cart is empty")
	ErrOrderNotPayable         = errors.New("order is not awaiting payment")
	ErrInvalidShippingAddress  = errors.New("shipping address is required")
)
