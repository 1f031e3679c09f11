package product

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidProduct is returned when a cart or checkout references a
	// product that does not resolve to an active catalog entry.
	ErrInvalidProduct = errors.New("invalid product")
)
