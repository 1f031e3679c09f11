package cart

import "errors"

var (
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

var (
	// ErrCacheMiss is returned by a Cache that holds no entry for the user.
	ErrCacheMiss = errors.New("cart cache miss")
	// ErrCacheStale is returned by Set when the entry was invalidated after
	// the caller read its version.
	ErrCacheStale = errors.New("cart cache version changed")
)
