package cart

import (
	"context"
	"time"
)

type Repository interface {
	// AddOrUpdateItem inserts the row or, when (userID, productID) already
	// exists, increments its quantity. Either way it returns the merged row.
	AddOrUpdateItem(ctx context.Context, userID, productID, quantity int64, addedAt time.Time) (*Item, error)
	// UpdateQuantity returns ErrCartItemNotFound when the row is absent or
	// owned by another user.
	UpdateQuantity(ctx context.Context, userID, itemID, quantity int64) error
	RemoveItem(ctx context.Context, userID, itemID int64) error
	ListItems(ctx context.Context, userID int64) ([]Item, error)
}

// Cache holds a user's cart rows. Product data is never cached with them.
//
// Every Delete advances the user's version. A reader takes the version
// before loading from storage and hands it back to Set, which refuses with
// ErrCacheStale when a mutation invalidated the entry in between.
type Cache interface {
	Get(ctx context.Context, userID int64) ([]Item, error)
	Version(ctx context.Context, userID int64) (int64, error)
	Set(ctx context.Context, userID, version int64, items []Item) error
	Delete(ctx context.Context, userID int64) error
}

// NoopCache always misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, int64) ([]Item, error)      { return nil, ErrCacheMiss }
func (NoopCache) Version(context.Context, int64) (int64, error)   { return 0, nil }
func (NoopCache) Set(context.Context, int64, int64, []Item) error { return nil }
func (NoopCache) Delete(context.Context, int64) error             { return nil }
