package cart

import (
	"time"

	"github.com/shopspring/decimal"

	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

// Item is one persisted cart row. (UserID, ProductID) is unique.
type Item struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int64
	AddedAt   time.Time
}

// DetailedItem is a cart row joined with the live catalog entry. The price
// shown here is for display only; checkout snapshots its own.
type DetailedItem struct {
	Item
	ProductName  string
	ImageURL     string
	ProductPrice decimal.Decimal
	LineTotal    decimal.Decimal
}

type Cart struct {
	UserID int64
	Items  []DetailedItem
	Total  decimal.Decimal
}

// Line is a cart row together with the product it references, read inside
// the checkout transaction.
type Line struct {
	Item    Item
	Product *domproduct.Product
}
