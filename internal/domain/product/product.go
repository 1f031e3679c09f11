package product

import "github.com/shopspring/decimal"

// Product is the catalog view the order pipeline needs: a customized
// product with its live price and owning seller.
type Product struct {
	ID       int64
	SellerID int64
	Name     string
	ImageURL string
	Price    decimal.Decimal
	IsActive bool
}

// Purchasable reports whether the product may be added to a cart or billed.
func (p *Product) Purchasable() bool {
	return p != nil && p.IsActive
}
