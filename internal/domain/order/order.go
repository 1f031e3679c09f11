package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// transitions lists the only forward moves an order may make.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Include names the related rows a read must load alongside the order.
type Include uint8

const (
	IncludeItems Include = 1 << iota
	IncludePayments

	IncludeNone Include = 0
	IncludeAll          = IncludeItems | IncludePayments
)

func (i Include) Has(flag Include) bool {
	return i&flag != 0
}

type Order struct {
	ID              int64
	UserID          int64
	TotalAmount     decimal.Decimal
	Status          Status
	OrderDate       time.Time
	ShippedDate     *time.Time
	DeliveredDate   *time.Time
	ShippingAddress string
	// ReviewRequired is raised when money arrives that the order did not
	// ask for: overpayment, or payment on a cancelled order.
	ReviewRequired bool
	Items          []OrderItem
	Payments       []dompayment.Payment
}

// OrderItem carries the price captured at checkout. It is never re-read
// from the catalog.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int64
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// NewFromCart snapshots cart lines into a pending order. Unit prices are
// copied from the products as read inside the checkout transaction.
func NewFromCart(userID int64, shippingAddress string, lines []domcart.Line, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	o := &Order{
		UserID:          userID,
		TotalAmount:     decimal.Zero,
		Status:          StatusPending,
		OrderDate:       now,
		ShippingAddress: shippingAddress,
		Items:           make([]OrderItem, 0, len(lines)),
		Payments:        []dompayment.Payment{},
	}

	for _, line := range lines {
		if !line.Product.Purchasable() {
			return nil, fmt.Errorf("%w: product %d", domproduct.ErrInvalidProduct, line.Item.ProductID)
		}
		if line.Item.Quantity <= 0 {
			return nil, domcart.ErrInvalidQuantity
		}

		unit := line.Product.Price
		total := unit.Mul(decimal.NewFromInt(line.Item.Quantity))
		o.Items = append(o.Items, OrderItem{
			ProductID:   line.Item.ProductID,
			ProductName: line.Product.Name,
			Quantity:    line.Item.Quantity,
			UnitPrice:   unit,
			TotalPrice:  total,
		})
		o.TotalAmount = o.TotalAmount.Add(total)
	}

	return o, nil
}

// TransitionTo moves the order forward and stamps fulfillment dates.
func (o *Order) TransitionTo(next Status, at time.Time) error {
	if !CanTransition(o.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, next)
	}
	switch next {
	case StatusShipped:
		o.ShippedDate = &at
	case StatusDelivered:
		o.DeliveredDate = &at
	}
	o.Status = next
	return nil
}

const (
	ReviewOverpaid             = "overpaid"
	ReviewPaidAfterCancelation = "paid_after_cancellation"
)

type Settlement struct {
	// Advance is true when the order should move Pending -> Processing.
	Advance        bool
	ReviewRequired bool
	ReviewReason   string
}

// Settle decides what a cumulative completed-payment total means for the
// order. The tolerance is zero: Processing needs paid >= total.
func (o *Order) Settle(paid decimal.Decimal) Settlement {
	var s Settlement
	if o.Status == StatusCancelled {
		if paid.IsPositive() {
			s.ReviewRequired = true
			s.ReviewReason = ReviewPaidAfterCancelation
		}
		return s
	}
	if o.Status == StatusPending && paid.GreaterThanOrEqual(o.TotalAmount) {
		s.Advance = true
	}
	if paid.GreaterThan(o.TotalAmount) {
		s.ReviewRequired = true
		s.ReviewReason = ReviewOverpaid
	}
	return s
}

// ContainsProduct reports whether any item references one of the
// given products. Items must be loaded.
func (o *Order) ContainsProduct(productIDs map[int64]bool) bool {
	for _, item := range o.Items {
		if productIDs[item.ProductID] {
			return true
		}
	}
	return false
}
