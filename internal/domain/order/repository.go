package order

import (
	"context"

	"github.com/shopspring/decimal"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

type ListFilter struct {
	UserID   *int64
	SellerID *int64
}

// Repository is the read side of the order store.
type Repository interface {
	GetByID(ctx context.Context, id int64, inc Include) (*Order, error)
	List(ctx context.Context, filter ListFilter, inc Include) ([]*Order, error)
	GetPayment(ctx context.Context, orderID, paymentID int64) (*dompayment.Payment, error)
}

// Store runs the multi-row mutations of the pipeline as single atomic
// units. If fn returns an error nothing it did is persisted.
type Store interface {
	// Checkout serializes concurrent checkouts of the same user.
	Checkout(ctx context.Context, userID int64, fn func(tx CheckoutTx) error) error
	// WithOrderLock holds the order row lock for the duration of fn.
	// It returns ErrOrderNotFound when the order does not exist.
	WithOrderLock(ctx context.Context, orderID int64, fn func(tx OrderTx) error) error
}

type CheckoutTx interface {
	// CartLines returns the user's locked cart rows with their products.
	CartLines(ctx context.Context) ([]domcart.Line, error)
	// InsertOrder persists the order and its items, assigning their ids.
	InsertOrder(ctx context.Context, o *Order) error
	DeleteCartItems(ctx context.Context, itemIDs []int64) error
	AppendEvent(ctx context.Context, ev domoutbox.Event) error
}

type OrderTx interface {
	// Order is the locked order row without related rows.
	Order() *Order
	// FindCompletedPayment returns dompayment.ErrPaymentNotFound when no
	// completed payment with transactionID exists for the order.
	FindCompletedPayment(ctx context.Context, transactionID string) (*dompayment.Payment, error)
	// InsertPayment returns dompayment.ErrDuplicateTransaction when the
	// transaction id is already recorded.
	InsertPayment(ctx context.Context, p *dompayment.Payment) error
	CompletedTotal(ctx context.Context) (decimal.Decimal, error)
	// SaveStatus persists status, fulfillment dates and the review flag.
	SaveStatus(ctx context.Context, o *Order) error
	AppendEvent(ctx context.Context, ev domoutbox.Event) error
}
