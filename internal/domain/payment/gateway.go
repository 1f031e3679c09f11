package payment

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Event types the reconciler acts on. Every other type is acknowledged and
// ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventSessionCompleted = "checkout.session.completed"
)

type IntentRequest struct {
	OrderID     int64
	UserID      int64
	AmountMinor int64
	Currency    string
}

type Intent struct {
	ID           string
	ClientSecret string
	AmountMinor  int64
	Currency     string
}

type SessionRequest struct {
	OrderID     int64
	UserID      int64
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}

type Session struct {
	ID  string
	URL string
}

// Event is a verified webhook notification, reduced to the fields the
// reconciler uses.
type Event struct {
	ID            string
	Type          string
	ObjectID      string
	TransactionID string
	OrderRef      string
	AmountMinor   int64
	Currency      string
	// PaymentStatus is only set for checkout sessions ("paid", "unpaid",
	// "no_payment_required").
	PaymentStatus string
}

// Recognized reports whether the event confirms money received.
func (e *Event) Recognized() bool {
	return e.Type == EventPaymentSucceeded || e.Type == EventSessionCompleted
}

// OrderID parses the order reference carried in event metadata.
func (e *Event) OrderID() (int64, error) {
	ref := strings.TrimSpace(e.OrderRef)
	if ref == "" {
		return 0, ErrMissingOrderReference
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrMissingOrderReference
	}
	return id, nil
}

// ToMinorUnits converts an amount with two fractional digits into the
// smallest currency unit.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
