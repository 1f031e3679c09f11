package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

type Method string

const (
	MethodCard         Method = "CARD"
	MethodPayPal       Method = "PAYPAL"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodOther        Method = "OTHER"
)

func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodPayPal, MethodBankTransfer, MethodOther:
		return true
	default:
		return false
	}
}

// Payment rows are append-only. TransactionID is the processor's reference
// and at most one COMPLETED row exists per transaction id.
type Payment struct {
	ID            int64
	OrderID       int64
	Amount        decimal.Decimal
	Status        Status
	Method        Method
	PaymentDate   time.Time
	TransactionID string
}

// SumCompleted adds up the amounts of completed payments.
func SumCompleted(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Status == StatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}
