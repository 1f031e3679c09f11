package payment

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domuser "example.com/pod-fulfillment/internal/domain/user"
)

type DirectPaymentInput struct {
	Amount        decimal.Decimal
	Method        dompayment.Method
	TransactionID string
}

// RecordDirectPayment records a completed payment submitted by the order
// owner. created is false when the transaction id was already completed on
// this order; the existing payment is returned unchanged.
func (s *Service) RecordDirectPayment(ctx context.Context, actor domuser.Actor, orderID int64, in DirectPaymentInput) (p *dompayment.Payment, created bool, err error) {
	if !in.Amount.IsPositive() {
		return nil, false, dompayment.ErrInvalidAmount
	}
	if !in.Method.IsValid() {
		return nil, false, dompayment.ErrInvalidMethod
	}
	txnID := strings.TrimSpace(in.TransactionID)
	if txnID == "" {
		return nil, false, dompayment.ErrTransactionIDRequired
	}

	var out recordOutcome
	err = s.store.WithOrderLock(ctx, orderID, func(tx domorder.OrderTx) error {
		if tx.Order().UserID != actor.UserID {
			return fault.ErrForbidden
		}
		var err error
		out, err = s.recordCompleted(ctx, tx, &dompayment.Payment{
			OrderID:       orderID,
			Amount:        in.Amount.Round(2),
			Status:        dompayment.StatusCompleted,
			Method:        in.Method,
			PaymentDate:   s.now().UTC(),
			TransactionID: txnID,
		})
		return err
	})
	if err != nil {
		return nil, false, classify(err)
	}
	s.observe(out, sourceDirect)
	return out.payment, !out.duplicate, nil
}
