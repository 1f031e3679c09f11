package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeOrderMissing Outcome = "order_missing"
	OutcomeRejected     Outcome = "rejected"
	OutcomeRetry        Outcome = "retry"
)

// WebhookResult describes an acknowledged webhook.
type WebhookResult struct {
	Outcome   Outcome
	EventID   string
	OrderID   int64
	PaymentID int64
}

// ApplyWebhookEvent verifies and applies one gateway notification. A nil
// error means the delivery should be acknowledged. Transient errors ask
// the gateway to redeliver; every other error is a permanent rejection.
func (s *Service) ApplyWebhookEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	res, err := s.applyWebhook(ctx, payload, signature)
	switch {
	case err == nil:
		s.metrics.WebhookHandled(string(res.Outcome))
	case errors.Is(err, dompayment.ErrInvalidSignature):
		s.metrics.WebhookHandled(string(OutcomeRejected))
		s.logger.WarnContext(ctx, "webhook signature rejected")
	default:
		err = classify(err)
		outcome, level := OutcomeRejected, slog.LevelWarn
		if fault.IsTransient(err) {
			outcome, level = OutcomeRetry, slog.LevelError
		}
		s.metrics.WebhookHandled(string(outcome))
		s.logger.Log(ctx, level, "webhook not applied", slog.String("outcome", string(outcome)), slog.Any("error", err))
	}
	return res, err
}

func (s *Service) applyWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	res := &WebhookResult{EventID: ev.ID}
	if !ev.Recognized() {
		res.Outcome = OutcomeIgnored
		s.logger.DebugContext(ctx, "webhook event ignored", slog.String("event_id", ev.ID), slog.String("type", ev.Type))
		return res, nil
	}
	if ev.Type == dompayment.EventSessionCompleted && ev.PaymentStatus != "paid" {
		res.Outcome = OutcomeIgnored
		s.logger.InfoContext(ctx, "checkout session completed without payment",
			slog.String("event_id", ev.ID),
			slog.String("payment_status", ev.PaymentStatus),
		)
		return res, nil
	}

	orderID, err := ev.OrderID()
	if err != nil {
		return nil, err
	}
	res.OrderID = orderID
	if ev.TransactionID == "" || ev.AmountMinor <= 0 {
		return nil, dompayment.ErrMalformedEvent
	}
	// Orders are priced in the configured currency only; any other amount
	// cannot be credited against them.
	if !strings.EqualFold(ev.Currency, s.cfg.Currency) {
		return nil, fmt.Errorf("%w: currency %q, want %q", dompayment.ErrMalformedEvent, ev.Currency, s.cfg.Currency)
	}

	var out recordOutcome
	err = s.store.WithOrderLock(ctx, orderID, func(tx domorder.OrderTx) error {
		var err error
		out, err = s.recordCompleted(ctx, tx, &dompayment.Payment{
			OrderID:       orderID,
			Amount:        dompayment.FromMinorUnits(ev.AmountMinor),
			Status:        dompayment.StatusCompleted,
			Method:        dompayment.MethodCard,
			PaymentDate:   s.now().UTC(),
			TransactionID: ev.TransactionID,
		})
		return err
	})
	if errors.Is(err, domorder.ErrOrderNotFound) {
		res.Outcome = OutcomeOrderMissing
		s.logger.WarnContext(ctx, "webhook references unknown order",
			slog.String("event_id", ev.ID),
			slog.Int64("order_id", orderID),
			slog.String("transaction_id", ev.TransactionID),
		)
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	s.observe(out, sourceWebhook)

	res.PaymentID = out.payment.ID
	if out.duplicate {
		res.Outcome = OutcomeDuplicate
		s.logger.InfoContext(ctx, "duplicate webhook delivery",
			slog.String("event_id", ev.ID),
			slog.Int64("order_id", orderID),
			slog.String("transaction_id", ev.TransactionID),
		)
		return res, nil
	}

	res.Outcome = OutcomeApplied
	s.logger.InfoContext(ctx, "payment applied",
		slog.String("event_id", ev.ID),
		slog.Int64("order_id", orderID),
		slog.Int64("payment_id", out.payment.ID),
		slog.String("amount", out.payment.Amount.StringFixed(2)),
	)
	return res, nil
}
