package payment

import (
	"context"
	"errors"
	"log/slog"

	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domuser "example.com/pod-fulfillment/internal/domain/user"
)

type IntentResult struct {
	IntentID       string
	ClientSecret   string
	AmountMinor    int64
	Currency       string
	PublishableKey string
}

type SessionResult struct {
	SessionID string
	URL       string
}

// payableOrder loads an order the actor may start a payment for. Orders of
// other users are reported as not found.
func (s *Service) payableOrder(ctx context.Context, actor domuser.Actor, orderID int64) (*domorder.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID, domorder.IncludeNone)
	if err != nil {
		return nil, err
	}
	if o.UserID != actor.UserID {
		return nil, domorder.ErrOrderNotFound
	}
	if o.Status != domorder.StatusPending {
		return nil, domorder.ErrOrderNotPayable
	}
	return o, nil
}

// CreateIntent asks the gateway for a payment intent covering the order
// total. The order id and owner travel in the intent metadata so the
// succeeded webhook can be matched back to the order.
func (s *Service) CreateIntent(ctx context.Context, actor domuser.Actor, orderID int64) (*IntentResult, error) {
	o, err := s.payableOrder(ctx, actor, orderID)
	if err != nil {
		return nil, classify(err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	intent, err := s.gateway.CreateIntent(gctx, dompayment.IntentRequest{
		OrderID:     o.ID,
		UserID:      o.UserID,
		AmountMinor: dompayment.ToMinorUnits(o.TotalAmount),
		Currency:    s.cfg.Currency,
	})
	if err != nil {
		s.logGatewayFailure(ctx, "create payment intent failed", o.ID, err)
		return nil, classify(err)
	}

	s.logger.InfoContext(ctx, "payment intent created",
		slog.Int64("order_id", o.ID),
		slog.String("intent_id", intent.ID),
		slog.Int64("amount_minor", intent.AmountMinor),
	)
	return &IntentResult{
		IntentID:       intent.ID,
		ClientSecret:   intent.ClientSecret,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		PublishableKey: s.cfg.PublishableKey,
	}, nil
}

// CreateCheckoutSession starts a hosted checkout for the order total.
func (s *Service) CreateCheckoutSession(ctx context.Context, actor domuser.Actor, orderID int64) (*SessionResult, error) {
	o, err := s.payableOrder(ctx, actor, orderID)
	if err != nil {
		return nil, classify(err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	session, err := s.gateway.CreateCheckoutSession(gctx, dompayment.SessionRequest{
		OrderID:     o.ID,
		UserID:      o.UserID,
		AmountMinor: dompayment.ToMinorUnits(o.TotalAmount),
		Currency:    s.cfg.Currency,
		SuccessURL:  s.cfg.SuccessURL,
		CancelURL:   s.cfg.CancelURL,
	})
	if err != nil {
		s.logGatewayFailure(ctx, "create checkout session failed", o.ID, err)
		return nil, classify(err)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		slog.Int64("order_id", o.ID),
		slog.String("session_id", session.ID),
	)
	return &SessionResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) logGatewayFailure(ctx context.Context, msg string, orderID int64, err error) {
	level := slog.LevelError
	if errors.Is(err, dompayment.ErrGatewayRejected) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, msg, slog.Int64("order_id", orderID), slog.Any("error", err))
}
