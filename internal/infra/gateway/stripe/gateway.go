// Package stripe adapts the Stripe API to the payment gateway port.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"example.com/pod-fulfillment/internal/domain/fault"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe endpoint, e.g. for stripe-mock.
	APIURL  string
	Timeout time.Duration
}

type Gateway struct {
	api           *client.API
	webhookSecret string
	breaker       *gobreaker.CircuitBreaker[any]
	logger        *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	backendCfg := &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripego.String(cfg.APIURL)
	}

	g := &Gateway{
		api: client.New(cfg.SecretKey, &stripego.Backends{
			API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
			Connect: stripego.GetBackendWithConfig(stripego.ConnectBackend, backendCfg),
			Uploads: stripego.GetBackendWithConfig(stripego.UploadsBackend, backendCfg),
		}),
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "stripe",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, dompayment.ErrGatewayRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return g
}

func (g *Gateway) CreateIntent(ctx context.Context, req dompayment.IntentRequest) (*dompayment.Intent, error) {
	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(req.AmountMinor),
		Currency: stripego.String(req.Currency),
		AutomaticPaymentMethods: &stripego.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripego.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	params.SetIdempotencyKey(fmt.Sprintf("order-%d-intent-%d-%s", req.OrderID, req.AmountMinor, req.Currency))

	res, err := g.breaker.Execute(func() (any, error) {
		pi, err := g.api.PaymentIntents.New(params)
		return pi, classify(err)
	})
	if err != nil {
		return nil, breakerErr(err)
	}

	pi := res.(*stripego.PaymentIntent)
	return &dompayment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req dompayment.SessionRequest) (*dompayment.Session, error) {
	orderRef := strconv.FormatInt(req.OrderID, 10)
	metadata := map[string]string{
		"order_id": orderRef,
		"user_id":  strconv.FormatInt(req.UserID, 10),
	}

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		ClientReferenceID: stripego.String(orderRef),
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripego.String(req.Currency),
					UnitAmount: stripego.Int64(req.AmountMinor),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String("Order #" + orderRef),
					},
				},
				Quantity: stripego.Int64(1),
			},
		},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	res, err := g.breaker.Execute(func() (any, error) {
		s, err := g.api.CheckoutSessions.New(params)
		return s, classify(err)
	})
	if err != nil {
		return nil, breakerErr(err)
	}

	s := res.(*stripego.CheckoutSession)
	return &dompayment.Session{ID: s.ID, URL: s.URL}, nil
}

// ParseWebhook checks the Stripe-Signature header against the raw payload
// before decoding anything.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*dompayment.Event, error) {
	if err := webhook.ValidatePayload(payload, signature, g.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %w", dompayment.ErrInvalidSignature, err)
	}

	var ev stripego.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", dompayment.ErrMalformedEvent, err)
	}
	if ev.Data == nil {
		return nil, dompayment.ErrMalformedEvent
	}

	out := &dompayment.Event{ID: ev.ID, Type: string(ev.Type)}
	switch out.Type {
	case dompayment.EventPaymentSucceeded:
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %w", dompayment.ErrMalformedEvent, err)
		}
		out.ObjectID = pi.ID
		out.TransactionID = pi.ID
		out.OrderRef = pi.Metadata["order_id"]
		out.AmountMinor = pi.AmountReceived
		out.Currency = string(pi.Currency)

	case dompayment.EventSessionCompleted:
		var s stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %w", dompayment.ErrMalformedEvent, err)
		}
		out.ObjectID = s.ID
		// The session's payment intent also emits payment_intent.succeeded;
		// sharing its id lets the two deliveries deduplicate.
		out.TransactionID = s.ID
		if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
			out.TransactionID = s.PaymentIntent.ID
		}
		out.OrderRef = s.Metadata["order_id"]
		if out.OrderRef == "" {
			out.OrderRef = s.ClientReferenceID
		}
		out.AmountMinor = s.AmountTotal
		out.Currency = string(s.Currency)
		out.PaymentStatus = string(s.PaymentStatus)
	}
	return out, nil
}

// classify maps Stripe errors onto permanent rejections and transient
// failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		status := stripeErr.HTTPStatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", dompayment.ErrGatewayRejected, stripeErr.Msg)
		}
	}
	// network failures, timeouts and 5xx/429 responses
	return fault.Transient(err)
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fault.Transient(fmt.Errorf("payment gateway unavailable: %w", err))
	}
	return err
}
