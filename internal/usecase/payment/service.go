package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

// Gateway is the boundary to the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req dompayment.IntentRequest) (*dompayment.Intent, error)
	CreateCheckoutSession(ctx context.Context, req dompayment.SessionRequest) (*dompayment.Session, error)
	// ParseWebhook verifies the signature before reading the payload. It
	// returns ErrInvalidSignature or ErrMalformedEvent.
	ParseWebhook(payload []byte, signature string) (*dompayment.Event, error)
}

type OrderRepository interface {
	GetByID(ctx context.Context, id int64, inc domorder.Include) (*domorder.Order, error)
}

type Metrics interface {
	WebhookHandled(outcome string)
	PaymentRecorded(source string)
	OrderPaid()
	ReviewFlagged(reason string)
}

type noopMetrics struct{}

func (noopMetrics) WebhookHandled(string)  {}
func (noopMetrics) PaymentRecorded(string) {}
func (noopMetrics) OrderPaid()             {}
func (noopMetrics) ReviewFlagged(string)   {}

type Config struct {
	Currency       string
	PublishableKey string
	SuccessURL     string
	CancelURL      string
	GatewayTimeout time.Duration
}

type Service struct {
	store   domorder.Store
	orders  OrderRepository
	gateway Gateway
	cfg     Config
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(
	store domorder.Store,
	orders OrderRepository,
	gateway Gateway,
	cfg Config,
	metrics Metrics,
	logger *slog.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		orders:  orders,
		gateway: gateway,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

const (
	sourceWebhook = "webhook"
	sourceDirect  = "direct"
)

// recordOutcome tells whether a completed payment was new or a repeat of
// one already on the order.
type recordOutcome struct {
	payment   *dompayment.Payment
	duplicate bool
	advanced  bool
	review    string
}

// observe reports a committed outcome to metrics.
func (s *Service) observe(out recordOutcome, source string) {
	if out.duplicate {
		return
	}
	s.metrics.PaymentRecorded(source)
	if out.advanced {
		s.metrics.OrderPaid()
	}
	if out.review != "" {
		s.metrics.ReviewFlagged(out.review)
	}
}

// recordCompleted inserts a completed payment on the locked order and
// settles the order against the new cumulative total. A transaction id
// already completed on this order is returned as a duplicate with no
// mutation.
func (s *Service) recordCompleted(ctx context.Context, tx domorder.OrderTx, p *dompayment.Payment) (recordOutcome, error) {
	existing, err := tx.FindCompletedPayment(ctx, p.TransactionID)
	if err == nil {
		return recordOutcome{payment: existing, duplicate: true}, nil
	}
	if !errors.Is(err, dompayment.ErrPaymentNotFound) {
		return recordOutcome{}, err
	}

	if err := tx.InsertPayment(ctx, p); err != nil {
		return recordOutcome{}, err
	}

	paid, err := tx.CompletedTotal(ctx)
	if err != nil {
		return recordOutcome{}, err
	}

	o := tx.Order()
	settlement := o.Settle(paid)
	changed := false

	if settlement.Advance {
		if err := o.TransitionTo(domorder.StatusProcessing, p.PaymentDate); err != nil {
			return recordOutcome{}, err
		}
		ev, err := domoutbox.NewOrderEvent(domoutbox.TopicOrderPaid, o.ID, domoutbox.OrderPaid{
			OrderID:       o.ID,
			UserID:        o.UserID,
			TotalAmount:   o.TotalAmount.StringFixed(2),
			PaidAmount:    paid.StringFixed(2),
			TransactionID: p.TransactionID,
			PaidAt:        p.PaymentDate,
		}, p.PaymentDate)
		if err != nil {
			return recordOutcome{}, err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return recordOutcome{}, err
		}
		changed = true
	}

	out := recordOutcome{payment: p, advanced: settlement.Advance}
	if settlement.ReviewRequired && !o.ReviewRequired {
		o.ReviewRequired = true
		changed = true
		out.review = settlement.ReviewReason
		s.logger.WarnContext(ctx, "order flagged for review",
			slog.Int64("order_id", o.ID),
			slog.String("reason", settlement.ReviewReason),
			slog.String("total_amount", o.TotalAmount.StringFixed(2)),
			slog.String("paid_amount", paid.StringFixed(2)),
		)
	}

	if changed {
		if err := tx.SaveStatus(ctx, o); err != nil {
			return recordOutcome{}, err
		}
	}

	return out, nil
}

// permanent lists the failures that retrying cannot fix.
var permanent = []error{
	dompayment.ErrInvalidSignature,
	dompayment.ErrMalformedEvent,
	dompayment.ErrMissingOrderReference,
	dompayment.ErrDuplicateTransaction,
	dompayment.ErrInvalidAmount,
	dompayment.ErrInvalidMethod,
	dompayment.ErrTransactionIDRequired,
	dompayment.ErrGatewayRejected,
	domorder.ErrOrderNotFound,
	domorder.ErrOrderNotPayable,
	domorder.ErrInvalidStatusTransition,
	fault.ErrForbidden,
}

// classify marks every failure outside the permanent set as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return err
		}
	}
	return fault.Transient(err)
}
