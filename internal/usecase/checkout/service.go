package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

const maxShippingAddressLen = 500

type Metrics interface {
	CheckoutCompleted()
	CheckoutFailed(reason string)
}

type noopMetrics struct{}

func (noopMetrics) CheckoutCompleted()    {}
func (noopMetrics) CheckoutFailed(string) {}

type Service struct {
	store   domorder.Store
	cache   domcart.Cache
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store domorder.Store, cache domcart.Cache, metrics Metrics, logger *slog.Logger) *Service {
	if cache == nil {
		cache = domcart.NoopCache{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Checkout converts the user's cart into a pending order. Reading the cart,
// inserting the order and deleting the consumed rows happen in one
// transaction: either all of it is persisted or none of it is.
func (s *Service) Checkout(ctx context.Context, userID int64, shippingAddress string) (*domorder.Order, error) {
	address := strings.TrimSpace(shippingAddress)
	if address == "" || utf8.RuneCountInString(address) > maxShippingAddressLen {
		return nil, domorder.ErrInvalidShippingAddress
	}

	var placed *domorder.Order
	err := s.store.Checkout(ctx, userID, func(tx domorder.CheckoutTx) error {
		lines, err := tx.CartLines(ctx)
		if err != nil {
			return err
		}

		o, err := domorder.NewFromCart(userID, address, lines, s.now().UTC())
		if err != nil {
			return err
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}

		itemIDs := make([]int64, 0, len(lines))
		for _, line := range lines {
			itemIDs = append(itemIDs, line.Item.ID)
		}
		if err := tx.DeleteCartItems(ctx, itemIDs); err != nil {
			return err
		}

		ev, err := domoutbox.NewOrderEvent(domoutbox.TopicOrderPlaced, o.ID, orderPlacedPayload(o), o.OrderDate)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}

		placed = o
		return nil
	})
	if err != nil {
		s.metrics.CheckoutFailed(failureReason(err))
		if errors.Is(err, domorder.ErrEmptyCart) {
			return nil, err
		}
		s.logger.WarnContext(ctx, "checkout failed", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	if err := s.cache.Delete(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.WarnContext(ctx, "cart cache invalidation failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	s.metrics.CheckoutCompleted()
	s.logger.InfoContext(ctx, "order placed",
		slog.Int64("order_id", placed.ID),
		slog.Int64("user_id", userID),
		slog.String("total_amount", placed.TotalAmount.StringFixed(2)),
		slog.Int("items", len(placed.Items)),
	)
	return placed, nil
}

func orderPlacedPayload(o *domorder.Order) domoutbox.OrderPlaced {
	items := make([]domoutbox.OrderPlacedItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, domoutbox.OrderPlacedItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}
	return domoutbox.OrderPlaced{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount.StringFixed(2),
		OrderDate:   o.OrderDate,
		Items:       items,
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domorder.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domproduct.ErrInvalidProduct):
		return "invalid_product"
	case errors.Is(err, domcart.ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "error"
	}
}
