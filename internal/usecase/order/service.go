package order

import (
	"context"
	"log/slog"
	"time"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
)

type ProductRepository interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error)
}

type Service struct {
	repo     domorder.Repository
	store    domorder.Store
	products ProductRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo domorder.Repository, store domorder.Store, products ProductRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		store:    store,
		products: products,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns the orders visible to the actor: all of them for admins,
// orders containing their products for sellers, their own for customers.
func (s *Service) List(ctx context.Context, actor domuser.Actor) ([]*domorder.Order, error) {
	var filter domorder.ListFilter
	switch {
	case actor.RoleCode.IsAdmin():
	case actor.RoleCode.IsSeller():
		filter.SellerID = &actor.UserID
	default:
		filter.UserID = &actor.UserID
	}
	return s.repo.List(ctx, filter, domorder.IncludeItems)
}

func (s *Service) GetByID(ctx context.Context, actor domuser.Actor, id int64) (*domorder.Order, error) {
	o, err := s.repo.GetByID(ctx, id, domorder.IncludeAll)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) GetPayment(ctx context.Context, actor domuser.Actor, orderID, paymentID int64) (*dompayment.Payment, error) {
	o, err := s.repo.GetByID(ctx, orderID, domorder.IncludeItems)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, o); err != nil {
		return nil, err
	}
	return s.repo.GetPayment(ctx, orderID, paymentID)
}

// authorize needs o.Items loaded for the seller check.
func (s *Service) authorize(ctx context.Context, actor domuser.Actor, o *domorder.Order) error {
	if actor.RoleCode.IsAdmin() || o.UserID == actor.UserID {
		return nil
	}
	if !actor.RoleCode.IsSeller() || len(o.Items) == 0 {
		return fault.ErrForbidden
	}

	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	own := make(map[int64]bool, len(products))
	for _, p := range products {
		if p.SellerID == actor.UserID {
			own[p.ID] = true
		}
	}
	if !o.ContainsProduct(own) {
		return fault.ErrForbidden
	}
	return nil
}

// UpdateStatus applies an administrative fulfillment transition. Moving to
// Processing is reserved for payment settlement.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status domorder.Status) (*domorder.Order, error) {
	if !status.IsValid() {
		return nil, domorder.ErrInvalidStatus
	}
	if status == domorder.StatusProcessing || status == domorder.StatusPending {
		return nil, domorder.ErrInvalidStatusTransition
	}

	var from domorder.Status
	err := s.store.WithOrderLock(ctx, id, func(tx domorder.OrderTx) error {
		o := tx.Order()
		from = o.Status
		if err := o.TransitionTo(status, s.now().UTC()); err != nil {
			return err
		}
		return tx.SaveStatus(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.Int64("order_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(status)),
	)
	return s.repo.GetByID(ctx, id, domorder.IncludeAll)
}
