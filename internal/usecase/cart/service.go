package cart

import (
	"context"
	"errors"
	"log/slog"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*domproduct.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error)
}

// loadTimeout bounds a shared storage load, which runs detached from the
// request that started it.
const loadTimeout = 5 * time.Second

type Service struct {
	cartRepo    domcart.Repository
	productRepo ProductRepository
	cache       domcart.Cache
	loads       singleflight.Group
	loadTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(cartRepo domcart.Repository, productRepo ProductRepository, cache domcart.Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = domcart.NoopCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		cache:       cache,
		loadTimeout: loadTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) AddItem(ctx context.Context, userID, productID, quantity int64) (*domcart.Item, error) {
	if quantity <= 0 {
		return nil, domcart.ErrInvalidQuantity
	}

	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domproduct.ErrProductNotFound) {
			return nil, domproduct.ErrInvalidProduct
		}
		return nil, err
	}
	if !p.Purchasable() {
		return nil, domproduct.ErrInvalidProduct
	}

	item, err := s.cartRepo.AddOrUpdateItem(ctx, userID, productID, quantity, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	return item, nil
}

func (s *Service) SetQuantity(ctx context.Context, userID, itemID, quantity int64) error {
	if quantity <= 0 {
		return domcart.ErrInvalidQuantity
	}
	if err := s.cartRepo.UpdateQuantity(ctx, userID, itemID, quantity); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) error {
	if err := s.cartRepo.RemoveItem(ctx, userID, itemID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// ListItems joins the cart rows with the live catalog. Rows whose product
// no longer resolves are left out of the view.
func (s *Service) ListItems(ctx context.Context, userID int64) (*domcart.Cart, error) {
	items, err := s.loadItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart := &domcart.Cart{
		UserID: userID,
		Items:  make([]domcart.DetailedItem, 0, len(items)),
		Total:  decimal.Zero,
	}
	if len(items) == 0 {
		return cart, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.productRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*domproduct.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	for _, item := range items {
		p, ok := productMap[item.ProductID]
		if !ok {
			continue
		}
		lineTotal := p.Price.Mul(decimal.NewFromInt(item.Quantity))
		cart.Items = append(cart.Items, domcart.DetailedItem{
			Item:         item,
			ProductName:  p.Name,
			ImageURL:     p.ImageURL,
			ProductPrice: p.Price,
			LineTotal:    lineTotal,
		})
		cart.Total = cart.Total.Add(lineTotal)
	}

	return cart, nil
}

func (s *Service) loadItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	items, err := s.cache.Get(ctx, userID)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, domcart.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "cart cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	version, verErr := s.cache.Version(ctx, userID)
	if verErr != nil {
		s.logger.WarnContext(ctx, "cart cache version read failed", slog.Int64("user_id", userID), slog.Any("error", verErr))
	}

	// Callers that arrive after a mutation see a new version and start their
	// own load instead of joining one that may predate it.
	key := fmt.Sprintf("%d:%d", userID, version)
	ch := s.loads.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		items, err := s.cartRepo.ListItems(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		if verErr != nil {
			return items, nil
		}
		switch err := s.cache.Set(loadCtx, userID, version, items); {
		case errors.Is(err, domcart.ErrCacheStale):
			s.logger.DebugContext(ctx, "cart cache write skipped, cart changed during load", slog.Int64("user_id", userID))
		case err != nil:
			s.logger.WarnContext(ctx, "cart cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return items, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domcart.Item), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invalidate runs after the storage write committed, so it must not be cut
// short by the caller going away.
func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.cache.Delete(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.WarnContext(ctx, "cart cache invalidation failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
