package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
)

type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID, quantity int64, addedAt time.Time) (*domcart.Item, error) {
	var item domcart.Item
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, user_id, product_id, quantity, added_at`,
		userID, productID, quantity, addedAt,
	).Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt)
	if err != nil {
		return nil, storageErr(err)
	}
	return &item, nil
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID, quantity int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cart_items SET quantity = $1 WHERE id = $2 AND user_id = $3`, quantity, itemID, userID)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domcart.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, itemID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domcart.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, product_id, quantity, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, id`, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domcart.Item, error) {
		var item domcart.Item
		err := row.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt)
		return item, err
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if items == nil {
		items = []domcart.Item{}
	}
	return items, nil
}
