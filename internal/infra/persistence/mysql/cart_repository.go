package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
)

type CartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) *CartRepository {
	return &CartRepository{db: db}
}

// AddOrUpdateItem relies on the (user_id, product_id) unique key so that
// concurrent adds of the same product merge into one row.
func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID, quantity int64, addedAt time.Time) (*domcart.Item, error) {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO cart_items (user_id, product_id, quantity, added_at)
        VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE quantity = quantity + VALUES(quantity)
    `, userID, productID, quantity, addedAt)
	if err != nil {
		return nil, storageErr(err)
	}

	row := r.db.QueryRowContext(ctx, `
        SELECT id, user_id, product_id, quantity, added_at
        FROM cart_items
        WHERE user_id = ? AND product_id = ?
    `, userID, productID)

	var item domcart.Item
	if err := row.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// removed by a concurrent request between the two statements
			return nil, domcart.ErrCartItemNotFound
		}
		return nil, storageErr(err)
	}
	return &item, nil
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID, quantity int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE cart_items SET quantity = ?
        WHERE id = ? AND user_id = ?
    `, quantity, itemID, userID)
	if err != nil {
		return storageErr(err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domcart.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ? AND user_id = ?`, itemID, userID)
	if err != nil {
		return storageErr(err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domcart.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, user_id, product_id, quantity, added_at
        FROM cart_items
        WHERE user_id = ?
        ORDER BY added_at, id
    `, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	items := []domcart.Item{}
	for rows.Next() {
		var item domcart.Item
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, storageErr(rows.Err())
}
