package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

// Store implements domorder.Store with InnoDB row locks.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return storageErr(err)
	}
	return storageErr(tx.Commit())
}

// Checkout locks the user's cart rows, including the gap where new rows
// for the user would go, so concurrent checkouts and cart edits of the
// same user wait for this transaction.
func (s *Store) Checkout(ctx context.Context, userID int64, fn func(tx domorder.CheckoutTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&checkoutTx{tx: tx, userID: userID})
	})
}

func (s *Store) WithOrderLock(ctx context.Context, orderID int64, fn func(tx domorder.OrderTx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx, `
            SELECT `+orderColumns+`
            FROM orders o WHERE o.id = ?
            FOR UPDATE
        `, orderID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domorder.ErrOrderNotFound
			}
			return err
		}
		return fn(&orderTx{tx: tx, order: o})
	})
}

type checkoutTx struct {
	tx     *sql.Tx
	userID int64
}

func (c *checkoutTx) CartLines(ctx context.Context) ([]domcart.Line, error) {
	rows, err := c.tx.QueryContext(ctx, `
        SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.added_at,
               p.id, p.seller_id, p.name, p.image_url, p.price, p.is_active
        FROM cart_items ci
        LEFT JOIN products p ON p.id = ci.product_id
        WHERE ci.user_id = ?
        ORDER BY ci.id
        FOR UPDATE OF ci
    `, c.userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domcart.Line
	for rows.Next() {
		var line domcart.Line
		var (
			pID, sellerID  sql.NullInt64
			name, imageURL sql.NullString
			price          decimal.NullDecimal
			active         sql.NullBool
		)
		if err := rows.Scan(&line.Item.ID, &line.Item.UserID, &line.Item.ProductID, &line.Item.Quantity, &line.Item.AddedAt,
			&pID, &sellerID, &name, &imageURL, &price, &active); err != nil {
			return nil, err
		}
		if pID.Valid {
			line.Product = &domproduct.Product{
				ID:       pID.Int64,
				SellerID: sellerID.Int64,
				Name:     name.String,
				ImageURL: imageURL.String,
				Price:    price.Decimal,
				IsActive: active.Bool,
			}
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (c *checkoutTx) InsertOrder(ctx context.Context, o *domorder.Order) error {
	res, err := c.tx.ExecContext(ctx, `
        INSERT INTO orders (user_id, total_amount, status, order_date, shipping_address, review_required)
        VALUES (?, ?, ?, ?, ?, ?)
    `, o.UserID, o.TotalAmount, o.Status, o.OrderDate, o.ShippingAddress, o.ReviewRequired)
	if err != nil {
		return err
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		res, err := c.tx.ExecContext(ctx, `
            INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
            VALUES (?, ?, ?, ?, ?, ?)
        `, item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return err
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func (c *checkoutTx) DeleteCartItems(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	in, args := inClause(itemIDs)
	_, err := c.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ? AND id IN `+in,
		append([]any{c.userID}, args...)...)
	return err
}

func (c *checkoutTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	return insertEvent(ctx, c.tx, ev)
}

type orderTx struct {
	tx    *sql.Tx
	order *domorder.Order
}

func (o *orderTx) Order() *domorder.Order {
	return o.order
}

func (o *orderTx) FindCompletedPayment(ctx context.Context, transactionID string) (*dompayment.Payment, error) {
	p, err := scanPayment(o.tx.QueryRowContext(ctx, `
        SELECT `+paymentColumns+`
        FROM payments
        WHERE order_id = ? AND transaction_id = ? AND status = ?
    `, o.order.ID, transactionID, dompayment.StatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dompayment.ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (o *orderTx) InsertPayment(ctx context.Context, p *dompayment.Payment) error {
	res, err := o.tx.ExecContext(ctx, `
        INSERT INTO payments (order_id, amount, status, method, payment_date, transaction_id)
        VALUES (?, ?, ?, ?, ?, ?)
    `, p.OrderID, p.Amount, p.Status, p.Method, p.PaymentDate, p.TransactionID)
	if err != nil {
		if isDuplicate(err) {
			return dompayment.ErrDuplicateTransaction
		}
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (o *orderTx) CompletedTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := o.tx.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(amount), 0)
        FROM payments
        WHERE order_id = ? AND status = ?
    `, o.order.ID, dompayment.StatusCompleted).Scan(&total)
	return total, err
}

func (o *orderTx) SaveStatus(ctx context.Context, ord *domorder.Order) error {
	_, err := o.tx.ExecContext(ctx, `
        UPDATE orders
        SET status = ?, shipped_date = ?, delivered_date = ?, review_required = ?
        WHERE id = ?
    `, ord.Status, nullTime(ord.ShippedDate), nullTime(ord.DeliveredDate), ord.ReviewRequired, ord.ID)
	return err
}

func (o *orderTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	return insertEvent(ctx, o.tx, ev)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
