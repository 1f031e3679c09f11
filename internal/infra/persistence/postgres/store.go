package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

// Store implements domorder.Store. Checkouts of one user are serialized by
// a transaction-scoped advisory lock keyed by the user id; payment
// application by the order row lock.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storageErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return storageErr(err)
	}
	return storageErr(tx.Commit(ctx))
}

func (s *Store) Checkout(ctx context.Context, userID int64, fn func(tx domorder.CheckoutTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
			return err
		}
		return fn(&checkoutTx{tx: tx, userID: userID})
	})
}

func (s *Store) WithOrderLock(ctx context.Context, orderID int64, fn func(tx domorder.OrderTx) error) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, orderID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domorder.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		return fn(&orderTx{tx: tx, order: o})
	})
}

type checkoutTx struct {
	tx     pgx.Tx
	userID int64
}

func (c *checkoutTx) CartLines(ctx context.Context) ([]domcart.Line, error) {
	rows, err := c.tx.Query(ctx, `
		SELECT ci.id, ci.user_id, ci.product_id, ci.quantity, ci.added_at,
		       p.id, p.seller_id, p.name, p.image_url, p.price, p.is_active
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.user_id = $1
		ORDER BY ci.id
		FOR UPDATE OF ci`, c.userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domcart.Line, error) {
		var line domcart.Line
		var (
			pID, sellerID  *int64
			name, imageURL *string
			price          decimal.NullDecimal
			active         *bool
		)
		if err := row.Scan(&line.Item.ID, &line.Item.UserID, &line.Item.ProductID, &line.Item.Quantity, &line.Item.AddedAt,
			&pID, &sellerID, &name, &imageURL, &price, &active); err != nil {
			return line, err
		}
		if pID != nil {
			line.Product = &domproduct.Product{
				ID:       *pID,
				SellerID: *sellerID,
				Name:     *name,
				ImageURL: *imageURL,
				Price:    price.Decimal,
				IsActive: *active,
			}
		}
		return line, nil
	})
}

func (c *checkoutTx) InsertOrder(ctx context.Context, o *domorder.Order) error {
	err := c.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, order_date, shipping_address, review_required)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		o.UserID, o.TotalAmount, o.Status, o.OrderDate, o.ShippingAddress, o.ReviewRequired,
	).Scan(&o.ID)
	if err != nil {
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := c.tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			item.OrderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.TotalPrice,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *checkoutTx) DeleteCartItems(ctx context.Context, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := c.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND id = ANY($2)`, c.userID, itemIDs)
	return err
}

func (c *checkoutTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	return insertEvent(ctx, c.tx, ev)
}

type orderTx struct {
	tx    pgx.Tx
	order *domorder.Order
}

func (o *orderTx) Order() *domorder.Order {
	return o.order
}

func (o *orderTx) FindCompletedPayment(ctx context.Context, transactionID string) (*dompayment.Payment, error) {
	p, err := scanPayment(o.tx.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE order_id = $1 AND transaction_id = $2 AND status = $3`,
		o.order.ID, transactionID, dompayment.StatusCompleted))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dompayment.ErrPaymentNotFound
	}
	return p, err
}

// InsertPayment uses a savepoint so a unique violation does not abort the
// enclosing transaction.
func (o *orderTx) InsertPayment(ctx context.Context, p *dompayment.Payment) error {
	sp, err := o.tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sp.Rollback(ctx) }()

	err = sp.QueryRow(ctx, `
		INSERT INTO payments (order_id, amount, status, method, payment_date, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		p.OrderID, p.Amount, p.Status, p.Method, p.PaymentDate, p.TransactionID,
	).Scan(&p.ID)
	if err != nil {
		if isDuplicate(err) {
			return dompayment.ErrDuplicateTransaction
		}
		return err
	}
	return sp.Commit(ctx)
}

func (o *orderTx) CompletedTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := o.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE order_id = $1 AND status = $2`,
		o.order.ID, dompayment.StatusCompleted,
	).Scan(&total)
	return total, err
}

func (o *orderTx) SaveStatus(ctx context.Context, ord *domorder.Order) error {
	_, err := o.tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, shipped_date = $2, delivered_date = $3, review_required = $4
		WHERE id = $5`,
		ord.Status, ord.ShippedDate, ord.DeliveredDate, ord.ReviewRequired, ord.ID)
	return err
}

func (o *orderTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	return insertEvent(ctx, o.tx, ev)
}
