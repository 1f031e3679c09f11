package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `o.id, o.user_id, o.total_amount, o.status, o.order_date,
		o.shipped_date, o.delivered_date, o.shipping_address, o.review_required`

const paymentColumns = `id, order_id, amount, status, method, payment_date, transaction_id`

func scanOrder(row pgx.Row) (*domorder.Order, error) {
	var o domorder.Order
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.OrderDate,
		&o.ShippedDate, &o.DeliveredDate, &o.ShippingAddress, &o.ReviewRequired); err != nil {
		return nil, err
	}
	o.Items = []domorder.OrderItem{}
	o.Payments = []dompayment.Payment{}
	return &o, nil
}

func scanPayment(row pgx.Row) (*dompayment.Payment, error) {
	var p dompayment.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Method, &p.PaymentDate, &p.TransactionID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64, inc domorder.Include) (*domorder.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	if err := r.loadRelated(ctx, []*domorder.Order{o}, inc); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter, inc domorder.Include) ([]*domorder.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o`
	var clauses []string
	var args []any

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if filter.SellerID != nil {
		args = append(args, *filter.SellerID)
		clauses = append(clauses, fmt.Sprintf(`EXISTS (
			SELECT 1 FROM order_items oi
			JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = o.id AND p.seller_id = $%d)`, len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY o.id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domorder.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if orders == nil {
		orders = []*domorder.Order{}
	}

	if err := r.loadRelated(ctx, orders, inc); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) GetPayment(ctx context.Context, orderID, paymentID int64) (*dompayment.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND order_id = $2`, paymentID, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dompayment.ErrPaymentNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return p, nil
}

func (r *OrderRepository) loadRelated(ctx context.Context, orders []*domorder.Order, inc domorder.Include) error {
	if len(orders) == 0 || inc == domorder.IncludeNone {
		return nil
	}

	byID := make(map[int64]*domorder.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	if inc.Has(domorder.IncludeItems) {
		rows, err := r.pool.Query(ctx, `
			SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
			FROM order_items WHERE order_id = ANY($1) ORDER BY id`, ids)
		if err != nil {
			return storageErr(err)
		}
		items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domorder.OrderItem, error) {
			var item domorder.OrderItem
			err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
				&item.Quantity, &item.UnitPrice, &item.TotalPrice)
			return item, err
		})
		if err != nil {
			return storageErr(err)
		}
		for _, item := range items {
			o := byID[item.OrderID]
			o.Items = append(o.Items, item)
		}
	}

	if inc.Has(domorder.IncludePayments) {
		rows, err := r.pool.Query(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE order_id = ANY($1) ORDER BY id`, ids)
		if err != nil {
			return storageErr(err)
		}
		payments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dompayment.Payment, error) {
			return scanPayment(row)
		})
		if err != nil {
			return storageErr(err)
		}
		for _, p := range payments {
			o := byID[p.OrderID]
			o.Payments = append(o.Payments, *p)
		}
	}
	return nil
}
