package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `o.id, o.user_id, o.total_amount, o.status, o.order_date,
        o.shipped_date, o.delivered_date, o.shipping_address, o.review_required`

const paymentColumns = `id, order_id, amount, status, method, payment_date, transaction_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domorder.Order, error) {
	var o domorder.Order
	var shipped, delivered sql.NullTime
	if err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.OrderDate,
		&shipped, &delivered, &o.ShippingAddress, &o.ReviewRequired); err != nil {
		return nil, err
	}
	if shipped.Valid {
		o.ShippedDate = &shipped.Time
	}
	if delivered.Valid {
		o.DeliveredDate = &delivered.Time
	}
	o.Items = []domorder.OrderItem{}
	o.Payments = []dompayment.Payment{}
	return &o, nil
}

func scanPayment(row rowScanner) (*dompayment.Payment, error) {
	var p dompayment.Payment
	if err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Status, &p.Method, &p.PaymentDate, &p.TransactionID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64, inc domorder.Include) (*domorder.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `
        SELECT `+orderColumns+`
        FROM orders o WHERE o.id = ?
    `, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domorder.ErrOrderNotFound
		}
		return nil, storageErr(err)
	}
	if err := r.loadRelated(ctx, []*domorder.Order{o}, inc); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter, inc domorder.Include) ([]*domorder.Order, error) {
	query := `
        SELECT ` + orderColumns + `
        FROM orders o
    `
	var clauses []string
	var args []any

	if filter.UserID != nil {
		clauses = append(clauses, "o.user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.SellerID != nil {
		clauses = append(clauses, `EXISTS (
            SELECT 1 FROM order_items oi
            JOIN products p ON p.id = oi.product_id
            WHERE oi.order_id = o.id AND p.seller_id = ?)`)
		args = append(args, *filter.SellerID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY o.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	orders := []*domorder.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}

	if err := r.loadRelated(ctx, orders, inc); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) GetPayment(ctx context.Context, orderID, paymentID int64) (*dompayment.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
        SELECT `+paymentColumns+`
        FROM payments WHERE id = ? AND order_id = ?
    `, paymentID, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dompayment.ErrPaymentNotFound
		}
		return nil, storageErr(err)
	}
	return p, nil
}

// loadRelated fills items and payments for all orders with one query per
// relation.
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
	in, args := inClause(ids)

	if inc.Has(domorder.IncludeItems) {
		rows, err := r.db.QueryContext(ctx, `
            SELECT id, order_id, product_id, product_name, quantity, unit_price, total_price
            FROM order_items WHERE order_id IN `+in+` ORDER BY id`, args...)
		if err != nil {
			return storageErr(err)
		}
		for rows.Next() {
			var item domorder.OrderItem
			if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName,
				&item.Quantity, &item.UnitPrice, &item.TotalPrice); err != nil {
				rows.Close()
				return err
			}
			o := byID[item.OrderID]
			o.Items = append(o.Items, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr(err)
		}
	}

	if inc.Has(domorder.IncludePayments) {
		rows, err := r.db.QueryContext(ctx, `
            SELECT `+paymentColumns+`
            FROM payments WHERE order_id IN `+in+` ORDER BY id`, args...)
		if err != nil {
			return storageErr(err)
		}
		for rows.Next() {
			p, err := scanPayment(rows)
			if err != nil {
				rows.Close()
				return err
			}
			o := byID[p.OrderID]
			o.Payments = append(o.Payments, *p)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return storageErr(err)
		}
	}
	return nil
}
