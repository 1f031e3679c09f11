package http

import (
	"time"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domuser "example.com/pod-fulfillment/internal/domain/user"
)

// Amounts are rendered as fixed two-decimal strings.

func mapUser(u *domuser.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"role_code": u.RoleCode,
	}
}

func mapCartItem(item *domcart.Item) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"added_at":   item.AddedAt,
	}
}

func mapCart(cart *domcart.Cart) map[string]any {
	items := make([]map[string]any, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, map[string]any{
			"id":         item.ID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"added_at":   item.AddedAt,
			"name":       item.ProductName,
			"image_url":  item.ImageURL,
			"price":      item.ProductPrice.StringFixed(2),
			"line_total": item.LineTotal.StringFixed(2),
		})
	}
	return map[string]any{
		"user_id": cart.UserID,
		"items":   items,
		"total":   cart.Total.StringFixed(2),
	}
}

func mapPayment(p *dompayment.Payment) map[string]any {
	return map[string]any{
		"id":             p.ID,
		"order_id":       p.OrderID,
		"amount":         p.Amount.StringFixed(2),
		"status":         p.Status,
		"method":         p.Method,
		"payment_date":   p.PaymentDate,
		"transaction_id": p.TransactionID,
	}
}

func mapOrder(o *domorder.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, map[string]any{
			"id":           item.ID,
			"product_id":   item.ProductID,
			"product_name": item.ProductName,
			"quantity":     item.Quantity,
			"unit_price":   item.UnitPrice.StringFixed(2),
			"total_price":  item.TotalPrice.StringFixed(2),
		})
	}
	payments := make([]map[string]any, 0, len(o.Payments))
	for i := range o.Payments {
		payments = append(payments, mapPayment(&o.Payments[i]))
	}

	return map[string]any{
		"id":               o.ID,
		"user_id":          o.UserID,
		"status":           o.Status,
		"total_amount":     o.TotalAmount.StringFixed(2),
		"order_date":       o.OrderDate,
		"shipped_date":     optionalTime(o.ShippedDate),
		"delivered_date":   optionalTime(o.DeliveredDate),
		"shipping_address": o.ShippingAddress,
		"review_required":  o.ReviewRequired,
		"items":            items,
		"payments":         payments,
	}
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
