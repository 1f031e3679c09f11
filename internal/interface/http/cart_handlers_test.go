package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	"example.com/pod-fulfillment/internal/infra/persistence/memory"
)

func TestCart_AddMergesQuantity(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode(t, rec)

	rec = e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	second := decode(t, rec)

	require.Equal(t, first["id"], second["id"])
	require.Equal(t, float64(5), second["quantity"])

	rec = e.do(http.MethodGet, "/api/v1/cart", &e.customer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := decode(t, rec)
	items := cart["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	require.Equal(t, "Mug", line["name"])
	require.Equal(t, "10.00", line["price"])
	require.Equal(t, "50.00", line["line_total"])
	require.Equal(t, "50.00", cart["total"])
}

func TestCart_AddRejectsUnknownOrInactiveProduct(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": 9999, "quantity": 1})
	requireKind(t, rec, http.StatusUnprocessableEntity, kindInvalidProduct)

	e.store.SetProductActive(e.productA.ID, false)
	rec = e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 1})
	requireKind(t, rec, http.StatusUnprocessableEntity, kindInvalidProduct)

	rec = e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productB.ID, "quantity": 0})
	requireKind(t, rec, http.StatusUnprocessableEntity, kindInvalidQuantity)

	rec = e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productB.ID})
	requireKind(t, rec, http.StatusBadRequest, kindBadRequest)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	itemPath := fmt.Sprintf("/api/v1/cart/%d", int64(decode(t, rec)["id"].(float64)))

	rec = e.do(http.MethodPut, itemPath, &e.customer, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPut, itemPath, &e.customer, map[string]any{"quantity": 0})
	requireKind(t, rec, http.StatusUnprocessableEntity, kindInvalidQuantity)

	rec = e.do(http.MethodPut, itemPath, &e.other, map[string]any{"quantity": 2})
	requireKind(t, rec, http.StatusNotFound, kindNotFound)

	rec = e.do(http.MethodDelete, itemPath, &e.other, nil)
	requireKind(t, rec, http.StatusNotFound, kindNotFound)

	rec = e.do(http.MethodDelete, itemPath, &e.customer, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(http.MethodDelete, itemPath, &e.customer, nil)
	requireKind(t, rec, http.StatusNotFound, kindNotFound)

	rec = e.do(http.MethodPut, "/api/v1/cart/abc", &e.customer, map[string]any{"quantity": 1})
	requireKind(t, rec, http.StatusBadRequest, kindBadRequest)
}

func TestCheckout_SnapshotsCart(t *testing.T) {
	e := newTestEnv(t)

	e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 2})
	e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productB.ID, "quantity": 1})

	rec := e.do(http.MethodPost, "/api/v1/cart/checkout", &e.customer, map[string]any{"shipping_address": "1 Main St"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	order := decode(t, rec)
	require.Equal(t, "PENDING", order["status"])
	require.Equal(t, "45.00", order["total_amount"])
	require.Equal(t, "1 Main St", order["shipping_address"])
	require.Empty(t, order["payments"])

	totals := []string{}
	for _, raw := range order["items"].([]any) {
		totals = append(totals, raw.(map[string]any)["total_price"].(string))
	}
	require.ElementsMatch(t, []string{"20.00", "25.00"}, totals)

	rec = e.do(http.MethodGet, "/api/v1/cart", &e.customer, nil)
	require.Empty(t, decode(t, rec)["items"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/api/v1/cart/checkout", &e.customer, map[string]any{"shipping_address": "1 Main St"})
	requireKind(t, rec, http.StatusUnprocessableEntity, kindEmptyCart)

	orders, err := e.store.Orders().List(context.Background(), domorder.ListFilter{}, domorder.IncludeNone)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCheckout_StorageFailureKeepsCart(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "transient", err: fault.Transient(errors.New("deadlock found")), status: http.StatusServiceUnavailable, kind: kindTransient},
		{name: "unexpected", err: errors.New("disk full"), status: http.StatusInternalServerError, kind: kindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.do(http.MethodPost, "/api/v1/cart", &e.customer, map[string]any{"product_id": e.productA.ID, "quantity": 2})
			e.store.InjectFault(memory.OpDeleteCartItems, tt.err)

			rec := e.do(http.MethodPost, "/api/v1/cart/checkout", &e.customer, map[string]any{"shipping_address": "1 Main St"})
			requireKind(t, rec, tt.status, tt.kind)
			require.NotContains(t, rec.Body.String(), tt.err.Error())
			if tt.status == http.StatusServiceUnavailable {
				require.Equal(t, retryAfter, rec.Header().Get("Retry-After"))
			}

			rec = e.do(http.MethodGet, "/api/v1/cart", &e.customer, nil)
			require.Len(t, decode(t, rec)["items"], 1)

			e.store.InjectFault(memory.OpDeleteCartItems, nil)
			rec = e.do(http.MethodPost, "/api/v1/cart/checkout", &e.customer, map[string]any{"shipping_address": "1 Main St"})
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		})
	}
}
