package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"example.com/pod-fulfillment/internal/domain/fault"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
	"example.com/pod-fulfillment/internal/infra/persistence/memory"
)

const (
	customerID      int64 = 100
	otherCustomerID int64 = 101
	sellerID        int64 = 200
	otherSellerID   int64 = 201
	adminID         int64 = 300
)

var (
	customer      = domuser.Actor{UserID: customerID, RoleCode: domuser.RoleCodeCustomer}
	otherCustomer = domuser.Actor{UserID: otherCustomerID, RoleCode: domuser.RoleCodeCustomer}
	seller        = domuser.Actor{UserID: sellerID, RoleCode: domuser.RoleCodeSeller}
	otherSeller   = domuser.Actor{UserID: otherSellerID, RoleCode: domuser.RoleCodeSeller}
	admin         = domuser.Actor{UserID: adminID, RoleCode: domuser.RoleCodeAdmin}
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	product domproduct.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store: store,
		product: store.AddProduct(domproduct.Product{
			SellerID: sellerID,
			Name:     "Mug",
			Price:    decimal.RequireFromString("12.00"),
			IsActive: true,
		}),
	}
	f.svc = NewService(store.Orders(), store, store.Products(), nil)
	return f
}

// placeOrder checks out one unit of the fixture product for userID.
func (f *fixture) placeOrder(t *testing.T, userID int64) *domorder.Order {
	t.Helper()
	ctx := context.Background()
	_, err := f.store.Carts().AddOrUpdateItem(ctx, userID, f.product.ID, 1, time.Now())
	require.NoError(t, err)

	var placed *domorder.Order
	err = f.store.Checkout(ctx, userID, func(tx domorder.CheckoutTx) error {
		lines, err := tx.CartLines(ctx)
		if err != nil {
			return err
		}
		o, err := domorder.NewFromCart(userID, "1 Main St", lines, time.Now().UTC())
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		placed = o
		return tx.DeleteCartItems(ctx, []int64{lines[0].Item.ID})
	})
	require.NoError(t, err)
	return placed
}

func (f *fixture) setStatus(t *testing.T, id int64, status domorder.Status) {
	t.Helper()
	err := f.store.WithOrderLock(context.Background(), id, func(tx domorder.OrderTx) error {
		o := tx.Order()
		o.Status = status
		return tx.SaveStatus(context.Background(), o)
	})
	require.NoError(t, err)
}

func TestGetByID_AccessPolicy(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerID)

	tests := []struct {
		name    string
		actor   domuser.Actor
		wantErr error
	}{
		{name: "owner", actor: customer},
		{name: "admin", actor: admin},
		{name: "seller of an item", actor: seller},
		{name: "other customer", actor: otherCustomer, wantErr: fault.ErrForbidden},
		{name: "unrelated seller", actor: otherSeller, wantErr: fault.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetByID(context.Background(), tt.actor, o.ID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, got)
				return
			}
			require.NoError(t, err)
			require.Equal(t, o.ID, got.ID)
			require.Len(t, got.Items, 1)
			require.NotNil(t, got.Payments)
		})
	}
}

func TestGetByID_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByID(context.Background(), admin, 999)

	require.ErrorIs(t, err, domorder.ErrOrderNotFound)
}

func TestList_ScopedByRole(t *testing.T) {
	f := newFixture(t)
	mine := f.placeOrder(t, customerID)
	theirs := f.placeOrder(t, otherCustomerID)

	other := f.store.AddProduct(domproduct.Product{SellerID: otherSellerID, Name: "Tote", Price: decimal.NewFromInt(5), IsActive: true})
	f.product = other
	unrelated := f.placeOrder(t, otherCustomerID)

	ids := func(orders []*domorder.Order) []int64 {
		out := make([]int64, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.ID)
		}
		return out
	}

	got, err := f.svc.List(context.Background(), customer)
	require.NoError(t, err)
	require.Equal(t, []int64{mine.ID}, ids(got))

	got, err = f.svc.List(context.Background(), seller)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{mine.ID, theirs.ID}, ids(got))

	got, err = f.svc.List(context.Background(), otherSeller)
	require.NoError(t, err)
	require.Equal(t, []int64{unrelated.ID}, ids(got))

	got, err = f.svc.List(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestGetPayment(t *testing.T) {
	f := newFixture(t)
	o := f.placeOrder(t, customerID)
	ctx := context.Background()

	p := &dompayment.Payment{
		OrderID:       o.ID,
		Amount:        decimal.RequireFromString("12.00"),
		Status:        dompayment.StatusCompleted,
		Method:        dompayment.MethodCard,
		PaymentDate:   time.Now(),
		TransactionID: "txn_1",
	}
	require.NoError(t, f.store.WithOrderLock(ctx, o.ID, func(tx domorder.OrderTx) error {
		return tx.InsertPayment(ctx, p)
	}))

	got, err := f.svc.GetPayment(ctx, customer, o.ID, p.ID)
	require.NoError(t, err)
	require.Equal(t, "txn_1", got.TransactionID)

	_, err = f.svc.GetPayment(ctx, otherCustomer, o.ID, p.ID)
	require.ErrorIs(t, err, fault.ErrForbidden)

	_, err = f.svc.GetPayment(ctx, customer, o.ID, p.ID+1000)
	require.ErrorIs(t, err, dompayment.ErrPaymentNotFound)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domorder.Status
		to      domorder.Status
		wantErr error
	}{
		{name: "cancel pending", from: domorder.StatusPending, to: domorder.StatusCancelled},
		{name: "ship processing", from: domorder.StatusProcessing, to: domorder.StatusShipped},
		{name: "cancel processing", from: domorder.StatusProcessing, to: domorder.StatusCancelled},
		{name: "deliver shipped", from: domorder.StatusShipped, to: domorder.StatusDelivered},
		{name: "manual processing", from: domorder.StatusPending, to: domorder.StatusProcessing, wantErr: domorder.ErrInvalidStatusTransition},
		{name: "back to pending", from: domorder.StatusProcessing, to: domorder.StatusPending, wantErr: domorder.ErrInvalidStatusTransition},
		{name: "ship pending", from: domorder.StatusPending, to: domorder.StatusShipped, wantErr: domorder.ErrInvalidStatusTransition},
		{name: "cancel shipped", from: domorder.StatusShipped, to: domorder.StatusCancelled, wantErr: domorder.ErrInvalidStatusTransition},
		{name: "reopen cancelled", from: domorder.StatusCancelled, to: domorder.StatusShipped, wantErr: domorder.ErrInvalidStatusTransition},
		{name: "unknown status", from: domorder.StatusPending, to: domorder.Status("LOST"), wantErr: domorder.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.placeOrder(t, customerID)
			f.setStatus(t, o.ID, tt.from)

			got, err := f.svc.UpdateStatus(context.Background(), o.ID, tt.to)

			stored, getErr := f.store.Orders().GetByID(context.Background(), o.ID, domorder.IncludeNone)
			require.NoError(t, getErr)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Equal(t, tt.from, stored.Status)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.to, got.Status)
			require.Equal(t, tt.to, stored.Status)
		})
	}
}

func TestUpdateStatus_StampsDates(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return at }
	o := f.placeOrder(t, customerID)
	f.setStatus(t, o.ID, domorder.StatusProcessing)

	shipped, err := f.svc.UpdateStatus(context.Background(), o.ID, domorder.StatusShipped)
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedDate)
	require.True(t, at.Equal(*shipped.ShippedDate))
	require.Nil(t, shipped.DeliveredDate)

	delivered, err := f.svc.UpdateStatus(context.Background(), o.ID, domorder.StatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredDate)
}

func TestUpdateStatus_Failures(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), 999, domorder.StatusCancelled)
	require.ErrorIs(t, err, domorder.ErrOrderNotFound)

	o := f.placeOrder(t, customerID)
	f.store.InjectFault(memory.OpSaveStatus, errors.New("db down"))

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, domorder.StatusCancelled)
	require.EqualError(t, err, "db down")

	f.store.InjectFault(memory.OpSaveStatus, nil)
	stored, err := f.store.Orders().GetByID(context.Background(), o.ID, domorder.IncludeNone)
	require.NoError(t, err)
	require.Equal(t, domorder.StatusPending, stored.Status)
}
