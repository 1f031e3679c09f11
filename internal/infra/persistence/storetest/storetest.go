// Package storetest holds the behaviour every storage backend must share.
// Backend test files build a Fixture and call Run.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
	cartuc "example.com/pod-fulfillment/internal/usecase/cart"
	checkoutuc "example.com/pod-fulfillment/internal/usecase/checkout"
	paymentuc "example.com/pod-fulfillment/internal/usecase/payment"
)

type Fixture struct {
	Store    domorder.Store
	Orders   domorder.Repository
	Carts    domcart.Repository
	Products cartuc.ProductRepository
	Outbox   domoutbox.Repository
	Users    domuser.Repository

	// SeedUser and SeedProduct insert rows directly and return their ids.
	SeedUser    func(t *testing.T, email string, role domuser.RoleCode) int64
	SeedProduct func(t *testing.T, sellerID int64, name, price string, active bool) int64
}

func Run(t *testing.T, f *Fixture) {
	t.Run("CheckoutSnapshotsCart", func(t *testing.T) { testCheckoutSnapshotsCart(t, f) })
	t.Run("CheckoutEmptyCart", func(t *testing.T) { testCheckoutEmptyCart(t, f) })
	t.Run("CheckoutInactiveProductRollsBack", func(t *testing.T) { testCheckoutInactiveProduct(t, f) })
	t.Run("ConcurrentCheckoutsPlaceOneOrder", func(t *testing.T) { testConcurrentCheckouts(t, f) })
	t.Run("CartAddMergesRows", func(t *testing.T) { testCartAddMerges(t, f) })
	t.Run("CartItemsAreScopedToOwner", func(t *testing.T) { testCartOwnership(t, f) })
	t.Run("DuplicateTransactionRejected", func(t *testing.T) { testDuplicateTransaction(t, f) })
	t.Run("OrderLockRollsBackOnError", func(t *testing.T) { testOrderLockRollback(t, f) })
	t.Run("OrderLockMissingOrder", func(t *testing.T) { testOrderLockMissing(t, f) })
	t.Run("ConcurrentPartialPayments", func(t *testing.T) { testConcurrentPartialPayments(t, f) })
	t.Run("ListFiltersBySeller", func(t *testing.T) { testListBySeller(t, f) })
	t.Run("UserLookup", func(t *testing.T) { testUserLookup(t, f) })
}

type world struct {
	buyer, seller int64
	shirt, poster int64
}

func seedWorld(t *testing.T, f *Fixture) world {
	name := sanitize(t.Name())
	w := world{
		buyer:  f.SeedUser(t, name+"-buyer@example.com", domuser.RoleCodeCustomer),
		seller: f.SeedUser(t, name+"-seller@example.com", domuser.RoleCodeSeller),
	}
	w.shirt = f.SeedProduct(t, w.seller, "Custom Shirt", "10.00", true)
	w.poster = f.SeedProduct(t, w.seller, "Poster", "25.00", true)
	return w
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

func placeOrder(t *testing.T, f *Fixture, w world) *domorder.Order {
	ctx := context.Background()
	carts := cartuc.NewService(f.Carts, f.Products, nil, nil)
	_, err := carts.AddItem(ctx, w.buyer, w.shirt, 2)
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, w.buyer, w.poster, 1)
	require.NoError(t, err)

	o, err := checkoutuc.NewService(f.Store, nil, nil, nil).Checkout(ctx, w.buyer, "1 Main St")
	require.NoError(t, err)
	return o
}

func eventsFor(t *testing.T, f *Fixture, orderID int64, topic string) []domoutbox.Event {
	pending, err := f.Outbox.FetchPending(context.Background(), 10000)
	require.NoError(t, err)
	var out []domoutbox.Event
	for _, ev := range pending {
		if ev.Key == fmt.Sprint(orderID) && ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func testCheckoutSnapshotsCart(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)

	o := placeOrder(t, f, w)
	require.NotZero(t, o.ID)
	require.True(t, decimal.RequireFromString("45.00").Equal(o.TotalAmount))
	require.Equal(t, domorder.StatusPending, o.Status)

	stored, err := f.Orders.GetByID(ctx, o.ID, domorder.IncludeAll)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	require.True(t, decimal.RequireFromString("45.00").Equal(stored.TotalAmount))
	require.Empty(t, stored.Payments)
	for _, item := range stored.Items {
		require.True(t, item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)).Equal(item.TotalPrice))
	}

	items, err := f.Carts.ListItems(ctx, w.buyer)
	require.NoError(t, err)
	require.Empty(t, items)

	events := eventsFor(t, f, o.ID, domoutbox.TopicOrderPlaced)
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].EventID)
	require.Contains(t, string(events[0].Payload), `"total_amount":"45.00"`)
}

func testCheckoutEmptyCart(t *testing.T, f *Fixture) {
	w := seedWorld(t, f)

	_, err := checkoutuc.NewService(f.Store, nil, nil, nil).Checkout(context.Background(), w.buyer, "1 Main St")
	require.ErrorIs(t, err, domorder.ErrEmptyCart)

	orders, err := f.Orders.List(context.Background(), domorder.ListFilter{UserID: &w.buyer}, domorder.IncludeNone)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func testCheckoutInactiveProduct(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	retired := f.SeedProduct(t, w.seller, "Retired Mug", "8.00", false)

	_, err := f.Carts.AddOrUpdateItem(ctx, w.buyer, w.shirt, 1, nowUTC())
	require.NoError(t, err)
	_, err = f.Carts.AddOrUpdateItem(ctx, w.buyer, retired, 1, nowUTC())
	require.NoError(t, err)

	_, err = checkoutuc.NewService(f.Store, nil, nil, nil).Checkout(ctx, w.buyer, "1 Main St")
	require.ErrorIs(t, err, domproduct.ErrInvalidProduct)

	items, err := f.Carts.ListItems(ctx, w.buyer)
	require.NoError(t, err)
	require.Len(t, items, 2)

	orders, err := f.Orders.List(ctx, domorder.ListFilter{UserID: &w.buyer}, domorder.IncludeNone)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func testConcurrentCheckouts(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	_, err := f.Carts.AddOrUpdateItem(ctx, w.buyer, w.shirt, 3, nowUTC())
	require.NoError(t, err)

	svc := checkoutuc.NewService(f.Store, nil, nil, nil)
	const attempts = 5
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Checkout(ctx, w.buyer, "1 Main St")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	placed := 0
	for err := range errs {
		if err == nil {
			placed++
			continue
		}
		require.ErrorIs(t, err, domorder.ErrEmptyCart)
	}
	require.Equal(t, 1, placed)

	orders, err := f.Orders.List(ctx, domorder.ListFilter{UserID: &w.buyer}, domorder.IncludeItems)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, int64(3), orders[0].Items[0].Quantity)
}

func testCartAddMerges(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)

	first, err := f.Carts.AddOrUpdateItem(ctx, w.buyer, w.shirt, 2, nowUTC())
	require.NoError(t, err)
	second, err := f.Carts.AddOrUpdateItem(ctx, w.buyer, w.shirt, 3, nowUTC())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, int64(5), second.Quantity)

	items, err := f.Carts.ListItems(ctx, w.buyer)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, f.Carts.UpdateQuantity(ctx, w.buyer, first.ID, 5))
	require.NoError(t, f.Carts.UpdateQuantity(ctx, w.buyer, first.ID, 1))
	require.NoError(t, f.Carts.RemoveItem(ctx, w.buyer, first.ID))
	require.ErrorIs(t, f.Carts.RemoveItem(ctx, w.buyer, first.ID), domcart.ErrCartItemNotFound)
}

func testCartOwnership(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	other := f.SeedUser(t, sanitize(t.Name())+"-other@example.com", domuser.RoleCodeCustomer)

	item, err := f.Carts.AddOrUpdateItem(ctx, w.buyer, w.shirt, 1, nowUTC())
	require.NoError(t, err)

	require.ErrorIs(t, f.Carts.UpdateQuantity(ctx, other, item.ID, 4), domcart.ErrCartItemNotFound)
	require.ErrorIs(t, f.Carts.RemoveItem(ctx, other, item.ID), domcart.ErrCartItemNotFound)

	items, err := f.Carts.ListItems(ctx, w.buyer)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, int64(1), items[0].Quantity)
}

func completed(orderID int64, amount, txnID string) *dompayment.Payment {
	return &dompayment.Payment{
		OrderID:       orderID,
		Amount:        decimal.RequireFromString(amount),
		Status:        dompayment.StatusCompleted,
		Method:        dompayment.MethodCard,
		PaymentDate:   nowUTC(),
		TransactionID: txnID,
	}
}

func testDuplicateTransaction(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	first := placeOrder(t, f, w)
	second := placeOrder(t, f, w)
	txn := "pi_" + sanitize(t.Name())

	err := f.Store.WithOrderLock(ctx, first.ID, func(tx domorder.OrderTx) error {
		return tx.InsertPayment(ctx, completed(first.ID, "10.00", txn))
	})
	require.NoError(t, err)

	err = f.Store.WithOrderLock(ctx, first.ID, func(tx domorder.OrderTx) error {
		p, err := tx.FindCompletedPayment(ctx, txn)
		require.NoError(t, err)
		require.True(t, decimal.RequireFromString("10.00").Equal(p.Amount))
		return nil
	})
	require.NoError(t, err)

	err = f.Store.WithOrderLock(ctx, second.ID, func(tx domorder.OrderTx) error {
		_, err := tx.FindCompletedPayment(ctx, txn)
		require.ErrorIs(t, err, dompayment.ErrPaymentNotFound)
		return tx.InsertPayment(ctx, completed(second.ID, "10.00", txn))
	})
	require.ErrorIs(t, err, dompayment.ErrDuplicateTransaction)
}

func testOrderLockRollback(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	o := placeOrder(t, f, w)
	boom := errors.New("boom")

	err := f.Store.WithOrderLock(ctx, o.ID, func(tx domorder.OrderTx) error {
		require.NoError(t, tx.InsertPayment(ctx, completed(o.ID, "45.00", "pi_"+sanitize(t.Name()))))
		total, err := tx.CompletedTotal(ctx)
		require.NoError(t, err)
		require.True(t, decimal.RequireFromString("45.00").Equal(total))

		ord := tx.Order()
		require.NoError(t, ord.TransitionTo(domorder.StatusProcessing, nowUTC()))
		require.NoError(t, tx.SaveStatus(ctx, ord))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := f.Orders.GetByID(ctx, o.ID, domorder.IncludeAll)
	require.NoError(t, err)
	require.Equal(t, domorder.StatusPending, stored.Status)
	require.Empty(t, stored.Payments)
}

func testOrderLockMissing(t *testing.T, f *Fixture) {
	called := false
	err := f.Store.WithOrderLock(context.Background(), 987654321, func(tx domorder.OrderTx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, domorder.ErrOrderNotFound)
	require.False(t, called)
}

func testConcurrentPartialPayments(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	o := placeOrder(t, f, w)
	svc := paymentuc.NewService(f.Store, f.Orders, nil, paymentuc.Config{}, nil, nil)
	actor := domuser.Actor{UserID: w.buyer, RoleCode: domuser.RoleCodeCustomer}

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.RecordDirectPayment(ctx, actor, o.ID, paymentuc.DirectPaymentInput{
				Amount:        decimal.RequireFromString("15.00"),
				Method:        dompayment.MethodBankTransfer,
				TransactionID: fmt.Sprintf("bank-%s-%d", sanitize(t.Name()), i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.Orders.GetByID(ctx, o.ID, domorder.IncludeAll)
	require.NoError(t, err)
	require.Equal(t, domorder.StatusProcessing, stored.Status)
	require.Len(t, stored.Payments, 3)
	require.True(t, decimal.RequireFromString("45.00").Equal(dompayment.SumCompleted(stored.Payments)))
	require.False(t, stored.ReviewRequired)
	require.Len(t, eventsFor(t, f, o.ID, domoutbox.TopicOrderPaid), 1)
}

func testListBySeller(t *testing.T, f *Fixture) {
	ctx := context.Background()
	w := seedWorld(t, f)
	o := placeOrder(t, f, w)
	otherSeller := f.SeedUser(t, sanitize(t.Name())+"-seller2@example.com", domuser.RoleCodeSeller)

	mine, err := f.Orders.List(ctx, domorder.ListFilter{SellerID: &w.seller}, domorder.IncludeItems)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, o.ID, mine[0].ID)
	require.Len(t, mine[0].Items, 2)

	theirs, err := f.Orders.List(ctx, domorder.ListFilter{SellerID: &otherSeller}, domorder.IncludeNone)
	require.NoError(t, err)
	require.Empty(t, theirs)
}

func testUserLookup(t *testing.T, f *Fixture) {
	email := sanitize(t.Name()) + "-admin@example.com"
	id := f.SeedUser(t, email, domuser.RoleCodeAdmin)

	u, err := f.Users.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.Equal(t, domuser.RoleCodeAdmin, u.RoleCode)

	_, err = f.Users.GetByEmail(context.Background(), "missing-"+email)
	require.ErrorIs(t, err, domuser.ErrUserNotFound)
}

func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
