// Package memory is a process-local backend for development and tests.
// Every transaction holds one mutex and stages its writes; they are applied
// only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domcart "example.com/pod-fulfillment/internal/domain/cart"
	domorder "example.com/pod-fulfillment/internal/domain/order"
	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
	dompayment "example.com/pod-fulfillment/internal/domain/payment"
	domproduct "example.com/pod-fulfillment/internal/domain/product"
	domuser "example.com/pod-fulfillment/internal/domain/user"
)

// Fault points accepted by InjectFault.
const (
	OpInsertOrder     = "InsertOrder"
	OpDeleteCartItems = "DeleteCartItems"
	OpAppendEvent     = "AppendEvent"
	OpInsertPayment   = "InsertPayment"
	OpSaveStatus      = "SaveStatus"
	OpListItems       = "ListItems"
)

type Store struct {
	mu sync.Mutex

	seq      int64
	users    map[int64]domuser.User
	products map[int64]domproduct.Product
	cart     map[int64]domcart.Item
	orders   map[int64]domorder.Order
	items    map[int64][]domorder.OrderItem
	payments map[int64]dompayment.Payment
	txnIndex map[string]int64
	events   []domoutbox.Event
	faults   map[string]error
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]domuser.User),
		products: make(map[int64]domproduct.Product),
		cart:     make(map[int64]domcart.Item),
		orders:   make(map[int64]domorder.Order),
		items:    make(map[int64][]domorder.OrderItem),
		payments: make(map[int64]dompayment.Payment),
		txnIndex: make(map[string]int64),
		faults:   make(map[string]error),
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// InjectFault makes the named operation fail with err until cleared with a
// nil err.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

func (s *Store) AddUser(u domuser.User) domuser.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextID()
	u.Email = strings.ToLower(u.Email)
	s.users[u.ID] = u
	return u
}

func (s *Store) AddProduct(p domproduct.Product) domproduct.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	s.products[p.ID] = p
	return p
}

func (s *Store) SetProductActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.IsActive = active
		s.products[id] = p
	}
}

// Users

type UserRepository struct{ s *Store }

func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domuser.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, domuser.ErrUserNotFound
}

// Products

type ProductRepository struct{ s *Store }

func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domproduct.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, domproduct.ErrProductNotFound
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domproduct.Product{}
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Cart

type CartRepository struct{ s *Store }

func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID, quantity int64, addedAt time.Time) (*domcart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, item := range r.s.cart {
		if item.UserID == userID && item.ProductID == productID {
			item.Quantity += quantity
			r.s.cart[id] = item
			return &item, nil
		}
	}
	item := domcart.Item{ID: r.s.nextID(), UserID: userID, ProductID: productID, Quantity: quantity, AddedAt: addedAt}
	r.s.cart[item.ID] = item
	return &item, nil
}

func (r *CartRepository) UpdateQuantity(ctx context.Context, userID, itemID, quantity int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.cart[itemID]
	if !ok || item.UserID != userID {
		return domcart.ErrCartItemNotFound
	}
	item.Quantity = quantity
	r.s.cart[itemID] = item
	return nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, itemID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.cart[itemID]
	if !ok || item.UserID != userID {
		return domcart.ErrCartItemNotFound
	}
	delete(r.s.cart, itemID)
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID int64) ([]domcart.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault(OpListItems); err != nil {
		return nil, err
	}
	return r.s.cartOf(userID), nil
}

func (s *Store) cartOf(userID int64) []domcart.Item {
	items := []domcart.Item{}
	for _, item := range s.cart {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// Orders

type OrderRepository struct{ s *Store }

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func (s *Store) assemble(o domorder.Order, inc domorder.Include) *domorder.Order {
	o.Items = []domorder.OrderItem{}
	o.Payments = []dompayment.Payment{}
	if inc.Has(domorder.IncludeItems) {
		o.Items = append(o.Items, s.items[o.ID]...)
	}
	if inc.Has(domorder.IncludePayments) {
		for _, p := range s.payments {
			if p.OrderID == o.ID {
				o.Payments = append(o.Payments, p)
			}
		}
		sort.Slice(o.Payments, func(i, j int) bool { return o.Payments[i].ID < o.Payments[j].ID })
	}
	return &o
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64, inc domorder.Include) (*domorder.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domorder.ErrOrderNotFound
	}
	return r.s.assemble(o, inc), nil
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter, inc domorder.Include) ([]*domorder.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domorder.Order{}
	for _, o := range r.s.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.SellerID != nil && !r.s.soldBy(o.ID, *filter.SellerID) {
			continue
		}
		out = append(out, r.s.assemble(o, inc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) soldBy(orderID, sellerID int64) bool {
	for _, item := range s.items[orderID] {
		if p, ok := s.products[item.ProductID]; ok && p.SellerID == sellerID {
			return true
		}
	}
	return false
}

func (r *OrderRepository) GetPayment(ctx context.Context, orderID, paymentID int64) (*dompayment.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[paymentID]
	if !ok || p.OrderID != orderID {
		return nil, dompayment.ErrPaymentNotFound
	}
	return &p, nil
}

// Outbox

type OutboxRepository struct{ s *Store }

func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domoutbox.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domoutbox.Event
	for _, ev := range r.s.events {
		if ev.SentAt == nil {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.events {
		if r.s.events[i].ID == id {
			at := sentAt
			r.s.events[i].SentAt = &at
		}
	}
	return nil
}

// Events returns a copy of every recorded outbox event.
func (s *Store) Events() []domoutbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domoutbox.Event(nil), s.events...)
}

// Transactions

func (s *Store) Checkout(ctx context.Context, userID int64, fn func(tx domorder.CheckoutTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &checkoutTx{s: s, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}

	for _, o := range tx.orders {
		items := o.Items
		o.Items, o.Payments = nil, nil
		s.orders[o.ID] = o
		s.items[o.ID] = items
	}
	for _, id := range tx.deleted {
		delete(s.cart, id)
	}
	s.appendEvents(tx.events)
	return nil
}

func (s *Store) WithOrderLock(ctx context.Context, orderID int64, fn func(tx domorder.OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	o, ok := s.orders[orderID]
	if !ok {
		return domorder.ErrOrderNotFound
	}
	tx := &orderTx{s: s, order: s.assemble(o, domorder.IncludeNone)}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.saved != nil {
		saved := *tx.saved
		saved.Items, saved.Payments = nil, nil
		s.orders[orderID] = saved
	}
	for _, p := range tx.payments {
		s.payments[p.ID] = p
		s.txnIndex[p.TransactionID] = p.ID
	}
	s.appendEvents(tx.events)
	return nil
}

func (s *Store) appendEvents(events []domoutbox.Event) {
	for _, ev := range events {
		ev.ID = s.nextID()
		s.events = append(s.events, ev)
	}
}

type checkoutTx struct {
	s       *Store
	userID  int64
	orders  []domorder.Order
	deleted []int64
	events  []domoutbox.Event
}

func (c *checkoutTx) CartLines(ctx context.Context) ([]domcart.Line, error) {
	var lines []domcart.Line
	for _, item := range c.s.cartOf(c.userID) {
		line := domcart.Line{Item: item}
		if p, ok := c.s.products[item.ProductID]; ok {
			cp := p
			line.Product = &cp
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (c *checkoutTx) InsertOrder(ctx context.Context, o *domorder.Order) error {
	if err := c.s.fault(OpInsertOrder); err != nil {
		return err
	}
	o.ID = c.s.nextID()
	for i := range o.Items {
		o.Items[i].ID = c.s.nextID()
		o.Items[i].OrderID = o.ID
	}
	staged := *o
	staged.Items = append([]domorder.OrderItem(nil), o.Items...)
	c.orders = append(c.orders, staged)
	return nil
}

func (c *checkoutTx) DeleteCartItems(ctx context.Context, itemIDs []int64) error {
	if err := c.s.fault(OpDeleteCartItems); err != nil {
		return err
	}
	for _, id := range itemIDs {
		if item, ok := c.s.cart[id]; ok && item.UserID == c.userID {
			c.deleted = append(c.deleted, id)
		}
	}
	return nil
}

func (c *checkoutTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	if err := c.s.fault(OpAppendEvent); err != nil {
		return err
	}
	c.events = append(c.events, ev)
	return nil
}

type orderTx struct {
	s        *Store
	order    *domorder.Order
	saved    *domorder.Order
	payments []dompayment.Payment
	events   []domoutbox.Event
}

func (o *orderTx) Order() *domorder.Order {
	return o.order
}

func (o *orderTx) FindCompletedPayment(ctx context.Context, transactionID string) (*dompayment.Payment, error) {
	for _, p := range o.payments {
		if p.TransactionID == transactionID && p.Status == dompayment.StatusCompleted {
			return &p, nil
		}
	}
	if id, ok := o.s.txnIndex[transactionID]; ok {
		p := o.s.payments[id]
		if p.OrderID == o.order.ID && p.Status == dompayment.StatusCompleted {
			return &p, nil
		}
	}
	return nil, dompayment.ErrPaymentNotFound
}

func (o *orderTx) InsertPayment(ctx context.Context, p *dompayment.Payment) error {
	if err := o.s.fault(OpInsertPayment); err != nil {
		return err
	}
	if _, ok := o.s.txnIndex[p.TransactionID]; ok {
		return dompayment.ErrDuplicateTransaction
	}
	for _, staged := range o.payments {
		if staged.TransactionID == p.TransactionID {
			return dompayment.ErrDuplicateTransaction
		}
	}
	p.ID = o.s.nextID()
	o.payments = append(o.payments, *p)
	return nil
}

func (o *orderTx) CompletedTotal(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range o.s.payments {
		if p.OrderID == o.order.ID && p.Status == dompayment.StatusCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total.Add(dompayment.SumCompleted(o.payments)), nil
}

func (o *orderTx) SaveStatus(ctx context.Context, ord *domorder.Order) error {
	if err := o.s.fault(OpSaveStatus); err != nil {
		return err
	}
	cp := *ord
	o.saved = &cp
	return nil
}

func (o *orderTx) AppendEvent(ctx context.Context, ev domoutbox.Event) error {
	if err := o.s.fault(OpAppendEvent); err != nil {
		return err
	}
	o.events = append(o.events, ev)
	return nil
}
