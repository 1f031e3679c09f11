package outbox

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	TopicOrderPlaced = "order.placed"
	TopicOrderPaid   = "order.paid"
)

// Event is a message recorded in the same transaction as the state change
// it describes and relayed to the broker afterwards.
type Event struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   json.RawMessage
	CreatedAt time.Time
	SentAt    *time.Time
}

// NewOrderEvent builds an event keyed by order id.
func NewOrderEvent(topic string, orderID int64, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:   uuid.NewString(),
		Topic:     topic,
		Key:       strconv.FormatInt(orderID, 10),
		Payload:   data,
		CreatedAt: now,
	}, nil
}

type Repository interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}

type OrderPlacedItem struct {
	ProductID  int64  `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

type OrderPlaced struct {
	OrderID     int64             `json:"order_id"`
	UserID      int64             `json:"user_id"`
	TotalAmount string            `json:"total_amount"`
	OrderDate   time.Time         `json:"order_date"`
	Items       []OrderPlacedItem `json:"items"`
}

type OrderPaid struct {
	OrderID       int64     `json:"order_id"`
	UserID        int64     `json:"user_id"`
	TotalAmount   string    `json:"total_amount"`
	PaidAmount    string    `json:"paid_amount"`
	TransactionID string    `json:"transaction_id"`
	PaidAt        time.Time `json:"paid_at"`
}
