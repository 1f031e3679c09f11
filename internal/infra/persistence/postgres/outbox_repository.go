package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func insertEvent(ctx context.Context, q querier, ev domoutbox.Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, topic, msg_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.EventID, ev.Topic, ev.Key, []byte(ev.Payload), ev.CreatedAt)
	return err
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domoutbox.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id::text, topic, msg_key, payload, created_at, sent_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []domoutbox.Event
	for rows.Next() {
		var ev domoutbox.Event
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Topic, &ev.Key, &payload, &ev.CreatedAt, &ev.SentAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, storageErr(rows.Err())
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox_events SET sent_at = $1 WHERE id = $2`, sentAt, id)
	return storageErr(err)
}
