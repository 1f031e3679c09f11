package mysql

import (
	"context"
	"database/sql"
	"time"

	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func insertEvent(ctx context.Context, q querier, ev domoutbox.Event) error {
	_, err := q.ExecContext(ctx, `
        INSERT INTO outbox_events (event_id, topic, msg_key, payload, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, ev.EventID, ev.Topic, ev.Key, []byte(ev.Payload), ev.CreatedAt)
	return err
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domoutbox.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, event_id, topic, msg_key, payload, created_at, sent_at
        FROM outbox_events
        WHERE sent_at IS NULL
        ORDER BY id
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []domoutbox.Event
	for rows.Next() {
		var ev domoutbox.Event
		var payload []byte
		var sentAt sql.NullTime
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.Topic, &ev.Key, &payload, &ev.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		ev.Payload = payload
		if sentAt.Valid {
			ev.SentAt = &sentAt.Time
		}
		out = append(out, ev)
	}
	return out, storageErr(rows.Err())
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET sent_at = ? WHERE id = ?`, sentAt, id)
	return storageErr(err)
}
