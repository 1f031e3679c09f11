// Package kafka relays outbox events to Kafka.
package kafka

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	domoutbox "example.com/pod-fulfillment/internal/domain/outbox"
)

// MessageWriter is the subset of *kafka.Writer the relay needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Metrics interface {
	EventPublished(topic string)
	PublishFailed(topic string)
}

type noopMetrics struct{}

func (noopMetrics) EventPublished(string) {}
func (noopMetrics) PublishFailed(string)  {}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(csv string) []string {
	brokers := []string{}
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// NewWriter returns a writer that takes the topic from each message and
// hashes the key so events of one order land on one partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

type Relay struct {
	repo     domoutbox.Repository
	writer   MessageWriter
	interval time.Duration
	batch    int
	metrics  Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewRelay(repo domoutbox.Repository, writer MessageWriter, cfg Config, metrics Metrics, logger *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		repo:     repo,
		writer:   writer,
		interval: cfg.Interval,
		batch:    cfg.BatchSize,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls the outbox until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay flush failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Flush publishes one batch of pending events in order and returns how many
// were marked sent. It stops at the first publish failure so a later event
// for the same order is never delivered ahead of an earlier one.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.repo.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		if err := r.writer.WriteMessages(ctx, toMessage(ev)); err != nil {
			r.metrics.PublishFailed(ev.Topic)
			r.logger.WarnContext(ctx, "outbox publish failed",
				slog.Int64("outbox_id", ev.ID),
				slog.String("topic", ev.Topic),
				slog.Any("error", err),
			)
			return sent, err
		}
		r.metrics.EventPublished(ev.Topic)

		// A failed mark means the event is published again next tick;
		// consumers dedupe on event_id.
		if err := r.repo.MarkSent(ctx, ev.ID, r.now().UTC()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func toMessage(ev domoutbox.Event) kafka.Message {
	return kafka.Message{
		Topic: ev.Topic,
		Key:   []byte(ev.Key),
		Value: ev.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.Topic)},
		},
		Time: ev.CreatedAt,
	}
}
