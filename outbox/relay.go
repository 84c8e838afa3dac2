// Package outbox forwards committed outbox rows to the message broker.
package outbox

import (
	"context"
	"log/slog"
	"time"

	model "github.com/jeffsasaki/store-admin/models"
)

const batchSize = 50

type Store interface {
	PendingOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxPublished(ctx context.Context, id string) error
}

// Publisher must return nil only once the broker has confirmed the message;
// rows are marked published on that basis.
type Publisher interface {
	Publish(ctx context.Context, queueName string, message []byte) error
}

type Relay struct {
	store     Store
	publisher Publisher
	queue     string
	interval  time.Duration
	logger    *slog.Logger
}

func NewRelay(store Store, publisher Publisher, queue string, interval time.Duration, logger *slog.Logger) *Relay {
	return &Relay{store: store, publisher: publisher, queue: queue, interval: interval, logger: logger}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("outbox flush failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of pending rows in creation order and returns
// how many were published. It stops at the first failure so later rows are
// not delivered ahead of it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.PendingOutbox(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range events {
		if err := r.publisher.Publish(ctx, r.queue, e.Payload); err != nil {
			return published, err
		}
		// A failure here re-publishes the row on the next tick; consumers
		// see at-least-once delivery.
		if err := r.store.MarkOutboxPublished(ctx, e.ID); err != nil {
			return published, err
		}
		published++
		r.logger.Debug("outbox event published", "id", e.ID, "topic", e.Topic, "aggregate_id", e.AggregateID)
	}
	return published, nil
}
