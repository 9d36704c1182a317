package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBatchSize   = 10
	defaultMaxAttempts = 5
)

// Relay drains the transactional outbox into the publisher. It is the only
// component that reads the outbox table; the domain engines only enqueue.
type Relay struct {
	queue     *Queue
	publisher Publisher
	interval  time.Duration
	logger    *zap.Logger
}

// NewRelay creates a relay polling at the given interval.
func NewRelay(queue *Queue, publisher Publisher, interval time.Duration, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		queue:     queue,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// drainOnce claims one batch and publishes it. Delivery status is settled in
// the same transaction that holds the claim locks.
func (r *Relay) drainOnce(ctx context.Context) error {
	tx, err := r.queue.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	msgs, err := r.queue.ClaimBatch(ctx, tx, defaultBatchSize)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return tx.Commit(ctx)
	}

	for _, msg := range msgs {
		envelope, err := json.Marshal(map[string]any{
			"id":      msg.ID,
			"topic":   msg.Topic,
			"payload": json.RawMessage(msg.Payload),
			"ts":      msg.CreatedAt.UTC(),
		})
		if err != nil {
			r.logger.Error("outbox envelope marshal failed", zap.String("id", msg.ID), zap.Error(err))
			if err := r.queue.MarkFailed(ctx, tx, msg.ID, defaultMaxAttempts); err != nil {
				return err
			}
			continue
		}

		if err := r.publisher.Publish(ctx, msg.ID, envelope); err != nil {
			r.logger.Warn("outbox publish failed",
				zap.String("id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Int("attempts", msg.Attempts),
				zap.Error(err))
			if err := r.queue.MarkFailed(ctx, tx, msg.ID, defaultMaxAttempts); err != nil {
				return err
			}
			continue
		}

		if err := r.queue.MarkProcessed(ctx, tx, msg.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
