package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Topics published by the protocol engines. The notification layer consumes
// these; the core never reads them back.
const (
	TopicProductCreated    = "product.created"
	TopicProductState      = "product.state_changed"
	TopicProductPrice      = "product.price_changed"
	TopicTransferProposed  = "transfer.proposed"
	TopicTransferExecuted  = "transfer.executed"
	TopicPurchaseProposed  = "purchase.proposed"
	TopicPurchaseExecuted  = "purchase.executed"
	TopicPurchaseCancelled = "purchase.cancelled"
	TopicRatingRecorded    = "rating.recorded"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID          string
	Topic       string
	Payload     []byte
	Status      string
	Attempts    int
	CreatedAt   time.Time
	LastAttempt *time.Time
}

// Enqueue records a message inside the caller's transaction so it is
// delivered iff the surrounding domain write commits.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue: %w", err)
	}
	return nil
}

// Queue claims and settles pending messages for the relay.
type Queue struct {
	pool *pgxpool.Pool
}

func NewQueue(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// ClaimBatch locks up to limit pending messages with SKIP LOCKED inside tx so
// concurrent relays never double-deliver a message.
func (q *Queue) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Message, error) {
	const claimSQL = `
		SELECT id, topic, payload, status, attempts, created_at, last_attempt
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`

	rows, err := tx.Query(ctx, claimSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim batch: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Topic, &msg.Payload, &msg.Status, &msg.Attempts, &msg.CreatedAt, &msg.LastAttempt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	return out, nil
}

// MarkProcessed settles a delivered message.
func (q *Queue) MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	if _, err := tx.Exec(ctx, `UPDATE outbox SET status = 'processed', last_attempt = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("outbox: mark processed: %w", err)
	}
	return nil
}

// MarkFailed counts a failed delivery attempt; after maxAttempts the message
// is parked as dead so the relay stops retrying it.
func (q *Queue) MarkFailed(ctx context.Context, tx pgx.Tx, id string, maxAttempts int) error {
	const failSQL = `
		UPDATE outbox
		SET attempts = attempts + 1,
		    last_attempt = now(),
		    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, failSQL, id, maxAttempts); err != nil {
		return fmt.Errorf("outbox: mark failed: %w", err)
	}
	return nil
}

// Begin starts a relay transaction on the underlying pool.
func (q *Queue) Begin(ctx context.Context) (pgx.Tx, error) {
	return q.pool.Begin(ctx)
}
