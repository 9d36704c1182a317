package provenance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Append inserts one event inside the caller's transaction. The caller must
// already hold the product's row lock; the per-product seq is derived from
// the current maximum under that lock, which keeps it gapless and monotonic.
func Append(ctx context.Context, tx pgx.Tx, productID int64, eventType EventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("provenance: marshal payload: %w", err)
	}

	var seq int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM provenance_events WHERE product_id = $1`, productID).Scan(&seq); err != nil {
		return fmt.Errorf("provenance: next seq: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const insertSQL = `
		INSERT INTO provenance_events (product_id, seq, type, actor_id, payload)
		VALUES ($1, $2, $3, $4::uuid, $5::jsonb)
	`
	if _, err := tx.Exec(ctx, insertSQL, productID, seq, eventType, actor, body); err != nil {
		return fmt.Errorf("provenance: append event: %w", err)
	}

	return nil
}

// Repository exposes read access to product timelines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed provenance reader.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListByProduct returns the full ordered event sequence for a product.
func (r *Repository) ListByProduct(ctx context.Context, productID int64) ([]Event, error) {
	const selectSQL = `
		SELECT id, product_id, seq, type, actor_id::text, payload, created_at
		FROM provenance_events
		WHERE product_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, selectSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("provenance: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0, 8)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ProductID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("provenance: scan: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provenance: iterate: %w", err)
	}
	return out, nil
}
