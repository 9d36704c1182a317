package rating

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"agrichain/identity"
	"agrichain/outbox"
	"agrichain/product"
)

// Repository handles the rating write path.
type Repository interface {
	Rate(ctx context.Context, actorID string, productID int64, role identity.Role, score int) (string, error)
}

// PGRepository implements Repository backed by PostgreSQL. The product row
// lock serializes the flag check against concurrent ratings, so the set-once
// guarantee holds without a separate ratings table.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed rating repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var ratedColumn = map[identity.Role]string{
	identity.RoleProducer:   "producer_rated",
	identity.RoleWholesaler: "wholesaler_rated",
	identity.RoleRetailer:   "retailer_rated",
}

// Rate atomically sets the per-(product, role) flag and increments the rated
// identity's accumulator. Returns the credited identity id.
func (r *PGRepository) Rate(ctx context.Context, actorID string, productID int64, role identity.Role, score int) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("rating: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := product.LockProduct(ctx, tx, productID)
	if err != nil {
		return "", err
	}

	targetID, err := Validate(p, actorID, role, score)
	if err != nil {
		return "", err
	}

	flagSQL := fmt.Sprintf(`UPDATE products SET %s = true, updated_at = now() WHERE id = $1`, ratedColumn[role])
	if _, err := tx.Exec(ctx, flagSQL, productID); err != nil {
		return "", fmt.Errorf("rating: set flag: %w", err)
	}

	const creditSQL = `
		UPDATE identities
		SET rating_sum = rating_sum + $1,
		    rating_count = rating_count + 1,
		    updated_at = now()
		WHERE id = $2
	`
	if _, err := tx.Exec(ctx, creditSQL, score, targetID); err != nil {
		return "", fmt.Errorf("rating: credit target: %w", err)
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicRatingRecorded, map[string]any{
		"product_id": productID,
		"role":       role,
		"target":     targetID,
		"score":      score,
	}); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("rating: commit: %w", err)
	}

	return targetID, nil
}
