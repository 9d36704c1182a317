package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrichain/outbox"
	"agrichain/provenance"
)

// Repository handles data access for the product ledger.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Product, error)
	Get(ctx context.Context, id int64) (Product, error)
	List(ctx context.Context) ([]Product, error)
	AdvanceState(ctx context.Context, actorID string, id int64, next State) (Product, error)
	ApplyMarkup(ctx context.Context, actorID string, id int64, markupPercent int64) (Product, error)
}

// PGRepository implements Repository backed by PostgreSQL. Every mutating
// method runs in one transaction that locks the product row first, so all
// writes to a given product are serialized while distinct products proceed
// in parallel.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed product repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const productColumns = `
	id, name, origin, quantity, unit, price_per_unit, harvested_at, expires_at,
	state, owner_id::text, producer_id::text, wholesaler_id::text, retailer_id::text,
	producer_rated, wholesaler_rated, retailer_rated, created_at, updated_at`

// Create inserts the product with the producer as first custodian and appends
// the CREATED provenance event in the same transaction.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("product: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	insertSQL := fmt.Sprintf(`
		INSERT INTO products (name, origin, quantity, unit, price_per_unit, harvested_at, expires_at, owner_id, producer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid, $8::uuid)
		RETURNING %s
	`, productColumns)

	p, err := scanProduct(tx.QueryRow(ctx, insertSQL,
		params.Name,
		params.Origin,
		params.Quantity,
		params.Unit,
		params.PricePerUnit,
		params.HarvestedAt,
		params.ExpiresAt,
		params.ActorID,
	))
	if err != nil {
		return Product{}, fmt.Errorf("product: insert: %w", err)
	}

	if err := provenance.Append(ctx, tx, p.ID, provenance.EventCreated, params.ActorID, map[string]any{
		"name":           p.Name,
		"origin":         p.Origin,
		"quantity":       p.Quantity,
		"unit":           p.Unit,
		"price_per_unit": p.PricePerUnit,
	}); err != nil {
		return Product{}, err
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicProductCreated, map[string]any{
		"product_id": p.ID,
		"producer":   p.ProducerID,
	}); err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("product: commit create: %w", err)
	}

	return p, nil
}

// Get retrieves a product by id.
func (r *PGRepository) Get(ctx context.Context, id int64) (Product, error) {
	selectSQL := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	p, err := scanProduct(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("product: get: %w", err)
	}
	return p, nil
}

// List returns all products ordered by id.
func (r *PGRepository) List(ctx context.Context) ([]Product, error) {
	selectSQL := fmt.Sprintf(`SELECT %s FROM products ORDER BY id`, productColumns)

	rows, err := r.pool.Query(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("product: list: %w", err)
	}
	defer rows.Close()

	out := make([]Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("product: scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("product: iterate: %w", err)
	}
	return out, nil
}

// AdvanceState performs a direct one-step state update as the current owner.
func (r *PGRepository) AdvanceState(ctx context.Context, actorID string, id int64, next State) (Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("product: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockProduct(ctx, tx, id)
	if err != nil {
		return Product{}, err
	}

	if err := ValidateAdvance(p, actorID, next); err != nil {
		return Product{}, err
	}

	prev := p.State
	if _, err := tx.Exec(ctx, `UPDATE products SET state = $1, updated_at = now() WHERE id = $2`, next, id); err != nil {
		return Product{}, fmt.Errorf("product: update state: %w", err)
	}
	p.State = next

	if err := provenance.Append(ctx, tx, id, provenance.EventStateChanged, actorID, map[string]any{
		"from": prev.String(),
		"to":   next.String(),
	}); err != nil {
		return Product{}, err
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicProductState, map[string]any{
		"product_id": id,
		"from":       prev.String(),
		"to":         next.String(),
	}); err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("product: commit state update: %w", err)
	}

	return p, nil
}

// ApplyMarkup reprices the product for the current owner during a pricing
// stage.
func (r *PGRepository) ApplyMarkup(ctx context.Context, actorID string, id int64, markupPercent int64) (Product, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Product{}, fmt.Errorf("product: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := lockProduct(ctx, tx, id)
	if err != nil {
		return Product{}, err
	}

	if err := ValidateMarkup(p, actorID, markupPercent); err != nil {
		return Product{}, err
	}

	oldPrice := p.PricePerUnit
	newPrice := MarkupPrice(oldPrice, markupPercent)
	if _, err := tx.Exec(ctx, `UPDATE products SET price_per_unit = $1, updated_at = now() WHERE id = $2`, newPrice, id); err != nil {
		return Product{}, fmt.Errorf("product: update price: %w", err)
	}
	p.PricePerUnit = newPrice

	if err := provenance.Append(ctx, tx, id, provenance.EventPriceChanged, actorID, map[string]any{
		"old_price":      oldPrice,
		"new_price":      newPrice,
		"markup_percent": markupPercent,
	}); err != nil {
		return Product{}, err
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicProductPrice, map[string]any{
		"product_id": id,
		"old_price":  oldPrice,
		"new_price":  newPrice,
	}); err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, fmt.Errorf("product: commit price update: %w", err)
	}

	return p, nil
}

// lockProduct reads a product under FOR UPDATE, establishing the per-product
// serialization point for the surrounding transaction.
func lockProduct(ctx context.Context, tx pgx.Tx, id int64) (Product, error) {
	selectSQL := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1 FOR UPDATE`, productColumns)

	p, err := scanProduct(tx.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("product: lock: %w", err)
	}
	return p, nil
}

// LockProduct exposes the row-lock read to the sibling engines that mutate
// products inside their own transactions.
func LockProduct(ctx context.Context, tx pgx.Tx, id int64) (Product, error) {
	return lockProduct(ctx, tx, id)
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Origin,
		&p.Quantity,
		&p.Unit,
		&p.PricePerUnit,
		&p.HarvestedAt,
		&p.ExpiresAt,
		&p.State,
		&p.OwnerID,
		&p.ProducerID,
		&p.WholesalerID,
		&p.RetailerID,
		&p.ProducerRated,
		&p.WholesalerRated,
		&p.RetailerRated,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return Product{}, err
	}
	return p, nil
}
