package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"agrichain/identity"
	"agrichain/outbox"
	"agrichain/product"
	"agrichain/provenance"
)

// Repository handles data access for escrowed purchases.
type Repository interface {
	Propose(ctx context.Context, buyerID string, productID int64, payment int64) (Proposal, error)
	Confirm(ctx context.Context, actorID string, productID int64) (Proposal, error)
	Reject(ctx context.Context, actorID string, productID int64) (Proposal, error)
	Cancel(ctx context.Context, actorID string, productID int64) (Proposal, error)
	GetLatest(ctx context.Context, productID int64) (Proposal, error)
}

// PGRepository implements Repository backed by PostgreSQL. Every mutating
// method locks the product row first; the buyer's or seller's balance row is
// locked second, always after the product, so operations on the same product
// serialize and concurrent confirm/cancel races have exactly one winner.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed purchase repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const slotColumns = `id::text, product_id, buyer_id::text, seller_id::text, leg, amount, seller_confirmed, executed, cancelled, created_at, closed_at`

// Propose captures the payment from the buyer's balance into a new escrow
// slot. The funds leave the buyer atomically with the slot becoming visible.
func (r *PGRepository) Propose(ctx context.Context, buyerID string, productID int64, payment int64) (Proposal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Proposal{}, fmt.Errorf("purchase: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := product.LockProduct(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	buyer, err := lockIdentity(ctx, tx, buyerID)
	if err != nil {
		return Proposal{}, err
	}

	leg, err := ValidatePropose(p, buyer, payment)
	if err != nil {
		return Proposal{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE identities SET balance = balance - $1, updated_at = now() WHERE id = $2`, payment, buyerID); err != nil {
		return Proposal{}, fmt.Errorf("purchase: debit buyer: %w", err)
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO purchase_proposals (product_id, buyer_id, seller_id, leg, amount)
		VALUES ($1, $2::uuid, $3::uuid, $4, $5)
		RETURNING %s
	`, slotColumns)

	pr, err := scanSlot(tx.QueryRow(ctx, insertSQL, productID, buyerID, p.OwnerID, leg, payment))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Proposal{}, ErrActiveProposalExists
		}
		return Proposal{}, fmt.Errorf("purchase: insert slot: %w", err)
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicPurchaseProposed, map[string]any{
		"product_id": productID,
		"buyer":      buyerID,
		"seller":     p.OwnerID,
		"amount":     payment,
	}); err != nil {
		return Proposal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, fmt.Errorf("purchase: commit propose: %w", err)
	}

	return pr, nil
}

// Confirm releases the escrow to the seller and moves custody to the buyer
// in one transaction: seller credit, ownership, state advance, provenance.
func (r *PGRepository) Confirm(ctx context.Context, actorID string, productID int64) (Proposal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Proposal{}, fmt.Errorf("purchase: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := product.LockProduct(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	pr, err := lockActiveSlot(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	if err := ValidateSellerConfirm(p, pr, actorID); err != nil {
		return Proposal{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE identities SET balance = balance + $1, updated_at = now() WHERE id = $2`, pr.Amount, pr.SellerID); err != nil {
		return Proposal{}, fmt.Errorf("purchase: credit seller: %w", err)
	}

	updateSQL := fmt.Sprintf(`
		UPDATE purchase_proposals
		SET seller_confirmed = true, executed = true, closed_at = now()
		WHERE id = $1
		RETURNING %s
	`, slotColumns)

	pr, err = scanSlot(tx.QueryRow(ctx, updateSQL, pr.ID))
	if err != nil {
		return Proposal{}, fmt.Errorf("purchase: execute slot: %w", err)
	}

	next := product.StateShippedToRetailer
	productSQL := `
		UPDATE products
		SET owner_id = $1::uuid,
		    state = $2,
		    retailer_id = COALESCE(retailer_id, $1::uuid),
		    updated_at = now()
		WHERE id = $3
	`
	if pr.Leg == LegConsumer {
		next = product.StateSoldToConsumer
		productSQL = `
			UPDATE products
			SET owner_id = $1::uuid,
			    state = $2,
			    updated_at = now()
			WHERE id = $3
		`
	}
	if _, err := tx.Exec(ctx, productSQL, pr.BuyerID, next, productID); err != nil {
		return Proposal{}, fmt.Errorf("purchase: update product: %w", err)
	}

	if err := provenance.Append(ctx, tx, productID, provenance.EventOwnershipChanged, actorID, map[string]any{
		"from": p.OwnerID,
		"to":   pr.BuyerID,
	}); err != nil {
		return Proposal{}, err
	}
	if err := provenance.Append(ctx, tx, productID, provenance.EventStateChanged, actorID, map[string]any{
		"from": p.State.String(),
		"to":   next.String(),
	}); err != nil {
		return Proposal{}, err
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicPurchaseExecuted, map[string]any{
		"product_id": productID,
		"buyer":      pr.BuyerID,
		"seller":     pr.SellerID,
		"amount":     pr.Amount,
	}); err != nil {
		return Proposal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, fmt.Errorf("purchase: commit confirm: %w", err)
	}

	return pr, nil
}

// Reject refunds the escrow to the buyer on the wholesale leg. Product state
// and ownership are untouched and the slot becomes replaceable.
func (r *PGRepository) Reject(ctx context.Context, actorID string, productID int64) (Proposal, error) {
	return r.abort(ctx, actorID, productID, ValidateSellerReject)
}

// Cancel refunds the escrow to the buyer on the consumer leg. It fails with
// ErrProposalExecuted once the seller's confirmation has committed.
func (r *PGRepository) Cancel(ctx context.Context, actorID string, productID int64) (Proposal, error) {
	return r.abort(ctx, actorID, productID, ValidateCancel)
}

func (r *PGRepository) abort(ctx context.Context, actorID string, productID int64, validate func(Proposal, string) error) (Proposal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Proposal{}, fmt.Errorf("purchase: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := product.LockProduct(ctx, tx, productID); err != nil {
		return Proposal{}, err
	}

	pr, err := lockActiveSlot(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	if err := validate(pr, actorID); err != nil {
		return Proposal{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE identities SET balance = balance + $1, updated_at = now() WHERE id = $2`, pr.Amount, pr.BuyerID); err != nil {
		return Proposal{}, fmt.Errorf("purchase: refund buyer: %w", err)
	}

	updateSQL := fmt.Sprintf(`
		UPDATE purchase_proposals
		SET cancelled = true, closed_at = now()
		WHERE id = $1
		RETURNING %s
	`, slotColumns)

	pr, err = scanSlot(tx.QueryRow(ctx, updateSQL, pr.ID))
	if err != nil {
		return Proposal{}, fmt.Errorf("purchase: cancel slot: %w", err)
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicPurchaseCancelled, map[string]any{
		"product_id": productID,
		"buyer":      pr.BuyerID,
		"amount":     pr.Amount,
	}); err != nil {
		return Proposal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, fmt.Errorf("purchase: commit cancel: %w", err)
	}

	return pr, nil
}

// GetLatest returns the most recent slot for the product, terminal or not.
func (r *PGRepository) GetLatest(ctx context.Context, productID int64) (Proposal, error) {
	selectSQL := fmt.Sprintf(`
		SELECT %s FROM purchase_proposals
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, slotColumns)

	pr, err := scanSlot(r.pool.QueryRow(ctx, selectSQL, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNoActiveProposal
		}
		return Proposal{}, fmt.Errorf("purchase: get latest: %w", err)
	}
	return pr, nil
}

// lockActiveSlot locks the product's open slot. When none is open it reports
// which terminal state the latest slot reached so racing callers observe
// ErrProposalExecuted or ErrProposalCancelled rather than a bare not-found.
func lockActiveSlot(ctx context.Context, tx pgx.Tx, productID int64) (Proposal, error) {
	selectSQL := fmt.Sprintf(`
		SELECT %s FROM purchase_proposals
		WHERE product_id = $1 AND NOT executed AND NOT cancelled
		FOR UPDATE
	`, slotColumns)

	pr, err := scanSlot(tx.QueryRow(ctx, selectSQL, productID))
	if err == nil {
		return pr, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Proposal{}, fmt.Errorf("purchase: lock slot: %w", err)
	}

	latestSQL := fmt.Sprintf(`
		SELECT %s FROM purchase_proposals
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, slotColumns)

	latest, err := scanSlot(tx.QueryRow(ctx, latestSQL, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNoActiveProposal
		}
		return Proposal{}, fmt.Errorf("purchase: inspect latest slot: %w", err)
	}
	switch {
	case latest.Executed:
		return Proposal{}, ErrProposalExecuted
	case latest.Cancelled:
		return Proposal{}, ErrProposalCancelled
	default:
		return Proposal{}, ErrNoActiveProposal
	}
}

func lockIdentity(ctx context.Context, tx pgx.Tx, id string) (identity.Identity, error) {
	const selectSQL = `
		SELECT id::text, handle, role::text, password_hash, balance, rating_sum, rating_count, created_at, updated_at
		FROM identities
		WHERE id = $1
		FOR UPDATE
	`

	var ident identity.Identity
	err := tx.QueryRow(ctx, selectSQL, id).Scan(
		&ident.ID,
		&ident.Handle,
		&ident.Role,
		&ident.PasswordHash,
		&ident.Balance,
		&ident.RatingSum,
		&ident.RatingCount,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return identity.Identity{}, identity.ErrNotFound
		}
		return identity.Identity{}, fmt.Errorf("purchase: lock identity: %w", err)
	}
	return ident, nil
}

func scanSlot(row pgx.Row) (Proposal, error) {
	var pr Proposal
	err := row.Scan(
		&pr.ID,
		&pr.ProductID,
		&pr.BuyerID,
		&pr.SellerID,
		&pr.Leg,
		&pr.Amount,
		&pr.SellerConfirmed,
		&pr.Executed,
		&pr.Cancelled,
		&pr.CreatedAt,
		&pr.ClosedAt,
	)
	if err != nil {
		return Proposal{}, err
	}
	return pr, nil
}
