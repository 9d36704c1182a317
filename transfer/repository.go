package transfer

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

// Repository handles data access for transfer proposals.
type Repository interface {
	Propose(ctx context.Context, proposerID string, productID int64, target identity.Identity) (Proposal, error)
	Confirm(ctx context.Context, actorID string, productID int64) (Proposal, error)
	GetLatest(ctx context.Context, productID int64) (Proposal, error)
}

// PGRepository implements Repository backed by PostgreSQL. Both mutating
// methods lock the product row first so they serialize with every other
// operation on the same product.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed transfer repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const proposalColumns = `id::text, product_id, proposer_id::text, target_id::text, proposer_confirmed, target_confirmed, executed, created_at, executed_at`

// Propose opens the single proposal slot for the product.
func (r *PGRepository) Propose(ctx context.Context, proposerID string, productID int64, target identity.Identity) (Proposal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Proposal{}, fmt.Errorf("transfer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := product.LockProduct(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	if err := ValidatePropose(p, proposerID, target); err != nil {
		return Proposal{}, err
	}

	insertSQL := fmt.Sprintf(`
		INSERT INTO transfer_proposals (product_id, proposer_id, target_id)
		VALUES ($1, $2::uuid, $3::uuid)
		RETURNING %s
	`, proposalColumns)

	pr, err := scanProposal(tx.QueryRow(ctx, insertSQL, productID, proposerID, target.ID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Proposal{}, ErrProposalActive
		}
		return Proposal{}, fmt.Errorf("transfer: insert proposal: %w", err)
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicTransferProposed, map[string]any{
		"product_id": productID,
		"proposer":   proposerID,
		"target":     target.ID,
	}); err != nil {
		return Proposal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, fmt.Errorf("transfer: commit propose: %w", err)
	}

	return pr, nil
}

// Confirm executes the pending proposal as its target: custody moves to the
// target, the state advances to ShippedToWholesaler, and the wholesaler
// identity is recorded the first time it takes custody.
func (r *PGRepository) Confirm(ctx context.Context, actorID string, productID int64) (Proposal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Proposal{}, fmt.Errorf("transfer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := product.LockProduct(ctx, tx, productID)
	if err != nil {
		return Proposal{}, err
	}

	selectSQL := fmt.Sprintf(`
		SELECT %s FROM transfer_proposals
		WHERE product_id = $1 AND NOT executed
		FOR UPDATE
	`, proposalColumns)

	pr, err := scanProposal(tx.QueryRow(ctx, selectSQL, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNoActiveProposal
		}
		return Proposal{}, fmt.Errorf("transfer: load proposal: %w", err)
	}

	if err := ValidateConfirm(p, pr, actorID); err != nil {
		return Proposal{}, err
	}

	updateSQL := fmt.Sprintf(`
		UPDATE transfer_proposals
		SET target_confirmed = true, executed = true, executed_at = now()
		WHERE id = $1
		RETURNING %s
	`, proposalColumns)

	pr, err = scanProposal(tx.QueryRow(ctx, updateSQL, pr.ID))
	if err != nil {
		return Proposal{}, fmt.Errorf("transfer: execute proposal: %w", err)
	}

	prevOwner := p.OwnerID
	prevState := p.State
	const productSQL = `
		UPDATE products
		SET owner_id = $1::uuid,
		    state = $2,
		    wholesaler_id = COALESCE(wholesaler_id, $1::uuid),
		    updated_at = now()
		WHERE id = $3
	`
	if _, err := tx.Exec(ctx, productSQL, pr.TargetID, product.StateShippedToWholesaler, productID); err != nil {
		return Proposal{}, fmt.Errorf("transfer: update product: %w", err)
	}

	if err := provenance.Append(ctx, tx, productID, provenance.EventOwnershipChanged, actorID, map[string]any{
		"from": prevOwner,
		"to":   pr.TargetID,
	}); err != nil {
		return Proposal{}, err
	}
	if err := provenance.Append(ctx, tx, productID, provenance.EventStateChanged, actorID, map[string]any{
		"from": prevState.String(),
		"to":   product.StateShippedToWholesaler.String(),
	}); err != nil {
		return Proposal{}, err
	}

	if err := outbox.Enqueue(ctx, tx, outbox.TopicTransferExecuted, map[string]any{
		"product_id": productID,
		"from":       prevOwner,
		"to":         pr.TargetID,
	}); err != nil {
		return Proposal{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Proposal{}, fmt.Errorf("transfer: commit confirm: %w", err)
	}

	return pr, nil
}

// GetLatest returns the product's most recent proposal, executed or not.
func (r *PGRepository) GetLatest(ctx context.Context, productID int64) (Proposal, error) {
	selectSQL := fmt.Sprintf(`
		SELECT %s FROM transfer_proposals
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, proposalColumns)

	pr, err := scanProposal(r.pool.QueryRow(ctx, selectSQL, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNoActiveProposal
		}
		return Proposal{}, fmt.Errorf("transfer: get latest: %w", err)
	}
	return pr, nil
}

func scanProposal(row pgx.Row) (Proposal, error) {
	var pr Proposal
	err := row.Scan(
		&pr.ID,
		&pr.ProductID,
		&pr.ProposerID,
		&pr.TargetID,
		&pr.ProposerConfirmed,
		&pr.TargetConfirmed,
		&pr.Executed,
		&pr.CreatedAt,
		&pr.ExecutedAt,
	)
	if err != nil {
		return Proposal{}, err
	}
	return pr, nil
}
