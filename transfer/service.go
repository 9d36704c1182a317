package transfer

import (
	"context"

	"go.uber.org/zap"

	"agrichain/identity"
	"agrichain/telemetry"
)

// HandleResolver resolves a human-readable handle to an identity. Satisfied
// by identity.Service.
type HandleResolver interface {
	ResolveHandle(ctx context.Context, handle string) (*identity.Identity, error)
}

// Service implements the two-phase Producer-to-Wholesaler handshake.
type Service struct {
	repo     Repository
	resolver HandleResolver
	logger   *zap.Logger
}

// NewService creates a new transfer service.
func NewService(repo Repository, resolver HandleResolver, logger *zap.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, logger: logger}
}

// Propose opens a transfer proposal from the current owner to the wholesaler
// behind targetHandle. The proposer's confirmation is implied.
func (s *Service) Propose(ctx context.Context, actorID string, productID int64, targetHandle string) (*Proposal, error) {
	target, err := s.resolver.ResolveHandle(ctx, targetHandle)
	if err != nil {
		return nil, err
	}

	pr, err := s.repo.Propose(ctx, actorID, productID, *target)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transfer proposed",
		zap.Int64("product_id", productID),
		zap.String("proposer", actorID),
		zap.String("target", target.ID))

	return &pr, nil
}

// TargetConfirm executes the pending proposal as its target. Custody,
// lifecycle state, and the recorded wholesaler identity all change in the
// same transaction.
func (s *Service) TargetConfirm(ctx context.Context, actorID string, productID int64) (*Proposal, error) {
	pr, err := s.repo.Confirm(ctx, actorID, productID)
	if err != nil {
		return nil, err
	}

	telemetry.TransfersExecutedTotal.Inc()
	s.logger.Info("transfer executed",
		zap.Int64("product_id", productID),
		zap.String("new_owner", pr.TargetID))

	return &pr, nil
}

// GetProposal returns the product's most recent proposal, executed or not,
// so the handoff stays inspectable after it settles.
func (s *Service) GetProposal(ctx context.Context, productID int64) (*Proposal, error) {
	pr, err := s.repo.GetLatest(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
