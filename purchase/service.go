package purchase

import (
	"context"

	"go.uber.org/zap"

	"agrichain/telemetry"
)

// Service implements the pay-now/confirm-or-refund handshake for the
// wholesale and consumer legs.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new purchase service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Propose captures the buyer's payment into escrow. The payment must equal
// the product's current price exactly.
func (s *Service) Propose(ctx context.Context, buyerID string, productID int64, payment int64) (*Proposal, error) {
	pr, err := s.repo.Propose(ctx, buyerID, productID, payment)
	if err != nil {
		return nil, err
	}

	telemetry.EscrowHeldTotal.Add(float64(pr.Amount))
	s.logger.Info("purchase proposed",
		zap.Int64("product_id", productID),
		zap.String("buyer", buyerID),
		zap.Int64("amount", pr.Amount),
		zap.String("leg", string(pr.Leg)))

	return &pr, nil
}

// SellerConfirm releases the escrow to the seller and transfers custody to
// the buyer.
func (s *Service) SellerConfirm(ctx context.Context, actorID string, productID int64) (*Proposal, error) {
	pr, err := s.repo.Confirm(ctx, actorID, productID)
	if err != nil {
		return nil, err
	}

	telemetry.EscrowReleasedTotal.Add(float64(pr.Amount))
	s.logger.Info("purchase executed",
		zap.Int64("product_id", productID),
		zap.String("buyer", pr.BuyerID),
		zap.String("seller", pr.SellerID),
		zap.Int64("amount", pr.Amount))

	return &pr, nil
}

// SellerReject refunds the escrow on the wholesale leg without touching the
// product.
func (s *Service) SellerReject(ctx context.Context, actorID string, productID int64) (*Proposal, error) {
	pr, err := s.repo.Reject(ctx, actorID, productID)
	if err != nil {
		return nil, err
	}

	telemetry.EscrowRefundedTotal.Add(float64(pr.Amount))
	s.logger.Info("purchase rejected",
		zap.Int64("product_id", productID),
		zap.String("buyer", pr.BuyerID),
		zap.Int64("amount", pr.Amount))

	return &pr, nil
}

// Cancel refunds the escrow on the consumer leg at the buyer's request.
func (s *Service) Cancel(ctx context.Context, actorID string, productID int64) (*Proposal, error) {
	pr, err := s.repo.Cancel(ctx, actorID, productID)
	if err != nil {
		return nil, err
	}

	telemetry.EscrowRefundedTotal.Add(float64(pr.Amount))
	s.logger.Info("purchase cancelled",
		zap.Int64("product_id", productID),
		zap.String("buyer", pr.BuyerID),
		zap.Int64("amount", pr.Amount))

	return &pr, nil
}

// GetProposal returns the most recent purchase slot for the product.
func (s *Service) GetProposal(ctx context.Context, productID int64) (*Proposal, error) {
	pr, err := s.repo.GetLatest(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
