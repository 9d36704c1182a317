package rating

import (
	"context"

	"go.uber.org/zap"

	"agrichain/identity"
	"agrichain/telemetry"
)

// Service records ratings for completed custody legs.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new rating service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Rate lets the current custodian score the recorded upstream role once per
// product. Averages are read through identity.Service.AverageRating.
func (s *Service) Rate(ctx context.Context, actorID string, productID int64, role identity.Role, score int) error {
	targetID, err := s.repo.Rate(ctx, actorID, productID, role, score)
	if err != nil {
		return err
	}

	telemetry.RatingsRecordedTotal.WithLabelValues(string(role)).Inc()
	s.logger.Info("rating recorded",
		zap.Int64("product_id", productID),
		zap.String("role", string(role)),
		zap.String("target", targetID),
		zap.Int("score", score))

	return nil
}
