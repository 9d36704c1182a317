package product

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"agrichain/identity"
	"agrichain/telemetry"
)

// ErrNotProducer signals that a non-producer attempted to register a product.
var ErrNotProducer = errors.New("product: only producers can create products")

// Service exposes the product ledger operations.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new product service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Create registers a new product in Harvested state with the producer as
// first custodian.
func (s *Service) Create(ctx context.Context, actorRole identity.Role, params CreateParams) (*Product, error) {
	if actorRole != identity.RoleProducer {
		return nil, ErrNotProducer
	}
	if params.ActorID == "" {
		return nil, fmt.Errorf("product: actor id required")
	}
	if params.Name == "" || params.Origin == "" || params.Unit == "" {
		return nil, fmt.Errorf("product: name, origin and unit are required")
	}
	if params.Quantity <= 0 {
		return nil, fmt.Errorf("product: quantity must be positive")
	}
	if params.PricePerUnit < 0 {
		return nil, fmt.Errorf("product: price must be non-negative")
	}
	if params.ExpiresAt.Before(params.HarvestedAt) {
		return nil, fmt.Errorf("product: expiry precedes harvest")
	}

	p, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, err
	}

	telemetry.ProductsCreatedTotal.Inc()
	s.logger.Info("product created",
		zap.Int64("product_id", p.ID),
		zap.String("producer", p.ProducerID),
		zap.Int64("price", p.PricePerUnit))

	return &p, nil
}

// UpdateState advances the lifecycle by exactly one step on behalf of the
// current owner.
func (s *Service) UpdateState(ctx context.Context, actorID string, id int64, next State) (*Product, error) {
	p, err := s.repo.AdvanceState(ctx, actorID, id, next)
	if err != nil {
		return nil, err
	}

	telemetry.StateTransitionsTotal.WithLabelValues(next.String()).Inc()
	s.logger.Info("product state advanced",
		zap.Int64("product_id", id),
		zap.String("state", next.String()))

	return &p, nil
}

// SetPriceWithMarkup reprices the product by an integer percentage markup.
func (s *Service) SetPriceWithMarkup(ctx context.Context, actorID string, id int64, markupPercent int64) (*Product, error) {
	p, err := s.repo.ApplyMarkup(ctx, actorID, id, markupPercent)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product repriced",
		zap.Int64("product_id", id),
		zap.Int64("markup_percent", markupPercent),
		zap.Int64("price", p.PricePerUnit))

	return &p, nil
}

// Get retrieves a product by id.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every tracked product.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}
