package inventory

import (
	"context"
	"time"

	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ExpirySweepService transitions batches that have passed their expiry date
// to expired status. The sweep changes status only: quantities stay put and
// no movements are written, because expired stock is still physically on the
// shelf until someone writes it off with an adjustment. It is invoked on
// demand or by an external scheduler; the engine itself runs no timers.
type ExpirySweepService struct {
	batchRepo      inventory.StockBatchRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewExpirySweepService creates a new ExpirySweepService
func NewExpirySweepService(batchRepo inventory.StockBatchRepository, logger *zap.Logger) *ExpirySweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpirySweepService{
		batchRepo: batchRepo,
		logger:    logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ExpirySweepService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Sweep finds batches past expiry that still carry an active status and
// marks them expired. Returns the number of batches transitioned.
func (s *ExpirySweepService) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	batches, err := s.batchRepo.FindExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range batches {
		batch := &batches[i]
		batch.MarkExpired()
		if err := s.batchRepo.Save(ctx, batch); err != nil {
			return swept, err
		}
		swept++

		s.logger.Info("batch marked expired",
			zap.String("batch_id", batch.ID.String()),
			zap.String("batch_number", batch.BatchNumber),
			zap.String("product_id", batch.ProductID.String()),
			zap.String("remaining_quantity", batch.CurrentQuantity.String()),
		)

		if s.eventPublisher != nil {
			_ = s.eventPublisher.Publish(ctx, inventory.NewBatchExpiredEvent(batch))
		}
	}

	return swept, nil
}
