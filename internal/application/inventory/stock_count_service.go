package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockCountService runs the reconciliation workflow: open a count, record
// the physical numbers, review, then post the discrepancies as adjustments
// through the allocation service.
type StockCountService struct {
	countRepo      inventory.StockCountRepository
	levelRepo      inventory.StockLevelRepository
	batchRepo      inventory.StockBatchRepository
	locationRepo   inventory.LocationRepository
	allocation     *AllocationService
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewStockCountService creates a new StockCountService
func NewStockCountService(
	countRepo inventory.StockCountRepository,
	levelRepo inventory.StockLevelRepository,
	batchRepo inventory.StockBatchRepository,
	locationRepo inventory.LocationRepository,
	allocation *AllocationService,
	logger *zap.Logger,
) *StockCountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockCountService{
		countRepo:    countRepo,
		levelRepo:    levelRepo,
		batchRepo:    batchRepo,
		locationRepo: locationRepo,
		allocation:   allocation,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *StockCountService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Create opens a count at a location, snapshotting the current stock levels
// into lines. Full counts take every product with a level at the location;
// spot and cycle counts take the explicitly listed products.
func (s *StockCountService) Create(ctx context.Context, req CreateStockCountRequest) (*StockCountResponse, error) {
	location, err := s.locationRepo.FindByID(ctx, req.LocationID)
	if err != nil {
		return nil, err
	}
	if !location.IsActive() {
		return nil, shared.NewDomainError("LOCATION_INACTIVE", "Cannot count stock at an inactive location")
	}

	countType := inventory.StockCountTypeFull
	if req.Type != "" {
		countType = inventory.StockCountType(req.Type)
	}
	if countType != inventory.StockCountTypeFull && len(req.ProductIDs) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Cycle and spot counts require a product list")
	}

	count, err := inventory.NewStockCount(s.nextCountNumber(), req.LocationID, countType, time.Now(), req.CreatedBy)
	if err != nil {
		return nil, err
	}
	if req.Notes != "" {
		count.Notes = req.Notes
	}

	if countType == inventory.StockCountTypeFull {
		levels, err := s.levelRepo.FindByLocation(ctx, req.LocationID, shared.Filter{Page: 1, PageSize: 10000})
		if err != nil {
			return nil, err
		}
		for i := range levels {
			unitCost, err := s.lineUnitCost(ctx, levels[i].ProductID, req.LocationID)
			if err != nil {
				return nil, err
			}
			if err := count.AddLine(levels[i].ProductID, nil, levels[i].Quantity, unitCost); err != nil {
				return nil, err
			}
		}
	} else {
		for _, productID := range req.ProductIDs {
			systemQty := decimal.Zero
			level, err := s.levelRepo.FindByProductAndLocation(ctx, productID, req.LocationID)
			switch {
			case err == nil:
				systemQty = level.Quantity
			case isNotFound(err):
				// No level yet means the system believes zero are on hand
			default:
				return nil, err
			}
			unitCost, err := s.lineUnitCost(ctx, productID, req.LocationID)
			if err != nil {
				return nil, err
			}
			if err := count.AddLine(productID, nil, systemQty, unitCost); err != nil {
				return nil, err
			}
		}
	}

	if err := s.countRepo.Save(ctx, count); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, count)

	response := ToStockCountResponse(count)
	return &response, nil
}

// Get returns a count with its lines
func (s *StockCountService) Get(ctx context.Context, id uuid.UUID) (*StockCountResponse, error) {
	count, err := s.countRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToStockCountResponse(count)
	return &response, nil
}

// ListByLocation returns counts at a location, newest first
func (s *StockCountService) ListByLocation(ctx context.Context, locationID uuid.UUID, filter shared.Filter) ([]StockCountResponse, error) {
	counts, err := s.countRepo.FindByLocation(ctx, locationID, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]StockCountResponse, 0, len(counts))
	for i := range counts {
		responses = append(responses, ToStockCountResponse(&counts[i]))
	}
	return responses, nil
}

// RecordCounts records physical counts for one or more lines of a draft count
func (s *StockCountService) RecordCounts(ctx context.Context, countID uuid.UUID, lines []RecordCountLineRequest) (*StockCountResponse, error) {
	count, err := s.countRepo.FindByID(ctx, countID)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		if err := count.RecordCount(line.ProductID, line.BatchID, line.Counted, line.Notes); err != nil {
			return nil, err
		}
	}

	if err := s.countRepo.Save(ctx, count); err != nil {
		return nil, err
	}

	response := ToStockCountResponse(count)
	return &response, nil
}

// Submit locks the count for review
func (s *StockCountService) Submit(ctx context.Context, countID uuid.UUID) (*StockCountResponse, error) {
	return s.transition(ctx, countID, func(count *inventory.StockCount) error {
		return count.Submit()
	})
}

// Approve records the reviewer's sign-off
func (s *StockCountService) Approve(ctx context.Context, countID, approverID uuid.UUID) (*StockCountResponse, error) {
	return s.transition(ctx, countID, func(count *inventory.StockCount) error {
		return count.Approve(approverID)
	})
}

// Cancel abandons a count that has not been posted
func (s *StockCountService) Cancel(ctx context.Context, countID uuid.UUID, reason string) (*StockCountResponse, error) {
	return s.transition(ctx, countID, func(count *inventory.StockCount) error {
		return count.Cancel(reason)
	})
}

// Post applies an approved count to stock: every counted line with a non-zero
// discrepancy becomes an adjustment. Each line is flagged once its adjustment
// lands, so re-running Post after a partial failure skips the lines that
// already made it through.
func (s *StockCountService) Post(ctx context.Context, countID, postedBy uuid.UUID) (*StockCountResponse, error) {
	count, err := s.countRepo.FindByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	if count.Status != inventory.StockCountStatusApproved {
		return nil, shared.NewDomainError("INVALID_STATUS", "Only approved counts can be posted")
	}

	for i := range count.Lines {
		line := &count.Lines[i]
		if !line.Counted || line.AdjustmentPosted || line.Discrepancy.IsZero() {
			continue
		}

		adjustReq := AdjustStockRequest{
			ProductID:       line.ProductID,
			LocationID:      count.LocationID,
			CountedQuantity: line.CountedQuantity,
			Reason:          s.postingReason(count, line),
			ReferenceType:   "stock_count",
			ReferenceID:     &count.ID,
			RecordedBy:      postedBy,
		}
		if line.Discrepancy.IsNegative() {
			// The approver authorized the shrinkage when signing off
			adjustReq.AuthorizedBy = count.ApprovedBy
		}

		if _, err := s.allocation.Adjust(ctx, adjustReq); err != nil {
			s.logger.Error("failed to post stock count line",
				zap.String("count_number", count.CountNumber),
				zap.String("product_id", line.ProductID.String()),
				zap.Error(err),
			)
			return nil, err
		}

		line.MarkAdjustmentPosted()
		if err := s.countRepo.Save(ctx, count); err != nil {
			return nil, err
		}
	}

	if err := count.MarkPosted(); err != nil {
		return nil, err
	}
	if err := s.countRepo.SaveWithLock(ctx, count); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, count)

	response := ToStockCountResponse(count)
	return &response, nil
}

func (s *StockCountService) transition(ctx context.Context, countID uuid.UUID, fn func(count *inventory.StockCount) error) (*StockCountResponse, error) {
	count, err := s.countRepo.FindByID(ctx, countID)
	if err != nil {
		return nil, err
	}
	if err := fn(count); err != nil {
		return nil, err
	}
	if err := s.countRepo.SaveWithLock(ctx, count); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, count)

	response := ToStockCountResponse(count)
	return &response, nil
}

// lineUnitCost values a count line at the cost of the earliest-expiring
// usable batch, falling back to zero when the pair holds no batches.
func (s *StockCountService) lineUnitCost(ctx context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error) {
	batches, err := s.batchRepo.FindUsable(ctx, productID, locationID, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	if len(batches) == 0 {
		return decimal.Zero, nil
	}
	return batches[0].UnitCost, nil
}

func (s *StockCountService) nextCountNumber() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("CNT-%s-%s", time.Now().Format("20060102"), suffix)
}

func (s *StockCountService) postingReason(count *inventory.StockCount, line *inventory.StockCountLine) string {
	if line.Notes != "" {
		return fmt.Sprintf("Stock count %s: %s", count.CountNumber, line.Notes)
	}
	return fmt.Sprintf("Stock count %s", count.CountNumber)
}

func (s *StockCountService) publishEvents(ctx context.Context, count *inventory.StockCount) {
	if s.eventPublisher == nil {
		return
	}
	events := count.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	_ = s.eventPublisher.Publish(ctx, events...)
	count.ClearDomainEvents()
}
