package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// StockLevelCache is a read cache for hot stock level lookups. Entries are
// invalidated after every committed mutation; a miss always falls through to
// the repository.
type StockLevelCache interface {
	Get(ctx context.Context, productID, locationID uuid.UUID) (*StockLevelResponse, bool)
	Set(ctx context.Context, response StockLevelResponse)
	Invalidate(ctx context.Context, productID, locationID uuid.UUID)
}

// AllocationService coordinates the stock mutations: receive, dispense,
// transfer, adjust, reserve and release. Every mutation runs inside one
// transaction scope so the batch, level and ledger writes commit together,
// and serialization per (product, location) rides on the stock level's
// optimistic version.
type AllocationService struct {
	scope          TransactionScope
	levelRepo      inventory.StockLevelRepository
	batchRepo      inventory.StockBatchRepository
	movementRepo   inventory.StockMovementRepository
	locationRepo   inventory.LocationRepository
	eventPublisher shared.EventPublisher
	cache          StockLevelCache
	logger         *zap.Logger
}

// NewAllocationService creates a new AllocationService. The direct
// repositories serve reads; mutations go through the transaction scope.
func NewAllocationService(
	scope TransactionScope,
	levelRepo inventory.StockLevelRepository,
	batchRepo inventory.StockBatchRepository,
	movementRepo inventory.StockMovementRepository,
	locationRepo inventory.LocationRepository,
	logger *zap.Logger,
) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		scope:        scope,
		levelRepo:    levelRepo,
		batchRepo:    batchRepo,
		movementRepo: movementRepo,
		locationRepo: locationRepo,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetCache sets the stock level read cache
func (s *AllocationService) SetCache(cache StockLevelCache) {
	s.cache = cache
}

// maxLockRetries bounds how often a mutation is replayed after losing an
// optimistic-lock race on the stock level row.
const maxLockRetries = 3

// executeWithRetry runs the transactional body and replays it when the commit
// lost to a concurrent writer. Every retry starts a fresh transaction and
// re-reads current state, so the closure must reset anything it captures.
func (s *AllocationService) executeWithRetry(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.scope.Execute(ctx, fn)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) {
			return err
		}
		if attempt >= maxLockRetries {
			return err
		}
		s.logger.Debug("optimistic lock conflict, retrying mutation",
			zap.Int("attempt", attempt),
		)
	}
}

// Receive books a new batch into a location: the batch row, the stock level
// increment and the receive movement commit atomically.
func (s *AllocationService) Receive(ctx context.Context, req ReceiveStockRequest) (*BatchResponse, error) {
	location, err := s.locationRepo.FindByID(ctx, req.LocationID)
	if err != nil {
		return nil, err
	}
	if !location.IsActive() {
		return nil, shared.NewDomainError("LOCATION_INACTIVE", "Cannot receive stock into an inactive location")
	}

	batch, err := inventory.NewStockBatch(
		req.ProductID, req.LocationID, req.BatchNumber,
		req.Quantity, req.UnitCost, req.ExpiryDate, req.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}
	batch.LotNumber = req.LotNumber
	batch.SerialNumber = req.SerialNumber
	batch.ManufactureDate = req.ManufactureDate
	batch.SupplierID = req.SupplierID
	batch.PurchaseOrderID = req.PurchaseOrderID
	batch.Notes = req.Notes

	var events []shared.DomainEvent

	err = s.executeWithRetry(ctx, func(repos TransactionalRepositories) error {
		events = nil
		if err := repos.BatchRepo().Create(ctx, batch); err != nil {
			return err
		}

		level, err := repos.LevelRepo().GetOrCreate(ctx, req.ProductID, req.LocationID)
		if err != nil {
			return err
		}
		if err := level.ApplyDelta(req.Quantity, batch.ReceivedAt); err != nil {
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, level); err != nil {
			return err
		}

		movement, err := inventory.NewStockMovement(req.ProductID, inventory.MovementTypeReceive, req.Quantity, req.RecordedBy)
		if err != nil {
			return err
		}
		movement.WithBatch(batch.ID).
			WithToLocation(req.LocationID).
			WithUnitCost(req.UnitCost).
			WithOccurredAt(batch.ReceivedAt)
		if req.ReferenceType != "" && req.ReferenceID != nil {
			movement.WithReference(req.ReferenceType, *req.ReferenceID)
		}
		if err := repos.MovementRepo().Create(ctx, movement); err != nil {
			return err
		}

		events = append(events, inventory.NewStockReceivedEvent(batch))
		events = append(events, level.GetDomainEvents()...)
		level.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, req.ProductID, req.LocationID, events)

	response := ToBatchResponse(batch)
	return &response, nil
}

// Dispense allocates stock FEFO and writes it out. The allocation is
// all-or-nothing: when the usable batches cannot cover the request, nothing
// is written and the caller gets an insufficient stock error. One movement is
// appended per batch the request was split across, in allocation order.
func (s *AllocationService) Dispense(ctx context.Context, req DispenseStockRequest) (*DispenseResult, error) {
	movementType := req.MovementType
	if movementType == "" {
		movementType = inventory.MovementTypeDispense
	}
	if !movementType.IsOutbound() || movementType == inventory.MovementTypeTransferOut {
		return nil, shared.NewDomainError("INVALID_MOVEMENT_TYPE",
			"Dispense requires an outbound, non-transfer movement type")
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Dispensed quantity must be positive")
	}

	now := time.Now()
	var (
		events []shared.DomainEvent
		result *DispenseResult
	)

	err := s.executeWithRetry(ctx, func(repos TransactionalRepositories) error {
		events, result = nil, nil
		level, err := repos.LevelRepo().FindByProductAndLocation(ctx, req.ProductID, req.LocationID)
		if err != nil {
			if isNotFound(err) {
				return shared.ErrInsufficientStock
			}
			return err
		}
		if req.Quantity.GreaterThan(level.AvailableQuantity()) {
			return shared.NewDomainError("INSUFFICIENT_STOCK",
				fmt.Sprintf("Requested %s but only %s is available",
					req.Quantity.String(), level.AvailableQuantity().String()))
		}

		batches, err := repos.BatchRepo().FindUsable(ctx, req.ProductID, req.LocationID, now)
		if err != nil {
			return err
		}

		plan, err := inventory.PlanAllocation(req.Quantity, batches, now)
		if err != nil {
			return err
		}
		if !plan.FullyFulfilled {
			return shared.NewDomainError("INSUFFICIENT_STOCK",
				fmt.Sprintf("Usable batches cover %s of the requested %s",
					plan.TotalAllocated.String(), req.Quantity.String()))
		}

		batchPtrs := make([]*inventory.StockBatch, len(batches))
		for i := range batches {
			batchPtrs[i] = &batches[i]
		}
		if err := inventory.ApplyAllocation(batchPtrs, plan); err != nil {
			return err
		}
		if err := repos.BatchRepo().SaveAll(ctx, batchPtrs); err != nil {
			return err
		}

		if err := level.ApplyDelta(req.Quantity.Neg(), now); err != nil {
			if isDomainCode(err, "NEGATIVE_STOCK_LEVEL") {
				// Batches covered the plan but the level disagrees; the
				// pairing invariant is broken somewhere upstream.
				s.logger.Error("stock level would go negative on dispense",
					zap.String("product_id", req.ProductID.String()),
					zap.String("location_id", req.LocationID.String()),
					zap.String("quantity", req.Quantity.String()),
				)
			}
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, level); err != nil {
			return err
		}

		movements := make([]*inventory.StockMovement, 0, len(plan.Lines))
		batchIDs := make([]uuid.UUID, 0, len(plan.Lines))
		for _, line := range plan.Lines {
			movement, err := inventory.NewStockMovement(req.ProductID, movementType, line.Quantity, req.RecordedBy)
			if err != nil {
				return err
			}
			movement.WithBatch(line.BatchID).
				WithFromLocation(req.LocationID).
				WithUnitCost(line.UnitCost).
				WithReason(req.Reason).
				WithOccurredAt(now)
			if req.ReferenceType != "" && req.ReferenceID != nil {
				movement.WithReference(req.ReferenceType, *req.ReferenceID)
			}
			movements = append(movements, movement)
			batchIDs = append(batchIDs, line.BatchID)
		}
		if err := repos.MovementRepo().CreateAll(ctx, movements); err != nil {
			return err
		}

		responses := make([]MovementResponse, 0, len(movements))
		for _, movement := range movements {
			responses = append(responses, ToMovementResponse(movement))
		}
		result = &DispenseResult{
			ProductID:  req.ProductID,
			LocationID: req.LocationID,
			Quantity:   req.Quantity,
			TotalCost:  plan.TotalCost,
			Movements:  responses,
		}

		events = append(events, inventory.NewStockDispensedEvent(level, req.Quantity, batchIDs))
		events = append(events, level.GetDomainEvents()...)
		level.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, req.ProductID, req.LocationID, events)

	return result, nil
}

// Transfer moves quantity of a specific batch between locations. Both sides
// commit together: the source batch and level go down, the destination batch
// and level go up, and a transfer_out/transfer_in pair lands in the ledger.
func (s *AllocationService) Transfer(ctx context.Context, req TransferStockRequest) (*TransferResult, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Transferred quantity must be positive")
	}
	if req.FromLocationID == req.ToLocationID {
		return nil, shared.NewDomainError("INVALID_INPUT", "Transfer source and destination must differ")
	}

	destination, err := s.locationRepo.FindByID(ctx, req.ToLocationID)
	if err != nil {
		return nil, err
	}
	if !destination.IsActive() {
		return nil, shared.NewDomainError("LOCATION_INACTIVE", "Cannot transfer stock into an inactive location")
	}

	now := time.Now()
	var (
		events []shared.DomainEvent
		result *TransferResult
	)

	err = s.executeWithRetry(ctx, func(repos TransactionalRepositories) error {
		events, result = nil, nil
		source, err := repos.BatchRepo().FindByID(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if source.LocationID != req.FromLocationID {
			return shared.NewDomainError("INVALID_INPUT", "Batch does not belong to the source location")
		}
		if !source.IsUsable(now) {
			return shared.NewDomainError("BATCH_NOT_USABLE", "Batch cannot be transferred in its current state")
		}

		if err := source.Deduct(req.Quantity); err != nil {
			return err
		}
		if err := repos.BatchRepo().Save(ctx, source); err != nil {
			return err
		}

		// Reuse an existing destination batch carrying the same lot,
		// otherwise open one with the source batch's metadata.
		dest, err := repos.BatchRepo().FindByBatchNumber(ctx, source.ProductID, req.ToLocationID, source.BatchNumber)
		switch {
		case err == nil:
			if err := dest.Add(req.Quantity); err != nil {
				return err
			}
			if err := repos.BatchRepo().Save(ctx, dest); err != nil {
				return err
			}
		case isNotFound(err):
			dest, err = inventory.NewStockBatch(
				source.ProductID, req.ToLocationID, source.BatchNumber,
				req.Quantity, source.UnitCost, source.ExpiryDate, now,
			)
			if err != nil {
				return err
			}
			dest.LotNumber = source.LotNumber
			dest.SerialNumber = source.SerialNumber
			dest.ManufactureDate = source.ManufactureDate
			dest.SupplierID = source.SupplierID
			if err := repos.BatchRepo().Create(ctx, dest); err != nil {
				return err
			}
		default:
			return err
		}

		fromLevel, err := repos.LevelRepo().GetOrCreate(ctx, source.ProductID, req.FromLocationID)
		if err != nil {
			return err
		}
		if err := fromLevel.ApplyDelta(req.Quantity.Neg(), now); err != nil {
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, fromLevel); err != nil {
			return err
		}

		toLevel, err := repos.LevelRepo().GetOrCreate(ctx, source.ProductID, req.ToLocationID)
		if err != nil {
			return err
		}
		if err := toLevel.ApplyDelta(req.Quantity, now); err != nil {
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, toLevel); err != nil {
			return err
		}

		out, err := inventory.NewStockMovement(source.ProductID, inventory.MovementTypeTransferOut, req.Quantity, req.RecordedBy)
		if err != nil {
			return err
		}
		out.WithBatch(source.ID).
			WithFromLocation(req.FromLocationID).
			WithToLocation(req.ToLocationID).
			WithUnitCost(source.UnitCost).
			WithReason(req.Reason).
			WithOccurredAt(now)

		in, err := inventory.NewStockMovement(source.ProductID, inventory.MovementTypeTransferIn, req.Quantity, req.RecordedBy)
		if err != nil {
			return err
		}
		in.WithBatch(dest.ID).
			WithFromLocation(req.FromLocationID).
			WithToLocation(req.ToLocationID).
			WithUnitCost(source.UnitCost).
			WithReason(req.Reason).
			WithOccurredAt(now)

		if err := repos.MovementRepo().CreateAll(ctx, []*inventory.StockMovement{out, in}); err != nil {
			return err
		}

		result = &TransferResult{
			ProductID:          source.ProductID,
			SourceBatchID:      source.ID,
			DestinationBatchID: dest.ID,
			FromLocationID:     req.FromLocationID,
			ToLocationID:       req.ToLocationID,
			Quantity:           req.Quantity,
			Movements:          []MovementResponse{ToMovementResponse(out), ToMovementResponse(in)},
		}

		events = append(events, inventory.NewStockTransferredEvent(source, req.FromLocationID, req.ToLocationID, req.Quantity))
		events = append(events, fromLevel.GetDomainEvents()...)
		events = append(events, toLevel.GetDomainEvents()...)
		fromLevel.ClearDomainEvents()
		toLevel.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result != nil {
		s.afterCommit(ctx, result.ProductID, req.FromLocationID, events)
		if s.cache != nil {
			s.cache.Invalidate(ctx, result.ProductID, req.ToLocationID)
		}
	}

	return result, nil
}

// Adjust reconciles a stock level with a physical count. The counted value is
// authoritative: the level is overwritten, and the discrepancy is booked as
// an adjustment movement. A zero discrepancy writes no movement. Removing
// stock requires an authorizing user.
func (s *AllocationService) Adjust(ctx context.Context, req AdjustStockRequest) (*AdjustResult, error) {
	if req.CountedQuantity.IsNegative() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Counted quantity cannot be negative")
	}

	now := time.Now()
	var (
		events []shared.DomainEvent
		result *AdjustResult
	)

	err := s.executeWithRetry(ctx, func(repos TransactionalRepositories) error {
		events, result = nil, nil
		level, err := repos.LevelRepo().GetOrCreate(ctx, req.ProductID, req.LocationID)
		if err != nil {
			return err
		}

		discrepancy := req.CountedQuantity.Sub(level.Quantity)

		if discrepancy.IsNegative() && req.AuthorizedBy == nil {
			return shared.NewDomainError("AUTHORIZATION_REQUIRED",
				"Removing stock through an adjustment requires an authorizing user")
		}

		if err := level.SetCounted(req.CountedQuantity, now); err != nil {
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, level); err != nil {
			return err
		}

		result = &AdjustResult{
			ProductID:   req.ProductID,
			LocationID:  req.LocationID,
			Discrepancy: discrepancy,
			NewQuantity: level.Quantity,
		}

		if !discrepancy.IsZero() {
			movementType := inventory.MovementTypeAdjustmentAdd
			if discrepancy.IsNegative() {
				movementType = inventory.MovementTypeAdjustmentRemove
			}
			movement, err := inventory.NewStockMovement(req.ProductID, movementType, discrepancy.Abs(), req.RecordedBy)
			if err != nil {
				return err
			}
			movement.WithReason(req.Reason).WithOccurredAt(now)
			if movementType == inventory.MovementTypeAdjustmentAdd {
				movement.WithToLocation(req.LocationID)
			} else {
				movement.WithFromLocation(req.LocationID)
			}
			if req.ReferenceType != "" && req.ReferenceID != nil {
				movement.WithReference(req.ReferenceType, *req.ReferenceID)
			}
			if req.AuthorizedBy != nil {
				movement.WithAuthorizer(*req.AuthorizedBy)
			}
			if err := repos.MovementRepo().Create(ctx, movement); err != nil {
				return err
			}
			response := ToMovementResponse(movement)
			result.Movement = &response

			events = append(events, inventory.NewStockAdjustedEvent(level, discrepancy))
		}

		events = append(events, level.GetDomainEvents()...)
		level.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, req.ProductID, req.LocationID, events)

	return result, nil
}

// Reserve holds available quantity for a pending order. Reservations are
// bookkeeping only; no movement is written until the stock actually leaves.
func (s *AllocationService) Reserve(ctx context.Context, req ReserveStockRequest) (*StockLevelResponse, error) {
	return s.mutateLevel(ctx, req.ProductID, req.LocationID, func(level *inventory.StockLevel) error {
		return level.Reserve(req.Quantity)
	})
}

// Release returns reserved quantity to the available pool
func (s *AllocationService) Release(ctx context.Context, req ReleaseStockRequest) (*StockLevelResponse, error) {
	return s.mutateLevel(ctx, req.ProductID, req.LocationID, func(level *inventory.StockLevel) error {
		return level.Release(req.Quantity)
	})
}

func (s *AllocationService) mutateLevel(
	ctx context.Context,
	productID, locationID uuid.UUID,
	mutate func(level *inventory.StockLevel) error,
) (*StockLevelResponse, error) {
	var (
		events   []shared.DomainEvent
		response StockLevelResponse
	)

	err := s.executeWithRetry(ctx, func(repos TransactionalRepositories) error {
		events = nil
		level, err := repos.LevelRepo().FindByProductAndLocation(ctx, productID, locationID)
		if err != nil {
			return err
		}
		if err := mutate(level); err != nil {
			return err
		}
		if err := repos.LevelRepo().SaveWithLock(ctx, level); err != nil {
			return err
		}
		events = append(events, level.GetDomainEvents()...)
		level.ClearDomainEvents()
		response = ToStockLevelResponse(level)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, productID, locationID, events)

	return &response, nil
}

// GetStockLevel returns the stock level for a product at a location,
// cache-aside over the repository.
func (s *AllocationService) GetStockLevel(ctx context.Context, productID, locationID uuid.UUID) (*StockLevelResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, productID, locationID); ok {
			return cached, nil
		}
	}

	level, err := s.levelRepo.FindByProductAndLocation(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}

	response := ToStockLevelResponse(level)
	if s.cache != nil {
		s.cache.Set(ctx, response)
	}
	return &response, nil
}

// ListBatches returns all batches for a product at a location in FEFO order
func (s *AllocationService) ListBatches(ctx context.Context, productID, locationID uuid.UUID) ([]BatchResponse, error) {
	batches, err := s.batchRepo.FindByProductAndLocation(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	responses := make([]BatchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, ToBatchResponse(&batches[i]))
	}
	return responses, nil
}

// MovementHistory returns a page of ledger entries, newest-first. Callers
// that leave the page fields zero get the default page size.
func (s *AllocationService) MovementHistory(ctx context.Context, filter inventory.MovementHistoryFilter) (*shared.Paginated[MovementResponse], error) {
	defaults := shared.DefaultFilter()
	if filter.Page <= 0 {
		filter.Page = defaults.Page
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaults.PageSize
	}

	movements, total, err := s.movementRepo.History(ctx, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]MovementResponse, 0, len(movements))
	for i := range movements {
		responses = append(responses, ToMovementResponse(&movements[i]))
	}
	page := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &page, nil
}

// CheckLedger recomputes the balance for a product at a location from the
// movement ledger and compares it with the stock level. A mismatch means the
// pairing invariant was violated and the pair needs a reconciliation count.
func (s *AllocationService) CheckLedger(ctx context.Context, productID, locationID uuid.UUID) (*LedgerCheckResult, error) {
	level, err := s.levelRepo.FindByProductAndLocation(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.movementRepo.SignedSum(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}

	result := &LedgerCheckResult{
		ProductID:      productID,
		LocationID:     locationID,
		LevelQuantity:  level.Quantity,
		LedgerQuantity: ledger,
		Consistent:     level.Quantity.Equal(ledger),
	}
	if !result.Consistent {
		s.logger.Error("stock level diverged from movement ledger",
			zap.String("product_id", productID.String()),
			zap.String("location_id", locationID.String()),
			zap.String("level_quantity", level.Quantity.String()),
			zap.String("ledger_quantity", ledger.String()),
		)
	}
	return result, nil
}

// ExpiringBatches returns usable batches expiring within the window
func (s *AllocationService) ExpiringBatches(ctx context.Context, window time.Duration) ([]BatchResponse, error) {
	batches, err := s.batchRepo.FindExpiring(ctx, time.Now().Add(window))
	if err != nil {
		return nil, err
	}
	responses := make([]BatchResponse, 0, len(batches))
	for i := range batches {
		responses = append(responses, ToBatchResponse(&batches[i]))
	}
	return responses, nil
}

// BelowMinimum returns stock levels sitting at or under their minimum
func (s *AllocationService) BelowMinimum(ctx context.Context) ([]StockLevelResponse, error) {
	levels, err := s.levelRepo.FindBelowMinimum(ctx)
	if err != nil {
		return nil, err
	}
	responses := make([]StockLevelResponse, 0, len(levels))
	for i := range levels {
		responses = append(responses, ToStockLevelResponse(&levels[i]))
	}
	return responses, nil
}

// afterCommit publishes the collected domain events and drops the cached
// level for the touched pair. Both are best-effort; the transaction has
// already committed.
func (s *AllocationService) afterCommit(ctx context.Context, productID, locationID uuid.UUID, events []shared.DomainEvent) {
	if s.eventPublisher != nil && len(events) > 0 {
		_ = s.eventPublisher.Publish(ctx, events...)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID, locationID)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound) || isDomainCode(err, "NOT_FOUND")
}

func isDomainCode(err error, code string) bool {
	var domainErr *shared.DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
