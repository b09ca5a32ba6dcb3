package inventory

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeLocation   = "Location"
	AggregateTypeStockLevel = "StockLevel"
	AggregateTypeStockBatch = "StockBatch"
	AggregateTypeStockCount = "StockCount"
)

// Event type constants
const (
	EventTypeLocationCreated      = "LocationCreated"
	EventTypeLocationDeactivated  = "LocationDeactivated"
	EventTypeStockReceived        = "StockReceived"
	EventTypeStockDispensed       = "StockDispensed"
	EventTypeStockTransferred     = "StockTransferred"
	EventTypeStockAdjusted        = "StockAdjusted"
	EventTypeStockReserved        = "StockReserved"
	EventTypeStockReleased        = "StockReleased"
	EventTypeStockBelowMinimum    = "StockBelowMinimum"
	EventTypeBatchExpired         = "BatchExpired"
	EventTypeStockCountCreated    = "StockCountCreated"
	EventTypeStockCountSubmitted  = "StockCountSubmitted"
	EventTypeStockCountApproved   = "StockCountApproved"
	EventTypeStockCountPosted     = "StockCountPosted"
	EventTypeStockCountCancelled  = "StockCountCancelled"
)

// LocationCreatedEvent is raised when a new storage location is registered
type LocationCreatedEvent struct {
	shared.BaseDomainEvent
	LocationID   uuid.UUID    `json:"location_id"`
	Name         string       `json:"name"`
	LocationType LocationType `json:"location_type"`
}

// NewLocationCreatedEvent creates a new LocationCreatedEvent
func NewLocationCreatedEvent(location *Location) *LocationCreatedEvent {
	return &LocationCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLocationCreated, AggregateTypeLocation, location.ID),
		LocationID:      location.ID,
		Name:            location.Name,
		LocationType:    location.Type,
	}
}

// EventType returns the event type name
func (e *LocationCreatedEvent) EventType() string {
	return EventTypeLocationCreated
}

// LocationDeactivatedEvent is raised when a location is taken out of service
type LocationDeactivatedEvent struct {
	shared.BaseDomainEvent
	LocationID uuid.UUID `json:"location_id"`
	Name       string    `json:"name"`
}

// NewLocationDeactivatedEvent creates a new LocationDeactivatedEvent
func NewLocationDeactivatedEvent(location *Location) *LocationDeactivatedEvent {
	return &LocationDeactivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLocationDeactivated, AggregateTypeLocation, location.ID),
		LocationID:      location.ID,
		Name:            location.Name,
	}
}

// EventType returns the event type name
func (e *LocationDeactivatedEvent) EventType() string {
	return EventTypeLocationDeactivated
}

// StockReceivedEvent is raised when stock is received into a location
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	BatchID     uuid.UUID       `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// NewStockReceivedEvent creates a new StockReceivedEvent
func NewStockReceivedEvent(batch *StockBatch) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReceived, AggregateTypeStockBatch, batch.ID),
		ProductID:       batch.ProductID,
		LocationID:      batch.LocationID,
		BatchID:         batch.ID,
		BatchNumber:     batch.BatchNumber,
		Quantity:        batch.InitialQuantity,
		UnitCost:        batch.UnitCost,
	}
}

// EventType returns the event type name
func (e *StockReceivedEvent) EventType() string {
	return EventTypeStockReceived
}

// StockDispensedEvent is raised when stock is dispensed from a location.
// BatchIDs preserves the allocation order across the batches consumed.
type StockDispensedEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	BatchIDs   []uuid.UUID     `json:"batch_ids"`
}

// NewStockDispensedEvent creates a new StockDispensedEvent
func NewStockDispensedEvent(level *StockLevel, quantity decimal.Decimal, batchIDs []uuid.UUID) *StockDispensedEvent {
	return &StockDispensedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockDispensed, AggregateTypeStockLevel, level.ID),
		ProductID:       level.ProductID,
		LocationID:      level.LocationID,
		Quantity:        quantity,
		BatchIDs:        batchIDs,
	}
}

// EventType returns the event type name
func (e *StockDispensedEvent) EventType() string {
	return EventTypeStockDispensed
}

// StockTransferredEvent is raised when stock moves between locations
type StockTransferredEvent struct {
	shared.BaseDomainEvent
	ProductID      uuid.UUID       `json:"product_id"`
	BatchID        uuid.UUID       `json:"batch_id"`
	FromLocationID uuid.UUID       `json:"from_location_id"`
	ToLocationID   uuid.UUID       `json:"to_location_id"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// NewStockTransferredEvent creates a new StockTransferredEvent
func NewStockTransferredEvent(batch *StockBatch, fromLocationID, toLocationID uuid.UUID, quantity decimal.Decimal) *StockTransferredEvent {
	return &StockTransferredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockTransferred, AggregateTypeStockBatch, batch.ID),
		ProductID:       batch.ProductID,
		BatchID:         batch.ID,
		FromLocationID:  fromLocationID,
		ToLocationID:    toLocationID,
		Quantity:        quantity,
	}
}

// EventType returns the event type name
func (e *StockTransferredEvent) EventType() string {
	return EventTypeStockTransferred
}

// StockAdjustedEvent is raised when a count overwrites a stock level
type StockAdjustedEvent struct {
	shared.BaseDomainEvent
	ProductID   uuid.UUID       `json:"product_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	Discrepancy decimal.Decimal `json:"discrepancy"` // Counted - system
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

// NewStockAdjustedEvent creates a new StockAdjustedEvent
func NewStockAdjustedEvent(level *StockLevel, discrepancy decimal.Decimal) *StockAdjustedEvent {
	return &StockAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockAdjusted, AggregateTypeStockLevel, level.ID),
		ProductID:       level.ProductID,
		LocationID:      level.LocationID,
		Discrepancy:     discrepancy,
		NewQuantity:     level.Quantity,
	}
}

// EventType returns the event type name
func (e *StockAdjustedEvent) EventType() string {
	return EventTypeStockAdjusted
}

// StockReservedEvent is raised when stock is held for a pending order
type StockReservedEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// NewStockReservedEvent creates a new StockReservedEvent
func NewStockReservedEvent(level *StockLevel, quantity decimal.Decimal) *StockReservedEvent {
	return &StockReservedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReserved, AggregateTypeStockLevel, level.ID),
		ProductID:       level.ProductID,
		LocationID:      level.LocationID,
		Quantity:        quantity,
	}
}

// EventType returns the event type name
func (e *StockReservedEvent) EventType() string {
	return EventTypeStockReserved
}

// StockReleasedEvent is raised when a reservation is returned to the pool
type StockReleasedEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// NewStockReleasedEvent creates a new StockReleasedEvent
func NewStockReleasedEvent(level *StockLevel, quantity decimal.Decimal) *StockReleasedEvent {
	return &StockReleasedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReleased, AggregateTypeStockLevel, level.ID),
		ProductID:       level.ProductID,
		LocationID:      level.LocationID,
		Quantity:        quantity,
	}
}

// EventType returns the event type name
func (e *StockReleasedEvent) EventType() string {
	return EventTypeStockReleased
}

// StockBelowMinimumEvent is raised when a mutation leaves the quantity at or
// below the configured minimum. Reorder automation subscribes to this.
type StockBelowMinimumEvent struct {
	shared.BaseDomainEvent
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	MinLevel   decimal.Decimal `json:"min_level"`
}

// NewStockBelowMinimumEvent creates a new StockBelowMinimumEvent
func NewStockBelowMinimumEvent(level *StockLevel) *StockBelowMinimumEvent {
	minLevel := decimal.Zero
	if level.MinLevel != nil {
		minLevel = *level.MinLevel
	}
	return &StockBelowMinimumEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockBelowMinimum, AggregateTypeStockLevel, level.ID),
		ProductID:       level.ProductID,
		LocationID:      level.LocationID,
		Quantity:        level.Quantity,
		MinLevel:        minLevel,
	}
}

// EventType returns the event type name
func (e *StockBelowMinimumEvent) EventType() string {
	return EventTypeStockBelowMinimum
}

// BatchExpiredEvent is raised when an expiry sweep transitions a batch
type BatchExpiredEvent struct {
	shared.BaseDomainEvent
	BatchID     uuid.UUID       `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	ProductID   uuid.UUID       `json:"product_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	Quantity    decimal.Decimal `json:"quantity"` // Quantity still in the batch at expiry
}

// NewBatchExpiredEvent creates a new BatchExpiredEvent
func NewBatchExpiredEvent(batch *StockBatch) *BatchExpiredEvent {
	return &BatchExpiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBatchExpired, AggregateTypeStockBatch, batch.ID),
		BatchID:         batch.ID,
		BatchNumber:     batch.BatchNumber,
		ProductID:       batch.ProductID,
		LocationID:      batch.LocationID,
		Quantity:        batch.CurrentQuantity,
	}
}

// EventType returns the event type name
func (e *BatchExpiredEvent) EventType() string {
	return EventTypeBatchExpired
}

// StockCountCreatedEvent is raised when a reconciliation count is opened
type StockCountCreatedEvent struct {
	shared.BaseDomainEvent
	StockCountID uuid.UUID      `json:"stock_count_id"`
	CountNumber  string         `json:"count_number"`
	LocationID   uuid.UUID      `json:"location_id"`
	CountType    StockCountType `json:"count_type"`
}

// NewStockCountCreatedEvent creates a new StockCountCreatedEvent
func NewStockCountCreatedEvent(sc *StockCount) *StockCountCreatedEvent {
	return &StockCountCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCountCreated, AggregateTypeStockCount, sc.ID),
		StockCountID:    sc.ID,
		CountNumber:     sc.CountNumber,
		LocationID:      sc.LocationID,
		CountType:       sc.Type,
	}
}

// EventType returns the event type name
func (e *StockCountCreatedEvent) EventType() string {
	return EventTypeStockCountCreated
}

// StockCountSubmittedEvent is raised when counting finishes and review begins
type StockCountSubmittedEvent struct {
	shared.BaseDomainEvent
	StockCountID     uuid.UUID       `json:"stock_count_id"`
	CountNumber      string          `json:"count_number"`
	DiscrepancyLines int             `json:"discrepancy_lines"`
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy"`
}

// NewStockCountSubmittedEvent creates a new StockCountSubmittedEvent
func NewStockCountSubmittedEvent(sc *StockCount) *StockCountSubmittedEvent {
	return &StockCountSubmittedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeStockCountSubmitted, AggregateTypeStockCount, sc.ID),
		StockCountID:     sc.ID,
		CountNumber:      sc.CountNumber,
		DiscrepancyLines: sc.DiscrepancyLines,
		TotalDiscrepancy: sc.TotalDiscrepancy,
	}
}

// EventType returns the event type name
func (e *StockCountSubmittedEvent) EventType() string {
	return EventTypeStockCountSubmitted
}

// StockCountApprovedEvent is raised when a reviewer signs off on a count
type StockCountApprovedEvent struct {
	shared.BaseDomainEvent
	StockCountID uuid.UUID `json:"stock_count_id"`
	CountNumber  string    `json:"count_number"`
	ApprovedBy   uuid.UUID `json:"approved_by"`
}

// NewStockCountApprovedEvent creates a new StockCountApprovedEvent
func NewStockCountApprovedEvent(sc *StockCount) *StockCountApprovedEvent {
	approvedBy := uuid.Nil
	if sc.ApprovedBy != nil {
		approvedBy = *sc.ApprovedBy
	}
	return &StockCountApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCountApproved, AggregateTypeStockCount, sc.ID),
		StockCountID:    sc.ID,
		CountNumber:     sc.CountNumber,
		ApprovedBy:      approvedBy,
	}
}

// EventType returns the event type name
func (e *StockCountApprovedEvent) EventType() string {
	return EventTypeStockCountApproved
}

// StockCountPostedEvent is raised after a count's adjustments hit the ledger
type StockCountPostedEvent struct {
	shared.BaseDomainEvent
	StockCountID     uuid.UUID       `json:"stock_count_id"`
	CountNumber      string          `json:"count_number"`
	DiscrepancyLines int             `json:"discrepancy_lines"`
	TotalDiscrepancy decimal.Decimal `json:"total_discrepancy"`
}

// NewStockCountPostedEvent creates a new StockCountPostedEvent
func NewStockCountPostedEvent(sc *StockCount) *StockCountPostedEvent {
	return &StockCountPostedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeStockCountPosted, AggregateTypeStockCount, sc.ID),
		StockCountID:     sc.ID,
		CountNumber:      sc.CountNumber,
		DiscrepancyLines: sc.DiscrepancyLines,
		TotalDiscrepancy: sc.TotalDiscrepancy,
	}
}

// EventType returns the event type name
func (e *StockCountPostedEvent) EventType() string {
	return EventTypeStockCountPosted
}

// StockCountCancelledEvent is raised when a count is abandoned
type StockCountCancelledEvent struct {
	shared.BaseDomainEvent
	StockCountID uuid.UUID `json:"stock_count_id"`
	CountNumber  string    `json:"count_number"`
}

// NewStockCountCancelledEvent creates a new StockCountCancelledEvent
func NewStockCountCancelledEvent(sc *StockCount) *StockCountCancelledEvent {
	return &StockCountCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockCountCancelled, AggregateTypeStockCount, sc.ID),
		StockCountID:    sc.ID,
		CountNumber:     sc.CountNumber,
	}
}

// EventType returns the event type name
func (e *StockCountCancelledEvent) EventType() string {
	return EventTypeStockCountCancelled
}
