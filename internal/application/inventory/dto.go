package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/inventory"
)

// ReceiveStockRequest is the input for receiving a new batch into a location
type ReceiveStockRequest struct {
	ProductID       uuid.UUID       `json:"product_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	BatchNumber     string          `json:"batch_number"`
	LotNumber       string          `json:"lot_number,omitempty"`
	SerialNumber    string          `json:"serial_number,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	ManufactureDate *time.Time      `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ReceivedAt      time.Time       `json:"received_at,omitempty"`
	SupplierID      *uuid.UUID      `json:"supplier_id,omitempty"`
	PurchaseOrderID *uuid.UUID      `json:"purchase_order_id,omitempty"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID      `json:"reference_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	RecordedBy      uuid.UUID       `json:"recorded_by"`
}

// DispenseStockRequest is the input for a FEFO dispense
type DispenseStockRequest struct {
	ProductID     uuid.UUID       `json:"product_id"`
	LocationID    uuid.UUID       `json:"location_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	// MovementType defaults to dispense; sale, sample and similar outbound
	// types reuse the same allocation path.
	MovementType  inventory.MovementType `json:"movement_type,omitempty"`
	ReferenceType string                 `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID             `json:"reference_id,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	RecordedBy    uuid.UUID              `json:"recorded_by"`
}

// TransferStockRequest is the input for moving batch quantity between locations
type TransferStockRequest struct {
	BatchID        uuid.UUID       `json:"batch_id"`
	FromLocationID uuid.UUID       `json:"from_location_id"`
	ToLocationID   uuid.UUID       `json:"to_location_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Reason         string          `json:"reason,omitempty"`
	RecordedBy     uuid.UUID       `json:"recorded_by"`
}

// AdjustStockRequest overwrites a stock level with a physically counted value
type AdjustStockRequest struct {
	ProductID       uuid.UUID       `json:"product_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	CountedQuantity decimal.Decimal `json:"counted_quantity"`
	Reason          string          `json:"reason"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     *uuid.UUID      `json:"reference_id,omitempty"`
	RecordedBy      uuid.UUID       `json:"recorded_by"`
	// AuthorizedBy is required when the adjustment removes stock
	AuthorizedBy *uuid.UUID `json:"authorized_by,omitempty"`
}

// ReserveStockRequest holds quantity for a pending order
type ReserveStockRequest struct {
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// ReleaseStockRequest returns reserved quantity to the pool
type ReleaseStockRequest struct {
	ProductID  uuid.UUID       `json:"product_id"`
	LocationID uuid.UUID       `json:"location_id"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// BatchResponse is the read model of a stock batch
type BatchResponse struct {
	ID              uuid.UUID       `json:"id"`
	ProductID       uuid.UUID       `json:"product_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	BatchNumber     string          `json:"batch_number"`
	LotNumber       string          `json:"lot_number,omitempty"`
	InitialQuantity decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	ExpiryDate      *time.Time      `json:"expiry_date,omitempty"`
	ReceivedAt      time.Time       `json:"received_at"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Status          string          `json:"status"`
	DaysUntilExpiry int             `json:"days_until_expiry"`
}

// ToBatchResponse converts a batch entity to its read model
func ToBatchResponse(batch *inventory.StockBatch) BatchResponse {
	return BatchResponse{
		ID:              batch.ID,
		ProductID:       batch.ProductID,
		LocationID:      batch.LocationID,
		BatchNumber:     batch.BatchNumber,
		LotNumber:       batch.LotNumber,
		InitialQuantity: batch.InitialQuantity,
		CurrentQuantity: batch.CurrentQuantity,
		ExpiryDate:      batch.ExpiryDate,
		ReceivedAt:      batch.ReceivedAt,
		UnitCost:        batch.UnitCost,
		Status:          string(batch.Status),
		DaysUntilExpiry: batch.DaysUntilExpiry(),
	}
}

// StockLevelResponse is the read model of a stock level
type StockLevelResponse struct {
	ID               uuid.UUID        `json:"id"`
	ProductID        uuid.UUID        `json:"product_id"`
	LocationID       uuid.UUID        `json:"location_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	ReservedQuantity decimal.Decimal  `json:"reserved_quantity"`
	Available        decimal.Decimal  `json:"available_quantity"`
	MinLevel         *decimal.Decimal `json:"min_level,omitempty"`
	BelowMinimum     bool             `json:"below_minimum"`
	LastCountedAt    *time.Time       `json:"last_counted_at,omitempty"`
	LastMovementAt   *time.Time       `json:"last_movement_at,omitempty"`
}

// ToStockLevelResponse converts a stock level aggregate to its read model
func ToStockLevelResponse(level *inventory.StockLevel) StockLevelResponse {
	return StockLevelResponse{
		ID:               level.ID,
		ProductID:        level.ProductID,
		LocationID:       level.LocationID,
		Quantity:         level.Quantity,
		ReservedQuantity: level.ReservedQuantity,
		Available:        level.AvailableQuantity(),
		MinLevel:         level.MinLevel,
		BelowMinimum:     level.IsBelowMinimum(),
		LastCountedAt:    level.LastCountedAt,
		LastMovementAt:   level.LastMovementAt,
	}
}

// MovementResponse is the read model of a ledger entry
type MovementResponse struct {
	ID             uuid.UUID        `json:"id"`
	ProductID      uuid.UUID        `json:"product_id"`
	BatchID        *uuid.UUID       `json:"batch_id,omitempty"`
	Type           string           `json:"type"`
	FromLocationID *uuid.UUID       `json:"from_location_id,omitempty"`
	ToLocationID   *uuid.UUID       `json:"to_location_id,omitempty"`
	Quantity       decimal.Decimal  `json:"quantity"`
	SignedQuantity decimal.Decimal  `json:"signed_quantity"`
	UnitCost       *decimal.Decimal `json:"unit_cost,omitempty"`
	ReferenceType  string           `json:"reference_type,omitempty"`
	ReferenceID    *uuid.UUID       `json:"reference_id,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	RecordedBy     uuid.UUID        `json:"recorded_by"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// ToMovementResponse converts a movement entity to its read model
func ToMovementResponse(movement *inventory.StockMovement) MovementResponse {
	return MovementResponse{
		ID:             movement.ID,
		ProductID:      movement.ProductID,
		BatchID:        movement.BatchID,
		Type:           string(movement.Type),
		FromLocationID: movement.FromLocationID,
		ToLocationID:   movement.ToLocationID,
		Quantity:       movement.Quantity,
		SignedQuantity: movement.SignedQuantity(),
		UnitCost:       movement.UnitCost,
		ReferenceType:  movement.ReferenceType,
		ReferenceID:    movement.ReferenceID,
		Reason:         movement.Reason,
		RecordedBy:     movement.RecordedBy,
		OccurredAt:     movement.OccurredAt,
	}
}

// DispenseResult reports a completed dispense: the movements in allocation
// order, one per batch the request was split across.
type DispenseResult struct {
	ProductID  uuid.UUID          `json:"product_id"`
	LocationID uuid.UUID          `json:"location_id"`
	Quantity   decimal.Decimal    `json:"quantity"`
	TotalCost  decimal.Decimal    `json:"total_cost"`
	Movements  []MovementResponse `json:"movements"`
}

// AdjustResult reports an applied adjustment
type AdjustResult struct {
	ProductID   uuid.UUID         `json:"product_id"`
	LocationID  uuid.UUID         `json:"location_id"`
	Discrepancy decimal.Decimal   `json:"discrepancy"` // Counted - system; zero means nothing happened
	NewQuantity decimal.Decimal   `json:"new_quantity"`
	Movement    *MovementResponse `json:"movement,omitempty"` // Absent for zero discrepancies
}

// TransferResult reports a completed transfer
type TransferResult struct {
	ProductID          uuid.UUID       `json:"product_id"`
	SourceBatchID      uuid.UUID       `json:"source_batch_id"`
	DestinationBatchID uuid.UUID       `json:"destination_batch_id"`
	FromLocationID     uuid.UUID       `json:"from_location_id"`
	ToLocationID       uuid.UUID       `json:"to_location_id"`
	Quantity           decimal.Decimal `json:"quantity"`
	Movements          []MovementResponse `json:"movements"` // Out then in
}

// LedgerCheckResult compares a stock level against the ledger it should mirror
type LedgerCheckResult struct {
	ProductID      uuid.UUID       `json:"product_id"`
	LocationID     uuid.UUID       `json:"location_id"`
	LevelQuantity  decimal.Decimal `json:"level_quantity"`
	LedgerQuantity decimal.Decimal `json:"ledger_quantity"`
	Consistent     bool            `json:"consistent"`
}

// CreateLocationRequest registers a new storage location
type CreateLocationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
}

// LocationResponse is the read model of a location
type LocationResponse struct {
	ID                         uuid.UUID `json:"id"`
	Name                       string    `json:"name"`
	Description                string    `json:"description,omitempty"`
	Type                       string    `json:"type"`
	Status                     string    `json:"status"`
	RequiresTemperatureControl bool      `json:"requires_temperature_control"`
	RequiresRestrictedAccess   bool      `json:"requires_restricted_access"`
}

// ToLocationResponse converts a location aggregate to its read model
func ToLocationResponse(location *inventory.Location) LocationResponse {
	return LocationResponse{
		ID:                         location.ID,
		Name:                       location.Name,
		Description:                location.Description,
		Type:                       string(location.Type),
		Status:                     string(location.Status),
		RequiresTemperatureControl: location.RequiresTemperatureControl,
		RequiresRestrictedAccess:   location.RequiresRestrictedAccess,
	}
}

// CreateStockCountRequest opens a reconciliation count at a location
type CreateStockCountRequest struct {
	LocationID uuid.UUID `json:"location_id"`
	// Type defaults to full; spot counts list explicit products
	Type       string      `json:"type,omitempty"`
	ProductIDs []uuid.UUID `json:"product_ids,omitempty"`
	CreatedBy  uuid.UUID   `json:"created_by"`
	Notes      string      `json:"notes,omitempty"`
}

// RecordCountLineRequest records the physical count for one line
type RecordCountLineRequest struct {
	ProductID uuid.UUID       `json:"product_id"`
	BatchID   *uuid.UUID      `json:"batch_id,omitempty"`
	Counted   decimal.Decimal `json:"counted_quantity"`
	Notes     string          `json:"notes,omitempty"`
}

// StockCountLineResponse is the read model of a count line
type StockCountLineResponse struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	BatchID          *uuid.UUID      `json:"batch_id,omitempty"`
	SystemQuantity   decimal.Decimal `json:"system_quantity"`
	CountedQuantity  decimal.Decimal `json:"counted_quantity"`
	Discrepancy      decimal.Decimal `json:"discrepancy"`
	DiscrepancyValue decimal.Decimal `json:"discrepancy_value"`
	Counted          bool            `json:"counted"`
	AdjustmentPosted bool            `json:"adjustment_posted"`
	Notes            string          `json:"notes,omitempty"`
}

// StockCountResponse is the read model of a reconciliation count
type StockCountResponse struct {
	ID               uuid.UUID                `json:"id"`
	CountNumber      string                   `json:"count_number"`
	LocationID       uuid.UUID                `json:"location_id"`
	Type             string                   `json:"type"`
	Status           string                   `json:"status"`
	CountDate        time.Time                `json:"count_date"`
	TotalLines       int                      `json:"total_lines"`
	CountedLines     int                      `json:"counted_lines"`
	DiscrepancyLines int                      `json:"discrepancy_lines"`
	TotalDiscrepancy decimal.Decimal          `json:"total_discrepancy"`
	Lines            []StockCountLineResponse `json:"lines"`
}

// ToStockCountResponse converts a stock count aggregate to its read model
func ToStockCountResponse(sc *inventory.StockCount) StockCountResponse {
	lines := make([]StockCountLineResponse, 0, len(sc.Lines))
	for _, line := range sc.Lines {
		lines = append(lines, StockCountLineResponse{
			ID:               line.ID,
			ProductID:        line.ProductID,
			BatchID:          line.BatchID,
			SystemQuantity:   line.SystemQuantity,
			CountedQuantity:  line.CountedQuantity,
			Discrepancy:      line.Discrepancy,
			DiscrepancyValue: line.DiscrepancyValue,
			Counted:          line.Counted,
			AdjustmentPosted: line.AdjustmentPosted,
			Notes:            line.Notes,
		})
	}
	return StockCountResponse{
		ID:               sc.ID,
		CountNumber:      sc.CountNumber,
		LocationID:       sc.LocationID,
		Type:             string(sc.Type),
		Status:           sc.Status.String(),
		CountDate:        sc.CountDate,
		TotalLines:       sc.TotalLines,
		CountedLines:     sc.CountedLines,
		DiscrepancyLines: sc.DiscrepancyLines,
		TotalDiscrepancy: sc.TotalDiscrepancy,
		Lines:            lines,
	}
}
