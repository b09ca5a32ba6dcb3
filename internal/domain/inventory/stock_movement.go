package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// MovementType classifies a stock movement. The quantity on a movement is
// always positive; the type carries the direction.
type MovementType string

const (
	// Inbound
	MovementTypeReceive        MovementType = "receive"
	MovementTypeReturnCustomer MovementType = "return_customer"
	MovementTypeTransferIn     MovementType = "transfer_in"
	MovementTypeAdjustmentAdd  MovementType = "adjustment_add"

	// Outbound
	MovementTypeSale             MovementType = "sale"
	MovementTypeDispense         MovementType = "dispense"
	MovementTypeReturnSupplier   MovementType = "return_supplier"
	MovementTypeTransferOut      MovementType = "transfer_out"
	MovementTypeAdjustmentRemove MovementType = "adjustment_remove"
	MovementTypeExpired          MovementType = "expired"
	MovementTypeDamaged          MovementType = "damaged"
	MovementTypeLoss             MovementType = "loss"
	MovementTypeSample           MovementType = "sample"
)

// IsInbound returns true if the movement type increases stock at its location
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementTypeReceive, MovementTypeReturnCustomer,
		MovementTypeTransferIn, MovementTypeAdjustmentAdd:
		return true
	}
	return false
}

// IsOutbound returns true if the movement type decreases stock at its location
func (t MovementType) IsOutbound() bool {
	switch t {
	case MovementTypeSale, MovementTypeDispense, MovementTypeReturnSupplier,
		MovementTypeTransferOut, MovementTypeAdjustmentRemove, MovementTypeExpired,
		MovementTypeDamaged, MovementTypeLoss, MovementTypeSample:
		return true
	}
	return false
}

// IsValid checks if the movement type is valid
func (t MovementType) IsValid() bool {
	return t.IsInbound() || t.IsOutbound()
}

// String returns the string representation
func (t MovementType) String() string {
	return string(t)
}

// StockMovement is one immutable entry in the movement ledger. Movements are
// only ever inserted; corrections are recorded as compensating movements.
type StockMovement struct {
	shared.BaseEntity
	ProductID      uuid.UUID    `gorm:"type:uuid;not null;index:idx_movement_product_time"`
	BatchID        *uuid.UUID   `gorm:"type:uuid;index"`
	Type           MovementType `gorm:"type:varchar(30);not null;index"`
	FromLocationID *uuid.UUID   `gorm:"type:uuid;index"`
	ToLocationID   *uuid.UUID   `gorm:"type:uuid;index"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	UnitCost       *decimal.Decimal `gorm:"type:decimal(20,4)"`
	ReferenceType  string          `gorm:"type:varchar(50)"` // e.g. "sale", "prescription", "stock_count"
	ReferenceID    *uuid.UUID      `gorm:"type:uuid;index"`
	Reason         string          `gorm:"type:text"`
	AuthorizedBy   *uuid.UUID      `gorm:"type:uuid"` // Required for removal adjustments
	RecordedBy     uuid.UUID       `gorm:"type:uuid;not null"`
	OccurredAt     time.Time       `gorm:"not null;index:idx_movement_product_time"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// NewStockMovement creates a movement record. Quantity must be positive; the
// direction comes from the type.
func NewStockMovement(
	productID uuid.UUID,
	movementType MovementType,
	quantity decimal.Decimal,
	recordedBy uuid.UUID,
) (*StockMovement, error) {
	if !movementType.IsValid() {
		return nil, shared.NewDomainError("INVALID_MOVEMENT_TYPE", "Unknown movement type: "+string(movementType))
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Movement quantity must be positive")
	}
	if recordedBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Movement must record who performed it")
	}

	return &StockMovement{
		BaseEntity: shared.NewBaseEntity(),
		ProductID:  productID,
		Type:       movementType,
		Quantity:   quantity,
		RecordedBy: recordedBy,
		OccurredAt: time.Now(),
	}, nil
}

// WithBatch attaches the batch the movement touched
func (m *StockMovement) WithBatch(batchID uuid.UUID) *StockMovement {
	m.BatchID = &batchID
	return m
}

// WithFromLocation sets the source location
func (m *StockMovement) WithFromLocation(locationID uuid.UUID) *StockMovement {
	m.FromLocationID = &locationID
	return m
}

// WithToLocation sets the destination location
func (m *StockMovement) WithToLocation(locationID uuid.UUID) *StockMovement {
	m.ToLocationID = &locationID
	return m
}

// WithUnitCost records the cost basis of the moved stock
func (m *StockMovement) WithUnitCost(unitCost decimal.Decimal) *StockMovement {
	m.UnitCost = &unitCost
	return m
}

// WithReference links the movement to the business document that caused it
func (m *StockMovement) WithReference(referenceType string, referenceID uuid.UUID) *StockMovement {
	m.ReferenceType = referenceType
	m.ReferenceID = &referenceID
	return m
}

// WithReason records a free-form reason
func (m *StockMovement) WithReason(reason string) *StockMovement {
	m.Reason = reason
	return m
}

// WithAuthorizer records who authorized the movement
func (m *StockMovement) WithAuthorizer(userID uuid.UUID) *StockMovement {
	m.AuthorizedBy = &userID
	return m
}

// WithOccurredAt overrides the movement timestamp (backdated entries)
func (m *StockMovement) WithOccurredAt(at time.Time) *StockMovement {
	m.OccurredAt = at
	return m
}

// SignedQuantity returns the quantity with direction applied: positive for
// inbound types, negative for outbound types.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.Type.IsOutbound() {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// LocationID returns the location whose stock level the movement changed:
// the destination for inbound types, the source for outbound types.
func (m *StockMovement) LocationID() *uuid.UUID {
	if m.Type.IsInbound() {
		return m.ToLocationID
	}
	return m.FromLocationID
}
