package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// StockLevel is the running total of a product's stock at one location. There
// is exactly one row per (product, location) pair; it is created lazily on
// first receipt and never deleted. The quantity mirrors the sum of batch
// quantities for the pair, and every change to it is paired with a movement
// in the same transaction.
type StockLevel struct {
	shared.BaseAggregateRoot
	ProductID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_product_location,priority:1"`
	LocationID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_stock_level_product_location,priority:2"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	ReservedQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	// Per-location overrides of the product-level thresholds; nil means
	// fall back to whatever the product defines.
	MinLevel        *decimal.Decimal `gorm:"type:decimal(20,4)"`
	ReorderQuantity *decimal.Decimal `gorm:"type:decimal(20,4)"`
	LastCountedAt   *time.Time
	LastMovementAt  *time.Time
}

// TableName returns the table name for GORM
func (StockLevel) TableName() string {
	return "stock_levels"
}

// NewStockLevel creates an empty stock level for a product/location pair
func NewStockLevel(productID, locationID uuid.UUID) *StockLevel {
	return &StockLevel{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ProductID:         productID,
		LocationID:        locationID,
		Quantity:          decimal.Zero,
		ReservedQuantity:  decimal.Zero,
	}
}

// AvailableQuantity returns the quantity not held by reservations
func (s *StockLevel) AvailableQuantity() decimal.Decimal {
	return s.Quantity.Sub(s.ReservedQuantity)
}

// Reserve holds quantity for a pending order without moving it
func (s *StockLevel) Reserve(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Reserved quantity must be positive")
	}
	if quantity.GreaterThan(s.AvailableQuantity()) {
		return shared.NewDomainError("INSUFFICIENT_AVAILABLE_QUANTITY",
			"Cannot reserve more than the available quantity")
	}

	s.ReservedQuantity = s.ReservedQuantity.Add(quantity)
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReservedEvent(s, quantity))

	return nil
}

// Release returns reserved quantity to the available pool
func (s *StockLevel) Release(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Released quantity must be positive")
	}
	if quantity.GreaterThan(s.ReservedQuantity) {
		return shared.NewDomainError("OVER_RELEASE",
			"Cannot release more than the reserved quantity")
	}

	s.ReservedQuantity = s.ReservedQuantity.Sub(quantity)
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	s.AddDomainEvent(NewStockReleasedEvent(s, quantity))

	return nil
}

// ApplyDelta moves the quantity by a signed amount. Driving the total below
// zero indicates a bookkeeping fault elsewhere, never a valid state, so it is
// rejected with a distinct code that callers alert on.
func (s *StockLevel) ApplyDelta(delta decimal.Decimal, at time.Time) error {
	if delta.IsZero() {
		return nil
	}

	next := s.Quantity.Add(delta)
	if next.IsNegative() {
		return shared.NewDomainError("NEGATIVE_STOCK_LEVEL",
			"Stock level would become negative")
	}

	s.Quantity = next
	s.LastMovementAt = &at
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	if s.IsBelowMinimum() {
		s.AddDomainEvent(NewStockBelowMinimumEvent(s))
	}

	return nil
}

// SetCounted overwrites the quantity with a physically counted value. The
// count is authoritative: if it lands below the reserved quantity, the
// reservation is trimmed to match physical reality.
func (s *StockLevel) SetCounted(counted decimal.Decimal, at time.Time) error {
	if counted.IsNegative() {
		return shared.NewDomainError("INVALID_QUANTITY", "Counted quantity cannot be negative")
	}

	s.Quantity = counted
	if s.ReservedQuantity.GreaterThan(counted) {
		s.ReservedQuantity = counted
	}
	s.LastCountedAt = &at
	s.LastMovementAt = &at
	s.UpdatedAt = time.Now()
	s.IncrementVersion()

	if s.IsBelowMinimum() {
		s.AddDomainEvent(NewStockBelowMinimumEvent(s))
	}

	return nil
}

// SetThresholds sets the per-location minimum level and reorder quantity
func (s *StockLevel) SetThresholds(minLevel, reorderQuantity *decimal.Decimal) {
	s.MinLevel = minLevel
	s.ReorderQuantity = reorderQuantity
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}

// IsBelowMinimum returns true when a minimum is set and the quantity sits at
// or below it
func (s *StockLevel) IsBelowMinimum() bool {
	if s.MinLevel == nil {
		return false
	}
	return s.Quantity.LessThanOrEqual(*s.MinLevel)
}
