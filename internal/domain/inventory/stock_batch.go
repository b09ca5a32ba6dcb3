package inventory

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// BatchStatus represents the lifecycle status of a stock batch
type BatchStatus string

const (
	BatchStatusAvailable BatchStatus = "available"
	BatchStatusLow       BatchStatus = "low"      // At or below the low-stock threshold
	BatchStatusDepleted  BatchStatus = "depleted" // Quantity reached zero
	BatchStatusExpired   BatchStatus = "expired"
	BatchStatusRecalled  BatchStatus = "recalled"
	BatchStatusDamaged   BatchStatus = "damaged"
)

// lowBatchThreshold marks a batch "low" once its remaining quantity drops to
// 10% of what was originally received.
var lowBatchThreshold = decimal.NewFromFloat(0.10)

// StockBatch represents a received lot of a product at a location. Quantity
// only ever changes through Deduct and Add; batches are never deleted so the
// movement ledger can always resolve its batch references.
type StockBatch struct {
	shared.BaseEntity
	ProductID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_batch_product_location"`
	LocationID      uuid.UUID       `gorm:"type:uuid;not null;index:idx_batch_product_location"`
	BatchNumber     string          `gorm:"type:varchar(100);not null;index"`
	LotNumber       string          `gorm:"type:varchar(100)"` // Manufacturer lot, when distinct from the batch number
	SerialNumber    string          `gorm:"type:varchar(100)"` // For serialized items (equipment)
	InitialQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CurrentQuantity decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ManufactureDate *time.Time
	ExpiryDate      *time.Time `gorm:"index"`
	ReceivedAt      time.Time  `gorm:"not null"`
	UnitCost        decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	SupplierID      *uuid.UUID      `gorm:"type:uuid"`
	PurchaseOrderID *uuid.UUID      `gorm:"type:uuid"`
	Status          BatchStatus     `gorm:"type:varchar(20);not null;default:'available'"`
	Notes           string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (StockBatch) TableName() string {
	return "stock_batches"
}

// NewStockBatch creates a new stock batch from a receipt
func NewStockBatch(
	productID, locationID uuid.UUID,
	batchNumber string,
	quantity decimal.Decimal,
	unitCost decimal.Decimal,
	expiryDate *time.Time,
	receivedAt time.Time,
) (*StockBatch, error) {
	if strings.TrimSpace(batchNumber) == "" {
		return nil, shared.NewDomainError("INVALID_BATCH_NUMBER", "Batch number cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Batch quantity must be positive")
	}
	if unitCost.IsNegative() {
		return nil, shared.NewDomainError("INVALID_UNIT_COST", "Unit cost cannot be negative")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return &StockBatch{
		BaseEntity:      shared.NewBaseEntity(),
		ProductID:       productID,
		LocationID:      locationID,
		BatchNumber:     strings.TrimSpace(batchNumber),
		InitialQuantity: quantity,
		CurrentQuantity: quantity,
		ExpiryDate:      expiryDate,
		ReceivedAt:      receivedAt,
		UnitCost:        unitCost,
		Status:          BatchStatusAvailable,
	}, nil
}

// IsExpired returns true if the batch is past its expiry date at the given
// time. Expiry is evaluated lazily at read time; the stored status only
// changes when an expiry sweep runs.
func (b *StockBatch) IsExpired(asOf time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(asOf)
}

// WillExpireWithin returns true if the batch expires within the given duration
func (b *StockBatch) WillExpireWithin(window time.Duration) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(time.Now().Add(window))
}

// DaysUntilExpiry returns the number of days until expiry, -1 if no expiry date
func (b *StockBatch) DaysUntilExpiry() int {
	if b.ExpiryDate == nil {
		return -1
	}
	return int(time.Until(*b.ExpiryDate).Hours() / 24)
}

// IsUsable returns true if the batch can satisfy an allocation at the given
// time: it holds quantity, is not past expiry, and has not been pulled from
// circulation (recalled, damaged).
func (b *StockBatch) IsUsable(asOf time.Time) bool {
	switch b.Status {
	case BatchStatusAvailable, BatchStatusLow:
		return b.CurrentQuantity.GreaterThan(decimal.Zero) && !b.IsExpired(asOf)
	}
	return false
}

// Deduct reduces the batch quantity, failing when the batch holds less than
// requested. Allocation plans size their deductions against CurrentQuantity,
// so a failure here means the plan went stale between read and write.
func (b *StockBatch) Deduct(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Deduction quantity must be positive")
	}
	if quantity.GreaterThan(b.CurrentQuantity) {
		return shared.NewDomainError("INSUFFICIENT_BATCH_QUANTITY",
			"Batch "+b.BatchNumber+" holds less than the requested quantity")
	}

	b.CurrentQuantity = b.CurrentQuantity.Sub(quantity)
	b.refreshQuantityStatus()
	b.UpdatedAt = time.Now()
	return nil
}

// Add increases the batch quantity (transfer-in, customer return). Initial
// quantity tracks the total ever received into the batch, so it grows when a
// transfer-in pushes the current quantity past it.
func (b *StockBatch) Add(quantity decimal.Decimal) error {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_QUANTITY", "Added quantity must be positive")
	}

	b.CurrentQuantity = b.CurrentQuantity.Add(quantity)
	if b.CurrentQuantity.GreaterThan(b.InitialQuantity) {
		b.InitialQuantity = b.CurrentQuantity
	}
	b.refreshQuantityStatus()
	b.UpdatedAt = time.Now()
	return nil
}

// MarkExpired transitions the batch to expired status. Quantity is untouched;
// writing off the stock itself is a separate adjustment.
func (b *StockBatch) MarkExpired() {
	b.Status = BatchStatusExpired
	b.UpdatedAt = time.Now()
}

// MarkRecalled pulls the batch from circulation for a supplier recall
func (b *StockBatch) MarkRecalled(reason string) {
	b.Status = BatchStatusRecalled
	if reason != "" {
		b.Notes = appendNote(b.Notes, "Recalled: "+reason)
	}
	b.UpdatedAt = time.Now()
}

// MarkDamaged pulls the batch from circulation due to damage
func (b *StockBatch) MarkDamaged(reason string) {
	b.Status = BatchStatusDamaged
	if reason != "" {
		b.Notes = appendNote(b.Notes, "Damaged: "+reason)
	}
	b.UpdatedAt = time.Now()
}

// TotalValue returns the value of the remaining quantity at batch cost
func (b *StockBatch) TotalValue() decimal.Decimal {
	return b.CurrentQuantity.Mul(b.UnitCost)
}

// refreshQuantityStatus recomputes the quantity-derived statuses. Statuses set
// by explicit action (expired, recalled, damaged) are sticky.
func (b *StockBatch) refreshQuantityStatus() {
	switch b.Status {
	case BatchStatusExpired, BatchStatusRecalled, BatchStatusDamaged:
		return
	}

	switch {
	case b.CurrentQuantity.LessThanOrEqual(decimal.Zero):
		b.Status = BatchStatusDepleted
	case b.CurrentQuantity.LessThanOrEqual(b.InitialQuantity.Mul(lowBatchThreshold)):
		b.Status = BatchStatusLow
	default:
		b.Status = BatchStatusAvailable
	}
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
