package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// StockCountStatus represents the status of a stock count document
type StockCountStatus string

const (
	StockCountStatusDraft     StockCountStatus = "draft"
	StockCountStatusSubmitted StockCountStatus = "submitted"
	StockCountStatusApproved  StockCountStatus = "approved"
	StockCountStatusPosted    StockCountStatus = "posted"
	StockCountStatusCancelled StockCountStatus = "cancelled"
)

// IsValid checks if the status is a valid StockCountStatus
func (s StockCountStatus) IsValid() bool {
	switch s {
	case StockCountStatusDraft, StockCountStatusSubmitted, StockCountStatusApproved,
		StockCountStatusPosted, StockCountStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of StockCountStatus
func (s StockCountStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status
func (s StockCountStatus) CanTransitionTo(target StockCountStatus) bool {
	switch s {
	case StockCountStatusDraft:
		return target == StockCountStatusSubmitted || target == StockCountStatusCancelled
	case StockCountStatusSubmitted:
		return target == StockCountStatusApproved || target == StockCountStatusCancelled
	case StockCountStatusApproved:
		return target == StockCountStatusPosted || target == StockCountStatusCancelled
	case StockCountStatusPosted, StockCountStatusCancelled:
		return false // Terminal states
	}
	return false
}

// StockCountType represents the scope of a stock count
type StockCountType string

const (
	StockCountTypeFull  StockCountType = "full"  // Every product at the location
	StockCountTypeCycle StockCountType = "cycle" // Scheduled subset
	StockCountTypeSpot  StockCountType = "spot"  // Ad-hoc check of specific products
)

// IsValid checks if the count type is valid
func (t StockCountType) IsValid() bool {
	switch t {
	case StockCountTypeFull, StockCountTypeCycle, StockCountTypeSpot:
		return true
	}
	return false
}

// StockCountLine is one product line in a stock count. SystemQuantity is a
// snapshot taken when the line was added; the discrepancy compares the
// physical count against that snapshot, not against live stock.
type StockCountLine struct {
	ID               uuid.UUID
	StockCountID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"type:uuid;not null"`
	BatchID          *uuid.UUID      `gorm:"type:uuid"` // Set when counting a single batch
	SystemQuantity   decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CountedQuantity  decimal.Decimal `gorm:"type:decimal(20,4)"`
	Discrepancy      decimal.Decimal `gorm:"type:decimal(20,4)"` // Counted - System
	UnitCost         decimal.Decimal `gorm:"type:decimal(20,4)"`
	DiscrepancyValue decimal.Decimal `gorm:"type:decimal(20,4)"` // Discrepancy * UnitCost
	Counted          bool            `gorm:"not null;default:false"`
	AdjustmentPosted bool            `gorm:"not null;default:false"` // Guards against double posting
	Notes            string          `gorm:"type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM
func (StockCountLine) TableName() string {
	return "stock_count_lines"
}

// RecordCount records the physical count for this line
func (l *StockCountLine) RecordCount(counted decimal.Decimal, notes string) error {
	if counted.IsNegative() {
		return shared.NewDomainError("INVALID_QUANTITY", "Counted quantity cannot be negative")
	}

	l.CountedQuantity = counted
	l.Discrepancy = counted.Sub(l.SystemQuantity)
	l.DiscrepancyValue = l.Discrepancy.Mul(l.UnitCost)
	l.Counted = true
	l.Notes = notes
	l.UpdatedAt = time.Now()

	return nil
}

// HasDiscrepancy returns true if the counted quantity differs from the snapshot
func (l *StockCountLine) HasDiscrepancy() bool {
	return l.Counted && !l.Discrepancy.IsZero()
}

// MarkAdjustmentPosted flags the line as having produced its adjustment
func (l *StockCountLine) MarkAdjustmentPosted() {
	l.AdjustmentPosted = true
	l.UpdatedAt = time.Now()
}

// StockCount is a reconciliation document: a physical count of stock at one
// location, reviewed and then posted as adjustments. It is the aggregate root
// for the reconciliation workflow.
type StockCount struct {
	shared.BaseAggregateRoot
	CountNumber      string           `gorm:"type:varchar(50);not null;uniqueIndex"`
	LocationID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type             StockCountType   `gorm:"type:varchar(20);not null;default:'full'"`
	Status           StockCountStatus `gorm:"type:varchar(20);not null;default:'draft'"`
	CountDate        time.Time        `gorm:"not null"`
	SubmittedAt      *time.Time
	ApprovedAt       *time.Time
	PostedAt         *time.Time
	ApprovedBy       *uuid.UUID `gorm:"type:uuid"`
	CreatedBy        uuid.UUID  `gorm:"type:uuid;not null"`
	TotalLines       int        `gorm:"not null;default:0"`
	CountedLines     int        `gorm:"not null;default:0"`
	DiscrepancyLines int        `gorm:"not null;default:0"`
	TotalDiscrepancy decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0"` // Sum of discrepancy values
	Notes            string           `gorm:"type:text"`
	Lines            []StockCountLine `gorm:"foreignKey:StockCountID"`
}

// TableName returns the table name for GORM
func (StockCount) TableName() string {
	return "stock_counts"
}

// NewStockCount creates a new stock count document in draft
func NewStockCount(countNumber string, locationID uuid.UUID, countType StockCountType, countDate time.Time, createdBy uuid.UUID) (*StockCount, error) {
	if countNumber == "" {
		return nil, shared.NewDomainError("INVALID_COUNT_NUMBER", "Count number cannot be empty")
	}
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LOCATION", "Location ID cannot be empty")
	}
	if !countType.IsValid() {
		return nil, shared.NewDomainError("INVALID_COUNT_TYPE", "Unknown count type: "+string(countType))
	}
	if createdBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CREATOR", "Creator ID cannot be empty")
	}

	sc := &StockCount{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CountNumber:       countNumber,
		LocationID:        locationID,
		Type:              countType,
		Status:            StockCountStatusDraft,
		CountDate:         countDate,
		CreatedBy:         createdBy,
		TotalDiscrepancy:  decimal.Zero,
		Lines:             make([]StockCountLine, 0),
	}

	sc.AddDomainEvent(NewStockCountCreatedEvent(sc))

	return sc, nil
}

// AddLine snapshots a product's system quantity into the count
func (sc *StockCount) AddLine(productID uuid.UUID, batchID *uuid.UUID, systemQuantity, unitCost decimal.Decimal) error {
	if sc.Status != StockCountStatusDraft {
		return shared.NewDomainError("INVALID_STATUS", "Can only add lines in draft status")
	}
	if productID == uuid.Nil {
		return shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	for _, line := range sc.Lines {
		if line.ProductID == productID && uuidPtrEqual(line.BatchID, batchID) {
			return shared.NewDomainError("DUPLICATE_LINE", "Product already has a line in this count")
		}
	}

	now := time.Now()
	sc.Lines = append(sc.Lines, StockCountLine{
		ID:             uuid.New(),
		StockCountID:   sc.ID,
		ProductID:      productID,
		BatchID:        batchID,
		SystemQuantity: systemQuantity,
		UnitCost:       unitCost,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	sc.TotalLines++
	sc.UpdatedAt = now
	sc.IncrementVersion()

	return nil
}

// RecordCount records the physical count for a product line
func (sc *StockCount) RecordCount(productID uuid.UUID, batchID *uuid.UUID, counted decimal.Decimal, notes string) error {
	if sc.Status != StockCountStatusDraft {
		return shared.NewDomainError("INVALID_STATUS", "Can only record counts in draft status")
	}

	for i := range sc.Lines {
		if sc.Lines[i].ProductID == productID && uuidPtrEqual(sc.Lines[i].BatchID, batchID) {
			wasCounted := sc.Lines[i].Counted
			if err := sc.Lines[i].RecordCount(counted, notes); err != nil {
				return err
			}
			if !wasCounted {
				sc.CountedLines++
			}
			sc.recalculateTotals()
			sc.UpdatedAt = time.Now()
			sc.IncrementVersion()
			return nil
		}
	}

	return shared.NewDomainError("LINE_NOT_FOUND", "Product not found in stock count")
}

// Submit moves the count to submitted, locking further counting
func (sc *StockCount) Submit() error {
	if !sc.Status.CanTransitionTo(StockCountStatusSubmitted) {
		return sc.transitionError(StockCountStatusSubmitted)
	}
	if sc.CountedLines != sc.TotalLines {
		return shared.NewDomainError("INCOMPLETE_COUNT",
			fmt.Sprintf("Not all lines have been counted (%d/%d)", sc.CountedLines, sc.TotalLines))
	}
	if sc.TotalLines == 0 {
		return shared.NewDomainError("NO_LINES", "Cannot submit a count with no lines")
	}

	now := time.Now()
	sc.Status = StockCountStatusSubmitted
	sc.SubmittedAt = &now
	sc.UpdatedAt = now
	sc.IncrementVersion()

	sc.AddDomainEvent(NewStockCountSubmittedEvent(sc))

	return nil
}

// Approve records the reviewer's sign-off on the submitted count
func (sc *StockCount) Approve(approverID uuid.UUID) error {
	if !sc.Status.CanTransitionTo(StockCountStatusApproved) {
		return sc.transitionError(StockCountStatusApproved)
	}
	if approverID == uuid.Nil {
		return shared.NewDomainError("INVALID_APPROVER", "Approver ID cannot be empty")
	}

	now := time.Now()
	sc.Status = StockCountStatusApproved
	sc.ApprovedAt = &now
	sc.ApprovedBy = &approverID
	sc.UpdatedAt = now
	sc.IncrementVersion()

	sc.AddDomainEvent(NewStockCountApprovedEvent(sc))

	return nil
}

// MarkPosted finalizes the count after its adjustments have been applied
func (sc *StockCount) MarkPosted() error {
	if !sc.Status.CanTransitionTo(StockCountStatusPosted) {
		return sc.transitionError(StockCountStatusPosted)
	}

	now := time.Now()
	sc.Status = StockCountStatusPosted
	sc.PostedAt = &now
	sc.UpdatedAt = now
	sc.IncrementVersion()

	sc.AddDomainEvent(NewStockCountPostedEvent(sc))

	return nil
}

// Cancel abandons the count. Posted counts cannot be cancelled; their
// adjustments are already in the ledger.
func (sc *StockCount) Cancel(reason string) error {
	if !sc.Status.CanTransitionTo(StockCountStatusCancelled) {
		return sc.transitionError(StockCountStatusCancelled)
	}

	sc.Status = StockCountStatusCancelled
	if reason != "" {
		sc.Notes = appendNote(sc.Notes, "Cancelled: "+reason)
	}
	sc.UpdatedAt = time.Now()
	sc.IncrementVersion()

	sc.AddDomainEvent(NewStockCountCancelledEvent(sc))

	return nil
}

// LinesWithDiscrepancy returns counted lines whose count differs from the snapshot
func (sc *StockCount) LinesWithDiscrepancy() []StockCountLine {
	result := make([]StockCountLine, 0)
	for _, line := range sc.Lines {
		if line.HasDiscrepancy() {
			result = append(result, line)
		}
	}
	return result
}

// UncountedLines returns lines still waiting for a physical count
func (sc *StockCount) UncountedLines() []StockCountLine {
	result := make([]StockCountLine, 0)
	for _, line := range sc.Lines {
		if !line.Counted {
			result = append(result, line)
		}
	}
	return result
}

func (sc *StockCount) recalculateTotals() {
	sc.DiscrepancyLines = 0
	sc.TotalDiscrepancy = decimal.Zero
	for _, line := range sc.Lines {
		if line.HasDiscrepancy() {
			sc.DiscrepancyLines++
			sc.TotalDiscrepancy = sc.TotalDiscrepancy.Add(line.DiscrepancyValue)
		}
	}
}

func (sc *StockCount) transitionError(target StockCountStatus) error {
	return shared.NewDomainError("INVALID_TRANSITION",
		fmt.Sprintf("Cannot transition from %s to %s", sc.Status, target))
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
