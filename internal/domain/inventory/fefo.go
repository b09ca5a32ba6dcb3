package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// AllocationLine records how much a plan takes from a single batch
type AllocationLine struct {
	BatchID          uuid.UUID       // ID of the batch
	BatchNumber      string          // Batch number for display
	Quantity         decimal.Decimal // Quantity taken from this batch
	UnitCost         decimal.Decimal // Unit cost of this batch
	TotalCost        decimal.Decimal // Quantity * UnitCost
	RemainingInBatch decimal.Decimal // Remaining quantity in batch after the deduction
	FullyConsumed    bool            // True if the batch is depleted by this line
}

// AllocationPlan is the complete result of planning a FEFO allocation. It is
// a pure computation; nothing is written until the plan is applied.
type AllocationPlan struct {
	Lines          []AllocationLine
	TotalAllocated decimal.Decimal // Total quantity the plan covers
	TotalCost      decimal.Decimal // Cost of the allocated stock at batch costs
	Shortfall      decimal.Decimal // Requested quantity the usable batches could not cover
	FullyFulfilled bool            // True if Shortfall is zero
}

// CompareFEFO reports whether batch a should be consumed before batch b.
// Ordering is earliest expiry first with batches lacking an expiry date last,
// then earliest received, then creation time as the final tie-break.
func CompareFEFO(a, b *StockBatch) bool {
	if a.ExpiryDate != nil && b.ExpiryDate != nil {
		if !a.ExpiryDate.Equal(*b.ExpiryDate) {
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	} else if a.ExpiryDate != nil {
		return true // a expires, b never does - use expiring stock first
	} else if b.ExpiryDate != nil {
		return false
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortBatchesFEFO sorts batches in place into FEFO consumption order
func SortBatchesFEFO(batches []StockBatch) {
	sort.Slice(batches, func(i, j int) bool {
		return CompareFEFO(&batches[i], &batches[j])
	})
}

// PlanAllocation computes a FEFO allocation of the requested quantity across
// the usable batches as of the given time. Unusable batches (expired,
// recalled, damaged, depleted) are skipped. The plan may be partial; callers
// enforcing all-or-nothing semantics check FullyFulfilled before applying.
func PlanAllocation(requested decimal.Decimal, batches []StockBatch, asOf time.Time) (*AllocationPlan, error) {
	if requested.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Requested quantity must be positive")
	}

	usable := make([]StockBatch, 0, len(batches))
	for _, batch := range batches {
		if batch.IsUsable(asOf) {
			usable = append(usable, batch)
		}
	}
	SortBatchesFEFO(usable)

	lines := make([]AllocationLine, 0)
	remaining := requested
	totalAllocated := decimal.Zero
	totalCost := decimal.Zero

	for _, batch := range usable {
		if remaining.IsZero() {
			break
		}

		take := decimal.Min(remaining, batch.CurrentQuantity)
		remainingInBatch := batch.CurrentQuantity.Sub(take)
		lineCost := take.Mul(batch.UnitCost)

		lines = append(lines, AllocationLine{
			BatchID:          batch.ID,
			BatchNumber:      batch.BatchNumber,
			Quantity:         take,
			UnitCost:         batch.UnitCost,
			TotalCost:        lineCost,
			RemainingInBatch: remainingInBatch,
			FullyConsumed:    remainingInBatch.IsZero(),
		})

		totalAllocated = totalAllocated.Add(take)
		totalCost = totalCost.Add(lineCost)
		remaining = remaining.Sub(take)
	}

	return &AllocationPlan{
		Lines:          lines,
		TotalAllocated: totalAllocated,
		TotalCost:      totalCost,
		Shortfall:      remaining,
		FullyFulfilled: remaining.IsZero(),
	}, nil
}

// ApplyAllocation executes a plan against the batch entities it was computed
// from. Each deduction must succeed in full; a mismatch means the batches
// changed after planning and the caller should retry inside a fresh plan.
func ApplyAllocation(batches []*StockBatch, plan *AllocationPlan) error {
	if plan == nil {
		return shared.NewDomainError("INVALID_PLAN", "Allocation plan cannot be nil")
	}

	batchMap := make(map[uuid.UUID]*StockBatch, len(batches))
	for _, batch := range batches {
		batchMap[batch.ID] = batch
	}

	for _, line := range plan.Lines {
		batch, exists := batchMap[line.BatchID]
		if !exists {
			return shared.NewDomainError("BATCH_NOT_FOUND", "Batch not found: "+line.BatchID.String())
		}
		if err := batch.Deduct(line.Quantity); err != nil {
			return err
		}
	}

	return nil
}

// TotalUsableQuantity sums the quantity across batches usable at the given time
func TotalUsableQuantity(batches []StockBatch, asOf time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, batch := range batches {
		if batch.IsUsable(asOf) {
			total = total.Add(batch.CurrentQuantity)
		}
	}
	return total
}

// ExpiringBatches returns usable batches whose expiry falls within the window
func ExpiringBatches(batches []StockBatch, window time.Duration) []StockBatch {
	deadline := time.Now().Add(window)
	expiring := make([]StockBatch, 0)
	for _, batch := range batches {
		if batch.IsUsable(time.Now()) && batch.ExpiryDate != nil && batch.ExpiryDate.Before(deadline) {
			expiring = append(expiring, batch)
		}
	}
	return expiring
}
