package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/shared"
)

// LocationRepository manages Location aggregates
type LocationRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Location, error)
	FindByName(ctx context.Context, name string) (*Location, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Location, error)
	FindActive(ctx context.Context) ([]Location, error)
	Save(ctx context.Context, location *Location) error
	Count(ctx context.Context, filter shared.Filter) (int64, error)
}

// StockBatchRepository manages StockBatch entities. Batches are never
// deleted; depleted and expired batches stay queryable for the ledger.
type StockBatchRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*StockBatch, error)
	// FindByProductAndLocation returns all batches for the pair in FEFO order
	FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) ([]StockBatch, error)
	// FindUsable returns batches able to satisfy allocations as of the given
	// time, in FEFO order
	FindUsable(ctx context.Context, productID, locationID uuid.UUID, asOf time.Time) ([]StockBatch, error)
	FindByBatchNumber(ctx context.Context, productID, locationID uuid.UUID, batchNumber string) (*StockBatch, error)
	// FindExpiring returns usable batches expiring before the deadline
	FindExpiring(ctx context.Context, deadline time.Time) ([]StockBatch, error)
	// FindExpiredActive returns batches past expiry that still carry an
	// available or low status, for the expiry sweep
	FindExpiredActive(ctx context.Context, asOf time.Time) ([]StockBatch, error)
	Create(ctx context.Context, batch *StockBatch) error
	Save(ctx context.Context, batch *StockBatch) error
	SaveAll(ctx context.Context, batches []*StockBatch) error
}

// StockLevelRepository manages StockLevel aggregates
type StockLevelRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*StockLevel, error)
	FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) (*StockLevel, error)
	// GetOrCreate returns the level for the pair, creating an empty one if
	// none exists yet
	GetOrCreate(ctx context.Context, productID, locationID uuid.UUID) (*StockLevel, error)
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]StockLevel, error)
	FindByLocation(ctx context.Context, locationID uuid.UUID, filter shared.Filter) ([]StockLevel, error)
	FindBelowMinimum(ctx context.Context) ([]StockLevel, error)
	Save(ctx context.Context, level *StockLevel) error
	// SaveWithLock persists the level only if no other transaction bumped
	// the stored version since it was read. Lost races surface as
	// OPTIMISTIC_LOCK_FAILED and the caller retries with fresh state.
	SaveWithLock(ctx context.Context, level *StockLevel) error
}

// MovementHistoryFilter narrows a movement history query
type MovementHistoryFilter struct {
	ProductID  *uuid.UUID
	LocationID *uuid.UUID
	BatchID    *uuid.UUID
	Type       *MovementType
	From       *time.Time
	To         *time.Time
	Page       int
	PageSize   int
}

// StockMovementRepository is the append-only movement ledger. There is no
// update or delete; corrections are compensating movements.
type StockMovementRepository interface {
	Create(ctx context.Context, movement *StockMovement) error
	CreateAll(ctx context.Context, movements []*StockMovement) error
	FindByID(ctx context.Context, id uuid.UUID) (*StockMovement, error)
	// History returns movements newest-first
	History(ctx context.Context, filter MovementHistoryFilter) ([]StockMovement, int64, error)
	// SignedSum recomputes the stock balance for a product at a location
	// from the ledger, for reconciliation against the stock level
	SignedSum(ctx context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error)
}

// StockCountRepository manages StockCount aggregates with their lines
type StockCountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*StockCount, error)
	FindByNumber(ctx context.Context, countNumber string) (*StockCount, error)
	FindByLocation(ctx context.Context, locationID uuid.UUID, filter shared.Filter) ([]StockCount, error)
	FindByStatus(ctx context.Context, status StockCountStatus, filter shared.Filter) ([]StockCount, error)
	Save(ctx context.Context, count *StockCount) error
	SaveWithLock(ctx context.Context, count *StockCount) error
}
