package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormStockMovementRepository implements the append-only movement ledger
// using GORM. There are deliberately no update or delete methods.
type GormStockMovementRepository struct {
	db *gorm.DB
}

// NewGormStockMovementRepository creates a new GormStockMovementRepository
func NewGormStockMovementRepository(db *gorm.DB) *GormStockMovementRepository {
	return &GormStockMovementRepository{db: db}
}

// Create appends a movement to the ledger
func (r *GormStockMovementRepository) Create(ctx context.Context, movement *inventory.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// CreateAll appends multiple movements to the ledger
func (r *GormStockMovementRepository) CreateAll(ctx context.Context, movements []*inventory.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(movements).Error
}

// FindByID finds a movement by its ID
func (r *GormStockMovementRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockMovement, error) {
	var movement inventory.StockMovement
	if err := r.db.WithContext(ctx).First(&movement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &movement, nil
}

// History returns movements newest-first with the total match count
func (r *GormStockMovementRepository) History(ctx context.Context, filter inventory.MovementHistoryFilter) ([]inventory.StockMovement, int64, error) {
	query := r.applyHistoryFilter(r.db.WithContext(ctx).Model(&inventory.StockMovement{}), filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var movements []inventory.StockMovement
	if err := query.Order("occurred_at DESC, created_at DESC").Find(&movements).Error; err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// SignedSum recomputes the stock balance for a product at a location from the
// ledger: inbound movements into the location count positive, outbound
// movements out of it count negative.
func (r *GormStockMovementRepository) SignedSum(ctx context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	inbound := inboundMovementTypes()
	outbound := outboundMovementTypes()
	if err := r.db.WithContext(ctx).
		Model(&inventory.StockMovement{}).
		Select(`COALESCE(SUM(CASE
			WHEN type IN ? AND to_location_id = ? THEN quantity
			WHEN type IN ? AND from_location_id = ? THEN -quantity
			ELSE 0 END), 0) as total`, inbound, locationID, outbound, locationID).
		Where("product_id = ?", productID).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// applyHistoryFilter applies the movement history filter to the query
func (r *GormStockMovementRepository) applyHistoryFilter(query *gorm.DB, filter inventory.MovementHistoryFilter) *gorm.DB {
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.BatchID != nil {
		query = query.Where("batch_id = ?", *filter.BatchID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.LocationID != nil {
		inbound := inboundMovementTypes()
		outbound := outboundMovementTypes()
		query = query.Where(
			"(type IN ? AND to_location_id = ?) OR (type IN ? AND from_location_id = ?)",
			inbound, *filter.LocationID, outbound, *filter.LocationID,
		)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at < ?", *filter.To)
	}
	return query
}

func inboundMovementTypes() []inventory.MovementType {
	return []inventory.MovementType{
		inventory.MovementTypeReceive,
		inventory.MovementTypeReturnCustomer,
		inventory.MovementTypeTransferIn,
		inventory.MovementTypeAdjustmentAdd,
	}
}

func outboundMovementTypes() []inventory.MovementType {
	return []inventory.MovementType{
		inventory.MovementTypeSale,
		inventory.MovementTypeDispense,
		inventory.MovementTypeReturnSupplier,
		inventory.MovementTypeTransferOut,
		inventory.MovementTypeAdjustmentRemove,
		inventory.MovementTypeExpired,
		inventory.MovementTypeDamaged,
		inventory.MovementTypeLoss,
		inventory.MovementTypeSample,
	}
}

// Ensure GormStockMovementRepository implements StockMovementRepository
var _ inventory.StockMovementRepository = (*GormStockMovementRepository)(nil)
