package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// fefoOrder is the allocation order: soonest expiry first, undated batches
// last, receipt time then creation time breaking ties.
const fefoOrder = "expiry_date ASC NULLS LAST, received_at ASC, created_at ASC"

// GormStockBatchRepository implements StockBatchRepository using GORM
type GormStockBatchRepository struct {
	db *gorm.DB
}

// NewGormStockBatchRepository creates a new GormStockBatchRepository
func NewGormStockBatchRepository(db *gorm.DB) *GormStockBatchRepository {
	return &GormStockBatchRepository{db: db}
}

// FindByID finds a stock batch by its ID
func (r *GormStockBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockBatch, error) {
	var batch inventory.StockBatch
	if err := r.db.WithContext(ctx).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindByProductAndLocation finds all batches for the pair in FEFO order
func (r *GormStockBatchRepository) FindByProductAndLocation(ctx context.Context, productID, locationID uuid.UUID) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Order(fefoOrder).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindUsable finds batches able to satisfy allocations as of the given time,
// in FEFO order
func (r *GormStockBatchRepository) FindUsable(ctx context.Context, productID, locationID uuid.UUID, asOf time.Time) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", productID, locationID).
		Where("status IN ?", []inventory.BatchStatus{inventory.BatchStatusAvailable, inventory.BatchStatusLow}).
		Where("current_quantity > 0").
		Where("expiry_date IS NULL OR expiry_date > ?", asOf).
		Order(fefoOrder).
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindByBatchNumber finds a batch by its number within a product/location pair
func (r *GormStockBatchRepository) FindByBatchNumber(ctx context.Context, productID, locationID uuid.UUID, batchNumber string) (*inventory.StockBatch, error) {
	var batch inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ? AND batch_number = ?", productID, locationID, batchNumber).
		First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

// FindExpiring finds usable batches expiring before the deadline
func (r *GormStockBatchRepository) FindExpiring(ctx context.Context, deadline time.Time) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []inventory.BatchStatus{inventory.BatchStatusAvailable, inventory.BatchStatusLow}).
		Where("current_quantity > 0").
		Where("expiry_date IS NOT NULL AND expiry_date < ?", deadline).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// FindExpiredActive finds batches past expiry that still carry an active
// status, for the expiry sweep
func (r *GormStockBatchRepository) FindExpiredActive(ctx context.Context, asOf time.Time) ([]inventory.StockBatch, error) {
	var batches []inventory.StockBatch
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []inventory.BatchStatus{inventory.BatchStatusAvailable, inventory.BatchStatusLow}).
		Where("expiry_date IS NOT NULL AND expiry_date < ?", asOf).
		Order("expiry_date ASC").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// Create inserts a new batch
func (r *GormStockBatchRepository) Create(ctx context.Context, batch *inventory.StockBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Save updates an existing batch
func (r *GormStockBatchRepository) Save(ctx context.Context, batch *inventory.StockBatch) error {
	return r.db.WithContext(ctx).Save(batch).Error
}

// SaveAll updates multiple batches
func (r *GormStockBatchRepository) SaveAll(ctx context.Context, batches []*inventory.StockBatch) error {
	for _, batch := range batches {
		if err := r.Save(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// Ensure GormStockBatchRepository implements StockBatchRepository
var _ inventory.StockBatchRepository = (*GormStockBatchRepository)(nil)
