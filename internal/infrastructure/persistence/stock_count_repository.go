package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockCountRepository implements StockCountRepository using GORM.
// Counts are loaded and saved with their lines.
type GormStockCountRepository struct {
	db *gorm.DB
}

// NewGormStockCountRepository creates a new GormStockCountRepository
func NewGormStockCountRepository(db *gorm.DB) *GormStockCountRepository {
	return &GormStockCountRepository{db: db}
}

// FindByID finds a stock count with its lines
func (r *GormStockCountRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.StockCount, error) {
	var count inventory.StockCount
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&count, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &count, nil
}

// FindByNumber finds a stock count by its count number
func (r *GormStockCountRepository) FindByNumber(ctx context.Context, countNumber string) (*inventory.StockCount, error) {
	var count inventory.StockCount
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("count_number = ?", countNumber).
		First(&count).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &count, nil
}

// FindByLocation finds counts at a location, newest first
func (r *GormStockCountRepository) FindByLocation(ctx context.Context, locationID uuid.UUID, filter shared.Filter) ([]inventory.StockCount, error) {
	var counts []inventory.StockCount
	query := applyFilter(
		r.db.WithContext(ctx).Model(&inventory.StockCount{}).
			Preload("Lines").
			Where("location_id = ?", locationID),
		filter,
		StockCountSortFields,
	)
	if err := query.Find(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// FindByStatus finds counts in the given status
func (r *GormStockCountRepository) FindByStatus(ctx context.Context, status inventory.StockCountStatus, filter shared.Filter) ([]inventory.StockCount, error) {
	var counts []inventory.StockCount
	query := applyFilter(
		r.db.WithContext(ctx).Model(&inventory.StockCount{}).
			Preload("Lines").
			Where("status = ?", status),
		filter,
		StockCountSortFields,
	)
	if err := query.Find(&counts).Error; err != nil {
		return nil, err
	}
	return counts, nil
}

// Save creates or updates a count and its lines without a version check
func (r *GormStockCountRepository) Save(ctx context.Context, count *inventory.StockCount) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Save(count).Error
}

// SaveWithLock saves the count header with optimistic locking, then upserts
// the lines. The version check on the header serializes the workflow
// transitions; lines only change while the header moves too.
func (r *GormStockCountRepository) SaveWithLock(ctx context.Context, count *inventory.StockCount) error {
	result := r.db.WithContext(ctx).
		Model(count).
		Where("id = ? AND version = ?", count.ID, count.Version-1).
		Updates(map[string]interface{}{
			"status":            count.Status,
			"submitted_at":      count.SubmittedAt,
			"approved_at":       count.ApprovedAt,
			"posted_at":         count.PostedAt,
			"approved_by":       count.ApprovedBy,
			"total_lines":       count.TotalLines,
			"counted_lines":     count.CountedLines,
			"discrepancy_lines": count.DiscrepancyLines,
			"total_discrepancy": count.TotalDiscrepancy,
			"notes":             count.Notes,
			"version":           count.Version,
			"updated_at":        count.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Stock count was modified by another transaction")
	}

	if len(count.Lines) > 0 {
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&count.Lines).Error; err != nil {
			return err
		}
	}
	return nil
}

// Ensure GormStockCountRepository implements StockCountRepository
var _ inventory.StockCountRepository = (*GormStockCountRepository)(nil)
