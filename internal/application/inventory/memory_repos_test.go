package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
)

// In-memory repository implementations backing the service tests. They keep
// the same semantics as the GORM repositories: copy-on-read, copy-on-write,
// optimistic version checks on SaveWithLock.

type memLocationRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]inventory.Location
}

func newMemLocationRepo() *memLocationRepo {
	return &memLocationRepo{items: make(map[uuid.UUID]inventory.Location)}
}

func (r *memLocationRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	location, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := location
	return &copied, nil
}

func (r *memLocationRepo) FindByName(_ context.Context, name string) (*inventory.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, location := range r.items {
		if strings.EqualFold(location.Name, name) {
			copied := location
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memLocationRepo) FindAll(_ context.Context, _ shared.Filter) ([]inventory.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.Location, 0, len(r.items))
	for _, location := range r.items {
		result = append(result, location)
	}
	return result, nil
}

func (r *memLocationRepo) FindActive(_ context.Context) ([]inventory.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.Location, 0)
	for _, location := range r.items {
		if location.IsActive() {
			result = append(result, location)
		}
	}
	return result, nil
}

func (r *memLocationRepo) Save(_ context.Context, location *inventory.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[location.ID] = *location
	return nil
}

func (r *memLocationRepo) Count(_ context.Context, _ shared.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

type memBatchRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]inventory.StockBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{items: make(map[uuid.UUID]inventory.StockBatch)}
}

func (r *memBatchRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := batch
	return &copied, nil
}

func (r *memBatchRepo) FindByProductAndLocation(_ context.Context, productID, locationID uuid.UUID) ([]inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockBatch, 0)
	for _, batch := range r.items {
		if batch.ProductID == productID && batch.LocationID == locationID {
			result = append(result, batch)
		}
	}
	inventory.SortBatchesFEFO(result)
	return result, nil
}

func (r *memBatchRepo) FindUsable(ctx context.Context, productID, locationID uuid.UUID, asOf time.Time) ([]inventory.StockBatch, error) {
	all, err := r.FindByProductAndLocation(ctx, productID, locationID)
	if err != nil {
		return nil, err
	}
	result := make([]inventory.StockBatch, 0, len(all))
	for _, batch := range all {
		if batch.IsUsable(asOf) {
			result = append(result, batch)
		}
	}
	return result, nil
}

func (r *memBatchRepo) FindByBatchNumber(_ context.Context, productID, locationID uuid.UUID, batchNumber string) (*inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, batch := range r.items {
		if batch.ProductID == productID && batch.LocationID == locationID && batch.BatchNumber == batchNumber {
			copied := batch
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memBatchRepo) FindExpiring(_ context.Context, deadline time.Time) ([]inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockBatch, 0)
	for _, batch := range r.items {
		if batch.IsUsable(time.Now()) && batch.ExpiryDate != nil && batch.ExpiryDate.Before(deadline) {
			result = append(result, batch)
		}
	}
	return result, nil
}

func (r *memBatchRepo) FindExpiredActive(_ context.Context, asOf time.Time) ([]inventory.StockBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockBatch, 0)
	for _, batch := range r.items {
		active := batch.Status == inventory.BatchStatusAvailable || batch.Status == inventory.BatchStatusLow
		if active && batch.IsExpired(asOf) {
			result = append(result, batch)
		}
	}
	return result, nil
}

func (r *memBatchRepo) Create(_ context.Context, batch *inventory.StockBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[batch.ID] = *batch
	return nil
}

func (r *memBatchRepo) Save(_ context.Context, batch *inventory.StockBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[batch.ID] = *batch
	return nil
}

func (r *memBatchRepo) SaveAll(ctx context.Context, batches []*inventory.StockBatch) error {
	for _, batch := range batches {
		if err := r.Save(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

type memLevelRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]inventory.StockLevel
}

func newMemLevelRepo() *memLevelRepo {
	return &memLevelRepo{items: make(map[uuid.UUID]inventory.StockLevel)}
}

func (r *memLevelRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := level
	return &copied, nil
}

func (r *memLevelRepo) FindByProductAndLocation(_ context.Context, productID, locationID uuid.UUID) (*inventory.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, level := range r.items {
		if level.ProductID == productID && level.LocationID == locationID {
			copied := level
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memLevelRepo) GetOrCreate(ctx context.Context, productID, locationID uuid.UUID) (*inventory.StockLevel, error) {
	if level, err := r.FindByProductAndLocation(ctx, productID, locationID); err == nil {
		return level, nil
	}
	level := inventory.NewStockLevel(productID, locationID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[level.ID] = *level
	return level, nil
}

func (r *memLevelRepo) FindByProduct(_ context.Context, productID uuid.UUID) ([]inventory.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockLevel, 0)
	for _, level := range r.items {
		if level.ProductID == productID {
			result = append(result, level)
		}
	}
	return result, nil
}

func (r *memLevelRepo) FindByLocation(_ context.Context, locationID uuid.UUID, _ shared.Filter) ([]inventory.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockLevel, 0)
	for _, level := range r.items {
		if level.LocationID == locationID {
			result = append(result, level)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memLevelRepo) FindBelowMinimum(_ context.Context) ([]inventory.StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockLevel, 0)
	for _, level := range r.items {
		if level.IsBelowMinimum() {
			result = append(result, level)
		}
	}
	return result, nil
}

func (r *memLevelRepo) Save(_ context.Context, level *inventory.StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[level.ID] = *level
	return nil
}

func (r *memLevelRepo) SaveWithLock(_ context.Context, level *inventory.StockLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[level.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != level.Version-1 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Stock level was modified by another transaction")
	}
	r.items[level.ID] = *level
	return nil
}

type memMovementRepo struct {
	mu    sync.Mutex
	items []inventory.StockMovement
}

func newMemMovementRepo() *memMovementRepo {
	return &memMovementRepo{items: make([]inventory.StockMovement, 0)}
}

func (r *memMovementRepo) Create(_ context.Context, movement *inventory.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *movement)
	return nil
}

func (r *memMovementRepo) CreateAll(ctx context.Context, movements []*inventory.StockMovement) error {
	for _, movement := range movements {
		if err := r.Create(ctx, movement); err != nil {
			return err
		}
	}
	return nil
}

func (r *memMovementRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockMovement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, movement := range r.items {
		if movement.ID == id {
			copied := movement
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memMovementRepo) History(_ context.Context, filter inventory.MovementHistoryFilter) ([]inventory.StockMovement, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockMovement, 0)
	for _, movement := range r.items {
		if filter.ProductID != nil && movement.ProductID != *filter.ProductID {
			continue
		}
		if filter.Type != nil && movement.Type != *filter.Type {
			continue
		}
		if filter.BatchID != nil && (movement.BatchID == nil || *movement.BatchID != *filter.BatchID) {
			continue
		}
		if filter.LocationID != nil {
			locationID := movement.LocationID()
			if locationID == nil || *locationID != *filter.LocationID {
				continue
			}
		}
		result = append(result, movement)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, int64(len(result)), nil
}

func (r *memMovementRepo) SignedSum(_ context.Context, productID, locationID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, movement := range r.items {
		if movement.ProductID != productID {
			continue
		}
		affected := movement.LocationID()
		if affected == nil || *affected != locationID {
			continue
		}
		sum = sum.Add(movement.SignedQuantity())
	}
	return sum, nil
}

type memCountRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]inventory.StockCount
}

func newMemCountRepo() *memCountRepo {
	return &memCountRepo{items: make(map[uuid.UUID]inventory.StockCount)}
}

func (r *memCountRepo) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := count
	copied.Lines = append([]inventory.StockCountLine(nil), count.Lines...)
	return &copied, nil
}

func (r *memCountRepo) FindByNumber(_ context.Context, countNumber string) (*inventory.StockCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, count := range r.items {
		if count.CountNumber == countNumber {
			copied := count
			copied.Lines = append([]inventory.StockCountLine(nil), count.Lines...)
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memCountRepo) FindByLocation(_ context.Context, locationID uuid.UUID, _ shared.Filter) ([]inventory.StockCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockCount, 0)
	for _, count := range r.items {
		if count.LocationID == locationID {
			result = append(result, count)
		}
	}
	return result, nil
}

func (r *memCountRepo) FindByStatus(_ context.Context, status inventory.StockCountStatus, _ shared.Filter) ([]inventory.StockCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]inventory.StockCount, 0)
	for _, count := range r.items {
		if count.Status == status {
			result = append(result, count)
		}
	}
	return result, nil
}

func (r *memCountRepo) Save(_ context.Context, count *inventory.StockCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *count
	copied.Lines = append([]inventory.StockCountLine(nil), count.Lines...)
	r.items[count.ID] = copied
	return nil
}

func (r *memCountRepo) SaveWithLock(_ context.Context, count *inventory.StockCount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[count.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != count.Version-1 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Stock count was modified by another transaction")
	}
	copied := *count
	copied.Lines = append([]inventory.StockCountLine(nil), count.Lines...)
	r.items[count.ID] = copied
	return nil
}

// MockEventPublisher collects published events for assertions
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{events: make([]shared.DomainEvent, 0)}
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// testFixture wires the services over in-memory repositories
type testFixture struct {
	locations  *memLocationRepo
	batches    *memBatchRepo
	levels     *memLevelRepo
	movements  *memMovementRepo
	counts     *memCountRepo
	publisher  *MockEventPublisher
	allocation *AllocationService
	countsSvc  *StockCountService
	sweepSvc   *ExpirySweepService
}

func newTestFixture() *testFixture {
	f := &testFixture{
		locations: newMemLocationRepo(),
		batches:   newMemBatchRepo(),
		levels:    newMemLevelRepo(),
		movements: newMemMovementRepo(),
		counts:    newMemCountRepo(),
		publisher: NewMockEventPublisher(),
	}
	scope := NewNoOpTransactionScope(f.locations, f.batches, f.levels, f.movements, f.counts)
	f.allocation = NewAllocationService(scope, f.levels, f.batches, f.movements, f.locations, nil)
	f.allocation.SetEventPublisher(f.publisher)
	f.countsSvc = NewStockCountService(f.counts, f.levels, f.batches, f.locations, f.allocation, nil)
	f.countsSvc.SetEventPublisher(f.publisher)
	f.sweepSvc = NewExpirySweepService(f.batches, nil)
	f.sweepSvc.SetEventPublisher(f.publisher)
	return f
}

func (f *testFixture) addLocation(name string, locationType inventory.LocationType) *inventory.Location {
	location, err := inventory.NewLocation(name, locationType)
	if err != nil {
		panic(err)
	}
	location.ClearDomainEvents()
	_ = f.locations.Save(context.Background(), location)
	return location
}
