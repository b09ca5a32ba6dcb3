package inventory

import (
	"context"

	"github.com/vetstock/backend/internal/domain/inventory"
)

// TransactionScope provides transactional access to the inventory
// repositories. When a function is executed within a transaction scope, all
// repository operations are part of the same database transaction and commit
// or roll back atomically. Batch, level and movement writes for one
// allocation always travel through a single scope, which is what keeps the
// ledger pairing invariant intact.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all inventory repositories
// within a transaction. All repositories returned share the same underlying
// database transaction.
type TransactionalRepositories interface {
	// LocationRepo returns the location repository scoped to the current transaction
	LocationRepo() inventory.LocationRepository
	// BatchRepo returns the stock batch repository scoped to the current transaction
	BatchRepo() inventory.StockBatchRepository
	// LevelRepo returns the stock level repository scoped to the current transaction
	LevelRepo() inventory.StockLevelRepository
	// MovementRepo returns the movement ledger repository scoped to the current transaction
	MovementRepo() inventory.StockMovementRepository
	// CountRepo returns the stock count repository scoped to the current transaction
	CountRepo() inventory.StockCountRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for tests and for callers wiring purely in-memory
// repositories.
type NoOpTransactionScope struct {
	locationRepo inventory.LocationRepository
	batchRepo    inventory.StockBatchRepository
	levelRepo    inventory.StockLevelRepository
	movementRepo inventory.StockMovementRepository
	countRepo    inventory.StockCountRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	locationRepo inventory.LocationRepository,
	batchRepo inventory.StockBatchRepository,
	levelRepo inventory.StockLevelRepository,
	movementRepo inventory.StockMovementRepository,
	countRepo inventory.StockCountRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		locationRepo: locationRepo,
		batchRepo:    batchRepo,
		levelRepo:    levelRepo,
		movementRepo: movementRepo,
		countRepo:    countRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// LocationRepo returns the location repository.
func (s *NoOpTransactionScope) LocationRepo() inventory.LocationRepository {
	return s.locationRepo
}

// BatchRepo returns the stock batch repository.
func (s *NoOpTransactionScope) BatchRepo() inventory.StockBatchRepository {
	return s.batchRepo
}

// LevelRepo returns the stock level repository.
func (s *NoOpTransactionScope) LevelRepo() inventory.StockLevelRepository {
	return s.levelRepo
}

// MovementRepo returns the movement ledger repository.
func (s *NoOpTransactionScope) MovementRepo() inventory.StockMovementRepository {
	return s.movementRepo
}

// CountRepo returns the stock count repository.
func (s *NoOpTransactionScope) CountRepo() inventory.StockCountRepository {
	return s.countRepo
}

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
