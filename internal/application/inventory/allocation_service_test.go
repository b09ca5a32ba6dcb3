package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
)

func receiveRequest(productID, locationID uuid.UUID, batchNumber string, quantity float64, expiry *time.Time) ReceiveStockRequest {
	return ReceiveStockRequest{
		ProductID:   productID,
		LocationID:  locationID,
		BatchNumber: batchNumber,
		Quantity:    decimal.NewFromFloat(quantity),
		UnitCost:    decimal.NewFromFloat(2.50),
		ExpiryDate:  expiry,
		RecordedBy:  uuid.New(),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestAllocationService_Receive(t *testing.T) {
	ctx := context.Background()

	t.Run("creates batch, level and movement", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		expiry := timePtr(time.Now().AddDate(0, 6, 0))
		batch, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 100, expiry))
		require.NoError(t, err)
		assert.Equal(t, "LOT-001", batch.BatchNumber)
		assert.True(t, batch.CurrentQuantity.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, string(inventory.BatchStatusAvailable), batch.Status)

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(100)))

		history, err := f.allocation.MovementHistory(ctx, inventory.MovementHistoryFilter{ProductID: &productID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), history.Total)
		assert.Equal(t, string(inventory.MovementTypeReceive), history.Items[0].Type)
		assert.Equal(t, &location.ID, history.Items[0].ToLocationID)

		received := f.publisher.GetEventsByType(inventory.EventTypeStockReceived)
		assert.Len(t, received, 1)
	})

	t.Run("accumulates level across batches", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 40, nil))
		require.NoError(t, err)
		_, err = f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-002", 60, nil))
		require.NoError(t, err)

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects inactive location", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Old Shelf", inventory.LocationTypeStore)
		location.Deactivate()
		require.NoError(t, f.locations.Save(ctx, location))

		_, err := f.allocation.Receive(ctx, receiveRequest(uuid.New(), location.ID, "LOT-001", 10, nil))
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "LOCATION_INACTIVE", domainErr.Code)
	})

	t.Run("rejects unknown location", func(t *testing.T) {
		f := newTestFixture()
		_, err := f.allocation.Receive(ctx, receiveRequest(uuid.New(), uuid.New(), "LOT-001", 10, nil))
		assert.Error(t, err)
	})
}

func TestAllocationService_Dispense(t *testing.T) {
	ctx := context.Background()

	t.Run("splits across batches in expiry order", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		// LATER received first so FEFO has to reorder by expiry.
		later, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-LATER", 25, timePtr(time.Now().AddDate(0, 6, 0))))
		require.NoError(t, err)
		soon, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-SOON", 10, timePtr(time.Now().AddDate(0, 1, 0))))
		require.NoError(t, err)

		result, err := f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:  productID,
			LocationID: location.ID,
			Quantity:   decimal.NewFromInt(30),
			RecordedBy: uuid.New(),
		})
		require.NoError(t, err)

		require.Len(t, result.Movements, 2)
		assert.Equal(t, &soon.ID, result.Movements[0].BatchID)
		assert.True(t, result.Movements[0].Quantity.Equal(decimal.NewFromInt(10)))
		assert.Equal(t, &later.ID, result.Movements[1].BatchID)
		assert.True(t, result.Movements[1].Quantity.Equal(decimal.NewFromInt(20)))
		assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(75))) // 30 * 2.50

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(5)))

		batches, err := f.allocation.ListBatches(ctx, productID, location.ID)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.True(t, batches[0].CurrentQuantity.IsZero())
		assert.Equal(t, string(inventory.BatchStatusDepleted), batches[0].Status)
		assert.True(t, batches[1].CurrentQuantity.Equal(decimal.NewFromInt(5)))

		dispensed := f.publisher.GetEventsByType(inventory.EventTypeStockDispensed)
		assert.Len(t, dispensed, 1)
	})

	t.Run("insufficient stock writes nothing", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 10, nil))
		require.NoError(t, err)

		_, err = f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:  productID,
			LocationID: location.ID,
			Quantity:   decimal.NewFromInt(11),
			RecordedBy: uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(10)))

		history, err := f.allocation.MovementHistory(ctx, inventory.MovementHistoryFilter{ProductID: &productID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), history.Total) // only the receive
	})

	t.Run("reserved quantity is not dispensable", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 10, nil))
		require.NoError(t, err)
		_, err = f.allocation.Reserve(ctx, ReserveStockRequest{ProductID: productID, LocationID: location.ID, Quantity: decimal.NewFromInt(4)})
		require.NoError(t, err)

		_, err = f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:  productID,
			LocationID: location.ID,
			Quantity:   decimal.NewFromInt(7),
			RecordedBy: uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
	})

	t.Run("unknown pair reports insufficient stock", func(t *testing.T) {
		f := newTestFixture()
		_, err := f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:  uuid.New(),
			LocationID: uuid.New(),
			Quantity:   decimal.NewFromInt(1),
			RecordedBy: uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
	})

	t.Run("rejects inbound movement type", func(t *testing.T) {
		f := newTestFixture()
		_, err := f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:    uuid.New(),
			LocationID:   uuid.New(),
			Quantity:     decimal.NewFromInt(1),
			MovementType: inventory.MovementTypeReceive,
			RecordedBy:   uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_MOVEMENT_TYPE", domainErr.Code)
	})

	t.Run("sale reuses the allocation path", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Retail Floor", inventory.LocationTypeStore)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 10, nil))
		require.NoError(t, err)

		result, err := f.allocation.Dispense(ctx, DispenseStockRequest{
			ProductID:    productID,
			LocationID:   location.ID,
			Quantity:     decimal.NewFromInt(3),
			MovementType: inventory.MovementTypeSale,
			RecordedBy:   uuid.New(),
		})
		require.NoError(t, err)
		require.Len(t, result.Movements, 1)
		assert.Equal(t, string(inventory.MovementTypeSale), result.Movements[0].Type)
	})
}

func TestAllocationService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves quantity and writes a movement pair", func(t *testing.T) {
		f := newTestFixture()
		from := f.addLocation("Warehouse", inventory.LocationTypeWarehouse)
		to := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		batch, err := f.allocation.Receive(ctx, receiveRequest(productID, from.ID, "LOT-001", 50, timePtr(time.Now().AddDate(0, 3, 0))))
		require.NoError(t, err)

		result, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID:        batch.ID,
			FromLocationID: from.ID,
			ToLocationID:   to.ID,
			Quantity:       decimal.NewFromInt(20),
			RecordedBy:     uuid.New(),
		})
		require.NoError(t, err)

		require.Len(t, result.Movements, 2)
		assert.Equal(t, string(inventory.MovementTypeTransferOut), result.Movements[0].Type)
		assert.Equal(t, string(inventory.MovementTypeTransferIn), result.Movements[1].Type)
		assert.NotEqual(t, result.SourceBatchID, result.DestinationBatchID)

		fromLevel, err := f.allocation.GetStockLevel(ctx, productID, from.ID)
		require.NoError(t, err)
		assert.True(t, fromLevel.Quantity.Equal(decimal.NewFromInt(30)))

		toLevel, err := f.allocation.GetStockLevel(ctx, productID, to.ID)
		require.NoError(t, err)
		assert.True(t, toLevel.Quantity.Equal(decimal.NewFromInt(20)))

		dest, err := f.batches.FindByID(ctx, result.DestinationBatchID)
		require.NoError(t, err)
		assert.Equal(t, "LOT-001", dest.BatchNumber)
		assert.True(t, dest.CurrentQuantity.Equal(decimal.NewFromInt(20)))
		require.NotNil(t, dest.ExpiryDate)
	})

	t.Run("second transfer tops up the destination batch", func(t *testing.T) {
		f := newTestFixture()
		from := f.addLocation("Warehouse", inventory.LocationTypeWarehouse)
		to := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		batch, err := f.allocation.Receive(ctx, receiveRequest(productID, from.ID, "LOT-001", 50, nil))
		require.NoError(t, err)

		first, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: batch.ID, FromLocationID: from.ID, ToLocationID: to.ID,
			Quantity: decimal.NewFromInt(10), RecordedBy: uuid.New(),
		})
		require.NoError(t, err)
		second, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: batch.ID, FromLocationID: from.ID, ToLocationID: to.ID,
			Quantity: decimal.NewFromInt(15), RecordedBy: uuid.New(),
		})
		require.NoError(t, err)

		assert.Equal(t, first.DestinationBatchID, second.DestinationBatchID)
		dest, err := f.batches.FindByID(ctx, second.DestinationBatchID)
		require.NoError(t, err)
		assert.True(t, dest.CurrentQuantity.Equal(decimal.NewFromInt(25)))
	})

	t.Run("transfer out and back restores both sides exactly", func(t *testing.T) {
		f := newTestFixture()
		from := f.addLocation("Warehouse", inventory.LocationTypeWarehouse)
		to := f.addLocation("Clinic Van", inventory.LocationTypeStore)
		productID := uuid.New()

		batch, err := f.allocation.Receive(ctx, receiveRequest(productID, from.ID, "LOT-001", 50, timePtr(time.Now().AddDate(0, 3, 0))))
		require.NoError(t, err)

		out, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: batch.ID, FromLocationID: from.ID, ToLocationID: to.ID,
			Quantity: decimal.NewFromInt(20), RecordedBy: uuid.New(),
		})
		require.NoError(t, err)

		back, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: out.DestinationBatchID, FromLocationID: to.ID, ToLocationID: from.ID,
			Quantity: decimal.NewFromInt(20), RecordedBy: uuid.New(),
		})
		require.NoError(t, err)
		// The return leg tops the original batch back up instead of opening a new one.
		assert.Equal(t, batch.ID, back.DestinationBatchID)

		fromLevel, err := f.allocation.GetStockLevel(ctx, productID, from.ID)
		require.NoError(t, err)
		assert.True(t, fromLevel.Quantity.Equal(decimal.NewFromInt(50)))

		toLevel, err := f.allocation.GetStockLevel(ctx, productID, to.ID)
		require.NoError(t, err)
		assert.True(t, toLevel.Quantity.IsZero())

		source, err := f.batches.FindByID(ctx, batch.ID)
		require.NoError(t, err)
		assert.True(t, source.CurrentQuantity.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, inventory.BatchStatusAvailable, source.Status)

		roundTripped, err := f.batches.FindByID(ctx, out.DestinationBatchID)
		require.NoError(t, err)
		assert.True(t, roundTripped.CurrentQuantity.IsZero())

		for _, locationID := range []uuid.UUID{from.ID, to.ID} {
			check, err := f.allocation.CheckLedger(ctx, productID, locationID)
			require.NoError(t, err)
			assert.True(t, check.Consistent)
		}
	})

	t.Run("rejects same source and destination", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Warehouse", inventory.LocationTypeWarehouse)
		_, err := f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: uuid.New(), FromLocationID: location.ID, ToLocationID: location.ID,
			Quantity: decimal.NewFromInt(1), RecordedBy: uuid.New(),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})

	t.Run("rejects more than the batch holds", func(t *testing.T) {
		f := newTestFixture()
		from := f.addLocation("Warehouse", inventory.LocationTypeWarehouse)
		to := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		batch, err := f.allocation.Receive(ctx, receiveRequest(productID, from.ID, "LOT-001", 5, nil))
		require.NoError(t, err)

		_, err = f.allocation.Transfer(ctx, TransferStockRequest{
			BatchID: batch.ID, FromLocationID: from.ID, ToLocationID: to.ID,
			Quantity: decimal.NewFromInt(6), RecordedBy: uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_BATCH_QUANTITY", domainErr.Code)
	})
}

func TestAllocationService_Adjust(t *testing.T) {
	ctx := context.Background()

	t.Run("books the discrepancy as a movement", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 50, nil))
		require.NoError(t, err)

		authorizer := uuid.New()
		result, err := f.allocation.Adjust(ctx, AdjustStockRequest{
			ProductID:       productID,
			LocationID:      location.ID,
			CountedQuantity: decimal.NewFromInt(47),
			Reason:          "cycle count",
			RecordedBy:      uuid.New(),
			AuthorizedBy:    &authorizer,
		})
		require.NoError(t, err)
		assert.True(t, result.Discrepancy.Equal(decimal.NewFromInt(-3)))
		assert.True(t, result.NewQuantity.Equal(decimal.NewFromInt(47)))
		require.NotNil(t, result.Movement)
		assert.Equal(t, string(inventory.MovementTypeAdjustmentRemove), result.Movement.Type)
		assert.True(t, result.Movement.Quantity.Equal(decimal.NewFromInt(3)))

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(47)))
	})

	t.Run("removal without authorizer is rejected", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 50, nil))
		require.NoError(t, err)

		_, err = f.allocation.Adjust(ctx, AdjustStockRequest{
			ProductID:       productID,
			LocationID:      location.ID,
			CountedQuantity: decimal.NewFromInt(40),
			Reason:          "cycle count",
			RecordedBy:      uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "AUTHORIZATION_REQUIRED", domainErr.Code)
	})

	t.Run("addition needs no authorizer", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 50, nil))
		require.NoError(t, err)

		result, err := f.allocation.Adjust(ctx, AdjustStockRequest{
			ProductID:       productID,
			LocationID:      location.ID,
			CountedQuantity: decimal.NewFromInt(52),
			Reason:          "found on shelf",
			RecordedBy:      uuid.New(),
		})
		require.NoError(t, err)
		require.NotNil(t, result.Movement)
		assert.Equal(t, string(inventory.MovementTypeAdjustmentAdd), result.Movement.Type)
	})

	t.Run("zero discrepancy writes no movement", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 50, nil))
		require.NoError(t, err)

		result, err := f.allocation.Adjust(ctx, AdjustStockRequest{
			ProductID:       productID,
			LocationID:      location.ID,
			CountedQuantity: decimal.NewFromInt(50),
			Reason:          "cycle count",
			RecordedBy:      uuid.New(),
		})
		require.NoError(t, err)
		assert.True(t, result.Discrepancy.IsZero())
		assert.Nil(t, result.Movement)

		history, err := f.allocation.MovementHistory(ctx, inventory.MovementHistoryFilter{ProductID: &productID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), history.Total) // only the receive
	})
}

func TestAllocationService_ReserveRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve then release restores availability", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 20, nil))
		require.NoError(t, err)

		reserved, err := f.allocation.Reserve(ctx, ReserveStockRequest{ProductID: productID, LocationID: location.ID, Quantity: decimal.NewFromInt(8)})
		require.NoError(t, err)
		assert.True(t, reserved.ReservedQuantity.Equal(decimal.NewFromInt(8)))
		assert.True(t, reserved.Available.Equal(decimal.NewFromInt(12)))

		released, err := f.allocation.Release(ctx, ReleaseStockRequest{ProductID: productID, LocationID: location.ID, Quantity: decimal.NewFromInt(8)})
		require.NoError(t, err)
		assert.True(t, released.ReservedQuantity.IsZero())
		assert.True(t, released.Available.Equal(decimal.NewFromInt(20)))
	})

	t.Run("over-reserve and over-release fail", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 5, nil))
		require.NoError(t, err)

		_, err = f.allocation.Reserve(ctx, ReserveStockRequest{ProductID: productID, LocationID: location.ID, Quantity: decimal.NewFromInt(6)})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_AVAILABLE_QUANTITY", domainErr.Code)

		_, err = f.allocation.Release(ctx, ReleaseStockRequest{ProductID: productID, LocationID: location.ID, Quantity: decimal.NewFromInt(1)})
		require.Error(t, err)
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "OVER_RELEASE", domainErr.Code)
	})
}

func TestAllocationService_CheckLedger(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture()
	location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
	productID := uuid.New()

	_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 40, nil))
	require.NoError(t, err)
	_, err = f.allocation.Dispense(ctx, DispenseStockRequest{
		ProductID: productID, LocationID: location.ID,
		Quantity: decimal.NewFromInt(15), RecordedBy: uuid.New(),
	})
	require.NoError(t, err)

	result, err := f.allocation.CheckLedger(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.True(t, result.LevelQuantity.Equal(decimal.NewFromInt(25)))
	assert.True(t, result.LedgerQuantity.Equal(decimal.NewFromInt(25)))
}

// stubCache records cache traffic for assertions
type stubCache struct {
	store       map[string]StockLevelResponse
	invalidated int
}

func newStubCache() *stubCache {
	return &stubCache{store: make(map[string]StockLevelResponse)}
}

func (c *stubCache) key(productID, locationID uuid.UUID) string {
	return productID.String() + ":" + locationID.String()
}

func (c *stubCache) Get(_ context.Context, productID, locationID uuid.UUID) (*StockLevelResponse, bool) {
	cached, ok := c.store[c.key(productID, locationID)]
	if !ok {
		return nil, false
	}
	return &cached, true
}

func (c *stubCache) Set(_ context.Context, response StockLevelResponse) {
	c.store[c.key(response.ProductID, response.LocationID)] = response
}

func (c *stubCache) Invalidate(_ context.Context, productID, locationID uuid.UUID) {
	delete(c.store, c.key(productID, locationID))
	c.invalidated++
}

func TestAllocationService_CacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture()
	cache := newStubCache()
	f.allocation.SetCache(cache)

	location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
	productID := uuid.New()

	_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 40, nil))
	require.NoError(t, err)

	// First read populates the cache, second read hits it.
	first, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.Len(t, cache.store, 1)
	second, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.True(t, first.Quantity.Equal(second.Quantity))

	// A dispense drops the entry, so the next read sees the new quantity.
	_, err = f.allocation.Dispense(ctx, DispenseStockRequest{
		ProductID: productID, LocationID: location.ID,
		Quantity: decimal.NewFromInt(10), RecordedBy: uuid.New(),
	})
	require.NoError(t, err)
	assert.Empty(t, cache.store)

	refreshed, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.Quantity.Equal(decimal.NewFromInt(30)))
}

func TestAllocationService_ExpiringAndBelowMinimum(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture()
	location := f.addLocation("Refrigerated Unit", inventory.LocationTypeRefrigerated)
	productID := uuid.New()

	_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-SOON", 10, timePtr(time.Now().AddDate(0, 0, 10))))
	require.NoError(t, err)
	_, err = f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-LATER", 10, timePtr(time.Now().AddDate(1, 0, 0))))
	require.NoError(t, err)

	expiring, err := f.allocation.ExpiringBatches(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "LOT-SOON", expiring[0].BatchNumber)

	minLevel := decimal.NewFromInt(25)
	level, err := f.levels.FindByProductAndLocation(ctx, productID, location.ID)
	require.NoError(t, err)
	level.SetThresholds(&minLevel, nil)
	require.NoError(t, f.levels.Save(ctx, level))

	below, err := f.allocation.BelowMinimum(ctx)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.True(t, below[0].BelowMinimum)
}

// conflictingLevelRepo fails SaveWithLock with a lock conflict a set number of
// times before delegating, simulating a concurrent writer bumping the version.
type conflictingLevelRepo struct {
	*memLevelRepo
	conflicts int
	calls     int
}

func (r *conflictingLevelRepo) SaveWithLock(ctx context.Context, level *inventory.StockLevel) error {
	r.calls++
	if r.calls <= r.conflicts {
		return shared.NewDomainError("OPTIMISTIC_LOCK_FAILED", "Stock level was modified by another transaction")
	}
	return r.memLevelRepo.SaveWithLock(ctx, level)
}

func TestAllocationService_OptimisticLockRetry(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *testFixture) (uuid.UUID, uuid.UUID) {
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()
		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 20, nil))
		require.NoError(t, err)
		return productID, location.ID
	}

	t.Run("replays the mutation after a lost version race", func(t *testing.T) {
		f := newTestFixture()
		productID, locationID := seed(t, f)

		conflicting := &conflictingLevelRepo{memLevelRepo: f.levels, conflicts: 1}
		scope := NewNoOpTransactionScope(f.locations, f.batches, conflicting, f.movements, f.counts)
		allocation := NewAllocationService(scope, conflicting, f.batches, f.movements, f.locations, nil)

		reserved, err := allocation.Reserve(ctx, ReserveStockRequest{
			ProductID: productID, LocationID: locationID, Quantity: decimal.NewFromInt(5),
		})
		require.NoError(t, err)
		assert.True(t, reserved.ReservedQuantity.Equal(decimal.NewFromInt(5)))
		assert.Equal(t, 2, conflicting.calls)
	})

	t.Run("gives up once the retry budget is spent", func(t *testing.T) {
		f := newTestFixture()
		productID, locationID := seed(t, f)

		conflicting := &conflictingLevelRepo{memLevelRepo: f.levels, conflicts: maxLockRetries}
		scope := NewNoOpTransactionScope(f.locations, f.batches, conflicting, f.movements, f.counts)
		allocation := NewAllocationService(scope, conflicting, f.batches, f.movements, f.locations, nil)

		_, err := allocation.Reserve(ctx, ReserveStockRequest{
			ProductID: productID, LocationID: locationID, Quantity: decimal.NewFromInt(5),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "OPTIMISTIC_LOCK_FAILED", domainErr.Code)
		assert.Equal(t, maxLockRetries, conflicting.calls)

		// The losing mutation left nothing behind.
		level, err := f.levels.FindByProductAndLocation(ctx, productID, locationID)
		require.NoError(t, err)
		assert.True(t, level.ReservedQuantity.IsZero())
	})
}

// lockedScope serializes transaction bodies the way row locks do on a real
// database, so concurrent mutations interleave at transaction granularity.
type lockedScope struct {
	mu    sync.Mutex
	inner TransactionScope
}

func (s *lockedScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Execute(ctx, fn)
}

func TestAllocationService_ConcurrentDispense_SingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture()
	location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
	productID := uuid.New()

	_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-001", 10, nil))
	require.NoError(t, err)

	scope := &lockedScope{inner: NewNoOpTransactionScope(f.locations, f.batches, f.levels, f.movements, f.counts)}
	allocation := NewAllocationService(scope, f.levels, f.batches, f.movements, f.locations, nil)

	// Two dispenses race for stock that can only cover one of them.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = allocation.Dispense(ctx, DispenseStockRequest{
				ProductID: productID, LocationID: location.ID,
				Quantity: decimal.NewFromInt(8), RecordedBy: uuid.New(),
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
	}
	assert.Equal(t, 1, winners)

	level, err := f.levels.FindByProductAndLocation(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.True(t, level.Quantity.Equal(decimal.NewFromInt(2)))
	assert.False(t, level.Quantity.IsNegative())

	check, err := allocation.CheckLedger(ctx, productID, location.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}
