package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vetstock/backend/internal/domain/inventory"
	"github.com/vetstock/backend/internal/domain/shared"
)

func TestStockCountService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("full count snapshots every level at the location", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productA := uuid.New()
		productB := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productA, location.ID, "LOT-A", 30, nil))
		require.NoError(t, err)
		_, err = f.allocation.Receive(ctx, receiveRequest(productB, location.ID, "LOT-B", 12, nil))
		require.NoError(t, err)

		count, err := f.countsSvc.Create(ctx, CreateStockCountRequest{
			LocationID: location.ID,
			CreatedBy:  uuid.New(),
		})
		require.NoError(t, err)

		assert.Equal(t, string(inventory.StockCountStatusDraft), count.Status)
		assert.Equal(t, string(inventory.StockCountTypeFull), count.Type)
		assert.Contains(t, count.CountNumber, "CNT-")
		require.Len(t, count.Lines, 2)
		for _, line := range count.Lines {
			assert.False(t, line.Counted)
			switch line.ProductID {
			case productA:
				assert.True(t, line.SystemQuantity.Equal(decimal.NewFromInt(30)))
			case productB:
				assert.True(t, line.SystemQuantity.Equal(decimal.NewFromInt(12)))
			default:
				t.Fatalf("unexpected product %s on count line", line.ProductID)
			}
		}

		created := f.publisher.GetEventsByType(inventory.EventTypeStockCountCreated)
		assert.Len(t, created, 1)
	})

	t.Run("spot count takes the listed products, missing levels count as zero", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		stocked := uuid.New()
		unstocked := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(stocked, location.ID, "LOT-A", 8, nil))
		require.NoError(t, err)

		count, err := f.countsSvc.Create(ctx, CreateStockCountRequest{
			LocationID: location.ID,
			Type:       string(inventory.StockCountTypeSpot),
			ProductIDs: []uuid.UUID{stocked, unstocked},
			CreatedBy:  uuid.New(),
		})
		require.NoError(t, err)
		require.Len(t, count.Lines, 2)
		for _, line := range count.Lines {
			if line.ProductID == unstocked {
				assert.True(t, line.SystemQuantity.IsZero())
			}
		}
	})

	t.Run("spot count without products is rejected", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)

		_, err := f.countsSvc.Create(ctx, CreateStockCountRequest{
			LocationID: location.ID,
			Type:       string(inventory.StockCountTypeSpot),
			CreatedBy:  uuid.New(),
		})
		assert.Error(t, err)
	})

	t.Run("inactive location is rejected", func(t *testing.T) {
		f := newTestFixture()
		location := f.addLocation("Old Shelf", inventory.LocationTypeStore)
		location.Deactivate()
		require.NoError(t, f.locations.Save(ctx, location))

		_, err := f.countsSvc.Create(ctx, CreateStockCountRequest{
			LocationID: location.ID,
			CreatedBy:  uuid.New(),
		})
		require.Error(t, err)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "LOCATION_INACTIVE", domainErr.Code)
	})
}

func TestStockCountService_Workflow(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testFixture, *inventory.Location, uuid.UUID, *StockCountResponse) {
		f := newTestFixture()
		location := f.addLocation("Pharmacy Shelf A", inventory.LocationTypePharmacy)
		productID := uuid.New()

		_, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-A", 50, nil))
		require.NoError(t, err)

		count, err := f.countsSvc.Create(ctx, CreateStockCountRequest{
			LocationID: location.ID,
			CreatedBy:  uuid.New(),
		})
		require.NoError(t, err)
		return f, location, productID, count
	}

	t.Run("posting applies the discrepancy as an adjustment", func(t *testing.T) {
		f, location, productID, count := setup(t)

		_, err := f.countsSvc.RecordCounts(ctx, count.ID, []RecordCountLineRequest{
			{ProductID: productID, Counted: decimal.NewFromInt(47), Notes: "two broken vials discarded"},
		})
		require.NoError(t, err)

		submitted, err := f.countsSvc.Submit(ctx, count.ID)
		require.NoError(t, err)
		assert.Equal(t, string(inventory.StockCountStatusSubmitted), submitted.Status)

		approver := uuid.New()
		approved, err := f.countsSvc.Approve(ctx, count.ID, approver)
		require.NoError(t, err)
		assert.Equal(t, string(inventory.StockCountStatusApproved), approved.Status)

		posted, err := f.countsSvc.Post(ctx, count.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, string(inventory.StockCountStatusPosted), posted.Status)
		require.Len(t, posted.Lines, 1)
		assert.True(t, posted.Lines[0].AdjustmentPosted)

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(47)))

		movementType := inventory.MovementTypeAdjustmentRemove
		history, err := f.allocation.MovementHistory(ctx, inventory.MovementHistoryFilter{
			ProductID: &productID,
			Type:      &movementType,
		})
		require.NoError(t, err)
		require.Len(t, history.Items, 1)
		assert.True(t, history.Items[0].Quantity.Equal(decimal.NewFromInt(3)))
		assert.Equal(t, "stock_count", history.Items[0].ReferenceType)
		require.NotNil(t, history.Items[0].ReferenceID)
		assert.Equal(t, count.ID, *history.Items[0].ReferenceID)

		// The approver covers the removal authorization.
		full, err := f.movements.FindByID(ctx, history.Items[0].ID)
		require.NoError(t, err)
		require.NotNil(t, full.AuthorizedBy)
		assert.Equal(t, approver, *full.AuthorizedBy)

		events := f.publisher.GetEventsByType(inventory.EventTypeStockCountPosted)
		assert.Len(t, events, 1)
	})

	t.Run("matching count posts without movements", func(t *testing.T) {
		f, location, productID, count := setup(t)

		_, err := f.countsSvc.RecordCounts(ctx, count.ID, []RecordCountLineRequest{
			{ProductID: productID, Counted: decimal.NewFromInt(50)},
		})
		require.NoError(t, err)
		_, err = f.countsSvc.Submit(ctx, count.ID)
		require.NoError(t, err)
		_, err = f.countsSvc.Approve(ctx, count.ID, uuid.New())
		require.NoError(t, err)

		posted, err := f.countsSvc.Post(ctx, count.ID, uuid.New())
		require.NoError(t, err)
		assert.Equal(t, string(inventory.StockCountStatusPosted), posted.Status)

		history, err := f.allocation.MovementHistory(ctx, inventory.MovementHistoryFilter{ProductID: &productID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), history.Total) // only the receive

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(50)))
	})

	t.Run("submit requires every line counted", func(t *testing.T) {
		f, _, _, count := setup(t)
		_, err := f.countsSvc.Submit(ctx, count.ID)
		assert.Error(t, err)
	})

	t.Run("post requires approval first", func(t *testing.T) {
		f, _, productID, count := setup(t)

		_, err := f.countsSvc.RecordCounts(ctx, count.ID, []RecordCountLineRequest{
			{ProductID: productID, Counted: decimal.NewFromInt(49)},
		})
		require.NoError(t, err)
		_, err = f.countsSvc.Submit(ctx, count.ID)
		require.NoError(t, err)

		_, err = f.countsSvc.Post(ctx, count.ID, uuid.New())
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidState))
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "INVALID_STATUS", domainErr.Code)
	})

	t.Run("posting twice leaves the stock alone", func(t *testing.T) {
		f, location, productID, count := setup(t)

		_, err := f.countsSvc.RecordCounts(ctx, count.ID, []RecordCountLineRequest{
			{ProductID: productID, Counted: decimal.NewFromInt(52)},
		})
		require.NoError(t, err)
		_, err = f.countsSvc.Submit(ctx, count.ID)
		require.NoError(t, err)
		_, err = f.countsSvc.Approve(ctx, count.ID, uuid.New())
		require.NoError(t, err)
		_, err = f.countsSvc.Post(ctx, count.ID, uuid.New())
		require.NoError(t, err)

		// A posted count cannot be posted again, and the level keeps its value.
		_, err = f.countsSvc.Post(ctx, count.ID, uuid.New())
		assert.Error(t, err)

		level, err := f.allocation.GetStockLevel(ctx, productID, location.ID)
		require.NoError(t, err)
		assert.True(t, level.Quantity.Equal(decimal.NewFromInt(52)))
	})

	t.Run("cancel abandons a draft", func(t *testing.T) {
		f, _, _, count := setup(t)

		cancelled, err := f.countsSvc.Cancel(ctx, count.ID, "shift change")
		require.NoError(t, err)
		assert.Equal(t, string(inventory.StockCountStatusCancelled), cancelled.Status)

		events := f.publisher.GetEventsByType(inventory.EventTypeStockCountCancelled)
		assert.Len(t, events, 1)
	})
}

func TestExpirySweepService_Sweep(t *testing.T) {
	ctx := context.Background()
	f := newTestFixture()
	location := f.addLocation("Refrigerated Unit", inventory.LocationTypeRefrigerated)
	productID := uuid.New()

	expired, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-OLD", 10, timePtr(time.Now().AddDate(0, 0, -1))))
	require.NoError(t, err)
	fresh, err := f.allocation.Receive(ctx, receiveRequest(productID, location.ID, "LOT-NEW", 10, timePtr(time.Now().AddDate(1, 0, 0))))
	require.NoError(t, err)

	swept, err := f.sweepSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	expiredBatch, err := f.batches.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchStatusExpired, expiredBatch.Status)
	// Marking keeps the quantity on the books until a write-off adjusts it.
	assert.True(t, expiredBatch.CurrentQuantity.Equal(decimal.NewFromInt(10)))

	freshBatch, err := f.batches.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchStatusAvailable, freshBatch.Status)

	events := f.publisher.GetEventsByType(inventory.EventTypeBatchExpired)
	assert.Len(t, events, 1)

	// A second sweep finds nothing new.
	swept, err = f.sweepSvc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
}
