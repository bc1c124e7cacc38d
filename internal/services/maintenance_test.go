package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitDerivesCostsAndSyncsMileage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 100000)

	labor := 50.1
	draft := oilDraft("2024-03-02", 101500, 0, 0)
	draft.LaborCost = &labor
	draft.PartsCost = nil

	record, err := f.maintenance.Submit(ctx, f.mechanic, v.ID.Hex(), draft)
	require.NoError(t, err)
	assert.Equal(t, 50.1, record.LaborCost)
	assert.Equal(t, 0.0, record.PartsCost)
	assert.Equal(t, 50.1, record.TotalCost)
	assert.Equal(t, f.mechanic.UserID, record.CreatedBy)
	assert.Equal(t, f.mechanic.UserID, record.MechanicID)

	stored, err := f.store.Vehicles().FindByID(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 101500, stored.Mileage)
}

func TestSubmitAcceptsLowerMileage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 100000)

	_, err := f.maintenance.Submit(ctx, f.owner, v.ID.Hex(), oilDraft("2024-03-02", 90000, 40, 60))
	require.NoError(t, err)

	stored, err := f.store.Vehicles().FindByID(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 90000, stored.Mileage)
	assert.Contains(t, f.entries(logrus.WarnLevel), "Vehicle mileage decreased by new record")
}

func TestSubmitKeepsRecordWhenMileageSyncFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 100000)
	f.store.SetMileageUpdateError(errors.New("vehicle write timed out"))

	record, err := f.maintenance.Submit(ctx, f.owner, v.ID.Hex(), oilDraft("2024-03-02", 105000, 40, 60))
	require.NoError(t, err)
	require.NotNil(t, record)

	count, err := f.store.Maintenance().CountByVehicle(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stored, err := f.store.Vehicles().FindByID(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 100000, stored.Mileage)
	assert.Contains(t, f.entries(logrus.ErrorLevel), "Failed to update vehicle mileage; record kept")
}

func TestSubmitWriteFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 1000)
	f.store.SetCreateMaintenanceError(errors.New("server selection timeout"))

	_, err := f.maintenance.Submit(ctx, f.owner, v.ID.Hex(), oilDraft("2024-03-02", 1200, 40, 60))
	require.ErrorIs(t, err, ErrWriteFailed)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "Failed to save maintenance. Please try again.", writeErr.UserMessage())

	stored, err := f.store.Vehicles().FindByID(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 1000, stored.Mileage, "mileage must not move when the record was not written")

	f.store.SetCreateMaintenanceError(nil)
	_, err = f.maintenance.Submit(ctx, f.owner, v.ID.Hex(), oilDraft("2024-03-02", 1200, 40, 60))
	assert.NoError(t, err)
}

func TestSubmitRejectsInvalidDraftAndStrangers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 1000)

	draft := oilDraft("2024-03-02", 1200, 40, 60)
	draft.Details.(*models.OilChangeDetails).OilType = "5W30"
	_, err := f.maintenance.Submit(ctx, f.owner, v.ID.Hex(), draft)

	var errs maintenance.ValidationErrors
	require.ErrorAs(t, err, &errs)
	assert.True(t, errs.Has("details.oilType"))

	_, err = f.maintenance.Submit(ctx, f.stranger, v.ID.Hex(), oilDraft("2024-03-02", 1200, 40, 60))
	assert.ErrorIs(t, err, ErrForbidden)

	count, err := f.store.Maintenance().CountByVehicle(ctx, v.ID.Hex())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestHistoryFallsBackOnceWhenIndexMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	for _, date := range []string{"2024-01-10", "2024-03-02", "2023-12-01"} {
		_, err := f.maintenance.Submit(ctx, f.owner, id, oilDraft(date, 1000, 100, 0))
		require.NoError(t, err)
	}

	f.store.SetOrderedQueryError(fmt.Errorf("%w: index not ready", repository.ErrIndexUnavailable))
	before := f.store.OrderedQueryCalls()

	records, err := f.maintenance.History(ctx, f.owner, id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.OrderedQueryCalls()-before)

	dates := make([]string, 0, len(records))
	for _, r := range records {
		dates = append(dates, r.Date)
	}
	assert.Equal(t, []string{"2024-03-02", "2024-01-10", "2023-12-01"}, dates)
	assert.Contains(t, f.entries(logrus.WarnLevel), "Ordered history query unavailable, sorting in memory")
}

func TestHistoryDoesNotFallBackOnOtherErrors(t *testing.T) {
	f := newFixture(t)
	v := f.addVehicle(t, 0)
	boom := errors.New("network unreachable")
	f.store.SetOrderedQueryError(boom)

	_, err := f.maintenance.History(context.Background(), f.owner, v.ID.Hex())
	assert.ErrorIs(t, err, boom)
}

func TestSummaryAndOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	empty, err := f.maintenance.Summary(ctx, f.owner, id)
	require.NoError(t, err)
	assert.Equal(t, maintenance.NoServiceDate, empty.LastServiceDate)
	assert.Zero(t, empty.ServiceCount)

	for i := 1; i <= 10; i++ {
		_, err := f.maintenance.Submit(ctx, f.owner, id, oilDraft(fmt.Sprintf("2024-01-%02d", i), 1000*i, 10, 5))
		require.NoError(t, err)
	}

	summary, err := f.maintenance.Summary(ctx, f.mechanic, id)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.ServiceCount)
	assert.Equal(t, 150.0, summary.TotalSpent)
	assert.Equal(t, "2024-01-10", summary.LastServiceDate)

	overview, err := f.maintenance.Overview(ctx, f.owner, id)
	require.NoError(t, err)
	assert.Len(t, overview.Recent, maintenance.RecentLimit)
	assert.True(t, overview.HasMore)
	assert.Equal(t, "2024-01-10", overview.Recent[0].Date)
	assert.Equal(t, "/assets/brands/volkswagen.png", overview.Logo)
	assert.Equal(t, 10000, overview.Vehicle.Mileage)
}

func TestComposerSubmitsThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 42000)
	f.maintenance.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }

	c, err := f.maintenance.Compose(ctx, f.mechanic, v.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01", c.Draft().Date)
	assert.Equal(t, 42000, c.Draft().Mileage)

	require.NoError(t, c.SelectType(models.MaintenanceOther))
	require.NoError(t, c.EditDetails(func(d models.Details) {
		d.(*models.OtherDetails).Description = "Replaced wiper blades"
	}))
	require.Equal(t, maintenance.StateValid, c.State())

	record, err := c.Submit(ctx, f.maintenance.SubmitterFor(f.mechanic))
	require.NoError(t, err)
	assert.Equal(t, maintenance.StateSubmitted, c.State())
	assert.Equal(t, models.MaintenanceOther, record.Type)

	_, err = f.maintenance.Compose(ctx, f.stranger, v.ID.Hex())
	assert.ErrorIs(t, err, ErrForbidden)
}
