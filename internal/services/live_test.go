package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/internal/watch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []interface{}
	errs   []error
}

func (r *recorder) deliver(v interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.values = append(r.values, v)
}

func (r *recorder) last() interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil
	}
	return r.values[len(r.values)-1]
}

func TestLiveMaintenanceView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	var rec recorder
	sub, err := f.live.Subscribe(ctx, f.mechanic, ViewMaintenance, id, rec.deliver)
	require.NoError(t, err)

	first := rec.last().(*HistoryView)
	assert.Empty(t, first.Records)

	_, err = f.maintenance.Submit(ctx, f.owner, id, oilDraft("2024-02-01", 100, 20, 30))
	require.NoError(t, err)
	latest := rec.last().(*HistoryView)
	assert.Len(t, latest.Records, 1)
	assert.Equal(t, 50.0, latest.Summary.TotalSpent)

	sub.Cancel()
	sub.Cancel()
	assert.Zero(t, f.store.Hub().Count(watch.MaintenanceTopic(id)))

	delivered := len(rec.values)
	_, err = f.maintenance.Submit(ctx, f.owner, id, oilDraft("2024-02-02", 200, 20, 30))
	require.NoError(t, err)
	assert.Len(t, rec.values, delivered)
}

func TestLiveVehiclesViewByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var owner, mechanic recorder
	ownerSub, err := f.live.Subscribe(ctx, f.owner, ViewVehicles, "", owner.deliver)
	require.NoError(t, err)
	defer ownerSub.Cancel()
	mechSub, err := f.live.Subscribe(ctx, f.mechanic, ViewVehicles, "", mechanic.deliver)
	require.NoError(t, err)
	defer mechSub.Cancel()

	assert.Empty(t, owner.last().([]*models.Vehicle))
	assert.Empty(t, mechanic.last().([]*models.Vehicle))

	f.addVehicle(t, 0)
	assert.Len(t, owner.last().([]*models.Vehicle), 1)
	assert.Len(t, mechanic.last().([]*models.Vehicle), 1)
}

func TestLiveVehicleViewRechecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	_, err := f.live.Subscribe(ctx, f.stranger, ViewVehicle, id, func(interface{}, error) {})
	assert.ErrorIs(t, err, ErrForbidden)

	var rec recorder
	sub, err := f.live.Subscribe(ctx, f.mechanic, ViewVehicle, id, rec.deliver)
	require.NoError(t, err)
	defer sub.Cancel()
	require.Len(t, rec.values, 1)

	in := validVehicleInput()
	_, err = f.vehicles.Update(ctx, f.owner, id, in)
	require.NoError(t, err)

	require.NotEmpty(t, rec.errs)
	assert.ErrorIs(t, rec.errs[len(rec.errs)-1], ErrForbidden)
}

func TestMaintenanceWatchRechecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	var rec recorder
	sub, err := f.maintenance.Watch(ctx, f.mechanic, id, func(h *HistoryView, err error) { rec.deliver(h, err) })
	require.NoError(t, err)
	defer sub.Cancel()
	require.Len(t, rec.values, 1)

	// The owner unassigns the mechanic, then logs a record.
	_, err = f.vehicles.Update(ctx, f.owner, id, validVehicleInput())
	require.NoError(t, err)
	_, err = f.vehicles.Get(ctx, f.mechanic, id)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.maintenance.Submit(ctx, f.owner, id, oilDraft("2024-02-01", 100, 20, 30))
	require.NoError(t, err)

	assert.Len(t, rec.values, 1, "no history after access is lost")
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrForbidden)
}

func TestMaintenanceWatchDeliversLatestUnderConcurrentSubmits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVehicle(t, 0)
	id := v.ID.Hex()

	var rec recorder
	slow := func(h *HistoryView, err error) {
		// Hold back the one-record snapshot so a concurrent write can race it.
		if h != nil && len(h.Records) == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		rec.deliver(h, err)
	}
	sub, err := f.maintenance.Watch(ctx, f.owner, id, slow)
	require.NoError(t, err)
	defer sub.Cancel()

	var wg sync.WaitGroup
	for _, date := range []string{"2024-01-10", "2024-03-02"} {
		wg.Add(1)
		go func(date string) {
			defer wg.Done()
			_, err := f.maintenance.Submit(ctx, f.owner, id, oilDraft(date, 100, 10, 10))
			assert.NoError(t, err)
		}(date)
	}
	wg.Wait()

	stored, err := f.maintenance.History(ctx, f.owner, id)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	latest := rec.last().(*HistoryView)
	assert.Len(t, latest.Records, 2)
	assert.Equal(t, 2, latest.Summary.ServiceCount)
	assert.Empty(t, rec.errs)
}

func TestLiveProfileView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var rec recorder
	sub, err := f.live.Subscribe(ctx, f.owner, ViewProfile, "", rec.deliver)
	require.NoError(t, err)
	defer sub.Cancel()

	address := "1 Main St"
	_, err = f.users.UpdateProfile(ctx, f.owner, repository.ProfileUpdate{Address: &address})
	require.NoError(t, err)
	assert.Equal(t, address, rec.last().(*models.AuthUser).Address)

	_, err = f.live.Subscribe(ctx, f.owner, View("dashboard"), "", rec.deliver)
	assert.ErrorIs(t, err, ErrUnknownView)
}
