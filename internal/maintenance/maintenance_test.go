package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"garage-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func validOilDraft() Draft {
	return Draft{
		Type:    models.MaintenanceOilChange,
		Date:    "2024-03-02",
		Mileage: 120000,
		Details: &models.OilChangeDetails{
			OilType:     "5W-30",
			OilBrand:    "Castrol",
			OilQuantity: 4.5,
		},
	}
}

func TestOilTypeFormat(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"5W-30", true},
		{"10W-40", true},
		{"0W-20", true},
		{"5W30", false},
		{"5-30", false},
		{"5w-30", false},
		{"100W-30", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			d := validOilDraft()
			d.Details.(*models.OilChangeDetails).OilType = tt.value
			errs := Validate(d)
			assert.Equal(t, tt.valid, !errs.Has("details.oilType"), errs.Error())
		})
	}
}

func TestOilTypePrefix(t *testing.T) {
	for _, s := range []string{"", "5", "5w", "5W-", "10W-3", "5W-30"} {
		assert.True(t, IsOilTypePrefix(s), s)
	}
	for _, s := range []string{"5X", "5W--", "A", "5W-300"} {
		assert.False(t, IsOilTypePrefix(s), s)
	}
}

func TestValidateCommonFields(t *testing.T) {
	d := validOilDraft()
	require.Empty(t, Validate(d))

	d.Mileage = 0
	d.Date = ""
	errs := Validate(d)
	assert.True(t, errs.Has("mileage"))
	assert.True(t, errs.Has("date"))

	d = validOilDraft()
	d.Date = "02/03/2024"
	assert.True(t, Validate(d).Has("date"))

	d = validOilDraft()
	d.Type = ""
	d.Details = nil
	assert.True(t, Validate(d).Has("type"))
}

func TestValidateAcceptsAnyCosts(t *testing.T) {
	d := validOilDraft()
	d.LaborCost = ptr(-10)
	d.PartsCost = ptr(50)
	assert.Empty(t, Validate(d))
	assert.Equal(t, 40.0, TotalCost(d.LaborCost, d.PartsCost))

	d.PartsCost = ptr(-50)
	assert.Empty(t, Validate(d))
	assert.Equal(t, 0.0, TotalCost(d.LaborCost, d.PartsCost))

	c := NewComposer("v1", 1000, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, c.SelectType(models.MaintenanceOther))
	require.NoError(t, c.EditDetails(func(d models.Details) { d.(*models.OtherDetails).Description = "wipers" }))
	require.NoError(t, c.SetLaborCost(ptr(-5)))
	assert.Equal(t, StateValid, c.State())
	assert.Equal(t, 0.0, c.TotalCost())
}

func TestValidateVariantRules(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		field   string
		isValid bool
	}{
		{
			name:  "other without description",
			draft: Draft{Type: models.MaintenanceOther, Details: &models.OtherDetails{Description: "  "}},
			field: "details.description",
		},
		{
			name:    "other with description",
			draft:   Draft{Type: models.MaintenanceOther, Details: &models.OtherDetails{Description: "Wiper blades"}},
			isValid: true,
		},
		{
			name:  "inspection without result",
			draft: Draft{Type: models.MaintenanceInspection, Details: &models.InspectionDetails{}},
			field: "details.result",
		},
		{
			name:  "timing without brand",
			draft: Draft{Type: models.MaintenanceChainBelt, Details: &models.ChainBeltDetails{Timing: models.TimingBelt}},
			field: "details.brand",
		},
		{
			name:    "brake defaults",
			draft:   Draft{Type: models.MaintenanceBrakeService, Details: DefaultDetails(models.MaintenanceBrakeService)},
			isValid: true,
		},
		{
			name:  "oil quantity zero",
			draft: Draft{Type: models.MaintenanceOilChange, Details: &models.OilChangeDetails{OilType: "5W-30", OilBrand: "Motul"}},
			field: "details.oilQuantity",
		},
		{
			name:  "unknown oil brand",
			draft: Draft{Type: models.MaintenanceOilChange, Details: &models.OilChangeDetails{OilType: "5W-30", OilBrand: "Acme", OilQuantity: 4}},
			field: "details.oilBrand",
		},
		{
			name:  "details of another variant",
			draft: Draft{Type: models.MaintenanceOther, Details: &models.BrakeDetails{Axle: models.AxleRear}},
			field: "details",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.draft.Date = "2024-01-10"
			tt.draft.Mileage = 1000
			errs := Validate(tt.draft)
			if tt.isValid {
				assert.Empty(t, errs)
				return
			}
			assert.True(t, errs.Has(tt.field), errs.Error())
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	d := validOilDraft()
	d.Mileage = -1
	first := Validate(d)
	second := Validate(d)
	assert.Equal(t, first, second)
}

func TestTotalCost(t *testing.T) {
	assert.Equal(t, 50.0, TotalCost(ptr(50), nil))
	assert.Equal(t, 0.0, TotalCost(nil, nil))
	assert.Equal(t, 80.3, TotalCost(ptr(50.1), ptr(30.2)))
	assert.Equal(t, 0.0, TotalCost(ptr(-100), ptr(20)))

	total := TotalCost(ptr(math.NaN()), ptr(10))
	assert.False(t, math.IsNaN(total))
	assert.Equal(t, 10.0, total)
}

func TestDraftUnmarshalJSON(t *testing.T) {
	var d Draft
	body := `{"type":"chain/belt-service","date":"2024-01-10","mileage":90000,"laborCost":120,
		"details":{"timing":"chain","brand":"INA","waterPump":false,"timingGuides":true}}`
	require.NoError(t, json.Unmarshal([]byte(body), &d))

	details, ok := d.Details.(*models.ChainBeltDetails)
	require.True(t, ok)
	assert.Equal(t, models.TimingChain, details.Timing)
	assert.Equal(t, "INA", details.Brand)
	assert.Nil(t, d.PartsCost)
	assert.Equal(t, 120.0, *d.LaborCost)

	var unknown Draft
	require.NoError(t, json.Unmarshal([]byte(`{"type":"tyres","details":{}}`), &unknown))
	assert.Nil(t, unknown.Details)
	assert.True(t, Validate(unknown).Has("type"))
}

func TestSummarize(t *testing.T) {
	records := []*models.MaintenanceRecord{
		{Date: "2024-01-10", TotalCost: 100},
		{Date: "2024-03-02", TotalCost: 250.5},
		{Date: "2023-12-01", TotalCost: 49.5},
	}
	SortByDateDesc(records)

	s := Summarize(records)
	assert.Equal(t, 3, s.ServiceCount)
	assert.Equal(t, "2024-03-02", s.LastServiceDate)
	assert.Equal(t, 400.0, s.TotalSpent)

	empty := Summarize(nil)
	assert.Equal(t, NoServiceDate, empty.LastServiceDate)
	assert.Zero(t, empty.ServiceCount)
	assert.Zero(t, empty.TotalSpent)
}

func TestSortByDateDesc(t *testing.T) {
	now := time.Now()
	records := []*models.MaintenanceRecord{
		{Date: "bad"},
		{Date: "2024-01-10", CreatedAt: now.Add(-time.Hour)},
		{Date: "2024-01-10", CreatedAt: now},
		{Date: "2024-05-01"},
	}
	SortByDateDesc(records)

	assert.Equal(t, "2024-05-01", records[0].Date)
	assert.Equal(t, now, records[1].CreatedAt)
	assert.Equal(t, "bad", records[3].Date)
}

func TestRecent(t *testing.T) {
	records := make([]*models.MaintenanceRecord, 12)
	for i := range records {
		records[i] = &models.MaintenanceRecord{}
	}

	got, more := Recent(records, RecentLimit)
	assert.Len(t, got, RecentLimit)
	assert.True(t, more)

	got, more = Recent(records[:9], RecentLimit)
	assert.Len(t, got, 9)
	assert.False(t, more)
}

func TestComposerLifecycle(t *testing.T) {
	today := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	c := NewComposer("veh-1", 120000, today)

	assert.Equal(t, StateNoTypeSelected, c.State())
	assert.Equal(t, "2024-03-02", c.Draft().Date)
	assert.Equal(t, 120000, c.Draft().Mileage)

	require.NoError(t, c.SelectType(models.MaintenanceOilChange))
	assert.Equal(t, StateFieldsIncomplete, c.State())

	require.NoError(t, c.SetOilType("5w-3"))
	assert.Equal(t, OilTypeFormatHint, c.OilTypeHint())
	assert.ErrorIs(t, c.SetOilType("5w-3x"), ErrOilTypeChar)
	require.NoError(t, c.SetOilType("5w-30"))
	assert.Empty(t, c.OilTypeHint())

	require.NoError(t, c.EditDetails(func(d models.Details) {
		oil := d.(*models.OilChangeDetails)
		oil.OilBrand = "Liqui Moly"
		oil.OilQuantity = 5
	}))
	assert.Equal(t, StateValid, c.State())

	require.NoError(t, c.SetLaborCost(ptr(60)))
	assert.Equal(t, 60.0, c.TotalCost())

	calls := 0
	failing := SubmitterFunc(func(ctx context.Context, vehicleID string, d Draft) (*models.MaintenanceRecord, error) {
		calls++
		return nil, errors.New("write failed")
	})
	_, err := c.Submit(context.Background(), failing)
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, "5W-30", c.Draft().Details.(*models.OilChangeDetails).OilType)

	ok := SubmitterFunc(func(ctx context.Context, vehicleID string, d Draft) (*models.MaintenanceRecord, error) {
		calls++
		assert.Equal(t, "veh-1", vehicleID)
		return &models.MaintenanceRecord{VehicleID: vehicleID, Type: d.Type}, nil
	})
	record, err := c.Submit(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, c.State())
	assert.Equal(t, record, c.Record())
	assert.Equal(t, 2, calls)

	assert.ErrorIs(t, c.SetNotes("late edit"), ErrClosed)
	_, err = c.Submit(context.Background(), ok)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestComposerKeepsDetailsAcrossVariants(t *testing.T) {
	c := NewComposer("veh-1", 0, time.Now())

	require.NoError(t, c.SelectType(models.MaintenanceBrakeService))
	assert.Equal(t, models.AxleFront, c.Draft().Details.(*models.BrakeDetails).Axle)
	require.NoError(t, c.EditDetails(func(d models.Details) {
		d.(*models.BrakeDetails).Axle = models.AxleRear
	}))

	require.NoError(t, c.SelectType(models.MaintenanceChainBelt))
	belt := c.Draft().Details.(*models.ChainBeltDetails)
	assert.Equal(t, models.TimingBelt, belt.Timing)
	assert.True(t, belt.WaterPump)
	assert.True(t, belt.TimingGuides)

	require.NoError(t, c.SelectType(models.MaintenanceBrakeService))
	assert.Equal(t, models.AxleRear, c.Draft().Details.(*models.BrakeDetails).Axle)
}

func TestComposerSubmitRequiresValidDraft(t *testing.T) {
	c := NewComposer("veh-1", 0, time.Now())
	require.NoError(t, c.SelectType(models.MaintenanceOther))

	never := SubmitterFunc(func(ctx context.Context, vehicleID string, d Draft) (*models.MaintenanceRecord, error) {
		t.Fatal("submitter must not be called")
		return nil, nil
	})
	_, err := c.Submit(context.Background(), never)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateFieldsIncomplete, c.State())

	assert.ErrorIs(t, NewComposer("v", 0, time.Now()).SetOilType("5W"), ErrTypeMissing)
}
