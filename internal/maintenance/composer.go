package maintenance

import (
	"context"
	"errors"
	"strings"
	"time"

	"garage-backend/internal/models"
)

type State string

const (
	StateNoTypeSelected   State = "no-type-selected"
	StateFieldsIncomplete State = "fields-incomplete"
	StateValid            State = "valid"
	StateSubmitting       State = "submitting"
	StateSubmitted        State = "submitted"
	StateFailed           State = "failed"
)

var (
	ErrNotReady    = errors.New("maintenance record is not ready to submit")
	ErrClosed      = errors.New("maintenance record already submitted")
	ErrTypeMissing = errors.New("select a maintenance type first")
	ErrOilTypeChar = errors.New(OilTypeFormatHint)
)

// Submitter persists a validated draft for a vehicle.
type Submitter interface {
	Submit(ctx context.Context, vehicleID string, draft Draft) (*models.MaintenanceRecord, error)
}

// SubmitterFunc adapts a plain function to Submitter.
type SubmitterFunc func(ctx context.Context, vehicleID string, draft Draft) (*models.MaintenanceRecord, error)

func (f SubmitterFunc) Submit(ctx context.Context, vehicleID string, draft Draft) (*models.MaintenanceRecord, error) {
	return f(ctx, vehicleID, draft)
}

// Composer builds one maintenance record for a vehicle. Details entered for a
// variant survive switching to another variant and back. A Composer is not
// safe for concurrent use.
type Composer struct {
	vehicleID   string
	draft       Draft
	details     map[models.MaintenanceType]models.Details
	state       State
	oilTypeHint string
	lastErr     error
	record      *models.MaintenanceRecord
}

// NewComposer starts a draft dated today with the vehicle's current mileage.
func NewComposer(vehicleID string, currentMileage int, today time.Time) *Composer {
	c := &Composer{
		vehicleID: vehicleID,
		draft: Draft{
			Date:    today.Format(DateLayout),
			Mileage: currentMileage,
		},
		details: make(map[models.MaintenanceType]models.Details),
	}
	c.refresh()
	return c
}

func (c *Composer) VehicleID() string { return c.vehicleID }
func (c *Composer) State() State { return c.state }
func (c *Composer) OilTypeHint() string { return c.oilTypeHint }
func (c *Composer) Err() error { return c.lastErr }
func (c *Composer) Record() *models.MaintenanceRecord { return c.record }

// Draft returns the current field set.
func (c *Composer) Draft() Draft { return c.draft }

// TotalCost is recomputed from the current labor and parts inputs.
func (c *Composer) TotalCost() float64 {
	return TotalCost(c.draft.LaborCost, c.draft.PartsCost)
}

// Errors lists what still blocks submission.
func (c *Composer) Errors() ValidationErrors {
	return Validate(c.draft)
}

func (c *Composer) SelectType(t models.MaintenanceType) error {
	if err := c.editable(); err != nil {
		return err
	}
	if !t.IsValid() {
		return ValidationErrors{{Field: "type", Message: "unknown maintenance type " + string(t)}}
	}

	details, ok := c.details[t]
	if !ok {
		details = DefaultDetails(t)
		c.details[t] = details
	}
	c.draft.Type = t
	c.draft.Details = details
	c.oilTypeHint = ""
	c.refresh()
	return nil
}

func (c *Composer) SetDate(date string) error {
	return c.edit(func(d *Draft) { d.Date = date })
}

func (c *Composer) SetMileage(mileage int) error {
	return c.edit(func(d *Draft) { d.Mileage = mileage })
}

func (c *Composer) SetLaborCost(v *float64) error {
	return c.edit(func(d *Draft) { d.LaborCost = v })
}

func (c *Composer) SetPartsCost(v *float64) error {
	return c.edit(func(d *Draft) { d.PartsCost = v })
}

func (c *Composer) SetNotes(notes string) error {
	return c.edit(func(d *Draft) { d.Notes = notes })
}

// SetOilType accepts keystroke-level input. Input that can no longer become a
// grade such as "5W-30" is rejected and the previous value is kept.
func (c *Composer) SetOilType(value string) error {
	if err := c.editable(); err != nil {
		return err
	}
	oil, ok := c.draft.Details.(*models.OilChangeDetails)
	if !ok {
		return ErrTypeMissing
	}

	value = strings.ToUpper(value)
	if !IsOilTypePrefix(value) {
		c.oilTypeHint = OilTypeFormatHint
		return ErrOilTypeChar
	}

	oil.OilType = value
	if value != "" && !IsOilType(value) {
		c.oilTypeHint = OilTypeFormatHint
	} else {
		c.oilTypeHint = ""
	}
	c.refresh()
	return nil
}

// EditDetails hands the payload of the selected variant to fn.
func (c *Composer) EditDetails(fn func(models.Details)) error {
	if err := c.editable(); err != nil {
		return err
	}
	if c.draft.Details == nil {
		return ErrTypeMissing
	}
	fn(c.draft.Details)
	c.refresh()
	return nil
}

// Apply replaces the draft wholesale, as when a complete form arrives at once.
func (c *Composer) Apply(d Draft) error {
	if err := c.editable(); err != nil {
		return err
	}
	c.draft = d
	if d.Type.IsValid() {
		if isNilDetails(d.Details) {
			c.draft.Details = DefaultDetails(d.Type)
		}
		c.details[d.Type] = c.draft.Details
	}
	c.refresh()
	return nil
}

// Submit hands the draft to s. It is allowed from the valid state and, for a
// retry, from the failed state. A failure keeps every entered value.
func (c *Composer) Submit(ctx context.Context, s Submitter) (*models.MaintenanceRecord, error) {
	switch c.state {
	case StateSubmitted:
		return nil, ErrClosed
	case StateValid, StateFailed:
	default:
		return nil, ErrNotReady
	}
	if !IsValid(c.draft) {
		c.refresh()
		return nil, ErrNotReady
	}

	c.state = StateSubmitting
	record, err := s.Submit(ctx, c.vehicleID, c.draft)
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		return nil, err
	}

	c.state = StateSubmitted
	c.lastErr = nil
	c.record = record
	return record, nil
}

func (c *Composer) edit(fn func(*Draft)) error {
	if err := c.editable(); err != nil {
		return err
	}
	fn(&c.draft)
	c.refresh()
	return nil
}

func (c *Composer) editable() error {
	switch c.state {
	case StateSubmitted:
		return ErrClosed
	case StateSubmitting:
		return ErrNotReady
	}
	return nil
}

func (c *Composer) refresh() {
	switch {
	case !c.draft.Type.IsValid():
		c.state = StateNoTypeSelected
	case IsValid(c.draft):
		c.state = StateValid
	default:
		c.state = StateFieldsIncomplete
	}
}
