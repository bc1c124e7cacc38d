// Package maintenance holds the rules that decide whether a maintenance
// record may be written and how a vehicle's history is summarized. Nothing
// here touches storage.
package maintenance

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"garage-backend/internal/models"

	"github.com/go-playground/validator/v10"
)

const DateLayout = "2006-01-02"

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	validate.RegisterValidation("oil_type", func(fl validator.FieldLevel) bool {
		return IsOilType(fl.Field().String())
	})
	validate.RegisterValidation("oil_brand", func(fl validator.FieldLevel) bool {
		return IsOilBrand(fl.Field().String())
	})
	validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// Draft is the field set a record is built from.
type Draft struct {
	Type      models.MaintenanceType `json:"type"`
	Date      string                 `json:"date"`
	Mileage   int                    `json:"mileage"`
	LaborCost *float64               `json:"laborCost,omitempty"`
	PartsCost *float64               `json:"partsCost,omitempty"`
	Notes     string                 `json:"notes"`
	Details   models.Details         `json:"details"`
}

// UnmarshalJSON decodes details into the payload matching Type. An unknown or
// missing type leaves Details nil so Validate can report it.
func (d *Draft) UnmarshalJSON(data []byte) error {
	type alias Draft
	aux := struct {
		*alias
		Details json.RawMessage `json:"details"`
	}{alias: (*alias)(d)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d.Details = nil
	if len(aux.Details) == 0 || string(aux.Details) == "null" || !d.Type.IsValid() {
		return nil
	}

	details, _ := models.NewDetails(d.Type)
	if err := json.Unmarshal(aux.Details, details); err != nil {
		return fmt.Errorf("invalid %s details: %w", d.Type, err)
	}
	d.Details = details
	return nil
}

// DefaultDetails returns the payload a freshly selected variant starts with.
func DefaultDetails(t models.MaintenanceType) models.Details {
	switch t {
	case models.MaintenanceBrakeService:
		return &models.BrakeDetails{Axle: models.AxleFront}
	case models.MaintenanceChainBelt:
		return &models.ChainBeltDetails{Timing: models.TimingBelt, WaterPump: true, TimingGuides: true}
	}
	details, err := models.NewDetails(t)
	if err != nil {
		return nil
	}
	return details
}

// ValidationError describes one failed rule.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func (v ValidationErrors) Has(field string) bool {
	for _, err := range v {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Validate checks the common fields and then the rules of the selected variant.
func Validate(d Draft) ValidationErrors {
	var errs ValidationErrors

	if d.Type == "" {
		errs = append(errs, ValidationError{Field: "type", Message: "maintenance type is required"})
	} else if !d.Type.IsValid() {
		errs = append(errs, ValidationError{Field: "type", Message: fmt.Sprintf("unknown maintenance type %q", d.Type)})
	}

	if d.Date == "" {
		errs = append(errs, ValidationError{Field: "date", Message: "date is required"})
	} else if _, err := time.Parse(DateLayout, d.Date); err != nil {
		errs = append(errs, ValidationError{Field: "date", Message: "date must be formatted as YYYY-MM-DD"})
	}

	if d.Mileage <= 0 {
		errs = append(errs, ValidationError{Field: "mileage", Message: "mileage must be greater than 0"})
	}

	// Costs are not validated; TotalCost clamps them.

	if !d.Type.IsValid() {
		return errs
	}

	if isNilDetails(d.Details) {
		return append(errs, ValidationError{Field: "details", Message: "details are required"})
	}
	if d.Details.Kind() != d.Type {
		return append(errs, ValidationError{
			Field:   "details",
			Message: fmt.Sprintf("details for %s do not match type %s", d.Details.Kind(), d.Type),
		})
	}

	return append(errs, validateDetails(d.Details)...)
}

// IsValid is Validate reduced to a yes/no answer.
func IsValid(d Draft) bool {
	return len(Validate(d)) == 0
}

func validateDetails(details models.Details) ValidationErrors {
	err := validate.Struct(details)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{Field: "details", Message: err.Error()}}
	}

	errs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Field:   "details." + fe.Field(),
			Message: detailMessage(fe),
		})
	}
	return errs
}

func detailMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oil_type":
		return OilTypeFormatHint
	case "oil_brand":
		return "oil brand must be selected"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "notblank":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

func isNilDetails(d models.Details) bool {
	if d == nil {
		return true
	}
	v := reflect.ValueOf(d)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
