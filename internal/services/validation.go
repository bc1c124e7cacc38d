package services

import (
	"errors"
	"reflect"
	"strings"

	"garage-backend/internal/catalog"
	"garage-backend/internal/maintenance"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterValidation("catalog_make", func(fl validator.FieldLevel) bool {
		return catalog.IsKnownMake(fl.Field().String())
	})
	v.RegisterValidation("engine_type", func(fl validator.FieldLevel) bool {
		return catalog.IsEngineType(fl.Field().String())
	})
	v.RegisterValidation("transmission", func(fl validator.FieldLevel) bool {
		return catalog.IsTransmission(fl.Field().String())
	})
	v.RegisterValidation("drivetrain", func(fl validator.FieldLevel) bool {
		return catalog.IsDrivetrain(fl.Field().String())
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateStruct runs the struct tags and converts failures into field errors.
func validateStruct(s interface{}) maintenance.ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return maintenance.ValidationErrors{{Field: "request", Message: err.Error()}}
	}

	errs := make(maintenance.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, maintenance.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "required_if":
		return field + " is required for this role"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return field + " must be at least " + fe.Param()
	case "max":
		return field + " must be at most " + fe.Param()
	case "len":
		return field + " must be exactly " + fe.Param() + " characters"
	case "alphanum":
		return field + " must contain only letters and digits"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	case "catalog_make":
		return field + " is not a supported make"
	case "engine_type":
		return field + " must be one of: " + strings.Join(catalog.EngineTypes, ", ")
	case "transmission":
		return field + " must be one of: " + strings.Join(catalog.Transmissions, ", ")
	case "drivetrain":
		return field + " must be one of: " + strings.Join(catalog.Drivetrains, ", ")
	default:
		return field + " is invalid"
	}
}
