// Package validation checks decoded request bodies with validator/v10
// and reports failures as apperr validation errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/itemcodec"
)

type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports fields by their JSON names and
// understands the "itemname" tag: a non-blank name that does not start
// with the acquired marker.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("itemname", func(fl validator.FieldLevel) bool {
		return itemcodec.ValidateName(fl.Field().String()) == nil
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns an apperr validation error
// listing every failing field.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fieldErrors := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fieldErrors[e.Field()] = friendlyMessage(e)
	}
	return apperr.ValidationWithDetails("validation failed", fieldErrors)
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "gt":
		return "must be greater than " + e.Param()
	case "alphanum":
		return "must contain only letters and digits"
	case "itemname":
		return fmt.Sprintf("must not be blank or start with %q", itemcodec.Marker)
	default:
		return "is invalid"
	}
}
