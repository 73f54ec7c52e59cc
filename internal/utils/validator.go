// internal/utils/validator.go
package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// CheckStruct validates s and converts failures into an apperrors validation error.
func CheckStruct(s interface{}) error {
	err := ValidateStruct(s)
	if err == nil {
		return nil
	}

	fields := GetValidationErrors(err)
	if len(fields) == 0 {
		return apperrors.Validation(err.Error())
	}
	return apperrors.Validation("invalid input", fields...)
}

func GetValidationErrors(err error) []apperrors.FieldError {
	var validationErrors []apperrors.FieldError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, apperrors.FieldError{
				Field:   e.Field(),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param() + " characters"
	case "max":
		return e.Field() + " must be at most " + e.Param() + " characters"
	case "gte":
		return e.Field() + " must be at least " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "datetime":
		return e.Field() + " must be a date formatted as YYYY-MM-DD"
	case "iso4217":
		return e.Field() + " must be an ISO 4217 currency code"
	default:
		return e.Field() + " is invalid"
	}
}
