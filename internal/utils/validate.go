package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks `validate` struct tags and reports fields by their json
// names. It satisfies echo.Validator.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

var shared = NewValidator()

// ValidateStruct checks s against its tags with the shared validator.
func ValidateStruct(s any) error {
	return shared.Validate(s)
}

// ValidationMessage turns a validator error into a short client message
// naming the first failing field.
func ValidationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "invalid request"
	}
	f := fields[0]
	switch f.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f.Field(), f.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", f.Field(), f.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f.Field(), f.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f.Field(), f.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", f.Field())
	case "http_url":
		return fmt.Sprintf("%s must be an http(s) URL", f.Field())
	}
	return fmt.Sprintf("%s is invalid", f.Field())
}
