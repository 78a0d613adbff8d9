package main

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a client mistake in a request body. It is written back
// as a 400 with Message as the body.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return &Validator{validate: v}
}

// Struct checks the validate tags of s. A missing required field is reported
// with requiredMsg so each endpoint keeps its own wording.
func (v *Validator) Struct(s any, requiredMsg string) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return &ValidationError{Message: requiredMsg}
		}
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "email":
		return invalid("%s is invalid", fe.Field())
	case "max":
		return invalid("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return invalid("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
