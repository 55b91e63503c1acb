// Package validation provides struct validation using go-playground/validator
// v10. A single validator instance is shared process-wide because it caches
// struct metadata. Failures are translated into apperror validation errors
// that name the first offending JSON field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/keyxmakerx/gallery/internal/apperror"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// loginCharset matches logins made of letters, digits and _ . @ -.
const loginCharset = "_.@-abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Get returns the shared validator instance.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report JSON names rather than Go field names so messages match
		// what the client sent.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation("login", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s != "" && strings.Trim(s, loginCharset) == ""
		})
	})
	return validate
}

// Struct validates s and returns nil or a 422 *apperror.AppError naming the
// first failing field.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.NewValidation(err.Error())
	}

	fe := fieldErrs[0]
	return apperror.NewFieldValidation(fe.Field(), translate(fe))
}

// messageTemplates maps tags without a parameter to messages.
var messageTemplates = map[string]string{
	"required": "%s is required",
	"login":    "%s may only contain letters, digits and _ . @ -",
}

// translate converts a validator.FieldError to a human-readable message.
func translate(fe validator.FieldError) string {
	field := fe.Field()
	if tmpl, ok := messageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, field)
	}

	isString := fe.Kind() == reflect.String || fe.Kind() == reflect.Ptr && fe.Type().Elem().Kind() == reflect.String
	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", field, lowerFirst(fe.Param()))
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// lowerFirst turns a Go field name from a tag parameter into its JSON form.
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
