package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate
	once     sync.Once

	currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// CustomValidate builds the shared validator with the proxy's custom rules:
// "currency" (three letter ISO-4217 shape, any case) and "amount" (a positive
// decimal literal). Field names in errors are the json names.
func CustomValidate() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("currency", currency)
		_ = v.RegisterValidation("amount", amount)
		instance = v
	})
	return instance
}

func currency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func amount(fl validator.FieldLevel) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(fl.Field().String()), 64)
	return err == nil && v > 0
}

// FieldError is the first failed rule of a validation error.
type FieldError struct {
	Field string
	Tag   string
}

// First returns the first failing field of err, or false when err is not a
// validation error.
func First(err error) (FieldError, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return FieldError{}, false
	}
	return FieldError{Field: ve[0].Field(), Tag: ve[0].Tag()}, true
}
