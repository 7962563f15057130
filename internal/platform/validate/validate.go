// Package validate binds go-playground/validator to echo's Validator hook.
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type Validator struct {
	v *validator.Validate
}

// New returns a validator that understands decimal.Decimal fields, so
// `validate:"gte=0"` applies to money amounts.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{v: v}
}

// Validate implements echo.Validator. Failures become a 400 listing each
// offending field and the rule it broke.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fields := Fields(verrs)
	parts := make([]string, 0, len(fields))
	for f, tag := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, tag))
	}
	sort.Strings(parts)
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request: "+strings.Join(parts, ", "))
}

// Fields maps each failing field to the tag that rejected it.
func Fields(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, ve := range verrs {
		out[ve.Field()] = ve.Tag()
	}
	return out
}
