package validate

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type costInput struct {
	ProcedureID string          `json:"procedure_id" validate:"required,uuid"`
	Personnel   decimal.Decimal `json:"personnel_cost" validate:"gte=0"`
	Severity    string          `json:"severity" validate:"omitempty,oneof=INFO WARNING CRITICAL"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	in := costInput{
		ProcedureID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Personnel:   decimal.RequireFromString("120.50"),
	}
	assert.NoError(t, v.Validate(&in))
}

func TestValidate_NegativeDecimal(t *testing.T) {
	v := New()
	in := costInput{
		ProcedureID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Personnel:   decimal.RequireFromString("-1"),
	}
	err := v.Validate(&in)
	require.Error(t, err)

	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "personnel_cost: gte")
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.v.Struct(&costInput{Severity: "URGENT"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := Fields(verrs)
	assert.Equal(t, "required", fields["procedure_id"])
	assert.Equal(t, "oneof", fields["severity"])
}
