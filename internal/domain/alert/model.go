package alert

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrInvalidAlert  = errors.New("invalid alert")
)

type Type string

const (
	TypeBudgetExceeded        Type = "BUDGET_EXCEEDED"
	TypeCostAnomaly           Type = "COST_ANOMALY"
	TypeAlarmingTrend         Type = "ALARMING_TREND"
	TypeForecastExceedsBudget Type = "FORECAST_EXCEEDS_BUDGET"
	TypeAbnormalVariation     Type = "ABNORMAL_VARIATION"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeBudgetExceeded, TypeCostAnomaly, TypeAlarmingTrend, TypeForecastExceedsBudget, TypeAbnormalVariation:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidAlert, s)
}

type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity maps an empty string to INFO.
func ParseSeverity(s string) (Severity, error) {
	if strings.TrimSpace(s) == "" {
		return SeverityInfo, nil
	}
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	switch sev {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidAlert, s)
}

// Alert maps to the alert table. Alerts are resolved, never deleted.
type Alert struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Type         Type       `db:"alert_type" json:"type"`
	DepartmentID *uuid.UUID `db:"department_id" json:"department_id,omitempty"`
	Message      string     `db:"message" json:"message"`
	Severity     Severity   `db:"severity" json:"severity"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	Resolved     bool       `db:"resolved" json:"resolved"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

type TypeCount struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

// CreateInput is a manually raised alert.
type CreateInput struct {
	Type         string
	DepartmentID *uuid.UUID
	Message      string
	Severity     string
}

// SignalResult reports whether an anomaly signal raised an alert.
type SignalResult struct {
	Raised bool   `json:"raised"`
	Alert  *Alert `json:"alert,omitempty"`
}
