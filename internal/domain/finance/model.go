package finance

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostCategory classifies a ledger entry.
type CostCategory string

const (
	CategoryPersonnel   CostCategory = "PERSONNEL"
	CategoryMaterial    CostCategory = "MATERIAL"
	CategoryConsumables CostCategory = "CONSUMABLES"
)

// Categories lists every cost category in posting order.
var Categories = []CostCategory{CategoryPersonnel, CategoryMaterial, CategoryConsumables}

func ParseCostCategory(s string) (CostCategory, error) {
	c := CostCategory(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryPersonnel, CategoryMaterial, CategoryConsumables:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown cost category %q", ErrInvalidInput, s)
}

func (c CostCategory) label() string {
	switch c {
	case CategoryPersonnel:
		return "Personnel"
	case CategoryMaterial:
		return "Material"
	case CategoryConsumables:
		return "Consumables"
	}
	return string(c)
}

type BudgetStatus string

const (
	StatusWithinBudget BudgetStatus = "WITHIN_BUDGET"
	StatusWarning      BudgetStatus = "WARNING"
	StatusExceeded     BudgetStatus = "EXCEEDED"
)

func ParseBudgetStatus(s string) (BudgetStatus, error) {
	st := BudgetStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusWithinBudget, StatusWarning, StatusExceeded:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown budget status %q", ErrInvalidInput, s)
}

var (
	warningThreshold  = decimal.NewFromInt(90)
	exceededThreshold = decimal.NewFromInt(110)
	hundred           = decimal.NewFromInt(100)
)

// StatusFor maps a utilization percentage to a budget status. The upper
// boundary is inclusive for WARNING: exactly 110% is WARNING, not EXCEEDED.
func StatusFor(utilizationPct decimal.Decimal) BudgetStatus {
	switch {
	case utilizationPct.GreaterThan(exceededThreshold):
		return StatusExceeded
	case utilizationPct.GreaterThan(warningThreshold):
		return StatusWarning
	default:
		return StatusWithinBudget
	}
}

// ProcedureCost is the cost breakdown of one procedure. TotalCost is always
// the sum of the three parts; call RecomputeTotal before saving.
type ProcedureCost struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	ProcedureID     uuid.UUID       `db:"procedure_id" json:"procedure_id"`
	PersonnelCost   decimal.Decimal `db:"personnel_cost" json:"personnel_cost"`
	MaterialCost    decimal.Decimal `db:"material_cost" json:"material_cost"`
	ConsumablesCost decimal.Decimal `db:"consumables_cost" json:"consumables_cost"`
	TotalCost       decimal.Decimal `db:"total_cost" json:"total_cost"`
	ComputedAt      time.Time       `db:"computed_at" json:"computed_at"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

func (pc *ProcedureCost) RecomputeTotal() {
	pc.TotalCost = pc.PersonnelCost.Add(pc.MaterialCost).Add(pc.ConsumablesCost)
}

// Part returns the amount recorded for a category.
func (pc *ProcedureCost) Part(c CostCategory) decimal.Decimal {
	switch c {
	case CategoryPersonnel:
		return pc.PersonnelCost
	case CategoryMaterial:
		return pc.MaterialCost
	case CategoryConsumables:
		return pc.ConsumablesCost
	}
	return decimal.Zero
}

// LedgerEntry is an immutable dated expense line. Corrections are posted as
// new entries, possibly with a negative amount.
type LedgerEntry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	DepartmentID uuid.UUID       `db:"department_id" json:"department_id"`
	EntryDate    time.Time       `db:"entry_date" json:"entry_date"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Category     CostCategory    `db:"category" json:"category"`
	ProcedureID  *uuid.UUID      `db:"procedure_id" json:"procedure_id,omitempty"`
	Description  string          `db:"description" json:"description"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// BudgetRecord is the monthly planned-vs-actual aggregate of a department.
type BudgetRecord struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	DepartmentID   uuid.UUID       `db:"department_id" json:"department_id"`
	Period         time.Time       `db:"period" json:"period"`
	PlannedBudget  decimal.Decimal `db:"planned_budget" json:"planned_budget"`
	ActualBudget   decimal.Decimal `db:"actual_budget" json:"actual_budget"`
	Variance       decimal.Decimal `db:"variance" json:"variance"`
	UtilizationPct decimal.Decimal `db:"utilization_pct" json:"utilization_pct"`
	Status         BudgetStatus    `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// RecomputeDerived refreshes variance, utilization and status from the
// planned and actual amounts. Every save path calls it explicitly.
func RecomputeDerived(r *BudgetRecord) {
	r.Variance = r.ActualBudget.Sub(r.PlannedBudget)
	if r.PlannedBudget.LessThanOrEqual(decimal.Zero) {
		r.UtilizationPct = decimal.Zero
		r.Status = StatusWithinBudget
		return
	}
	r.UtilizationPct = r.ActualBudget.Mul(hundred).Div(r.PlannedBudget).Round(4)
	r.Status = StatusFor(r.UtilizationPct)
}

// Procedure is the slice of the procedure catalog the cost calculator needs.
type Procedure struct {
	ID           uuid.UUID        `json:"id"`
	DepartmentID uuid.UUID        `json:"department_id"`
	BaseCost     *decimal.Decimal `json:"base_cost,omitempty"`
	PerformedAt  *time.Time       `json:"performed_at,omitempty"`
}

type Department struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
}

type CategoryTotal struct {
	Category CostCategory    `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

type DepartmentFailure struct {
	DepartmentID uuid.UUID `json:"department_id"`
	Error        string    `json:"error"`
}

// RecomputeSummary reports the outcome of a batch recompute.
type RecomputeSummary struct {
	Period    time.Time           `json:"period"`
	Processed int                 `json:"processed"`
	Failed    []DepartmentFailure `json:"failed"`
}

// PeriodOf returns the first day of t's calendar month at UTC midnight.
func PeriodOf(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// DayOf truncates t to its calendar day at UTC midnight.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParsePeriod accepts YYYY-MM or YYYY-MM-DD and returns the month start.
func ParsePeriod(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return PeriodOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: malformed period %q", ErrInvalidInput, s)
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed date %q", ErrInvalidInput, s)
	}
	return t, nil
}
