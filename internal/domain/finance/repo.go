package finance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcedureCatalog resolves procedures owned by the clinical side of the
// facility. Returns ErrProcedureNotFound when absent.
type ProcedureCatalog interface {
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
}

// DepartmentDirectory resolves departments and their planned monthly budget.
// Returns ErrDepartmentNotFound when absent.
type DepartmentDirectory interface {
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	ListDepartmentIDs(ctx context.Context) ([]uuid.UUID, error)
}

type ProcedureCostRepository interface {
	GetByProcedureID(ctx context.Context, procedureID uuid.UUID) (*ProcedureCost, error)
	// Upsert inserts or replaces the cost row keyed by procedure id and
	// writes back the persisted id.
	Upsert(ctx context.Context, pc *ProcedureCost) error
}

// LedgerRepository is append-only. Date ranges are half-open [from, to).
type LedgerRepository interface {
	Append(ctx context.Context, e *LedgerEntry) error
	SumForRange(ctx context.Context, departmentID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	ListRange(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]*LedgerEntry, error)
	ListByDepartment(ctx context.Context, departmentID uuid.UUID, from, to time.Time, limit, offset int) ([]*LedgerEntry, int, error)
	SumByCategory(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]CategoryTotal, error)
}

type BudgetRepository interface {
	Get(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error)
	// GetForUpdate locks the row for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error)
	Upsert(ctx context.Context, r *BudgetRecord) error
	ListByStatus(ctx context.Context, status BudgetStatus) ([]*BudgetRecord, error)
}

// TxRunner runs fn inside one transaction carried on the context.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// BudgetEvaluator reacts to a freshly saved budget record. It runs inside the
// record's critical section and transaction.
type BudgetEvaluator interface {
	EvaluateBudget(ctx context.Context, r *BudgetRecord) error
}
