package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/db"
)

// isConflict reports serialization failures, deadlocks and unique violations.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

// =========== Directory ===========

type DirectoryPG struct{ pool *pgxpool.Pool }

// NewDirectoryPG reads the department and procedure reference tables.
func NewDirectoryPG(pool *pgxpool.Pool) *DirectoryPG { return &DirectoryPG{pool: pool} }

func (r *DirectoryPG) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	var p Procedure
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, department_id, base_cost, performed_at FROM procedure WHERE id = $1`, id).
		Scan(&p.ID, &p.DepartmentID, &p.BaseCost, &p.PerformedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProcedureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get procedure: %w", err)
	}
	return &p, nil
}

func (r *DirectoryPG) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, monthly_budget FROM department WHERE id = $1`, id).
		Scan(&d.ID, &d.Name, &d.MonthlyBudget)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDepartmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &d, nil
}

func (r *DirectoryPG) ListDepartmentIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id FROM department WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =========== Procedure Cost Repository ===========

type procedureCostRepoPG struct{ pool *pgxpool.Pool }

func NewProcedureCostRepoPG(pool *pgxpool.Pool) ProcedureCostRepository {
	return &procedureCostRepoPG{pool: pool}
}

const costCols = `id, procedure_id, personnel_cost, material_cost, consumables_cost, total_cost, computed_at, created_at`

func (r *procedureCostRepoPG) GetByProcedureID(ctx context.Context, procedureID uuid.UUID) (*ProcedureCost, error) {
	var pc ProcedureCost
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+costCols+` FROM procedure_cost WHERE procedure_id = $1`, procedureID).
		Scan(&pc.ID, &pc.ProcedureID, &pc.PersonnelCost, &pc.MaterialCost, &pc.ConsumablesCost,
			&pc.TotalCost, &pc.ComputedAt, &pc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProcedureCostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get procedure cost: %w", err)
	}
	return &pc, nil
}

func (r *procedureCostRepoPG) Upsert(ctx context.Context, pc *ProcedureCost) error {
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	pc.RecomputeTotal()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO procedure_cost (id, procedure_id, personnel_cost, material_cost, consumables_cost, total_cost, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (procedure_id) DO UPDATE SET
			personnel_cost = EXCLUDED.personnel_cost,
			material_cost = EXCLUDED.material_cost,
			consumables_cost = EXCLUDED.consumables_cost,
			total_cost = EXCLUDED.total_cost,
			computed_at = EXCLUDED.computed_at
		RETURNING id, created_at`,
		pc.ID, pc.ProcedureID, pc.PersonnelCost, pc.MaterialCost, pc.ConsumablesCost, pc.TotalCost, pc.ComputedAt).
		Scan(&pc.ID, &pc.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert procedure cost: %w", err)
	}
	return nil
}

// =========== Ledger Repository ===========

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewLedgerRepoPG(pool *pgxpool.Pool) LedgerRepository { return &ledgerRepoPG{pool: pool} }

const ledgerCols = `id, department_id, entry_date, amount, category, procedure_id, description, created_at`

func scanLedgerEntry(row pgx.Row) (*LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(&e.ID, &e.DepartmentID, &e.EntryDate, &e.Amount, &e.Category,
		&e.ProcedureID, &e.Description, &e.CreatedAt)
	return &e, err
}

func (r *ledgerRepoPG) Append(ctx context.Context, e *LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO ledger_entry (id, department_id, entry_date, amount, category, procedure_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		e.ID, e.DepartmentID, e.EntryDate, e.Amount, e.Category, e.ProcedureID, e.Description).
		Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

func (r *ledgerRepoPG) SumForRange(ctx context.Context, departmentID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entry
		WHERE department_id = $1 AND entry_date >= $2 AND entry_date < $3`,
		departmentID, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger: %w", err)
	}
	return sum, nil
}

func (r *ledgerRepoPG) ListRange(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]*LedgerEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+ledgerCols+` FROM ledger_entry
		WHERE department_id = $1 AND entry_date >= $2 AND entry_date < $3
		ORDER BY entry_date, created_at`, departmentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()
	var items []*LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *ledgerRepoPG) ListByDepartment(ctx context.Context, departmentID uuid.UUID, from, to time.Time, limit, offset int) ([]*LedgerEntry, int, error) {
	var total int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entry
		WHERE department_id = $1 AND entry_date >= $2 AND entry_date < $3`,
		departmentID, from, to).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger: %w", err)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+ledgerCols+` FROM ledger_entry
		WHERE department_id = $1 AND entry_date >= $2 AND entry_date < $3
		ORDER BY entry_date DESC, created_at DESC LIMIT $4 OFFSET $5`,
		departmentID, from, to, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()
	var items []*LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *ledgerRepoPG) SumByCategory(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT category, COALESCE(SUM(amount), 0) FROM ledger_entry
		WHERE department_id = $1 AND entry_date >= $2 AND entry_date < $3
		GROUP BY category ORDER BY category`, departmentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum ledger by category: %w", err)
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// =========== Budget Repository ===========

type budgetRepoPG struct{ pool *pgxpool.Pool }

func NewBudgetRepoPG(pool *pgxpool.Pool) BudgetRepository { return &budgetRepoPG{pool: pool} }

const budgetCols = `id, department_id, period, planned_budget, actual_budget, variance, utilization_pct, status, created_at, updated_at`

func scanBudget(row pgx.Row) (*BudgetRecord, error) {
	var b BudgetRecord
	err := row.Scan(&b.ID, &b.DepartmentID, &b.Period, &b.PlannedBudget, &b.ActualBudget,
		&b.Variance, &b.UtilizationPct, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBudgetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget record: %w", err)
	}
	return &b, nil
}

func (r *budgetRepoPG) Get(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	return scanBudget(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+budgetCols+` FROM budget_record WHERE department_id = $1 AND period = $2`, departmentID, period))
}

func (r *budgetRepoPG) GetForUpdate(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	return scanBudget(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+budgetCols+` FROM budget_record WHERE department_id = $1 AND period = $2 FOR UPDATE`, departmentID, period))
}

func (r *budgetRepoPG) Upsert(ctx context.Context, b *BudgetRecord) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO budget_record (id, department_id, period, planned_budget, actual_budget, variance, utilization_pct, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (department_id, period) DO UPDATE SET
			planned_budget = EXCLUDED.planned_budget,
			actual_budget = EXCLUDED.actual_budget,
			variance = EXCLUDED.variance,
			utilization_pct = EXCLUDED.utilization_pct,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		b.ID, b.DepartmentID, b.Period, b.PlannedBudget, b.ActualBudget, b.Variance, b.UtilizationPct, b.Status).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isConflict(err) {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	if err != nil {
		return fmt.Errorf("upsert budget record: %w", err)
	}
	return nil
}

func (r *budgetRepoPG) ListByStatus(ctx context.Context, status BudgetStatus) ([]*BudgetRecord, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+budgetCols+` FROM budget_record WHERE status = $1 ORDER BY period DESC, utilization_pct DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list budget records: %w", err)
	}
	defer rows.Close()
	var items []*BudgetRecord
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}
