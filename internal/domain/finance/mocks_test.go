package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/lock"
)

// -- Mock Repositories --

type mockCatalog struct {
	mu    sync.Mutex
	procs map[uuid.UUID]*Procedure
}

func (m *mockCatalog) GetProcedure(_ context.Context, id uuid.UUID) (*Procedure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[id]
	if !ok {
		return nil, ErrProcedureNotFound
	}
	cp := *p
	return &cp, nil
}

type mockDirectory struct {
	mu    sync.Mutex
	depts map[uuid.UUID]*Department
	order []uuid.UUID
	// extra ids listed by ListDepartmentIDs but unknown to GetDepartment
	ghosts []uuid.UUID
}

func (m *mockDirectory) GetDepartment(_ context.Context, id uuid.UUID) (*Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depts[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDirectory) ListDepartmentIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]uuid.UUID{}, m.order...)
	return append(out, m.ghosts...), nil
}

type mockCostRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*ProcedureCost
	// readDelay widens the window between reading the previous breakdown
	// and upserting the new one.
	readDelay time.Duration
}

func (m *mockCostRepo) GetByProcedureID(_ context.Context, procedureID uuid.UUID) (*ProcedureCost, error) {
	if m.readDelay > 0 {
		time.Sleep(m.readDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.items[procedureID]
	if !ok {
		return nil, ErrProcedureCostNotFound
	}
	cp := *pc
	return &cp, nil
}

func (m *mockCostRepo) Upsert(_ context.Context, pc *ProcedureCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pc.ID == uuid.Nil {
		pc.ID = uuid.New()
	}
	pc.RecomputeTotal()
	if prev, ok := m.items[pc.ProcedureID]; ok {
		pc.ID = prev.ID
		pc.CreatedAt = prev.CreatedAt
	} else {
		pc.CreatedAt = time.Now()
	}
	cp := *pc
	m.items[pc.ProcedureID] = &cp
	return nil
}

type mockLedger struct {
	mu      sync.Mutex
	entries []*LedgerEntry
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (m *mockLedger) Append(_ context.Context, e *LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockLedger) SumForRange(_ context.Context, departmentID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, e := range m.entries {
		if e.DepartmentID == departmentID && inRange(e.EntryDate, from, to) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (m *mockLedger) ListRange(_ context.Context, departmentID uuid.UUID, from, to time.Time) ([]*LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LedgerEntry
	for _, e := range m.entries {
		if e.DepartmentID == departmentID && inRange(e.EntryDate, from, to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockLedger) ListByDepartment(ctx context.Context, departmentID uuid.UUID, from, to time.Time, limit, offset int) ([]*LedgerEntry, int, error) {
	all, _ := m.ListRange(ctx, departmentID, from, to)
	sort.SliceStable(all, func(i, j int) bool { return all[i].EntryDate.After(all[j].EntryDate) })
	total := len(all)
	if offset >= total {
		return []*LedgerEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockLedger) SumByCategory(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]CategoryTotal, error) {
	all, _ := m.ListRange(ctx, departmentID, from, to)
	sums := map[CostCategory]decimal.Decimal{}
	for _, e := range all {
		sums[e.Category] = sums[e.Category].Add(e.Amount)
	}
	var out []CategoryTotal
	for c, v := range sums {
		out = append(out, CategoryTotal{Category: c, Total: v})
	}
	return out, nil
}

func (m *mockLedger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type budgetKey struct {
	dept   uuid.UUID
	period string
}

type mockBudgetRepo struct {
	mu    sync.Mutex
	items map[budgetKey]*BudgetRecord
	// conflicts makes the next N upserts fail with ErrWriteConflict
	conflicts int
	upserts   int
}

func keyOf(dept uuid.UUID, period time.Time) budgetKey {
	return budgetKey{dept: dept, period: period.Format("2006-01")}
}

func (m *mockBudgetRepo) Get(_ context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.items[keyOf(departmentID, period)]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockBudgetRepo) GetForUpdate(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	return m.Get(ctx, departmentID, period)
}

func (m *mockBudgetRepo) Upsert(_ context.Context, r *BudgetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.conflicts > 0 {
		m.conflicts--
		return fmt.Errorf("%w: simulated", ErrWriteConflict)
	}
	r.UpdatedAt = time.Now()
	cp := *r
	m.items[keyOf(r.DepartmentID, r.Period)] = &cp
	return nil
}

func (m *mockBudgetRepo) ListByStatus(_ context.Context, status BudgetStatus) ([]*BudgetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BudgetRecord
	for _, r := range m.items {
		if r.Status == status {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- Fixture --

// Fixture is an in-memory finance service; exported so external test
// packages can drive end-to-end flows.
type Fixture struct {
	Service     *Service
	catalog     *mockCatalog
	directory   *mockDirectory
	costs       *mockCostRepo
	ledger      *mockLedger
	budgets     *mockBudgetRepo
	currentTime time.Time
}

func NewFixture(now time.Time, evaluator BudgetEvaluator) *Fixture {
	f := &Fixture{
		catalog:     &mockCatalog{procs: map[uuid.UUID]*Procedure{}},
		directory:   &mockDirectory{depts: map[uuid.UUID]*Department{}},
		costs:       &mockCostRepo{items: map[uuid.UUID]*ProcedureCost{}},
		ledger:      &mockLedger{},
		budgets:     &mockBudgetRepo{items: map[budgetKey]*BudgetRecord{}},
		currentTime: now,
	}
	f.Service = NewService(Deps{
		Costs:       f.costs,
		Ledger:      f.ledger,
		Budgets:     f.budgets,
		Catalog:     f.catalog,
		Departments: f.directory,
		Tx:          passTx{},
		Locker:      lock.NewLocalLocker(),
		Evaluator:   evaluator,
		Logger:      zerolog.Nop(),
	})
	f.Service.now = func() time.Time { return f.currentTime }
	return f
}

func (f *Fixture) AddDepartment(planned string) uuid.UUID {
	id := uuid.New()
	f.directory.mu.Lock()
	defer f.directory.mu.Unlock()
	f.directory.depts[id] = &Department{ID: id, Name: "Dept " + id.String()[:8], MonthlyBudget: decimal.RequireFromString(planned)}
	f.directory.order = append(f.directory.order, id)
	return id
}

func (f *Fixture) AddProcedure(deptID uuid.UUID, baseCost string, performedAt *time.Time) uuid.UUID {
	id := uuid.New()
	p := &Procedure{ID: id, DepartmentID: deptID, PerformedAt: performedAt}
	if baseCost != "" {
		d := decimal.RequireFromString(baseCost)
		p.BaseCost = &d
	}
	f.catalog.mu.Lock()
	defer f.catalog.mu.Unlock()
	f.catalog.procs[id] = p
	return id
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Dec is the exported form of dec for external test packages.
func Dec(s string) *decimal.Decimal { return dec(s) }
