package finance

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/carefin/carefin/internal/platform/lock"
)

// Deps are the collaborators of Service. Evaluator may be nil.
type Deps struct {
	Costs       ProcedureCostRepository
	Ledger      LedgerRepository
	Budgets     BudgetRepository
	Catalog     ProcedureCatalog
	Departments DepartmentDirectory
	Tx          TxRunner
	Locker      lock.Locker
	Evaluator   BudgetEvaluator
	Logger      zerolog.Logger
}

// Service implements cost calculation, ledger posting and budget aggregation.
type Service struct {
	costs       ProcedureCostRepository
	ledger      LedgerRepository
	budgets     BudgetRepository
	catalog     ProcedureCatalog
	departments DepartmentDirectory
	tx          TxRunner
	locker      lock.Locker
	evaluator   BudgetEvaluator
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		costs:       d.Costs,
		ledger:      d.Ledger,
		budgets:     d.Budgets,
		catalog:     d.Catalog,
		departments: d.Departments,
		tx:          d.Tx,
		locker:      d.Locker,
		evaluator:   d.Evaluator,
		logger:      d.Logger.With().Str("component", "finance").Logger(),
		now:         time.Now,
	}
}

// SetEvaluator attaches the budget evaluator after construction, for wiring
// where the evaluator itself depends on this service.
func (s *Service) SetEvaluator(e BudgetEvaluator) {
	s.evaluator = e
}

// Now exposes the service clock so read paths share one notion of "today".
func (s *Service) Now() time.Time {
	return s.now()
}
