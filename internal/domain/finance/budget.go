package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/lock"
	"github.com/carefin/carefin/internal/platform/metrics"
)

// ApplyLedgerDelta refreshes the budget record of the month containing date
// after amount was posted to the ledger. The ledger is the only source of
// truth: amount is logged, and actualBudget is re-summed from the ledger.
func (s *Service) ApplyLedgerDelta(ctx context.Context, departmentID uuid.UUID, date time.Time, amount decimal.Decimal) (*BudgetRecord, error) {
	period := PeriodOf(date)
	s.logger.Debug().
		Str("department_id", departmentID.String()).
		Str("period", period.Format("2006-01")).
		Str("amount", amount.String()).
		Msg("ledger delta posted")
	return s.recompute(ctx, departmentID, period)
}

// recompute serializes on the (department, period) lock and retries the
// read-modify-write once when the store reports a conflict.
func (s *Service) recompute(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	release, err := s.locker.Lock(ctx, lock.BudgetKey(departmentID.String(), period))
	if err != nil {
		metrics.BudgetRecomputeTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	defer release()

	rec, err := s.recomputeFromLedger(ctx, departmentID, period)
	if errors.Is(err, ErrWriteConflict) {
		s.logger.Warn().Err(err).
			Str("department_id", departmentID.String()).
			Str("period", period.Format("2006-01")).
			Msg("budget write conflict, retrying")
		rec, err = s.recomputeFromLedger(ctx, departmentID, period)
	}
	if err != nil {
		metrics.BudgetRecomputeTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.BudgetRecomputeTotal.WithLabelValues("ok").Inc()
	return rec, nil
}

func (s *Service) recomputeFromLedger(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	var out *BudgetRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := s.budgets.GetForUpdate(ctx, departmentID, period)
		if errors.Is(err, ErrBudgetNotFound) {
			dept, derr := s.departments.GetDepartment(ctx, departmentID)
			if derr != nil {
				return derr
			}
			rec = &BudgetRecord{
				ID:            uuid.New(),
				DepartmentID:  departmentID,
				Period:        period,
				PlannedBudget: dept.MonthlyBudget,
			}
		} else if err != nil {
			return err
		}

		actual, err := s.ledger.SumForRange(ctx, departmentID, period, period.AddDate(0, 1, 0))
		if err != nil {
			return err
		}
		rec.ActualBudget = actual
		RecomputeDerived(rec)
		if err := s.budgets.Upsert(ctx, rec); err != nil {
			return err
		}

		if s.evaluator != nil {
			if err := s.evaluator.EvaluateBudget(ctx, rec); err != nil {
				return fmt.Errorf("evaluate budget: %w", err)
			}
		}
		out = rec
		return nil
	})
	return out, err
}

// RecomputeAllForCurrentMonth re-sums every department's current month from
// the ledger. Each department runs under its own lock and transaction; a
// failure is recorded and the batch moves on.
func (s *Service) RecomputeAllForCurrentMonth(ctx context.Context) (*RecomputeSummary, error) {
	ids, err := s.departments.ListDepartmentIDs(ctx)
	if err != nil {
		return nil, err
	}
	period := PeriodOf(s.now())
	summary := &RecomputeSummary{Period: period, Failed: []DepartmentFailure{}}

	for _, id := range ids {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if _, err := s.recompute(ctx, id, period); err != nil {
			s.logger.Error().Err(err).
				Str("department_id", id.String()).
				Str("period", period.Format("2006-01")).
				Msg("budget recompute failed")
			summary.Failed = append(summary.Failed, DepartmentFailure{DepartmentID: id, Error: err.Error()})
			continue
		}
		summary.Processed++
	}

	s.logger.Info().
		Int("processed", summary.Processed).
		Int("failed", len(summary.Failed)).
		Str("period", period.Format("2006-01")).
		Msg("budget recompute finished")
	return summary, nil
}

// GetBudget returns the record for a department and month. A zero period
// means the current month.
func (s *Service) GetBudget(ctx context.Context, departmentID uuid.UUID, period time.Time) (*BudgetRecord, error) {
	if period.IsZero() {
		period = s.now()
	}
	return s.budgets.Get(ctx, departmentID, PeriodOf(period))
}

func (s *Service) ListOverBudget(ctx context.Context) ([]*BudgetRecord, error) {
	return s.budgets.ListByStatus(ctx, StatusExceeded)
}

func (s *Service) ListAtRisk(ctx context.Context) ([]*BudgetRecord, error) {
	return s.budgets.ListByStatus(ctx, StatusWarning)
}
