package finance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/platform/lock"
	"github.com/carefin/carefin/internal/platform/metrics"
)

// CostInput carries the optional cost parts of a procedure. Absent parts are zero.
type CostInput struct {
	ProcedureID uuid.UUID
	Personnel   *decimal.Decimal
	Material    *decimal.Decimal
	Consumables *decimal.Decimal
}

var (
	personnelShare = decimal.RequireFromString("0.60")
	materialShare  = decimal.RequireFromString("0.25")
)

// AutomaticSplit divides a base cost 60/25/15 across personnel, material and
// consumables. Consumables takes the rounding remainder so the parts always
// sum to the base cost.
func AutomaticSplit(base decimal.Decimal) (personnel, material, consumables decimal.Decimal) {
	personnel = base.Mul(personnelShare).Round(2)
	material = base.Mul(materialShare).Round(2)
	consumables = base.Sub(personnel).Sub(material)
	return personnel, material, consumables
}

func partOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// ComputeCost upserts the cost breakdown of a procedure, posts the matching
// ledger entries and refreshes the department's budget record for the month
// the procedure belongs to.
func (s *Service) ComputeCost(ctx context.Context, in CostInput) (*ProcedureCost, error) {
	if in.ProcedureID == uuid.Nil {
		return nil, fmt.Errorf("%w: procedure_id is required", ErrInvalidInput)
	}
	pc := &ProcedureCost{
		ProcedureID:     in.ProcedureID,
		PersonnelCost:   partOrZero(in.Personnel),
		MaterialCost:    partOrZero(in.Material),
		ConsumablesCost: partOrZero(in.Consumables),
	}
	for _, c := range Categories {
		part := pc.Part(c)
		if part.IsNegative() {
			return nil, fmt.Errorf("%w: %s cost must not be negative", ErrInvalidInput, c.label())
		}
		// Amounts are stored in whole cents.
		if !part.Equal(part.Round(2)) {
			return nil, fmt.Errorf("%w: %s cost has more than two decimal places", ErrInvalidInput, c.label())
		}
	}

	proc, err := s.catalog.GetProcedure(ctx, in.ProcedureID)
	if err != nil {
		return nil, err
	}
	entryDate := s.now()
	if proc.PerformedAt != nil {
		entryDate = *proc.PerformedAt
	}
	entryDate = DayOf(entryDate)

	// The previous breakdown decides the correction entries, so concurrent
	// costings of one procedure must not both read the same prev.
	release, err := s.locker.Lock(ctx, lock.ProcedureKey(in.ProcedureID.String()))
	if err != nil {
		return nil, err
	}
	var posted []*LedgerEntry
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		prev, err := s.costs.GetByProcedureID(ctx, in.ProcedureID)
		if err != nil && !errors.Is(err, ErrProcedureCostNotFound) {
			return err
		}
		if prev != nil {
			pc.ID = prev.ID
		}
		pc.ComputedAt = s.now()
		pc.RecomputeTotal()
		if err := s.costs.Upsert(ctx, pc); err != nil {
			return err
		}

		posted = ledgerEntriesFor(pc, prev, proc.DepartmentID, entryDate)
		for _, e := range posted {
			if err := s.ledger.Append(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	release()
	if err != nil {
		return nil, err
	}

	if len(posted) == 0 {
		return pc, nil
	}
	delta := decimal.Zero
	for _, e := range posted {
		metrics.LedgerEntriesTotal.WithLabelValues(string(e.Category)).Inc()
		delta = delta.Add(e.Amount)
	}
	if _, err := s.ApplyLedgerDelta(ctx, proc.DepartmentID, entryDate, delta); err != nil {
		return pc, fmt.Errorf("ledger posted but budget refresh failed: %w", err)
	}
	return pc, nil
}

// ComputeCostAutomatic derives the cost breakdown from the catalog base cost.
func (s *Service) ComputeCostAutomatic(ctx context.Context, procedureID uuid.UUID) (*ProcedureCost, error) {
	proc, err := s.catalog.GetProcedure(ctx, procedureID)
	if err != nil {
		return nil, err
	}
	personnel, material, consumables := AutomaticSplit(partOrZero(proc.BaseCost).Round(2))
	return s.ComputeCost(ctx, CostInput{
		ProcedureID: procedureID,
		Personnel:   &personnel,
		Material:    &material,
		Consumables: &consumables,
	})
}

func (s *Service) GetProcedureCost(ctx context.Context, procedureID uuid.UUID) (*ProcedureCost, error) {
	return s.costs.GetByProcedureID(ctx, procedureID)
}
