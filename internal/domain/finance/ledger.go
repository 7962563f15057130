package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryMonths bounds ledger queries that omit a start date.
const DefaultHistoryMonths = 6

// ledgerEntriesFor builds the entries that bring the ledger in line with pc.
// On first costing that is one entry per non-zero category; on re-costing it
// is one correction per category whose amount changed.
func ledgerEntriesFor(pc, prev *ProcedureCost, departmentID uuid.UUID, date time.Time) []*LedgerEntry {
	procID := pc.ProcedureID
	var out []*LedgerEntry
	for _, c := range Categories {
		amount := pc.Part(c)
		desc := fmt.Sprintf("%s cost for procedure #%s", c.label(), procID)
		if prev != nil {
			amount = amount.Sub(prev.Part(c))
			desc = fmt.Sprintf("%s cost correction for procedure #%s", c.label(), procID)
		}
		if amount.IsZero() {
			continue
		}
		out = append(out, &LedgerEntry{
			ID:           uuid.New(),
			DepartmentID: departmentID,
			EntryDate:    date,
			Amount:       amount,
			Category:     c,
			ProcedureID:  &procID,
			Description:  desc,
		})
	}
	return out
}

// LedgerRange resolves optional from/to bounds (inclusive days) into the
// half-open range used by the repository. Missing bounds default to the last
// DefaultHistoryMonths months up to today.
func (s *Service) LedgerRange(from, to *time.Time) (time.Time, time.Time, error) {
	today := DayOf(s.now())
	end := today
	if to != nil {
		end = DayOf(*to)
	}
	start := end.AddDate(0, -DefaultHistoryMonths, 0)
	if from != nil {
		start = DayOf(*from)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}
	return start, end.AddDate(0, 0, 1), nil
}

// LedgerHistory lists a department's entries newest first.
func (s *Service) LedgerHistory(ctx context.Context, departmentID uuid.UUID, from, to *time.Time, limit, offset int) ([]*LedgerEntry, int, error) {
	start, end, err := s.LedgerRange(from, to)
	if err != nil {
		return nil, 0, err
	}
	return s.ledger.ListByDepartment(ctx, departmentID, start, end, limit, offset)
}

// CategoryTotals sums a department's ledger per category. Categories without
// entries are reported as zero.
func (s *Service) CategoryTotals(ctx context.Context, departmentID uuid.UUID, from, to *time.Time) ([]CategoryTotal, error) {
	start, end, err := s.LedgerRange(from, to)
	if err != nil {
		return nil, err
	}
	sums, err := s.ledger.SumByCategory(ctx, departmentID, start, end)
	if err != nil {
		return nil, err
	}
	byCat := make(map[CostCategory]CategoryTotal, len(sums))
	for _, ct := range sums {
		byCat[ct.Category] = ct
	}
	out := make([]CategoryTotal, 0, len(Categories))
	for _, c := range Categories {
		ct, ok := byCat[c]
		if !ok {
			ct = CategoryTotal{Category: c}
		}
		out = append(out, ct)
	}
	return out, nil
}

// EntriesBetween returns a department's entries in the half-open range
// [from, to), oldest first.
func (s *Service) EntriesBetween(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]*LedgerEntry, error) {
	return s.ledger.ListRange(ctx, departmentID, from, to)
}
