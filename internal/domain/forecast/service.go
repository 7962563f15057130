package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carefin/carefin/internal/domain/finance"
	"github.com/carefin/carefin/internal/platform/metrics"
)

const (
	DefaultHorizon = 3
	DefaultWindow  = 3
	// MaxHorizon bounds how far ahead a forecast may project.
	MaxHorizon = 36

	regressionHistoryMonths = 12
	trendHistoryMonths      = 3
)

// LedgerReader reads a department's ledger entries in [from, to).
type LedgerReader interface {
	EntriesBetween(ctx context.Context, departmentID uuid.UUID, from, to time.Time) ([]*finance.LedgerEntry, error)
}

type BudgetReader interface {
	GetBudget(ctx context.Context, departmentID uuid.UUID, period time.Time) (*finance.BudgetRecord, error)
}

// Forecast is the response envelope for every projection.
type Forecast struct {
	DepartmentID uuid.UUID `json:"department_id"`
	Method       string    `json:"method"`
	Points       []Point   `json:"points"`
	Confidence   float64   `json:"confidence_heuristic"`
}

type Comparison struct {
	DepartmentID uuid.UUID             `json:"department_id"`
	Forecast     *Forecast             `json:"forecast"`
	Trend        Trend                 `json:"trend"`
	Budget       *finance.BudgetRecord `json:"current_budget,omitempty"`
}

// Service computes forecasts on demand. It never writes the ledger, and
// reads may observe a ledger that is being appended to concurrently.
type Service struct {
	ledger  LedgerReader
	budgets BudgetReader
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(ledger LedgerReader, budgets BudgetReader, logger zerolog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		budgets: budgets,
		logger:  logger.With().Str("component", "forecast").Logger(),
		now:     time.Now,
	}
}

func envelope(departmentID uuid.UUID, points []Point) *Forecast {
	if points == nil {
		points = []Point{}
	}
	label := "N/A"
	if len(points) > 0 {
		label = points[0].Label
	}
	return &Forecast{
		DepartmentID: departmentID,
		Method:       label,
		Points:       points,
		Confidence:   Confidence(len(points)),
	}
}

// history returns monthly totals over [today - months, today].
func (s *Service) history(ctx context.Context, departmentID uuid.UUID, months int) ([]MonthlyTotal, error) {
	today := finance.DayOf(s.now())
	entries, err := s.ledger.EntriesBetween(ctx, departmentID, today.AddDate(0, -months, 0), today.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return MonthlyTotals(entries), nil
}

func validateParams(horizon, window int) error {
	if horizon < 1 || horizon > MaxHorizon {
		return fmt.Errorf("%w: horizon must be between 1 and %d", ErrInvalidParams, MaxHorizon)
	}
	if window < 1 {
		return fmt.Errorf("%w: window must be at least 1", ErrInvalidParams)
	}
	return nil
}

func (s *Service) Forecast(ctx context.Context, departmentID uuid.UUID, method string, horizon, window int) (*Forecast, error) {
	m, err := ParseMethod(method)
	if err != nil {
		return nil, err
	}
	if err := validateParams(horizon, window); err != nil {
		return nil, err
	}

	var points []Point
	switch m {
	case MethodLinearTrend:
		totals, err := s.history(ctx, departmentID, regressionHistoryMonths)
		if err != nil {
			return nil, err
		}
		points = LinearTrend(totals, horizon)
	default:
		totals, err := s.history(ctx, departmentID, window+horizon)
		if err != nil {
			return nil, err
		}
		if m == MethodWeightedMovingAverage {
			points = WeightedMovingAverage(totals, horizon, window)
		} else {
			points = MovingAverage(totals, horizon, window)
		}
	}

	metrics.ForecastsComputedTotal.WithLabelValues(string(m)).Inc()
	s.logger.Debug().
		Str("department_id", departmentID.String()).
		Str("method", string(m)).
		Int("points", len(points)).
		Msg("forecast computed")
	return envelope(departmentID, points), nil
}

func (s *Service) CurrentTrend(ctx context.Context, departmentID uuid.UUID) (Trend, error) {
	totals, err := s.history(ctx, departmentID, trendHistoryMonths)
	if err != nil {
		return Trend{}, err
	}
	return ClassifyTrend(totals), nil
}

// Simulate applies p to the default moving-average forecast.
func (s *Service) Simulate(ctx context.Context, departmentID uuid.UUID, p SimulationParams) (*Forecast, error) {
	if p.GrowthFactor != nil && p.GrowthFactor.IsNegative() {
		return nil, fmt.Errorf("%w: growth_factor must not be negative", ErrInvalidParams)
	}
	totals, err := s.history(ctx, departmentID, DefaultWindow+DefaultHorizon)
	if err != nil {
		return nil, err
	}
	points := Simulate(MovingAverage(totals, DefaultHorizon, DefaultWindow), p)
	metrics.ForecastsComputedTotal.WithLabelValues("SIMULATION").Inc()
	return envelope(departmentID, points), nil
}

// Compare puts the default forecast next to the current trend and the
// current month's budget record, when one exists.
func (s *Service) Compare(ctx context.Context, departmentID uuid.UUID) (*Comparison, error) {
	fc, err := s.Forecast(ctx, departmentID, string(MethodMovingAverage), DefaultHorizon, DefaultWindow)
	if err != nil {
		return nil, err
	}
	trend, err := s.CurrentTrend(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	out := &Comparison{DepartmentID: departmentID, Forecast: fc, Trend: trend}

	rec, err := s.budgets.GetBudget(ctx, departmentID, s.now())
	switch {
	case err == nil:
		out.Budget = rec
	case errors.Is(err, finance.ErrBudgetNotFound):
	default:
		return nil, err
	}
	return out, nil
}
