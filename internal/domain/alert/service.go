package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/domain/finance"
	"github.com/carefin/carefin/internal/platform/metrics"
)

// Thresholds for ad-hoc signals.
var (
	anomalyFactor = decimal.NewFromInt(2)
)

const (
	variationIncreasePct = 20.0
	variationDropPct     = -30.0
)

type Service struct {
	alerts Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(alerts Repository, logger zerolog.Logger) *Service {
	return &Service{
		alerts: alerts,
		logger: logger.With().Str("component", "alert").Logger(),
		now:    time.Now,
	}
}

func (s *Service) raise(ctx context.Context, t Type, deptID *uuid.UUID, sev Severity, msg string) (*Alert, error) {
	a := &Alert{
		ID:           uuid.New(),
		Type:         t,
		DepartmentID: deptID,
		Message:      msg,
		Severity:     sev,
		CreatedAt:    s.now(),
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		return nil, err
	}
	metrics.AlertsRaisedTotal.WithLabelValues(string(t), string(sev)).Inc()
	evt := s.logger.Info().Str("alert_type", string(t)).Str("severity", string(sev))
	if deptID != nil {
		evt = evt.Str("department_id", deptID.String())
	}
	evt.Msg("alert raised")
	return a, nil
}

// EvaluateBudget raises a BUDGET_EXCEEDED alert for a record in WARNING or
// EXCEEDED state unless the department already has one open. The check
// ignores severity: an open WARNING suppresses a later CRITICAL.
func (s *Service) EvaluateBudget(ctx context.Context, rec *finance.BudgetRecord) error {
	_, err := s.evaluateBudget(ctx, rec)
	return err
}

func (s *Service) evaluateBudget(ctx context.Context, rec *finance.BudgetRecord) (*Alert, error) {
	var sev Severity
	var msg string
	switch rec.Status {
	case finance.StatusExceeded:
		sev = SeverityCritical
		msg = fmt.Sprintf("Budget exceeded. Utilization: %s%%. Variance: %s",
			rec.UtilizationPct.StringFixed(1), rec.Variance.StringFixed(2))
	case finance.StatusWarning:
		sev = SeverityWarning
		msg = fmt.Sprintf("Budget approaching limit. Utilization: %s%%", rec.UtilizationPct.StringFixed(1))
	default:
		return nil, nil
	}

	open, err := s.alerts.HasUnresolved(ctx, rec.DepartmentID, TypeBudgetExceeded)
	if err != nil {
		return nil, err
	}
	if open {
		metrics.AlertsDeduplicatedTotal.WithLabelValues(string(TypeBudgetExceeded)).Inc()
		return nil, nil
	}
	deptID := rec.DepartmentID
	return s.raise(ctx, TypeBudgetExceeded, &deptID, sev, msg)
}

// DetectCostAnomaly raises a COST_ANOMALY warning when cost is more than
// twice the rolling mean. A non-positive mean never triggers.
func (s *Service) DetectCostAnomaly(ctx context.Context, departmentID uuid.UUID, cost, rollingMean decimal.Decimal) (*SignalResult, error) {
	if !rollingMean.IsPositive() || !cost.GreaterThan(rollingMean.Mul(anomalyFactor)) {
		return &SignalResult{}, nil
	}
	msg := fmt.Sprintf("Abnormally high cost detected: %s (mean: %s)", cost.StringFixed(2), rollingMean.StringFixed(2))
	a, err := s.raise(ctx, TypeCostAnomaly, &departmentID, SeverityWarning, msg)
	if err != nil {
		return nil, err
	}
	return &SignalResult{Raised: true, Alert: a}, nil
}

// DetectAbnormalVariation raises on month-over-month swings above +20% or
// below -30%.
func (s *Service) DetectAbnormalVariation(ctx context.Context, departmentID uuid.UUID, variationPct float64) (*SignalResult, error) {
	var sev Severity
	var msg string
	switch {
	case variationPct > variationIncreasePct:
		sev = SeverityWarning
		msg = fmt.Sprintf("Abnormal spending increase: +%.1f%% vs previous month", variationPct)
	case variationPct < variationDropPct:
		sev = SeverityInfo
		msg = fmt.Sprintf("Significant spending drop: %.1f%% vs previous month", variationPct)
	default:
		return &SignalResult{}, nil
	}
	a, err := s.raise(ctx, TypeAbnormalVariation, &departmentID, sev, msg)
	if err != nil {
		return nil, err
	}
	return &SignalResult{Raised: true, Alert: a}, nil
}

// Resolve closes an alert and stamps resolvedAt with the current time, also
// when the alert was already resolved.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID) (*Alert, error) {
	if err := s.alerts.MarkResolved(ctx, id, s.now()); err != nil {
		return nil, err
	}
	return s.alerts.GetByID(ctx, id)
}

// Create raises an alert with caller-supplied fields. Severity defaults to INFO.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Alert, error) {
	t, err := ParseType(in.Type)
	if err != nil {
		return nil, err
	}
	sev, err := ParseSeverity(in.Severity)
	if err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidAlert)
	}
	return s.raise(ctx, t, in.DepartmentID, sev, msg)
}

func (s *Service) ListActive(ctx context.Context) ([]*Alert, error) {
	return s.alerts.ListUnresolved(ctx)
}

func (s *Service) ListCritical(ctx context.Context) ([]*Alert, error) {
	return s.alerts.ListUnresolvedBySeverity(ctx, SeverityCritical)
}

func (s *Service) ListForDepartment(ctx context.Context, departmentID uuid.UUID, unresolvedOnly bool, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.ListByDepartment(ctx, departmentID, unresolvedOnly, limit, offset)
}

// Summary counts open alerts per type, listing every type.
func (s *Service) Summary(ctx context.Context) ([]TypeCount, error) {
	counts, err := s.alerts.CountUnresolvedByType(ctx)
	if err != nil {
		return nil, err
	}
	byType := make(map[Type]int, len(counts))
	for _, tc := range counts {
		byType[tc.Type] = tc.Count
	}
	all := []Type{TypeBudgetExceeded, TypeCostAnomaly, TypeAlarmingTrend, TypeForecastExceedsBudget, TypeAbnormalVariation}
	out := make([]TypeCount, 0, len(all))
	for _, t := range all {
		out = append(out, TypeCount{Type: t, Count: byType[t]})
	}
	return out, nil
}
