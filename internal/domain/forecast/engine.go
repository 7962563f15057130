package forecast

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/domain/finance"
)

var (
	ErrInvalidMethod = errors.New("invalid forecast method")
	ErrInvalidParams = errors.New("invalid forecast parameters")
)

type Method string

const (
	MethodMovingAverage         Method = "MOVING_AVERAGE"
	MethodWeightedMovingAverage Method = "WEIGHTED_MOVING_AVERAGE"
	MethodLinearTrend           Method = "LINEAR_TREND"
)

// ParseMethod maps an empty string to MOVING_AVERAGE.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case "":
		return MethodMovingAverage, nil
	case MethodMovingAverage, MethodWeightedMovingAverage, MethodLinearTrend:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}

// MinRegressionMonths is the least history a linear trend is fitted on.
const MinRegressionMonths = 3

// MonthlyTotal is the summed ledger amount of one calendar month.
type MonthlyTotal struct {
	Month  time.Time       `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// Point is one projected month. Points are never persisted.
type Point struct {
	Period time.Time       `json:"period"`
	Amount decimal.Decimal `json:"amount"`
	Label  string          `json:"method_label"`
}

// MonthlyTotals buckets entries by calendar month, oldest first. Months with
// no entries are absent.
func MonthlyTotals(entries []*finance.LedgerEntry) []MonthlyTotal {
	byMonth := make(map[time.Time]decimal.Decimal)
	for _, e := range entries {
		m := finance.PeriodOf(e.EntryDate)
		byMonth[m] = byMonth[m].Add(e.Amount)
	}
	out := make([]MonthlyTotal, 0, len(byMonth))
	for m, amt := range byMonth {
		out = append(out, MonthlyTotal{Month: m, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

func project(totals []MonthlyTotal, horizon int, label string, value func(i int) decimal.Decimal) []Point {
	last := totals[len(totals)-1].Month
	points := make([]Point, 0, horizon)
	for i := 1; i <= horizon; i++ {
		points = append(points, Point{
			Period: last.AddDate(0, i, 0),
			Amount: value(i).Round(2),
			Label:  label,
		})
	}
	return points
}

// MovingAverage projects the mean of the last window months over horizon
// months. It returns nil when fewer than window months are present.
func MovingAverage(totals []MonthlyTotal, horizon, window int) []Point {
	if window < 1 || len(totals) < window {
		return nil
	}
	sum := decimal.Zero
	for _, t := range totals[len(totals)-window:] {
		sum = sum.Add(t.Amount)
	}
	avg := sum.Div(decimal.NewFromInt(int64(window)))
	label := fmt.Sprintf("Moving average (%d months)", window)
	return project(totals, horizon, label, func(int) decimal.Decimal { return avg })
}

// WeightedMovingAverage weights the oldest month of the window 1 and the most
// recent month window.
func WeightedMovingAverage(totals []MonthlyTotal, horizon, window int) []Point {
	if window < 1 || len(totals) < window {
		return nil
	}
	weighted, weights := decimal.Zero, decimal.Zero
	for i, t := range totals[len(totals)-window:] {
		w := decimal.NewFromInt(int64(i + 1))
		weighted = weighted.Add(t.Amount.Mul(w))
		weights = weights.Add(w)
	}
	avg := weighted.Div(weights)
	label := fmt.Sprintf("Weighted moving average (%d months)", window)
	return project(totals, horizon, label, func(int) decimal.Decimal { return avg })
}

// LinearTrend fits y = a*x + b by least squares over x = 0..n-1 and
// extrapolates it, clamping at zero.
func LinearTrend(totals []MonthlyTotal, horizon int) []Point {
	n := len(totals)
	if n < MinRegressionMonths {
		return nil
	}
	var sumX, sumY, sumXY, sumX2 decimal.Decimal
	for i, t := range totals {
		x := decimal.NewFromInt(int64(i))
		sumX = sumX.Add(x)
		sumY = sumY.Add(t.Amount)
		sumXY = sumXY.Add(x.Mul(t.Amount))
		sumX2 = sumX2.Add(x.Mul(x))
	}
	nd := decimal.NewFromInt(int64(n))
	slope := nd.Mul(sumXY).Sub(sumX.Mul(sumY)).Div(nd.Mul(sumX2).Sub(sumX.Mul(sumX)))
	intercept := sumY.Sub(slope.Mul(sumX)).Div(nd)

	return project(totals, horizon, "Linear regression (trend)", func(i int) decimal.Decimal {
		x := decimal.NewFromInt(int64(n + i - 1))
		return decimal.Max(decimal.Zero, slope.Mul(x).Add(intercept))
	})
}

type Direction string

const (
	DirectionIncrease Direction = "INCREASE"
	DirectionDecrease Direction = "DECREASE"
	DirectionStable   Direction = "STABLE"
)

// trendBand is the +/- percentage inside which spending counts as stable.
var trendBand = decimal.NewFromInt(5)

type Trend struct {
	Direction    Direction `json:"direction"`
	VariationPct float64   `json:"variation_pct"`
	Description  string    `json:"description"`
}

// ClassifyTrend compares the last two months present.
func ClassifyTrend(totals []MonthlyTotal) Trend {
	if len(totals) < 2 {
		return Trend{Direction: DirectionStable, Description: "insufficient data"}
	}
	last := totals[len(totals)-1].Amount
	prev := totals[len(totals)-2].Amount
	if !prev.IsPositive() {
		return Trend{Direction: DirectionStable, Description: "no baseline spending in previous month"}
	}

	pct := last.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
	dir := DirectionStable
	switch {
	case pct.GreaterThan(trendBand):
		dir = DirectionIncrease
	case pct.LessThan(trendBand.Neg()):
		dir = DirectionDecrease
	}
	f := pct.InexactFloat64()
	return Trend{Direction: dir, VariationPct: f, Description: fmt.Sprintf("Variation of %.1f%%", f)}
}

// SimulationParams adjusts a baseline forecast. Nil fields mean no change.
type SimulationParams struct {
	GrowthFactor   *decimal.Decimal `json:"growth_factor"`
	PersonnelDelta *decimal.Decimal `json:"personnel_delta"`
	MaterialDelta  *decimal.Decimal `json:"material_delta"`
}

// Simulate applies amount*growth + personnelDelta + materialDelta to every
// baseline point, clamped at zero.
func Simulate(baseline []Point, p SimulationParams) []Point {
	growth := decimal.NewFromInt(1)
	if p.GrowthFactor != nil {
		growth = *p.GrowthFactor
	}
	shift := decimal.Zero
	if p.PersonnelDelta != nil {
		shift = shift.Add(*p.PersonnelDelta)
	}
	if p.MaterialDelta != nil {
		shift = shift.Add(*p.MaterialDelta)
	}

	out := make([]Point, 0, len(baseline))
	for _, pt := range baseline {
		amt := decimal.Max(decimal.Zero, pt.Amount.Mul(growth).Add(shift))
		out = append(out, Point{
			Period: pt.Period,
			Amount: amt.Round(2),
			Label:  "Simulation: " + pt.Label,
		})
	}
	return out
}

// Confidence is a presentation heuristic keyed only on the number of points.
// It is not a statistical interval.
func Confidence(points int) float64 {
	switch {
	case points >= 3:
		return 0.85
	case points == 2:
		return 0.70
	}
	return 0.50
}
