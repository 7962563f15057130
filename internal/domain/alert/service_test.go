package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carefin/carefin/internal/domain/finance"
)

func budgetRecord(dept uuid.UUID, planned, actual string) *finance.BudgetRecord {
	r := &finance.BudgetRecord{
		DepartmentID:  dept,
		PlannedBudget: decimal.RequireFromString(planned),
		ActualBudget:  decimal.RequireFromString(actual),
	}
	finance.RecomputeDerived(r)
	return r
}

func TestEvaluateBudget_Exceeded(t *testing.T) {
	svc, repo := newTestService()
	dept := uuid.New()

	if err := svc.EvaluateBudget(context.Background(), budgetRecord(dept, "1000", "1200")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, _ := repo.ListUnresolved(context.Background())
	if len(active) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(active))
	}
	a := active[0]
	if a.Type != TypeBudgetExceeded || a.Severity != SeverityCritical {
		t.Errorf("unexpected alert %s/%s", a.Type, a.Severity)
	}
	if a.Message != "Budget exceeded. Utilization: 120.0%. Variance: 200.00" {
		t.Errorf("unexpected message %q", a.Message)
	}
	if a.DepartmentID == nil || *a.DepartmentID != dept {
		t.Error("expected department to be set")
	}
}

func TestEvaluateBudget_Warning(t *testing.T) {
	svc, repo := newTestService()
	dept := uuid.New()

	if err := svc.EvaluateBudget(context.Background(), budgetRecord(dept, "1000", "950")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, _ := repo.ListUnresolved(context.Background())
	if len(active) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(active))
	}
	if active[0].Severity != SeverityWarning {
		t.Errorf("expected WARNING, got %s", active[0].Severity)
	}
	if !strings.HasPrefix(active[0].Message, "Budget approaching limit. Utilization: 95.0%") {
		t.Errorf("unexpected message %q", active[0].Message)
	}
}

func TestEvaluateBudget_WithinBudgetRaisesNothing(t *testing.T) {
	svc, repo := newTestService()
	for _, actual := range []string{"0", "500", "900"} {
		if err := svc.EvaluateBudget(context.Background(), budgetRecord(uuid.New(), "1000", actual)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if n := len(repo.alerts); n != 0 {
		t.Errorf("expected no alerts, got %d", n)
	}
}

func TestEvaluateBudget_Deduplicates(t *testing.T) {
	svc, repo := newTestService()
	dept := uuid.New()
	ctx := context.Background()

	_ = svc.EvaluateBudget(ctx, budgetRecord(dept, "1000", "950"))
	_ = svc.EvaluateBudget(ctx, budgetRecord(dept, "1000", "1200"))
	_ = svc.EvaluateBudget(ctx, budgetRecord(dept, "1000", "1300"))

	if n := len(repo.alerts); n != 1 {
		t.Fatalf("expected a single open alert, got %d", n)
	}

	// a different department is independent
	_ = svc.EvaluateBudget(ctx, budgetRecord(uuid.New(), "1000", "1200"))
	if n := len(repo.alerts); n != 2 {
		t.Errorf("expected 2 alerts, got %d", n)
	}
}

func TestEvaluateBudget_NewAlertAfterResolve(t *testing.T) {
	svc, repo := newTestService()
	dept := uuid.New()
	ctx := context.Background()

	_ = svc.EvaluateBudget(ctx, budgetRecord(dept, "1000", "1200"))
	first, _ := repo.ListUnresolved(ctx)
	if _, err := svc.Resolve(ctx, first[0].ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	_ = svc.EvaluateBudget(ctx, budgetRecord(dept, "1000", "1250"))
	active, _ := repo.ListUnresolved(ctx)
	if len(active) != 1 || active[0].ID == first[0].ID {
		t.Fatalf("expected a fresh open alert, got %v", active)
	}
}

func TestDetectCostAnomaly(t *testing.T) {
	tests := []struct {
		name   string
		cost   string
		mean   string
		raised bool
	}{
		{"above twice mean", "250", "100", true},
		{"exactly twice mean", "200", "100", false},
		{"below", "150", "100", false},
		{"zero mean", "1000", "0", false},
		{"negative mean", "1000", "-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			res, err := svc.DetectCostAnomaly(context.Background(), uuid.New(),
				decimal.RequireFromString(tt.cost), decimal.RequireFromString(tt.mean))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Raised != tt.raised {
				t.Fatalf("expected raised=%v, got %v", tt.raised, res.Raised)
			}
			if tt.raised {
				if res.Alert.Type != TypeCostAnomaly || res.Alert.Severity != SeverityWarning {
					t.Errorf("unexpected alert %s/%s", res.Alert.Type, res.Alert.Severity)
				}
				if res.Alert.Message != "Abnormally high cost detected: 250.00 (mean: 100.00)" {
					t.Errorf("unexpected message %q", res.Alert.Message)
				}
			}
		})
	}
}

func TestDetectAbnormalVariation(t *testing.T) {
	tests := []struct {
		pct    float64
		raised bool
		sev    Severity
	}{
		{25, true, SeverityWarning},
		{20, false, ""},
		{-10, false, ""},
		{-30, false, ""},
		{-45.5, true, SeverityInfo},
	}
	for _, tt := range tests {
		svc, _ := newTestService()
		res, err := svc.DetectAbnormalVariation(context.Background(), uuid.New(), tt.pct)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Raised != tt.raised {
			t.Errorf("pct %v: expected raised=%v", tt.pct, tt.raised)
			continue
		}
		if tt.raised && res.Alert.Severity != tt.sev {
			t.Errorf("pct %v: expected %s, got %s", tt.pct, tt.sev, res.Alert.Severity)
		}
	}
}

func TestResolve(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Type: "alarming_trend", Message: "rising"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resolved, err := svc.Resolve(ctx, a.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolved.Resolved || resolved.ResolvedAt == nil {
		t.Fatal("expected alert to be resolved with a timestamp")
	}

	again, err := svc.Resolve(ctx, a.ID)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !again.Resolved || !again.ResolvedAt.After(*resolved.ResolvedAt) {
		t.Errorf("expected resolution time to be re-stamped, got %v after %v", again.ResolvedAt, resolved.ResolvedAt)
	}

	if _, err := svc.Resolve(ctx, uuid.New()); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateInput{Type: "COST_ANOMALY", Message: " check supplier invoice "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Severity != SeverityInfo {
		t.Errorf("expected default INFO, got %s", a.Severity)
	}
	if a.Message != "check supplier invoice" {
		t.Errorf("expected trimmed message, got %q", a.Message)
	}
	if a.Resolved {
		t.Error("new alert must be unresolved")
	}

	bad := []CreateInput{
		{Type: "NOPE", Message: "x"},
		{Type: "COST_ANOMALY", Message: "  "},
		{Type: "COST_ANOMALY", Message: "x", Severity: "urgent"},
	}
	for _, in := range bad {
		if _, err := svc.Create(ctx, in); !errors.Is(err, ErrInvalidAlert) {
			t.Errorf("%+v: expected ErrInvalidAlert, got %v", in, err)
		}
	}
}

func TestQueries(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	dept := uuid.New()

	crit, _ := svc.Create(ctx, CreateInput{Type: "BUDGET_EXCEEDED", DepartmentID: &dept, Message: "a", Severity: "CRITICAL"})
	_, _ = svc.Create(ctx, CreateInput{Type: "COST_ANOMALY", DepartmentID: &dept, Message: "b", Severity: "WARNING"})
	_, _ = svc.Create(ctx, CreateInput{Type: "COST_ANOMALY", Message: "c"})
	old, _ := svc.Create(ctx, CreateInput{Type: "ALARMING_TREND", DepartmentID: &dept, Message: "d"})
	_, _ = svc.Resolve(ctx, old.ID)

	active, _ := svc.ListActive(ctx)
	if len(active) != 3 {
		t.Errorf("expected 3 active, got %d", len(active))
	}
	if active[0].Message != "c" {
		t.Errorf("expected newest first, got %q", active[0].Message)
	}

	critical, _ := svc.ListCritical(ctx)
	if len(critical) != 1 || critical[0].ID != crit.ID {
		t.Errorf("unexpected critical list %v", critical)
	}

	all, total, _ := svc.ListForDepartment(ctx, dept, false, 10, 0)
	if total != 3 || len(all) != 3 {
		t.Errorf("expected 3 department alerts, got %d/%d", len(all), total)
	}
	open, total, _ := svc.ListForDepartment(ctx, dept, true, 10, 0)
	if total != 2 || len(open) != 2 {
		t.Errorf("expected 2 open department alerts, got %d/%d", len(open), total)
	}

	summary, err := svc.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary) != 5 {
		t.Fatalf("expected every type listed, got %d", len(summary))
	}
	want := map[Type]int{TypeBudgetExceeded: 1, TypeCostAnomaly: 2}
	for _, tc := range summary {
		if tc.Count != want[tc.Type] {
			t.Errorf("%s: expected %d, got %d", tc.Type, want[tc.Type], tc.Count)
		}
	}
}
