package alert

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*Alert
	order  []uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{alerts: make(map[uuid.UUID]*Alert)}
}

func (m *mockRepo) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[a.ID] = &cp
	m.order = append(m.order, a.ID)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrAlertNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) MarkResolved(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.Resolved = true
	a.ResolvedAt = &at
	return nil
}

func (m *mockRepo) HasUnresolved(_ context.Context, departmentID uuid.UUID, t Type) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if !a.Resolved && a.Type == t && a.DepartmentID != nil && *a.DepartmentID == departmentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) filter(keep func(*Alert) bool) []*Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Alert
	for _, id := range m.order {
		if a := m.alerts[id]; keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *mockRepo) ListUnresolved(_ context.Context) ([]*Alert, error) {
	return m.filter(func(a *Alert) bool { return !a.Resolved }), nil
}

func (m *mockRepo) ListUnresolvedBySeverity(_ context.Context, sev Severity) ([]*Alert, error) {
	return m.filter(func(a *Alert) bool { return !a.Resolved && a.Severity == sev }), nil
}

func (m *mockRepo) ListByDepartment(_ context.Context, departmentID uuid.UUID, unresolvedOnly bool, limit, offset int) ([]*Alert, int, error) {
	all := m.filter(func(a *Alert) bool {
		if unresolvedOnly && a.Resolved {
			return false
		}
		return a.DepartmentID != nil && *a.DepartmentID == departmentID
	})
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) CountUnresolvedByType(_ context.Context) ([]TypeCount, error) {
	counts := map[Type]int{}
	for _, a := range m.filter(func(a *Alert) bool { return !a.Resolved }) {
		counts[a.Type]++
	}
	var out []TypeCount
	for t, n := range counts {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	return out, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	base := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, repo
}
