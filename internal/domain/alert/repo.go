package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error
	// HasUnresolved reports whether the department has an open alert of type t.
	HasUnresolved(ctx context.Context, departmentID uuid.UUID, t Type) (bool, error)
	ListUnresolved(ctx context.Context) ([]*Alert, error)
	ListUnresolvedBySeverity(ctx context.Context, sev Severity) ([]*Alert, error)
	ListByDepartment(ctx context.Context, departmentID uuid.UUID, unresolvedOnly bool, limit, offset int) ([]*Alert, int, error)
	CountUnresolvedByType(ctx context.Context) ([]TypeCount, error)
}
