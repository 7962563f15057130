package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carefin/carefin/internal/platform/db"
)

type alertRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &alertRepoPG{pool: pool} }

func (r *alertRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const alertCols = `id, alert_type, department_id, message, severity, created_at, resolved, resolved_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Type, &a.DepartmentID, &a.Message, &a.Severity,
		&a.CreatedAt, &a.Resolved, &a.ResolvedAt)
	return &a, err
}

func (r *alertRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *alertRepoPG) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alert (id, alert_type, department_id, message, severity, created_at, resolved, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Type, a.DepartmentID, a.Message, a.Severity, a.CreatedAt, a.Resolved, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (r *alertRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	a, err := scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *alertRepoPG) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE alert SET resolved = TRUE, resolved_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *alertRepoPG) HasUnresolved(ctx context.Context, departmentID uuid.UUID, t Type) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM alert WHERE department_id = $1 AND alert_type = $2 AND NOT resolved)`,
		departmentID, t).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unresolved alert: %w", err)
	}
	return exists, nil
}

func (r *alertRepoPG) ListUnresolved(ctx context.Context) ([]*Alert, error) {
	return r.list(ctx, `SELECT `+alertCols+` FROM alert WHERE NOT resolved ORDER BY created_at DESC`)
}

func (r *alertRepoPG) ListUnresolvedBySeverity(ctx context.Context, sev Severity) ([]*Alert, error) {
	return r.list(ctx, `SELECT `+alertCols+` FROM alert WHERE NOT resolved AND severity = $1 ORDER BY created_at DESC`, sev)
}

func (r *alertRepoPG) ListByDepartment(ctx context.Context, departmentID uuid.UUID, unresolvedOnly bool, limit, offset int) ([]*Alert, int, error) {
	where := `department_id = $1`
	if unresolvedOnly {
		where += ` AND NOT resolved`
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM alert WHERE `+where, departmentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}
	items, err := r.list(ctx, `SELECT `+alertCols+` FROM alert WHERE `+where+
		` ORDER BY created_at DESC LIMIT $2 OFFSET $3`, departmentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *alertRepoPG) CountUnresolvedByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT alert_type, COUNT(*) FROM alert WHERE NOT resolved GROUP BY alert_type ORDER BY alert_type`)
	if err != nil {
		return nil, fmt.Errorf("count alerts by type: %w", err)
	}
	defer rows.Close()
	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
