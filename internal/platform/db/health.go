package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func statsOf(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		TotalConns:      s.TotalConns(),
		IdleConns:       s.IdleConns(),
		AcquiredConns:   s.AcquiredConns(),
		MaxConns:        s.MaxConns(),
		AcquireCount:    s.AcquireCount(),
		AcquireDuration: s.AcquireDuration().String(),
	}
}

// HealthReport is the /health/db body.
type HealthReport struct {
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Pool       PoolStats `json:"pool"`
	Migrations int       `json:"migrations_applied"`
}

type pinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// check pings the database and counts applied migrations. A missing
// schema_migrations table counts as zero rather than failing the check.
func check(ctx context.Context, p pinger, schema string) (int, HealthReport) {
	if err := p.Ping(ctx); err != nil {
		return http.StatusServiceUnavailable, HealthReport{Status: "unhealthy", Error: err.Error()}
	}
	r := HealthReport{Status: "healthy"}
	if schemaPattern.MatchString(schema) {
		_ = p.QueryRow(ctx, `SELECT COUNT(*) FROM `+schema+`.schema_migrations`).Scan(&r.Migrations)
	}
	return http.StatusOK, r
}

func HealthHandler(pool *pgxpool.Pool, schema string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		code, report := check(ctx, pool, schema)
		report.Pool = statsOf(pool)
		return c.JSON(code, report)
	}
}
