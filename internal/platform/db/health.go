package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthReport is returned by the /health/db endpoint.
type HealthReport struct {
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	PingMS    int64      `json:"ping_ms"`
	Pool      *PoolStats `json:"pool,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Healthy reports whether the ping succeeded.
func (r *HealthReport) Healthy() bool { return r.Status == "healthy" }

// Check pings the store. An unreachable database surfaces to operators the
// same way StoreUnavailable surfaces to API callers.
func Check(ctx context.Context, pool *pgxpool.Pool) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := pool.Ping(ctx)
	report := &HealthReport{
		Status:    "healthy",
		PingMS:    time.Since(start).Milliseconds(),
		Pool:      GetPoolStats(pool),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
	}
	return report
}

func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := Check(c.Request().Context(), pool)
		if !report.Healthy() {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
