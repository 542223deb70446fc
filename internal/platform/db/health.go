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

func statsFrom(stat *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthResponse is the body of GET /health/db.
type HealthResponse struct {
	OK    bool       `json:"ok"`
	Error string     `json:"error,omitempty"`
	Pool  *PoolStats `json:"pool,omitempty"`
}

// Pinger is the part of the pool the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckHealth pings the database within timeout.
func CheckHealth(ctx context.Context, p Pinger, timeout time.Duration) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return HealthResponse{OK: false, Error: err.Error()}
	}
	return HealthResponse{OK: true}
}

// HealthHandler serves the database health endpoint: 200 with pool stats when
// the database answers, 503 otherwise.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := CheckHealth(c.Request().Context(), pool, 5*time.Second)
		resp.Pool = statsFrom(pool.Stat())
		if !resp.OK {
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
