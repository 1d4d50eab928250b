package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Gaur97shiv/playknow/internal/pkg/db"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type poolStats interface {
	Stats() db.Stats
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db    Pinger
	redis *redis.Client
}

// NewHealthHandler creates a HealthHandler. redis may be nil.
func NewHealthHandler(db Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

// Liveness returns 200 while the process runs.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness returns 503 when the database is down. Redis is reported but
// never fails the probe since the limiter fails open.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			checks["database"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
		if ps, ok := h.db.(poolStats); ok {
			checks["pool"] = ps.Stats()
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "down"
		} else {
			checks["redis"] = "ok"
		}
	} else {
		checks["redis"] = "disabled"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
