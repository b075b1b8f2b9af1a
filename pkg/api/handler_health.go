package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/warbandhq/warband/pkg/store"
	"github.com/warbandhq/warband/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health.
// Only the orchestrator's own components are checked. The game server is
// deliberately excluded so an unhealthy target does not restart the
// orchestrator under a liveness probe.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	var dbHealth *store.HealthStatus
	if s.storeClient != nil {
		var err error
		dbHealth, err = store.Health(reqCtx, s.storeClient.DB())
		if err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.adminPool != nil {
		// The pool dials lazily, so an empty pool is normal at startup.
		checks["admin_pool"] = HealthCheck{
			Status:  healthStatusHealthy,
			Message: fmt.Sprintf("%d connections open", s.adminPool.Size()),
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:     status,
		Version:    version.GitCommit,
		ActiveRuns: s.runs.ActiveCount(),
		Database:   dbHealth,
		Checks:     checks,
	})
}
