package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// metricsHandler handles GET /metrics in Prometheus exposition format.
func (s *Server) metricsHandler(c *echo.Context) error {
	if s.collector == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "metrics not available")
	}
	s.collector.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
