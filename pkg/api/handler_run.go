package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/report"
)

// startRunHandler handles POST /api/v1/runs.
// Validates the route, registers the run, and returns immediately; the run
// executes in the background and is polled through GET /api/v1/runs/:id.
func (s *Server) startRunHandler(c *echo.Context) error {
	var req StartRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RoutePath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "route_path field is required")
	}

	run, err := s.runs.Submit(req.RoutePath, submitterFrom(c))
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &StartRunResponse{
		RunID:   run.ID,
		Status:  string(run.Status),
		Message: "Test run started",
	})
}

// listRunsHandler handles GET /api/v1/runs.
// Returns active runs first, then completed runs newest first. Supports
// ?status= (exact match) and ?limit= filters.
func (s *Server) listRunsHandler(c *echo.Context) error {
	var statusFilter models.TestRunStatus
	if v := c.QueryParam("status"); v != "" {
		candidate := models.TestRunStatus(v)
		valid := false
		for _, st := range models.ValidRunStatuses {
			if st == candidate {
				valid = true
				break
			}
		}
		if !valid {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+v)
		}
		statusFilter = candidate
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		limit = n
	}

	runs := append(s.runs.ActiveRuns(), s.runs.CompletedRuns()...)
	filtered := make([]*models.TestRun, 0, len(runs))
	for _, r := range runs {
		if statusFilter != "" && r.Status != statusFilter {
			continue
		}
		filtered = append(filtered, r)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}

	return c.JSON(http.StatusOK, filtered)
}

// getRunHandler handles GET /api/v1/runs/:id.
func (s *Server) getRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, err := s.runs.GetRun(runID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, run)
}

// runReportHandler handles GET /api/v1/runs/:id/report.
// ?format=text (default) renders the plain-text report, ?format=json the
// structured one.
func (s *Server) runReportHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	run, err := s.runs.GetRun(runID)
	if err != nil {
		return mapServiceError(err)
	}

	switch c.QueryParam("format") {
	case "", "text":
		return c.String(http.StatusOK, report.Text(run))
	case "json":
		data, err := report.JSON(run)
		if err != nil {
			return mapServiceError(err)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid format: must be text or json")
	}
}

// cancelRunHandler handles POST /api/v1/runs/:id/cancel.
func (s *Server) cancelRunHandler(c *echo.Context) error {
	runID := c.Param("id")
	if runID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	if err := s.runs.Cancel(runID); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &CancelResponse{
		ID:      runID,
		Message: "Run cancellation requested",
	})
}
