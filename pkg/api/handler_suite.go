package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/report"
)

// startSuiteHandler handles POST /api/v1/suites.
// Validates the suite file and returns immediately; entries execute in the
// background honoring the declared dependency order.
func (s *Server) startSuiteHandler(c *echo.Context) error {
	var req StartSuiteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.SuitePath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "suite_path field is required")
	}

	sr, err := s.suites.Submit(req.SuitePath, req.Parallel, submitterFrom(c))
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &StartSuiteResponse{
		SuiteID: sr.ID,
		Status:  string(sr.Status),
		Message: "Suite run started",
	})
}

// listSuitesHandler handles GET /api/v1/suites.
func (s *Server) listSuitesHandler(c *echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		limit = n
	}

	suites := append(s.suites.ActiveSuiteRuns(), s.suites.CompletedSuiteRuns()...)
	if limit > 0 && len(suites) > limit {
		suites = suites[:limit]
	}
	if suites == nil {
		suites = []*models.SuiteRun{}
	}

	return c.JSON(http.StatusOK, suites)
}

// getSuiteHandler handles GET /api/v1/suites/:id.
func (s *Server) getSuiteHandler(c *echo.Context) error {
	suiteID := c.Param("id")
	if suiteID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "suite id is required")
	}

	sr, err := s.suites.GetSuiteRun(suiteID)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, sr)
}

// suiteReportHandler handles GET /api/v1/suites/:id/report.
func (s *Server) suiteReportHandler(c *echo.Context) error {
	suiteID := c.Param("id")
	if suiteID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "suite id is required")
	}

	sr, err := s.suites.GetSuiteRun(suiteID)
	if err != nil {
		return mapServiceError(err)
	}

	switch c.QueryParam("format") {
	case "", "text":
		return c.String(http.StatusOK, report.SuiteText(sr))
	case "json":
		data, err := report.SuiteJSON(sr)
		if err != nil {
			return mapServiceError(err)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid format: must be text or json")
	}
}

// cancelSuiteHandler handles POST /api/v1/suites/:id/cancel.
func (s *Server) cancelSuiteHandler(c *echo.Context) error {
	suiteID := c.Param("id")
	if suiteID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "suite id is required")
	}

	if err := s.suites.Cancel(suiteID); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &CancelResponse{
		ID:      suiteID,
		Message: "Suite cancellation requested",
	})
}
