package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/warbandhq/warband/pkg/runner"
)

// mapServiceError maps coordinator errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *runner.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, runner.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, runner.ErrNotCancellable) {
		return echo.NewHTTPError(http.StatusConflict, "run is not in a cancellable state")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
