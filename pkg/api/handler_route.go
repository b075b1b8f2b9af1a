package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listRoutesHandler handles GET /api/v1/routes.
// Lists the route files available in the routes directory through the
// cached loader. Unparseable files are skipped by the loader, not surfaced
// as errors here.
func (s *Server) listRoutesHandler(c *echo.Context) error {
	summaries, err := s.loader.List()
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, summaries)
}
