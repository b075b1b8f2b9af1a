package api

import (
	echo "github.com/labstack/echo/v5"
)

// Identity headers checked when attributing a submission, in priority order.
// X-Warband-Submitter is set by CI jobs that call the API directly; the
// forwarded headers are stamped by the auth proxy warband sits behind in
// shared deployments.
var submitterHeaders = []string{
	"X-Warband-Submitter",
	"X-Forwarded-User",
	"X-Forwarded-Email",
}

// submitterFrom resolves who triggered a request so runs and suites carry an
// author. Unattributed requests fall back to "anonymous".
func submitterFrom(c *echo.Context) string {
	for _, h := range submitterHeaders {
		if v := c.Request().Header.Get(h); v != "" {
			return v
		}
	}
	return "anonymous"
}
