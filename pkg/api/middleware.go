package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// requestLogger returns middleware that logs each request through slog once
// the handler returns. Websocket upgrades are skipped; their duration is the
// connection lifetime, not a request latency.
func requestLogger() echo.MiddlewareFunc {
	logger := slog.Default().With("component", "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if c.Request().URL.Path == "/ws" {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			attrs := []any{
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("Request failed", append(attrs, "error", err)...)
			} else {
				status := 0
				if res, resErr := echo.UnwrapResponse(c.Response()); resErr == nil {
					status = res.Status
				}
				logger.Info("Request handled", append(attrs, "status", status)...)
			}
			return err
		}
	}
}
