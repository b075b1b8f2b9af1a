// Package api exposes the HTTP surface of the orchestrator: run and suite
// lifecycle endpoints, route listings, health, Prometheus metrics, and the
// websocket event stream.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/warbandhq/warband/pkg/admin"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/metrics"
	"github.com/warbandhq/warband/pkg/route"
	"github.com/warbandhq/warband/pkg/runner"
	"github.com/warbandhq/warband/pkg/store"
	"github.com/warbandhq/warband/pkg/suite"
)

// Server wires the HTTP handlers to the coordinators and supporting
// services. Optional collaborators (store, pool, metrics, websocket) may be
// nil; the affected endpoints degrade instead of failing at startup.
type Server struct {
	runs        *runner.Coordinator
	suites      *suite.Coordinator
	loader      *route.Loader
	storeClient *store.Client
	adminPool   *admin.Pool
	connManager *events.ConnectionManager
	collector   *metrics.Collector

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer builds the server and registers all routes.
func NewServer(runs *runner.Coordinator, suites *suite.Coordinator, loader *route.Loader) *Server {
	s := &Server{
		runs:   runs,
		suites: suites,
		loader: loader,
	}
	s.echo = echo.New()
	s.registerRoutes()
	return s
}

// SetStoreClient enables the database check in /health.
func (s *Server) SetStoreClient(c *store.Client) { s.storeClient = c }

// SetAdminPool enables the admin pool check in /health.
func (s *Server) SetAdminPool(p *admin.Pool) { s.adminPool = p }

// SetConnectionManager enables the /ws endpoint.
func (s *Server) SetConnectionManager(m *events.ConnectionManager) { s.connManager = m }

// SetMetricsCollector enables the /metrics endpoint.
func (s *Server) SetMetricsCollector(c *metrics.Collector) { s.collector = c }

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", s.metricsHandler)
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/runs", s.startRunHandler)
	v1.GET("/runs", s.listRunsHandler)
	v1.GET("/runs/:id", s.getRunHandler)
	v1.GET("/runs/:id/report", s.runReportHandler)
	v1.POST("/runs/:id/cancel", s.cancelRunHandler)

	v1.POST("/suites", s.startSuiteHandler)
	v1.GET("/suites", s.listSuitesHandler)
	v1.GET("/suites/:id", s.getSuiteHandler)
	v1.GET("/suites/:id/report", s.suiteReportHandler)
	v1.POST("/suites/:id/cancel", s.cancelSuiteHandler)

	v1.GET("/routes", s.listRoutesHandler)
}

// ServeHTTP makes the server usable directly with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start serves HTTP on addr and blocks until the listener closes.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
