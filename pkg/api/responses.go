package api

import "github.com/warbandhq/warband/pkg/store"

// StartRunResponse is returned by POST /api/v1/runs.
type StartRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StartSuiteResponse is returned by POST /api/v1/suites.
type StartSuiteResponse struct {
	SuiteID string `json:"suite_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CancelResponse is returned by the cancel endpoints.
type CancelResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// HealthCheck is one named component check inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Version    string                 `json:"version"`
	ActiveRuns int                    `json:"active_runs"`
	Database   *store.HealthStatus    `json:"database,omitempty"`
	Checks     map[string]HealthCheck `json:"checks"`
}
