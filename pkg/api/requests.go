package api

// StartRunRequest is the HTTP request body for POST /api/v1/runs.
type StartRunRequest struct {
	RoutePath string `json:"route_path"`
}

// StartSuiteRequest is the HTTP request body for POST /api/v1/suites.
type StartSuiteRequest struct {
	SuitePath string `json:"suite_path"`
	Parallel  bool   `json:"parallel,omitempty"`
}
