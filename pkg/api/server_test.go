package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warbandhq/warband/pkg/bot"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/metrics"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/route"
	"github.com/warbandhq/warband/pkg/runner"
	"github.com/warbandhq/warband/pkg/suite"
)

const quickRouteJSON = `{
	"name": "quick-pass",
	"harness": {"botCount": 1, "accountPrefix": "apibot", "testTimeoutSeconds": 30},
	"tasks": [{"type": "LogMessage", "message": "hello from the fleet"}]
}`

// newTestServer wires a full server against simulated bots and a temp
// routes directory holding one fast passing route.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir := t.TempDir()
	routeFile := filepath.Join(dir, "quick-pass.json")
	require.NoError(t, os.WriteFile(routeFile, []byte(quickRouteJSON), 0o644))

	logger := slog.Default()
	loader := route.NewLoader(route.LoaderConfig{Dir: dir}, logger)
	factory := bot.NewSimFactory(bot.SimConfig{}, nil, logger)
	publisher := events.NewPublisher(16)

	cfg := runner.Config{
		TickInterval: 5 * time.Millisecond,
		StartStagger: time.Millisecond,
		SettleGrace:  time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
	runs := runner.NewCoordinator(cfg, loader, factory, nil, publisher, nil)
	suites := suite.NewCoordinator(runs, dir, publisher)
	t.Cleanup(func() {
		suites.Shutdown()
		runs.Shutdown()
	})

	s := NewServer(runs, suites, loader)
	s.SetMetricsCollector(metrics.NewCollector())
	return s, dir
}

func doJSON(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestStartRunAndPollToCompletion(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{RoutePath: "quick-pass"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.RunID)

	var final models.TestRun
	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
			return false
		}
		return final.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.True(t, final.Passed())
	assert.Equal(t, "anonymous", final.Author)
}

func TestStartRunValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{RoutePath: "no-such-route"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRunsFilters(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{RoutePath: "quick-pass"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/runs?status=completed", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var runs []*models.TestRun
		if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
			return false
		}
		return len(runs) == 1
	}, 10*time.Second, 20*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs?limit=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunReportFormats(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{RoutePath: "quick-pass"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
		var run models.TestRun
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &run) == nil &&
			run.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID+"/report", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quick-pass")

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID+"/report?format=json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID+"/report?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunNotFoundAndCancelConflict(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/deadbeef", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs/deadbeef/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A terminal run is known but no longer cancellable.
	rec = doJSON(t, s, http.MethodPost, "/api/v1/runs", StartRunRequest{RoutePath: "quick-pass"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/runs/"+started.RunID, nil)
		var run models.TestRun
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &run) == nil &&
			run.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)

	// The cancel bookkeeping is released just after the status turns
	// terminal, so poll for the conflict.
	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodPost, "/api/v1/runs/"+started.RunID+"/cancel", nil)
		return rec.Code == http.StatusConflict
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSuiteLifecycle(t *testing.T) {
	s, dir := newTestServer(t)

	suitePath := filepath.Join(dir, "smoke.json")
	suiteJSON := `{"name": "smoke", "tests": [{"route": "quick-pass.json"}]}`
	require.NoError(t, os.WriteFile(suitePath, []byte(suiteJSON), 0o644))

	rec := doJSON(t, s, http.MethodPost, "/api/v1/suites", StartSuiteRequest{SuitePath: suitePath})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started StartSuiteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.SuiteID)

	var final models.SuiteRun
	require.Eventually(t, func() bool {
		rec := doJSON(t, s, http.MethodGet, "/api/v1/suites/"+started.SuiteID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &final); err != nil {
			return false
		}
		return final.Status.IsTerminal()
	}, 15*time.Second, 20*time.Millisecond)

	assert.Equal(t, models.SuiteStatusCompleted, final.Status)
	assert.Equal(t, 1, final.TestsPassed)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/suites", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/suites/"+started.SuiteID+"/report", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "smoke")
}

func TestSuiteValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/suites", StartSuiteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/suites/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/routes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []route.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "quick-pass", summaries[0].Name)
	assert.Equal(t, 1, summaries[0].TaskCount)
}

func TestHealthWithoutStore(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, healthStatusHealthy, health.Status)
	assert.Equal(t, 0, health.ActiveRuns)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebsocketUnavailableWithoutManager(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
