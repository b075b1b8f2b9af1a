// Package e2e drives the orchestrator end to end against simulated game
// clients: real coordinators, real routes on disk, no game server.
package e2e

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warbandhq/warband/pkg/bot"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/route"
	"github.com/warbandhq/warband/pkg/runner"
	"github.com/warbandhq/warband/pkg/suite"
)

// harness owns one orchestrator wired against the simulator.
type harness struct {
	dir    string
	runs   *runner.Coordinator
	suites *suite.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithSim(t, bot.SimConfig{})
}

func newHarnessWithSim(t *testing.T, simCfg bot.SimConfig) *harness {
	t.Helper()

	dir := t.TempDir()
	logger := slog.Default()
	loader := route.NewLoader(route.LoaderConfig{Dir: dir}, logger)
	factory := bot.NewSimFactory(simCfg, nil, logger)
	publisher := events.NewPublisher(16)

	runs := runner.NewCoordinator(runner.Config{
		TickInterval: 5 * time.Millisecond,
		StartStagger: time.Millisecond,
		SettleGrace:  time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, loader, factory, nil, publisher, nil)
	suites := suite.NewCoordinator(runs, dir, publisher)
	t.Cleanup(func() {
		suites.Shutdown()
		runs.Shutdown()
	})

	return &harness{dir: dir, runs: runs, suites: suites}
}

// writeRoute drops a route file into the routes directory and returns its
// bare name for loading.
func (h *harness) writeRoute(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return name
}

func (h *harness) writeSuite(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes a route synchronously with a generous safety deadline.
func (h *harness) run(t *testing.T, routeName string) (*models.TestRun, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return h.runs.StartTestRun(ctx, routeName, "e2e")
}
