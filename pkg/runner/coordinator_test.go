package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warbandhq/warband/pkg/bot"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/route"
)

// fakeStore records snapshot calls for coordinator tests.
type fakeStore struct {
	mu       sync.Mutex
	existing map[string]bool
	saved    []string
	restored []string
	offline  bool
}

func (f *fakeStore) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[name], nil
}

func (f *fakeStore) Save(_ context.Context, name, characterName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existing == nil {
		f.existing = make(map[string]bool)
	}
	f.existing[name] = true
	f.saved = append(f.saved, name+":"+characterName)
	return nil
}

func (f *fakeStore) Restore(_ context.Context, name, characterName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, name+":"+characterName)
	return nil
}

func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) MarkQuestsCompleted(context.Context, string, []int) error { return nil }

func (f *fakeStore) RequiresOfflineForRestore() bool { return f.offline }

func newTestCoordinator(t *testing.T, store StateStore) (*Coordinator, string) {
	t.Helper()

	dir := t.TempDir()
	logger := slog.Default()
	loader := route.NewLoader(route.LoaderConfig{Dir: dir}, logger)
	factory := bot.NewSimFactory(bot.SimConfig{}, nil, logger)
	publisher := events.NewPublisher(16)

	c := NewCoordinator(Config{
		TickInterval: 5 * time.Millisecond,
		StartStagger: time.Millisecond,
		SettleGrace:  time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, loader, factory, store, publisher, nil)
	t.Cleanup(c.Shutdown)
	return c, dir
}

func writeRoute(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644))
	return name
}

func TestStartTestRunMultiBot(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)
	name := writeRoute(t, dir, "duo", `{
		"name": "duo",
		"tasks": [
			{"type": "LogMessage", "message": "moving out"},
			{"type": "AssertLevel", "minLevel": 1}
		],
		"harness": {"botCount": 2, "accountPrefix": "duo_", "testTimeoutSeconds": 30}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.Passed())
	assert.Equal(t, 2, run.BotsPassed())
	require.Len(t, run.Bots, 2)
	for _, b := range run.Bots {
		assert.True(t, b.Success)
		assert.Len(t, b.Tasks, 2)
	}
	assert.Equal(t, "tester", run.Author)
	require.NotNil(t, run.EndTime)
}

func TestStartTestRunUnknownRoute(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	_, err := c.StartTestRun(context.Background(), "nope", "tester")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStartTestRunRouteWithoutHarness(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)
	name := writeRoute(t, dir, "bare", `{
		"name": "bare",
		"tasks": [{"type": "LogMessage", "message": "x"}]
	}`)

	_, err := c.StartTestRun(context.Background(), name, "tester")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestHarnessSetupAppliesLevel(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)
	name := writeRoute(t, dir, "leveled", `{
		"name": "leveled",
		"tasks": [{"type": "AssertLevel", "minLevel": 5}],
		"harness": {"botCount": 1, "accountPrefix": "lv_", "level": 5, "testTimeoutSeconds": 30}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)
	assert.True(t, run.Passed())
}

func TestSaveSnapshotOnPass(t *testing.T) {
	store := &fakeStore{}
	c, dir := newTestCoordinator(t, store)
	name := writeRoute(t, dir, "snap", `{
		"name": "snap",
		"tasks": [{"type": "LogMessage", "message": "done"}],
		"harness": {"botCount": 1, "accountPrefix": "sn_", "testTimeoutSeconds": 30, "saveSnapshot": "checkpoint"}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)
	assert.True(t, run.Passed())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	assert.Contains(t, store.saved[0], "checkpoint:")
}

func TestRestoreSnapshotMissingFailsRun(t *testing.T) {
	store := &fakeStore{}
	c, dir := newTestCoordinator(t, store)
	name := writeRoute(t, dir, "needs-snap", `{
		"name": "needs-snap",
		"tasks": [{"type": "LogMessage", "message": "x"}],
		"harness": {"botCount": 1, "accountPrefix": "rs_", "testTimeoutSeconds": 30, "restoreSnapshot": "missing"}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRestoreSnapshotOfflineCycle(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{"base": true}, offline: true}
	c, dir := newTestCoordinator(t, store)
	name := writeRoute(t, dir, "from-snap", `{
		"name": "from-snap",
		"tasks": [{"type": "LogMessage", "message": "x"}],
		"harness": {"botCount": 1, "accountPrefix": "fs_", "testTimeoutSeconds": 30, "restoreSnapshot": "base"}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)
	assert.True(t, run.Passed())

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.restored, 1)
	assert.Contains(t, store.restored[0], "base:")
}

func TestCancelActiveRun(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)
	name := writeRoute(t, dir, "long", `{
		"name": "long",
		"tasks": [{"type": "Wait", "seconds": 120}],
		"harness": {"botCount": 1, "accountPrefix": "lg_", "testTimeoutSeconds": 300}
	}`)

	run, err := c.Submit(name, "tester")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		r, err := c.GetRun(run.ID)
		return err == nil && r.Status == models.RunStatusRunning
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Cancel(run.ID))

	require.Eventually(t, func() bool {
		r, err := c.GetRun(run.ID)
		return err == nil && r.Status.IsTerminal()
	}, 10*time.Second, 10*time.Millisecond)

	final, err := c.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, final.Status)
}

func TestCancelErrors(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)

	err := c.Cancel("unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	name := writeRoute(t, dir, "quick", `{
		"name": "quick",
		"tasks": [{"type": "LogMessage", "message": "x"}],
		"harness": {"botCount": 1, "accountPrefix": "q_", "testTimeoutSeconds": 30}
	}`)
	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)

	err = c.Cancel(run.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotCancellable))
}

func TestGetRunUnknown(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	_, err := c.GetRun("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPruneCompletedRuns(t *testing.T) {
	c, dir := newTestCoordinator(t, nil)
	name := writeRoute(t, dir, "quick", `{
		"name": "quick",
		"tasks": [{"type": "LogMessage", "message": "x"}],
		"harness": {"botCount": 1, "accountPrefix": "q_", "testTimeoutSeconds": 30}
	}`)

	for i := 0; i < 3; i++ {
		_, err := c.StartTestRun(context.Background(), name, "tester")
		require.NoError(t, err)
	}
	require.Len(t, c.CompletedRuns(), 3)

	// Nothing is old enough yet.
	assert.Zero(t, c.PruneCompleted(time.Now().Add(-time.Hour), 0))

	// Everything ended before a future cutoff, but the keep floor holds one.
	removed := c.PruneCompleted(time.Now().Add(time.Hour), 1)
	assert.Equal(t, 2, removed)
	assert.Len(t, c.CompletedRuns(), 1)
}

// flakyFactory fails provisioning for one named account and delegates the
// rest to the simulator.
type flakyFactory struct {
	inner   bot.Factory
	failFor string
}

func (f *flakyFactory) CreateBot(ctx context.Context, spec bot.Spec) (bot.Client, error) {
	if spec.AccountName == f.failFor {
		return nil, errors.New("account service rejected the request")
	}
	return f.inner.CreateBot(ctx, spec)
}

func TestBotProvisioningFailureLosesOnlyThatBot(t *testing.T) {
	dir := t.TempDir()
	logger := slog.Default()
	loader := route.NewLoader(route.LoaderConfig{Dir: dir}, logger)
	factory := &flakyFactory{
		inner:   bot.NewSimFactory(bot.SimConfig{}, nil, logger),
		failFor: "pf_1",
	}
	c := NewCoordinator(Config{
		TickInterval: 5 * time.Millisecond,
		StartStagger: time.Millisecond,
		SettleGrace:  time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}, loader, factory, nil, events.NewPublisher(16), nil)
	t.Cleanup(c.Shutdown)

	name := writeRoute(t, dir, "partial", `{
		"name": "partial",
		"tasks": [{"type": "LogMessage", "message": "still here"}],
		"harness": {"botCount": 2, "accountPrefix": "pf_", "testTimeoutSeconds": 1}
	}`)

	run, err := c.StartTestRun(context.Background(), name, "tester")
	require.NoError(t, err)

	// The surviving bot finishes its route; the lost slot never completes,
	// so the run concludes on the test timeout.
	assert.Equal(t, models.RunStatusTimedOut, run.Status)
	assert.Contains(t, run.ErrorMessage, "1/2 bots completed")
	require.Len(t, run.Bots, 2)

	lost := run.Bots[0]
	assert.False(t, lost.Complete)
	assert.Contains(t, lost.ErrorMessage, "provisioning failed")

	survivor := run.Bots[1]
	assert.True(t, survivor.Complete)
	assert.True(t, survivor.Success)
	require.Len(t, survivor.Tasks, 1)
}
