package suite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/runner"
)

// fakeRunner scripts per-route outcomes and records execution order.
type fakeRunner struct {
	mu    sync.Mutex
	fail  map[string]bool // route stem -> should fail
	order []string
	block chan struct{} // when set, runs block until closed
}

func (f *fakeRunner) StartTestRun(ctx context.Context, routePath, author string) (*models.TestRun, error) {
	stem := filepath.Base(routePath)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]

	f.mu.Lock()
	f.order = append(f.order, stem)
	shouldFail := f.fail[stem]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &models.TestRun{ID: stem, Status: models.RunStatusCancelled}, ctx.Err()
		}
	}

	now := time.Now().UTC()
	run := &models.TestRun{
		ID:        stem,
		RouteName: stem,
		Status:    models.RunStatusCompleted,
		StartTime: now,
		EndTime:   &now,
		Bots: []*models.BotResult{{
			BotName:  stem + "-bot",
			Success:  !shouldFail,
			Complete: true,
		}},
	}
	return run, nil
}

func newSuiteTestbed(t *testing.T, fr *fakeRunner) (*Coordinator, string) {
	t.Helper()
	dir := t.TempDir()

	// Route files only need to exist; the fake runner never reads them.
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, name+".json"), []byte(`{"name":"`+name+`"}`), 0o644))
	}

	c := NewCoordinator(fr, dir, events.NewPublisher(8))
	t.Cleanup(c.Shutdown)
	return c, dir
}

func writeSuiteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const diamondSuite = `{
	"name": "diamond",
	"tests": [
		{"route": "a.json"},
		{"route": "b.json", "dependsOn": ["a"]},
		{"route": "c.json", "dependsOn": ["a"]},
		{"route": "d.json", "dependsOn": ["b", "c"]}
	]
}`

func TestSequentialRespectsTopologicalOrder(t *testing.T) {
	fr := &fakeRunner{}
	c, dir := newSuiteTestbed(t, fr)
	path := writeSuiteFile(t, dir, "diamond", diamondSuite)

	sr, err := c.StartSuiteRun(context.Background(), path, false, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.SuiteStatusCompleted, sr.Status)
	assert.Equal(t, 4, sr.TestsPassed)

	pos := make(map[string]int)
	for i, name := range fr.order {
		pos[name] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestSequentialSkipsDependentsOfFailure(t *testing.T) {
	fr := &fakeRunner{fail: map[string]bool{"a": true}}
	c, dir := newSuiteTestbed(t, fr)
	path := writeSuiteFile(t, dir, "diamond", diamondSuite)

	sr, err := c.StartSuiteRun(context.Background(), path, false, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.SuiteStatusFailed, sr.Status)
	assert.Equal(t, 1, sr.TestsFailed)
	assert.Equal(t, 3, sr.TestsSkipped)
	assert.Zero(t, sr.TestsPassed)
	assert.Equal(t, []string{"a"}, fr.order, "dependents of a failed entry never start")
}

func TestParallelSkipsDependentsOfFailure(t *testing.T) {
	fr := &fakeRunner{fail: map[string]bool{"b": true}}
	c, dir := newSuiteTestbed(t, fr)
	path := writeSuiteFile(t, dir, "diamond", diamondSuite)

	sr, err := c.StartSuiteRun(context.Background(), path, true, "tester")
	require.NoError(t, err)

	assert.Equal(t, models.SuiteStatusFailed, sr.Status)
	assert.Equal(t, 2, sr.TestsPassed) // a and c
	assert.Equal(t, 1, sr.TestsFailed) // b
	assert.Equal(t, 1, sr.TestsSkipped, "d depends on the failed b")
}

func TestStartSuiteRunRejectsInvalidFile(t *testing.T) {
	fr := &fakeRunner{}
	c, dir := newSuiteTestbed(t, fr)

	_, err := c.StartSuiteRun(context.Background(), filepath.Join(dir, "missing.json"), false, "tester")
	require.Error(t, err)
	assert.True(t, runner.IsValidationError(err))

	path := writeSuiteFile(t, dir, "cyclic", `{
		"name": "cyclic",
		"tests": [
			{"route": "a.json", "dependsOn": ["b"]},
			{"route": "b.json", "dependsOn": ["a"]}
		]
	}`)
	_, err = c.StartSuiteRun(context.Background(), path, false, "tester")
	require.Error(t, err)
	assert.True(t, runner.IsValidationError(err))
	assert.Empty(t, fr.order)
}

func TestSuiteCancel(t *testing.T) {
	block := make(chan struct{})
	fr := &fakeRunner{block: block}
	c, dir := newSuiteTestbed(t, fr)
	path := writeSuiteFile(t, dir, "single", `{"name": "single", "tests": [{"route": "a.json"}]}`)

	sr, err := c.Submit(path, false, "tester")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return len(fr.order) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Cancel(sr.ID))

	require.Eventually(t, func() bool {
		s, err := c.GetSuiteRun(sr.ID)
		return err == nil && s.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)

	final, err := c.GetSuiteRun(sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuiteStatusCancelled, final.Status)

	// Cancelling again: the suite is terminal now. The cancel entry is
	// removed just after the status turns terminal, so poll.
	require.Eventually(t, func() bool {
		return errors.Is(c.Cancel(sr.ID), runner.ErrNotCancellable)
	}, 5*time.Second, 5*time.Millisecond)

	err = c.Cancel("unknown")
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrNotFound))
}

func TestCancelledSuiteCountsUnstartedAsSkipped(t *testing.T) {
	block := make(chan struct{})
	fr := &fakeRunner{block: block}
	c, dir := newSuiteTestbed(t, fr)
	path := writeSuiteFile(t, dir, "diamond", diamondSuite)

	sr, err := c.Submit(path, false, "tester")
	require.NoError(t, err)

	// Cancel while "a" is in flight; b, c, and d never start.
	require.Eventually(t, func() bool {
		fr.mu.Lock()
		defer fr.mu.Unlock()
		return len(fr.order) == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Cancel(sr.ID))

	require.Eventually(t, func() bool {
		s, err := c.GetSuiteRun(sr.ID)
		return err == nil && s.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)

	final, err := c.GetSuiteRun(sr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuiteStatusCancelled, final.Status)
	assert.Equal(t, 4, final.TotalTests)
	assert.Equal(t, final.TotalTests,
		final.TestsPassed+final.TestsFailed+final.TestsSkipped,
		"every entry gets a verdict even when the suite is cut short")
	assert.GreaterOrEqual(t, final.TestsSkipped, 3, "unstarted entries count as skipped")
}

func TestGetSuiteRunUnknown(t *testing.T) {
	fr := &fakeRunner{}
	c, _ := newSuiteTestbed(t, fr)

	_, err := c.GetSuiteRun("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, runner.ErrNotFound))
}
