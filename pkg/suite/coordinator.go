package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/runner"
)

// RunStarter executes one route as a test run to completion. Implemented by
// runner.Coordinator.
type RunStarter interface {
	StartTestRun(ctx context.Context, routePath, author string) (*models.TestRun, error)
}

// Coordinator executes suites through the run coordinator, sequentially in
// topological order or in parallel dependency levels.
type Coordinator struct {
	runs      RunStarter
	routesDir string
	publisher *events.Publisher
	registry  *runner.Registry[*models.SuiteRun]
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCoordinator wires a suite coordinator. publisher may be nil.
func NewCoordinator(runs RunStarter, routesDir string, publisher *events.Publisher) *Coordinator {
	return &Coordinator{
		runs:      runs,
		routesDir: routesDir,
		publisher: publisher,
		registry:  runner.NewRegistry[*models.SuiteRun](),
		logger:    slog.Default().With("component", "suite_coordinator"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// GetSuiteRun returns a snapshot of a suite run, active or completed.
func (c *Coordinator) GetSuiteRun(id string) (*models.SuiteRun, error) {
	s, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("suite run %s: %w", id, runner.ErrNotFound)
	}
	return s, nil
}

// ActiveSuiteRuns returns snapshots of every suite still executing.
func (c *Coordinator) ActiveSuiteRuns() []*models.SuiteRun { return c.registry.Active() }

// CompletedSuiteRuns returns snapshots of terminal suites, newest first.
func (c *Coordinator) CompletedSuiteRuns() []*models.SuiteRun { return c.registry.Completed() }

// PruneCompleted drops completed suite runs that ended before olderThan,
// always keeping the newest keep entries. Returns the number removed.
func (c *Coordinator) PruneCompleted(olderThan time.Time, keep int) int {
	return c.registry.PruneCompleted(keep, func(s *models.SuiteRun) bool {
		return s.EndTime != nil && s.EndTime.Before(olderThan)
	})
}

// Cancel cancels an active suite run; cancellation propagates to the child
// test runs through the shared context.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if ok {
		cancel()
		return nil
	}
	if _, found := c.registry.Get(id); found {
		return fmt.Errorf("suite run %s: %w", id, runner.ErrNotCancellable)
	}
	return fmt.Errorf("suite run %s: %w", id, runner.ErrNotFound)
}

// Shutdown cancels active suites and stops the registry goroutine.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Unlock()
	c.registry.Stop()
}

// StartSuiteRun loads, validates, and executes a suite file to completion.
// Blocking, like StartTestRun.
func (c *Coordinator) StartSuiteRun(ctx context.Context, suitePath string, parallel bool, author string) (*models.SuiteRun, error) {
	sr, s, err := c.admit(suitePath, parallel, author)
	if err != nil {
		return nil, err
	}
	return c.runToCompletion(ctx, sr, s)
}

// Submit validates and registers a suite run like StartSuiteRun, but
// executes it in the background and returns the initial snapshot
// immediately. Background suites detach from the caller's context;
// Shutdown still cancels them.
func (c *Coordinator) Submit(suitePath string, parallel bool, author string) (*models.SuiteRun, error) {
	sr, s, err := c.admit(suitePath, parallel, author)
	if err != nil {
		return nil, err
	}
	snapshot, _ := c.registry.Get(sr.ID)
	go func() {
		_, _ = c.runToCompletion(context.Background(), sr, s)
	}()
	return snapshot, nil
}

// admit loads and validates the suite file and registers the pending run.
func (c *Coordinator) admit(suitePath string, parallel bool, author string) (*models.SuiteRun, *Suite, error) {
	s, err := LoadFile(suitePath)
	if err != nil {
		return nil, nil, runner.NewValidationError("suitePath", err.Error())
	}

	sr := &models.SuiteRun{
		ID:         uuid.NewString()[:8],
		Name:       s.Name,
		Path:       suitePath,
		Parallel:   parallel,
		Author:     author,
		Status:     models.SuiteStatusRunning,
		TotalTests: len(s.Entries),
		StartTime:  time.Now().UTC(),
	}
	for !c.registry.Register(sr.ID, sr) {
		sr.ID = uuid.NewString()[:8]
	}
	return sr, s, nil
}

func (c *Coordinator) runToCompletion(ctx context.Context, sr *models.SuiteRun, s *Suite) (*models.SuiteRun, error) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[sr.ID] = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.cancels, sr.ID)
		c.mu.Unlock()
	}()

	c.logger.Info("Starting suite run",
		"suite_id", sr.ID, "suite", s.Name, "tests", len(s.Entries), "parallel", sr.Parallel)
	c.publisher.PublishSuiteStarted(events.SuiteStartedPayload{
		SuiteID:    sr.ID,
		Name:       s.Name,
		Parallel:   sr.Parallel,
		TotalTests: len(s.Entries),
		Author:     sr.Author,
	})

	var execErr error
	if sr.Parallel {
		execErr = c.runParallel(runCtx, sr.ID, s, sr.Author)
	} else {
		execErr = c.runSequential(runCtx, sr.ID, s, sr.Author)
	}

	final := c.finalize(sr.ID, execErr)
	return final, execErr
}

func (c *Coordinator) finalize(suiteID string, execErr error) *models.SuiteRun {
	now := time.Now().UTC()
	c.registry.Mutate(suiteID, func(sr *models.SuiteRun) {
		sr.EndTime = &now
		// Entries that never reached a verdict (in flight or never started
		// when the suite was cut short) count as skipped, so the three
		// tallies always add up to TotalTests.
		if d := sr.TotalTests - sr.TestsPassed - sr.TestsFailed - sr.TestsSkipped; d > 0 {
			sr.TestsSkipped += d
		}
		switch {
		case execErr != nil && errors.Is(execErr, context.Canceled):
			sr.Status = models.SuiteStatusCancelled
		case execErr != nil:
			sr.Status = models.SuiteStatusFailed
			sr.ErrorMessage = execErr.Error()
		case sr.TestsFailed == 0 && sr.TestsSkipped == 0:
			sr.Status = models.SuiteStatusCompleted
		default:
			sr.Status = models.SuiteStatusFailed
		}
	})
	c.registry.Complete(suiteID)

	final, _ := c.registry.Get(suiteID)
	if final == nil {
		return nil
	}
	c.logger.Info("Suite run finished",
		"suite_id", final.ID, "status", final.Status,
		"passed", final.TestsPassed, "failed", final.TestsFailed, "skipped", final.TestsSkipped)
	c.publisher.PublishSuiteCompleted(events.SuiteCompletedPayload{
		SuiteID:      final.ID,
		Name:         final.Name,
		Status:       string(final.Status),
		TestsPassed:  final.TestsPassed,
		TestsFailed:  final.TestsFailed,
		TestsSkipped: final.TestsSkipped,
		TotalTests:   final.TotalTests,
		DurationMS:   final.Duration().Milliseconds(),
		ErrorMessage: final.ErrorMessage,
	})
	return final
}

// verdict tracks which entries passed or failed while a suite executes.
type verdict struct {
	mu     sync.Mutex
	passed map[string]bool
	failed map[string]bool
}

func newVerdict() *verdict {
	return &verdict{passed: make(map[string]bool), failed: make(map[string]bool)}
}

// canRun reports whether every dependency passed. An entry with a failed or
// unresolved dependency must be skipped.
func (v *verdict) canRun(e Entry) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, dep := range e.DependsOn {
		if !v.passed[dep] {
			return false
		}
	}
	return true
}

func (v *verdict) record(name string, passed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if passed {
		v.passed[name] = true
	} else {
		v.failed[name] = true
	}
}

func (c *Coordinator) runSequential(ctx context.Context, suiteID string, s *Suite, author string) error {
	order, err := s.TopologicalOrder()
	if err != nil {
		return err
	}

	v := newVerdict()
	for _, entry := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !v.canRun(entry) {
			c.skipEntry(suiteID, entry)
			continue
		}
		c.runEntry(ctx, suiteID, s, entry, author, v)
	}
	return ctx.Err()
}

func (c *Coordinator) runParallel(ctx context.Context, suiteID string, s *Suite, author string) error {
	levels, err := s.ExecutionLevels()
	if err != nil {
		return err
	}

	v := newVerdict()
	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return err
		}

		var runnable []Entry
		for _, entry := range level {
			if v.canRun(entry) {
				runnable = append(runnable, entry)
			} else {
				c.skipEntry(suiteID, entry)
			}
		}

		g := new(errgroup.Group)
		for _, entry := range runnable {
			entry := entry
			g.Go(func() error {
				c.runEntry(ctx, suiteID, s, entry, author, v)
				return nil
			})
		}
		// Level barrier: all runs in this level finish before the next
		// level's dependency checks.
		_ = g.Wait()
	}
	return ctx.Err()
}

// runEntry resolves and executes one suite entry, recording its verdict.
// Run failures are test failures, not suite errors.
func (c *Coordinator) runEntry(ctx context.Context, suiteID string, s *Suite, entry Entry, author string, v *verdict) {
	routePath, err := s.ResolveRoute(entry.Route, c.routesDir)
	if err != nil {
		c.logger.Error("Suite entry route resolution failed",
			"suite_id", suiteID, "entry", entry.Name, "error", err)
		v.record(entry.Name, false)
		c.registry.Mutate(suiteID, func(sr *models.SuiteRun) {
			sr.TestsFailed++
		})
		return
	}

	run, err := c.runs.StartTestRun(ctx, routePath, author)
	passed := err == nil && run != nil && run.Passed()
	if err != nil {
		c.logger.Warn("Suite entry run errored",
			"suite_id", suiteID, "entry", entry.Name, "error", err)
	}

	v.record(entry.Name, passed)
	c.registry.Mutate(suiteID, func(sr *models.SuiteRun) {
		if run != nil {
			sr.Runs = append(sr.Runs, run)
		}
		if passed {
			sr.TestsPassed++
		} else {
			sr.TestsFailed++
		}
	})
}

func (c *Coordinator) skipEntry(suiteID string, entry Entry) {
	c.logger.Info("Skipping suite entry, dependency did not pass", "entry", entry.Name)
	c.registry.Mutate(suiteID, func(sr *models.SuiteRun) {
		sr.TestsSkipped++
	})
}
