// Package runner orchestrates test runs: it builds a bot fleet from a
// route's harness, walks the fleet through login and privileged setup,
// drives every bot's executor to completion under a deadline, and records
// the result tree in an actor-owned registry.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warbandhq/warband/pkg/bot"
	"github.com/warbandhq/warband/pkg/events"
	"github.com/warbandhq/warband/pkg/models"
	"github.com/warbandhq/warband/pkg/route"
)

// Config tunes coordinator pacing. Zero values use the defaults below.
type Config struct {
	TickInterval       time.Duration // executor tick cadence
	StartStagger       time.Duration // delay between bot starts
	SettleGrace        time.Duration // wait after harness setup and logouts
	PollInterval       time.Duration // completion poll cadence
	StatusEmitInterval time.Duration // minimum gap between status re-emits

	// SetupTimeout and TestTimeout override the route package defaults for
	// routes whose harness leaves its own timeouts unset. Zero keeps the
	// route package defaults.
	SetupTimeout time.Duration
	TestTimeout  time.Duration
}

const (
	defaultStartStagger       = 500 * time.Millisecond
	defaultSettleGrace        = 2 * time.Second
	defaultPollInterval       = time.Second
	defaultStatusEmitInterval = 2 * time.Second
	disposeTimeout            = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = bot.DefaultTickInterval
	}
	if c.StartStagger <= 0 {
		c.StartStagger = defaultStartStagger
	}
	if c.SettleGrace <= 0 {
		c.SettleGrace = defaultSettleGrace
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StatusEmitInterval <= 0 {
		c.StatusEmitInterval = defaultStatusEmitInterval
	}
	return c
}

// Coordinator runs harnessed routes as test runs.
type Coordinator struct {
	cfg       Config
	loader    *route.Loader
	factory   bot.Factory
	store     StateStore
	publisher *events.Publisher
	recorder  TaskRecorder
	registry  *Registry[*models.TestRun]
	logger    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCoordinator wires a run coordinator. store, publisher, and recorder may
// be nil.
func NewCoordinator(cfg Config, loader *route.Loader, factory bot.Factory, store StateStore, publisher *events.Publisher, recorder TaskRecorder) *Coordinator {
	return &Coordinator{
		cfg:       cfg.withDefaults(),
		loader:    loader,
		factory:   factory,
		store:     store,
		publisher: publisher,
		recorder:  recorder,
		registry:  NewRegistry[*models.TestRun](),
		logger:    slog.Default().With("component", "run_coordinator"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// GetRun returns a snapshot of a run, active or completed.
func (c *Coordinator) GetRun(id string) (*models.TestRun, error) {
	run, ok := c.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

// ActiveRuns returns snapshots of every run still executing.
func (c *Coordinator) ActiveRuns() []*models.TestRun { return c.registry.Active() }

// CompletedRuns returns snapshots of terminal runs, newest first.
func (c *Coordinator) CompletedRuns() []*models.TestRun { return c.registry.Completed() }

// ActiveCount returns the number of runs currently executing.
func (c *Coordinator) ActiveCount() int { return c.registry.ActiveCount() }

// PruneCompleted drops completed runs that ended before olderThan, always
// keeping the newest keep entries. Returns the number removed.
func (c *Coordinator) PruneCompleted(olderThan time.Time, keep int) int {
	return c.registry.PruneCompleted(keep, func(r *models.TestRun) bool {
		return r.EndTime != nil && r.EndTime.Before(olderThan)
	})
}

// Stop cancels an active run. Returns false when the id is unknown or the
// run is already terminal.
func (c *Coordinator) Stop(runID string) bool {
	c.mu.Lock()
	cancel, ok := c.cancels[runID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Cancel cancels an active run, distinguishing unknown ids from terminal
// runs for the API layer.
func (c *Coordinator) Cancel(runID string) error {
	if c.Stop(runID) {
		return nil
	}
	if _, ok := c.registry.Get(runID); ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotCancellable)
	}
	return fmt.Errorf("run %s: %w", runID, ErrNotFound)
}

// Shutdown cancels every active run and stops the registry goroutine.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.mu.Unlock()
	c.registry.Stop()
}

// StartTestRun executes a harnessed route to completion and returns the
// final run snapshot. Blocking; callers wanting fire-and-forget launch it in
// a goroutine and poll by id. The returned run is non-nil whenever a run was
// registered, even when err is set.
func (c *Coordinator) StartTestRun(ctx context.Context, routePath, author string) (*models.TestRun, error) {
	run, r, harness, err := c.admit(routePath, author)
	if err != nil {
		return nil, err
	}
	return c.runToCompletion(ctx, run, r, harness)
}

// Submit validates and registers a run like StartTestRun, but executes it in
// the background and returns the initial snapshot immediately. Background
// runs detach from the caller's context; Shutdown still cancels them.
func (c *Coordinator) Submit(routePath, author string) (*models.TestRun, error) {
	run, r, harness, err := c.admit(routePath, author)
	if err != nil {
		return nil, err
	}
	snapshot, _ := c.registry.Get(run.ID)
	go func() {
		_, _ = c.runToCompletion(context.Background(), run, r, harness)
	}()
	return snapshot, nil
}

// admit loads and validates the route and registers the pending run.
func (c *Coordinator) admit(routePath, author string) (*models.TestRun, *route.TaskRoute, *route.HarnessSettings, error) {
	r, err := c.loader.Load(routePath)
	if err != nil {
		return nil, nil, nil, NewValidationError("routePath", err.Error())
	}
	harness := r.Harness()
	if harness == nil {
		return nil, nil, nil, NewValidationError("routePath", fmt.Sprintf("route %q has no harness and cannot run as a test", r.Name()))
	}

	run := &models.TestRun{
		ID:        newRunID(),
		RouteName: r.Name(),
		RoutePath: routePath,
		Author:    author,
		Status:    models.RunStatusSettingUp,
		StartTime: time.Now().UTC(),
	}
	for !c.registry.Register(run.ID, run) {
		run.ID = newRunID()
	}
	return run, r, harness, nil
}

func (c *Coordinator) runToCompletion(ctx context.Context, run *models.TestRun, r *route.TaskRoute, harness *route.HarnessSettings) (*models.TestRun, error) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[run.ID] = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.cancels, run.ID)
		c.mu.Unlock()
	}()

	c.logger.Info("Starting test run",
		"run_id", run.ID, "route", r.Name(), "bots", harness.BotCount, "author", run.Author)
	c.publisher.PublishRunStarted(events.RunStartedPayload{
		RunID:     run.ID,
		RouteName: r.Name(),
		RoutePath: run.RoutePath,
		BotCount:  harness.BotCount,
		Author:    run.Author,
	})

	execErr := c.execute(runCtx, run.ID, r, harness)
	if execErr != nil {
		c.failRun(run.ID, execErr)
	}

	final := c.finalize(run.ID)
	return final, execErr
}

// failRun applies the failure taxonomy: cancellation, deadline, then plain
// failure with the error message.
func (c *Coordinator) failRun(runID string, err error) {
	status := models.RunStatusFailed
	switch {
	case errors.Is(err, context.Canceled):
		status = models.RunStatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		status = models.RunStatusTimedOut
	}
	c.registry.Mutate(runID, func(run *models.TestRun) {
		if run.Status.IsTerminal() {
			return
		}
		run.Status = status
		if status == models.RunStatusFailed {
			run.ErrorMessage = err.Error()
		}
	})
}

// finalize stamps the end time, moves the run to the completed set, and
// emits the terminal event.
func (c *Coordinator) finalize(runID string) *models.TestRun {
	now := time.Now().UTC()
	c.registry.Mutate(runID, func(run *models.TestRun) {
		if run.EndTime == nil {
			run.EndTime = &now
		}
		if !run.Status.IsTerminal() {
			run.Status = models.RunStatusFailed
		}
	})
	c.registry.Complete(runID)

	final, _ := c.registry.Get(runID)
	if final == nil {
		return nil
	}
	c.logger.Info("Test run finished",
		"run_id", final.ID, "status", final.Status,
		"bots_passed", final.BotsPassed(), "bots_failed", final.BotsFailed(),
		"duration", final.Duration().Round(time.Millisecond))
	c.publisher.PublishRunCompleted(events.RunCompletedPayload{
		RunID:        final.ID,
		RouteName:    final.RouteName,
		Status:       string(final.Status),
		BotsPassed:   final.BotsPassed(),
		BotsFailed:   final.BotsFailed(),
		BotsTotal:    len(final.Bots),
		DurationMS:   final.Duration().Milliseconds(),
		ErrorMessage: final.ErrorMessage,
	})
	return final
}

// execute runs the full bot fleet lifecycle. Any returned error fails the
// run; a nil return means the run reached a terminal status itself.
func (c *Coordinator) execute(ctx context.Context, runID string, r *route.TaskRoute, harness *route.HarnessSettings) error {
	// Fleet creation and staggered start. Concurrent logins trip auth-server
	// throttling, so the stagger is mandatory pacing, not politeness.
	// clients is indexed by bot slot; a provisioning failure leaves a nil
	// hole and the rest of the fleet still runs. The holed bot's result
	// never completes, so the run concludes TimedOut on its own.
	clients := make([]bot.Client, harness.BotCount)
	skipDispose := false
	defer func() {
		if !skipDispose {
			c.disposeAll(clients)
		}
	}()

	for i := 0; i < harness.BotCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		spec := bot.Spec{
			AccountName: harness.AccountNameForBot(i),
			Class:       harness.ClassForBot(i),
			Race:        harness.Race,
		}
		client, createErr := c.factory.CreateBot(ctx, spec)

		result := &models.BotResult{
			BotName:    spec.AccountName,
			Class:      spec.Class,
			TotalTasks: r.TaskCount(),
			StartTime:  time.Now().UTC(),
		}
		if createErr != nil {
			c.logger.Error("Bot provisioning failed, continuing with remaining bots",
				"run_id", runID, "bot", spec.AccountName, "error", createErr)
			result.ErrorMessage = fmt.Sprintf("bot provisioning failed: %v", createErr)
		}
		c.registry.Mutate(runID, func(run *models.TestRun) {
			run.Bots = append(run.Bots, result)
		})
		if createErr != nil {
			continue
		}
		clients[i] = client

		if err := client.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bot %s: %w", spec.AccountName, err)
		}
		if i < harness.BotCount-1 {
			if err := sleepCtx(ctx, c.cfg.StartStagger); err != nil {
				return err
			}
		}
	}

	// Login wait, bounded by the setup timeout.
	if err := c.waitForLogins(ctx, clients, c.setupTimeout(harness)); err != nil {
		return err
	}

	for i, client := range clients {
		if client == nil {
			continue
		}
		name := client.CharacterName()
		if name == "" {
			return fmt.Errorf("bot %s logged in without a character name", harness.AccountNameForBot(i))
		}
		idx := i
		c.registry.Mutate(runID, func(run *models.TestRun) {
			run.Bots[idx].CharacterName = name
		})
		client.SetLogSink(func(line string) {
			c.registry.Mutate(runID, func(run *models.TestRun) {
				run.Bots[idx].AppendLog(line)
			})
		})
	}

	if harness.NeedsSetup() {
		if err := c.applySetup(ctx, clients, harness); err != nil {
			return err
		}
	}

	if harness.RestoreSnapshot != "" {
		if err := c.restoreSnapshot(ctx, clients, harness.RestoreSnapshot); err != nil {
			return err
		}
	}

	c.setStatus(runID, models.RunStatusRunning)

	// Executors and their event collectors. Collectors attach before Start
	// so no early event can be lost; each executor goroutine closes its
	// channel when done and the collector drains until closed.
	var execWG, collectWG sync.WaitGroup
	execCtx, stopExecutors := context.WithCancel(ctx)
	defer stopExecutors()

	for i, client := range clients {
		if client == nil {
			continue
		}
		ch := make(chan bot.Event, 16)
		exec, err := bot.NewExecutor(r, client, harness.AccountNameForBot(i), ch, c.logger)
		if err != nil {
			close(ch)
			return fmt.Errorf("failed to build executor for bot %d: %w", i+1, err)
		}

		collectWG.Add(1)
		go c.collect(&collectWG, runID, i, ch)

		if !exec.Start() {
			c.completeBot(runID, i, false, "route has no tasks")
			close(ch)
			continue
		}
		execWG.Add(1)
		go func() {
			defer execWG.Done()
			defer close(ch)
			exec.Run(execCtx, c.cfg.TickInterval)
		}()
	}

	pollErr := c.awaitCompletion(ctx, runID, len(clients), c.testTimeout(harness))

	stopExecutors()
	execWG.Wait()
	collectWG.Wait()
	if pollErr != nil {
		return pollErr
	}

	return c.conclude(ctx, runID, clients, harness, &skipDispose)
}

// conclude applies the end-of-run verdict after all bots completed. A
// successful snapshot save leaves the fleet logged out and sets skipDispose
// so the characters stay offline in their saved state.
func (c *Coordinator) conclude(ctx context.Context, runID string, clients []bot.Client, harness *route.HarnessSettings, skipDispose *bool) error {
	var completed, failed int
	var firstChar string
	c.registry.Mutate(runID, func(run *models.TestRun) {
		completed = run.BotsCompleted()
		failed = run.BotsFailed()
		if len(run.Bots) > 0 {
			firstChar = run.Bots[0].CharacterName
		}
	})

	if completed < len(clients) {
		c.setStatus(runID, models.RunStatusTimedOut)
		c.registry.Mutate(runID, func(run *models.TestRun) {
			run.ErrorMessage = fmt.Sprintf("%d/%d bots completed before the test timeout", completed, len(clients))
		})
		return nil
	}

	if failed > 0 {
		c.registry.Mutate(runID, func(run *models.TestRun) {
			run.Status = models.RunStatusCompleted
			run.ErrorMessage = fmt.Sprintf("%d/%d bots failed", failed, len(clients))
		})
		return nil
	}

	c.setStatus(runID, models.RunStatusCompleted)

	if harness.SaveSnapshot != "" {
		if c.store == nil {
			c.logger.Warn("saveSnapshot requested but no state store is configured", "run_id", runID)
			return nil
		}
		// Characters must be offline so the saved state is settled.
		for _, client := range clients {
			if client == nil {
				continue
			}
			if err := client.Logout(ctx); err != nil {
				c.logger.Warn("Logout before snapshot save failed", "run_id", runID, "error", err)
			}
		}
		if err := sleepCtx(ctx, c.cfg.SettleGrace); err != nil {
			return err
		}
		if err := c.store.Save(ctx, harness.SaveSnapshot, firstChar); err != nil {
			return fmt.Errorf("failed to save snapshot %q: %w", harness.SaveSnapshot, err)
		}
		*skipDispose = true
		c.logger.Info("Saved snapshot", "run_id", runID, "snapshot", harness.SaveSnapshot, "character", firstChar)
	}
	return nil
}

// collect drains one bot's event channel into the run's result tree.
func (c *Coordinator) collect(wg *sync.WaitGroup, runID string, botIndex int, ch <-chan bot.Event) {
	defer wg.Done()
	for ev := range ch {
		switch ev.Kind {
		case bot.EventTaskCompleted:
			c.registry.Mutate(runID, func(run *models.TestRun) {
				run.Bots[botIndex].Tasks = append(run.Bots[botIndex].Tasks, models.TaskResultEntry{
					TaskName:     ev.TaskName,
					Result:       ev.Result,
					Duration:     ev.Duration,
					ErrorMessage: ev.ErrorMessage,
				})
			})
			if c.recorder != nil {
				c.recorder.RecordTaskCompleted(string(ev.Result))
			}
			c.publisher.PublishTaskCompleted(events.TaskCompletedPayload{
				RunID:        runID,
				BotName:      ev.BotName,
				TaskName:     ev.TaskName,
				TaskIndex:    ev.TaskIndex,
				Result:       string(ev.Result),
				DurationMS:   ev.Duration.Milliseconds(),
				ErrorMessage: ev.ErrorMessage,
			})

		case bot.EventRouteCompleted:
			c.completeBot(runID, botIndex, ev.Success, ev.ErrorMessage)
		}
	}
}

// completeBot marks one bot terminal and emits BotCompleted.
func (c *Coordinator) completeBot(runID string, botIndex int, success bool, errMsg string) {
	now := time.Now().UTC()
	var payload events.BotCompletedPayload
	ok := c.registry.Mutate(runID, func(run *models.TestRun) {
		b := run.Bots[botIndex]
		b.Complete = true
		b.Success = success
		b.ErrorMessage = errMsg
		b.EndTime = &now
		payload = events.BotCompletedPayload{
			RunID:         runID,
			BotName:       b.BotName,
			CharacterName: b.CharacterName,
			Success:       success,
			TasksPassed:   b.TasksCompleted(),
			TasksFailed:   b.TasksFailed(),
			DurationMS:    b.Duration().Milliseconds(),
			ErrorMessage:  errMsg,
		}
	})
	if ok {
		c.publisher.PublishBotCompleted(payload)
	}
}

// awaitCompletion polls until every bot completed or the test timeout
// passes, re-emitting status so observers can track duration.
func (c *Coordinator) awaitCompletion(ctx context.Context, runID string, total int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	lastEmit := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var completed int
		c.registry.Mutate(runID, func(run *models.TestRun) {
			completed = run.BotsCompleted()
		})
		if completed >= total {
			return nil
		}
		if time.Now().After(deadline) {
			c.logger.Warn("Test timeout reached", "run_id", runID, "completed", completed, "total", total)
			return nil
		}
		if time.Since(lastEmit) >= c.cfg.StatusEmitInterval {
			lastEmit = time.Now()
			c.emitStatus(runID)
		}
	}
}

// waitForLogins polls until every bot is in the world or the setup deadline
// expires.
func (c *Coordinator) waitForLogins(ctx context.Context, clients []bot.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		live, loggedIn := 0, 0
		for _, client := range clients {
			if client == nil {
				continue
			}
			live++
			if client.LoggedIn() {
				loggedIn++
			}
		}
		if loggedIn == live {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("only %d/%d bots logged in within %s", loggedIn, live, timeout)
		}
		if err := sleepCtx(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
}

// applySetup runs privileged harness setup on every bot in parallel, then
// waits out the settle grace so server-side effects land before the route
// starts.
func (c *Coordinator) applySetup(ctx context.Context, clients []bot.Client, harness *route.HarnessSettings) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		if client == nil {
			continue
		}
		client := client
		g.Go(func() error {
			if err := client.ApplyHarnessSetup(gctx, harness); err != nil {
				return fmt.Errorf("harness setup failed for %s: %w", client.CharacterName(), err)
			}
			if c.store != nil && len(harness.CompletedQuests) > 0 {
				if err := c.store.MarkQuestsCompleted(gctx, client.CharacterName(), harness.CompletedQuests); err != nil {
					return fmt.Errorf("failed to mark quests completed for %s: %w", client.CharacterName(), err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return sleepCtx(ctx, c.cfg.SettleGrace)
}

// restoreSnapshot applies a named snapshot to every bot's character. When
// the store requires offline characters the fleet is logged out, restored,
// and logged back in; otherwise the restore happens in place.
func (c *Coordinator) restoreSnapshot(ctx context.Context, clients []bot.Client, name string) error {
	if c.store == nil {
		c.logger.Warn("restoreSnapshot requested but no state store is configured", "snapshot", name)
		return nil
	}
	exists, err := c.store.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check snapshot %q: %w", name, err)
	}
	if !exists {
		return fmt.Errorf("snapshot %q does not exist", name)
	}

	offline := c.store.RequiresOfflineForRestore()
	if offline {
		for _, client := range clients {
			if client == nil {
				continue
			}
			if err := client.Logout(ctx); err != nil {
				return fmt.Errorf("logout before restore failed: %w", err)
			}
		}
		if err := sleepCtx(ctx, c.cfg.SettleGrace); err != nil {
			return err
		}
	}

	for _, client := range clients {
		if client == nil {
			continue
		}
		if err := c.store.Restore(ctx, name, client.CharacterName()); err != nil {
			return fmt.Errorf("failed to restore snapshot %q for %s: %w", name, client.CharacterName(), err)
		}
	}

	if offline {
		for _, client := range clients {
			if client == nil {
				continue
			}
			if err := client.Login(ctx); err != nil {
				return fmt.Errorf("login after restore failed: %w", err)
			}
		}
		return c.waitForLogins(ctx, clients, c.cfg.SettleGrace+30*time.Second)
	}
	return nil
}

// disposeAll tears down every bot in parallel, bounded by its own timeout
// because the run context may already be cancelled.
func (c *Coordinator) disposeAll(clients []bot.Client) {
	if len(clients) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, client := range clients {
		if client == nil {
			continue
		}
		client := client
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Dispose(ctx); err != nil {
				c.logger.Warn("Bot disposal failed", "error", err)
			}
		}()
	}
	wg.Wait()
}

// setStatus transitions an active run and emits the status event.
func (c *Coordinator) setStatus(runID string, status models.TestRunStatus) {
	c.registry.Mutate(runID, func(run *models.TestRun) {
		run.Status = status
	})
	c.emitStatus(runID)
}

func (c *Coordinator) emitStatus(runID string) {
	var payload events.RunStatusPayload
	ok := c.registry.Mutate(runID, func(run *models.TestRun) {
		payload = events.RunStatusPayload{
			RunID:         runID,
			Status:        string(run.Status),
			BotsCompleted: run.BotsCompleted(),
			BotsTotal:     len(run.Bots),
			DurationMS:    run.Duration().Milliseconds(),
		}
	})
	if ok {
		c.publisher.PublishRunStatus(payload)
	}
}

// setupTimeout resolves a route's setup deadline: the harness value wins,
// then the configured default, then the route package fallback.
func (c *Coordinator) setupTimeout(h *route.HarnessSettings) time.Duration {
	if h.SetupTimeoutSeconds <= 0 && c.cfg.SetupTimeout > 0 {
		return c.cfg.SetupTimeout
	}
	return h.SetupTimeout()
}

func (c *Coordinator) testTimeout(h *route.HarnessSettings) time.Duration {
	if h.TestTimeoutSeconds <= 0 && c.cfg.TestTimeout > 0 {
		return c.cfg.TestTimeout
	}
	return h.TestTimeout()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newRunID() string {
	return uuid.NewString()[:8]
}
