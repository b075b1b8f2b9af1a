package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warbandhq/warband/pkg/route"
	"github.com/warbandhq/warband/pkg/task"
)

// DefaultTickInterval is the cadence at which an executor calls task Update.
const DefaultTickInterval = 100 * time.Millisecond

// Executor drives one bot through a route: an ordered task cursor with
// per-task lifecycle (Start → Update ticks → Cleanup) and loop handling.
//
// Executors are single-goroutine machines: Tick, Pause, Resume, and
// Deactivate must be called from the goroutine that owns the executor
// (normally Run). Events are emitted into the channel supplied at
// construction; subscribers attach before Start so early events cannot be
// lost.
type Executor struct {
	botName string
	client  Client
	loop    bool
	tasks   []task.Task
	events  chan<- Event
	logger  *slog.Logger

	active       bool
	paused       bool
	index        int
	pendingStart bool
	taskStart    time.Time
}

// NewExecutor materializes a fresh task list from the route for one bot.
// The events channel receives every TaskCompleted and the single terminal
// RouteCompleted; the caller owns the channel and must drain it.
func NewExecutor(r *route.TaskRoute, client Client, botName string, events chan<- Event, logger *slog.Logger) (*Executor, error) {
	tasks, err := r.NewTasks()
	if err != nil {
		return nil, err
	}
	return &Executor{
		botName: botName,
		client:  client,
		loop:    r.Loop(),
		tasks:   tasks,
		events:  events,
		logger:  logger.With("component", "executor", "bot", botName, "route", r.Name()),
	}, nil
}

// Start activates the executor at the first task. An empty route refuses to
// activate.
func (e *Executor) Start() bool {
	if len(e.tasks) == 0 {
		e.logger.Warn("Refusing to start executor with empty route")
		return false
	}
	e.active = true
	e.paused = false
	e.pendingStart = false
	e.index = 0
	e.startCurrent()
	return true
}

// Active reports whether the executor is still driving tasks.
func (e *Executor) Active() bool { return e.active }

// Pause freezes the state machine: ticks become no-ops and the current
// task's delay clock keeps running (paused wall time counts against delays).
func (e *Executor) Pause() { e.paused = true }

// Resume unfreezes a paused executor.
func (e *Executor) Resume() { e.paused = false }

// Deactivate stops the executor, cleaning up the current task. No
// RouteCompleted is emitted: cancellation is not a route outcome.
func (e *Executor) Deactivate() {
	if !e.active {
		return
	}
	e.active = false
	if e.index < len(e.tasks) {
		e.tasks[e.index].Cleanup(e.client)
	}
}

// Tick advances the current task by one update. Panics from task code are
// contained and converted to a Failed result.
func (e *Executor) Tick() {
	if !e.active || e.paused || e.index >= len(e.tasks) {
		return
	}
	if e.pendingStart {
		e.pendingStart = false
		e.startCurrent()
		return
	}

	current := e.tasks[e.index]
	result, errMsg := e.safeUpdate(current)
	if !result.IsTerminal() {
		return
	}

	current.Cleanup(e.client)
	e.emit(Event{
		Kind:         EventTaskCompleted,
		BotName:      e.botName,
		TaskName:     current.Name(),
		TaskIndex:    e.index,
		Result:       result,
		Duration:     time.Since(e.taskStart),
		ErrorMessage: errMsg,
	})

	if result == task.ResultFailed {
		if e.loop {
			e.logger.Info("Task failed on looped route, restarting from the beginning",
				"task", current.Name(), "error", errMsg)
			e.index = 0
			e.startCurrent()
			return
		}
		e.finish(false, errMsg)
		return
	}

	e.advance()
}

// Run ticks the executor at the given interval until it deactivates or the
// context is cancelled. A non-positive interval uses DefaultTickInterval.
func (e *Executor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for e.active {
		select {
		case <-ctx.Done():
			e.Deactivate()
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// safeUpdate calls the task's Update, recovering panics into a Failed result.
// Failures carry the task's recorded error message.
func (e *Executor) safeUpdate(t task.Task) (result task.Result, errMsg string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Task panicked", "task", t.Name(), "panic", r)
			result = task.ResultFailed
			errMsg = fmt.Sprintf("task panicked: %v", r)
		}
	}()
	result = t.Update(e.client)
	if result == task.ResultFailed {
		errMsg = t.ErrorMessage()
	}
	return result, errMsg
}

// advance moves the cursor to the next task, wrapping on looped routes and
// finishing the route past the last task otherwise.
func (e *Executor) advance() {
	e.index++
	if e.index >= len(e.tasks) {
		if e.loop {
			e.index = 0
		} else {
			e.finish(true, "")
			return
		}
	}
	e.startCurrent()
}

// startCurrent runs the current task's Start, handling fail-immediate.
func (e *Executor) startCurrent() {
	current := e.tasks[e.index]
	e.taskStart = time.Now()
	if current.Start(e.client) {
		return
	}

	// Fail-immediate: recorded as Failed without an Update cycle.
	errMsg := current.ErrorMessage()
	if errMsg == "" {
		errMsg = "task failed to start"
	}
	current.Cleanup(e.client)
	e.emit(Event{
		Kind:         EventTaskCompleted,
		BotName:      e.botName,
		TaskName:     current.Name(),
		TaskIndex:    e.index,
		Result:       task.ResultFailed,
		Duration:     time.Since(e.taskStart),
		ErrorMessage: errMsg,
	})
	if e.loop {
		// A looped route that fails on its first task repeats forever; the
		// retry is paced to the tick cadence and bounded only by the
		// coordinator's test timeout.
		e.index = 0
		e.pendingStart = true
		return
	}
	e.finish(false, errMsg)
}

func (e *Executor) finish(success bool, errMsg string) {
	e.active = false
	e.emit(Event{
		Kind:         EventRouteCompleted,
		BotName:      e.botName,
		Success:      success,
		ErrorMessage: errMsg,
	})
}

// emit delivers the event, blocking until the collector accepts it. Ordering
// within one bot is preserved by construction: a single goroutine emits.
func (e *Executor) emit(ev Event) {
	e.events <- ev
}
