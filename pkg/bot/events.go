package bot

import (
	"time"

	"github.com/warbandhq/warband/pkg/task"
)

// EventKind discriminates executor events.
type EventKind string

const (
	// EventTaskCompleted is emitted after each task reaches a terminal result.
	EventTaskCompleted EventKind = "task_completed"
	// EventRouteCompleted is emitted exactly once when the route finishes.
	// It is always the executor's last event.
	EventRouteCompleted EventKind = "route_completed"
)

// Event is one executor lifecycle event. Events for a single bot are strictly
// ordered; the run's collector goroutine consumes them from a bounded channel
// attached before the executor starts, so no event is lost.
type Event struct {
	Kind    EventKind
	BotName string

	// Task completion fields.
	TaskName     string
	TaskIndex    int
	Result       task.Result
	Duration     time.Duration
	ErrorMessage string

	// Route completion fields.
	Success bool
}
