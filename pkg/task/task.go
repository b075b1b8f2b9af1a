// Package task defines the executor-facing task contract and the built-in
// task kinds a route can reference.
//
// Every task exposes the same three operations against a game client:
//
//	Start(client) bool      : one-shot init; false means fail-immediate
//	Update(client) Result   : non-blocking, called on a fixed cadence
//	Cleanup(client)         : exactly once after a terminal Update or cancel
//
// The base implementation latches Update through three phases,
// preDelay → body → postDelay, with 0–50% uniform jitter added to each
// configured delay. Tasks record their own error message before returning
// Failed. Tasks know nothing about routes, runs, or coordinators.
package task

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/warbandhq/warband/pkg/game"
)

// Result is the outcome of one Update tick. Everything except Running is
// terminal.
type Result string

const (
	ResultRunning Result = "running"
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// IsTerminal reports whether the result ends the task.
func (r Result) IsTerminal() bool { return r != ResultRunning }

// Task is one step in a route.
type Task interface {
	// Name identifies the task in reports and events.
	Name() string
	// ErrorMessage returns the failure message recorded by the task, empty
	// while the task has not failed.
	ErrorMessage() string
	// Start initializes the task. Returning false fails the task immediately
	// without an Update cycle. Start is called again when a looped route
	// wraps around, so it must fully reset task state.
	Start(c game.Client) bool
	// Update advances the task by one tick. It must not block.
	Update(c game.Client) Result
	// Cleanup releases anything the task holds. Idempotent.
	Cleanup(c game.Client)
}

type phase int

const (
	phaseInit phase = iota
	phasePre
	phaseBody
	phasePost
	phaseDone
)

// BaseTask carries the name, error message, and the pre/post delay latch
// shared by every task kind. Concrete tasks embed it and route their Update
// through Step.
type BaseTask struct {
	name      string
	errMsg    string
	preDelay  time.Duration
	postDelay time.Duration

	phase    phase
	phaseEnd time.Time
	latched  Result
}

func newBase(defaultName string, p commonParams) BaseTask {
	name := p.Name
	if name == "" {
		name = defaultName
	}
	return BaseTask{
		name:      name,
		preDelay:  secondsToDuration(p.PreDelaySeconds),
		postDelay: secondsToDuration(p.PostDelaySeconds),
	}
}

func (b *BaseTask) Name() string         { return b.name }
func (b *BaseTask) ErrorMessage() string { return b.errMsg }

// Begin resets the delay latch and error state. Concrete tasks call it at the
// top of Start so the task can run again when its route loops.
func (b *BaseTask) Begin() {
	b.phase = phaseInit
	b.phaseEnd = time.Time{}
	b.latched = ResultRunning
	b.errMsg = ""
}

// Cleanup is a no-op by default; tasks that hold client state override it.
func (b *BaseTask) Cleanup(game.Client) {}

// Fail records the message and returns Failed.
func (b *BaseTask) Fail(msg string) Result {
	b.errMsg = msg
	return ResultFailed
}

// Failf records a formatted message and returns Failed.
func (b *BaseTask) Failf(format string, args ...any) Result {
	return b.Fail(fmt.Sprintf(format, args...))
}

// Step drives the three-phase latch around the task body. Delay deadlines are
// measured in wall time from the moment the phase is entered; a paused
// executor simply stops ticking, so paused time counts against the delay.
func (b *BaseTask) Step(c game.Client, body func(game.Client) Result) Result {
	switch b.phase {
	case phaseInit:
		b.phase = phasePre
		b.phaseEnd = time.Now().Add(jittered(b.preDelay))
		fallthrough
	case phasePre:
		if time.Now().Before(b.phaseEnd) {
			return ResultRunning
		}
		b.phase = phaseBody
		fallthrough
	case phaseBody:
		r := body(c)
		if !r.IsTerminal() {
			return ResultRunning
		}
		b.latched = r
		b.phase = phasePost
		b.phaseEnd = time.Now().Add(jittered(b.postDelay))
		fallthrough
	case phasePost:
		if time.Now().Before(b.phaseEnd) {
			return ResultRunning
		}
		b.phase = phaseDone
		return b.latched
	default: // phaseDone
		return b.latched
	}
}

// jittered adds 0–50% uniform jitter to d. Zero and negative delays stay
// zero so undelayed tasks run their body on the first tick.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(d/2+1)
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
