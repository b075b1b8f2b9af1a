// Package models defines the result tree shared by coordinators, the API
// layer, and the report generator: test runs, per-bot results, per-task
// results, and suite runs with their aggregate counters.
package models

import (
	"time"

	"github.com/warbandhq/warband/pkg/task"
)

// TestRunStatus represents the lifecycle state of a test run.
type TestRunStatus string

const (
	RunStatusPending    TestRunStatus = "pending"
	RunStatusSettingUp  TestRunStatus = "setting_up"
	RunStatusRunning    TestRunStatus = "running"
	RunStatusCompleted  TestRunStatus = "completed"
	RunStatusFailed     TestRunStatus = "failed"
	RunStatusTimedOut   TestRunStatus = "timed_out"
	RunStatusCancelled  TestRunStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal runs are never
// mutated again.
func (s TestRunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled:
		return true
	}
	return false
}

// ValidRunStatuses lists every status accepted by API filters.
var ValidRunStatuses = []TestRunStatus{
	RunStatusPending, RunStatusSettingUp, RunStatusRunning,
	RunStatusCompleted, RunStatusFailed, RunStatusTimedOut, RunStatusCancelled,
}

// TaskResultEntry records the outcome of one task for one bot.
type TaskResultEntry struct {
	TaskName     string        `json:"task_name"`
	Result       task.Result   `json:"result"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// BotResult accumulates the outcome of one bot's pass through a route.
// It is mutated only by its run's event collector until the run is terminal.
type BotResult struct {
	BotName       string            `json:"bot_name"`
	CharacterName string            `json:"character_name,omitempty"`
	Class         string            `json:"class"`
	Success       bool              `json:"success"`
	Complete      bool              `json:"complete"`
	TotalTasks    int               `json:"total_tasks"`
	Tasks         []TaskResultEntry `json:"tasks"`
	Logs          []string          `json:"logs,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty"`
}

// maxBotLogLines bounds per-bot log capture so a chatty route cannot grow a
// BotResult without limit. Oldest lines are dropped first.
const maxBotLogLines = 500

// AppendLog records a log line, evicting the oldest line past the cap.
func (b *BotResult) AppendLog(line string) {
	b.Logs = append(b.Logs, line)
	if len(b.Logs) > maxBotLogLines {
		b.Logs = b.Logs[len(b.Logs)-maxBotLogLines:]
	}
}

// TasksCompleted counts task entries that ended in Success.
func (b *BotResult) TasksCompleted() int { return b.countResults(task.ResultSuccess) }

// TasksFailed counts task entries that ended in Failed.
func (b *BotResult) TasksFailed() int { return b.countResults(task.ResultFailed) }

// TasksSkipped counts task entries that ended in Skipped.
func (b *BotResult) TasksSkipped() int { return b.countResults(task.ResultSkipped) }

func (b *BotResult) countResults(r task.Result) int {
	n := 0
	for _, t := range b.Tasks {
		if t.Result == r {
			n++
		}
	}
	return n
}

// Duration returns elapsed time since the bot started, frozen at EndTime once
// the bot is complete.
func (b *BotResult) Duration() time.Duration {
	if b.EndTime != nil {
		return b.EndTime.Sub(b.StartTime)
	}
	if b.StartTime.IsZero() {
		return 0
	}
	return time.Since(b.StartTime)
}

// Clone returns a deep copy safe to hand to readers outside the run's
// collector goroutine.
func (b *BotResult) Clone() *BotResult {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Tasks = append([]TaskResultEntry(nil), b.Tasks...)
	cp.Logs = append([]string(nil), b.Logs...)
	if b.EndTime != nil {
		t := *b.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// TestRun is one execution of a harnessed route across N bots.
type TestRun struct {
	ID           string        `json:"id"`
	RouteName    string        `json:"route_name"`
	RoutePath    string        `json:"route_path"`
	Author       string        `json:"author,omitempty"`
	Status       TestRunStatus `json:"status"`
	Bots         []*BotResult  `json:"bots"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
}

// BotsCompleted counts bots whose routes reached a terminal outcome.
func (r *TestRun) BotsCompleted() int {
	n := 0
	for _, b := range r.Bots {
		if b.Complete {
			n++
		}
	}
	return n
}

// BotsPassed counts completed bots that succeeded.
func (r *TestRun) BotsPassed() int {
	n := 0
	for _, b := range r.Bots {
		if b.Complete && b.Success {
			n++
		}
	}
	return n
}

// BotsFailed counts completed bots that did not succeed.
func (r *TestRun) BotsFailed() int {
	n := 0
	for _, b := range r.Bots {
		if b.Complete && !b.Success {
			n++
		}
	}
	return n
}

// Passed reports whether the run completed with every bot succeeding. This is
// the predicate suites use to decide whether dependents may run.
func (r *TestRun) Passed() bool {
	return r.Status == RunStatusCompleted && r.BotsFailed() == 0
}

// Duration returns elapsed run time, frozen at EndTime once terminal.
func (r *TestRun) Duration() time.Duration {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	if r.StartTime.IsZero() {
		return 0
	}
	return time.Since(r.StartTime)
}

// Clone returns a deep copy of the run and its bot results.
func (r *TestRun) Clone() *TestRun {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Bots = make([]*BotResult, len(r.Bots))
	for i, b := range r.Bots {
		cp.Bots[i] = b.Clone()
	}
	if r.EndTime != nil {
		t := *r.EndTime
		cp.EndTime = &t
	}
	return &cp
}
