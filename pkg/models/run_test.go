package models

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warbandhq/warband/pkg/task"
)

func TestRunStatusIsTerminal(t *testing.T) {
	terminal := map[TestRunStatus]bool{
		RunStatusPending:   false,
		RunStatusSettingUp: false,
		RunStatusRunning:   false,
		RunStatusCompleted: true,
		RunStatusFailed:    true,
		RunStatusTimedOut:  true,
		RunStatusCancelled: true,
	}
	for status, want := range terminal {
		assert.Equal(t, want, status.IsTerminal(), "status %s", status)
	}
	assert.Len(t, ValidRunStatuses, len(terminal))
}

func TestBotCounters(t *testing.T) {
	run := &TestRun{
		Status: RunStatusCompleted,
		Bots: []*BotResult{
			{BotName: "b1", Complete: true, Success: true},
			{BotName: "b2", Complete: true, Success: false},
			{BotName: "b3", Complete: false, Success: false},
		},
	}

	assert.Equal(t, 2, run.BotsCompleted())
	assert.Equal(t, 1, run.BotsPassed())
	assert.Equal(t, 1, run.BotsFailed())
	assert.False(t, run.Passed(), "a completed run with a failed bot did not pass")

	run.Bots[1].Success = true
	assert.True(t, run.Passed())

	run.Status = RunStatusTimedOut
	assert.False(t, run.Passed(), "only completed runs can pass")
}

func TestTaskCounters(t *testing.T) {
	b := &BotResult{Tasks: []TaskResultEntry{
		{TaskName: "Wait", Result: task.ResultSuccess},
		{TaskName: "KillMobs", Result: task.ResultSuccess},
		{TaskName: "AssertLevel", Result: task.ResultFailed},
		{TaskName: "TurnInQuest", Result: task.ResultSkipped},
	}}

	assert.Equal(t, 2, b.TasksCompleted())
	assert.Equal(t, 1, b.TasksFailed())
	assert.Equal(t, 1, b.TasksSkipped())
}

func TestAppendLogCapsOldestFirst(t *testing.T) {
	b := &BotResult{}
	for i := 0; i < maxBotLogLines+25; i++ {
		b.AppendLog(fmt.Sprintf("line %d", i))
	}

	assert.Len(t, b.Logs, maxBotLogLines)
	assert.Equal(t, "line 25", b.Logs[0])
	assert.Equal(t, fmt.Sprintf("line %d", maxBotLogLines+24), b.Logs[len(b.Logs)-1])
}

func TestDurationFrozenAtEndTime(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	end := start.Add(10 * time.Minute)

	run := &TestRun{StartTime: start, EndTime: &end}
	assert.Equal(t, 10*time.Minute, run.Duration())

	run.EndTime = nil
	assert.GreaterOrEqual(t, run.Duration(), time.Hour)

	var zero TestRun
	assert.Zero(t, zero.Duration())

	bot := &BotResult{StartTime: start, EndTime: &end}
	assert.Equal(t, 10*time.Minute, bot.Duration())
	assert.Zero(t, (&BotResult{}).Duration())
}

func TestRunCloneIsDeep(t *testing.T) {
	end := time.Now().UTC()
	run := &TestRun{
		ID:     "r1",
		Status: RunStatusCompleted,
		Bots: []*BotResult{{
			BotName: "b1",
			Tasks:   []TaskResultEntry{{TaskName: "Wait", Result: task.ResultSuccess}},
			Logs:    []string{"hello"},
			EndTime: &end,
		}},
		EndTime: &end,
	}

	cp := run.Clone()
	cp.Bots[0].BotName = "changed"
	cp.Bots[0].Tasks[0].Result = task.ResultFailed
	cp.Bots[0].Logs[0] = "changed"
	*cp.EndTime = end.Add(time.Hour)
	*cp.Bots[0].EndTime = end.Add(time.Hour)

	assert.Equal(t, "b1", run.Bots[0].BotName)
	assert.Equal(t, task.ResultSuccess, run.Bots[0].Tasks[0].Result)
	assert.Equal(t, "hello", run.Bots[0].Logs[0])
	assert.True(t, run.EndTime.Equal(end))
	assert.True(t, run.Bots[0].EndTime.Equal(end))

	var nilRun *TestRun
	assert.Nil(t, nilRun.Clone())
}
