package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuiteStatusIsTerminal(t *testing.T) {
	assert.False(t, SuiteStatusPending.IsTerminal())
	assert.False(t, SuiteStatusRunning.IsTerminal())
	assert.True(t, SuiteStatusCompleted.IsTerminal())
	assert.True(t, SuiteStatusFailed.IsTerminal())
	assert.True(t, SuiteStatusCancelled.IsTerminal())
}

func TestSuiteRunDuration(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute)
	end := start.Add(5 * time.Minute)

	sr := &SuiteRun{StartTime: start, EndTime: &end}
	assert.Equal(t, 5*time.Minute, sr.Duration())

	sr.EndTime = nil
	assert.GreaterOrEqual(t, sr.Duration(), 30*time.Minute)

	var zero SuiteRun
	assert.Zero(t, zero.Duration())
}

func TestSuiteRunCloneIsDeep(t *testing.T) {
	end := time.Now().UTC()
	sr := &SuiteRun{
		ID:          "s1",
		Status:      SuiteStatusCompleted,
		Runs:        []*TestRun{{ID: "r1", Status: RunStatusCompleted}},
		TestsPassed: 1,
		TotalTests:  1,
		EndTime:     &end,
	}

	cp := sr.Clone()
	cp.Runs[0].ID = "changed"
	cp.Runs[0].Status = RunStatusFailed
	*cp.EndTime = end.Add(time.Hour)

	assert.Equal(t, "r1", sr.Runs[0].ID)
	assert.Equal(t, RunStatusCompleted, sr.Runs[0].Status)
	assert.True(t, sr.EndTime.Equal(end))

	var nilSuite *SuiteRun
	assert.Nil(t, nilSuite.Clone())
}
