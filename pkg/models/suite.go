package models

import "time"

// SuiteStatus represents the lifecycle state of a suite run.
type SuiteStatus string

const (
	SuiteStatusPending   SuiteStatus = "pending"
	SuiteStatusRunning   SuiteStatus = "running"
	SuiteStatusCompleted SuiteStatus = "completed"
	SuiteStatusFailed    SuiteStatus = "failed"
	SuiteStatusCancelled SuiteStatus = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s SuiteStatus) IsTerminal() bool {
	switch s {
	case SuiteStatusCompleted, SuiteStatusFailed, SuiteStatusCancelled:
		return true
	}
	return false
}

// SuiteRun is one execution of a test suite: the constituent runs plus
// pass/fail/skip bookkeeping. TestsPassed + TestsFailed + TestsSkipped equals
// TotalTests once the suite is terminal.
type SuiteRun struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	Parallel     bool        `json:"parallel"`
	Author       string      `json:"author,omitempty"`
	Status       SuiteStatus `json:"status"`
	Runs         []*TestRun  `json:"runs"`
	TestsPassed  int         `json:"tests_passed"`
	TestsFailed  int         `json:"tests_failed"`
	TestsSkipped int         `json:"tests_skipped"`
	TotalTests   int         `json:"total_tests"`
	ErrorMessage string      `json:"error_message,omitempty"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      *time.Time  `json:"end_time,omitempty"`
}

// Duration returns elapsed suite time, frozen at EndTime once terminal.
func (s *SuiteRun) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	if s.StartTime.IsZero() {
		return 0
	}
	return time.Since(s.StartTime)
}

// Clone returns a deep copy of the suite run and its constituent runs.
func (s *SuiteRun) Clone() *SuiteRun {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Runs = make([]*TestRun, len(s.Runs))
	for i, r := range s.Runs {
		cp.Runs[i] = r.Clone()
	}
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return &cp
}
