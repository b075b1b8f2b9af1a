package events

import "time"

// Payload structs are marshaled verbatim onto the wire. Every payload
// carries its event type, the id of the subject, and an RFC3339 timestamp.
// The publisher injects event_id for catch-up position tracking.

// RunStartedPayload announces a new test run entering setup.
type RunStartedPayload struct {
	Type      string    `json:"type"` // EventTypeRunStarted
	RunID     string    `json:"run_id"`
	RouteName string    `json:"route_name"`
	RoutePath string    `json:"route_path"`
	BotCount  int       `json:"bot_count"`
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunStatusPayload reports a run status transition or a periodic progress
// re-emit while the run executes.
type RunStatusPayload struct {
	Type          string    `json:"type"` // EventTypeRunStatus
	RunID         string    `json:"run_id"`
	Status        string    `json:"status"`
	BotsCompleted int       `json:"bots_completed"`
	BotsTotal     int       `json:"bots_total"`
	DurationMS    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// RunCompletedPayload reports a run reaching a terminal status.
type RunCompletedPayload struct {
	Type         string    `json:"type"` // EventTypeRunCompleted
	RunID        string    `json:"run_id"`
	RouteName    string    `json:"route_name"`
	Status       string    `json:"status"`
	BotsPassed   int       `json:"bots_passed"`
	BotsFailed   int       `json:"bots_failed"`
	BotsTotal    int       `json:"bots_total"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// BotCompletedPayload reports one bot finishing its route.
type BotCompletedPayload struct {
	Type          string    `json:"type"` // EventTypeBotCompleted
	RunID         string    `json:"run_id"`
	BotName       string    `json:"bot_name"`
	CharacterName string    `json:"character_name,omitempty"`
	Success       bool      `json:"success"`
	TasksPassed   int       `json:"tasks_passed"`
	TasksFailed   int       `json:"tasks_failed"`
	DurationMS    int64     `json:"duration_ms"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskCompletedPayload reports one task finishing for one bot. Published to
// the run's own channel only: high-frequency detail the run list does not
// need.
type TaskCompletedPayload struct {
	Type         string    `json:"type"` // EventTypeTaskCompleted
	RunID        string    `json:"run_id"`
	BotName      string    `json:"bot_name"`
	TaskName     string    `json:"task_name"`
	TaskIndex    int       `json:"task_index"`
	Result       string    `json:"result"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SuiteStartedPayload announces a suite run starting.
type SuiteStartedPayload struct {
	Type       string    `json:"type"` // EventTypeSuiteStarted
	SuiteID    string    `json:"suite_id"`
	Name       string    `json:"name"`
	Parallel   bool      `json:"parallel"`
	TotalTests int       `json:"total_tests"`
	Author     string    `json:"author,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SuiteCompletedPayload reports a suite run reaching a terminal status.
type SuiteCompletedPayload struct {
	Type         string    `json:"type"` // EventTypeSuiteCompleted
	SuiteID      string    `json:"suite_id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	TestsPassed  int       `json:"tests_passed"`
	TestsFailed  int       `json:"tests_failed"`
	TestsSkipped int       `json:"tests_skipped"`
	TotalTests   int       `json:"total_tests"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
