// Package events provides real-time event delivery for test orchestration:
// typed payloads, an in-process publisher with per-channel catch-up buffers,
// and a WebSocket connection manager for dashboard push.
//
// The orchestrator is a single process, so distribution is in-memory: the
// publisher stores every event in a bounded ring buffer per channel and
// broadcasts it to subscribed WebSocket connections. Late subscribers replay
// missed events from the buffer; if more events were missed than the buffer
// holds, a catchup.overflow message tells the client to refetch state over
// REST instead of paginating.
package events

// Event types delivered to subscribers.
const (
	EventTypeRunStarted    = "run.started"
	EventTypeRunStatus     = "run.status"
	EventTypeRunCompleted  = "run.completed"
	EventTypeBotCompleted  = "bot.completed"
	EventTypeTaskCompleted = "task.completed"

	EventTypeSuiteStarted   = "suite.started"
	EventTypeSuiteCompleted = "suite.completed"
)

// RunsChannel carries run-level lifecycle events for every run. The run
// list page subscribes to this.
const RunsChannel = "runs"

// SuitesChannel carries suite-level lifecycle events for every suite.
const SuitesChannel = "suites"

// RunChannel returns the channel for one run's events (per-bot and per-task
// detail). Format: "run:{run_id}".
func RunChannel(runID string) string {
	return "run:" + runID
}

// SuiteChannel returns the channel for one suite run's events.
// Format: "suite:{suite_id}".
func SuiteChannel(suiteID string) string {
	return "suite:" + suiteID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // e.g. "runs", "run:abc123"
	LastEventID *int64 `json:"last_event_id,omitempty"` // for catchup
}
