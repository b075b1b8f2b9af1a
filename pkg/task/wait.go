package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/warbandhq/warband/pkg/game"
)

// WaitTask holds the bot in place for a fixed duration. The wait itself is
// exact; only the surrounding pre/post delays are jittered.
type WaitTask struct {
	BaseTask
	duration time.Duration
	deadline time.Time
}

type waitParams struct {
	commonParams
	Seconds float64 `json:"seconds"`
}

func newWait(raw json.RawMessage) (Task, error) {
	var p waitParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Seconds < 0 {
		return nil, errors.New("seconds must not be negative")
	}
	return &WaitTask{
		BaseTask: newBase("Wait", p.commonParams),
		duration: secondsToDuration(p.Seconds),
	}, nil
}

func (t *WaitTask) Start(game.Client) bool {
	t.Begin()
	t.deadline = time.Time{}
	return true
}

func (t *WaitTask) Update(c game.Client) Result {
	return t.Step(c, func(game.Client) Result {
		if t.deadline.IsZero() {
			t.deadline = time.Now().Add(t.duration)
		}
		if time.Now().Before(t.deadline) {
			return ResultRunning
		}
		return ResultSuccess
	})
}
