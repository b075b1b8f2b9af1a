package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/warbandhq/warband/pkg/game"
)

// AdventureTask hands the bot to the client's autonomous grind behavior until
// a wall-clock budget elapses or a target level is reached, whichever is
// configured (at least one must be).
type AdventureTask struct {
	BaseTask
	duration   time.Duration
	untilLevel int

	deadline time.Time
	active   bool
}

type adventureParams struct {
	commonParams
	Seconds    float64 `json:"seconds"`
	UntilLevel int     `json:"untilLevel"`
}

func newAdventure(raw json.RawMessage) (Task, error) {
	var p adventureParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Seconds <= 0 && p.UntilLevel <= 0 {
		return nil, errors.New("either seconds or untilLevel is required")
	}
	return &AdventureTask{
		BaseTask:   newBase("Adventure", p.commonParams),
		duration:   secondsToDuration(p.Seconds),
		untilLevel: p.UntilLevel,
	}, nil
}

func (t *AdventureTask) Start(game.Client) bool {
	t.Begin()
	t.deadline = time.Time{}
	t.active = false
	return true
}

func (t *AdventureTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if !t.active {
			c.StartAdventure()
			t.active = true
			if t.duration > 0 {
				t.deadline = time.Now().Add(t.duration)
			}
		}
		if t.untilLevel > 0 && c.Level() >= t.untilLevel {
			return ResultSuccess
		}
		if !t.deadline.IsZero() && !time.Now().Before(t.deadline) {
			return ResultSuccess
		}
		return ResultRunning
	})
}

func (t *AdventureTask) Cleanup(c game.Client) {
	if t.active {
		c.StopAdventure()
		t.active = false
	}
}
