package task

import (
	"encoding/json"
	"errors"

	"github.com/warbandhq/warband/pkg/game"
)

// LogMessageTask writes a line into the bot's captured log and succeeds.
type LogMessageTask struct {
	BaseTask
	message string
}

type logMessageParams struct {
	commonParams
	Message string `json:"message"`
}

func newLogMessage(raw json.RawMessage) (Task, error) {
	var p logMessageParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Message == "" {
		return nil, errors.New("message is required")
	}
	return &LogMessageTask{
		BaseTask: newBase("LogMessage", p.commonParams),
		message:  p.Message,
	}, nil
}

func (t *LogMessageTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *LogMessageTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		c.Log(t.message)
		return ResultSuccess
	})
}
