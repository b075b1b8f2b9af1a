package task

import (
	"encoding/json"
	"fmt"

	"github.com/warbandhq/warband/pkg/game"
)

// LearnSpellsTask trains every spell available for the bot's class and level.
type LearnSpellsTask struct {
	BaseTask
}

func newLearnSpells(raw json.RawMessage) (Task, error) {
	var p commonParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return &LearnSpellsTask{BaseTask: newBase("LearnSpells", p)}, nil
}

func (t *LearnSpellsTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *LearnSpellsTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		n, err := c.LearnClassSpells()
		if err != nil {
			return t.Failf("learn class spells: %v", err)
		}
		if n > 0 {
			c.Log(fmt.Sprintf("learned %d spells", n))
		}
		return ResultSuccess
	})
}
