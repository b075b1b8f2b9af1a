package task

import (
	"encoding/json"
	"errors"

	"github.com/warbandhq/warband/pkg/game"
)

// KillMobsTask fights mobs of a given name until the kill count for this task
// reaches the target. The client owns target acquisition and the actual
// combat; the task only re-engages when the bot drops out of combat.
type KillMobsTask struct {
	BaseTask
	mob   string
	count int

	baseline int
}

type killMobsParams struct {
	commonParams
	Mob   string `json:"mob"`
	Count int    `json:"count"`
}

func newKillMobs(raw json.RawMessage) (Task, error) {
	var p killMobsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Mob == "" {
		return nil, errors.New("mob is required")
	}
	if p.Count <= 0 {
		return nil, errors.New("count must be at least 1")
	}
	return &KillMobsTask{
		BaseTask: newBase("KillMobs", p.commonParams),
		mob:      p.Mob,
		count:    p.Count,
	}, nil
}

func (t *KillMobsTask) Start(c game.Client) bool {
	t.Begin()
	t.baseline = c.KillCount(t.mob)
	return true
}

func (t *KillMobsTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if c.KillCount(t.mob)-t.baseline >= t.count {
			return ResultSuccess
		}
		if !c.InCombat() {
			if err := c.EngageMob(t.mob); err != nil {
				return t.Failf("engage %q: %v", t.mob, err)
			}
		}
		return ResultRunning
	})
}
