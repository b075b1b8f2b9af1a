package task

import (
	"encoding/json"
	"errors"

	"github.com/warbandhq/warband/pkg/game"
)

// TalkToNPCTask opens the gossip window of a named NPC already in range.
// Routes put a MoveToNPC task in front of it.
type TalkToNPCTask struct {
	BaseTask
	npc string
}

type talkToNPCParams struct {
	commonParams
	NPC string `json:"npc"`
}

func newTalkToNPC(raw json.RawMessage) (Task, error) {
	var p talkToNPCParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.NPC == "" {
		return nil, errors.New("npc is required")
	}
	return &TalkToNPCTask{
		BaseTask: newBase("TalkToNPC", p.commonParams),
		npc:      p.NPC,
	}, nil
}

func (t *TalkToNPCTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *TalkToNPCTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if err := c.TalkTo(t.npc); err != nil {
			return t.Failf("talk to %q: %v", t.npc, err)
		}
		return ResultSuccess
	})
}

// UseObjectTask activates a named game object (lever, chest, portal) in range.
type UseObjectTask struct {
	BaseTask
	object string
}

type useObjectParams struct {
	commonParams
	Object string `json:"object"`
}

func newUseObject(raw json.RawMessage) (Task, error) {
	var p useObjectParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Object == "" {
		return nil, errors.New("object is required")
	}
	return &UseObjectTask{
		BaseTask: newBase("UseObject", p.commonParams),
		object:   p.Object,
	}, nil
}

func (t *UseObjectTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *UseObjectTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if err := c.UseObject(t.object); err != nil {
			return t.Failf("use object %q: %v", t.object, err)
		}
		return ResultSuccess
	})
}
