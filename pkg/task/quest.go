package task

import (
	"encoding/json"
	"errors"

	"github.com/warbandhq/warband/pkg/game"
)

// AcceptQuestTask takes a quest from a giver in interaction range. Accepting
// a quest already in the log is a success, which keeps looped routes and
// restored snapshots idempotent.
type AcceptQuestTask struct {
	BaseTask
	questID  int
	accepted bool
}

type questParams struct {
	commonParams
	QuestID int `json:"questId"`
}

func newAcceptQuest(raw json.RawMessage) (Task, error) {
	var p questParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.QuestID <= 0 {
		return nil, errors.New("questId is required")
	}
	return &AcceptQuestTask{
		BaseTask: newBase("AcceptQuest", p.commonParams),
		questID:  p.QuestID,
	}, nil
}

func (t *AcceptQuestTask) Start(game.Client) bool {
	t.Begin()
	t.accepted = false
	return true
}

func (t *AcceptQuestTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if c.QuestInLog(t.questID) {
			return ResultSuccess
		}
		if !t.accepted {
			if err := c.AcceptQuest(t.questID); err != nil {
				return t.Failf("accept quest %d: %v", t.questID, err)
			}
			t.accepted = true
		}
		// The server confirms acceptance asynchronously; poll until the
		// quest shows up in the log. The run timeout bounds a quest that
		// never appears.
		return ResultRunning
	})
}

// TurnInQuestTask completes a quest at its receiver. It waits for objectives
// to finish (a preceding KillMobs may still be settling) before turning in.
type TurnInQuestTask struct {
	BaseTask
	questID  int
	turnedIn bool
}

func newTurnInQuest(raw json.RawMessage) (Task, error) {
	var p questParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.QuestID <= 0 {
		return nil, errors.New("questId is required")
	}
	return &TurnInQuestTask{
		BaseTask: newBase("TurnInQuest", p.commonParams),
		questID:  p.QuestID,
	}, nil
}

func (t *TurnInQuestTask) Start(game.Client) bool {
	t.Begin()
	t.turnedIn = false
	return true
}

func (t *TurnInQuestTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if t.turnedIn {
			if c.QuestInLog(t.questID) {
				return ResultRunning
			}
			return ResultSuccess
		}
		if !c.QuestInLog(t.questID) {
			return t.Failf("quest %d is not in the log", t.questID)
		}
		if !c.QuestObjectivesComplete(t.questID) {
			return ResultRunning
		}
		if err := c.TurnInQuest(t.questID); err != nil {
			return t.Failf("turn in quest %d: %v", t.questID, err)
		}
		t.turnedIn = true
		return ResultRunning
	})
}
