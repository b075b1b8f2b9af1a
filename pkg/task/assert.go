package task

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warbandhq/warband/pkg/game"
)

// Assert tasks are pure predicates over client state. On failure the recorded
// message is the user-provided string (or a default) augmented with the
// observed value.

// AssertQuestInLogTask fails unless the quest is currently in the log.
type AssertQuestInLogTask struct {
	BaseTask
	questID int
	message string
}

type assertQuestParams struct {
	commonParams
	QuestID int    `json:"questId"`
	Message string `json:"message"`
}

func newAssertQuestInLog(raw json.RawMessage) (Task, error) {
	var p assertQuestParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.QuestID <= 0 {
		return nil, errors.New("questId is required")
	}
	return &AssertQuestInLogTask{
		BaseTask: newBase("AssertQuestInLog", p.commonParams),
		questID:  p.QuestID,
		message:  p.Message,
	}, nil
}

func (t *AssertQuestInLogTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *AssertQuestInLogTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if c.QuestInLog(t.questID) {
			return ResultSuccess
		}
		return t.Fail(assertMessage(t.message, fmt.Sprintf("quest %d is not in the log", t.questID)))
	})
}

// AssertQuestNotInLogTask fails if the quest is currently in the log.
type AssertQuestNotInLogTask struct {
	BaseTask
	questID int
	message string
}

func newAssertQuestNotInLog(raw json.RawMessage) (Task, error) {
	var p assertQuestParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.QuestID <= 0 {
		return nil, errors.New("questId is required")
	}
	return &AssertQuestNotInLogTask{
		BaseTask: newBase("AssertQuestNotInLog", p.commonParams),
		questID:  p.QuestID,
		message:  p.Message,
	}, nil
}

func (t *AssertQuestNotInLogTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *AssertQuestNotInLogTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		if !c.QuestInLog(t.questID) {
			return ResultSuccess
		}
		return t.Fail(assertMessage(t.message, fmt.Sprintf("quest %d is still in the log", t.questID)))
	})
}

// AssertHasItemTask fails unless the character holds at least count of the
// item entry (count defaults to 1).
type AssertHasItemTask struct {
	BaseTask
	itemEntry int
	count     int
	message   string
}

type assertHasItemParams struct {
	commonParams
	ItemEntry int    `json:"itemEntry"`
	Count     *int   `json:"count"`
	Message   string `json:"message"`
}

func newAssertHasItem(raw json.RawMessage) (Task, error) {
	var p assertHasItemParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.ItemEntry <= 0 {
		return nil, errors.New("itemEntry is required")
	}
	count := 1
	if p.Count != nil {
		if *p.Count <= 0 {
			return nil, errors.New("count must be at least 1")
		}
		count = *p.Count
	}
	return &AssertHasItemTask{
		BaseTask:  newBase("AssertHasItem", p.commonParams),
		itemEntry: p.ItemEntry,
		count:     count,
		message:   p.Message,
	}, nil
}

func (t *AssertHasItemTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *AssertHasItemTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		have := c.ItemCount(t.itemEntry)
		if have >= t.count {
			return ResultSuccess
		}
		return t.Fail(assertMessage(t.message,
			fmt.Sprintf("item %d count is %d, want at least %d", t.itemEntry, have, t.count)))
	})
}

// AssertLevelTask fails unless the character is at least minLevel.
type AssertLevelTask struct {
	BaseTask
	minLevel int
	message  string
}

type assertLevelParams struct {
	commonParams
	MinLevel int    `json:"minLevel"`
	Message  string `json:"message"`
}

func newAssertLevel(raw json.RawMessage) (Task, error) {
	var p assertLevelParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.MinLevel <= 0 {
		return nil, errors.New("minLevel is required")
	}
	return &AssertLevelTask{
		BaseTask: newBase("AssertLevel", p.commonParams),
		minLevel: p.MinLevel,
		message:  p.Message,
	}, nil
}

func (t *AssertLevelTask) Start(game.Client) bool {
	t.Begin()
	return true
}

func (t *AssertLevelTask) Update(c game.Client) Result {
	return t.Step(c, func(c game.Client) Result {
		lvl := c.Level()
		if lvl >= t.minLevel {
			return ResultSuccess
		}
		return t.Fail(assertMessage(t.message,
			fmt.Sprintf("level is %d, want at least %d", lvl, t.minLevel)))
	})
}

func assertMessage(custom, observed string) string {
	if custom == "" {
		return observed
	}
	return custom + " (" + observed + ")"
}
