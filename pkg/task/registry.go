package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownType is returned when a route references a task type the registry
// does not know. Unknown types are a load-time error.
var ErrUnknownType = errors.New("unknown task type")

// commonParams are the JSON fields shared by every task kind. Route task
// objects use camelCase field names.
type commonParams struct {
	Name             string  `json:"name"`
	PreDelaySeconds  float64 `json:"preDelaySeconds"`
	PostDelaySeconds float64 `json:"postDelaySeconds"`
}

type builder func(raw json.RawMessage) (Task, error)

var builders = map[string]builder{
	"Wait":                newWait,
	"LogMessage":          newLogMessage,
	"MoveToLocation":      newMoveToLocation,
	"MoveToNPC":           newMoveToNPC,
	"TalkToNPC":           newTalkToNPC,
	"AcceptQuest":         newAcceptQuest,
	"TurnInQuest":         newTurnInQuest,
	"KillMobs":            newKillMobs,
	"UseObject":           newUseObject,
	"Adventure":           newAdventure,
	"LearnSpells":         newLearnSpells,
	"AssertQuestInLog":    newAssertQuestInLog,
	"AssertQuestNotInLog": newAssertQuestNotInLog,
	"AssertHasItem":       newAssertHasItem,
	"AssertLevel":         newAssertLevel,
}

// Decode builds a task of the given type from its raw JSON parameters.
func Decode(taskType string, raw json.RawMessage) (Task, error) {
	build, ok := builders[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, taskType)
	}
	t, err := build(raw)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", taskType, err)
	}
	return t, nil
}

// Types returns the registered task type names, sorted.
func Types() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
