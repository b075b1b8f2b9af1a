// Package route defines the immutable TaskRoute model, its declarative
// HarnessSettings, and the JSON loader that turns route files into runnable
// routes.
package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warbandhq/warband/pkg/game"
	"github.com/warbandhq/warband/pkg/task"
)

// Default timeouts applied when a harness leaves them unset.
const (
	DefaultSetupTimeout = 120 * time.Second
	DefaultTestTimeout  = 600 * time.Second
)

// DefaultClass is assigned when a harness declares no class roster.
const DefaultClass = "Warrior"

// ItemGrant is one item stack granted during harness setup.
type ItemGrant struct {
	Entry int `json:"entry"`
	Count int `json:"count"`
}

// HarnessSettings is the declarative recipe for instantiating bots for a
// route: how many, on which accounts, and what state to apply before the
// route starts.
type HarnessSettings struct {
	BotCount            int                `json:"botCount"`
	AccountPrefix       string             `json:"accountPrefix"`
	Classes             []string           `json:"classes,omitempty"`
	Race                string             `json:"race,omitempty"`
	Level               int                `json:"level,omitempty"`
	Items               []ItemGrant        `json:"items,omitempty"`
	CompletedQuests     []int              `json:"completedQuests,omitempty"`
	StartPosition       *game.Position     `json:"startPosition,omitempty"`
	SetupTimeoutSeconds int                `json:"setupTimeoutSeconds,omitempty"`
	TestTimeoutSeconds  int                `json:"testTimeoutSeconds,omitempty"`
	RestoreSnapshot     string             `json:"restoreSnapshot,omitempty"`
	SaveSnapshot        string             `json:"saveSnapshot,omitempty"`
	EquipmentSets       []string           `json:"equipmentSets,omitempty"`
	ClassEquipmentSets  map[string]string  `json:"classEquipmentSets,omitempty"`
}

// Validate rejects harnesses that cannot produce a usable bot fleet.
func (h *HarnessSettings) Validate() error {
	var errs []error
	if h.BotCount < 1 {
		errs = append(errs, fmt.Errorf("botCount must be at least 1, got %d", h.BotCount))
	}
	if h.AccountPrefix == "" {
		errs = append(errs, errors.New("accountPrefix is required"))
	}
	if h.Level < 0 {
		errs = append(errs, fmt.Errorf("level must not be negative, got %d", h.Level))
	}
	for i, item := range h.Items {
		if item.Entry <= 0 || item.Count <= 0 {
			errs = append(errs, fmt.Errorf("items[%d]: entry and count must be positive", i))
		}
	}
	for i, q := range h.CompletedQuests {
		if q <= 0 {
			errs = append(errs, fmt.Errorf("completedQuests[%d]: quest id must be positive", i))
		}
	}
	if h.SetupTimeoutSeconds < 0 || h.TestTimeoutSeconds < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// EquipmentSetsFor returns the equipment sets to apply for a class: the
// class-specific set when one is configured, otherwise the shared list.
// Class matching is case-insensitive.
func (h *HarnessSettings) EquipmentSetsFor(class string) []string {
	for c, set := range h.ClassEquipmentSets {
		if set != "" && strings.EqualFold(c, class) {
			return []string{set}
		}
	}
	return h.EquipmentSets
}

// ClassForBot picks the class for bot i, round-robin over the roster.
func (h *HarnessSettings) ClassForBot(i int) string {
	if len(h.Classes) == 0 {
		return DefaultClass
	}
	return h.Classes[i%len(h.Classes)]
}

// AccountNameForBot derives the account username for bot i (1-based suffix).
func (h *HarnessSettings) AccountNameForBot(i int) string {
	return h.AccountPrefix + strconv.Itoa(i+1)
}

// StartingLevel returns the configured level, treating unset as 1.
func (h *HarnessSettings) StartingLevel() int {
	if h.Level < 1 {
		return 1
	}
	return h.Level
}

// SetupTimeout returns the login/setup deadline, defaulted when unset.
func (h *HarnessSettings) SetupTimeout() time.Duration {
	if h.SetupTimeoutSeconds <= 0 {
		return DefaultSetupTimeout
	}
	return time.Duration(h.SetupTimeoutSeconds) * time.Second
}

// TestTimeout returns the route execution deadline, defaulted when unset.
func (h *HarnessSettings) TestTimeout() time.Duration {
	if h.TestTimeoutSeconds <= 0 {
		return DefaultTestTimeout
	}
	return time.Duration(h.TestTimeoutSeconds) * time.Second
}

// NeedsSetup reports whether any privileged in-game setup has to run before
// the route starts. A harness of level 1 with no items, quests, equipment
// sets, or position is equivalent to no setup at all.
func (h *HarnessSettings) NeedsSetup() bool {
	return h.StartingLevel() > 1 ||
		len(h.Items) > 0 ||
		len(h.CompletedQuests) > 0 ||
		len(h.EquipmentSets) > 0 ||
		len(h.ClassEquipmentSets) > 0 ||
		h.StartPosition != nil
}

// TaskRoute is an immutable, validated route: metadata plus the task specs
// needed to build executors. Tasks are stateful, so the route never exposes
// shared instances; each bot materializes its own via NewTasks.
type TaskRoute struct {
	name        string
	description string
	loop        bool
	harness     *HarnessSettings
	specs       []json.RawMessage
	taskNames   []string
}

type routeFile struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Loop        bool              `json:"loop,omitempty"`
	Harness     *HarnessSettings  `json:"harness,omitempty"`
	Tasks       []json.RawMessage `json:"tasks"`
}

type taskTypeProbe struct {
	Type string `json:"type"`
}

// Parse decodes and validates route JSON. Task parameters are validated
// eagerly so a broken route fails at load, not mid-run.
func Parse(data []byte) (*TaskRoute, error) {
	var rf routeFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("invalid route JSON: %w", err)
	}
	if rf.Harness != nil {
		if err := rf.Harness.Validate(); err != nil {
			return nil, fmt.Errorf("route %q harness: %w", rf.Name, err)
		}
	}
	if len(rf.Tasks) == 0 {
		return nil, fmt.Errorf("route %q has no tasks", rf.Name)
	}

	names := make([]string, 0, len(rf.Tasks))
	for i, raw := range rf.Tasks {
		var probe taskTypeProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("route %q tasks[%d]: %w", rf.Name, i, err)
		}
		t, err := task.Decode(probe.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("route %q tasks[%d]: %w", rf.Name, i, err)
		}
		names = append(names, t.Name())
	}

	return &TaskRoute{
		name:        rf.Name,
		description: rf.Description,
		loop:        rf.Loop,
		harness:     rf.Harness,
		specs:       rf.Tasks,
		taskNames:   names,
	}, nil
}

func (r *TaskRoute) Name() string              { return r.name }
func (r *TaskRoute) Description() string       { return r.description }
func (r *TaskRoute) Loop() bool                { return r.loop }
func (r *TaskRoute) Harness() *HarnessSettings { return r.harness }
func (r *TaskRoute) TaskCount() int            { return len(r.specs) }

// IsTest reports whether the route can run as a test: only harnessed routes
// can, a bare route may still drive a single already-connected bot.
func (r *TaskRoute) IsTest() bool { return r.harness != nil }

// TaskNames returns the reporting names of the route's tasks, in order.
func (r *TaskRoute) TaskNames() []string {
	return append([]string(nil), r.taskNames...)
}

// NewTasks materializes a fresh task list for one executor. Specs were
// validated by Parse, so errors here indicate registry changes mid-process.
func (r *TaskRoute) NewTasks() ([]task.Task, error) {
	tasks := make([]task.Task, 0, len(r.specs))
	for i, raw := range r.specs {
		var probe taskTypeProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("route %q tasks[%d]: %w", r.name, i, err)
		}
		t, err := task.Decode(probe.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("route %q tasks[%d]: %w", r.name, i, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// MarshalJSON serializes the route back to its file form. Task specs are
// emitted verbatim, so parse → marshal → parse round-trips structurally.
func (r *TaskRoute) MarshalJSON() ([]byte, error) {
	return json.Marshal(routeFile{
		Name:        r.name,
		Description: r.description,
		Loop:        r.loop,
		Harness:     r.harness,
		Tasks:       r.specs,
	})
}
