package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/warbandhq/warband/pkg/game"
	"github.com/warbandhq/warband/pkg/route"
)

// SimConfig scripts the world a SimClient plays in. The zero value is a
// usable empty world with fast defaults.
type SimConfig struct {
	// LoginDelay is how long login takes after Start. Default 20ms.
	LoginDelay time.Duration
	// MoveSpeed is movement speed in world units per second. Default 500.
	MoveSpeed float64
	// KillDuration is how long one mob kill takes. Default 20ms.
	KillDuration time.Duration
	// SpawnPosition is where fresh characters enter the world.
	SpawnPosition game.Position
	// NPCs maps NPC names to their positions.
	NPCs map[string]game.Position
	// Objects lists usable object names present in the world.
	Objects []string
	// QuestGivers maps quest IDs to the set of quests offered; empty means
	// every quest is offered (permissive world).
	QuestGivers map[int]bool

	// Failure injection.
	FailLogin  bool  // login never completes
	SetupError error // ApplyHarnessSetup returns this
	MoveError  error // MoveTo returns this
}

func (c SimConfig) withDefaults() SimConfig {
	if c.LoginDelay <= 0 {
		c.LoginDelay = 20 * time.Millisecond
	}
	if c.MoveSpeed <= 0 {
		c.MoveSpeed = 500
	}
	if c.KillDuration <= 0 {
		c.KillDuration = 20 * time.Millisecond
	}
	return c
}

// SimClient is a deterministic in-memory implementation of the Client
// contract. It models just enough world state for every task kind: position
// and timed movement, levels, items, a quest log, timed mob kills, and the
// privileged harness setup. All methods are safe for concurrent use; the
// executor and the coordinator poll it from different goroutines.
type SimClient struct {
	account string
	class   string
	cfg     SimConfig

	mu            sync.Mutex
	connected     bool
	loggedIn      bool
	loginAt       time.Time
	disposed      bool
	characterName string

	level       int
	items       map[int]int
	questLog    map[int]bool
	completed   map[int]bool
	spellsKnown int
	equipped    []string

	pos         game.Position
	moveTarget  game.Position
	moveArrival time.Time
	moving      bool

	engagedMob string
	combatEnd  time.Time
	kills      map[string]int

	adventuring bool
	logSink     func(line string)
	logs        []string
}

// NewSimClient creates a simulated client for the given account.
func NewSimClient(account string, cfg SimConfig) *SimClient {
	return &SimClient{
		account:   account,
		cfg:       cfg.withDefaults(),
		level:     1,
		items:     make(map[int]int),
		questLog:  make(map[int]bool),
		completed: make(map[int]bool),
		kills:     make(map[string]int),
		pos:       cfg.SpawnPosition,
	}
}

// --- lifecycle ---

func (s *SimClient) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return errors.New("client disposed")
	}
	s.connected = true
	if !s.cfg.FailLogin {
		s.loginAt = time.Now().Add(s.cfg.LoginDelay)
	}
	return nil
}

func (s *SimClient) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *SimClient) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.loggedIn
}

func (s *SimClient) CharacterName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.characterName
}

func (s *SimClient) ApplyHarnessSetup(_ context.Context, h *route.HarnessSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.SetupError != nil {
		return s.cfg.SetupError
	}
	if lvl := h.StartingLevel(); lvl > s.level {
		s.level = lvl
	}
	for _, item := range h.Items {
		s.items[item.Entry] += item.Count
	}
	for _, q := range h.CompletedQuests {
		s.completed[q] = true
	}
	if sets := h.EquipmentSetsFor(s.class); len(sets) > 0 {
		s.equipped = append([]string(nil), sets...)
	}
	if h.StartPosition != nil {
		s.pos = *h.StartPosition
		s.moving = false
	}
	return nil
}

// EquippedSets lists the equipment sets applied during harness setup.
func (s *SimClient) EquippedSets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.equipped...)
}

func (s *SimClient) Logout(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.loginAt = time.Time{}
	return nil
}

func (s *SimClient) Login(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errors.New("not connected")
	}
	s.loginAt = time.Now().Add(s.cfg.LoginDelay)
	return nil
}

func (s *SimClient) Dispose(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.connected = false
	s.loggedIn = false
	return nil
}

// SetLogSink routes Log lines to the given function in addition to the
// internal capture. The coordinator uses it to append to the BotResult.
func (s *SimClient) SetLogSink(sink func(line string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSink = sink
}

// Logs returns the lines captured so far.
func (s *SimClient) Logs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

// --- game.Client ---

func (s *SimClient) Log(msg string) {
	s.mu.Lock()
	s.logs = append(s.logs, msg)
	sink := s.logSink
	s.mu.Unlock()
	if sink != nil {
		sink(msg)
	}
}

func (s *SimClient) Position() game.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.pos
}

func (s *SimClient) MoveTo(pos game.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.MoveError != nil {
		return s.cfg.MoveError
	}
	s.settle()
	if pos.MapID != s.pos.MapID {
		return fmt.Errorf("cannot path from map %d to map %d", s.pos.MapID, pos.MapID)
	}
	dist := game.Distance(s.pos, pos)
	s.moveTarget = pos
	s.moveArrival = time.Now().Add(time.Duration(dist / s.cfg.MoveSpeed * float64(time.Second)))
	s.moving = true
	return nil
}

func (s *SimClient) IsMoving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.moving
}

func (s *SimClient) StopMoving() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moving = false
}

func (s *SimClient) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *SimClient) ItemCount(entry int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[entry]
}

func (s *SimClient) QuestInLog(questID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questLog[questID]
}

func (s *SimClient) QuestObjectivesComplete(questID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Simulated objectives complete the moment the quest is in the log.
	return s.questLog[questID]
}

func (s *SimClient) AcceptQuest(questID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cfg.QuestGivers) > 0 && !s.cfg.QuestGivers[questID] {
		return fmt.Errorf("no quest giver offers quest %d", questID)
	}
	if s.completed[questID] {
		return fmt.Errorf("quest %d already completed", questID)
	}
	s.questLog[questID] = true
	return nil
}

func (s *SimClient) TurnInQuest(questID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.questLog[questID] {
		return fmt.Errorf("quest %d is not in the log", questID)
	}
	delete(s.questLog, questID)
	s.completed[questID] = true
	return nil
}

func (s *SimClient) NPCPosition(name string) (game.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.cfg.NPCs[name]
	return pos, ok
}

func (s *SimClient) TalkTo(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cfg.NPCs[name]; !ok {
		return fmt.Errorf("NPC %q is not here", name)
	}
	return nil
}

func (s *SimClient) UseObject(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.cfg.Objects {
		if obj == name {
			return nil
		}
	}
	return fmt.Errorf("object %q is not here", name)
}

func (s *SimClient) EngageMob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	if s.engagedMob != "" {
		return nil
	}
	s.engagedMob = name
	s.combatEnd = time.Now().Add(s.cfg.KillDuration)
	return nil
}

func (s *SimClient) InCombat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.engagedMob != ""
}

func (s *SimClient) KillCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.kills[name]
}

func (s *SimClient) StartAdventure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adventuring = true
}

func (s *SimClient) StopAdventure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adventuring = false
}

func (s *SimClient) LearnClassSpells() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One spell per even level, learned once.
	available := s.level / 2
	learned := available - s.spellsKnown
	if learned < 0 {
		learned = 0
	}
	s.spellsKnown += learned
	return learned, nil
}

// settle applies time-driven transitions: pending login, movement arrival,
// and combat resolution. Callers hold s.mu.
func (s *SimClient) settle() {
	now := time.Now()
	if !s.loggedIn && !s.loginAt.IsZero() && now.After(s.loginAt) {
		s.loggedIn = true
		s.characterName = simCharacterName(s.account)
	}
	if s.moving && now.After(s.moveArrival) {
		s.pos = s.moveTarget
		s.moving = false
	}
	if s.engagedMob != "" && now.After(s.combatEnd) {
		s.kills[s.engagedMob]++
		s.engagedMob = ""
	}
}

// simCharacterName derives a deterministic character name from the account
// name: "a_1" becomes "SimA1".
func simCharacterName(account string) string {
	var b strings.Builder
	b.WriteString("Sim")
	upper := true
	for _, r := range account {
		switch {
		case r == '_' || r == '-':
			upper = true
		case upper:
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
