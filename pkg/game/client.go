package game

// Client is the capability surface a task sees: observation of one logged-in
// character's state plus the non-blocking verbs tasks drive. The wire-protocol
// client implements it against a live server; the in-repo simulator implements
// it in memory. All methods must return promptly; long-running actions are
// started here and observed by polling.
type Client interface {
	// Log appends a line to the bot's captured log.
	Log(msg string)

	// Position reports the character's current location.
	Position() Position
	// MoveTo begins pathing toward pos. Progress is observed via Position
	// and IsMoving; a client that cannot path reports an error immediately.
	MoveTo(pos Position) error
	// IsMoving reports whether a movement order is still in progress.
	IsMoving() bool
	// StopMoving cancels any in-progress movement order. Safe to call when
	// idle.
	StopMoving()

	// Level reports the character's current level.
	Level() int
	// ItemCount reports how many of the given item entry the character holds.
	ItemCount(entry int) int

	// QuestInLog reports whether the quest is currently in the quest log.
	QuestInLog(questID int) bool
	// QuestObjectivesComplete reports whether a quest in the log is ready to
	// turn in. False when the quest is not in the log.
	QuestObjectivesComplete(questID int) bool
	// AcceptQuest takes the quest from a giver in interaction range.
	AcceptQuest(questID int) error
	// TurnInQuest completes the quest at a receiver in interaction range.
	TurnInQuest(questID int) error

	// NPCPosition locates a nearby NPC by name.
	NPCPosition(name string) (Position, bool)
	// TalkTo opens the gossip/interaction window of a named NPC in range.
	TalkTo(name string) error
	// UseObject activates a named game object (lever, chest, portal) in range.
	UseObject(name string) error

	// EngageMob begins combat with the nearest mob of the given name. The
	// client keeps fighting (and re-acquiring) until disengaged or dead.
	EngageMob(name string) error
	// InCombat reports whether the character is currently fighting.
	InCombat() bool
	// KillCount reports how many mobs of the given name this session killed.
	KillCount(name string) int

	// StartAdventure hands control to the client's autonomous grind behavior;
	// StopAdventure returns control to the route.
	StartAdventure()
	StopAdventure()

	// LearnClassSpells trains every spell available for the current class and
	// level, returning how many were learned.
	LearnClassSpells() (int, error)
}
