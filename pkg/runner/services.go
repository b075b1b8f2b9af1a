package runner

import "context"

// StateStore is the snapshot persistence contract consumed by the
// coordinator. Implemented by store.SnapshotManager; nil means snapshots are
// unavailable and snapshot directives degrade to warnings or failures.
type StateStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, name, characterName string) error
	Restore(ctx context.Context, name, characterName string) error
	Delete(ctx context.Context, name string) error
	MarkQuestsCompleted(ctx context.Context, characterName string, questIDs []int) error
	RequiresOfflineForRestore() bool
}

// TaskRecorder counts task completions for metrics. Nil-safe by contract.
type TaskRecorder interface {
	RecordTaskCompleted(result string)
}
