package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrCharacterNotFound is returned when a character name has no row in the
// characters table, typically because the bot never finished its first login.
var ErrCharacterNotFound = errors.New("character not found")

// ErrSnapshotNotFound is returned when restoring or reading a snapshot name
// that was never saved.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a named capture of a character's scalar state plus its set of
// completed quests.
type Snapshot struct {
	Name            string  `json:"name"`
	CharacterGUID   int64   `json:"character_guid"`
	Level           int     `json:"level"`
	XP              int64   `json:"xp"`
	Money           int64   `json:"money"`
	MapID           int     `json:"map_id"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Z               float64 `json:"z"`
	Orientation     float64 `json:"orientation"`
	CompletedQuests []int   `json:"completed_quests"`
}

// SnapshotManager implements the coordinator's StateStore contract over the
// character database. Schema is ensured lazily behind a once token, so
// parallel suite entries hitting the store for the first time cannot race
// the table creation.
type SnapshotManager struct {
	client *Client
	logger *slog.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewSnapshotManager wraps a database client. The schema is not touched
// until the first operation.
func NewSnapshotManager(client *Client) *SnapshotManager {
	return &SnapshotManager{
		client: client,
		logger: slog.Default().With("component", "snapshot_manager"),
	}
}

// RequiresOfflineForRestore reports whether the game server needs characters
// logged out before restored state becomes visible. Configured per
// deployment; the coordinator performs the logout/restore/login cycle when
// set.
func (m *SnapshotManager) RequiresOfflineForRestore() bool {
	return m.client.cfg.RequiresOfflineForRestore
}

// ensure creates the snapshot tables on first use. The result is latched:
// a failed ensure fails every subsequent operation with the same error.
func (m *SnapshotManager) ensure() error {
	m.ensureOnce.Do(func() {
		m.ensureErr = runMigrations(m.client.db, m.client.cfg.Database)
		if m.ensureErr == nil {
			m.logger.Debug("Snapshot schema ensured")
		}
	})
	return m.ensureErr
}

// Exists reports whether a snapshot with the given name has been saved.
func (m *SnapshotManager) Exists(ctx context.Context, name string) (bool, error) {
	if err := m.ensure(); err != nil {
		return false, err
	}
	var n int
	err := m.client.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM warband_snapshots WHERE name = $1`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot %q: %w", name, err)
	}
	return n > 0, nil
}

// Save captures characterName's current state under name. Last-writer-wins:
// any prior snapshot with the same name and its quest rows are deleted in
// the same transaction.
func (m *SnapshotManager) Save(ctx context.Context, name, characterName string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	return m.inTx(ctx, func(tx *sql.Tx) error {
		ch, err := characterByName(ctx, tx, characterName)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM warband_snapshots WHERE name = $1`, name); err != nil {
			return fmt.Errorf("failed to delete prior snapshot %q: %w", name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO warband_snapshots
				(name, character_guid, level, xp, money, map_id,
				 position_x, position_y, position_z, orientation)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			name, ch.CharacterGUID, ch.Level, ch.XP, ch.Money, ch.MapID,
			ch.X, ch.Y, ch.Z, ch.Orientation)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot %q: %w", name, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO warband_snapshot_quests (snapshot_name, quest_id)
			SELECT $1, quest_id FROM warband_character_quests WHERE character_guid = $2`,
			name, ch.CharacterGUID)
		if err != nil {
			return fmt.Errorf("failed to copy quest rows for snapshot %q: %w", name, err)
		}
		return nil
	})
}

// Restore applies the named snapshot to characterName: scalar state onto the
// characters row, quest set replacing the character's completed quests.
func (m *SnapshotManager) Restore(ctx context.Context, name, characterName string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	return m.inTx(ctx, func(tx *sql.Tx) error {
		ch, err := characterByName(ctx, tx, characterName)
		if err != nil {
			return err
		}

		snap, err := snapshotByName(ctx, tx, name)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE characters
			SET level = $1, xp = $2, money = $3, map = $4,
			    position_x = $5, position_y = $6, position_z = $7, orientation = $8
			WHERE guid = $9`,
			snap.Level, snap.XP, snap.Money, snap.MapID,
			snap.X, snap.Y, snap.Z, snap.Orientation, ch.CharacterGUID)
		if err != nil {
			return fmt.Errorf("failed to restore character state from %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM warband_character_quests WHERE character_guid = $1`,
			ch.CharacterGUID); err != nil {
			return fmt.Errorf("failed to clear quest rows: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO warband_character_quests (character_guid, quest_id)
			SELECT $1, quest_id FROM warband_snapshot_quests WHERE snapshot_name = $2`,
			ch.CharacterGUID, name)
		if err != nil {
			return fmt.Errorf("failed to restore quest rows from %q: %w", name, err)
		}
		return nil
	})
}

// Delete removes a snapshot and its quest rows. Deleting a snapshot that
// does not exist is a no-op.
func (m *SnapshotManager) Delete(ctx context.Context, name string) error {
	if err := m.ensure(); err != nil {
		return err
	}
	_, err := m.client.db.ExecContext(ctx,
		`DELETE FROM warband_snapshots WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", name, err)
	}
	return nil
}

// Get reads a snapshot and its quest set. Primarily for reports and tests.
func (m *SnapshotManager) Get(ctx context.Context, name string) (*Snapshot, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	var snap *Snapshot
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		s, err := snapshotByName(ctx, tx, name)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT quest_id FROM warband_snapshot_quests WHERE snapshot_name = $1 ORDER BY quest_id`,
			name)
		if err != nil {
			return fmt.Errorf("failed to read quest rows for %q: %w", name, err)
		}
		defer rows.Close()
		for rows.Next() {
			var q int
			if err := rows.Scan(&q); err != nil {
				return err
			}
			s.CompletedQuests = append(s.CompletedQuests, q)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		snap = s
		return nil
	})
	return snap, err
}

// MarkQuestsCompleted upserts quest completion rows for a character.
// Duplicates are no-ops on row count, so marking the same set twice is safe.
func (m *SnapshotManager) MarkQuestsCompleted(ctx context.Context, characterName string, questIDs []int) error {
	if len(questIDs) == 0 {
		return nil
	}
	if err := m.ensure(); err != nil {
		return err
	}
	return m.inTx(ctx, func(tx *sql.Tx) error {
		ch, err := characterByName(ctx, tx, characterName)
		if err != nil {
			return err
		}
		for _, q := range questIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO warband_character_quests (character_guid, quest_id)
				VALUES ($1, $2)
				ON CONFLICT (character_guid, quest_id) DO NOTHING`,
				ch.CharacterGUID, q)
			if err != nil {
				return fmt.Errorf("failed to mark quest %d completed for %s: %w", q, characterName, err)
			}
		}
		return nil
	})
}

// CompletedQuests returns the quest ids recorded for a character, ordered.
func (m *SnapshotManager) CompletedQuests(ctx context.Context, characterName string) ([]int, error) {
	if err := m.ensure(); err != nil {
		return nil, err
	}
	var out []int
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		ch, err := characterByName(ctx, tx, characterName)
		if err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT quest_id FROM warband_character_quests WHERE character_guid = $1 ORDER BY quest_id`,
			ch.CharacterGUID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var q int
			if err := rows.Scan(&q); err != nil {
				return err
			}
			out = append(out, q)
		}
		return rows.Err()
	})
	return out, err
}

// inTx runs fn inside a transaction, rolling back on error. Snapshot
// save/delete of the same name stays atomic with respect to concurrent
// callers because each sequence commits or rolls back as a unit.
func (m *SnapshotManager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// characterByName reads the scalar state of one character row.
func characterByName(ctx context.Context, tx *sql.Tx, name string) (*Snapshot, error) {
	ch := &Snapshot{}
	err := tx.QueryRowContext(ctx, `
		SELECT guid, level, xp, money, map,
		       position_x, position_y, position_z, orientation
		FROM characters WHERE name = $1`, name).Scan(
		&ch.CharacterGUID, &ch.Level, &ch.XP, &ch.Money, &ch.MapID,
		&ch.X, &ch.Y, &ch.Z, &ch.Orientation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read character %s: %w", name, err)
	}
	return ch, nil
}

// snapshotByName reads one snapshot's scalar state.
func snapshotByName(ctx context.Context, tx *sql.Tx, name string) (*Snapshot, error) {
	s := &Snapshot{Name: name}
	err := tx.QueryRowContext(ctx, `
		SELECT character_guid, level, xp, money, map_id,
		       position_x, position_y, position_z, orientation
		FROM warband_snapshots WHERE name = $1`, name).Scan(
		&s.CharacterGUID, &s.Level, &s.XP, &s.Money, &s.MapID,
		&s.X, &s.Y, &s.Z, &s.Orientation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}
	return s, nil
}
