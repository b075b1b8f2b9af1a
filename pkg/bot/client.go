// Package bot holds the bot client contract consumed by the coordinators,
// the per-bot task executor state machine, and the in-memory simulator used
// by tests and dry runs.
package bot

import (
	"context"

	"github.com/warbandhq/warband/pkg/game"
	"github.com/warbandhq/warband/pkg/route"
)

// TestPassword is the fixed password used for all provisioned test accounts.
const TestPassword = "test1234"

// Spec identifies one bot to create: which account it plays on and what
// character it rolls on a fresh login.
type Spec struct {
	AccountName string
	Class       string
	Race        string
}

// Client is an opaque handle to one game client. The wire-protocol
// implementation lives outside this repo; SimClient implements the same
// contract deterministically in memory.
//
// Lifecycle: Start connects and logs in asynchronously; callers poll
// Connected/LoggedIn. CharacterName is available after login (a fresh
// account rolls its character as a side effect of first login). Dispose is
// terminal and idempotent.
type Client interface {
	game.Client

	// Start begins connecting and logging in. Non-blocking beyond the
	// initial dial; login progress is observed via Connected and LoggedIn.
	Start(ctx context.Context) error
	// Connected reports whether the client holds a live server connection.
	Connected() bool
	// LoggedIn reports whether a character is in the world.
	LoggedIn() bool
	// CharacterName returns the selected character's name, empty before login.
	CharacterName() string

	// ApplyHarnessSetup performs the privileged pre-route setup: level up,
	// item grants, prerequisite quest completion, teleport to the start
	// position, and equipment sets where supported. Best-effort: routes
	// validate preconditions with assert tasks.
	ApplyHarnessSetup(ctx context.Context, h *route.HarnessSettings) error

	// Logout returns the character to the character screen without closing
	// the connection. Used for offline snapshot restore.
	Logout(ctx context.Context) error
	// Login re-enters the world after a Logout.
	Login(ctx context.Context) error

	// SetLogSink routes the client's Log lines to the orchestrator's
	// per-bot capture. Set before the route starts.
	SetLogSink(sink func(line string))

	// Dispose logs out and tears the client down. Idempotent.
	Dispose(ctx context.Context) error
}

// Factory creates logged-out bot clients, provisioning their accounts
// idempotently (an existing account with the test password is reused).
type Factory interface {
	CreateBot(ctx context.Context, spec Spec) (Client, error)
}
