package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/warbandhq/warband/pkg/admin"
)

// SimFactory creates SimClients sharing one scripted world. When an admin
// pool is attached it provisions each account over the console the way the
// wire-protocol factory does; without one, provisioning is in-memory only
// (dry-run mode).
type SimFactory struct {
	cfg    SimConfig
	pool   *admin.Pool
	logger *slog.Logger
}

// NewSimFactory creates a factory for simulated bots. pool may be nil.
func NewSimFactory(cfg SimConfig, pool *admin.Pool, logger *slog.Logger) *SimFactory {
	return &SimFactory{
		cfg:    cfg,
		pool:   pool,
		logger: logger.With("component", "sim_factory"),
	}
}

// CreateBot provisions the account and returns a logged-out client.
// Account creation is idempotent: an account that already exists with the
// test password is reused.
func (f *SimFactory) CreateBot(ctx context.Context, spec Spec) (Client, error) {
	if spec.AccountName == "" {
		return nil, fmt.Errorf("bot spec has no account name")
	}

	if f.pool != nil {
		err := f.pool.Do(ctx, func(ctx context.Context, ch *admin.Channel) error {
			resp, err := ch.SendCommand(ctx, fmt.Sprintf("account create %s %s", spec.AccountName, TestPassword))
			if err != nil {
				return err
			}
			f.logger.Debug("Provisioned account", "account", spec.AccountName, "response", resp)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to provision account %s: %w", spec.AccountName, err)
		}
	}

	f.logger.Debug("Created sim bot", "account", spec.AccountName, "class", spec.Class, "race", spec.Race)
	c := NewSimClient(spec.AccountName, f.cfg)
	c.class = spec.Class
	return c, nil
}
