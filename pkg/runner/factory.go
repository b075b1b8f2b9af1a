package runner

import (
	"fmt"
	"log/slog"

	"github.com/warbandhq/warband/pkg/admin"
	"github.com/warbandhq/warband/pkg/bot"
)

// BuildFactory selects the bot client implementation by name. "sim" (and
// the empty string) runs the in-memory simulator. "wire" is reserved for
// the real game-protocol client and is rejected until that client ships;
// configuration accepts it so deployments can flip a single value later.
func BuildFactory(kind string, simCfg bot.SimConfig, pool *admin.Pool, logger *slog.Logger) (bot.Factory, error) {
	switch kind {
	case "", "sim":
		return bot.NewSimFactory(simCfg, pool, logger), nil
	case "wire":
		return nil, fmt.Errorf("bot factory %q is not built into this binary", kind)
	default:
		return nil, fmt.Errorf("unknown bot factory %q", kind)
	}
}
