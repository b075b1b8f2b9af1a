package runner

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warbandhq/warband/pkg/bot"
)

func TestBuildFactory(t *testing.T) {
	f, err := BuildFactory("sim", bot.SimConfig{}, nil, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, f)

	f, err = BuildFactory("", bot.SimConfig{}, nil, slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, f, "empty kind defaults to the simulator")

	_, err = BuildFactory("wire", bot.SimConfig{}, nil, slog.Default())
	require.Error(t, err)

	_, err = BuildFactory("telnet", bot.SimConfig{}, nil, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown")
}
