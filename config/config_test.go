package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 8000, cfg.StartingLifePoints)
	assert.Equal(t, 7*24*time.Hour, cfg.DuelTTL)
	assert.Equal(t, "participants", cfg.BroadcastMode)
	assert.Equal(t, 5*time.Second, cfg.FeedPollInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("STARTING_LIFE_POINTS", "4000")
	t.Setenv("BROADCAST_MODE", "all")
	t.Setenv("DUEL_TTL", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 4000, cfg.StartingLifePoints)
	assert.Equal(t, "all", cfg.BroadcastMode)
	assert.Equal(t, 24*time.Hour, cfg.DuelTTL)
}

func TestLoadRejectsBadBroadcastMode(t *testing.T) {
	t.Setenv("BROADCAST_MODE", "everyone")

	_, err := Load()
	assert.Error(t, err)
}
