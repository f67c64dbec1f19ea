package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFleetMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFleet(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFleet(), cfg)
}

func TestLoadFleetOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind_address: 0.0.0.0
port: 9090
journal_path: events.db
agents:
  - method: refresh
    token: tok-1
  - method: legacy
    grow_id: tester
    password: hunter2
    socks5:
      address: 127.0.0.1:1080
`), 0o644))

	cfg, err := LoadFleet(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "events.db", cfg.JournalPath)
	assert.Equal(t, 3, cfg.HTTPAttempts, "unset keys keep defaults")
	require.Len(t, cfg.Agents, 2)
	assert.Equal(t, "tok-1", cfg.Agents[0].Token)
	assert.Equal(t, "127.0.0.1:1080", cfg.Agents[1].SOCKS5.Address)
}

func TestLoadFleetMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [nope"), 0o644))

	_, err := LoadFleet(path)
	assert.Error(t, err)
}
