package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 600*time.Millisecond, cfg.Capture.ScrollSettle())
	assert.Equal(t, 3, cfg.Capture.StableRounds)
	assert.Equal(t, 400*time.Millisecond, cfg.Capture.PersistDebounce())
	assert.Equal(t, 50, cfg.Capture.HeightMarginPx)
	assert.Equal(t, "chat-export", cfg.Export.Name)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
capture:
  scroll_settle_ms: 250
  stable_rounds: 5
export:
  name: my-thread
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.ScrollSettle())
	assert.Equal(t, 5, cfg.Capture.StableRounds)
	assert.Equal(t, "my-thread", cfg.Export.Name)
	// Untouched sections keep their defaults.
	assert.Equal(t, 400*time.Millisecond, cfg.Capture.PersistDebounce())
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Capture.StableRounds)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATSCRIBE_DB", "/tmp/override.db")
	t.Setenv("CHATSCRIBE_STABLE_ROUNDS", "7")
	t.Setenv("CHATSCRIBE_SCROLL_SETTLE_MS", "bogus")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 7, cfg.Capture.StableRounds)
	assert.Equal(t, 600, cfg.Capture.ScrollSettleMs, "unparseable override is ignored")
}
