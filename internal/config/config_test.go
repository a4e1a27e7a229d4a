package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MESHVIEW_CONFIG", filepath.Join(home, "config.toml"))
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultNodeURL, cfg.Node.URL)
	require.Zero(t, cfg.Node.RetryDelay)
	require.Equal(t, DefaultPresets(), cfg.Node.Presets)
	require.Equal(t, 1000, cfg.UI.MaxBlocks)
	require.Equal(t, 50*time.Millisecond, cfg.UI.Tick)
	require.Equal(t, 200, cfg.Database.KeepSessions)
	require.Equal(t, filepath.Join(home, ".local", "share", "meshview", "meshview.db"), cfg.Database.Path)
	require.Equal(t, "info", cfg.Log.Level)
	require.Empty(t, cfg.Metrics.Addr)
}

func TestLoadFile(t *testing.T) {
	home := isolate(t)
	data := []byte(`
[node]
url = "ws://10.0.0.5:9944"
retry_delay = "3s"

[ui]
max_blocks = 50
tick = "100ms"

[metrics]
addr = "127.0.0.1:9100"
`)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), data, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "ws://10.0.0.5:9944", cfg.Node.URL)
	require.Equal(t, 3*time.Second, cfg.Node.RetryDelay)
	require.Equal(t, 50, cfg.UI.MaxBlocks)
	require.Equal(t, 100*time.Millisecond, cfg.UI.Tick)
	require.Equal(t, "127.0.0.1:9100", cfg.Metrics.Addr)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("MESHVIEW_NODE_URL", "wss://env.example")
	t.Setenv("MESHVIEW_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "wss://env.example", cfg.Node.URL)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadNormalizesNonsense(t *testing.T) {
	home := isolate(t)
	data := []byte(`
[node]
url = "   "
retry_delay = "-5s"

[ui]
max_blocks = -1
tick = "0s"
`)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), data, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultNodeURL, cfg.Node.URL)
	require.Zero(t, cfg.Node.RetryDelay)
	require.Equal(t, 1000, cfg.UI.MaxBlocks)
	require.Equal(t, 50*time.Millisecond, cfg.UI.Tick)
	require.Equal(t, DefaultKeepSessions, cfg.Database.KeepSessions)
}

func TestLoadKeepSessionsNeverZero(t *testing.T) {
	home := isolate(t)
	for _, raw := range []string{"0", "-3"} {
		data := []byte("[database]\nkeep_sessions = " + raw + "\n")
		require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), data, 0o600))

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, DefaultKeepSessions, cfg.Database.KeepSessions, raw)
	}
}

func TestLoadPresetsFromFile(t *testing.T) {
	home := isolate(t)
	data := []byte(`
[node.presets]
MyNode = "ws://10.0.0.7:9944"
Archive = "wss://archive.example"
`)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), data, 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"MyNode":  "ws://10.0.0.7:9944",
		"Archive": "wss://archive.example",
	}, cfg.Node.Presets)
	require.Equal(t, []string{"Archive", "MyNode"}, PresetNames(cfg.Node.Presets))

	node, err := ResolveNode("mynode", cfg.Node.Presets)
	require.NoError(t, err)
	require.Equal(t, "MyNode", node.Name)
}

func TestLoadKeepsDefaultPresetsWithoutTable(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[node]\nurl = \"ws://x:1\"\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DefaultPresets(), cfg.Node.Presets)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte("[node\nurl="), 0o600))

	_, err := Load()
	require.ErrorContains(t, err, "read config")
}

func TestSaveThenLoad(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Node.URL = "wss://saved.example"
	cfg.Node.RetryDelay = 2 * time.Second
	cfg.UI.MaxBlocks = 250
	require.NoError(t, Save(cfg))

	again, err := Load()
	require.NoError(t, err)
	require.Equal(t, "wss://saved.example", again.Node.URL)
	require.Equal(t, 2*time.Second, again.Node.RetryDelay)
	require.Equal(t, 250, again.UI.MaxBlocks)
	require.Equal(t, cfg.Node.Presets, again.Node.Presets)
}

func TestSaveWritesReadableTOML(t *testing.T) {
	home := isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	cfg.Metrics.Addr = ":9615"
	require.NoError(t, Save(cfg))
	require.Equal(t, filepath.Join(home, "config.toml"), Path())

	data, err := os.ReadFile(Path())
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, `tick = "50ms"`)
	require.Contains(t, text, `retry_delay = "0s"`)
	require.Contains(t, text, `addr = ":9615"`)
	require.Contains(t, text, "[node.presets]")
}
