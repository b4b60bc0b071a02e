package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LCSTUDY_CONFIG", "")
	t.Setenv("LCSTUDY_DATA_DIR", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8729", cfg.ListenAddr)
	require.Equal(t, filepath.Join("data", "seeds"), cfg.SeedsDir)
	require.Equal(t, filepath.Join("data", "history.json"), cfg.HistoryFile)
	require.Equal(t, 7200, cfg.SessionTTLSec)
	require.Contains(t, cfg.PracticeLevels, 1500)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LCSTUDY_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("LCSTUDY_DATA_DIR", "/var/lib/lcstudy")
	t.Setenv("LCSTUDY_SESSION_TTL", "600")
	t.Setenv("LCSTUDY_PRACTICE_LEVELS", "1100, 1900")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Equal(t, filepath.Join("/var/lib/lcstudy", "seeds"), cfg.SeedsDir)
	require.Equal(t, 600, cfg.SessionTTLSec)
	require.Equal(t, []int{1100, 1900}, cfg.PracticeLevels)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lcstudy.yaml")
	body := "listen_addr: \":7000\"\nsession_ttl_sec: 120\nlc0_path: /opt/lc0/lc0\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("LCSTUDY_CONFIG", path)
	t.Setenv("LCSTUDY_SESSION_TTL", "900")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddr)
	require.Equal(t, "/opt/lc0/lc0", cfg.Lc0Path)
	// env wins over the file
	require.Equal(t, 900, cfg.SessionTTLSec)
}

func TestLoadBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [oops"), 0o644))

	t.Setenv("LCSTUDY_CONFIG", path)
	_, err := Load()
	require.Error(t, err)
}
