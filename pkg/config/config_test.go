package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, int64(10*1024*1024), cfg.Import.MaxFileSizeBytes)
	assert.Equal(t, 2*time.Minute, cfg.Import.Timeout)
	assert.Equal(t, "UNI", cfg.Registration.Prefix)
	assert.Contains(t, cfg.Import.AllowedMIMEs, "text/csv")
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("IMPORT_TIMEOUT", "30s")
	t.Setenv("REGISTRATION_PREFIX", " esc ")
	t.Setenv("STATS_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Import.Timeout)
	assert.Equal(t, "ESC", cfg.Registration.Prefix)
	assert.Equal(t, 5*time.Minute, cfg.Stats.CacheTTL)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
