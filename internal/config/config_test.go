package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUDGETBUDDY_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "https://api.comdirect.de", cfg.Comdirect.BaseURL)
	assert.Equal(t, "https://api.ynab.com/v1", cfg.YNAB.BaseURL)
	assert.Equal(t, "YNAB_TOKEN", cfg.YNAB.TokenEnv)
	assert.Contains(t, cfg.Database.Path, "budgetbuddy.db")
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[database]
path = "/tmp/custom.db"

[ynab]
budget_id = "b-123"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("BUDGETBUDDY_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, "b-123", cfg.YNAB.BudgetID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSecret(t *testing.T) {
	t.Setenv("BB_TEST_SECRET", "  hunter2 ")
	assert.Equal(t, "hunter2", Secret("BB_TEST_SECRET"))
	assert.Equal(t, "", Secret("BB_TEST_SECRET_MISSING"))
}
