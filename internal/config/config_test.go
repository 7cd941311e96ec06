package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "earnings-tracker/internal/errors"
)

func TestLoadCreatesTemplatesAndUsesDefaults(t *testing.T) {
	t.Setenv("ALPHA_VANTAGE_API_KEY", "")
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	assert.Equal(t, 12*time.Second, cfg.Provider.MinInterval)
	assert.Equal(t, 60*time.Second, cfg.Provider.Cooldown)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, 5, cfg.Calendar.MaxAttempts)
	assert.Equal(t, 7, cfg.Calendar.MaxSpanDays)
	assert.Equal(t, ConventionCloseToClose, cfg.Alignment.Convention)
	assert.Equal(t, filepath.Join(dir, "earnings.db"), cfg.Store.Path)
	assert.Equal(t, dir, cfg.Dir())
}

func TestLoadReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[provider]
min_interval = "1s"
max_retries = 5

[alignment]
convention = "legacy-next-open"
unspecified_as = "BMO"

[server]
port = 8080
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Provider.MinInterval)
	assert.Equal(t, 5, cfg.Provider.MaxRetries)
	assert.Equal(t, ConventionLegacyNextOpen, cfg.Alignment.Convention)
	assert.Equal(t, "BMO", cfg.Alignment.UnspecifiedAs)
	assert.Equal(t, 8080, cfg.Server.Port)
	// untouched keys keep their defaults
	assert.Equal(t, 60*time.Second, cfg.Provider.Cooldown)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALPHA_VANTAGE_API_KEY", "env-key")
	t.Setenv("EARNINGS_DB_PATH", "/tmp/other.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Credentials.AlphaVantage.APIKey)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ALPHA_VANTAGE_API_KEY", "")
	os.Unsetenv("ALPHA_VANTAGE_API_KEY")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ALPHA_VANTAGE_API_KEY=from-dotenv\n"), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Credentials.AlphaVantage.APIKey)
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Credentials.AlphaVantage.APIKey = ""
	err := cfg.RequireAPIKey()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingAPIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative interval", func(c *Config) { c.Provider.MinInterval = -time.Second }},
		{"too many retries", func(c *Config) { c.Provider.MaxRetries = 11 }},
		{"zero attempts", func(c *Config) { c.Calendar.MaxAttempts = 0 }},
		{"zero span", func(c *Config) { c.Calendar.MaxSpanDays = 0 }},
		{"bad convention", func(c *Config) { c.Alignment.Convention = "open-to-open" }},
		{"bad unspecified", func(c *Config) { c.Alignment.UnspecifiedAs = "TNS" }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }},
	}

	assert.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}
}
