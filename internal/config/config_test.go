package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emptyEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	return path
}

// unsetenv removes key for the duration of the test so that env files can
// provide it.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "SYNC_CRON_SCHEDULE", "SYNC_WORKERS", "SYNC_PROTECTION_WINDOW", "SYNC_SETTLE_DELAY", "TIMEZONE", "GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_SHEET_DATABASE_ID"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(emptyEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "*/15 * * * *", cfg.Sync.CronSchedule)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, 3*time.Second, cfg.Sync.ProtectionWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.SettleDelay)
	assert.Equal(t, "Africa/Conakry", cfg.Billing.Timezone)
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=9090\nSYNC_RECENT_WINDOW=1m\n"), 0o600))
	unsetenv(t, "APP_PORT")
	unsetenv(t, "SYNC_RECENT_WINDOW")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Sync.RecentWindow)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SYNC_WORKERS", "8")
	t.Setenv("SYNC_PROTECTION_WINDOW", "5s")
	t.Setenv("GOOGLE_SHEETS_CREDENTIALS_PATH", "creds.json")
	t.Setenv("GOOGLE_SHEET_DATABASE_ID", "sheet-1")

	cfg, err := Load(emptyEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, 5*time.Second, cfg.Sync.ProtectionWindow)
	assert.True(t, cfg.Sheets.Enabled())
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":       {"SYNC_SETTLE_DELAY": "soon"},
		"bad integer":        {"SYNC_QUEUE_SIZE": "many"},
		"zero workers":       {"SYNC_WORKERS": "0"},
		"negative window":    {"SYNC_PROTECTION_WINDOW": "-1s"},
		"half sheets config": {"GOOGLE_SHEET_DATABASE_ID": "sheet-1"},
		"unknown timezone":   {"TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(emptyEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	var cfg *Config
	assert.Error(t, cfg.Validate())
}
