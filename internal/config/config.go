package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	LocalStore   LocalStoreConfig
	MongoDB      MongoDBConfig
	Sync         SyncConfig
	Connectivity ConnectivityConfig
	Session      SessionConfig
	Sheets       SheetsConfig
	Billing      BillingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// LocalStoreConfig points at the on-device SQLite file.
type LocalStoreConfig struct {
	Path     string
	LogLevel string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// SyncConfig tunes the coordinator, the worker pool and realtime reconciliation.
type SyncConfig struct {
	CronSchedule     string
	Workers          int
	QueueSize        int
	ProtectionWindow time.Duration
	SettleDelay      time.Duration
	RecentWindow     time.Duration
}

// ConnectivityConfig configures the reachability probe.
type ConnectivityConfig struct {
	ProbeURL      string
	CheckInterval time.Duration
	Timeout       time.Duration
}

// SessionConfig optionally signs a user in at startup.
type SessionConfig struct {
	OwnerID string
}

// SheetsConfig contains configuration required to interact with Google Sheets.
// Import is disabled when either field is empty.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether spreadsheet import is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// BillingConfig holds calendar settings.
type BillingConfig struct {
	Timezone string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are acceptable when configuration comes from the
		// environment directly.
		_ = godotenv.Load()
	}

	var errs []error
	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		LocalStore: LocalStoreConfig{
			Path:     getenvWithDefault("LOCAL_DB_PATH", "dairysync.db"),
			LogLevel: getenvWithDefault("LOCAL_DB_LOG_LEVEL", "warn"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "dairysync"),
		},
		Sync: SyncConfig{
			CronSchedule:     getenvWithDefault("SYNC_CRON_SCHEDULE", "*/15 * * * *"),
			Workers:          getenvInt("SYNC_WORKERS", 4, &errs),
			QueueSize:        getenvInt("SYNC_QUEUE_SIZE", 256, &errs),
			ProtectionWindow: getenvDuration("SYNC_PROTECTION_WINDOW", 3*time.Second, &errs),
			SettleDelay:      getenvDuration("SYNC_SETTLE_DELAY", 500*time.Millisecond, &errs),
			RecentWindow:     getenvDuration("SYNC_RECENT_WINDOW", 10*time.Second, &errs),
		},
		Connectivity: ConnectivityConfig{
			ProbeURL:      os.Getenv("CONNECTIVITY_PROBE_URL"),
			CheckInterval: getenvDuration("CONNECTIVITY_CHECK_INTERVAL", 30*time.Second, &errs),
			Timeout:       getenvDuration("CONNECTIVITY_TIMEOUT", 5*time.Second, &errs),
		},
		Session: SessionConfig{
			OwnerID: os.Getenv("OWNER_ID"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		Billing: BillingConfig{
			Timezone: getenvWithDefault("TIMEZONE", "Africa/Conakry"),
		},
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.LocalStore.Path == "" {
		return errors.New("LOCAL_DB_PATH must be provided")
	}

	switch {
	case c.MongoDB.URI == "":
		return errors.New("MONGODB_URI must be provided")
	case c.MongoDB.DBName == "":
		return errors.New("MONGODB_DB_NAME must be provided")
	}

	if c.Sync.CronSchedule == "" {
		return errors.New("SYNC_CRON_SCHEDULE must be provided")
	}
	if c.Sync.Workers <= 0 {
		return errors.New("SYNC_WORKERS must be positive")
	}
	if c.Sync.QueueSize <= 0 {
		return errors.New("SYNC_QUEUE_SIZE must be positive")
	}
	if c.Sync.ProtectionWindow < 0 || c.Sync.SettleDelay < 0 || c.Sync.RecentWindow < 0 {
		return errors.New("sync durations must not be negative")
	}

	if c.Connectivity.CheckInterval <= 0 {
		return errors.New("CONNECTIVITY_CHECK_INTERVAL must be positive")
	}

	if (c.Sheets.CredentialsPath == "") != (c.Sheets.SpreadsheetID == "") {
		return errors.New("GOOGLE_SHEETS_CREDENTIALS_PATH and GOOGLE_SHEET_DATABASE_ID must be provided together")
	}

	if c.Billing.Timezone == "" {
		return errors.New("TIMEZONE must be provided")
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Billing.Timezone, err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
		return fallback
	}
	return d
}
