// Package config provides configuration management for the earnings tracker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "earnings-tracker/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Provider    ProviderConfig  `mapstructure:"provider"`
	Calendar    CalendarConfig  `mapstructure:"calendar"`
	Alignment   AlignmentConfig `mapstructure:"alignment"`
	Store       StoreConfig     `mapstructure:"store"`
	Sync        SyncConfig      `mapstructure:"sync"`
	Server      ServerConfig    `mapstructure:"server"`
	Log         LogConfig       `mapstructure:"log"`
	Credentials Credentials     `mapstructure:"-"` // Loaded separately

	dir string
}

// ProviderConfig holds market-data provider settings.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	MinInterval time.Duration `mapstructure:"min_interval"` // gap between any two outbound calls
	Cooldown    time.Duration `mapstructure:"cooldown"`     // wait after an in-band rate-limit marker
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait"` // linear backoff unit for network errors
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CalendarConfig bounds the nearest-trading-day search.
type CalendarConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	MaxSpanDays int `mapstructure:"max_span_days"`
}

// AlignmentConfig selects the price-alignment convention.
type AlignmentConfig struct {
	Convention    string `mapstructure:"convention"`     // close-to-close, legacy-next-open
	UnspecifiedAs string `mapstructure:"unspecified_as"` // AMC, BMO
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig holds refresh settings.
type SyncConfig struct {
	EarningsStale     time.Duration `mapstructure:"earnings_stale"`
	PricesStale       time.Duration `mapstructure:"prices_stale"`
	MarketHoursStale  time.Duration `mapstructure:"market_hours_stale"`
	SymbolAttempts    int           `mapstructure:"symbol_attempts"`
	SymbolRetryWait   time.Duration `mapstructure:"symbol_retry_wait"`
	QuotaOpenDuration time.Duration `mapstructure:"quota_open_duration"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int    `mapstructure:"port"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
	Workers         int    `mapstructure:"workers"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Credentials holds API credentials.
type Credentials struct {
	AlphaVantage AlphaVantageCredentials `mapstructure:"alpha_vantage"`
}

// AlphaVantageCredentials holds the Alpha Vantage API key.
type AlphaVantageCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// Alignment conventions.
const (
	ConventionCloseToClose   = "close-to-close"
	ConventionLegacyNextOpen = "legacy-next-open"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/earnings-tracker"
	}
	return filepath.Join(home, ".config", "earnings-tracker")
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	cfg.dir = DefaultConfigDir()
	cfg.Store.Path = filepath.Join(cfg.dir, "earnings.db")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.base_url", "https://www.alphavantage.co/query")
	v.SetDefault("provider.min_interval", 12*time.Second)
	v.SetDefault("provider.cooldown", 60*time.Second)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.retry_wait", 5*time.Second)
	v.SetDefault("provider.timeout", 30*time.Second)

	v.SetDefault("calendar.max_attempts", 5)
	v.SetDefault("calendar.max_span_days", 7)

	v.SetDefault("alignment.convention", ConventionCloseToClose)
	v.SetDefault("alignment.unspecified_as", "AMC")

	v.SetDefault("store.path", "")

	v.SetDefault("sync.earnings_stale", 24*time.Hour)
	v.SetDefault("sync.prices_stale", 24*time.Hour)
	v.SetDefault("sync.market_hours_stale", 15*time.Minute)
	v.SetDefault("sync.symbol_attempts", 3)
	v.SetDefault("sync.symbol_retry_wait", 2*time.Second)
	v.SetDefault("sync.quota_open_duration", time.Hour)

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.refresh_schedule", "0 30 21 * * MON-FRI")
	v.SetDefault("server.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env next to the config files first, then the working directory
	loadDotEnv(filepath.Join(configDir, ".env"), ".env")

	cfg := &Config{dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "earnings.db")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			// Existing environment wins over .env values
			_ = godotenv.Load(p)
		}
	}
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		cfg.Credentials.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("EARNINGS_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("EARNINGS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return invalid("provider.base_url", c.Provider.BaseURL, "must not be empty")
	}
	if c.Provider.MinInterval < 0 {
		return invalid("provider.min_interval", c.Provider.MinInterval, "must be non-negative")
	}
	if c.Provider.Cooldown < 0 {
		return invalid("provider.cooldown", c.Provider.Cooldown, "must be non-negative")
	}
	if c.Provider.MaxRetries < 0 || c.Provider.MaxRetries > 10 {
		return invalid("provider.max_retries", c.Provider.MaxRetries, "must be between 0 and 10")
	}
	if c.Provider.RetryWait < 0 {
		return invalid("provider.retry_wait", c.Provider.RetryWait, "must be non-negative")
	}
	if c.Provider.Timeout <= 0 {
		return invalid("provider.timeout", c.Provider.Timeout, "must be positive")
	}

	if c.Calendar.MaxAttempts < 1 {
		return invalid("calendar.max_attempts", c.Calendar.MaxAttempts, "must be at least 1")
	}
	if c.Calendar.MaxSpanDays < 1 {
		return invalid("calendar.max_span_days", c.Calendar.MaxSpanDays, "must be at least 1")
	}

	switch c.Alignment.Convention {
	case ConventionCloseToClose, ConventionLegacyNextOpen:
	default:
		return invalid("alignment.convention", c.Alignment.Convention, "must be 'close-to-close' or 'legacy-next-open'")
	}
	switch c.Alignment.UnspecifiedAs {
	case "AMC", "BMO":
	default:
		return invalid("alignment.unspecified_as", c.Alignment.UnspecifiedAs, "must be 'AMC' or 'BMO'")
	}

	if c.Sync.SymbolAttempts < 1 {
		return invalid("sync.symbol_attempts", c.Sync.SymbolAttempts, "must be at least 1")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", c.Server.Port, "must be between 1 and 65535")
	}
	if c.Server.Workers < 1 {
		return invalid("server.workers", c.Server.Workers, "must be at least 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", c.Log.Level, "must be debug, info, warn or error")
	}

	return nil
}

// RequireAPIKey fails when commands that contact the provider have no key.
func (c *Config) RequireAPIKey() error {
	if c.Credentials.AlphaVantage.APIKey == "" {
		return fmt.Errorf("%w: set ALPHA_VANTAGE_API_KEY or %s", apperrors.ErrMissingAPIKey,
			filepath.Join(c.Dir(), "credentials.toml"))
	}
	return nil
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	if c.dir == "" {
		return DefaultConfigDir()
	}
	return c.dir
}

func invalid(field string, value interface{}, message string) error {
	return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, apperrors.NewValidationError(field, value, message))
}
