package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/wealthvault/backend/internal/settings"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath     = "CONFIG_PATH"
	EnvDBConnection   = "DB_CONNECTION"
	EnvJWTSecret      = "JWT_SECRET"
	EnvJWTExpiry      = "JWT_EXPIRY"
	EnvRedisAddr      = "REDIS_ADDR"
	EnvSendGridAPIKey = "SENDGRID_API_KEY"
	EnvRatesURL       = "RATES_URL"
	EnvServerPort     = "PORT"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// CurrencyConfig controls conversion and the exchange-rate provider.
type CurrencyConfig struct {
	Default        string        `yaml:"default"`
	RatesURL       string        `yaml:"rates-url"`
	CacheTTL       time.Duration `yaml:"cache-ttl"`
	RequestTimeout time.Duration `yaml:"request-timeout"`
}

// RedisConfig points the rate cache at a Redis server. An empty Addr keeps the cache in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MailConfig selects and configures the notification backend.
type MailConfig struct {
	Provider       string        `yaml:"provider"`
	SendGridAPIKey string        `yaml:"sendgrid-api-key"`
	From           string        `yaml:"from"`
	FromName       string        `yaml:"from-name"`
	Timeout        time.Duration `yaml:"timeout"`
}

// SchedulerConfig holds the cron expressions of the background tasks.
type SchedulerConfig struct {
	Enabled         *bool  `yaml:"enabled"`
	Timezone        string `yaml:"timezone"`
	DMSCheck        string `yaml:"dms-check"`
	MessageDispatch string `yaml:"message-dispatch"`
	RetrySweep      string `yaml:"retry-sweep"`
}

// IsEnabled reports whether background tasks should be scheduled.
func (c SchedulerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DeadManSwitchConfig selects the reminder policy.
type DeadManSwitchConfig struct {
	ReminderMode     string `yaml:"reminder-mode"`
	ReminderLeadDays int    `yaml:"reminder-lead-days"`
}

// NetWorthConfig holds aggregation monitoring thresholds.
type NetWorthConfig struct {
	AnomalyThreshold float64 `yaml:"anomaly-threshold"`
}

// RateLimitConfig throttles authenticated front API requests per user. Plans maps a
// token's plan claim to its own per-window limit; zero or negative means unlimited.
type RateLimitConfig struct {
	Enabled *bool          `yaml:"enabled"`
	Default int            `yaml:"default"`
	Window  time.Duration  `yaml:"window"`
	Plans   map[string]int `yaml:"plans"`
}

// IsEnabled reports whether request throttling is active.
func (c RateLimitConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port  int  `yaml:"port"`
	Debug bool `yaml:"debug"`
}

// ServiceConfig is the full set of runtime settings read from the config file.
type ServiceConfig struct {
	Server        ServerConfig        `yaml:"server"`
	Currency      CurrencyConfig      `yaml:"currency"`
	Redis         RedisConfig         `yaml:"redis"`
	Mail          MailConfig          `yaml:"mail"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	DeadManSwitch DeadManSwitchConfig `yaml:"dead-man-switch"`
	NetWorth      NetWorthConfig      `yaml:"networth"`
	RateLimit     RateLimitConfig     `yaml:"rate-limit"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoadServiceConfig reads the service settings, applies env overrides and fills defaults.
// A missing config file yields the defaults.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	var cfg ServiceConfig

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !os.IsNotExist(errRead) {
		return ServiceConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return ServiceConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if errValidate := cfg.Validate(); errValidate != nil {
		return ServiceConfig{}, errValidate
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *ServiceConfig) {
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
	}
	if key := strings.TrimSpace(os.Getenv(EnvSendGridAPIKey)); key != "" {
		cfg.Mail.SendGridAPIKey = key
		if strings.TrimSpace(cfg.Mail.Provider) == "" {
			cfg.Mail.Provider = "sendgrid"
		}
	}
	if url := strings.TrimSpace(os.Getenv(EnvRatesURL)); url != "" {
		cfg.Currency.RatesURL = url
	}
	if rawPort := strings.TrimSpace(os.Getenv(EnvServerPort)); rawPort != "" {
		if port, errParse := strconv.Atoi(rawPort); errParse == nil {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *ServiceConfig) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = internalsettings.DefaultServerPort
	}

	cfg.Currency.Default = strings.ToUpper(strings.TrimSpace(cfg.Currency.Default))
	if cfg.Currency.Default == "" {
		cfg.Currency.Default = internalsettings.DefaultCurrency
	}
	if strings.TrimSpace(cfg.Currency.RatesURL) == "" {
		cfg.Currency.RatesURL = internalsettings.DefaultRatesURL
	}
	if cfg.Currency.CacheTTL <= 0 {
		cfg.Currency.CacheTTL = internalsettings.DefaultRatesCacheTTL
	}
	if cfg.Currency.RequestTimeout <= 0 {
		cfg.Currency.RequestTimeout = internalsettings.DefaultRatesRequestTimeout
	}

	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = internalsettings.DefaultRatesRedisPrefix
	}

	if cfg.RateLimit.Default == 0 {
		cfg.RateLimit.Default = internalsettings.DefaultRateLimit
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = internalsettings.DefaultRateLimitWindow
	}

	cfg.Mail.Provider = strings.ToLower(strings.TrimSpace(cfg.Mail.Provider))
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = internalsettings.DefaultMailProvider
	}
	if strings.TrimSpace(cfg.Mail.From) == "" {
		cfg.Mail.From = internalsettings.DefaultMailFrom
	}
	if strings.TrimSpace(cfg.Mail.FromName) == "" {
		cfg.Mail.FromName = internalsettings.DefaultMailFromName
	}
	if cfg.Mail.Timeout <= 0 {
		cfg.Mail.Timeout = internalsettings.DefaultMailTimeout
	}

	if strings.TrimSpace(cfg.Scheduler.Timezone) == "" {
		cfg.Scheduler.Timezone = internalsettings.DefaultSchedulerTimezone
	}
	if strings.TrimSpace(cfg.Scheduler.DMSCheck) == "" {
		cfg.Scheduler.DMSCheck = internalsettings.DefaultDMSCheckSchedule
	}
	if strings.TrimSpace(cfg.Scheduler.MessageDispatch) == "" {
		cfg.Scheduler.MessageDispatch = internalsettings.DefaultMessageDispatchSchedule
	}
	if strings.TrimSpace(cfg.Scheduler.RetrySweep) == "" {
		cfg.Scheduler.RetrySweep = internalsettings.DefaultRetrySweepSchedule
	}

	cfg.DeadManSwitch.ReminderMode = strings.ToLower(strings.TrimSpace(cfg.DeadManSwitch.ReminderMode))
	if cfg.DeadManSwitch.ReminderMode == "" {
		cfg.DeadManSwitch.ReminderMode = internalsettings.DefaultReminderMode
	}
	if cfg.DeadManSwitch.ReminderLeadDays <= 0 {
		cfg.DeadManSwitch.ReminderLeadDays = internalsettings.DefaultReminderLeadDays
	}

	if cfg.NetWorth.AnomalyThreshold <= 0 {
		cfg.NetWorth.AnomalyThreshold = internalsettings.DefaultAnomalyThreshold
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate rejects settings the runtime cannot start with.
func (c ServiceConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Mail.Provider {
	case "log":
	case "sendgrid":
		if strings.TrimSpace(c.Mail.SendGridAPIKey) == "" {
			return errors.New("mail provider sendgrid requires `mail.sendgrid-api-key`")
		}
	default:
		return fmt.Errorf("unsupported mail provider: %s", c.Mail.Provider)
	}
	switch c.DeadManSwitch.ReminderMode {
	case "single", "tiered":
	default:
		return fmt.Errorf("unsupported dead-man-switch reminder mode: %s", c.DeadManSwitch.ReminderMode)
	}
	if _, errLoc := time.LoadLocation(c.Scheduler.Timezone); errLoc != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, errLoc)
	}
	return nil
}
