// Package config provides configuration management for the econsim terminal.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"econsim-terminal/internal/models"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Security SecurityConfig `mapstructure:"security"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Dir is the directory the config was loaded from.
	Dir string `mapstructure:"-"`
}

// APIConfig locates the game service.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// PollingConfig holds the refresh cadences.
type PollingConfig struct {
	OrdersInterval time.Duration `mapstructure:"orders_interval"`
	DepthInterval  time.Duration `mapstructure:"depth_interval"`
	StatsInterval  time.Duration `mapstructure:"stats_interval"`
	TradesInterval time.Duration `mapstructure:"trades_interval"`
	CandleMinutes  int           `mapstructure:"candle_minutes"`
}

// TradingConfig holds defaults for mutations.
type TradingConfig struct {
	ExtractorRatePerHour int64     `mapstructure:"extractor_rate_per_hour"`
	SpeedPresets         []float64 `mapstructure:"speed_presets"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ReadOnlyMode bool `mapstructure:"read_only_mode"`
	AuditEnabled bool `mapstructure:"audit_enabled"`
}

// ServerConfig holds the watch status surface settings.
type ServerConfig struct {
	// Listen is the address of the status server. Empty disables it.
	Listen string `mapstructure:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/econsim"
	}
	return filepath.Join(home, ".config", "econsim")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
		},
		Polling: PollingConfig{
			OrdersInterval: 2 * time.Second,
			DepthInterval:  2 * time.Second,
			StatsInterval:  2 * time.Second,
			TradesInterval: 3 * time.Second,
			CandleMinutes:  60,
		},
		Trading: TradingConfig{
			ExtractorRatePerHour: 5,
			SpeedPresets:         append([]float64(nil), models.DefaultSpeedPresets...),
		},
		Security: SecurityConfig{
			AuditEnabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  true,
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config file is replaced by the template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg, err := loadConfigFile(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	cfg.Dir = configDir

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("api.base_url", def.API.BaseURL)
	v.SetDefault("polling.orders_interval", def.Polling.OrdersInterval)
	v.SetDefault("polling.depth_interval", def.Polling.DepthInterval)
	v.SetDefault("polling.stats_interval", def.Polling.StatsInterval)
	v.SetDefault("polling.trades_interval", def.Polling.TradesInterval)
	v.SetDefault("polling.candle_minutes", def.Polling.CandleMinutes)
	v.SetDefault("trading.extractor_rate_per_hour", def.Trading.ExtractorRatePerHour)
	v.SetDefault("trading.speed_presets", def.Trading.SpeedPresets)
	v.SetDefault("security.read_only_mode", def.Security.ReadOnlyMode)
	v.SetDefault("security.audit_enabled", def.Security.AuditEnabled)
	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ECONSIM_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ECONSIM_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.ReadOnlyMode = b
		}
	}
	if v := os.Getenv("ECONSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ECONSIM_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url is not an absolute URL: %q", c.API.BaseURL)
	}

	intervals := map[string]time.Duration{
		"orders_interval": c.Polling.OrdersInterval,
		"depth_interval":  c.Polling.DepthInterval,
		"stats_interval":  c.Polling.StatsInterval,
		"trades_interval": c.Polling.TradesInterval,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("polling.%s must be positive", name)
		}
	}
	if c.Polling.CandleMinutes <= 0 {
		return fmt.Errorf("polling.candle_minutes must be positive")
	}

	if c.Trading.ExtractorRatePerHour <= 0 {
		return fmt.Errorf("trading.extractor_rate_per_hour must be positive")
	}
	for _, p := range c.Trading.SpeedPresets {
		if p <= 0 {
			return fmt.Errorf("trading.speed_presets must all be > 0, got %v", p)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}

	return nil
}

// SpeedPresets returns the configured speed multipliers.
func (c *Config) SpeedPresets() []decimal.Decimal {
	out := make([]decimal.Decimal, len(c.Trading.SpeedPresets))
	for i, p := range c.Trading.SpeedPresets {
		out[i] = decimal.NewFromFloat(p)
	}
	return out
}
