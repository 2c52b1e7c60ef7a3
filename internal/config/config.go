// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Proxy    ProxyConfig    `mapstructure:"proxy" yaml:"proxy"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig tunes the job dispatcher.
type EngineConfig struct {
	Workers    int           `mapstructure:"workers" yaml:"workers"`
	JobTimeout time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`
	// LaunchRate caps browser launches per second across all workers.
	// Zero disables launch pacing.
	LaunchRate float64 `mapstructure:"launch_rate" yaml:"launch_rate"`
}

// BrowserConfig holds settings for the per-job browser sessions.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// StoreConfig selects and configures the account store backend.
type StoreConfig struct {
	// Backend is "csv" (default) or "postgres".
	Backend      string `mapstructure:"backend" yaml:"backend"`
	AccountsFile string `mapstructure:"accounts_file" yaml:"accounts_file"`
	TotpFile     string `mapstructure:"totp_file" yaml:"totp_file"`
	PostgresURL  string `mapstructure:"postgres_url" yaml:"postgres_url"`
}

// IdentityConfig tunes the identity synthesizer.
type IdentityConfig struct {
	PasswordLength int    `mapstructure:"password_length" yaml:"password_length"`
	EmailDomain    string `mapstructure:"email_domain" yaml:"email_domain"`
}

// ProxyConfig configures the rotation allocator.
type ProxyConfig struct {
	// VerifyTimeout bounds the SOCKS5 dial probe used by --verify-proxies.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mailforge-cli")
	v.SetDefault("logger.log_file", "mailforge.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Engine --
	v.SetDefault("engine.workers", 1)
	v.SetDefault("engine.job_timeout", "10m")
	v.SetDefault("engine.launch_rate", 0.0)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.element_timeout", "30s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")

	// -- Store --
	v.SetDefault("store.backend", "csv")
	v.SetDefault("store.accounts_file", "mailforge_accounts.csv")
	v.SetDefault("store.totp_file", "totp_secrets.json")

	// -- Identity --
	v.SetDefault("identity.password_length", 12)
	v.SetDefault("identity.email_domain", "outlook.com")

	// -- Proxy --
	v.SetDefault("proxy.verify_timeout", "10s")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be a positive integer")
	}
	if c.Engine.JobTimeout <= 0 {
		return fmt.Errorf("engine.job_timeout must be a positive duration")
	}
	if c.Identity.PasswordLength < 4 {
		return fmt.Errorf("identity.password_length must be at least 4")
	}
	if c.Identity.EmailDomain == "" {
		return fmt.Errorf("identity.email_domain must not be empty")
	}
	switch c.Store.Backend {
	case "csv":
		if c.Store.AccountsFile == "" || c.Store.TotpFile == "" {
			return fmt.Errorf("store.accounts_file and store.totp_file are required for the csv backend")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url is required for the postgres backend (MAILFORGE_STORE_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", "csv", "postgres", c.Store.Backend)
	}
	return nil
}
