package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8080"

	// DefaultMaxBodyBytes is the default maximum accepted request body size.
	DefaultMaxBodyBytes = 64 * 1024

	// DefaultMaxHashWorkers bounds concurrent password hashing operations.
	DefaultMaxHashWorkers = 4

	// DefaultLoginDelay is the base artificial login delay.
	DefaultLoginDelay = "500ms"

	// DefaultSessionTTL is the short session lifetime.
	DefaultSessionTTL = "24h"

	// DefaultExtendedSessionTTL is the lifetime of "remember me" sessions.
	DefaultExtendedSessionTTL = "8760h"

	// DefaultSweepInterval is the pause between expired-session sweeps.
	DefaultSweepInterval = "1h"
)

// Config is the root configuration for accountd.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen       string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins  []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	StaticDir    string          `yaml:"static_dir,omitempty" mapstructure:"static_dir"`
	MaxBodyBytes int64           `yaml:"max_body_bytes,omitempty" mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth    RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	API     RateLimitTier `yaml:"api,omitempty" mapstructure:"api"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AuthConfig contains authentication and session settings.
//
// Pepper is a process-wide secret folded into every password hash; losing
// it invalidates every stored credential, so treat it like a key, not a
// tunable. AdminPassword is applied to the built-in admin account on every
// start.
type AuthConfig struct {
	Pepper             string `yaml:"pepper" mapstructure:"pepper"`
	AdminPassword      string `yaml:"admin_password" mapstructure:"admin_password"`
	MaxHashWorkers     int64  `yaml:"max_hash_workers,omitempty" mapstructure:"max_hash_workers"`
	LoginDelay         string `yaml:"login_delay,omitempty" mapstructure:"login_delay"`
	SessionTTL         string `yaml:"session_ttl,omitempty" mapstructure:"session_ttl"`
	ExtendedSessionTTL string `yaml:"extended_session_ttl,omitempty" mapstructure:"extended_session_ttl"`
	SweepInterval      string `yaml:"sweep_interval,omitempty" mapstructure:"sweep_interval"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// Load reads the configuration file at path, applies ACCOUNTD_* environment
// overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ACCOUNTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// AutomaticEnv only resolves keys present in the file, so bind the
	// secrets explicitly; they are commonly supplied via environment only.
	for _, key := range []string{
		"auth.pepper",
		"auth.admin_password",
		"database.postgres.password",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if c.Auth.MaxHashWorkers == 0 {
		c.Auth.MaxHashWorkers = DefaultMaxHashWorkers
	}

	if c.Auth.LoginDelay == "" {
		c.Auth.LoginDelay = DefaultLoginDelay
	}

	if c.Auth.SessionTTL == "" {
		c.Auth.SessionTTL = DefaultSessionTTL
	}

	if c.Auth.ExtendedSessionTTL == "" {
		c.Auth.ExtendedSessionTTL = DefaultExtendedSessionTTL
	}

	if c.Auth.SweepInterval == "" {
		c.Auth.SweepInterval = DefaultSweepInterval
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "./accountd.db"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Auth.Pepper == "" {
		return fmt.Errorf("auth.pepper is required")
	}

	if c.Auth.AdminPassword == "" {
		return fmt.Errorf("auth.admin_password is required")
	}

	if c.Auth.MaxHashWorkers < 1 {
		return fmt.Errorf("auth.max_hash_workers must be at least 1")
	}

	for _, d := range []struct {
		name  string
		value string
	}{
		{"auth.login_delay", c.Auth.LoginDelay},
		{"auth.session_ttl", c.Auth.SessionTTL},
		{"auth.extended_session_ttl", c.Auth.ExtendedSessionTTL},
		{"auth.sweep_interval", c.Auth.SweepInterval},
	} {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.name, err)
		}

		if parsed <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	return nil
}

// LoginDelayDuration returns the parsed base login delay.
func (c *AuthConfig) LoginDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.LoginDelay)

	return d
}

// SessionTTLDuration returns the parsed short session lifetime.
func (c *AuthConfig) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.SessionTTL)

	return d
}

// ExtendedSessionTTLDuration returns the parsed extended session lifetime.
func (c *AuthConfig) ExtendedSessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ExtendedSessionTTL)

	return d
}

// SweepIntervalDuration returns the parsed sweep interval.
func (c *AuthConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)

	return d
}
