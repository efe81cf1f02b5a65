// Package config loads service configuration with viper.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, then CONTACTWS_* environment variables (dots become underscores, so
// sync.time_budget is CONTACTWS_SYNC_TIME_BUDGET).
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ingeweb/contactws/internal/apperror"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "CONTACTWS"

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	State    StateConfig    `mapstructure:"state"`
	Auth     AuthConfig     `mapstructure:"auth"`
	SARH     SARHConfig     `mapstructure:"sarh"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig selects where plugin settings and statistics live.
type StateConfig struct {
	Backend       string `mapstructure:"backend"` // "sqlite" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type AuthConfig struct {
	Method     string        `mapstructure:"method"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	SiteAdmins []int64       `mapstructure:"site_admins"`
}

// SARHConfig seeds the connection settings in the state store. Empty values
// leave whatever an administrator stored untouched.
type SARHConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIUsername    string        `mapstructure:"api_username"`
	APIPassword    string        `mapstructure:"api_password"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SyncConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	PreventAccountCreation bool          `mapstructure:"prevent_account_creation"`
	ActiveStatuses         []int         `mapstructure:"active_statuses"`
	TimeBudget             time.Duration `mapstructure:"time_budget"`
	BatchSize              int           `mapstructure:"batch_size"`
	Interval               time.Duration `mapstructure:"interval"`
}

// NotifyConfig configures report delivery. AdminIDs, when non-empty, seeds
// the notification settings in the state store together with Enabled.
type NotifyConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	AdminIDs     []int64       `mapstructure:"admin_ids"`
	Interval     time.Duration `mapstructure:"interval"`
	SiteName     string        `mapstructure:"site_name"`
	SiteURL      string        `mapstructure:"site_url"`
	NoReply      string        `mapstructure:"noreply_address"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	SlackWebhook string        `mapstructure:"slack_webhook"`
	SlackChannel string        `mapstructure:"slack_channel"`
}

// SetDefaults registers every key with its default. Keys must be known to
// viper for AutomaticEnv to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.secure_cookies", true)

	v.SetDefault("database.path", "data/contactws.db")

	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.redis_addr", "localhost:6379")
	v.SetDefault("state.redis_password", "")
	v.SetDefault("state.redis_db", 0)
	v.SetDefault("state.redis_prefix", "contactws")

	v.SetDefault("auth.method", "contactws")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_ttl", 2*time.Hour)
	v.SetDefault("auth.site_admins", []int64{})

	v.SetDefault("sarh.base_url", "")
	v.SetDefault("sarh.api_username", "")
	v.SetDefault("sarh.api_password", "")
	v.SetDefault("sarh.connect_timeout", 5*time.Second)
	v.SetDefault("sarh.request_timeout", 15*time.Second)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.prevent_account_creation", false)
	v.SetDefault("sync.active_statuses", []int{1, 3, 5})
	v.SetDefault("sync.time_budget", 240*time.Second)
	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.interval", time.Hour)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.admin_ids", []int64{})
	v.SetDefault("notify.interval", 24*time.Hour)
	v.SetDefault("notify.site_name", "Moodle")
	v.SetDefault("notify.site_url", "")
	v.SetDefault("notify.noreply_address", "noreply@localhost")
	v.SetDefault("notify.smtp_host", "localhost")
	v.SetDefault("notify.smtp_port", 25)
	v.SetDefault("notify.smtp_username", "")
	v.SetDefault("notify.smtp_password", "")
	v.SetDefault("notify.slack_webhook", "")
	v.SetDefault("notify.slack_channel", "")
}

// BindEnv makes v read CONTACTWS_* variables.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return apperror.ValidationFailed("server.port", fmt.Sprintf("invalid port %d", c.Server.Port))
	case c.State.Backend != "sqlite" && c.State.Backend != "redis":
		return apperror.ValidationFailed("state.backend", fmt.Sprintf("unknown state backend %q", c.State.Backend))
	case c.Auth.Method == "":
		return apperror.ValidationFailed("auth.method", "auth method must not be empty")
	case c.Sync.BatchSize <= 0:
		return apperror.ValidationFailed("sync.batch_size", "batch size must be positive")
	case c.Sync.TimeBudget <= 0:
		return apperror.ValidationFailed("sync.time_budget", "time budget must be positive")
	case len(c.Sync.ActiveStatuses) == 0:
		return apperror.ValidationFailed("sync.active_statuses", "at least one active status is required")
	case c.Notify.SMTPPort <= 0 || c.Notify.SMTPPort > 65535:
		return apperror.ValidationFailed("notify.smtp_port", fmt.Sprintf("invalid port %d", c.Notify.SMTPPort))
	case c.SARH.ConnectTimeout <= 0 || c.SARH.RequestTimeout <= 0:
		return apperror.ValidationFailed("sarh", "timeouts must be positive")
	}
	return nil
}

// Policy builds the immutable reconciliation and login policy.
func (c *Config) Policy() Policy {
	return Policy{
		AuthMethod:             c.Auth.Method,
		Enabled:                c.Sync.Enabled,
		PreventAccountCreation: c.Sync.PreventAccountCreation,
		ActiveStatuses:         slices.Clone(c.Sync.ActiveStatuses),
		TimeBudget:             c.Sync.TimeBudget,
		BatchSize:              c.Sync.BatchSize,
		SiteAdmins:             slices.Clone(c.Auth.SiteAdmins),
	}
}
