// Package config loads and validates the application configuration from a
// YAML file and BOT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds bot credentials and the operator destination for
// escalation notifications.
type TelegramConfig struct {
	Token       string `mapstructure:"token"         validate:"required"`
	AdminChatID int64  `mapstructure:"admin_chat_id" validate:"required"`
}

// GeminiConfig holds the analysis provider settings.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"     validate:"required"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=1s,max=5m"`
}

// ReportConfig controls the analysis window and report presentation.
// Window is configuration rather than a constant: the acceptable lookback
// (24h vs 48h) is a product decision that has changed before.
type ReportConfig struct {
	Window      time.Duration `mapstructure:"window"       validate:"min=1h,max=168h"`
	Tag         string        `mapstructure:"tag"          validate:"required"`
	ChatTimeout time.Duration `mapstructure:"chat_timeout" validate:"min=30s,max=30m"`
}

// DeliveryConfig controls dispatcher pacing, retries, and escalation.
type DeliveryConfig struct {
	PacingDelay         time.Duration `mapstructure:"pacing_delay"         validate:"min=0"`
	MaxAttempts         int           `mapstructure:"max_attempts"         validate:"min=1,max=10"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"          validate:"min=1s,max=10m"`
	MaxMessageLength    int           `mapstructure:"max_message_length"   validate:"min=512,max=4096"`
	EscalationThreshold float64       `mapstructure:"escalation_threshold" validate:"gt=0,lte=1"`
}

// RetentionConfig controls how long messages are kept before the cleanup
// sweep removes them.
type RetentionConfig struct {
	Window time.Duration `mapstructure:"window" validate:"min=24h,max=336h"`
}

// TaskConfig enables one scheduled task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules. ReportJitter is the
// random delay applied before the daily report run so that many deployments
// do not hit the analysis provider at the exact same minute.
type SchedulerConfig struct {
	Tasks        map[string]TaskConfig `mapstructure:"tasks"`
	ReportJitter time.Duration         `mapstructure:"report_jitter" validate:"min=0,max=10m"`
}

// HealthConfig sets the liveness endpoint listen address.
type HealthConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Config is the root application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Report    ReportConfig    `mapstructure:"report"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Retention RetentionConfig `mapstructure:"retention"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Health    HealthConfig    `mapstructure:"health"`
}

// Task names used in the scheduler configuration and task registry.
const (
	TaskDailyReport      = "daily_report"
	TaskRetentionCleanup = "retention_cleanup"
	TaskSQLMaintenance   = "sql_maintenance"
)

// LoadConfig reads configuration from the given YAML file (optional) and
// BOT_* environment variables, applies defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
		// Missing config file is fine; env vars and defaults still apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "storage.db")

	// Secrets have empty defaults so viper knows the keys; env-only
	// deployments would otherwise not see BOT_TELEGRAM_TOKEN at Unmarshal.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay", "5s")

	v.SetDefault("report.window", "24h")
	v.SetDefault("report.tag", "#IMFReport")
	v.SetDefault("report.chat_timeout", "10m")

	v.SetDefault("delivery.pacing_delay", "5s")
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.retry_delay", "60s")
	v.SetDefault("delivery.max_message_length", 4096)
	v.SetDefault("delivery.escalation_threshold", 0.5)

	v.SetDefault("retention.window", "48h")

	v.SetDefault("scheduler.report_jitter", "2m")
	v.SetDefault("scheduler.tasks", map[string]any{
		TaskDailyReport:      map[string]any{"enabled": true, "schedule": "0 10 * * *"},
		TaskRetentionCleanup: map[string]any{"enabled": true, "schedule": "0 2 * * *"},
		TaskSQLMaintenance:   map[string]any{"enabled": true, "schedule": "0 4 * * 0"},
	})

	v.SetDefault("health.addr", ":8080")
}
