package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration for both bot processes.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Store     StoreConfig     `mapstructure:"store"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	UltraMsg  UltraMsgConfig  `mapstructure:"ultramsg"`
	Report    ReportConfig    `mapstructure:"report"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// StoreConfig controls the JSON state file and its backups.
type StoreConfig struct {
	Path            string `mapstructure:"path" validate:"required"`
	BackupDir       string `mapstructure:"backup_dir"`
	BackupRetention int    `mapstructure:"backup_retention" validate:"min=1"`
}

// TelemetryConfig is resolved once at startup; the ENABLE_TIMING_LOGS
// environment variable feeds TimingLogs through the loader.
type TelemetryConfig struct {
	TimingLogs bool `mapstructure:"timing_logs"`
}

// TelegramConfig holds the Telegram front-end settings.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	AdminUserID int64  `mapstructure:"admin_user_id"`
	// BotInfo is populated at runtime after GetMe.
	BotInfo *models.User `mapstructure:"-"`
}

// WhatsAppConfig holds the webhook server settings.
type WhatsAppConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	DedupTTL       time.Duration `mapstructure:"dedup_ttl" validate:"min=1s"`
	DedupMax       int           `mapstructure:"dedup_max" validate:"min=1"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout" validate:"min=1s"`
}

// UltraMsgConfig holds the outbound WhatsApp gateway settings.
type UltraMsgConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"omitempty,url"`
	InstanceID string        `mapstructure:"instance_id"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"min=1s"`
	RatePerSec float64       `mapstructure:"rate_per_sec" validate:"gt=0"`
	Burst      int           `mapstructure:"burst" validate:"min=1"`
}

// ReportConfig holds the upstream report API settings.
type ReportConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIToken        string        `mapstructure:"api_token"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=1s"`
	MaxConcurrency  int64         `mapstructure:"max_concurrency" validate:"min=1"`
	QueueTimeout    time.Duration `mapstructure:"queue_timeout" validate:"min=1s"`
	DefaultLanguage string        `mapstructure:"default_language"`
}

// SchedulerConfig configures the background task scheduler.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a named task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// MessagesConfig holds user-facing reply texts.
type MessagesConfig struct {
	Welcome        string `mapstructure:"welcome"`
	NotAuthorized  string `mapstructure:"not_authorized"`
	NotActivated   string `mapstructure:"not_activated"`
	Expired        string `mapstructure:"expired"`
	NoCredit       string `mapstructure:"no_credit"`
	LimitReached   string `mapstructure:"limit_reached"`
	InvalidVIN     string `mapstructure:"invalid_vin"`
	Fetching       string `mapstructure:"fetching"`
	FetchFailed    string `mapstructure:"fetch_failed"`
	ServiceBusy    string `mapstructure:"service_busy"`
	ReportCaption  string `mapstructure:"report_caption"`
	AlreadyHandled string `mapstructure:"already_handled"`
}
