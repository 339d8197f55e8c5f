// Package config provides configuration loading, validation, and management
// for the dejavplus bot processes. It handles reading from YAML files,
// environment variables, default values, and validating the result.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps all configuration loading and validation failures.
var ErrConfiguration = errors.New("configuration error")

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. BOT_* environment variables
//
// The ENABLE_TIMING_LOGS environment variable is bound explicitly so the
// telemetry switch is resolved here, once, and nowhere else.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Timing telemetry keeps its historical env name alongside the
	// prefixed one.
	if err := v.BindEnv("telemetry.timing_logs", "BOT_TELEMETRY_TIMING_LOGS", "ENABLE_TIMING_LOGS"); err != nil {
		return nil, fmt.Errorf("%w: failed to bind telemetry env: %v", ErrConfiguration, err)
	}

	// Allow missing config file; defaults plus env are enough to run.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

// setDefaults sets default values for optional configuration parameters.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("store.path", DefaultStorePath)
	v.SetDefault("store.backup_dir", DefaultStoreBackupDir)
	v.SetDefault("store.backup_retention", DefaultStoreBackupRetention)

	v.SetDefault("telemetry.timing_logs", false)

	v.SetDefault("whatsapp.host", DefaultWhatsAppHost)
	v.SetDefault("whatsapp.port", DefaultWhatsAppPort)
	v.SetDefault("whatsapp.dedup_ttl", DefaultWhatsAppDedupTTL)
	v.SetDefault("whatsapp.dedup_max", DefaultWhatsAppDedupMax)
	v.SetDefault("whatsapp.handler_timeout", DefaultWhatsAppHandlerTimeout)

	v.SetDefault("ultramsg.base_url", DefaultUltraMsgBaseURL)
	v.SetDefault("ultramsg.timeout", DefaultUltraMsgTimeout)
	v.SetDefault("ultramsg.rate_per_sec", DefaultUltraMsgRatePerSec)
	v.SetDefault("ultramsg.burst", DefaultUltraMsgBurst)

	v.SetDefault("report.timeout", DefaultReportTimeout)
	v.SetDefault("report.max_concurrency", DefaultReportMaxConcurrency)
	v.SetDefault("report.queue_timeout", DefaultReportQueueTimeout)
	v.SetDefault("report.default_language", DefaultReportLanguage)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	v.SetDefault("messages.not_activated", DefaultMessages.NotActivated)
	v.SetDefault("messages.expired", DefaultMessages.Expired)
	v.SetDefault("messages.no_credit", DefaultMessages.NoCredit)
	v.SetDefault("messages.limit_reached", DefaultMessages.LimitReached)
	v.SetDefault("messages.invalid_vin", DefaultMessages.InvalidVIN)
	v.SetDefault("messages.fetching", DefaultMessages.Fetching)
	v.SetDefault("messages.fetch_failed", DefaultMessages.FetchFailed)
	v.SetDefault("messages.service_busy", DefaultMessages.ServiceBusy)
	v.SetDefault("messages.report_caption", DefaultMessages.ReportCaption)
	v.SetDefault("messages.already_handled", DefaultMessages.AlreadyHandled)
}
