package config

import (
	"errors"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Path != DefaultStorePath {
		t.Errorf("store path = %q, want %q", cfg.Store.Path, DefaultStorePath)
	}
	if cfg.Telemetry.TimingLogs {
		t.Error("timing logs enabled by default")
	}
	if cfg.WhatsApp.Port != DefaultWhatsAppPort {
		t.Errorf("whatsapp port = %d, want %d", cfg.WhatsApp.Port, DefaultWhatsAppPort)
	}
	if cfg.Messages.InvalidVIN == "" {
		t.Error("default messages not applied")
	}
}

func TestLoadTimingEnvVariants(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  bool
	}{
		{"legacy flag on", "ENABLE_TIMING_LOGS", "1", true},
		{"legacy flag true", "ENABLE_TIMING_LOGS", "true", true},
		{"legacy flag off", "ENABLE_TIMING_LOGS", "0", false},
		{"prefixed flag", "BOT_TELEMETRY_TIMING_LOGS", "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Telemetry.TimingLogs != tt.want {
				t.Errorf("timing_logs = %v with %s=%s, want %v", cfg.Telemetry.TimingLogs, tt.key, tt.value, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BOT_LOGGER_LEVEL", "debug")
	t.Setenv("BOT_STORE_PATH", "/tmp/state.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("logger level = %q, want debug", cfg.Logger.Level)
	}
	if cfg.Store.Path != "/tmp/state.json" {
		t.Errorf("store path = %q, want /tmp/state.json", cfg.Store.Path)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("BOT_LOGGER_LEVEL", "loud")

	_, err := Load()
	if err == nil {
		t.Fatal("invalid logger level accepted")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error %v does not wrap ErrConfiguration", err)
	}
}
