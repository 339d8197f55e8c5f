// Package main contains the entrypoint for the WhatsApp webhook process.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/logger"
	"github.com/moalhelu/dejavplus-bots/internal/report"
	"github.com/moalhelu/dejavplus-bots/internal/store"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
	"github.com/moalhelu/dejavplus-bots/internal/ultramsg"
	"github.com/moalhelu/dejavplus-bots/internal/whatsapp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes the webhook server and its dependencies, blocks until
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	// Local development convenience; the file is optional.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	// The timing switch is resolved here, once; everything downstream
	// receives the recorder explicitly.
	rec := telemetry.NewRecorder(cfg.Telemetry.TimingLogs, log)
	log.Info("Timing telemetry", "enabled", rec.Enabled())

	st := store.New(cfg.Store, log, rec)
	reports := report.NewClient(cfg.Report, log, rec)

	gateway, err := ultramsg.NewClient(cfg.UltraMsg, log, rec)
	if err != nil {
		log.Error("Failed to create WhatsApp gateway client", "error", err)
		return 1
	}

	metrics := whatsapp.NewMetrics()
	handler := whatsapp.NewHandler(whatsapp.HandlerDeps{
		Logger:      log,
		Recorder:    rec,
		Store:       st,
		Reports:     reports,
		Gateway:     gateway,
		Messages:    cfg.Messages,
		Dedup:       whatsapp.NewDedupCache(cfg.WhatsApp.DedupTTL, cfg.WhatsApp.DedupMax),
		DefaultLang: cfg.Report.DefaultLanguage,
		Metrics:     metrics,
	})

	server := whatsapp.NewServer(cfg.WhatsApp, handler, metrics, log)

	log.Info("Starting webhook server...")
	runErr := server.Start(ctx) // Start blocks until context is cancelled or an error occurs
	log.Info("Webhook server run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Webhook server stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Webhook server stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
