package handlers

import (
	"context"
	"log/slog"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/report"
	"github.com/moalhelu/dejavplus-bots/internal/store"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
)

// Fetcher retrieves report PDFs.
type Fetcher interface {
	Fetch(ctx context.Context, vin string) (*report.Result, error)
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    *store.Store
	Reports  Fetcher
	Recorder *telemetry.Recorder
}
