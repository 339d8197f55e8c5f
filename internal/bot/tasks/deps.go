// Package tasks implements scheduled maintenance tasks: pruning the
// request ledger and backing up the state document.
package tasks

import (
	"log/slog"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/store"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  *store.Store
	Config *config.Config
}
