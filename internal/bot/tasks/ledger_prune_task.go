package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/moalhelu/dejavplus-bots/internal/ledger"
	"github.com/moalhelu/dejavplus-bots/internal/store"
)

// newLedgerPruneTask creates the scheduled task that bounds the request
// ledger, dropping the oldest settled entries beyond the cap.
func newLedgerPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "ledger_prune")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled ledger prune task...")
		startTime := time.Now()

		var removed int
		err := deps.Store.Update(ctx, func(state *store.State) error {
			removed = ledger.Prune(state.Ledger(), ledger.DefaultMaxEntries)
			return nil
		})

		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Ledger prune task failed", "error", err, "duration", duration)
			return fmt.Errorf("ledger prune failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled ledger prune task completed", "removed", removed, "duration", duration)
		return nil
	}
}
