package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/ledger"
	"github.com/moalhelu/dejavplus-bots/internal/store"
)

func newTaskDeps(t *testing.T) (TaskDeps, string) {
	t.Helper()

	dir := t.TempDir()
	st := store.New(config.StoreConfig{
		Path:            filepath.Join(dir, "db.json"),
		BackupDir:       filepath.Join(dir, "backups"),
		BackupRetention: 3,
	}, slog.New(slog.NewTextHandler(os.Stderr, nil)), nil)

	return TaskDeps{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Store:  st,
	}, dir
}

func TestLedgerPruneTask(t *testing.T) {
	t.Parallel()

	deps, _ := newTaskDeps(t)
	ctx := context.Background()

	// Seed more refunded entries than the minimum retention floor allows.
	err := deps.Store.Update(ctx, func(state *store.State) error {
		entries := state.Ledger()
		for i := 0; i < 600; i++ {
			rid := fmt.Sprintf("req-%04d", i)
			ledger.Reserve(entries, rid, nil)
			ledger.Refund(entries, rid, nil)
			entries[rid].UpdatedTS = float64(i)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	if err := newLedgerPruneTask(deps)(ctx); err != nil {
		t.Fatalf("prune task: %v", err)
	}

	state, err := deps.Store.Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if got := len(state.Ledger()); got != 600 {
		// Under the default cap nothing should be dropped.
		t.Errorf("ledger size after prune = %d, want 600", got)
	}
}

func TestDBBackupTask(t *testing.T) {
	t.Parallel()

	deps, dir := newTaskDeps(t)
	ctx := context.Background()

	// No document yet: the task must not fail.
	if err := newDBBackupTask(deps)(ctx); err != nil {
		t.Fatalf("backup with missing document: %v", err)
	}

	err := deps.Store.Update(ctx, func(state *store.State) error {
		state.EnsureUser("123", "driver")
		return nil
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}

	if err := newDBBackupTask(deps)(ctx); err != nil {
		t.Fatalf("backup task: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "backups", "db-*.json"))
	if err != nil {
		t.Fatalf("glob backups: %v", err)
	}
	if len(matches) == 0 {
		t.Error("no backup file written")
	}
}
