// Package store persists the shared application state as a single JSON
// document. Saves are atomic (write temp file, rename over the primary),
// skipped entirely when the serialized bytes match what is already on
// disk, and preceded by a timestamped backup when they are not. A
// cross-process advisory file lock serializes load-mutate-save cycles
// between the Telegram and WhatsApp processes.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/moalhelu/dejavplus-bots/internal/config"
	"github.com/moalhelu/dejavplus-bots/internal/telemetry"
)

// settingsSecrets are credential keys that must never persist in the
// document; they are stripped on both load and save.
var settingsSecrets = []string{"api_token", "badvin_email", "badvin_password"}

// lockRetryDelay is how often a blocked process re-attempts the file lock.
const lockRetryDelay = 50 * time.Millisecond

// Store owns the JSON state file.
type Store struct {
	path      string
	backupDir string
	retention int
	// mu serializes goroutines within this process; the file lock only
	// serializes processes, because flock tracks held state per instance
	// and re-acquiring from a second goroutine succeeds immediately.
	mu       sync.Mutex
	fileLock *flock.Flock
	log      *slog.Logger
	rec      *telemetry.Recorder
}

// New creates a Store for the configured state file. The advisory lock
// file sits next to the primary so every process sharing the document
// agrees on it.
func New(cfg config.StoreConfig, log *slog.Logger, rec *telemetry.Recorder) *Store {
	if log == nil {
		log = slog.Default()
	}
	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(cfg.Path), "backups")
	}
	retention := cfg.BackupRetention
	if retention < 1 {
		retention = 1
	}
	return &Store{
		path:      cfg.Path,
		backupDir: backupDir,
		retention: retention,
		fileLock:  flock.New(cfg.Path + ".lock"),
		log:       log.With("component", "store"),
		rec:       rec,
	}
}

// Path returns the primary file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the state document under a shared lock. A
// missing file or an undecodable one yields a blank state; the bots must
// come up even when the document is gone.
func (s *Store) Load(ctx context.Context) (*State, error) {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.loadLocked(ctx)
}

// Save serializes state and replaces the document under an exclusive
// lock. When the serialized bytes are identical to the file on disk the
// call returns without writing a backup or touching the primary.
func (s *Store) Save(ctx context.Context, state *State) error {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()
	return s.saveLocked(ctx, state)
}

// Update runs one load-mutate-save cycle under the exclusive lock. This
// is the only safe way to modify shared state when both processes are
// running. If fn returns an error the document is left untouched.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.saveLocked(ctx, state)
}

// BackupNow copies the current document into the backup directory
// regardless of whether it changed. Used by the scheduled backup task; a
// missing document is not an error.
func (s *Store) BackupNow(ctx context.Context) error {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.log.Info("No state file to back up", "path", s.path)
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}
	return s.backup(ctx, current)
}

// acquire takes the in-process mutex and then the advisory file lock,
// shared for reads and exclusive for writes, retrying until ctx is done.
// The mutex is held until the returned release function runs; without it
// a second goroutine's flock call on the same instance would report
// success while the first still holds the OS lock, and its release would
// drop that lock mid-write.
func (s *Store) acquire(ctx context.Context, shared bool) (func(), error) {
	s.mu.Lock()

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = s.fileLock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.fileLock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to acquire state lock: %w", err)
	}
	if !locked {
		s.mu.Unlock()
		return nil, errors.New("failed to acquire state lock")
	}
	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.log.Error("Failed to release state lock", "error", err)
		}
		s.mu.Unlock()
	}, nil
}

func (s *Store) loadLocked(ctx context.Context) (*State, error) {
	done := s.rec.Timed(ctx, telemetry.EventDBLoad)

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			done("path", s.path, "missing", true)
			return NewState(), nil
		}
		done("path", s.path, "error", err.Error())
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	state := NewState()
	if err := json.Unmarshal(raw, state); err != nil {
		// A corrupt document must not take the bots down; the previous
		// content survives in backups/.
		s.log.Warn("State file is not valid JSON, starting blank", "path", s.path, "error", err)
		done("path", s.path, "corrupt", true)
		return NewState(), nil
	}

	s.normalize(state)
	done("path", s.path, "bytes", len(raw))
	return state, nil
}

func (s *Store) saveLocked(ctx context.Context, state *State) error {
	done := s.rec.Timed(ctx, telemetry.EventDBSave)

	s.normalize(state)

	serialized, err := encodeState(state)
	if err != nil {
		done("path", s.path, "error", err.Error())
		return fmt.Errorf("failed to encode state: %w", err)
	}

	current, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		done("path", s.path, "error", err.Error())
		return fmt.Errorf("failed to read current state file: %w", err)
	}

	// No-op detection: identical bytes mean no backup and no rewrite.
	if err == nil && bytes.Equal(current, serialized) {
		done("path", s.path, "bytes", len(serialized), "skipped", true)
		return nil
	}

	if err == nil {
		if backupErr := s.backup(ctx, current); backupErr != nil {
			// Best effort, matching load-side resilience: a failed backup
			// is logged but does not block persisting new state.
			s.log.Warn("Failed to back up state file", "path", s.path, "error", backupErr)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, serialized, 0o644); err != nil {
		done("path", s.path, "error", err.Error())
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		done("path", s.path, "error", err.Error())
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	done("path", s.path, "bytes", len(serialized), "skipped", false)
	return nil
}

// backup copies the current document bytes into the backup directory and
// prunes old backups beyond the retention count.
func (s *Store) backup(ctx context.Context, current []byte) error {
	done := s.rec.Timed(ctx, telemetry.EventDBBackup)

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		done("error", err.Error())
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	base := filepath.Base(s.path)
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".json"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("%s-%s%s", stem, time.Now().UTC().Format("20060102-150405"), ext)
	backupPath := filepath.Join(s.backupDir, name)

	if err := os.WriteFile(backupPath, current, 0o644); err != nil {
		done("path", backupPath, "error", err.Error())
		return fmt.Errorf("failed to write backup: %w", err)
	}

	if err := s.pruneBackups(stem, ext); err != nil {
		s.log.Warn("Failed to prune old backups", "dir", s.backupDir, "error", err)
	}

	done("path", backupPath, "bytes", len(current))
	return nil
}

// pruneBackups removes the oldest backups of this document beyond the
// retention count. Timestamped names sort chronologically.
func (s *Store) pruneBackups(stem, ext string) error {
	matches, err := filepath.Glob(filepath.Join(s.backupDir, stem+"-*"+ext))
	if err != nil {
		return err
	}
	excess := len(matches) - s.retention
	if excess <= 0 {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:excess] {
		if err := os.Remove(old); err != nil {
			s.log.Warn("Failed to remove old backup", "path", old, "error", err)
		}
	}
	return nil
}

// normalize allocates missing containers and strips credential keys from
// settings so secrets never persist.
func (s *Store) normalize(state *State) {
	if state.Users == nil {
		state.Users = map[string]*User{}
	}
	if state.ActivationRequests == nil {
		state.ActivationRequests = []ActivationRequest{}
	}
	if state.Settings == nil {
		state.Settings = map[string]string{}
	}
	if state.SuperAdmins == nil {
		state.SuperAdmins = []string{}
	}
	for _, key := range settingsSecrets {
		delete(state.Settings, key)
	}
}

// encodeState produces the canonical on-disk serialization: two-space
// indented JSON with a trailing newline. Byte-identical output for equal
// states is what makes no-op detection work.
func encodeState(state *State) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
