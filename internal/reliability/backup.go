// Package reliability backs the run ledger up to the data lake and
// rotates old copies. The lake already holds every pipeline artifact,
// the ledger is the one file that exists nowhere else.
package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/database"
	"github.com/fintracker/fintracker/internal/datalake"
)

// DefaultBackupRetentionDays is how long ledger snapshots stay in the
// lake before rotation removes them.
const DefaultBackupRetentionDays = 30

// Rotation never goes below this many snapshots, whatever their age.
const minBackupsToKeep = 3

// BackupStore is the slice of the lake client the backup service needs.
type BackupStore interface {
	Env() string
	Upload(ctx context.Context, key string, data []byte) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// BackupInfo describes one ledger snapshot in the lake.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerBackupService snapshots the run ledger into the lake's backups
// layer.
type LedgerBackupService struct {
	db    *database.DB
	store BackupStore
	log   zerolog.Logger
}

// NewLedgerBackupService creates the backup service.
func NewLedgerBackupService(db *database.DB, store BackupStore, log zerolog.Logger) *LedgerBackupService {
	return &LedgerBackupService{
		db:    db,
		store: store,
		log:   log.With().Str("service", "ledger_backup").Logger(),
	}
}

// CreateBackup takes a consistent snapshot of the ledger, verifies it,
// compresses it and uploads it under a fresh timestamped key. The key
// is returned.
func (s *LedgerBackupService) CreateBackup(ctx context.Context) (string, error) {
	start := time.Now()

	stagingDir, err := os.MkdirTemp("", "fintracker-backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	// VACUUM INTO writes a compacted copy without blocking writers and
	// without dragging the WAL along.
	snapshotPath := filepath.Join(stagingDir, s.db.Name()+".db")
	if _, err := s.db.Conn().ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", snapshotPath)); err != nil {
		return "", fmt.Errorf("vacuum into failed: %w", err)
	}

	if err := s.verifySnapshot(snapshotPath); err != nil {
		return "", fmt.Errorf("snapshot verification failed: %w", err)
	}

	snapshot, err := os.ReadFile(snapshotPath)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot: %w", err)
	}

	compressed, err := gzipBytes(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key := datalake.BackupKey(s.store.Env(), start)
	if err := s.store.Upload(ctx, key, compressed); err != nil {
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Int("snapshot_bytes", len(snapshot)).
		Int("uploaded_bytes", len(compressed)).
		Dur("duration_ms", time.Since(start)).
		Msg("Ledger backup completed")

	return key, nil
}

// ListBackups returns the snapshots currently in the lake, newest
// first. Keys whose name does not parse as a snapshot are skipped.
func (s *LedgerBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	prefix := datalake.LayerPrefix(s.store.Env(), datalake.LayerBackups) + datalake.BackupFilePrefix
	keys, err := s.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]BackupInfo, 0, len(keys))
	for _, key := range keys {
		name := path.Base(key)
		if !strings.HasPrefix(name, datalake.BackupFilePrefix) || !strings.HasSuffix(name, ".db.gz") {
			continue
		}

		stamp := strings.TrimSuffix(strings.TrimPrefix(name, datalake.BackupFilePrefix), ".db.gz")
		ts, err := time.Parse(datalake.TimestampLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("Failed to parse timestamp from backup key")
			continue
		}

		backups = append(backups, BackupInfo{Key: key, Timestamp: ts})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// RotateOldBackups deletes snapshots older than the retention period.
// The newest minBackupsToKeep survive regardless of age, and a zero
// retention keeps everything.
func (s *LedgerBackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	deleted := 0
	for i, backup := range backups {
		if i < minBackupsToKeep || !backup.Timestamp.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, backup.Key); err != nil {
			s.log.Error().Err(err).Str("key", backup.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}

	return nil
}

// verifySnapshot opens the fresh copy and runs the integrity check, a
// corrupt snapshot must never replace older good ones in rotation.
func (s *LedgerBackupService) verifySnapshot(snapshotPath string) error {
	snapshotDB, err := sql.Open("sqlite", snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snapshotDB.Close()

	var result string
	if err := snapshotDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
