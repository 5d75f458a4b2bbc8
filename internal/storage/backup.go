package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// BackupManager handles backup and restore of the local database file.
type BackupManager struct {
	dbPath string
}

// NewBackupManager creates a new backup manager for the given database path.
func NewBackupManager(dbPath string) *BackupManager {
	return &BackupManager{dbPath: dbPath}
}

// BackupInfo contains information about a backup file.
type BackupInfo struct {
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum"`
}

// BackupDir returns the default backup directory path.
func (bm *BackupManager) BackupDir() string {
	return filepath.Join(filepath.Dir(bm.dbPath), "backups")
}

// Backup writes a consistent copy of the database into dir (default BackupDir)
// and verifies it. VACUUM INTO runs on the live connection, so other processes
// can keep writing while the copy is made. An empty name is timestamp-based.
func (bm *BackupManager) Backup(ctx context.Context, db *DB, dir, name string) (string, error) {
	if dir == "" {
		dir = bm.BackupDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if name == "" {
		name = "backup_" + time.Now().Format("20060102_150405")
	}
	backupPath := filepath.Join(dir, strings.TrimSuffix(name, ".db")+".db")
	if _, err := os.Stat(backupPath); err == nil {
		return "", fmt.Errorf("backup %s already exists", backupPath)
	}

	if _, err := db.Conn().ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := VerifyBackup(ctx, backupPath); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("backup verification failed: %w", err)
	}
	return backupPath, nil
}

// Restore replaces the database file with backupPath. The database must be
// closed. The current file is kept next to it with an ".old.<timestamp>" suffix.
func (bm *BackupManager) Restore(ctx context.Context, backupPath string) error {
	if err := VerifyBackup(ctx, backupPath); err != nil {
		return fmt.Errorf("backup verification failed: %w", err)
	}

	tempPath := bm.dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tempPath); err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if _, err := os.Stat(bm.dbPath); err == nil {
		oldPath := bm.dbPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(bm.dbPath, oldPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to keep current database: %w", err)
		}
	}
	// Stale WAL files would be replayed onto the restored copy.
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(bm.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s file: %w", suffix, err)
		}
	}

	if err := os.Rename(tempPath, bm.dbPath); err != nil {
		return fmt.Errorf("failed to replace database with restored backup: %w", err)
	}
	return nil
}

// VerifyBackup checks that path is an intact companion database.
func VerifyBackup(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup as database: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check backup integrity: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup integrity check failed: %s", result)
	}

	var tables int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('local_state', 'local_buckets', 'stat_curve')`,
	).Scan(&tables); err != nil {
		return fmt.Errorf("failed to query backup schema: %w", err)
	}
	if tables != 3 {
		return fmt.Errorf("not a companion database")
	}
	return nil
}

// ListBackups returns the backups in dir (default BackupDir), newest first.
func (bm *BackupManager) ListBackups(dir string) ([]BackupInfo, error) {
	if dir == "" {
		dir = bm.BackupDir()
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		checksum, err := calculateChecksum(path)
		if err != nil {
			checksum = "unknown"
		}

		backups = append(backups, BackupInfo{
			Path:     path,
			Name:     entry.Name(),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Checksum: checksum,
		})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].ModTime.After(backups[j].ModTime) })
	return backups, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create temporary restore file: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close temporary restore file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy backup file: %w", err)
	}
	return nil
}

// calculateChecksum calculates the SHA-256 checksum of a file.
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
