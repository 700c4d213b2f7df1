package patch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultBackupSuffix is appended to the target path to name its backup.
const DefaultBackupSuffix = ".backup"

var ErrBackupNotFound = errors.New("backup not found")

// Backups keeps a single byte-identical copy of a file next to it. The zero
// value uses DefaultBackupSuffix.
type Backups struct {
	Suffix string
}

// Path returns the backup location for path.
func (b Backups) Path(path string) string {
	if b.Suffix == "" {
		return path + DefaultBackupSuffix
	}
	return path + b.Suffix
}

// Exists reports whether a backup is present for path.
func (b Backups) Exists(path string) bool {
	info, err := os.Stat(b.Path(path))
	return err == nil && info.Mode().IsRegular()
}

// Create copies path to its backup location, replacing any previous backup.
// The copy is written to a temporary sibling and renamed into place so an
// interrupted copy never leaves a truncated backup behind.
func (b Backups) Create(path string) (string, error) {
	backupPath := b.Path(path)

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(backupPath), filepath.Base(backupPath)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, src); err != nil {
		cleanup()
		return "", fmt.Errorf("copying %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("syncing backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("closing backup: %w", err)
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("setting backup permissions: %w", err)
	}
	if err := os.Rename(tmpPath, backupPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("moving backup into place: %w", err)
	}
	return backupPath, nil
}

// Restore replaces path with its backup and consumes the backup. The backup is
// renamed over path in a single step, so path always names either the patched
// file or the original.
func (b Backups) Restore(path string) error {
	backupPath := b.Path(path)
	info, err := os.Stat(backupPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", backupPath, ErrBackupNotFound)
		}
		return fmt.Errorf("checking %s: %w", backupPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file: %w", backupPath, ErrBackupNotFound)
	}
	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}
	return nil
}
