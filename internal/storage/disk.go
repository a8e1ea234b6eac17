package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/SAGSA/dbbackupctl/internal/backup"
)

// Disk is the local filesystem backend.
type Disk struct {
	logger *slog.Logger
}

// NewDisk creates a new disk backend.
func NewDisk(logger *slog.Logger) *Disk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Disk{logger: logger}
}

func (d *Disk) Kind() backup.StorageKind {
	return backup.StorageDisk
}

// List returns the immediate children of dir.
func (d *Disk) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, Entry{
			Name:     item.Name(),
			FullPath: filepath.Join(dir, item.Name()),
			IsDir:    item.IsDir(),
		})
	}
	return entries, nil
}

// Delete removes a file. A missing file counts as success so a retried or
// overlapping run can't fail on work already done.
func (d *Disk) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Debug("file already gone", "path", path)
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("deleting %s: %w", path, ErrIsDirectory)
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// ArchiveBit reports whether the filesystem archive attribute is set on
// path. The attribute only exists on Windows; elsewhere this is always
// false, so archive-bit blocking never fires on non-Windows disks.
func ArchiveBit(path string) bool {
	return archiveBit(path)
}
