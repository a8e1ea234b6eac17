// Package storage provides the three storage backends backup files live on:
// local disk, FTP servers, and cloud remotes reached through the remote-sync
// worker's control API.
package storage

import (
	"context"
	"errors"

	"github.com/SAGSA/dbbackupctl/internal/backup"
)

// ErrSession marks remote-sync control-plane failures. Any error wrapping it
// aborts the whole run: once the control API misbehaves, every subsequent
// cloud delete would fail the same way.
var ErrSession = errors.New("remote-sync session error")

// ErrIsDirectory is returned when a delete targets a directory path.
var ErrIsDirectory = errors.New("path is a directory")

// Entry is one child of a listed directory.
type Entry struct {
	Name     string
	FullPath string
	IsDir    bool
}

// Backend lists directory children one level at a time and deletes single
// files. Recursion is the inventory's job, not the backend's.
type Backend interface {
	Kind() backup.StorageKind
	List(ctx context.Context, path string) ([]Entry, error)
	Delete(ctx context.Context, path string) error
}
