// Package inventory scans the configured roots through their storage
// backends and turns matching file names into backup artifacts grouped by
// base name.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/SAGSA/dbbackupctl/internal/backup"
	"github.com/SAGSA/dbbackupctl/internal/config"
	"github.com/SAGSA/dbbackupctl/internal/storage"
)

// ErrNoBackups is returned when every configured root yields zero artifacts.
var ErrNoBackups = errors.New("no backup files found under configured roots")

var driveLetterRe = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// ClassifyRoot maps a root token to the backend kind that owns it: local
// absolute (or drive-letter) paths go to disk, ftp:// URLs to FTP, and any
// other name: token to the remote-sync backend, where the prefix before the
// colon names the remote.
func ClassifyRoot(root string) backup.StorageKind {
	switch {
	case strings.HasPrefix(strings.ToLower(root), "ftp://"):
		return backup.StorageFTP
	case driveLetterRe.MatchString(root) || filepath.IsAbs(root):
		return backup.StorageDisk
	case strings.Contains(root, ":"):
		return backup.StorageRemoteSync
	default:
		return backup.StorageDisk
	}
}

// Scanner walks roots through the registered backends.
type Scanner struct {
	backends map[backup.StorageKind]storage.Backend
	logger   *slog.Logger
}

// NewScanner creates a scanner over the given backends.
func NewScanner(backends map[backup.StorageKind]storage.Backend, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{backends: backends, logger: logger}
}

// Scan enumerates every root and returns all parsed artifacts. Depth 0 means
// the root directory only; files are collected at every visited level.
// A root that fails to enumerate is logged and skipped, the other roots are
// still processed — except session failures, which abort the scan. Zero
// artifacts across all roots is fatal.
func (s *Scanner) Scan(ctx context.Context, roots []string, depth int) ([]*backup.Artifact, error) {
	if depth < 0 {
		depth = 0
	}
	if depth > config.MaxDepth {
		depth = config.MaxDepth
	}

	var artifacts []*backup.Artifact
	for _, root := range roots {
		kind := ClassifyRoot(root)
		backend, ok := s.backends[kind]
		if !ok {
			s.logger.Error("no backend registered for root", "root", root, "kind", kind.String())
			continue
		}

		// Each backend descends at most MaxBackendDepth levels regardless of
		// the configured top-level depth.
		rootDepth := depth
		if rootDepth > config.MaxBackendDepth {
			rootDepth = config.MaxBackendDepth
		}

		found, err := s.scanDir(ctx, backend, root, rootDepth)
		if err != nil {
			if errors.Is(err, storage.ErrSession) {
				return nil, err
			}
			s.logger.Error("failed to enumerate root", "root", root, "error", err)
			continue
		}

		s.logger.Debug("root scanned", "root", root, "kind", kind.String(), "artifacts", len(found))
		artifacts = append(artifacts, found...)
	}

	if len(artifacts) == 0 {
		return nil, fmt.Errorf("%w (roots: %v)", ErrNoBackups, roots)
	}
	return artifacts, nil
}

func (s *Scanner) scanDir(ctx context.Context, backend storage.Backend, dir string, depth int) ([]*backup.Artifact, error) {
	entries, err := backend.List(ctx, dir)
	if err != nil {
		return nil, err
	}

	var artifacts []*backup.Artifact
	for _, entry := range entries {
		if entry.IsDir {
			if depth > 0 {
				sub, err := s.scanDir(ctx, backend, entry.FullPath, depth-1)
				if err != nil {
					return nil, err
				}
				artifacts = append(artifacts, sub...)
			}
			continue
		}

		a, ok := backup.ParseName(entry.Name, entry.FullPath, backend.Kind())
		if !ok {
			s.logger.Debug("skipping file outside naming contract", "file", entry.FullPath)
			continue
		}
		if a.Kind == backup.StorageDisk {
			a.ArchiveBit = storage.ArchiveBit(a.FullPath)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// Partition groups artifacts by base name, each group stable-sorted
// ascending by creation time. Ties at second resolution keep scan order.
// The ascending order is what the classifier's successor checks rely on.
func Partition(artifacts []*backup.Artifact) map[string][]*backup.Artifact {
	groups := make(map[string][]*backup.Artifact)
	for _, a := range artifacts {
		groups[a.BaseName] = append(groups[a.BaseName], a)
	}
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return groups
}
