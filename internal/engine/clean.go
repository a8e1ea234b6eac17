// Package engine runs the cleanup pipeline: scan the roots, classify every
// base-name partition under its policy, evaluate eviction candidates, and
// delete them through the owning backends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SAGSA/dbbackupctl/internal/backup"
	"github.com/SAGSA/dbbackupctl/internal/config"
	"github.com/SAGSA/dbbackupctl/internal/inventory"
	"github.com/SAGSA/dbbackupctl/internal/rcsession"
	"github.com/SAGSA/dbbackupctl/internal/retention"
	"github.com/SAGSA/dbbackupctl/internal/storage"
	"github.com/SAGSA/dbbackupctl/internal/store"
)

// Options control a single cleanup run.
type Options struct {
	DryRun bool
	Roots  []string // overrides the configured roots when non-empty
	Depth  int      // overrides the configured depth when >= 0
}

// Cleaner executes cleanup runs against the configured roots.
type Cleaner struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger

	// backends overrides the default backend set; used by tests.
	backends map[backup.StorageKind]storage.Backend

	session *rcsession.Session
}

// NewCleaner creates a cleaner. store may be nil, in which case the run is
// not recorded.
func NewCleaner(cfg *config.Config, st *store.Store, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{cfg: cfg, store: st, logger: logger}
}

// Run executes one cleanup pass and returns the run record plus the
// per-base-name results. Per-file delete failures are tolerated and counted;
// a remote-sync session failure aborts the whole run.
func (c *Cleaner) Run(ctx context.Context, opts Options) (*store.CleanupRun, []*store.CleanupResult, error) {
	roots := opts.Roots
	if len(roots) == 0 {
		roots = c.cfg.Roots
	}
	depth := opts.Depth
	if depth < 0 {
		depth = c.cfg.Depth
	}

	run := &store.CleanupRun{
		StartTime: time.Now().UTC(),
		DryRun:    opts.DryRun,
		RootCount: len(roots),
		Status:    "running",
	}
	if c.store != nil {
		if err := c.store.CreateCleanupRun(run); err != nil {
			return nil, nil, err
		}
	}

	// The worker session is dialed lazily by the remote-sync backend, so it
	// only exists when a cloud root was actually touched. Either way it is
	// torn down on every exit path.
	defer c.closeSession()

	backends := c.backends
	if backends == nil {
		backends = c.defaultBackends()
	}

	scanner := inventory.NewScanner(backends, c.logger)
	artifacts, err := scanner.Scan(ctx, roots, depth)
	if err != nil {
		return run, nil, c.fail(run, err)
	}

	partitions := inventory.Partition(artifacts)
	baseNames := make([]string, 0, len(partitions))
	for name := range partitions {
		baseNames = append(baseNames, name)
	}
	sort.Strings(baseNames)

	var results []*store.CleanupResult
	for _, name := range baseNames {
		partition := partitions[name]

		pol := c.cfg.PolicyFor(name)
		if pol == nil {
			c.logger.Debug("no policy for base name, leaving untouched", "base_name", name, "files", len(partition))
			continue
		}

		retention.Classify(partition, pol)
		candidates := retention.Evaluate(partition, pol)
		if len(candidates) == 0 {
			c.logger.Debug("nothing to evict", "base_name", name, "files", len(partition))
			continue
		}

		res := &store.CleanupResult{
			RunID:      run.ID,
			BaseName:   name,
			Candidates: len(candidates),
		}
		if err := c.evict(ctx, backends, candidates, opts.DryRun, run, res); err != nil {
			return run, results, c.fail(run, err)
		}

		if c.store != nil {
			if err := c.store.AddCleanupResult(res); err != nil {
				return run, results, c.fail(run, err)
			}
		}
		results = append(results, res)
	}

	run.BaseNames = len(results)
	run.EndTime = time.Now().UTC()
	if run.TotalFailed > 0 {
		run.Status = "partial"
	} else {
		run.Status = "success"
	}
	if c.store != nil {
		if err := c.store.UpdateCleanupRun(run); err != nil {
			return run, results, err
		}
	}

	c.logger.Info("cleanup run finished",
		"status", run.Status,
		"dry_run", run.DryRun,
		"base_names", run.BaseNames,
		"deleted", run.TotalDeleted,
		"blocked", run.TotalBlocked,
		"failed", run.TotalFailed,
	)
	return run, results, nil
}

// evict deletes one base name's candidates. Blocked candidates are skipped,
// counted, and left in place. In dry-run mode the counters fill exactly as a
// real run would, nothing is deleted.
func (c *Cleaner) evict(ctx context.Context, backends map[backup.StorageKind]storage.Backend, candidates []*backup.Artifact, dryRun bool, run *store.CleanupRun, res *store.CleanupResult) error {
	for _, a := range candidates {
		if a.BlockDelete {
			c.logger.Debug("eviction blocked", "file", a.FullPath, "category", a.Category.String())
			res.Blocked++
			run.TotalBlocked++
			continue
		}

		if dryRun {
			c.logger.Info("would delete", "file", a.FullPath, "category", a.Category.String())
		} else {
			backend, ok := backends[a.Kind]
			if !ok {
				return fmt.Errorf("no backend for storage kind %s", a.Kind.String())
			}
			if err := backend.Delete(ctx, a.FullPath); err != nil {
				if errors.Is(err, storage.ErrSession) {
					return err
				}
				c.logger.Warn("failed to delete file", "file", a.FullPath, "error", err)
				res.Failed++
				run.TotalFailed++
				continue
			}
			c.logger.Info("deleted", "file", a.FullPath, "category", a.Category.String())
		}

		res.TotalDeleted++
		run.TotalDeleted++
		switch a.Category {
		case backup.CategoryDiff:
			res.OldDiffVersions++
		case backup.CategoryTrn:
			res.OldTrnVersions++
		case backup.CategoryWeekly:
			res.OldWeekly++
		case backup.CategoryMonthly:
			res.OldMonthly++
		case backup.CategoryYearly:
			res.OldYearly++
		default:
			res.OldVersions++
		}
	}
	return nil
}

// defaultBackends wires the production backend set from the config.
func (c *Cleaner) defaultBackends() map[backup.StorageKind]storage.Backend {
	dial := func(ctx context.Context) (storage.ControlPlane, error) {
		sess, err := rcsession.Start(ctx, rcsession.Config{
			WorkerPath:    c.cfg.RemoteSync.WorkerPath,
			Port:          c.cfg.RemoteSync.Port,
			ReadyRechecks: c.cfg.RemoteSync.ReadyRechecks,
		}, c.logger)
		if err != nil {
			return nil, err
		}
		c.session = sess
		return sess, nil
	}

	return map[backup.StorageKind]storage.Backend{
		backup.StorageDisk:       storage.NewDisk(c.logger),
		backup.StorageFTP:        storage.NewFTP(c.cfg.FTP.User, c.cfg.FTP.Password, c.logger),
		backup.StorageRemoteSync: storage.NewRemoteSync(dial, c.cfg.RemoteSync.ReadyRechecks, c.logger),
	}
}

func (c *Cleaner) closeSession() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

// fail finalizes a run record after a fatal error.
func (c *Cleaner) fail(run *store.CleanupRun, err error) error {
	run.EndTime = time.Now().UTC()
	run.Status = "failed"
	run.ErrorMessage = err.Error()
	if c.store != nil {
		if uerr := c.store.UpdateCleanupRun(run); uerr != nil {
			c.logger.Error("failed to record run failure", "error", uerr)
		}
	}
	return err
}
