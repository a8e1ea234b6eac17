package main

import (
	"fmt"
	"strings"

	"github.com/SAGSA/dbbackupctl/internal/engine"
	"github.com/spf13/cobra"
)

var (
	cleanDryRun bool
	cleanRoots  []string
	cleanDepth  int
)

func newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete backup versions outside the retention policies",
		Long: `Scan the configured roots, classify every backup file under its base
name's retention policy, and delete the versions that fall outside the
rolling window and the periodic keep-counts. Files anchoring differential
or transaction-log chains are skipped, as are files whose archive bit is
still set when the policy checks it.

Use --dry-run to see what would be deleted without touching anything.`,
		Example: `  dbbackupctl clean
  dbbackupctl clean --dry-run
  dbbackupctl clean --root /var/backups --depth 2
  dbbackupctl clean --root gdrive:backups/sql`,
		RunE: cleanRun,
	}

	cmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().StringArrayVar(&cleanRoots, "root", nil, "backup root to scan (repeatable, overrides config)")
	cmd.Flags().IntVar(&cleanDepth, "depth", -1, "directory depth to scan below each root (overrides config)")

	return cmd
}

func cleanRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if len(cleanRoots) == 0 && len(globalCfg.Roots) == 0 {
		return fmt.Errorf("no backup roots configured; set roots in the config file or pass --root")
	}
	if len(globalCfg.Policies) == 0 {
		return fmt.Errorf("no retention policies configured; nothing would ever be deleted")
	}

	cleaner := engine.NewCleaner(globalCfg, globalStore, logger)
	run, results, err := cleaner.Run(cmd.Context(), engine.Options{
		DryRun: cleanDryRun,
		Roots:  cleanRoots,
		Depth:  cleanDepth,
	})
	if err != nil {
		return err
	}

	if quiet {
		return nil
	}

	verb := "Deleted"
	if run.DryRun {
		verb = "Would delete"
	}

	fmt.Println("Cleanup Summary")
	fmt.Println("===============")
	fmt.Println("")
	fmt.Printf("%-24s %10s %10s %8s %8s %8s %8s %8s %8s\n",
		"Database", "Candidates", verb, "Daily", "Diff", "Trn", "Periodic", "Blocked", "Failed")
	fmt.Println(strings.Repeat("-", 100))
	for _, res := range results {
		periodic := res.OldWeekly + res.OldMonthly + res.OldYearly
		fmt.Printf("%-24s %10d %10d %8d %8d %8d %8d %8d %8d\n",
			res.BaseName, res.Candidates, res.TotalDeleted,
			res.OldVersions, res.OldDiffVersions, res.OldTrnVersions,
			periodic, res.Blocked, res.Failed)
	}
	fmt.Println("")
	fmt.Printf("%s %d file(s) across %d database(s), %d blocked, %d failed\n",
		verb, run.TotalDeleted, run.BaseNames, run.TotalBlocked, run.TotalFailed)

	return nil
}
