package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusLimit int
	statusRunID int64
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display recent cleanup runs",
		Long: `Display the most recent cleanup runs recorded in the history database.
Use --run to show the per-database results of one run.`,
		Example: `  dbbackupctl status
  dbbackupctl status --limit 50
  dbbackupctl status --run 12`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	cmd.Flags().Int64Var(&statusRunID, "run", 0, "show per-database results for this run ID")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("history store not initialized")
	}

	if statusRunID != 0 {
		return printRunResults(statusRunID)
	}

	runs, err := globalStore.ListCleanupRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No cleanup runs recorded yet")
		return nil
	}

	fmt.Println("Cleanup Runs")
	fmt.Println("============")
	fmt.Println("")
	fmt.Printf("%6s %-17s %8s %8s %9s %8s %8s %8s %-8s\n",
		"ID", "Started", "Duration", "Dry Run", "Databases", "Deleted", "Blocked", "Failed", "Status")
	fmt.Println(strings.Repeat("-", 90))

	for _, run := range runs {
		duration := "-"
		if run.EndTime.After(run.StartTime) {
			duration = run.EndTime.Sub(run.StartTime).Truncate(100 * time.Millisecond).String()
		}
		dryRun := "no"
		if run.DryRun {
			dryRun = "yes"
		}
		fmt.Printf("%6d %-17s %8s %8s %9d %8d %8d %8d %-8s\n",
			run.ID,
			run.StartTime.Local().Format("2006-01-02 15:04"),
			duration,
			dryRun,
			run.BaseNames,
			run.TotalDeleted,
			run.TotalBlocked,
			run.TotalFailed,
			run.Status,
		)
		if run.ErrorMessage != "" {
			fmt.Printf("       error: %s\n", run.ErrorMessage)
		}
	}
	fmt.Println("")

	return nil
}

func printRunResults(runID int64) error {
	results, err := globalStore.ResultsForRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load results for run %d: %w", runID, err)
	}

	if len(results) == 0 {
		fmt.Printf("No results recorded for run %d\n", runID)
		return nil
	}

	fmt.Printf("Results for Run %d\n", runID)
	fmt.Println("==================")
	fmt.Println("")
	fmt.Printf("%-24s %10s %8s %8s %8s %8s %8s %8s %8s %8s %8s\n",
		"Database", "Candidates", "Deleted", "Daily", "Diff", "Trn", "Weekly", "Monthly", "Yearly", "Blocked", "Failed")
	fmt.Println(strings.Repeat("-", 124))
	for _, res := range results {
		fmt.Printf("%-24s %10d %8d %8d %8d %8d %8d %8d %8d %8d %8d\n",
			res.BaseName, res.Candidates, res.TotalDeleted,
			res.OldVersions, res.OldDiffVersions, res.OldTrnVersions,
			res.OldWeekly, res.OldMonthly, res.OldYearly,
			res.Blocked, res.Failed)
	}
	fmt.Println("")

	return nil
}
