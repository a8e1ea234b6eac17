package store

import "time"

// CleanupRun records one execution of the retention pipeline
type CleanupRun struct {
	ID           int64
	StartTime    time.Time
	EndTime      time.Time
	DryRun       bool
	RootCount    int
	BaseNames    int
	TotalDeleted int
	TotalBlocked int
	TotalFailed  int
	Status       string // "running", "success", "partial", "failed"
	ErrorMessage string
}

// CleanupResult holds the per-base-name eviction counters of one run
type CleanupResult struct {
	ID              int64
	RunID           int64
	BaseName        string
	Candidates      int
	TotalDeleted    int
	OldVersions     int
	OldDiffVersions int
	OldTrnVersions  int
	OldWeekly       int
	OldMonthly      int
	OldYearly       int
	Blocked         int
	Failed          int
}
