// Package retention classifies backup artifacts under a retention policy
// and computes which of them are redundant.
package retention

import (
	"github.com/SAGSA/dbbackupctl/internal/backup"
	"github.com/SAGSA/dbbackupctl/internal/config"
)

// Classify assigns a retention category and dependency-block flag to every
// artifact of one base-name partition. The partition must be sorted
// ascending by creation time; the successor checks below depend on it.
//
// Category precedence, first match wins:
//  1. diff/trn extension with its keep-count configured
//  2. day-of-year selector
//  3. day-of-month selector
//  4. day-of-week selector
//  5. daily
func Classify(partition []*backup.Artifact, pol *config.Policy) {
	for _, a := range partition {
		a.Category = categorize(a, pol)
	}

	for i, a := range partition {
		a.BlockDelete = false

		if i+1 < len(partition) {
			next := partition[i+1]
			// A full backup whose immediate successor is an incremental is
			// the restore baseline for that incremental.
			if !a.IsLogOrDiff() && next.IsLogOrDiff() {
				a.BlockDelete = true
			}
			// A diff whose immediate successor is a trn anchors that log chain.
			if a.Ext == "diff" && next.Ext == "trn" {
				a.BlockDelete = true
			}
		}

		// An archive bit still set means the file was never copied elsewhere.
		if pol.CheckArchiveBit && a.Kind == backup.StorageDisk && a.ArchiveBit {
			a.BlockDelete = true
		}
	}
}

func categorize(a *backup.Artifact, pol *config.Policy) backup.Category {
	if pol.KeepVersionsDiff != nil && a.Ext == "diff" {
		return backup.CategoryDiff
	}
	if pol.KeepVersionsTrn != nil && a.Ext == "trn" {
		return backup.CategoryTrn
	}
	if len(pol.DaysOfYear) > 0 && containsInt(pol.DaysOfYear, a.CreatedAt.YearDay()) {
		return backup.CategoryYearly
	}
	if len(pol.DaysOfMonth) > 0 && containsInt(pol.DaysOfMonth, a.CreatedAt.Day()) {
		return backup.CategoryMonthly
	}
	if len(pol.DaysOfWeek) > 0 && pol.MatchesWeekday(a.CreatedAt.Weekday()) {
		return backup.CategoryWeekly
	}
	return backup.CategoryDaily
}

func containsInt(set []int, n int) bool {
	for _, v := range set {
		if v == n {
			return true
		}
	}
	return false
}
