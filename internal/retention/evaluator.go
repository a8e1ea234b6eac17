package retention

import (
	"sort"

	"github.com/SAGSA/dbbackupctl/internal/backup"
	"github.com/SAGSA/dbbackupctl/internal/config"
)

// Evaluate returns the eviction candidates of one classified partition.
// Each category is evaluated independently against its own keep-count, then
// the lists are unioned; the categories are mutually exclusive so no
// artifact appears twice.
//
// Artifacts with BlockDelete set stay in the returned set — the executor
// skips them, so a blocked candidate is still visible in reports.
func Evaluate(partition []*backup.Artifact, pol *config.Policy) []*backup.Artifact {
	// Newest first. Stable so equal timestamps keep partition order.
	desc := make([]*backup.Artifact, len(partition))
	copy(desc, partition)
	sort.SliceStable(desc, func(i, j int) bool {
		return desc[i].CreatedAt.After(desc[j].CreatedAt)
	})

	var candidates []*backup.Artifact

	// Rolling window over full backups. Only daily-tagged artifacts beyond
	// the window evict here; periodic snapshots are exempt from the rolling
	// count entirely and handled by their own categories below.
	var fulls []*backup.Artifact
	for _, a := range desc {
		if a.Category != backup.CategoryDiff && a.Category != backup.CategoryTrn {
			fulls = append(fulls, a)
		}
	}
	beyond := skip(fulls, pol.KeepVersions)
	for _, a := range beyond {
		if a.Category == backup.CategoryDaily {
			candidates = append(candidates, a)
		}
	}

	candidates = append(candidates, beyondKeep(desc, backup.CategoryDiff, pol.KeepVersionsDiff)...)
	candidates = append(candidates, beyondKeep(desc, backup.CategoryTrn, pol.KeepVersionsTrn)...)

	candidates = append(candidates, beyondKeep(beyond, backup.CategoryWeekly, pol.KeepVersionsWeekly)...)
	candidates = append(candidates, beyondKeep(beyond, backup.CategoryMonthly, pol.KeepVersionsMonthly)...)
	candidates = append(candidates, beyondKeep(beyond, backup.CategoryYearly, pol.KeepVersionsYearly)...)

	return candidates
}

// beyondKeep filters arts (already newest-first) by category and drops the
// first keep entries. A nil keep-count means the category is not configured,
// so nothing can have been tagged with it and nothing evicts.
func beyondKeep(arts []*backup.Artifact, cat backup.Category, keep *int) []*backup.Artifact {
	if keep == nil {
		return nil
	}
	var matched []*backup.Artifact
	for _, a := range arts {
		if a.Category == cat {
			matched = append(matched, a)
		}
	}
	return skip(matched, *keep)
}

func skip(arts []*backup.Artifact, n int) []*backup.Artifact {
	if n >= len(arts) {
		return nil
	}
	if n < 0 {
		n = 0
	}
	return arts[n:]
}
