package retention

import (
	"sort"
	"testing"
	"time"

	"github.com/SAGSA/dbbackupctl/internal/backup"
	"github.com/SAGSA/dbbackupctl/internal/config"
	"github.com/SAGSA/dbbackupctl/internal/inventory"
)

func intPtr(n int) *int { return &n }

// art builds a disk artifact for a given day (and fractional hour) of April 2023.
func art(base, ext string, day, hour int) *backup.Artifact {
	return &backup.Artifact{
		BaseName:  base,
		FileName:  base + "_backup.bak",
		FullPath:  "/backups/" + base,
		CreatedAt: time.Date(2023, 4, day, hour, 0, 0, 0, time.UTC),
		Ext:       ext,
		Kind:      backup.StorageDisk,
	}
}

func sorted(arts []*backup.Artifact) []*backup.Artifact {
	out := make([]*backup.Artifact, len(arts))
	copy(out, arts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TestClassifyExactlyOneCategory verifies the exclusivity property: every
// full backup gets exactly one of daily/weekly/monthly/yearly, every
// incremental exactly one of diff/trn
func TestClassifyExactlyOneCategory(t *testing.T) {
	pol := &config.Policy{
		KeepVersions:        2,
		KeepVersionsDiff:    intPtr(2),
		KeepVersionsTrn:     intPtr(2),
		KeepVersionsWeekly:  intPtr(1),
		DaysOfWeek:          []string{"Sunday"},
		KeepVersionsMonthly: intPtr(1),
		DaysOfMonth:         []int{2},
		KeepVersionsYearly:  intPtr(1),
		DaysOfYear:          []int{92}, // April 2 2023
	}

	parts := sorted([]*backup.Artifact{
		art("sales", "bak", 1, 3),  // daily
		art("sales", "bak", 2, 3),  // April 2 = day-of-year 92 -> yearly wins over monthly/weekly
		art("sales", "diff", 3, 3), // diff
		art("sales", "trn", 3, 4),  // trn
		art("sales", "bak", 9, 3),  // Sunday -> weekly
	})
	Classify(parts, pol)

	wantCats := []backup.Category{
		backup.CategoryDaily,
		backup.CategoryYearly,
		backup.CategoryDiff,
		backup.CategoryTrn,
		backup.CategoryWeekly,
	}
	for i, a := range parts {
		if a.Category != wantCats[i] {
			t.Errorf("artifact %d (%s) category = %v, want %v", i, a.CreatedAt, a.Category, wantCats[i])
		}
	}
}

// TestClassifyPrecedence verifies yearly > monthly > weekly > daily and that
// a diff without a configured diff keep-count falls through to the calendar rules
func TestClassifyPrecedence(t *testing.T) {
	// April 2 2023 is a Sunday, day-of-month 2, day-of-year 92.
	a := art("sales", "bak", 2, 3)

	tests := []struct {
		name string
		pol  config.Policy
		want backup.Category
	}{
		{
			"yearly wins over all",
			config.Policy{
				KeepVersions: 1,
				KeepVersionsYearly: intPtr(1), DaysOfYear: []int{92},
				KeepVersionsMonthly: intPtr(1), DaysOfMonth: []int{2},
				KeepVersionsWeekly: intPtr(1), DaysOfWeek: []string{"Sunday"},
			},
			backup.CategoryYearly,
		},
		{
			"monthly wins over weekly",
			config.Policy{
				KeepVersions:        1,
				KeepVersionsMonthly: intPtr(1), DaysOfMonth: []int{2},
				KeepVersionsWeekly: intPtr(1), DaysOfWeek: []string{"Sunday"},
			},
			backup.CategoryMonthly,
		},
		{
			"weekly",
			config.Policy{
				KeepVersions:       1,
				KeepVersionsWeekly: intPtr(1), DaysOfWeek: []string{"Sunday"},
			},
			backup.CategoryWeekly,
		},
		{
			"daily fallback",
			config.Policy{KeepVersions: 1},
			backup.CategoryDaily,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := []*backup.Artifact{art("sales", "bak", 2, 3)}
			Classify(parts, &tt.pol)
			if parts[0].Category != tt.want {
				t.Errorf("category = %v, want %v", parts[0].Category, tt.want)
			}
		})
	}

	// Without keep_versions_diff a diff file is classified by the calendar
	// rules like any full backup.
	parts := []*backup.Artifact{a, art("sales", "diff", 3, 3)}
	Classify(parts, &config.Policy{KeepVersions: 1})
	if parts[1].Category != backup.CategoryDaily {
		t.Errorf("unconfigured diff category = %v, want daily", parts[1].Category)
	}
}

// TestClassifyBlockDelete verifies the dependency-block rules
func TestClassifyBlockDelete(t *testing.T) {
	pol := &config.Policy{
		KeepVersions:     1,
		KeepVersionsDiff: intPtr(1),
		KeepVersionsTrn:  intPtr(1),
	}

	parts := sorted([]*backup.Artifact{
		art("sales", "bak", 1, 3),   // full, successor full -> not blocked
		art("sales", "bak", 2, 3),   // full, successor diff -> blocked
		art("sales", "diff", 2, 12), // diff, successor trn -> blocked
		art("sales", "trn", 2, 13),  // trn, successor full -> not blocked
		art("sales", "bak", 3, 3),   // last, no successor -> not blocked
	})
	Classify(parts, pol)

	wantBlocked := []bool{false, true, true, false, false}
	for i, a := range parts {
		if a.BlockDelete != wantBlocked[i] {
			t.Errorf("artifact %d blockDelete = %v, want %v", i, a.BlockDelete, wantBlocked[i])
		}
	}
}

// TestClassifyArchiveBit verifies archive-bit blocking on disk artifacts,
// including the last artifact of a partition
func TestClassifyArchiveBit(t *testing.T) {
	pol := &config.Policy{KeepVersions: 1, CheckArchiveBit: true}

	a1 := art("sales", "bak", 1, 3)
	a1.ArchiveBit = true
	a2 := art("sales", "bak", 2, 3)
	a2.ArchiveBit = true
	a2.Kind = backup.StorageFTP // archive bit only means something on disk
	a3 := art("sales", "bak", 3, 3)
	a3.ArchiveBit = true // last artifact, still blocked

	parts := []*backup.Artifact{a1, a2, a3}
	Classify(parts, pol)

	if !a1.BlockDelete {
		t.Error("disk artifact with archive bit not blocked")
	}
	if a2.BlockDelete {
		t.Error("non-disk artifact blocked by archive bit")
	}
	if !a3.BlockDelete {
		t.Error("last artifact with archive bit not blocked")
	}

	// Without check_archive_bit nothing blocks.
	Classify(parts, &config.Policy{KeepVersions: 1})
	if a1.BlockDelete || a3.BlockDelete {
		t.Error("archive bit blocked without check_archive_bit")
	}
}

// TestEvaluateRollingWindow: keep_versions=3 with five daily full backups
// evicts exactly the two oldest
func TestEvaluateRollingWindow(t *testing.T) {
	pol := &config.Policy{BaseName: "sales", KeepVersions: 3}

	parts := sorted([]*backup.Artifact{
		art("sales", "bak", 1, 3),
		art("sales", "bak", 2, 3),
		art("sales", "bak", 3, 3),
		art("sales", "bak", 4, 3),
		art("sales", "bak", 5, 3),
	})
	Classify(parts, pol)
	got := Evaluate(parts, pol)

	if len(got) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(got))
	}
	days := map[int]bool{}
	for _, a := range got {
		days[a.CreatedAt.Day()] = true
	}
	if !days[1] || !days[2] {
		t.Errorf("evicted days = %v, want days 1 and 2", days)
	}
}

// TestEvaluateWindowSizes verifies max(0, M-N) candidates for daily-only sets
func TestEvaluateWindowSizes(t *testing.T) {
	tests := []struct {
		m, n, want int
	}{
		{5, 3, 2},
		{3, 3, 0},
		{2, 3, 0},
		{10, 1, 9},
	}

	for _, tt := range tests {
		pol := &config.Policy{KeepVersions: tt.n}
		var parts []*backup.Artifact
		for d := 1; d <= tt.m; d++ {
			parts = append(parts, art("sales", "bak", d, 3))
		}
		Classify(parts, pol)
		if got := Evaluate(parts, pol); len(got) != tt.want {
			t.Errorf("M=%d N=%d: candidates = %d, want %d", tt.m, tt.n, len(got), tt.want)
		}
	}
}

// TestEvaluateBlockedStaysCandidate: a day-2 full followed by a day-2 diff
// stays in the candidate set but carries the block flag
func TestEvaluateBlockedStaysCandidate(t *testing.T) {
	pol := &config.Policy{BaseName: "sales", KeepVersions: 1, KeepVersionsDiff: intPtr(1)}

	full2 := art("sales", "bak", 2, 3)
	diff := art("sales", "diff", 2, 12)
	full3 := art("sales", "bak", 3, 3)

	parts := sorted([]*backup.Artifact{full2, diff, full3})
	Classify(parts, pol)
	got := Evaluate(parts, pol)

	found := false
	for _, a := range got {
		if a == full2 {
			found = true
			if !a.BlockDelete {
				t.Error("day-2 full in candidate set without block flag")
			}
		}
	}
	if !found {
		t.Error("day-2 full missing from candidate set")
	}
}

// TestEvaluateDiffTrn verifies the independent diff and trn keep-counts
func TestEvaluateDiffTrn(t *testing.T) {
	pol := &config.Policy{
		KeepVersions:     10,
		KeepVersionsDiff: intPtr(2),
		KeepVersionsTrn:  intPtr(1),
	}

	parts := sorted([]*backup.Artifact{
		art("sales", "bak", 1, 3),
		art("sales", "diff", 1, 6),
		art("sales", "diff", 1, 12),
		art("sales", "diff", 1, 18),
		art("sales", "trn", 1, 19),
		art("sales", "trn", 1, 20),
		art("sales", "bak", 2, 3),
	})
	Classify(parts, pol)
	got := Evaluate(parts, pol)

	var diffs, trns int
	for _, a := range got {
		switch a.Category {
		case backup.CategoryDiff:
			diffs++
			if a.CreatedAt.Hour() != 6 {
				t.Errorf("evicted diff at hour %d, want the oldest (6)", a.CreatedAt.Hour())
			}
		case backup.CategoryTrn:
			trns++
			if a.CreatedAt.Hour() != 19 {
				t.Errorf("evicted trn at hour %d, want the oldest (19)", a.CreatedAt.Hour())
			}
		default:
			t.Errorf("unexpected candidate category %v", a.Category)
		}
	}
	if diffs != 1 || trns != 1 {
		t.Errorf("evicted diffs=%d trns=%d, want 1 and 1", diffs, trns)
	}
}

// TestEvaluateWeekly: ten weeks of daily backups with keep_versions_weekly=2
// keeps only the most recent Sundays beyond the rolling window
func TestEvaluateWeekly(t *testing.T) {
	pol := &config.Policy{
		BaseName:           "sales",
		KeepVersions:       3,
		KeepVersionsWeekly: intPtr(2),
		DaysOfWeek:         []string{"Sunday"},
	}

	// 70 consecutive days ending 2023-04-30 (a Sunday).
	var parts []*backup.Artifact
	end := time.Date(2023, 4, 30, 3, 0, 0, 0, time.UTC)
	for i := 69; i >= 0; i-- {
		parts = append(parts, &backup.Artifact{
			BaseName:  "sales",
			CreatedAt: end.AddDate(0, 0, -i),
			Ext:       "bak",
			Kind:      backup.StorageDisk,
		})
	}

	Classify(parts, pol)
	candidates := Evaluate(parts, pol)

	evicted := make(map[time.Time]bool)
	for _, a := range candidates {
		evicted[a.CreatedAt] = true
	}

	var weeklyKept, weeklyTotal int
	for _, a := range parts {
		if a.Category == backup.CategoryWeekly {
			weeklyTotal++
			if !evicted[a.CreatedAt] {
				weeklyKept++
			}
		}
	}
	if weeklyTotal != 10 {
		t.Fatalf("weekly-tagged artifacts = %d, want 10 Sundays", weeklyTotal)
	}
	// The newest Sunday sits inside the 3-deep rolling window, and the
	// weekly keep-count preserves the 2 newest Sundays beyond it. Retention
	// never falls below the configured keep-count.
	if weeklyKept != 3 {
		t.Errorf("retained Sundays = %d, want 3 (window plus keep_versions_weekly)", weeklyKept)
	}

	// The retained Sundays must be the most recent ones.
	for _, a := range parts {
		if a.Category != backup.CategoryWeekly {
			continue
		}
		recent := a.CreatedAt.After(end.AddDate(0, 0, -21))
		if recent && evicted[a.CreatedAt] {
			t.Errorf("recent Sunday %v evicted", a.CreatedAt)
		}
		if !recent && !evicted[a.CreatedAt] {
			t.Errorf("old Sunday %v retained", a.CreatedAt)
		}
	}

	// Dailies inside the rolling window stay.
	for _, a := range parts {
		if a.Category == backup.CategoryDaily && a.CreatedAt.After(end.AddDate(0, 0, -3)) {
			if evicted[a.CreatedAt] {
				t.Errorf("daily %v inside rolling window evicted", a.CreatedAt)
			}
		}
	}
}

// TestEvaluateWithPartition ties the inventory partitioning to the
// evaluator: groups are evaluated independently
func TestEvaluateWithPartition(t *testing.T) {
	pol := &config.Policy{KeepVersions: 1}

	arts := []*backup.Artifact{
		art("sales", "bak", 1, 3),
		art("sales", "bak", 2, 3),
		art("hr", "bak", 1, 3),
		art("hr", "bak", 2, 3),
	}

	groups := inventory.Partition(arts)
	total := 0
	for _, group := range groups {
		Classify(group, pol)
		total += len(Evaluate(group, pol))
	}
	if total != 2 {
		t.Errorf("total candidates = %d, want 2 (one oldest per base name)", total)
	}
}
