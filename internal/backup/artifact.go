// Package backup defines the backup artifact model shared by the inventory,
// retention, and eviction layers.
package backup

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// StorageKind identifies which backend owns an artifact.
type StorageKind int

const (
	StorageDisk StorageKind = iota
	StorageFTP
	StorageRemoteSync
)

func (k StorageKind) String() string {
	switch k {
	case StorageDisk:
		return "disk"
	case StorageFTP:
		return "ftp"
	case StorageRemoteSync:
		return "remote-sync"
	default:
		return "unknown"
	}
}

// Category is the retention class assigned by the classifier. Exactly one of
// Daily/Weekly/Monthly/Yearly holds for full backups; diff and trn files get
// their own class. CategoryNone means the classifier has not run yet.
type Category int

const (
	CategoryNone Category = iota
	CategoryDaily
	CategoryWeekly
	CategoryMonthly
	CategoryYearly
	CategoryDiff
	CategoryTrn
)

func (c Category) String() string {
	switch c {
	case CategoryDaily:
		return "daily"
	case CategoryWeekly:
		return "weekly"
	case CategoryMonthly:
		return "monthly"
	case CategoryYearly:
		return "yearly"
	case CategoryDiff:
		return "diff"
	case CategoryTrn:
		return "trn"
	default:
		return "none"
	}
}

// Artifact is one backup file found under a configured root. Parse fields are
// immutable after creation; Category and BlockDelete are set once by the
// classifier.
type Artifact struct {
	BaseName   string // logical database name, lowercased
	FullPath   string // backend-specific path used for deletion
	FileName   string
	CreatedAt  time.Time
	Ext        string // file extension, lowercased, no dot
	Kind       StorageKind
	ArchiveBit bool // meaningful only for StorageDisk

	Category    Category
	BlockDelete bool
}

// IsLogOrDiff reports whether the artifact is an incremental (diff or trn)
// file rather than a full backup.
func (a *Artifact) IsLogOrDiff() bool {
	return a.Ext == "diff" || a.Ext == "trn"
}

// nameRe matches the backup file naming contract
// <base>_backup_<yyyy>_<MM>_<dd>_<HHmmss><suffix?>.<ext>.
// Group 1 captures the base name (greedy, so underscores in the database name
// stay in the base), groups 3-8 the timestamp, the last group the extension.
var nameRe = regexp.MustCompile(`^(.+)_(.+)_(\d{4})_(\d{2})_(\d{2})_(\d{2})(\d{2})(\d{2}).*\.(.+)$`)

// ParseName parses a file name against the naming contract. It returns false
// for names that don't match or carry an impossible date; such files are
// skipped by the inventory, never treated as errors.
func ParseName(fileName, fullPath string, kind StorageKind) (*Artifact, bool) {
	m := nameRe.FindStringSubmatch(fileName)
	if m == nil {
		return nil, false
	}

	year := atoi(m[3])
	month := atoi(m[4])
	day := atoi(m[5])
	hour := atoi(m[6])
	minute := atoi(m[7])
	second := atoi(m[8])

	created := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local)
	// time.Date normalizes out-of-range components (month 13 becomes next
	// January); reject names whose digits don't survive the round trip.
	if created.Year() != year || int(created.Month()) != month || created.Day() != day ||
		created.Hour() != hour || created.Minute() != minute || created.Second() != second {
		return nil, false
	}

	return &Artifact{
		BaseName:  strings.ToLower(m[1]),
		FullPath:  fullPath,
		FileName:  fileName,
		CreatedAt: created,
		Ext:       strings.ToLower(m[9]),
		Kind:      kind,
	}, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
