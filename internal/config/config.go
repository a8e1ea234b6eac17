// Package config loads and validates the dbbackupctl configuration file,
// including the retention policy set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrValidation marks configuration errors detected before any I/O happens.
var ErrValidation = errors.New("invalid configuration")

// Depth bounds for root scanning. MaxDepth bounds the configured value,
// MaxBackendDepth bounds how deep the scanner actually descends into any
// single backend.
const (
	MaxDepth        = 100
	MaxBackendDepth = 5
)

// Config is the top-level configuration
type Config struct {
	Roots      []string         `yaml:"roots"`
	Depth      int              `yaml:"depth"`
	DBPath     string           `yaml:"db_path"`
	FTP        FTPConfig        `yaml:"ftp"`
	RemoteSync RemoteSyncConfig `yaml:"remote_sync"`
	Policies   []Policy         `yaml:"policies"`
}

// FTPConfig holds default credentials for ftp:// roots that don't embed
// their own user info
type FTPConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RemoteSyncConfig configures the worker process whose control API serves
// cloud roots
type RemoteSyncConfig struct {
	WorkerPath string `yaml:"worker_path"` // worker binary, default "rclone"
	Port       int    `yaml:"port"`        // control API port, default 5572
	// ReadyRechecks is how many extra readiness probes are made when the
	// first one fails. There is intentionally no wait between probes; see
	// the rcsession package.
	ReadyRechecks int `yaml:"ready_rechecks"`
}

// Policy is one retention policy, either named after a base name or the
// single default. Optional keep-counts are pointers so an absent count and
// an explicit zero survive a save/load round trip.
type Policy struct {
	BaseName string `yaml:"base_name,omitempty"`
	Default  bool   `yaml:"default,omitempty"`

	KeepVersions     int  `yaml:"keep_versions"`
	KeepVersionsDiff *int `yaml:"keep_versions_diff,omitempty"`
	KeepVersionsTrn  *int `yaml:"keep_versions_trn,omitempty"`

	KeepVersionsWeekly  *int     `yaml:"keep_versions_weekly,omitempty"`
	DaysOfWeek          []string `yaml:"days_of_week,omitempty"`
	KeepVersionsMonthly *int     `yaml:"keep_versions_monthly,omitempty"`
	DaysOfMonth         []int    `yaml:"days_of_month,omitempty"`
	KeepVersionsYearly  *int     `yaml:"keep_versions_yearly,omitempty"`
	DaysOfYear          []int    `yaml:"days_of_year,omitempty"`

	CheckArchiveBit bool `yaml:"check_archive_bit,omitempty"`
}

// MatchesWeekday reports whether d is in the policy's day-of-week selector.
// Unknown names were rejected at validation and are ignored here.
func (p *Policy) MatchesWeekday(d time.Weekday) bool {
	for _, name := range p.DaysOfWeek {
		if w, err := ParseWeekday(name); err == nil && w == d {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a full day-of-week name, case-insensitively
func ParseWeekday(name string) (time.Weekday, error) {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown day of week %q", name)
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		RemoteSync: RemoteSyncConfig{
			WorkerPath:    "rclone",
			Port:          5572,
			ReadyRechecks: 1,
		},
	}
}

// Load reads a config file, applies defaults, and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk in YAML form. All policy fields round-trip,
// including the unset-vs-zero distinction on optional counts.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"dbbackupctl.yaml",
		"/etc/dbbackupctl/dbbackupctl.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "dbbackupctl", "dbbackupctl.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// ApplyDefaults fills component defaults and the periodic day selectors: a
// configured keep-count with no selector gets Sunday, 28, or 365.
func (c *Config) ApplyDefaults() {
	if c.RemoteSync.WorkerPath == "" {
		c.RemoteSync.WorkerPath = "rclone"
	}
	if c.RemoteSync.Port == 0 {
		c.RemoteSync.Port = 5572
	}
	if c.RemoteSync.ReadyRechecks == 0 {
		c.RemoteSync.ReadyRechecks = 1
	}

	for i := range c.Policies {
		p := &c.Policies[i]
		if p.KeepVersionsWeekly != nil && len(p.DaysOfWeek) == 0 {
			p.DaysOfWeek = []string{"Sunday"}
		}
		if p.KeepVersionsMonthly != nil && len(p.DaysOfMonth) == 0 {
			p.DaysOfMonth = []int{28}
		}
		if p.KeepVersionsYearly != nil && len(p.DaysOfYear) == 0 {
			p.DaysOfYear = []int{365}
		}
	}
}

// Validate checks the whole configuration. All failures wrap ErrValidation.
func (c *Config) Validate() error {
	if c.Depth < 0 || c.Depth > MaxDepth {
		return fmt.Errorf("%w: depth must be between 0 and %d, got %d", ErrValidation, MaxDepth, c.Depth)
	}

	seen := make(map[string]bool)
	defaults := 0
	for i := range c.Policies {
		p := &c.Policies[i]
		if err := p.validate(); err != nil {
			return err
		}
		if p.Default {
			defaults++
			if defaults > 1 {
				return fmt.Errorf("%w: more than one default policy", ErrValidation)
			}
			continue
		}
		key := strings.ToLower(p.BaseName)
		if key == "" {
			return fmt.Errorf("%w: non-default policy without base_name", ErrValidation)
		}
		if seen[key] {
			return fmt.Errorf("%w: duplicate policy for base name %q", ErrValidation, key)
		}
		seen[key] = true
	}

	return nil
}

func (p *Policy) validate() error {
	name := p.BaseName
	if p.Default {
		name = "(default)"
	}

	if p.KeepVersions < 1 {
		return fmt.Errorf("%w: policy %s: keep_versions must be at least 1", ErrValidation, name)
	}
	if p.KeepVersionsDiff != nil && *p.KeepVersionsDiff < 0 {
		return fmt.Errorf("%w: policy %s: keep_versions_diff must not be negative", ErrValidation, name)
	}
	if p.KeepVersionsTrn != nil && *p.KeepVersionsTrn < 0 {
		return fmt.Errorf("%w: policy %s: keep_versions_trn must not be negative", ErrValidation, name)
	}

	// A day selector and its keep-count must come together. Counts without
	// selectors were already filled by ApplyDefaults, so only orphaned
	// selectors remain to catch.
	if len(p.DaysOfWeek) > 0 && p.KeepVersionsWeekly == nil {
		return fmt.Errorf("%w: policy %s: days_of_week set without keep_versions_weekly", ErrValidation, name)
	}
	if len(p.DaysOfMonth) > 0 && p.KeepVersionsMonthly == nil {
		return fmt.Errorf("%w: policy %s: days_of_month set without keep_versions_monthly", ErrValidation, name)
	}
	if len(p.DaysOfYear) > 0 && p.KeepVersionsYearly == nil {
		return fmt.Errorf("%w: policy %s: days_of_year set without keep_versions_yearly", ErrValidation, name)
	}

	if p.KeepVersionsWeekly != nil && *p.KeepVersionsWeekly < 0 {
		return fmt.Errorf("%w: policy %s: keep_versions_weekly must not be negative", ErrValidation, name)
	}
	if p.KeepVersionsMonthly != nil && *p.KeepVersionsMonthly < 0 {
		return fmt.Errorf("%w: policy %s: keep_versions_monthly must not be negative", ErrValidation, name)
	}
	if p.KeepVersionsYearly != nil && *p.KeepVersionsYearly < 0 {
		return fmt.Errorf("%w: policy %s: keep_versions_yearly must not be negative", ErrValidation, name)
	}

	for _, d := range p.DaysOfWeek {
		if _, err := ParseWeekday(d); err != nil {
			return fmt.Errorf("%w: policy %s: %v", ErrValidation, name, err)
		}
	}
	for _, d := range p.DaysOfMonth {
		if d < 1 || d > 31 {
			return fmt.Errorf("%w: policy %s: day of month %d out of range 1-31", ErrValidation, name, d)
		}
	}
	for _, d := range p.DaysOfYear {
		if d < 1 || d > 366 {
			return fmt.Errorf("%w: policy %s: day of year %d out of range 1-366", ErrValidation, name, d)
		}
	}

	return nil
}

// PolicyFor returns the policy governing a base name: the explicit
// case-insensitive match if one exists, otherwise the default policy,
// otherwise nil. Base names with no policy at all are left untouched.
func (c *Config) PolicyFor(baseName string) *Policy {
	key := strings.ToLower(baseName)
	var def *Policy
	for i := range c.Policies {
		p := &c.Policies[i]
		if p.Default {
			def = p
			continue
		}
		if strings.ToLower(p.BaseName) == key {
			return p
		}
	}
	return def
}
