// Package config holds the run configuration. A single Config value is
// constructed by the CLI layer and passed into each component's constructor;
// nothing reads configuration from ambient globals.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/leaksweep/leaksweep/internal/vcs"
)

const (
	DefaultBatchSize     = 20
	DefaultOutputDir     = "output"
	DefaultReportsFormat = "csv"
	DefaultGitleaksImage = "zricethezav/gitleaks:latest"

	// Default scanner rule configuration files, resolved relative to the
	// working directory.
	GitleaksConfigDefault = "gitleaks.toml"
	GitleaksConfigCustom  = "gitleaks-custom.toml"
)

type Config struct {
	// Backends are the chosen backend names for this run.
	Backends []string

	// UpdateInfo forces a re-fetch and reconciliation even when a cache
	// exists.
	UpdateInfo bool

	// ExecutiveReport generates the findings overview instead of running
	// clone/scan.
	ExecutiveReport bool

	// Filter patterns, see the filter package for semantics.
	GroupFilter     string
	RepoFilter      string
	GroupRepoFilter string

	// RulesFilter restricts scanning to rule IDs matching this pattern.
	RulesFilter string

	// Scan enables the scanner step; ForceScan scans even repositories
	// whose target branch was already scanned.
	Scan      bool
	ForceScan bool

	// NoClone skips working-copy synchronization entirely; UpdateClones
	// controls whether existing clones get fast-forwarded.
	NoClone      bool
	UpdateClones bool

	// ScanLastBranch targets the most recently active branch instead of
	// the default branch.
	ScanLastBranch bool

	// BatchSize partitions processing into resumable units. 0 disables
	// batching (a single batch holds everything).
	BatchSize int

	Verbose   bool
	OutputDir string

	// Scanner invocation settings.
	GitleaksImage  string
	LocalGitleaks  bool
	Redact         bool
	ReportsFormat  string
	GitleaksConfig string
}

// NewConfig returns a Config with the defaults the CLI layer starts from.
func NewConfig() *Config {
	return &Config{
		Scan:           true,
		UpdateClones:   true,
		ScanLastBranch: true,
		Redact:         true,
		BatchSize:      DefaultBatchSize,
		OutputDir:      DefaultOutputDir,
		GitleaksImage:  DefaultGitleaksImage,
		ReportsFormat:  DefaultReportsFormat,
	}
}

// Validate rejects configurations that must fail before any network or disk
// mutation happens.
func (c *Config) Validate() error {
	if !c.ExecutiveReport && len(c.Backends) == 0 {
		return fmt.Errorf("pick at least one backend to use")
	}
	if c.GroupRepoFilter != "" && (c.GroupFilter != "" || c.RepoFilter != "") {
		return fmt.Errorf("cannot use the group-repo filter together with the repo or group filter")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size cannot be negative")
	}
	return nil
}

func (c *Config) ReposDir() string {
	return filepath.Join(c.OutputDir, "repos")
}

func (c *Config) ReportsDir() string {
	return filepath.Join(c.OutputDir, "reports")
}

// RepoFolder derives the working-copy path for a repository. The folder is
// recomputed every run from identity and output root; the persisted value is
// informational, not authoritative.
func (c *Config) RepoFolder(repo *vcs.Repo) string {
	return filepath.Join(c.ReposDir(), repo.Type, repo.Group, repo.Name)
}

// GitleaksConfigs resolves the scanner rule configuration files for this
// run: the explicitly configured file, or the default pair.
func (c *Config) GitleaksConfigs() []string {
	if c.GitleaksConfig != "" {
		return []string{c.GitleaksConfig}
	}
	return []string{GitleaksConfigDefault, GitleaksConfigCustom}
}

// ScanConfig returns the single rule configuration file passed to the
// scanner invocation.
func (c *Config) ScanConfig() string {
	if c.GitleaksConfig != "" {
		return c.GitleaksConfig
	}
	return GitleaksConfigCustom
}
