package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leaksweep/leaksweep/internal/config"
	"github.com/leaksweep/leaksweep/internal/filter"
	"github.com/leaksweep/leaksweep/internal/gitsync"
	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/report"
	"github.com/leaksweep/leaksweep/internal/scanner"
	"github.com/leaksweep/leaksweep/internal/service"
	"github.com/leaksweep/leaksweep/internal/store"
	"github.com/leaksweep/leaksweep/internal/vcs"
	"github.com/leaksweep/leaksweep/internal/vcs/bitbucket"
	"github.com/leaksweep/leaksweep/internal/vcs/bitbucketcloud"
	"github.com/leaksweep/leaksweep/internal/vcs/github"
	"github.com/leaksweep/leaksweep/internal/vcs/gitlab"
)

// version is set at build time via -ldflags.
var version = "dev"

// constructors is the full set of supported backends. There is no runtime
// discovery; adding a backend means adding it here.
var constructors = []vcs.Constructor{
	github.New,
	gitlab.New,
	bitbucket.New,
	bitbucketcloud.New,
}

var flags struct {
	updateInfo      bool
	executiveReport bool
	groupFilter     string
	repoFilter      string
	groupRepoFilter string
	rulesFilter     string
	noScan          bool
	defaultBranch   bool
	forceScan       bool
	noClone         bool
	noCloneUpdate   bool
	batchSize       int
	verbose         bool
	output          string
	gitleaksImage   string
	localGitleaks   bool
	noRedacting     bool
	reportsFormat   string
	gitleaksConf    string
	httpDebug       bool
	backends        map[string]*bool
}

// exitCode carries the run outcome out of cobra's Execute. Findings map to a
// distinct exit status so callers can tell "dirty" from "broken".
var exitCode int

var rootCmd = &cobra.Command{
	Use:           "leaksweep",
	Short:         "Inventory hosted git repositories and sweep them for leaked secrets",
	Long:          "Leaksweep builds an inventory of the repositories visible to your account\non one or more hosting backends, keeps a local mirror of each, and drives\ngitleaks over the mirrors, recording findings durably across runs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.Flags()

	f.BoolVar(&flags.updateInfo, "updateinfo", false, "Re-fetch repository information even when a cache exists")
	f.BoolVar(&flags.executiveReport, "executive-report", false, "Write the findings overview report and exit")
	f.StringVarP(&flags.groupFilter, "groupfilter", "g", "", "Regex selecting groups to process")
	f.StringVarP(&flags.repoFilter, "repofilter", "r", "", "Regex selecting repositories to process")
	f.StringVarP(&flags.groupRepoFilter, "group-repo-filter", "f", "", "Regex matched against group and repository name")
	f.StringVar(&flags.rulesFilter, "rulesfilter", "", "Regex selecting the scanner rule IDs to enable")
	f.BoolVar(&flags.noScan, "noscan", false, "Skip scanning, only synchronize working copies")
	f.BoolVar(&flags.defaultBranch, "defaultbranch", false, "Process the default branch instead of the most recently active one")
	f.BoolVarP(&flags.forceScan, "force-scan", "S", false, "Scan even when the target branch was already scanned")
	f.BoolVar(&flags.noClone, "no-clone", false, "Skip working-copy synchronization entirely")
	f.BoolVar(&flags.noCloneUpdate, "no-clone-update", false, "Do not fast-forward existing working copies")
	f.IntVar(&flags.batchSize, "batch-size", config.DefaultBatchSize, "Number of repositories per batch, 0 disables batching")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Verbose logging instead of progress bars")
	f.StringVar(&flags.output, "output", config.DefaultOutputDir, "Directory for working copies, reports and the inventory cache")
	f.StringVar(&flags.gitleaksImage, "gitleaks-image", config.DefaultGitleaksImage, "Container image used to run the scanner")
	f.BoolVar(&flags.localGitleaks, "localgitleaks", false, "Run a locally installed gitleaks binary instead of the container")
	f.BoolVar(&flags.noRedacting, "no-redacting", false, "Keep matched secrets unredacted in reports")
	f.StringVar(&flags.reportsFormat, "reports-format", config.DefaultReportsFormat, "Report format: csv, json, junit or sarif")
	f.StringVar(&flags.gitleaksConf, "gitleaks-conf", "", "Scanner rule configuration file")
	f.BoolVar(&flags.httpDebug, "http-debug", false, "Log git HTTP traffic (authorization redacted)")

	// One selection flag per backend, plus its documented alias. pflag
	// shorthands are single letters, so the alias is a flag of its own.
	flags.backends = map[string]*bool{}
	probe := vcs.NewRegistry(logging.NewLogger(logging.Config{}), constructors...)
	for _, b := range probe.All() {
		enabled := new(bool)
		flags.backends[b.Name()] = enabled
		name := strings.ReplaceAll(b.Name(), "_", "-")
		f.BoolVar(enabled, name, false, fmt.Sprintf("Use the %s backend", b.Name()))
		f.BoolVar(enabled, b.ShortName(), false, fmt.Sprintf("Alias for --%s", name))
	}

	rootCmd.Version = version
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	cfg.UpdateInfo = flags.updateInfo
	cfg.ExecutiveReport = flags.executiveReport
	cfg.GroupFilter = flags.groupFilter
	cfg.RepoFilter = flags.repoFilter
	cfg.GroupRepoFilter = flags.groupRepoFilter
	cfg.RulesFilter = flags.rulesFilter
	cfg.Scan = !flags.noScan || flags.forceScan
	cfg.ForceScan = flags.forceScan
	cfg.NoClone = flags.noClone
	cfg.UpdateClones = !flags.noCloneUpdate
	cfg.ScanLastBranch = !flags.defaultBranch
	cfg.BatchSize = flags.batchSize
	cfg.Verbose = flags.verbose
	cfg.OutputDir = flags.output
	cfg.GitleaksImage = flags.gitleaksImage
	cfg.LocalGitleaks = flags.localGitleaks
	cfg.Redact = !flags.noRedacting
	cfg.ReportsFormat = flags.reportsFormat
	cfg.GitleaksConfig = flags.gitleaksConf
	for name, enabled := range flags.backends {
		if *enabled {
			cfg.Backends = append(cfg.Backends, name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logging.LevelInfo
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.Config{Level: level})

	st := store.New(cfg.OutputDir, logger)

	if cfg.ExecutiveReport {
		_, err := report.Executive(cfg, st, logger, cmd.OutOrStdout())
		return err
	}

	fltr, err := filter.New(cfg.GroupFilter, cfg.RepoFilter, cfg.GroupRepoFilter)
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials(config.DotenvFile)
	if err != nil {
		return err
	}

	gitleaks := scanner.NewGitleaks(cfg.GitleaksImage, cfg.LocalGitleaks, logger)
	var scanConfig string
	var rules []string
	if cfg.Scan {
		if err := gitleaks.CheckInstalled(); err != nil {
			return err
		}
		if scanConfig, rules, err = resolveRules(cfg); err != nil {
			return err
		}
	}

	if flags.httpDebug {
		gitsync.EnableHTTPDebug()
	}

	runner := service.NewRunner(cfg, logger).
		WithRegistry(vcs.NewRegistry(logger, constructors...)).
		WithStore(st).
		WithFilter(fltr).
		WithCredentials(creds).
		WithSynchronizer(gitsync.New(gitsync.GoGit{}, logger, cfg.UpdateClones)).
		WithScanner(gitleaks).
		WithScanRules(scanConfig, rules)

	code, err := runner.Run(cmd.Context())
	exitCode = int(code)
	return err
}

// resolveRules returns the rule configuration file handed to the scanner and
// the allowed rule IDs for the filter expression. An explicitly configured
// file must exist; the default files are optional.
func resolveRules(cfg *config.Config) (string, []string, error) {
	var existing []string
	for _, path := range cfg.GitleaksConfigs() {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		} else if cfg.GitleaksConfig != "" {
			return "", nil, fmt.Errorf("rule configuration %s: %w", path, err)
		}
	}

	if cfg.RulesFilter != "" && len(existing) == 0 {
		return "", nil, fmt.Errorf("rule filter %q needs a rule configuration file", cfg.RulesFilter)
	}
	rules, err := scanner.AllowedRules(existing, cfg.RulesFilter)
	if err != nil {
		return "", nil, err
	}
	if cfg.RulesFilter != "" && len(rules) == 0 {
		return "", nil, fmt.Errorf("rule filter %q matches no rule in %s", cfg.RulesFilter, strings.Join(existing, ", "))
	}

	// Prefer the file the configuration designates, fall back to any
	// present one. No file at all means the scanner's built-in rules.
	scanConfig := ""
	for _, path := range existing {
		scanConfig = path
		if path == cfg.ScanConfig() {
			break
		}
	}
	return scanConfig, rules, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
