// Package service drives a full inventory run: refresh the repository
// inventory from the configured backends, select the repositories to act on,
// and walk them in batches through working-copy synchronization and
// scanning. Repositories are processed strictly sequentially; a failure on
// one repository never stops the run, only cache write failures do.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/leaksweep/leaksweep/internal/config"
	"github.com/leaksweep/leaksweep/internal/filter"
	"github.com/leaksweep/leaksweep/internal/gitsync"
	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/metrics"
	"github.com/leaksweep/leaksweep/internal/progress"
	"github.com/leaksweep/leaksweep/internal/scanner"
	"github.com/leaksweep/leaksweep/internal/store"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

// ExitCode is the process exit status of a run.
type ExitCode int

const (
	// ExitClean: everything processed, no findings.
	ExitClean ExitCode = 0
	// ExitFatal: the run aborted on an unrecoverable error.
	ExitFatal ExitCode = 1
	// ExitFindings: the run completed and at least one scan reported
	// potential secrets.
	ExitFindings ExitCode = 3
)

// ErrPersist tags inventory write failures. Unlike per-repository errors
// they abort the run: continuing would silently lose scan results.
var ErrPersist = errors.New("persisting inventory")

// Synchronizer aligns a local working copy with one remote branch.
type Synchronizer interface {
	Sync(ctx context.Context, repo *vcs.Repo, branch string, auth gitsync.Auth) error
}

// Store is the persistence surface the runner needs from the inventory
// store.
type Store interface {
	Load(backend string) (map[string]*vcs.Repo, error)
	Save(backend string, repos map[string]*vcs.Repo) error
	SaveRepo(repo *vcs.Repo, all map[string]*vcs.Repo) error
}

// Runner executes one end-to-end run over the configured backends.
type Runner struct {
	config     *config.Config
	log        *logging.Logger
	registry   *vcs.Registry
	store      Store
	filter     *filter.Filter
	creds      *config.CredentialSource
	sync       Synchronizer
	scanner    scanner.Scanner
	scanConfig string
	rules      []string
}

func NewRunner(cfg *config.Config, logger *logging.Logger) *Runner {
	return &Runner{config: cfg, log: logger}
}

func (r *Runner) WithRegistry(registry *vcs.Registry) *Runner {
	r.registry = registry
	return r
}

func (r *Runner) WithStore(s Store) *Runner {
	r.store = s
	return r
}

func (r *Runner) WithFilter(f *filter.Filter) *Runner {
	r.filter = f
	return r
}

func (r *Runner) WithCredentials(creds *config.CredentialSource) *Runner {
	r.creds = creds
	return r
}

func (r *Runner) WithSynchronizer(s Synchronizer) *Runner {
	r.sync = s
	return r
}

func (r *Runner) WithScanner(s scanner.Scanner) *Runner {
	r.scanner = s
	return r
}

// WithScanRules sets the resolved rule configuration file and the allowed
// rule IDs passed to every scanner invocation.
func (r *Runner) WithScanRules(configPath string, rules []string) *Runner {
	r.scanConfig = configPath
	r.rules = rules
	return r
}

// Run refreshes the inventory, then processes the selected repositories in
// batches. It returns the process exit status; the error is non-nil only
// for the fatal case.
func (r *Runner) Run(ctx context.Context) (ExitCode, error) {
	repos, err := r.inventory(ctx)
	if err != nil {
		return ExitFatal, err
	}

	selected := r.filter.Apply(repos)
	ordered := r.filter.Order(selected)
	r.log.Infof("%d of %d repositories selected", len(ordered), len(repos))

	batches := Batches(ordered, r.config.BatchSize)
	bar := progress.New(len(ordered), "processing repositories", !r.config.Verbose)

	var failed []string
	findings := 0
	for i, batch := range batches {
		if len(batches) > 1 {
			r.log.Infof("batch %d/%d (%d repositories)", i+1, len(batches), len(batch))
		}
		for _, repo := range batch {
			found, err := r.process(ctx, repo, repos)
			bar.Add(1)
			if err != nil {
				if errors.Is(err, ErrPersist) {
					bar.Finish()
					return ExitFatal, err
				}
				r.log.Errorf("%s: %v", repo.FullName(), err)
				failed = append(failed, repo.FullName())
				continue
			}
			if found > 0 {
				findings++
			}
		}
	}
	bar.Finish()

	r.log.Infof("processed %d repositories, %d with findings, %d failed", len(ordered), findings, len(failed))
	for _, name := range failed {
		r.log.Warnf("failed: %s", name)
	}

	if findings > 0 {
		r.log.Warnf("reports written to %s", r.config.ReportsDir())
		return ExitFindings, nil
	}
	return ExitClean, nil
}

// inventory connects every chosen backend and returns the merged inventory,
// keyed by Repo.Key. The per-backend cache is consulted first; a fetch plus
// reconciliation happens for cold caches and when an info update was asked
// for.
func (r *Runner) inventory(ctx context.Context) (map[string]*vcs.Repo, error) {
	merged := map[string]*vcs.Repo{}

	for _, name := range r.config.Backends {
		backend, err := r.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		creds, err := r.creds.For(name)
		if err != nil {
			return nil, err
		}
		if err := backend.Connect(ctx, creds); err != nil {
			return nil, err
		}

		known, err := r.store.Load(name)
		if err != nil {
			return nil, err
		}

		repos := known
		if len(known) == 0 || r.config.UpdateInfo {
			bar := progress.New(-1, fmt.Sprintf("fetching %s repositories", name), !r.config.Verbose)
			fresh, err := backend.FetchAll(ctx, bar, r.config.Verbose)
			bar.Finish()
			if err != nil {
				return nil, err
			}
			if repos, err = store.Reconcile(known, fresh); err != nil {
				return nil, err
			}
			if err := r.store.Save(name, repos); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPersist, err)
			}
		}

		r.log.Infof("%s: %d repositories in inventory", name, len(repos))
		for _, repo := range repos {
			merged[repo.Key()] = repo
		}
	}

	return merged, nil
}

// process walks a single repository through enrichment, synchronization and
// scanning, then writes the mutated entity back to the cache. Mutations are
// persisted immediately so an aborted run loses at most the repository in
// flight. The returned count holds the findings of this run's scan, zero if
// the scan was clean or skipped.
func (r *Runner) process(ctx context.Context, repo *vcs.Repo, all map[string]*vcs.Repo) (int, error) {
	backend, err := r.registry.Lookup(repo.Type)
	if err != nil {
		return 0, err
	}

	if err := backend.Enrich(ctx, repo); err != nil {
		r.log.Warnf("%s: refreshing branch activity: %v", repo.FullName(), err)
	}

	repo.Folder = r.config.RepoFolder(repo)

	// No resolvable default branch means an empty repository; those are
	// never cloned or scanned, whatever branch activity says.
	if repo.Empty() {
		r.log.Debugf("%s: no default branch, skipping", repo.FullName())
		return 0, nil
	}

	branch := repo.TargetBranch(r.config.ScanLastBranch)

	if !r.config.NoClone {
		username, secret := backend.GitCredentials()
		if err := r.sync.Sync(ctx, repo, branch, gitsync.Auth{Username: username, Password: secret}); err != nil {
			return 0, err
		}
	}

	found := 0
	if r.config.Scan || r.config.ForceScan {
		if found, err = r.scan(ctx, repo, branch); err != nil {
			return 0, err
		}
	}

	if err := r.store.SaveRepo(repo, all); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return found, nil
}

func (r *Runner) scan(ctx context.Context, repo *vcs.Repo, branch string) (int, error) {
	if !r.config.ForceScan && repo.Scanned == branch {
		r.log.Debugf("%s: branch %q already scanned, skipping", repo.FullName(), branch)
		return 0, nil
	}

	metrics.ScanCount.Inc()
	start := time.Now()
	result, err := r.scanner.Scan(ctx, scanner.Request{
		RepoDir:      repo.Folder,
		ReportPath:   r.reportPath(repo),
		ConfigPath:   r.scanConfig,
		ReportFormat: r.config.ReportsFormat,
		Redact:       r.config.Redact,
		EnabledRules: r.rules,
	})
	if err != nil {
		metrics.ScanFailed.WithLabelValues(repo.Type).Inc()
		return 0, err
	}
	metrics.ScanDuration.WithLabelValues(repo.Type).Observe(time.Since(start).Seconds())
	metrics.ScanFindings.WithLabelValues(repo.Type).Add(float64(result.Findings))

	repo.Scanned = branch
	if result.Findings > 0 {
		n := result.Findings
		repo.SecretsFound = &n
		repo.ReportPath = result.ReportPath
		r.log.Warnf("%s: %d potential secrets found, report at %s", repo.FullName(), n, result.ReportPath)
	} else {
		zero := 0
		repo.SecretsFound = &zero
		repo.ReportPath = ""
	}
	return result.Findings, nil
}

// reportPath derives a flat, collision-free report file name from the
// repository identity.
func (r *Runner) reportPath(repo *vcs.Repo) string {
	name := strings.ReplaceAll(repo.Group+"__"+repo.Name, "/", "_")
	return filepath.Join(r.config.ReportsDir(), repo.Type+"."+name+"."+r.config.ReportsFormat)
}
