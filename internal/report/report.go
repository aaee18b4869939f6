// Package report renders the executive findings overview: a CSV file for
// distribution plus a console table, built entirely from the persisted
// inventory. No network or scanner access happens here.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/leaksweep/leaksweep/internal/config"
	"github.com/leaksweep/leaksweep/internal/filter"
	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/store"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

var header = []string{"repository", "group", "type", "branch", "findings", "report", "contact", "mail"}

// Executive writes the scan overview CSV into the output directory and
// prints a summary table to w. It returns the path of the written file. With
// no scanned repositories on record, no file is written and the returned
// path is empty.
func Executive(cfg *config.Config, st *store.Store, log *logging.Logger, w io.Writer) (string, error) {
	scanned, err := collect(cfg, st)
	if err != nil {
		return "", err
	}
	if len(scanned) == 0 {
		log.Infof("no scanned repositories on record")
		return "", nil
	}

	path := filepath.Join(cfg.OutputDir, fmt.Sprintf("executive_report_%s.csv", time.Now().Format("20060102-150405")))
	if err := writeCSV(path, scanned); err != nil {
		return "", err
	}

	render(w, scanned)
	log.Infof("executive report with %d repositories written to %s", len(scanned), path)
	return path, nil
}

// collect loads every cached inventory and returns the in-scope scanned
// repositories, clean ones included, most findings first. The configured
// group/repo filters narrow the report the same way they narrow a run.
func collect(cfg *config.Config, st *store.Store) ([]*vcs.Repo, error) {
	fltr, err := filter.New(cfg.GroupFilter, cfg.RepoFilter, cfg.GroupRepoFilter)
	if err != nil {
		return nil, err
	}

	backends := cfg.Backends
	if len(backends) == 0 {
		if backends, err = st.Backends(); err != nil {
			return nil, err
		}
	}

	var scanned []*vcs.Repo
	for _, backend := range backends {
		repos, err := st.Load(backend)
		if err != nil {
			return nil, err
		}
		for _, repo := range repos {
			if repo.SecretsFound != nil && fltr.Match(repo) {
				scanned = append(scanned, repo)
			}
		}
	}

	sort.Slice(scanned, func(i, j int) bool {
		if *scanned[i].SecretsFound != *scanned[j].SecretsFound {
			return *scanned[i].SecretsFound > *scanned[j].SecretsFound
		}
		return scanned[i].FullName() < scanned[j].FullName()
	})
	return scanned, nil
}

func writeCSV(path string, repos []*vcs.Repo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, repo := range repos {
		if err := cw.Write(row(repo)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func render(w io.Writer, repos []*vcs.Repo) {
	table := tablewriter.NewWriter(w)
	table.Header("Repository", "Group", "Type", "Branch", "Findings")
	for _, repo := range repos {
		_ = table.Append(repo.Name, repo.Group, repo.Type, repo.Scanned, strconv.Itoa(*repo.SecretsFound))
	}
	_ = table.Render()
}

func row(repo *vcs.Repo) []string {
	return []string{
		repo.Name,
		repo.Group,
		repo.Type,
		repo.Scanned,
		strconv.Itoa(*repo.SecretsFound),
		repo.ReportPath,
		repo.ContactName,
		repo.ContactMail,
	}
}
