// Package store persists the repository inventory on disk, one versioned
// YAML file per backend, and implements the reconciliation merge of freshly
// fetched data into previously cached data.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

// dataVersion tags the on-disk schema. A file carrying any other version is
// treated as absent, triggering a full re-fetch; it is never migrated in
// place. v1 keyed entities by a derived integer; v2 keys them by their
// native string identifier.
const dataVersion = 2

type envelope struct {
	DataVersion int                  `yaml:"data_version"`
	Data        map[string]*vcs.Repo `yaml:"data"`
}

// Store reads and writes per-backend inventory files under dir.
type Store struct {
	dir string
	log *logging.Logger
}

func New(dir string, log *logging.Logger) *Store {
	return &Store{dir: dir, log: log}
}

// Path returns the inventory file path for a backend.
func (s *Store) Path(backend string) string {
	return filepath.Join(s.dir, fmt.Sprintf("repos_%s.yaml", backend))
}

// Backends lists the backends with an inventory file present, in stable
// order. A missing store directory means no backends.
func (s *Store) Backends() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var backends []string
	for _, entry := range entries {
		name := entry.Name()
		if after, ok := strings.CutPrefix(name, "repos_"); ok && strings.HasSuffix(after, ".yaml") {
			backends = append(backends, strings.TrimSuffix(after, ".yaml"))
		}
	}
	sort.Strings(backends)
	return backends, nil
}

// Load returns the cached inventory for a backend, or nil if no usable cache
// exists. A missing file and a stale schema version are both "no cache"; any
// other read problem is an error.
func (s *Store) Load(backend string) (map[string]*vcs.Repo, error) {
	path := s.Path(backend)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var env envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if env.DataVersion != dataVersion {
		s.log.Warnf("data format in %s is outdated (version %d, want %d), ignoring it", path, env.DataVersion, dataVersion)
		return nil, nil
	}

	return env.Data, nil
}

// Save writes the inventory for a backend. The file is written to a
// temporary location first and moved into place, so a crash mid-write never
// leaves a truncated inventory behind.
func (s *Store) Save(backend string, repos map[string]*vcs.Repo) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(envelope{DataVersion: dataVersion, Data: repos})
	if err != nil {
		return err
	}

	path := s.Path(backend)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.log.Debugf("wrote %d repositories to %s", len(repos), path)
	return nil
}

// SaveRepo persists a single mutated entity by writing back the slice of the
// merged set belonging to its backend. The full set is passed in because the
// store files are per-backend while the run operates on the merged mapping.
func (s *Store) SaveRepo(repo *vcs.Repo, all map[string]*vcs.Repo) error {
	subset := make(map[string]*vcs.Repo)
	for _, r := range all {
		if r.Type == repo.Type {
			subset[r.ID] = r
		}
	}
	return s.Save(repo.Type, subset)
}
