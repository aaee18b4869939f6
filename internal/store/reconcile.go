package store

import (
	"errors"

	"github.com/leaksweep/leaksweep/internal/vcs"
)

// Reconcile merges freshly fetched entities into the previously cached set.
//
// Every field of an already-known repository is overwritten from the fresh
// copy except the local scan state (Folder, Scanned, SecretsFound,
// ReportPath), which this system owns exclusively. Repositories that
// disappeared upstream are retained; pruning is an operator action, not an
// automatic one. The merge is idempotent for unchanged input.
func Reconcile(current, fresh map[string]*vcs.Repo) (map[string]*vcs.Repo, error) {
	if len(fresh) == 0 {
		return nil, errors.New("reconcile: fresh repository set is empty")
	}
	if len(current) == 0 {
		return fresh, nil
	}

	for id, incoming := range fresh {
		known, ok := current[id]
		if !ok {
			current[id] = incoming
			continue
		}

		merged := *incoming
		merged.Folder = known.Folder
		merged.Scanned = known.Scanned
		merged.SecretsFound = known.SecretsFound
		merged.ReportPath = known.ReportPath
		current[id] = &merged
	}

	return current, nil
}
