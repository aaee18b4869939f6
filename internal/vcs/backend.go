package vcs

import (
	"context"
	"fmt"
	"sort"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/progress"
)

// Credentials carry the connection endpoint and API token for one backend.
// They are resolved from the environment before any network call and are
// never written to the cache or to logs.
type Credentials struct {
	BaseURL string
	Token   string
}

// Backend is the contract every hosting integration satisfies.
//
// Contract guarantees: FetchAll never returns archived, forked (where
// detectable) or empty repositories, and Connect performs a single
// lightweight probe so that bad credentials fail fast instead of surfacing
// on first use.
type Backend interface {
	// Name returns the backend identifier, e.g. "gitlab". It tags every
	// entity the backend produces and keys the credential environment
	// variables (<NAME>_URL, <NAME>_TOKEN).
	Name() string

	// ShortName returns the one/two letter flag alias, e.g. "gl".
	ShortName() string

	// Connect establishes and probes the API connection.
	Connect(ctx context.Context, creds Credentials) error

	// FetchAll returns every eligible repository keyed by its native ID.
	// Zero repositories is a contract violation reported as a *FetchError.
	FetchAll(ctx context.Context, bar *progress.Bar, verbose bool) (map[string]*Repo, error)

	// Enrich populates the enrichment fields of repo in place. Enrichment
	// is best-effort: callers log failures and continue, the inventory is
	// never blocked by them.
	Enrich(ctx context.Context, repo *Repo) error

	// GitCredentials returns the username/secret pair answering
	// authentication prompts for outbound git operations.
	GitCredentials() (username, secret string)
}

// Constructor builds an unconnected backend. The registry is populated from
// an explicit list of these at start-up; there is no runtime discovery.
type Constructor func(log *logging.Logger) Backend

// Registry holds the configured backends by name.
type Registry struct {
	backends map[string]Backend
}

func NewRegistry(log *logging.Logger, constructors ...Constructor) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(constructors))}
	for _, c := range constructors {
		b := c(log)
		r.backends[b.Name()] = b
	}
	return r
}

func (r *Registry) Lookup(name string) (Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", name)
	}
	return b, nil
}

// Names returns the registered backend names in stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) All() []Backend {
	all := make([]Backend, 0, len(r.backends))
	for _, name := range r.Names() {
		all = append(all, r.backends[name])
	}
	return all
}
