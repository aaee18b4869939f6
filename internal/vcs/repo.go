// Package vcs defines the unified repository entity tracked by leaksweep and
// the contract every hosting backend must satisfy. Concrete backends live in
// subpackages and are reachable only through the Backend interface.
package vcs

// Repo is the unit of work: one repository as known to this system,
// independent of which backend produced it.
//
// The ID is the backend's native identifier kept verbatim (string), so two
// repositories can never collide through a derived numeric key. Uniqueness
// across backends is guaranteed by the (Type, ID) pair, see Key.
type Repo struct {
	// Identity, set once at fetch time.
	Type     string `yaml:"type"`
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Group    string `yaml:"group"`
	GroupKey string `yaml:"group_key,omitempty"`
	RepoKey  string `yaml:"repo_key,omitempty"`

	// Clone URLs. HTTPLink is the one used for git operations, SSHLink is
	// informational.
	HTTPLink string `yaml:"http_link"`
	SSHLink  string `yaml:"ssh_link,omitempty"`

	// Enrichment, refreshed by Backend.Enrich. A repository without a
	// resolvable default branch is treated as empty and never cloned or
	// scanned.
	ContactName   string `yaml:"contact_name,omitempty"`
	ContactMail   string `yaml:"contact_mail,omitempty"`
	LatestBranch  string `yaml:"latest_branch,omitempty"`
	DefaultBranch string `yaml:"default_branch,omitempty"`

	// Local scan state, owned exclusively by this system. These fields are
	// reconciliation-protected: a re-fetch must never overwrite them. See
	// store.Reconcile.
	Folder       string `yaml:"folder,omitempty"`
	Scanned      string `yaml:"scanned,omitempty"`
	SecretsFound *int   `yaml:"secrets_found,omitempty"`
	ReportPath   string `yaml:"report_path,omitempty"`
}

// Key identifies a repository across the merged multi-backend set.
func (r *Repo) Key() string {
	return r.Type + "/" + r.ID
}

// FullName is the human-readable group/name pair used in log output.
func (r *Repo) FullName() string {
	return r.Group + "/" + r.Name
}

// Empty reports whether the repository has no resolvable default branch.
func (r *Repo) Empty() bool {
	return r.DefaultBranch == ""
}

// TargetBranch returns the branch a run synchronizes and scans: the most
// recently active branch when scanLastBranch is set (falling back to the
// default branch if enrichment never resolved one), else the default branch.
func (r *Repo) TargetBranch(scanLastBranch bool) string {
	if scanLastBranch && r.LatestBranch != "" {
		return r.LatestBranch
	}
	return r.DefaultBranch
}
