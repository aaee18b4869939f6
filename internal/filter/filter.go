// Package filter decides which repositories are in scope for a run, based on
// up to three case-insensitive regular expression selectors.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/leaksweep/leaksweep/internal/vcs"
)

// ErrConflict is returned when the combined group-or-repo pattern is
// configured together with an individual group or repo pattern.
var ErrConflict = errors.New("group-repo filter cannot be combined with a group or repo filter")

// Filter evaluates repository scope. The zero-pattern filter matches
// everything.
type Filter struct {
	group     *regexp.Regexp
	repo      *regexp.Regexp
	groupRepo *regexp.Regexp
}

// New compiles the configured patterns. Pattern conflicts and invalid
// expressions are configuration errors, raised here, before any fetch.
func New(groupExpr, repoExpr, groupRepoExpr string) (*Filter, error) {
	if groupRepoExpr != "" && (groupExpr != "" || repoExpr != "") {
		return nil, ErrConflict
	}

	var f Filter
	var err error
	if f.group, err = compile(groupExpr); err != nil {
		return nil, fmt.Errorf("group filter: %w", err)
	}
	if f.repo, err = compile(repoExpr); err != nil {
		return nil, fmt.Errorf("repo filter: %w", err)
	}
	if f.groupRepo, err = compile(groupRepoExpr); err != nil {
		return nil, fmt.Errorf("group-repo filter: %w", err)
	}
	return &f, nil
}

func compile(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + expr)
}

// Match reports whether repo is in scope.
//
// The combined pattern, when configured, matches against either the group or
// the name. Otherwise both the group and repo patterns must hold (an absent
// pattern always holds).
func (f *Filter) Match(repo *vcs.Repo) bool {
	if f.groupRepo != nil {
		return f.groupRepo.MatchString(repo.Group) || f.groupRepo.MatchString(repo.Name)
	}

	if f.group != nil && !f.group.MatchString(repo.Group) {
		return false
	}
	return f.repo == nil || f.repo.MatchString(repo.Name)
}

// Apply narrows a repository set to the in-scope subset.
func (f *Filter) Apply(repos map[string]*vcs.Repo) map[string]*vcs.Repo {
	result := make(map[string]*vcs.Repo)
	for key, repo := range repos {
		if f.Match(repo) {
			result[key] = repo
		}
	}
	return result
}

// Order returns the in-scope repositories of repos as a slice in stable key
// order, for deterministic batching and progress output.
func (f *Filter) Order(repos map[string]*vcs.Repo) []*vcs.Repo {
	keys := make([]string, 0, len(repos))
	for key, repo := range repos {
		if f.Match(repo) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	ordered := make([]*vcs.Repo, len(keys))
	for i, key := range keys {
		ordered[i] = repos[key]
	}
	return ordered
}
