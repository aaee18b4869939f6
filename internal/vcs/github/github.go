// Package github integrates GitHub (github.com or GitHub Enterprise) as a
// hosting backend.
package github

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v75/github"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/progress"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

const pageSize = 100

type Backend struct {
	log    *logging.Logger
	client *gogithub.Client
	creds  vcs.Credentials
	login  string
	base   string
}

func New(log *logging.Logger) vcs.Backend {
	return &Backend{log: log.WithBackend("github")}
}

func (b *Backend) Name() string      { return "github" }
func (b *Backend) ShortName() string { return "gh" }

func (b *Backend) GitCredentials() (string, string) {
	return "x-access-token", b.creds.Token
}

func (b *Backend) Connect(ctx context.Context, creds vcs.Credentials) error {
	b.creds = creds
	b.base = creds.BaseURL

	client := gogithub.NewClient(nil).WithAuthToken(creds.Token)
	if !strings.Contains(creds.BaseURL, "api.github.com") && !strings.Contains(creds.BaseURL, "https://github.com") {
		var err error
		client, err = client.WithEnterpriseURLs(creds.BaseURL, creds.BaseURL)
		if err != nil {
			return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL, Err: err}
		}
	}

	b.log.Infof("connecting to %s", b.base)
	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL, Err: err}
	}

	b.client = client
	b.login = user.GetLogin()
	b.log.Infof("connected as %s", b.login)
	return nil
}

func (b *Backend) FetchAll(ctx context.Context, bar *progress.Bar, verbose bool) (map[string]*vcs.Repo, error) {
	if b.client == nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("not connected")}
	}

	b.log.Infof("fetching repository data from %s", b.base)

	var all []*gogithub.Repository

	opts := &gogithub.RepositoryListByAuthenticatedUserOptions{
		ListOptions: gogithub.ListOptions{PerPage: pageSize},
	}
	for {
		page, resp, err := b.client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	orgs, _, err := b.client.Organizations.List(ctx, "", &gogithub.ListOptions{PerPage: pageSize})
	if err != nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
	}
	for _, org := range orgs {
		opts := &gogithub.RepositoryListByOrgOptions{
			ListOptions: gogithub.ListOptions{PerPage: pageSize},
		}
		for {
			page, resp, err := b.client.Repositories.ListByOrg(ctx, org.GetLogin(), opts)
			if err != nil {
				return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
			}
			all = append(all, page...)
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}

	repos := make(map[string]*vcs.Repo)
	for _, r := range all {
		if r.GetFork() || r.GetArchived() {
			bar.Add(1)
			continue
		}

		// The owner login is the organization for org repositories and
		// the user for personal ones; the list payloads never carry an
		// organization object.
		id := strconv.FormatInt(r.GetID(), 10)
		repos[id] = &vcs.Repo{
			Type:          b.Name(),
			ID:            id,
			Name:          r.GetName(),
			Group:         r.GetOwner().GetLogin(),
			GroupKey:      r.GetOwner().GetLogin(),
			RepoKey:       r.GetName(),
			SSHLink:       r.GetSSHURL(),
			HTTPLink:      r.GetCloneURL(),
			DefaultBranch: r.GetDefaultBranch(),
		}
		bar.Add(1)
	}

	if len(repos) == 0 {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("no repositories returned, check your token and permissions")}
	}
	return repos, nil
}

// Enrich resolves the most recently active branch and its last committer.
// GitHub does not expose commit dates on the branch listing, so each branch
// head is fetched individually.
func (b *Backend) Enrich(ctx context.Context, repo *vcs.Repo) error {
	owner, name := repo.GroupKey, repo.RepoKey

	var latest time.Time
	var latestBranch, contactName, contactMail string

	opts := &gogithub.BranchListOptions{ListOptions: gogithub.ListOptions{PerPage: pageSize}}
	for {
		branches, resp, err := b.client.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return err
		}
		for _, branch := range branches {
			commit, _, err := b.client.Repositories.GetCommit(ctx, owner, name, branch.GetCommit().GetSHA(), nil)
			if err != nil {
				b.log.Debugf("fetching commit for branch %s of %s: %v", branch.GetName(), repo.FullName(), err)
				continue
			}
			author := commit.GetCommit().GetAuthor()
			when := author.GetDate().Time
			if latest.IsZero() || when.After(latest) {
				latest = when
				latestBranch = branch.GetName()
				contactName = author.GetName()
				contactMail = author.GetEmail()
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	repo.LatestBranch = latestBranch
	repo.ContactName = contactName
	repo.ContactMail = contactMail
	return nil
}
