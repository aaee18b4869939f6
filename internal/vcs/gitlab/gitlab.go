// Package gitlab integrates GitLab (self-hosted or gitlab.com) as a hosting
// backend.
package gitlab

import (
	"context"
	"errors"
	"strconv"
	"time"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/progress"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

const pageSize = 100

type Backend struct {
	log    *logging.Logger
	client *gogitlab.Client
	creds  vcs.Credentials
}

func New(log *logging.Logger) vcs.Backend {
	return &Backend{log: log.WithBackend("gitlab")}
}

func (b *Backend) Name() string      { return "gitlab" }
func (b *Backend) ShortName() string { return "gl" }

func (b *Backend) GitCredentials() (string, string) {
	return "oauth2", b.creds.Token
}

func (b *Backend) Connect(ctx context.Context, creds vcs.Credentials) error {
	b.creds = creds

	b.log.Infof("connecting to %s", creds.BaseURL)
	client, err := gogitlab.NewClient(creds.Token, gogitlab.WithBaseURL(creds.BaseURL))
	if err != nil {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL, Err: err}
	}

	user, _, err := client.Users.CurrentUser(gogitlab.WithContext(ctx))
	if err != nil {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL, Err: err}
	}

	b.client = client
	b.log.Infof("connected as %s", user.Username)
	return nil
}

func (b *Backend) FetchAll(ctx context.Context, bar *progress.Bar, verbose bool) (map[string]*vcs.Repo, error) {
	if b.client == nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("not connected")}
	}

	b.log.Infof("fetching repository data from %s", b.creds.BaseURL)

	repos := make(map[string]*vcs.Repo)

	opts := &gogitlab.ListProjectsOptions{
		ListOptions: gogitlab.ListOptions{PerPage: pageSize},
		Archived:    gogitlab.Ptr(false),
	}
	for {
		projects, resp, err := b.client.Projects.ListProjects(opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
		}

		for _, project := range projects {
			bar.Add(1)
			// Personal namespaces are out of scope, as are empty
			// repositories.
			if project.EmptyRepo || project.Namespace == nil || project.Namespace.Kind == "user" {
				continue
			}

			id := strconv.Itoa(project.ID)
			repos[id] = &vcs.Repo{
				Type:          b.Name(),
				ID:            id,
				Name:          project.Name,
				Group:         project.Namespace.FullPath,
				GroupKey:      project.Namespace.FullPath,
				RepoKey:       id,
				SSHLink:       project.SSHURLToRepo,
				HTTPLink:      project.HTTPURLToRepo,
				DefaultBranch: project.DefaultBranch,
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if len(repos) == 0 {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("no repositories returned, check your token and permissions")}
	}
	return repos, nil
}

// Enrich resolves the most recently active branch and its last committer
// from the branch listing, which carries the head commit inline.
func (b *Backend) Enrich(ctx context.Context, repo *vcs.Repo) error {
	var latest time.Time
	var latestBranch, contactName, contactMail string

	opts := &gogitlab.ListBranchesOptions{
		ListOptions: gogitlab.ListOptions{PerPage: pageSize},
	}
	for {
		branches, resp, err := b.client.Branches.ListBranches(repo.RepoKey, opts, gogitlab.WithContext(ctx))
		if err != nil {
			return err
		}
		for _, branch := range branches {
			if branch.Commit == nil || branch.Commit.CommittedDate == nil {
				continue
			}
			when := *branch.Commit.CommittedDate
			if latest.IsZero() || when.After(latest) {
				latest = when
				latestBranch = branch.Name
				contactName = branch.Commit.AuthorName
				contactMail = branch.Commit.AuthorEmail
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
