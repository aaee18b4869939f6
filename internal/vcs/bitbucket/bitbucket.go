// Package bitbucket integrates Bitbucket Data Center / Server (REST API
// 1.0) as a hosting backend.
package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/progress"
	"github.com/leaksweep/leaksweep/internal/vcs"
	"github.com/leaksweep/leaksweep/internal/vcs/httpapi"
)

const pageSize = 100

// latestCommitMetadata is the branch metadata key carrying the head
// commit's author and timestamp when branches are listed with details.
const latestCommitMetadata = "com.atlassian.bitbucket.server.bitbucket-branch:latest-commit-metadata"

type Backend struct {
	log   *logging.Logger
	api   *httpapi.Client
	creds vcs.Credentials
}

func New(log *logging.Logger) vcs.Backend {
	return &Backend{log: log.WithBackend("bitbucket_dc")}
}

func (b *Backend) Name() string      { return "bitbucket_dc" }
func (b *Backend) ShortName() string { return "bb" }

func (b *Backend) GitCredentials() (string, string) {
	return "x-token-auth", b.creds.Token
}

type page[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart *int `json:"nextPageStart"`
}

type project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type repository struct {
	ID            int    `json:"id"`
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	State         string `json:"state"`
	Archived      bool   `json:"archived"`
	DefaultBranch *struct {
		DisplayID string `json:"displayId"`
	} `json:"defaultBranch"`
	Links struct {
		Clone []cloneLink `json:"clone"`
	} `json:"links"`
}

type cloneLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type branch struct {
	DisplayID string                    `json:"displayId"`
	IsDefault bool                      `json:"isDefault"`
	Metadata  map[string]commitMetadata `json:"metadata"`
}

type commitMetadata struct {
	AuthorTimestamp int64 `json:"authorTimestamp"`
	Author          struct {
		DisplayName  string `json:"displayName"`
		EmailAddress string `json:"emailAddress"`
	} `json:"author"`
}

func (b *Backend) Connect(ctx context.Context, creds vcs.Credentials) error {
	b.creds = creds
	b.api = httpapi.New(creds.BaseURL+"/rest/api/1.0", httpapi.BearerAuth(creds.Token))

	b.log.Infof("connecting to %s", creds.BaseURL)

	var probe page[project]
	query := url.Values{"limit": {"1"}}
	if err := b.api.GetJSON(ctx, "projects", query, &probe); err != nil {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL, Err: err}
	}
	if len(probe.Values) == 0 {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL,
			Err: errors.New("no projects visible, check your token and permissions")}
	}
	return nil
}

func (b *Backend) FetchAll(ctx context.Context, bar *progress.Bar, verbose bool) (map[string]*vcs.Repo, error) {
	if b.api == nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("not connected")}
	}

	b.log.Infof("fetching repository data from %s", b.creds.BaseURL)

	projects, err := paged[project](ctx, b.api, "projects", nil)
	if err != nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
	}

	repos := make(map[string]*vcs.Repo)
	for _, proj := range projects {
		bar.Add(1)
		if proj.Type != "NORMAL" {
			continue
		}
		if verbose {
			b.log.Debugf("fetching repositories of project %s", proj.Key)
		}

		items, err := paged[repository](ctx, b.api, fmt.Sprintf("projects/%s/repos", proj.Key), nil)
		if err != nil {
			return nil, &vcs.FetchError{Backend: b.Name(), Err: fmt.Errorf("project %s: %w", proj.Key, err)}
		}

		for _, item := range items {
			if item.Archived || item.State != "AVAILABLE" {
				continue
			}

			repo := &vcs.Repo{
				Type:     b.Name(),
				ID:       strconv.Itoa(item.ID),
				Name:     item.Name,
				Group:    proj.Name,
				GroupKey: proj.Key,
				RepoKey:  item.Slug,
			}
			if item.DefaultBranch != nil {
				repo.DefaultBranch = item.DefaultBranch.DisplayID
			}
			for _, link := range item.Links.Clone {
				switch link.Name {
				case "ssh":
					repo.SSHLink = link.Href
				case "http", "https":
					repo.HTTPLink = link.Href
				}
			}
			repos[repo.ID] = repo
		}
	}

	if len(repos) == 0 {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("no repositories returned, check your token and permissions")}
	}
	return repos, nil
}

// Enrich resolves branch activity from the details branch listing; the
// default branch is refreshed at the same time since the listing flags it.
func (b *Backend) Enrich(ctx context.Context, repo *vcs.Repo) error {
	path := fmt.Sprintf("projects/%s/repos/%s/branches", repo.GroupKey, repo.RepoKey)
	branches, err := paged[branch](ctx, b.api, path, url.Values{"details": {"true"}})
	if err != nil {
		return err
	}

	var latest time.Time
	var latestBranch, defaultBranch, contactName, contactMail string

	for _, br := range branches {
		if meta, ok := br.Metadata[latestCommitMetadata]; ok {
			when := time.UnixMilli(meta.AuthorTimestamp)
			if latest.IsZero() || when.After(latest) {
				latest = when
				latestBranch = br.DisplayID
				contactName = meta.Author.DisplayName
				contactMail = meta.Author.EmailAddress
			}
		}
		if br.IsDefault {
			defaultBranch = br.DisplayID
		}
	}

	repo.LatestBranch = latestBranch
	if defaultBranch != "" {
		repo.DefaultBranch = defaultBranch
	}
	repo.ContactName = contactName
	repo.ContactMail = contactMail
	return nil
}

// paged walks Bitbucket Server's start/limit pagination.
func paged[T any](ctx context.Context, api *httpapi.Client, path string, query url.Values) ([]T, error) {
	var all []T
	start := 0
	for {
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "start": {strconv.Itoa(start)}}
		for k, vs := range query {
			q[k] = vs
		}

		var p page[T]
		if err := api.GetJSON(ctx, path, q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Values...)

		if p.IsLastPage || p.NextPageStart == nil {
			return all, nil
		}
		start = *p.NextPageStart
	}
}
