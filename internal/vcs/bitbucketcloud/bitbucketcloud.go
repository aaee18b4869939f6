// Package bitbucketcloud integrates Bitbucket Cloud (REST API 2.0) as a
// hosting backend. Authentication is username + app password, configured as
// a single token of the form "username:app-password".
package bitbucketcloud

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/progress"
	"github.com/leaksweep/leaksweep/internal/vcs"
	"github.com/leaksweep/leaksweep/internal/vcs/httpapi"
)

type Backend struct {
	log      *logging.Logger
	api      *httpapi.Client
	base     string
	username string
	password string
}

func New(log *logging.Logger) vcs.Backend {
	return &Backend{log: log.WithBackend("bitbucket_cloud")}
}

func (b *Backend) Name() string      { return "bitbucket_cloud" }
func (b *Backend) ShortName() string { return "bc" }

func (b *Backend) GitCredentials() (string, string) {
	return b.username, b.password
}

type page[T any] struct {
	Values []T    `json:"values"`
	Next   string `json:"next"`
}

type workspace struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type repository struct {
	UUID       string `json:"uuid"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	MainBranch *struct {
		Name string `json:"name"`
	} `json:"mainbranch"`
	Links struct {
		Clone []cloneLink `json:"clone"`
	} `json:"links"`
}

type cloneLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type commit struct {
	Hash   string `json:"hash"`
	Date   string `json:"date"`
	Author struct {
		Raw  string `json:"raw"`
		User struct {
			DisplayName string `json:"display_name"`
		} `json:"user"`
	} `json:"author"`
}

type ref struct {
	Name   string `json:"name"`
	Target struct {
		Hash string `json:"hash"`
	} `json:"target"`
}

func (b *Backend) Connect(ctx context.Context, creds vcs.Credentials) error {
	username, password, ok := strings.Cut(creds.Token, ":")
	if !ok {
		return &vcs.ConnectionError{Backend: b.Name(), URL: creds.BaseURL,
			Err: errors.New("username missing from token, format it as 'username:app-password'")}
	}
	b.username, b.password = username, password
	b.base = creds.BaseURL
	b.api = httpapi.New(creds.BaseURL, httpapi.BasicAuth(username, password))

	b.log.Infof("connecting to %s", b.base)

	var probe page[workspace]
	if err := b.api.GetJSON(ctx, "workspaces", nil, &probe); err != nil {
		return &vcs.ConnectionError{Backend: b.Name(), URL: b.base, Err: err}
	}
	if len(probe.Values) == 0 {
		return &vcs.ConnectionError{Backend: b.Name(), URL: b.base,
			Err: errors.New("no workspaces visible, check your credentials and permissions")}
	}
	return nil
}

func (b *Backend) FetchAll(ctx context.Context, bar *progress.Bar, verbose bool) (map[string]*vcs.Repo, error) {
	if b.api == nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("not connected")}
	}

	b.log.Infof("fetching repository data from %s", b.base)

	var workspaces page[workspace]
	if err := b.api.GetJSON(ctx, "workspaces", nil, &workspaces); err != nil {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: err}
	}

	repos := make(map[string]*vcs.Repo)
	for _, ws := range workspaces.Values {
		bar.Add(1)
		if verbose {
			b.log.Debugf("fetching repositories of workspace %s", ws.Slug)
		}

		path := "repositories/" + ws.Slug
		for path != "" {
			var p page[repository]
			if err := b.api.GetJSON(ctx, path, nil, &p); err != nil {
				return nil, &vcs.FetchError{Backend: b.Name(), Err: fmt.Errorf("workspace %s: %w", ws.Slug, err)}
			}

			for _, item := range p.Values {
				if item.Type != "repository" {
					continue
				}

				// The repository UUID is the entity key, kept verbatim.
				repo := &vcs.Repo{
					Type:     b.Name(),
					ID:       item.UUID,
					Name:     item.Name,
					Group:    ws.Name,
					GroupKey: ws.Slug,
					RepoKey:  item.Slug,
				}
				if item.MainBranch != nil {
					repo.DefaultBranch = item.MainBranch.Name
				}
				for _, link := range item.Links.Clone {
					switch link.Name {
					case "ssh":
						repo.SSHLink = link.Href
					case "https", "http":
						repo.HTTPLink = link.Href
					}
				}
				repos[repo.ID] = repo
			}

			path = nextPath(p.Next)
		}
	}

	if len(repos) == 0 {
		return nil, &vcs.FetchError{Backend: b.Name(), Err: errors.New("no repositories returned, check your credentials and permissions")}
	}
	return repos, nil
}

// Enrich finds the most recent commit and maps it back to the branch whose
// head it is. The commits listing is newest-first.
func (b *Backend) Enrich(ctx context.Context, repo *vcs.Repo) error {
	prefix := fmt.Sprintf("repositories/%s/%s", repo.GroupKey, repo.RepoKey)

	var commits page[commit]
	if err := b.api.GetJSON(ctx, prefix+"/commits", nil, &commits); err != nil {
		return err
	}
	if len(commits.Values) == 0 {
		return nil
	}
	head := commits.Values[0]

	repo.ContactName = head.Author.User.DisplayName
	repo.ContactMail = mailFromRaw(head.Author.Raw)

	var branches page[ref]
	if err := b.api.GetJSON(ctx, prefix+"/refs/branches", nil, &branches); err != nil {
		return err
	}
	for _, br := range branches.Values {
		if br.Target.Hash == head.Hash {
			repo.LatestBranch = br.Name
			break
		}
	}
	return nil
}

// nextPath strips the API base from the absolute next-page URL the API
// returns, keeping path and query.
func nextPath(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	path := strings.TrimPrefix(u.Path, "/2.0/")
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// mailFromRaw extracts the address from a raw "Name <mail>" author string.
func mailFromRaw(raw string) string {
	start := strings.Index(raw, "<")
	end := strings.LastIndex(raw, ">")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return raw[start+1 : end]
}
