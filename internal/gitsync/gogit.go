package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// GoGit implements Git on go-git. The zero value is ready to use.
type GoGit struct{}

func (GoGit) Open(path string) (Workspace, error) {
	repo, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotARepository
	} else if err != nil {
		return nil, err
	}
	return &goGitWorkspace{repo: repo}, nil
}

func (GoGit) Init(path string) (Workspace, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, err
	}
	return &goGitWorkspace{repo: repo}, nil
}

type goGitWorkspace struct {
	repo *git.Repository
}

func (w *goGitWorkspace) RemoteURL() (string, error) {
	remote, err := w.repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return "", err
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.New("origin remote has no URL")
	}
	return urls[0], nil
}

func (w *goGitWorkspace) CurrentBranch() (string, error) {
	head, err := w.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil // unborn HEAD
	} else if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

func (w *goGitWorkspace) AddRemote(url string) error {
	_, err := w.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})
	return err
}

func (w *goGitWorkspace) Fetch(ctx context.Context, branch string, auth Auth, force bool) error {
	refspec := fmt.Sprintf("refs/heads/%s:refs/remotes/%s/%s", branch, git.DefaultRemoteName, branch)
	if force {
		refspec = "+" + refspec
	}

	// Depth 1 keeps the transfer small; fetch filters (blob size limits)
	// are not supported by go-git's FetchOptions.
	err := w.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(refspec)},
		Depth:      1,
		Tags:       git.NoTags,
		Auth:       authMethod(auth),
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

func (w *goGitWorkspace) HasLocalBranch(branch string) bool {
	_, err := w.repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	return err == nil
}

func (w *goGitWorkspace) Checkout(branch string, create bool) error {
	worktree, err := w.repo.Worktree()
	if err != nil {
		return err
	}

	opts := git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	}
	if create {
		ref, err := w.remoteRef(branch)
		if err != nil {
			return err
		}
		opts.Create = true
		opts.Hash = ref.Hash()
	}
	if err := worktree.Checkout(&opts); err != nil {
		return err
	}

	if create {
		err := w.repo.CreateBranch(&gitconfig.Branch{
			Name:   branch,
			Remote: git.DefaultRemoteName,
			Merge:  plumbing.NewBranchReferenceName(branch),
		})
		if err != nil && !errors.Is(err, git.ErrBranchExists) {
			return err
		}
	}
	return nil
}

func (w *goGitWorkspace) ResetHard(branch string) error {
	ref, err := w.remoteRef(branch)
	if err != nil {
		return err
	}
	worktree, err := w.repo.Worktree()
	if err != nil {
		return err
	}
	return worktree.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: ref.Hash()})
}

func (w *goGitWorkspace) remoteRef(branch string) (*plumbing.Reference, error) {
	return w.repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true)
}

func authMethod(auth Auth) transport.AuthMethod {
	if auth.Username == "" && auth.Password == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: auth.Username, Password: auth.Password}
}
