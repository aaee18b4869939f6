// Package gitsync brings the local working copy of one repository into
// alignment with a single remote branch. It maintains no pooling and no
// shared state; the scheduler drives it strictly sequentially, one
// repository at a time.
//
// The synchronizer does not talk to git directly. It drives the Git
// collaborator interface, so the state machine is testable against a fake
// and the go-git binding stays in one file.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/metrics"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

// Auth answers username/secret prompts for outbound git operations. Values
// come from the backend's GitCredentials and live only for the duration of a
// call; they are never persisted or logged.
type Auth struct {
	Username string
	Password string
}

// ErrNotARepository is returned by Git.Open for a folder that exists but
// carries no recognizable version-control metadata.
var ErrNotARepository = errors.New("not a git repository")

// Git abstracts creating and opening local working copies.
type Git interface {
	// Open opens an existing working copy. ErrNotARepository if the folder
	// does not hold one.
	Open(path string) (Workspace, error)
	// Init creates the folder if needed and initializes an empty repository.
	Init(path string) (Workspace, error)
}

// Workspace is one local working copy.
type Workspace interface {
	// RemoteURL returns the URL of the origin remote.
	RemoteURL() (string, error)
	// CurrentBranch returns the checked-out branch name, or "" for a
	// detached or unborn HEAD.
	CurrentBranch() (string, error)
	// AddRemote registers url as the origin remote.
	AddRemote(url string) error
	// Fetch performs a shallow, single-branch fetch of branch into
	// refs/remotes/origin/<branch>. force allows non fast-forward updates
	// of the remote-tracking ref.
	Fetch(ctx context.Context, branch string, auth Auth, force bool) error
	// HasLocalBranch reports whether a local branch of that name exists.
	HasLocalBranch(branch string) bool
	// Checkout switches to branch, creating it from the remote-tracking
	// ref when create is set.
	Checkout(branch string, create bool) error
	// ResetHard hard-resets the working copy to refs/remotes/origin/<branch>.
	ResetHard(branch string) error
}

// InvalidWorkdirError marks a working copy the synchronizer refuses to
// touch. It is never auto-deleted; the operator must remove the folder
// before the next run can proceed for that repository.
type InvalidWorkdirError struct {
	Folder string
	Reason string
}

func (e *InvalidWorkdirError) Error() string {
	return fmt.Sprintf("working copy %s: %s; remove the folder to proceed in the next run", e.Folder, e.Reason)
}

// Synchronizer is the working-copy synchronization state machine.
type Synchronizer struct {
	git    Git
	log    *logging.Logger
	update bool
}

// New creates a Synchronizer. update controls whether an existing valid
// working copy already on the target branch is fast-forwarded or left alone.
func New(g Git, log *logging.Logger, update bool) *Synchronizer {
	return &Synchronizer{git: g, log: log, update: update}
}

// Sync brings repo's working copy at repo.Folder to the tip of branch.
func (s *Synchronizer) Sync(ctx context.Context, repo *vcs.Repo, branch string, auth Auth) error {
	start := time.Now()
	metrics.SyncCount.Inc()

	if err := s.sync(ctx, repo, branch, auth); err != nil {
		metrics.SyncFailed.WithLabelValues(repo.Type).Inc()
		return fmt.Errorf("sync %s: %w", repo.FullName(), err)
	}

	metrics.SyncDuration.WithLabelValues(repo.Type).Observe(time.Since(start).Seconds())
	return nil
}

func (s *Synchronizer) sync(ctx context.Context, repo *vcs.Repo, branch string, auth Auth) error {
	if branch == "" {
		// Empty repositories never reach the scheduler's sync step.
		return errors.New("no target branch resolved")
	}

	if _, err := os.Stat(repo.Folder); errors.Is(err, os.ErrNotExist) {
		return s.clone(ctx, repo, branch, auth)
	} else if err != nil {
		return err
	}

	return s.fastForward(ctx, repo, branch, auth)
}

// clone handles the ABSENT state: initialize an empty repository, register
// the remote and fetch exactly the target branch before checking it out.
// Any failure here is fatal for this repository and not retried.
func (s *Synchronizer) clone(ctx context.Context, repo *vcs.Repo, branch string, auth Auth) error {
	s.log.Debugf("cloning %s, branch %s", repo.FullName(), branch)

	ws, err := s.git.Init(repo.Folder)
	if err != nil {
		return err
	}
	if err := ws.AddRemote(repo.HTTPLink); err != nil {
		return err
	}
	if err := ws.Fetch(ctx, branch, auth, false); err != nil {
		return fmt.Errorf("fetching %s: %w", branch, err)
	}
	return ws.Checkout(branch, true)
}

// fastForward handles a PRESENT folder: validate it, then fetch and
// hard-reset onto the remote branch tip. A fetch failure aborts before the
// checked-out state is touched.
func (s *Synchronizer) fastForward(ctx context.Context, repo *vcs.Repo, branch string, auth Auth) error {
	ws, err := s.git.Open(repo.Folder)
	if errors.Is(err, ErrNotARepository) {
		return &InvalidWorkdirError{Folder: repo.Folder, Reason: "folder exists but holds no git metadata"}
	} else if err != nil {
		return err
	}

	current, err := ws.CurrentBranch()
	if err != nil {
		return err
	}
	if !s.update && current == branch {
		return nil
	}

	origin, err := ws.RemoteURL()
	if err != nil {
		return err
	}
	if origin != repo.HTTPLink {
		return &InvalidWorkdirError{
			Folder: repo.Folder,
			Reason: fmt.Sprintf("origin %s does not match expected clone URL %s", origin, repo.HTTPLink),
		}
	}

	s.log.Debugf("updating %s, branch %s", repo.FullName(), branch)

	if err := ws.Fetch(ctx, branch, auth, true); err != nil {
		return fmt.Errorf("fetching %s, leaving working copy untouched: %w", branch, err)
	}
	if err := ws.Checkout(branch, !ws.HasLocalBranch(branch)); err != nil {
		return err
	}
	if err := ws.ResetHard(branch); err != nil {
		return fmt.Errorf("resetting onto origin/%s: %w", branch, err)
	}
	return nil
}
