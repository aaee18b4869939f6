package gitsync_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/leaksweep/leaksweep/internal/gitsync"
	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

// fakeGit records the operations the state machine performs against the
// collaborator interface.
type fakeGit struct {
	workspaces map[string]*fakeWorkspace
	inited     []string
}

func newFakeGit() *fakeGit {
	return &fakeGit{workspaces: make(map[string]*fakeWorkspace)}
}

func (g *fakeGit) Open(path string) (gitsync.Workspace, error) {
	ws, ok := g.workspaces[path]
	if !ok {
		return nil, gitsync.ErrNotARepository
	}
	return ws, nil
}

func (g *fakeGit) Init(path string) (gitsync.Workspace, error) {
	g.inited = append(g.inited, path)
	ws := &fakeWorkspace{ops: &[]string{}}
	g.workspaces[path] = ws
	return ws, nil
}

type fakeWorkspace struct {
	ops       *[]string
	remote    string
	branch    string
	local     map[string]bool
	fetchErr  error
	resetErr  error
	lastAuth  gitsync.Auth
	lastForce bool
}

func (w *fakeWorkspace) record(op string) { *w.ops = append(*w.ops, op) }

func (w *fakeWorkspace) RemoteURL() (string, error)     { return w.remote, nil }
func (w *fakeWorkspace) CurrentBranch() (string, error) { return w.branch, nil }

func (w *fakeWorkspace) AddRemote(url string) error {
	w.remote = url
	w.record("remote " + url)
	return nil
}

func (w *fakeWorkspace) Fetch(_ context.Context, branch string, auth gitsync.Auth, force bool) error {
	w.lastAuth, w.lastForce = auth, force
	if w.fetchErr != nil {
		return w.fetchErr
	}
	w.record("fetch " + branch)
	return nil
}

func (w *fakeWorkspace) HasLocalBranch(branch string) bool { return w.local[branch] }

func (w *fakeWorkspace) Checkout(branch string, create bool) error {
	w.branch = branch
	if create {
		w.record("checkout -b " + branch)
	} else {
		w.record("checkout " + branch)
	}
	return nil
}

func (w *fakeWorkspace) ResetHard(branch string) error {
	if w.resetErr != nil {
		return w.resetErr
	}
	w.record("reset " + branch)
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError}, io.Discard)
}

func TestFirstClone(t *testing.T) {
	g := newFakeGit()
	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{
		Type:          "gitlab",
		Group:         "org",
		Name:          "repo",
		HTTPLink:      "https://host/org/repo.git",
		DefaultBranch: "main",
		Folder:        filepath.Join(t.TempDir(), "org", "repo"),
	}

	auth := gitsync.Auth{Username: "oauth2", Password: "token"}
	if err := s.Sync(t.Context(), repo, "main", auth); err != nil {
		t.Fatal(err)
	}

	if len(g.inited) != 1 || g.inited[0] != repo.Folder {
		t.Fatalf("expected a single init of %s, got %v", repo.Folder, g.inited)
	}

	ws := g.workspaces[repo.Folder]
	want := []string{
		"remote https://host/org/repo.git",
		"fetch main",
		"checkout -b main",
	}
	if diff := cmp.Diff(want, *ws.ops); diff != "" {
		t.Fatalf("unexpected operation sequence (-want +got):\n%s", diff)
	}
	if ws.branch != "main" {
		t.Fatalf("expected checked-out branch main, got %q", ws.branch)
	}
	if ws.lastAuth != auth {
		t.Fatal("fetch must use the backend git credentials")
	}
	if ws.lastForce {
		t.Fatal("first clone fetch must not be forced")
	}
}

func TestOriginMismatchLeavesFolderUntouched(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir()
	ws := &fakeWorkspace{ops: &[]string{}, remote: "https://host/other/repo.git", branch: "main"}
	g.workspaces[folder] = ws

	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{
		Type:     "gitlab",
		Group:    "org",
		Name:     "repo",
		HTTPLink: "https://host/org/repo.git",
		Folder:   folder,
	}

	err := s.Sync(t.Context(), repo, "main", gitsync.Auth{})
	var invalid *gitsync.InvalidWorkdirError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidWorkdirError, got %v", err)
	}
	if invalid.Folder != folder {
		t.Fatalf("error must name the offending folder, got %q", invalid.Folder)
	}
	if len(*ws.ops) != 0 {
		t.Fatalf("the folder must not be mutated, got operations %v", *ws.ops)
	}
}

func TestFolderWithoutGitMetadata(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir() // exists, but fakeGit has no workspace for it

	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{Group: "org", Name: "repo", HTTPLink: "https://host/org/repo.git", Folder: folder}

	err := s.Sync(t.Context(), repo, "main", gitsync.Auth{})
	var invalid *gitsync.InvalidWorkdirError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidWorkdirError, got %v", err)
	}
}

func TestUpdateFetchesAndResets(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir()
	ws := &fakeWorkspace{
		ops:    &[]string{},
		remote: "https://host/org/repo.git",
		branch: "develop",
		local:  map[string]bool{"develop": true},
	}
	g.workspaces[folder] = ws

	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{Group: "org", Name: "repo", HTTPLink: "https://host/org/repo.git", Folder: folder}

	if err := s.Sync(t.Context(), repo, "main", gitsync.Auth{}); err != nil {
		t.Fatal(err)
	}

	want := []string{"fetch main", "checkout -b main", "reset main"}
	if diff := cmp.Diff(want, *ws.ops); diff != "" {
		t.Fatalf("unexpected operation sequence (-want +got):\n%s", diff)
	}
	if !ws.lastForce {
		t.Fatal("update fetch must force-update the remote-tracking ref")
	}
}

func TestUpdateSwitchesWithoutCreateWhenBranchExists(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir()
	ws := &fakeWorkspace{
		ops:    &[]string{},
		remote: "https://host/org/repo.git",
		branch: "develop",
		local:  map[string]bool{"develop": true, "main": true},
	}
	g.workspaces[folder] = ws

	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{Group: "org", Name: "repo", HTTPLink: "https://host/org/repo.git", Folder: folder}

	if err := s.Sync(t.Context(), repo, "main", gitsync.Auth{}); err != nil {
		t.Fatal(err)
	}

	want := []string{"fetch main", "checkout main", "reset main"}
	if diff := cmp.Diff(want, *ws.ops); diff != "" {
		t.Fatalf("unexpected operation sequence (-want +got):\n%s", diff)
	}
}

func TestNoUpdateWhenAlreadyOnTarget(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir()
	ws := &fakeWorkspace{ops: &[]string{}, remote: "https://host/org/repo.git", branch: "main"}
	g.workspaces[folder] = ws

	s := gitsync.New(g, testLogger(), false) // updates disabled
	repo := &vcs.Repo{Group: "org", Name: "repo", HTTPLink: "https://host/org/repo.git", Folder: folder}

	if err := s.Sync(t.Context(), repo, "main", gitsync.Auth{}); err != nil {
		t.Fatal(err)
	}
	if len(*ws.ops) != 0 {
		t.Fatalf("expected a no-op, got operations %v", *ws.ops)
	}
}

func TestFetchFailureLeavesStateUntouched(t *testing.T) {
	g := newFakeGit()
	folder := t.TempDir()
	ws := &fakeWorkspace{
		ops:      &[]string{},
		remote:   "https://host/org/repo.git",
		branch:   "develop",
		fetchErr: errors.New("remote hung up"),
	}
	g.workspaces[folder] = ws

	s := gitsync.New(g, testLogger(), true)
	repo := &vcs.Repo{Group: "org", Name: "repo", HTTPLink: "https://host/org/repo.git", Folder: folder}

	if err := s.Sync(t.Context(), repo, "main", gitsync.Auth{}); err == nil {
		t.Fatal("expected fetch error to surface")
	}
	if ws.branch != "develop" {
		t.Fatalf("checked-out branch must be untouched after fetch failure, got %q", ws.branch)
	}
	if len(*ws.ops) != 0 {
		t.Fatalf("no mutation expected after fetch failure, got %v", *ws.ops)
	}
}

func TestMissingTargetBranch(t *testing.T) {
	s := gitsync.New(newFakeGit(), testLogger(), true)
	repo := &vcs.Repo{Group: "org", Name: "repo", Folder: filepath.Join(t.TempDir(), "wc")}

	if err := s.Sync(t.Context(), repo, "", gitsync.Auth{}); err == nil {
		t.Fatal("expected error for unresolved target branch")
	}
	if _, err := os.Stat(repo.Folder); !os.IsNotExist(err) {
		t.Fatal("no folder must be created for a repository without a branch")
	}
}
