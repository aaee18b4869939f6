package store_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/leaksweep/leaksweep/internal/store"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

func intptr(n int) *int { return &n }

func TestReconcileEmptyCurrent(t *testing.T) {
	fresh := map[string]*vcs.Repo{
		"1": {Type: "gitlab", ID: "1", Name: "svc"},
	}

	result, err := store.Reconcile(nil, fresh)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(fresh, result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestReconcileEmptyFresh(t *testing.T) {
	if _, err := store.Reconcile(nil, nil); err == nil {
		t.Fatal("expected error for empty fresh set")
	}
}

func TestReconcileProtectsScanState(t *testing.T) {
	current := map[string]*vcs.Repo{
		"1": {
			Type:         "gitlab",
			ID:           "1",
			Name:         "svc",
			Group:        "old-group",
			Folder:       "output/repos/gitlab/old-group/svc",
			Scanned:      "main",
			SecretsFound: intptr(4),
			ReportPath:   "output/reports/gitlab.old-group__svc.csv",
		},
	}
	fresh := map[string]*vcs.Repo{
		"1": {
			Type:          "gitlab",
			ID:            "1",
			Name:          "svc",
			Group:         "new-group",
			DefaultBranch: "main",
			// A backend must never be able to clobber scan state, even if
			// it hands back values for those fields.
			Scanned:      "develop",
			SecretsFound: intptr(0),
			ReportPath:   "bogus",
		},
	}

	result, err := store.Reconcile(current, fresh)
	if err != nil {
		t.Fatal(err)
	}

	want := &vcs.Repo{
		Type:          "gitlab",
		ID:            "1",
		Name:          "svc",
		Group:         "new-group",
		DefaultBranch: "main",
		Folder:        "output/repos/gitlab/old-group/svc",
		Scanned:       "main",
		SecretsFound:  intptr(4),
		ReportPath:    "output/reports/gitlab.old-group__svc.csv",
	}
	if diff := cmp.Diff(want, result["1"]); diff != "" {
		t.Fatalf("unexpected merge (-want +got):\n%s", diff)
	}
}

func TestReconcileInsertsAndRetains(t *testing.T) {
	current := map[string]*vcs.Repo{
		"gone": {Type: "gitlab", ID: "gone", Name: "removed-upstream", Scanned: "main"},
	}
	fresh := map[string]*vcs.Repo{
		"new": {Type: "gitlab", ID: "new", Name: "brand-new"},
	}

	result, err := store.Reconcile(current, fresh)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := result["gone"]; !ok {
		t.Fatal("repository removed upstream must be retained")
	}
	if _, ok := result["new"]; !ok {
		t.Fatal("new repository must be inserted")
	}
}

func TestReconcileIdempotent(t *testing.T) {
	fresh := func() map[string]*vcs.Repo {
		return map[string]*vcs.Repo{
			"1": {Type: "gitlab", ID: "1", Name: "svc", Group: "grp", DefaultBranch: "main"},
			"2": {Type: "gitlab", ID: "2", Name: "lib", Group: "grp"},
		}
	}
	current := map[string]*vcs.Repo{
		"1": {Type: "gitlab", ID: "1", Name: "svc", Group: "grp", Scanned: "main", SecretsFound: intptr(1)},
	}

	once, err := store.Reconcile(current, fresh())
	if err != nil {
		t.Fatal(err)
	}

	// Snapshot before the second merge, Reconcile updates its input in place.
	snapshot := make(map[string]vcs.Repo, len(once))
	for id, repo := range once {
		snapshot[id] = *repo
	}

	twice, err := store.Reconcile(once, fresh())
	if err != nil {
		t.Fatal(err)
	}

	for id, want := range snapshot {
		if diff := cmp.Diff(&want, twice[id]); diff != "" {
			t.Fatalf("reconcile is not idempotent for %s (-once +twice):\n%s", id, diff)
		}
	}
}
