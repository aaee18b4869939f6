package filter_test

import (
	"errors"
	"testing"

	"github.com/leaksweep/leaksweep/internal/filter"
	"github.com/leaksweep/leaksweep/internal/vcs"
)

func TestMatchPrecedence(t *testing.T) {
	repo := &vcs.Repo{Group: "Alpha", Name: "beta-svc"}

	tests := []struct {
		note      string
		group     string
		repoExpr  string
		groupRepo string
		want      bool
	}{
		{note: "no patterns", want: true},
		{note: "group matches case-insensitively", group: "alpha", want: true},
		{note: "repo pattern misses", repoExpr: "gamma", want: false},
		{note: "both match", group: "alpha", repoExpr: "beta", want: true},
		{note: "group matches but repo misses (AND semantics)", group: "alpha", repoExpr: "gamma", want: false},
		{note: "group misses", group: "omega", want: false},
		{note: "combined matches name", groupRepo: "beta", want: true},
		{note: "combined matches group", groupRepo: "alph", want: true},
		{note: "combined misses both", groupRepo: "gamma", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			f, err := filter.New(tc.group, tc.repoExpr, tc.groupRepo)
			if err != nil {
				t.Fatal(err)
			}
			if got := f.Match(repo); got != tc.want {
				t.Fatalf("Match() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConflictingPatterns(t *testing.T) {
	if _, err := filter.New("alpha", "", "beta"); !errors.Is(err, filter.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := filter.New("", "alpha", "beta"); !errors.Is(err, filter.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInvalidPattern(t *testing.T) {
	if _, err := filter.New("[", "", ""); err == nil {
		t.Fatal("expected error for invalid regular expression")
	}
	if _, err := filter.New("", "", "("); err == nil {
		t.Fatal("expected error for invalid combined expression")
	}
}

func TestApplyAndOrder(t *testing.T) {
	repos := map[string]*vcs.Repo{
		"gitlab/2": {Type: "gitlab", ID: "2", Group: "Alpha", Name: "zeta"},
		"gitlab/1": {Type: "gitlab", ID: "1", Group: "Alpha", Name: "beta-svc"},
		"gitlab/3": {Type: "gitlab", ID: "3", Group: "Omega", Name: "beta-lib"},
	}

	f, err := filter.New("alpha", "", "")
	if err != nil {
		t.Fatal(err)
	}

	narrowed := f.Apply(repos)
	if len(narrowed) != 2 {
		t.Fatalf("expected 2 in-scope repositories, got %d", len(narrowed))
	}

	ordered := f.Order(repos)
	if len(ordered) != 2 || ordered[0].ID != "1" || ordered[1].ID != "2" {
		t.Fatalf("expected stable key order [1 2], got %v", ordered)
	}
}
