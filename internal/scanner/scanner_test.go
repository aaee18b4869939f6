package scanner_test

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/leaksweep/leaksweep/internal/logging"
	"github.com/leaksweep/leaksweep/internal/scanner"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError}, io.Discard)
}

// stub writes an executable standing in for gitleaks that exits with the
// given code, printing the given stderr output.
func stub(t *testing.T, exitCode int, stderr string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub scanner requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "gitleaks-stub")
	script := "#!/bin/sh\n"
	if stderr != "" {
		script += "echo '" + stderr + "' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestScanClean(t *testing.T) {
	repoDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "reports", "x.csv")

	g := scanner.NewGitleaks("", true, testLogger())
	g.Binary = stub(t, 0, "")

	result, err := g.Scan(t.Context(), scanner.Request{
		RepoDir:      repoDir,
		ReportPath:   reportPath,
		ConfigPath:   "gitleaks.toml",
		ReportFormat: "csv",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Findings != 0 || result.ReportPath != "" {
		t.Fatalf("expected clean result, got %+v", result)
	}
}

func TestScanFindings(t *testing.T) {
	repoDir := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "reports", "x.csv")

	g := scanner.NewGitleaks("", true, testLogger())
	g.Binary = stub(t, 3, "4:20PM INF scanned ~1234 bytes in 10ms\n4:20PM WRN leaks found: 7")

	result, err := g.Scan(t.Context(), scanner.Request{
		RepoDir:      repoDir,
		ReportPath:   reportPath,
		ConfigPath:   "gitleaks.toml",
		ReportFormat: "csv",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Findings != 7 {
		t.Fatalf("expected 7 findings, got %d", result.Findings)
	}
	if result.ReportPath != reportPath {
		t.Fatalf("expected report at %s, got %s", reportPath, result.ReportPath)
	}
}

func TestScanToolFailure(t *testing.T) {
	repoDir := t.TempDir()

	g := scanner.NewGitleaks("", true, testLogger())
	g.Binary = stub(t, 2, "fatal: bad config")

	_, err := g.Scan(t.Context(), scanner.Request{
		RepoDir:      repoDir,
		ReportPath:   filepath.Join(t.TempDir(), "x.csv"),
		ConfigPath:   "gitleaks.toml",
		ReportFormat: "csv",
	})
	if err == nil {
		t.Fatal("expected tool failure error")
	}
	if !strings.Contains(err.Error(), "exit code 2") || !strings.Contains(err.Error(), "bad config") {
		t.Fatalf("tool failure must carry diagnostics, got: %v", err)
	}
}

func TestScanMissingWorkingCopy(t *testing.T) {
	g := scanner.NewGitleaks("", true, testLogger())
	g.Binary = "/nonexistent"

	_, err := g.Scan(t.Context(), scanner.Request{
		RepoDir:    filepath.Join(t.TempDir(), "never-cloned"),
		ReportPath: filepath.Join(t.TempDir(), "x.csv"),
	})
	if err == nil {
		t.Fatal("expected error for missing working copy")
	}
}

func TestAllowedRules(t *testing.T) {
	dir := t.TempDir()
	config := `
title = "custom"

[extend]
disabledRules = ["generic-api-key"]

[[rules]]
id = "aws-access-token"

[[rules]]
id = "generic-api-key"

[[rules]]
id = "slack-webhook"
`
	path := filepath.Join(dir, "gitleaks.toml")
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := scanner.AllowedRules([]string{path}, "key|token")
	if err != nil {
		t.Fatal(err)
	}

	// generic-api-key matches the filter but is disabled.
	want := []string{"aws-access-token"}
	if diff := cmp.Diff(want, rules); diff != "" {
		t.Fatalf("unexpected rules (-want +got):\n%s", diff)
	}
}

func TestAllowedRulesNoPattern(t *testing.T) {
	rules, err := scanner.AllowedRules(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if rules != nil {
		t.Fatalf("expected no restriction, got %v", rules)
	}
}
