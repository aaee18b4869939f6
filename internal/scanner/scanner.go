// Package scanner invokes the external secret scanner over a local working
// copy. The scanner is a black box with a three-way exit contract: neutral
// exit for no findings, a distinguished exit code for findings, anything
// else is a tool failure.
package scanner

import (
	"context"
)

// Request describes one scanner invocation.
type Request struct {
	// RepoDir is the working copy to scan.
	RepoDir string
	// ReportPath is where the scanner writes its report.
	ReportPath string
	// ConfigPath is the rule-configuration file passed to the scanner.
	ConfigPath string
	// ReportFormat selects the report rendering (csv, json, junit, sarif).
	ReportFormat string
	// Redact asks the scanner to redact matched secrets in the report.
	Redact bool
	// EnabledRules restricts the scan to the listed rule IDs. Empty means
	// all rules.
	EnabledRules []string
}

// Result is the structured outcome of a successful invocation. Findings is
// zero for a clean scan; a clean scan has no report (the empty file is
// removed).
type Result struct {
	Findings   int
	ReportPath string
}

// Scanner runs one scan. A scan with findings is a normal outcome, not an
// error; only tool failures return a non-nil error.
type Scanner interface {
	Scan(ctx context.Context, req Request) (Result, error)
}
