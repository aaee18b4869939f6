package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/leaksweep/leaksweep/internal/logging"
)

// exitFindings is the distinguished exit code gitleaks is instructed to use
// when it finds secrets (--exit-code). It deliberately matches the overall
// process exit code for "findings present".
const exitFindings = 3

var findingsRE = regexp.MustCompile(`leaks found: (\d+)`)

// Gitleaks runs the gitleaks binary, either directly or through a docker
// image, against one working copy at a time.
type Gitleaks struct {
	// Binary is the executable to invoke. Defaults to "gitleaks" (or
	// "docker" when Image is set); tests point it at a stub.
	Binary string
	// Image is the docker image to run gitleaks from. Empty means a local
	// gitleaks install.
	Image string
	// MaxTargetMegabytes skips files larger than this many megabytes.
	MaxTargetMegabytes int

	log *logging.Logger
}

func NewGitleaks(image string, local bool, log *logging.Logger) *Gitleaks {
	g := &Gitleaks{Image: image, MaxTargetMegabytes: 1, log: log}
	if local {
		g.Image = ""
	}
	return g
}

// CheckInstalled verifies the scanner can be invoked at all, so a
// misconfigured host fails before any repository work starts.
func (g *Gitleaks) CheckInstalled() error {
	name := g.binary()
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s command not available: %w", name, err)
	}
	return nil
}

func (g *Gitleaks) binary() string {
	if g.Binary != "" {
		return g.Binary
	}
	if g.Image != "" {
		return "docker"
	}
	return "gitleaks"
}

func (g *Gitleaks) Scan(ctx context.Context, req Request) (Result, error) {
	if _, err := os.Stat(req.RepoDir); err != nil {
		return Result{}, fmt.Errorf("repository not available locally, expected %s: %w", req.RepoDir, err)
	}
	if err := os.MkdirAll(filepath.Dir(req.ReportPath), 0755); err != nil {
		return Result{}, err
	}

	args, err := g.args(req)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, g.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.log.Debugf("running %s %v", g.binary(), args)

	err = cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("running %s: %w", g.binary(), err)
		}
		code = exitErr.ExitCode()
	}

	switch code {
	case 0:
		// Clean scan; drop the empty report.
		os.Remove(req.ReportPath)
		return Result{}, nil
	case exitFindings:
		return Result{Findings: parseFindings(stderr.String()), ReportPath: req.ReportPath}, nil
	default:
		return Result{}, fmt.Errorf("scanner failed (exit code %d):\n---- stderr: ----\n%s\n---- stdout: ----\n%s",
			code, stderr.String(), stdout.String())
	}
}

func (g *Gitleaks) args(req Request) ([]string, error) {
	repoDir := req.RepoDir
	reportPath := req.ReportPath
	configPath := req.ConfigPath

	var args []string
	if g.Image != "" {
		absRepo, err := filepath.Abs(req.RepoDir)
		if err != nil {
			return nil, err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		repoDir = "/repo"
		reportPath = "/app/" + filepath.ToSlash(req.ReportPath)
		args = append(args,
			"run", "--rm",
			"-w", "/app",
			"--mount", fmt.Sprintf("type=bind,src=%s,dst=%s,ro", absRepo, repoDir),
			"-v", cwd+":/app",
			g.Image,
		)
	}

	args = append(args,
		"dir", repoDir,
		"--max-target-megabytes", strconv.Itoa(g.MaxTargetMegabytes),
		"--exit-code", strconv.Itoa(exitFindings),
		"--report-path", reportPath,
		"--report-format", req.ReportFormat,
	)
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if req.Redact {
		args = append(args, "--redact=60")
	}
	for _, rule := range req.EnabledRules {
		args = append(args, "--enable-rule", rule)
	}
	return args, nil
}

// parseFindings extracts the finding count from the scanner's diagnostic
// stream. Zero if the count line is missing; the distinguished exit code
// alone already established that findings exist.
func parseFindings(stderr string) int {
	m := findingsRE.FindStringSubmatch(stderr)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
