package execution

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
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/internal/parser"
	"github.com/kamilpajak/smarttest/pkg/models"
	"go.uber.org/zap"
)

// waitDelay bounds how long a killed process may hold its output pipes.
const waitDelay = 5 * time.Second

type job struct {
	name string
	dir  string
	argv []string
}

type outcome struct {
	job      job
	report   *models.Report
	kind     models.FailureKind
	exitCode int
	rawFile  string
	output   string
	err      string
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// plan turns a request into one job per Go test package, or a single
// Playwright job.
func plan(req Request) ([]job, error) {
	testsDir := filepath.Join(req.SuiteDir, discovery.TestsDir)
	switch runnerName(req.Settings.Runner) {
	case string(discovery.RunnerGo):
		return planGo(req, testsDir)
	case string(discovery.RunnerPlaywright):
		return planPlaywright(req, testsDir), nil
	default:
		return nil, fmt.Errorf("unsupported test runner %q", req.Settings.Runner)
	}
}

func planGo(req Request, testsDir string) ([]job, error) {
	var (
		dirs    []string
		pattern string
	)
	switch sel := req.Tests; {
	case sel == "":
		pkgs, err := discovery.TestPackages(testsDir)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			dirs = append(dirs, filepath.Join(testsDir, p))
		}
	case strings.ContainsAny(sel, `/\`):
		dir, err := packageDir(sel)
		if err != nil {
			return nil, err
		}
		dirs = []string{dir}
	default:
		if info, err := os.Stat(filepath.Join(testsDir, sel)); err == nil && info.IsDir() {
			dirs = []string{filepath.Join(testsDir, sel)}
			break
		}
		// not a package: run it as a test name pattern everywhere
		pkgs, err := discovery.TestPackages(testsDir)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			dirs = append(dirs, filepath.Join(testsDir, p))
		}
		pattern = sel
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoTests, testsDir)
	}

	prefix := []string{"go", "test"}
	if len(req.Settings.Command) > 0 {
		prefix = req.Settings.Command
	}
	jobs := make([]job, 0, len(dirs))
	for _, dir := range dirs {
		argv := append(append([]string(nil), prefix...), "-json")
		if pattern != "" {
			argv = append(argv, "-run", pattern)
		}
		if req.Markers != "" {
			argv = append(argv, "-tags", req.Markers)
		}
		argv = append(argv, ".")
		jobs = append(jobs, job{name: jobName(testsDir, dir), dir: dir, argv: argv})
	}
	return jobs, nil
}

func planPlaywright(req Request, testsDir string) []job {
	prefix := []string{"npx", "playwright", "test"}
	if len(req.Settings.Command) > 0 {
		prefix = req.Settings.Command
	}
	argv := append(append([]string(nil), prefix...), "--reporter=json")
	if req.Settings.Parallel && req.Settings.MaxWorkers > 0 {
		argv = append(argv, "--workers", strconv.Itoa(req.Settings.MaxWorkers))
	}
	if req.Markers != "" {
		argv = append(argv, "--grep", req.Markers)
	}
	target := testsDir
	if req.Tests != "" {
		target = req.Tests
		if !strings.ContainsAny(target, `/\`) {
			target = filepath.Join(testsDir, target)
		}
	}
	argv = append(argv, target)
	return []job{{name: "playwright", dir: req.SuiteDir, argv: argv}}
}

// packageDir resolves a path selector to the package directory holding it.
func packageDir(sel string) (string, error) {
	info, err := os.Stat(sel)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoTests, sel)
	}
	if info.IsDir() {
		return sel, nil
	}
	return filepath.Dir(sel), nil
}

func jobName(testsDir, dir string) string {
	rel, err := filepath.Rel(testsDir, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(dir)
	}
	return unsafeName.ReplaceAllString(filepath.ToSlash(rel), "_")
}

// run executes one job to completion and classifies its outcome.
func (e *Executor) run(ctx context.Context, j job, env []string, p parser.Parser, rawDir string) outcome {
	o := outcome{job: j, kind: models.FailureNone}
	logger := e.logger.With(zap.String("job", j.name))
	logger.Debug("starting test process", zap.Strings("argv", j.argv), zap.String("dir", j.dir))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, j.argv[0], j.argv[1:]...)
	cmd.Dir = j.dir
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	o.exitCode = cmd.ProcessState.ExitCode() // -1 when the process never started

	raw := filepath.Join(rawDir, j.name+".json")
	if err := os.WriteFile(raw, stdout.Bytes(), 0644); err != nil {
		logger.Warn("failed to write raw results", zap.Error(err))
	} else {
		o.rawFile = raw
	}

	o.output = stderr.String()
	if _, ok := p.(*parser.GoTestParser); ok {
		o.output = parser.Output(stdout.Bytes()) + o.output
	}

	report, parseErr := p.ParseBytes(stdout.Bytes())
	if parseErr == nil {
		o.report = report
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		o.kind = models.FailureTimeout
		o.err = "killed: " + ctx.Err().Error()
	case runErr != nil && !errors.As(runErr, &exitErr):
		o.kind = models.FailureCrashed
		o.err = runErr.Error()
	case runErr != nil && report != nil && report.HasFailures():
		o.kind = models.FailureTestsFailed
	case runErr != nil:
		o.kind = models.FailureCrashed
		o.err = fmt.Sprintf("exited with code %d without failing tests", o.exitCode)
		if parseErr != nil {
			o.err = fmt.Sprintf("exited with code %d: %v", o.exitCode, parseErr)
		}
	case parseErr != nil:
		o.kind = models.FailureCrashed
		o.err = parseErr.Error()
	}

	if o.kind != models.FailureNone {
		logger.Warn("test process failed",
			zap.String("failure_kind", string(o.kind)),
			zap.Int("exit_code", o.exitCode),
			zap.String("error", o.err))
	} else {
		logger.Debug("test process passed")
	}
	return o
}
