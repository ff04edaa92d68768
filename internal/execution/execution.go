// Package execution runs a suite's tests as external processes and folds
// their machine-readable output into a single report.
package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/internal/parser"
	"github.com/kamilpajak/smarttest/internal/reporting"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrExecutionTimeout marks an execution cut short by test_execution.timeout.
var ErrExecutionTimeout = errors.New("test execution timed out")

// ErrNoTests is returned when the selector matches no test package.
var ErrNoTests = errors.New("no tests found")

// RawDir is the results subdirectory holding per-job runner output.
const RawDir = "raw"

// Request describes one execution of a suite.
type Request struct {
	Suite      string
	SuiteDir   string
	ConfigPath string
	ResultsDir string
	// Resolved marks ConfigPath as a snapshot of the effective
	// configuration, to be loaded without the environment layer.
	Resolved bool
	Settings config.ExecutionSettings
	// Tests selects what to run: a path when it contains a separator,
	// otherwise a package under tests/ or a test name pattern.
	Tests   string
	Markers string
}

// Executor runs test processes.
type Executor struct {
	logger  *zap.Logger
	environ func() []string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.Named("execution")
		}
	}
}

// WithEnviron replaces the base environment of child processes.
func WithEnviron(environ func() []string) Option {
	return func(e *Executor) {
		e.environ = environ
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{logger: zap.NewNop(), environ: os.Environ}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Execute runs the jobs for req and returns the aggregate result. The error
// is non-nil only when nothing could be started.
func (e *Executor) Execute(ctx context.Context, req Request) (*models.ExecutionResult, error) {
	start := time.Now()

	jobs, err := plan(req)
	if err != nil {
		return nil, err
	}
	p, err := parser.ForRunner(req.Settings.Runner)
	if err != nil {
		return nil, err
	}
	rawDir := filepath.Join(req.ResultsDir, RawDir)
	if err := os.MkdirAll(rawDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create raw results dir: %w", err)
	}

	runCtx := ctx
	if timeout := req.Settings.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, timeout, ErrExecutionTimeout)
		defer cancel()
	}

	limit := 1
	if req.Settings.Parallel && req.Settings.MaxWorkers > 1 {
		limit = req.Settings.MaxWorkers
	}
	e.logger.Info("executing tests",
		zap.String("suite", req.Suite),
		zap.String("runner", runnerName(req.Settings.Runner)),
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", limit))

	env := append(e.environ(), req.Environ()...)

	var (
		mu       sync.Mutex
		outcomes []outcome
	)
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(limit)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o := e.run(gctx, j, env, p, rawDir)
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := aggregate(outcomes)
	result.Duration = time.Since(start)

	switch {
	case ctx.Err() != nil:
		result.FailureKind = models.FailureInterrupted
		result.Error = "test execution interrupted"
	case errors.Is(context.Cause(runCtx), ErrExecutionTimeout):
		result.FailureKind = models.FailureTimeout
		result.Error = fmt.Sprintf("%s after %s", ErrExecutionTimeout, req.Settings.TimeoutDuration())
	}
	result.Success = result.FailureKind == models.FailureNone
	if result.Success {
		result.Message = fmt.Sprintf("%d tests passed", result.Report.PassedTests)
	}

	junit := filepath.Join(req.ResultsDir, "junit.xml")
	if err := reporting.WriteJUnitFile(junit, req.Suite, result.Report); err != nil {
		e.logger.Warn("failed to write junit xml", zap.Error(err))
	} else {
		result.JUnitPath = junit
	}

	e.logger.Info("test execution finished",
		zap.String("suite", req.Suite),
		zap.String("failure_kind", string(result.FailureKind)),
		zap.Int("total", result.Report.TotalTests),
		zap.Int("failed", result.Report.FailedTests),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// aggregate folds job outcomes. Counts are sums, so completion order does
// not matter; the most severe failure kind wins.
func aggregate(outcomes []outcome) *models.ExecutionResult {
	result := &models.ExecutionResult{
		FailureKind: models.FailureNone,
		Report:      &models.Report{},
	}
	var out, errs []string
	for _, o := range outcomes {
		result.Report.Merge(o.report)
		if o.rawFile != "" {
			result.RawFiles = append(result.RawFiles, o.rawFile)
		}
		if severity(o.kind) > severity(result.FailureKind) {
			result.FailureKind = o.kind
		}
		if o.exitCode != 0 && result.ReturnCode == 0 {
			result.ReturnCode = o.exitCode
		}
		if o.output != "" {
			out = append(out, fmt.Sprintf("=== %s ===\n%s", o.job.name, o.output))
		}
		if o.err != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", o.job.name, o.err))
		}
	}
	result.Output = strings.Join(out, "\n")
	result.Error = strings.Join(errs, "; ")
	return result
}

func severity(k models.FailureKind) int {
	switch k {
	case models.FailureInterrupted:
		return 4
	case models.FailureTimeout:
		return 3
	case models.FailureCrashed:
		return 2
	case models.FailureTestsFailed:
		return 1
	default:
		return 0
	}
}

func runnerName(r string) string {
	if r == "" {
		return string(discovery.RunnerGo)
	}
	return r
}

// Environ returns the variables that hand the suite over to a test process.
func (r Request) Environ() []string {
	return []string{
		page.EnvSuite + "=" + r.Suite,
		page.EnvSuiteDir + "=" + absPath(r.SuiteDir),
		page.EnvConfig + "=" + r.ConfigPath,
		page.EnvResultsDir + "=" + absPath(r.ResultsDir),
		page.EnvConfigResolved + "=" + strconv.FormatBool(r.Resolved),
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
