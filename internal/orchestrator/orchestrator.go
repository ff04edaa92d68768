// Package orchestrator runs a suite through the generate, execute, analyze
// and report phases. Each phase is isolated: an error or panic inside a
// phase becomes a failed phase result instead of aborting the run.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kamilpajak/smarttest/internal/analyzer"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/execution"
	"github.com/kamilpajak/smarttest/internal/generator"
	"github.com/kamilpajak/smarttest/internal/metrics"
	"github.com/kamilpajak/smarttest/internal/notify"
	"github.com/kamilpajak/smarttest/internal/reporting"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Files written into every results dir.
const (
	RunFile     = "run.json"
	ConfigFile  = "config.yaml"
	ReportsDir  = "reports"
	DirPrefix   = "run_"
	DirTimeFmt  = "20060102_150405"
	finishGrace = 30 * time.Second
)

// DefaultReportFormat is used when neither the caller nor the suite names
// any format.
const DefaultReportFormat = "html"

// Generator produces test files for a suite.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (*models.GenerationResult, error)
}

// Executor runs a suite's tests.
type Executor interface {
	Execute(ctx context.Context, req execution.Request) (*models.ExecutionResult, error)
}

// Analyzer derives insights from an execution.
type Analyzer interface {
	Analyze(ctx context.Context, in analyzer.Input) (*models.AnalysisResult, error)
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, res *models.RunResult, events []models.HealingEvent) error
}

// Notifier delivers a run summary.
type Notifier interface {
	Notify(ctx context.Context, s notify.Summary, detailed bool) map[string]error
}

// Options selects what a run does.
type Options struct {
	Mode    models.Mode
	Tests   string
	Markers string
	// Pages limits generation to the named page definitions.
	Pages         []string
	ReportFormats []string
	Notify        bool
	Detailed      bool
}

// Orchestrator runs one suite. It is safe to reuse for sequential runs.
type Orchestrator struct {
	cfg         *config.SuiteConfig
	suiteDir    string
	resultsRoot string

	generator Generator
	executor  Executor
	analyzer  Analyzer
	reporters map[string]reporting.Reporter
	recorder  RunRecorder
	notifier  Notifier
	metrics   bool
	emitter   Emitter
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	mu    sync.Mutex
	state models.State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l.Named("orchestrator")
		}
	}
}

// WithResultsRoot overrides reporting.output_dir.
func WithResultsRoot(dir string) Option {
	return func(o *Orchestrator) { o.resultsRoot = dir }
}

// WithGenerator replaces the test generator.
func WithGenerator(g Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithExecutor replaces the test executor.
func WithExecutor(e Executor) Option {
	return func(o *Orchestrator) { o.executor = e }
}

// WithAnalyzer replaces the analyzer.
func WithAnalyzer(a Analyzer) Option {
	return func(o *Orchestrator) { o.analyzer = a }
}

// WithReporters replaces the report renderers, keyed by format.
func WithReporters(r map[string]reporting.Reporter) Option {
	return func(o *Orchestrator) { o.reporters = r }
}

// WithRecorder stores every finished run.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNotifier sends summaries when Options.Notify is set.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics writes metrics.prom into every results dir.
func WithMetrics() Option {
	return func(o *Orchestrator) { o.metrics = true }
}

// WithEmitter receives progress events.
func WithEmitter(e Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithClock replaces the time source used for results dir names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator for the suite in suiteDir.
func New(cfg *config.SuiteConfig, suiteDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		suiteDir:    suiteDir,
		resultsRoot: cfg.Reporting.OutputDir,
		reporters:   reporting.All(),
		emitter:     nopEmitter{},
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
		state:       models.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.resultsRoot == "" {
		o.resultsRoot = "results"
	}
	if o.generator == nil {
		o.generator = generator.New(generator.WithLogger(o.logger))
	}
	if o.executor == nil {
		o.executor = execution.New(execution.WithLogger(o.logger))
	}
	if o.analyzer == nil {
		o.analyzer = analyzer.New(analyzer.WithLogger(o.logger))
	}
	return o
}

// State returns the current state of the run in progress.
func (o *Orchestrator) State() models.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run executes the phases the mode selects. The only error returned is a
// failure to create the results dir; everything else is reported in the
// result.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*models.RunResult, error) {
	if opts.Mode == "" {
		opts.Mode = models.ModeRun
	}
	started := o.now()
	dir, err := o.createResultsDir(started)
	if err != nil {
		return nil, err
	}

	res := &models.RunResult{
		ID:         o.newID(),
		Suite:      o.cfg.Suite,
		Mode:       opts.Mode,
		Timestamp:  started,
		ResultsDir: dir,
		State:      models.StateIdle,
	}
	log := o.logger.With(zap.String("run_id", res.ID), zap.String("suite", res.Suite))
	log.Info("starting run", zap.String("mode", string(opts.Mode)), zap.String("results_dir", dir))

	o.pipeline(ctx, res, opts, log)
	o.finish(ctx, res, opts, log)
	return res, nil
}

// pipeline runs the phases and sets res.Success.
func (o *Orchestrator) pipeline(ctx context.Context, res *models.RunResult, opts Options, log *zap.Logger) {
	if opts.Mode.Generates() {
		o.setState(res, models.StateGenerating, "generating tests")
		res.Generation = o.generate(ctx, opts)
		o.phaseDone(models.PhaseGenerate, res.Generation.PhaseResult)
		if !res.Generation.Success {
			res.Error = "test generation failed: " + res.Generation.Error
			log.Error("test generation failed", zap.String("error", res.Generation.Error))
			return
		}
	}

	if opts.Mode.Executes() {
		o.setState(res, models.StateExecuting, "executing tests")
		res.Execution = o.execute(ctx, res.ResultsDir, opts)
		o.phaseDone(models.PhaseExecute, res.Execution.PhaseResult)
		if !res.Execution.Success {
			res.Error = fmt.Sprintf("test execution failed (%s)", res.Execution.FailureKind)
			if res.Execution.Error != "" {
				res.Error += ": " + res.Execution.Error
			}
			log.Error("test execution failed", zap.String("failure_kind", string(res.Execution.FailureKind)))
			return
		}

		if !o.analyzeAndReport(ctx, res, opts) {
			return
		}
	}

	res.Success = true
}

// analyzeAndReport runs the analysis and reporting phases on
// res.Execution. A failed analysis is recorded and reporting still runs.
func (o *Orchestrator) analyzeAndReport(ctx context.Context, res *models.RunResult, opts Options) bool {
	o.setState(res, models.StateAnalyzing, "analyzing results")
	res.Analysis = o.analyze(ctx, res)
	o.phaseDone(models.PhaseAnalyze, res.Analysis.PhaseResult)

	o.setState(res, models.StateReporting, "generating reports")
	res.Reporting = o.report(ctx, res, opts.ReportFormats)
	o.phaseDone(models.PhaseReport, res.Reporting.PhaseResult)
	res.ReportPath = res.Reporting.MainReport
	if !res.Reporting.Success {
		res.Error = "report generation failed: " + res.Reporting.Error
		return false
	}
	return true
}

func (o *Orchestrator) generate(ctx context.Context, opts Options) *models.GenerationResult {
	start := time.Now()
	if !o.cfg.IsFeatureEnabled(config.FeatureTestGeneration) {
		o.logger.Info("test generation is disabled in configuration")
		return &models.GenerationResult{PhaseResult: skipped("test generation disabled")}
	}

	res, err := guard(o, models.PhaseGenerate, func() (*models.GenerationResult, error) {
		return o.generator.Generate(ctx, generator.Request{SuiteDir: o.suiteDir, Pages: opts.Pages})
	})
	if err != nil {
		return &models.GenerationResult{PhaseResult: failed(err, start)}
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res
}

func (o *Orchestrator) execute(ctx context.Context, dir string, opts Options) *models.ExecutionResult {
	start := time.Now()
	res, err := guard(o, models.PhaseExecute, func() (*models.ExecutionResult, error) {
		configPath, resolved := o.writeConfig(dir)
		return o.executor.Execute(ctx, execution.Request{
			Suite:      o.cfg.Suite,
			SuiteDir:   o.suiteDir,
			ConfigPath: configPath,
			Resolved:   resolved,
			ResultsDir: dir,
			Settings:   o.cfg.Execution,
			Tests:      opts.Tests,
			Markers:    opts.Markers,
		})
	})
	if err != nil {
		kind := models.FailureCrashed
		if ctx.Err() != nil {
			kind = models.FailureInterrupted
		}
		return &models.ExecutionResult{
			PhaseResult: failed(err, start),
			FailureKind: kind,
			ReturnCode:  -1,
		}
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res
}

func (o *Orchestrator) analyze(ctx context.Context, run *models.RunResult) *models.AnalysisResult {
	start := time.Now()
	if !o.cfg.IsFeatureEnabled(config.FeatureTestAnalysis) {
		o.logger.Info("test analysis is disabled in configuration")
		return &models.AnalysisResult{PhaseResult: skipped("test analysis disabled")}
	}

	res, err := guard(o, models.PhaseAnalyze, func() (*models.AnalysisResult, error) {
		return o.analyzer.Analyze(ctx, analyzer.Input{
			Suite:      run.Suite,
			ResultsDir: run.ResultsDir,
			Execution:  run.Execution,
		})
	})
	if err != nil {
		return &models.AnalysisResult{PhaseResult: failed(err, start)}
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res
}

// report renders every requested format. Formats fail independently; the
// main report is the first format rendered, in request order.
func (o *Orchestrator) report(ctx context.Context, run *models.RunResult, formats []string) *models.ReportingResult {
	start := time.Now()
	formats = o.formats(formats)
	res := &models.ReportingResult{
		Reports:  map[string]string{},
		Failures: map[string]string{},
		Dir:      filepath.Join(run.ResultsDir, ReportsDir),
	}

	in := reporting.Input{
		RunID:     run.ID,
		Suite:     run.Suite,
		Timestamp: run.Timestamp,
		Execution: run.Execution,
		Analysis:  run.Analysis,
		Config:    o.cfg.Redacted(),
	}
	for _, format := range formats {
		r, ok := o.reporters[format]
		if !ok {
			res.Failures[format] = fmt.Sprintf("unsupported report format %q", format)
			o.logger.Error("unsupported report format", zap.String("format", format))
			continue
		}
		path, err := guard(o, models.PhaseReport, func() (*string, error) {
			p, err := r.Render(ctx, in, res.Dir)
			return &p, err
		})
		if err != nil {
			res.Failures[format] = err.Error()
			o.logger.Error("failed to generate report", zap.String("format", format), zap.Error(err))
			continue
		}
		res.Reports[format] = *path
		if res.MainReport == "" {
			res.MainReport = *path
		}
		o.logger.Info("generated report", zap.String("format", format), zap.String("path", *path))
	}

	res.Duration = time.Since(start)
	res.Success = len(res.Failures) == 0
	res.Message = fmt.Sprintf("%d of %d reports generated", len(res.Reports), len(formats))
	if !res.Success {
		failedFormats := make([]string, 0, len(res.Failures))
		for f := range res.Failures {
			failedFormats = append(failedFormats, f)
		}
		slices.Sort(failedFormats)
		res.Error = fmt.Sprintf("formats failed: %v", failedFormats)
	}
	return res
}

// formats returns the requested formats deduplicated in order, falling back
// to the suite's reporting.formats.
func (o *Orchestrator) formats(requested []string) []string {
	if len(requested) == 0 {
		requested = o.cfg.Reporting.Formats
	}
	if len(requested) == 0 {
		requested = []string{DefaultReportFormat}
	}
	out := make([]string, 0, len(requested))
	for _, f := range requested {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// Reanalyze runs the analysis and reporting phases again on a finished
// run, for example after a failed execution skipped them.
func (o *Orchestrator) Reanalyze(ctx context.Context, runDir string, formats []string) (*models.RunResult, error) {
	res, err := LoadRun(runDir)
	if err != nil {
		return nil, err
	}
	if res.Execution == nil {
		return nil, fmt.Errorf("run %s has no execution result", res.ID)
	}
	res.ResultsDir = runDir
	res.Analysis, res.Reporting, res.ReportPath = nil, nil, ""

	log := o.logger.With(zap.String("run_id", res.ID), zap.String("suite", res.Suite))
	log.Info("re-analyzing run", zap.String("results_dir", runDir))

	ok := o.analyzeAndReport(ctx, res, Options{ReportFormats: formats})
	o.setState(res, models.StateDone, "done")
	if err := writeJSON(filepath.Join(runDir, RunFile), res); err != nil {
		log.Warn("failed to write run file", zap.Error(err))
	}
	if !ok {
		return res, errors.New(res.Error)
	}
	return res, nil
}

// LoadRun reads the run.json of a results dir.
func LoadRun(runDir string) (*models.RunResult, error) {
	data, err := os.ReadFile(filepath.Join(runDir, RunFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	var res models.RunResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse run: %w", err)
	}
	return &res, nil
}

// finish persists the run and its side channels. Failures here are logged
// and never change the outcome.
func (o *Orchestrator) finish(ctx context.Context, res *models.RunResult, opts Options, log *zap.Logger) {
	o.setState(res, models.StateDone, "done")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishGrace)
	defer cancel()

	if err := writeJSON(filepath.Join(res.ResultsDir, RunFile), res); err != nil {
		log.Warn("failed to write run file", zap.Error(err))
	}

	events, err := analyzer.ReadHealingEvents(filepath.Join(res.ResultsDir, page.HealingDir))
	if err != nil {
		log.Warn("failed to read healing logs", zap.Error(err))
	}

	if o.metrics {
		o.writeMetrics(res, log)
	}
	if o.recorder != nil {
		if err := o.recorder.RecordRun(ctx, res, events); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}
	if opts.Notify && o.notifier != nil && res.Execution != nil {
		summary := notify.NewSummary(res.Suite, res.Timestamp, res.Execution)
		for sender, err := range o.notifier.Notify(ctx, summary, opts.Detailed) {
			o.emitter.Emit(Event{Type: EventError, Message: fmt.Sprintf("%s notification failed: %v", sender, err)})
		}
	}

	log.Info("run finished", zap.Bool("success", res.Success), zap.String("report", res.ReportPath))
	o.emitter.Emit(Event{Type: EventDone, State: models.StateDone, Success: res.Success, Result: res})
}

func (o *Orchestrator) writeMetrics(res *models.RunResult, log *zap.Logger) {
	m := metrics.New()
	if g := res.Generation; g != nil {
		m.ObservePhase(models.PhaseGenerate, g.PhaseResult)
	}
	if e := res.Execution; e != nil {
		m.ObservePhase(models.PhaseExecute, e.PhaseResult)
		m.ObserveReport(e.Report)
	}
	if a := res.Analysis; a != nil {
		m.ObservePhase(models.PhaseAnalyze, a.PhaseResult)
		if a.Insights != nil {
			m.ObserveHealing(a.Insights.Healing)
		}
	}
	if r := res.Reporting; r != nil {
		m.ObservePhase(models.PhaseReport, r.PhaseResult)
	}
	m.ObserveRun(res)
	if err := m.WriteTextfile(filepath.Join(res.ResultsDir, metrics.FileName)); err != nil {
		log.Warn("failed to write metrics", zap.Error(err))
	}
}

// createResultsDir creates <root>/run_<timestamp>, adding a counter when a
// run in the same second already claimed the name.
func (o *Orchestrator) createResultsDir(t time.Time) (string, error) {
	if err := os.MkdirAll(o.resultsRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create results dir: %w", err)
	}
	base := filepath.Join(o.resultsRoot, DirPrefix+t.Format(DirTimeFmt))
	dir := base
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) || i > 100 {
			return "", fmt.Errorf("failed to create results dir: %w", err)
		}
		dir = base + "_" + strconv.Itoa(i)
	}
}

// writeConfig snapshots the effective configuration for the test
// processes, so runtime overrides reach them. The snapshot holds secrets
// and is readable by the owner only. It reports false when the snapshot
// could not be written and the suite's own file is used instead.
func (o *Orchestrator) writeConfig(dir string) (string, bool) {
	data, err := yaml.Marshal(o.cfg.Tree())
	if err == nil {
		path := filepath.Join(dir, ConfigFile)
		if err = os.WriteFile(path, data, 0o600); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs, true
			}
			return path, true
		}
	}
	o.logger.Warn("failed to write config snapshot", zap.Error(err))
	return o.cfg.Path, false
}

func (o *Orchestrator) setState(res *models.RunResult, s models.State, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	res.State = s
	o.emitter.Emit(Event{Type: EventState, State: s, Message: msg})
}

func (o *Orchestrator) phaseDone(phase models.Phase, r models.PhaseResult) {
	msg := r.Message
	if !r.Success && r.Error != "" {
		msg = r.Error
	}
	o.emitter.Emit(Event{
		Type:     EventPhaseDone,
		Phase:    phase,
		Message:  msg,
		Success:  r.Success,
		Skipped:  r.Skipped,
		Duration: r.Duration,
	})
}

// guard calls fn, converting a panic or a nil result into an error.
func guard[T any](o *Orchestrator, phase models.Phase, fn func() (*T, error)) (res *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("phase panicked",
				zap.String("phase", string(phase)), zap.Any("panic", r), zap.Stack("stack"))
			res, err = nil, fmt.Errorf("%s phase panicked: %v", phase, r)
		}
	}()
	res, err = fn()
	if err == nil && res == nil {
		err = fmt.Errorf("%s phase returned no result", phase)
	}
	if err != nil {
		o.logger.Error("phase failed", zap.String("phase", string(phase)), zap.Error(err))
	}
	return res, err
}

func skipped(msg string) models.PhaseResult {
	return models.PhaseResult{Success: true, Skipped: true, Message: msg}
}

func failed(err error, start time.Time) models.PhaseResult {
	return models.PhaseResult{Success: false, Error: err.Error(), Duration: time.Since(start)}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
