package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kamilpajak/smarttest/internal/analyzer"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/execution"
	"github.com/kamilpajak/smarttest/internal/generator"
	"github.com/kamilpajak/smarttest/internal/metrics"
	"github.com/kamilpajak/smarttest/internal/notify"
	"github.com/kamilpajak/smarttest/internal/reporting"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/kamilpajak/smarttest/pkg/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const suiteYAML = `
suite_info:
  name: Shop
  base_url: http://localhost:8080
ai_features:
  self_healing: true
  visual_testing: false
  test_generation: %GEN%
  test_analysis: %ANALYSIS%
ai_settings:
  api_key: secret-key
reporting:
  formats: [html]
`

func loadConfig(t *testing.T, generation, analysis bool) (*config.SuiteConfig, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "shop")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := strings.NewReplacer(
		"%GEN%", boolString(generation),
		"%ANALYSIS%", boolString(analysis),
	).Replace(suiteYAML)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(body), 0o644))

	r := config.NewResolver(root, config.WithEnv(func(string) (string, bool) { return "", false }))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)
	return cfg, dir
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

type fakeGenerator struct {
	res   *models.GenerationResult
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _ generator.Request) (*models.GenerationResult, error) {
	g.calls++
	return g.res, g.err
}

type fakeExecutor struct {
	res   *models.ExecutionResult
	err   error
	panic any
	req   execution.Request
	calls int
	// healing lines written into the results dir, as a test process would.
	healing []models.HealingEvent
}

func (e *fakeExecutor) Execute(_ context.Context, req execution.Request) (*models.ExecutionResult, error) {
	e.calls++
	e.req = req
	if e.panic != nil {
		panic(e.panic)
	}
	if len(e.healing) > 0 {
		dir := filepath.Join(req.ResultsDir, page.HealingDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		for _, ev := range e.healing {
			line, _ := json.Marshal(ev)
			buf.Write(line)
			buf.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, "1.jsonl"), buf.Bytes(), 0o644); err != nil {
			return nil, err
		}
	}
	return e.res, e.err
}

type fakeAnalyzer struct {
	err   error
	calls int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, in analyzer.Input) (*models.AnalysisResult, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &models.AnalysisResult{
		PhaseResult: models.PhaseResult{Success: true, Message: "analyzed"},
		Insights:    &models.Insights{OverallHealth: models.HealthGood, Summary: in.Suite},
	}, nil
}

type fakeReporter struct {
	format string
	err    error
}

func (r *fakeReporter) Format() string { return r.format }

func (r *fakeReporter) Render(_ context.Context, _ reporting.Input, dir string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "report."+r.format)
	return path, os.WriteFile(path, []byte(r.format), 0o644)
}

type fakeRecorder struct {
	res    *models.RunResult
	events []models.HealingEvent
	err    error
}

func (r *fakeRecorder) RecordRun(_ context.Context, res *models.RunResult, events []models.HealingEvent) error {
	r.res, r.events = res, events
	return r.err
}

type fakeNotifier struct {
	summary  *notify.Summary
	detailed bool
	errs     map[string]error
}

func (n *fakeNotifier) Notify(_ context.Context, s notify.Summary, detailed bool) map[string]error {
	n.summary, n.detailed = &s, detailed
	return n.errs
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []models.State {
	var out []models.State
	for _, ev := range r.events {
		if ev.Type == EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func passed() *models.ExecutionResult {
	return &models.ExecutionResult{
		PhaseResult: models.PhaseResult{Success: true, Duration: 2 * time.Second},
		FailureKind: models.FailureNone,
		Report:      &models.Report{TotalTests: 3, PassedTests: 3},
	}
}

func failedExec(kind models.FailureKind, rc int) *models.ExecutionResult {
	return &models.ExecutionResult{
		PhaseResult: models.PhaseResult{Success: false, Error: string(kind)},
		FailureKind: kind,
		ReturnCode:  rc,
		Report: &models.Report{TotalTests: 2, PassedTests: 1, FailedTests: 1, Suites: []models.TestSuite{{
			Name:  "shop",
			Tests: []models.TestCase{{Name: "TestLogin", Status: models.StatusFailed, ErrorMessage: "boom"}},
		}}},
	}
}

func reporters(formats ...string) map[string]reporting.Reporter {
	out := map[string]reporting.Reporter{}
	for _, f := range formats {
		out[f] = &fakeReporter{format: f}
	}
	return out
}

type harness struct {
	gen  *fakeGenerator
	exec *fakeExecutor
	an   *fakeAnalyzer
	ev   *recorder
}

func newOrchestrator(t *testing.T, cfg *config.SuiteConfig, dir string, extra ...Option) (*Orchestrator, *harness) {
	t.Helper()
	h := &harness{
		gen:  &fakeGenerator{res: &models.GenerationResult{PhaseResult: models.PhaseResult{Success: true}, Pages: 1, Cases: 2}},
		exec: &fakeExecutor{res: passed()},
		an:   &fakeAnalyzer{},
		ev:   &recorder{},
	}
	opts := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithResultsRoot(t.TempDir()),
		WithGenerator(h.gen),
		WithExecutor(h.exec),
		WithAnalyzer(h.an),
		WithReporters(reporters("html", "json", "junit")),
		WithEmitter(h.ev),
	}
	return New(cfg, dir, append(opts, extra...)...), h
}

func TestRun_FullPipeline(t *testing.T) {
	cfg, dir := loadConfig(t, true, true)
	o, h := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{Mode: models.ModeFull, ReportFormats: []string{"json", "html"}})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Error)
	assert.Equal(t, models.StateDone, res.State)
	assert.Equal(t, models.StateDone, o.State())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "shop", res.Suite)
	require.NotNil(t, res.Generation)
	require.NotNil(t, res.Execution)
	require.NotNil(t, res.Analysis)
	require.NotNil(t, res.Reporting)
	assert.True(t, res.Reporting.Success)
	assert.Equal(t, filepath.Join(res.ResultsDir, ReportsDir, "report.json"), res.ReportPath, "first requested format is the main report")
	assert.Len(t, res.Reporting.Reports, 2)

	assert.Equal(t, []models.State{
		models.StateGenerating, models.StateExecuting, models.StateAnalyzing, models.StateReporting, models.StateDone,
	}, h.ev.states())
	last := h.ev.events[len(h.ev.events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Same(t, res, last.Result)

	assert.True(t, strings.HasPrefix(filepath.Base(res.ResultsDir), DirPrefix))
	loaded, err := LoadRun(res.ResultsDir)
	require.NoError(t, err)
	assert.Equal(t, res.ID, loaded.ID)
	assert.True(t, loaded.Success)
}

func TestRun_ConfigSnapshotPassedToTests(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{Tests: "TestLogin", Markers: "smoke"})
	require.NoError(t, err)

	assert.Equal(t, "shop", h.exec.req.Suite)
	assert.Equal(t, dir, h.exec.req.SuiteDir)
	assert.Equal(t, res.ResultsDir, h.exec.req.ResultsDir)
	assert.Equal(t, "TestLogin", h.exec.req.Tests)
	assert.Equal(t, "smoke", h.exec.req.Markers)
	assert.Equal(t, ConfigFile, filepath.Base(h.exec.req.ConfigPath))
	assert.True(t, h.exec.req.Resolved)

	data, err := os.ReadFile(h.exec.req.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: Shop")
	assert.Contains(t, string(data), "secret-key", "test processes need the real credentials")

	info, err := os.Stat(h.exec.req.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRun_RunModeSkipsGeneration(t *testing.T) {
	cfg, dir := loadConfig(t, true, true)
	o, h := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.ModeRun, res.Mode)
	assert.Nil(t, res.Generation)
	assert.Zero(t, h.gen.calls)
	assert.Equal(t, 1, h.exec.calls)
}

func TestRun_GenerateModeOnly(t *testing.T) {
	cfg, dir := loadConfig(t, true, true)
	o, h := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{Mode: models.ModeGenerate})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Generation)
	assert.Nil(t, res.Execution)
	assert.Nil(t, res.Analysis)
	assert.Nil(t, res.Reporting)
	assert.Zero(t, h.exec.calls)
}

func TestRun_GenerationFailureStopsRun(t *testing.T) {
	cfg, dir := loadConfig(t, true, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.gen.res, h.gen.err = nil, errors.New("no page definitions")

	res, err := o.Run(context.Background(), Options{Mode: models.ModeFull})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no page definitions")
	require.NotNil(t, res.Generation)
	assert.False(t, res.Generation.Success)
	assert.Nil(t, res.Execution)
	assert.Zero(t, h.exec.calls)
	assert.Equal(t, models.StateDone, res.State)
}

func TestRun_DisabledFeaturesAreSkippedSuccessfully(t *testing.T) {
	cfg, dir := loadConfig(t, false, false)
	o, h := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{Mode: models.ModeFull})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Generation)
	assert.True(t, res.Generation.Skipped)
	assert.True(t, res.Generation.Success)
	require.NotNil(t, res.Analysis)
	assert.True(t, res.Analysis.Skipped)
	assert.Zero(t, h.gen.calls)
	assert.Zero(t, h.an.calls)
	assert.Equal(t, 1, h.exec.calls)
	require.NotNil(t, res.Reporting)
	assert.True(t, res.Reporting.Success)
}

func TestRun_ExecutionFailureShortCircuits(t *testing.T) {
	cases := []struct {
		name string
		exec *models.ExecutionResult
		kind models.FailureKind
	}{
		{"tests failed", failedExec(models.FailureTestsFailed, 1), models.FailureTestsFailed},
		{"timeout", failedExec(models.FailureTimeout, -1), models.FailureTimeout},
		{"crashed", failedExec(models.FailureCrashed, 2), models.FailureCrashed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, dir := loadConfig(t, false, true)
			o, h := newOrchestrator(t, cfg, dir)
			h.exec.res = tc.exec

			res, err := o.Run(context.Background(), Options{})
			require.NoError(t, err)

			assert.False(t, res.Success)
			assert.Contains(t, res.Error, string(tc.kind))
			require.NotNil(t, res.Execution)
			assert.Equal(t, tc.kind, res.Execution.FailureKind)
			assert.Nil(t, res.Analysis)
			assert.Nil(t, res.Reporting)
			assert.Empty(t, res.ReportPath)
			assert.Zero(t, h.an.calls)
			assert.Equal(t, models.StateDone, res.State)
		})
	}
}

func TestRun_ExecutorErrorBecomesCrash(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.exec.res, h.exec.err = nil, errors.New("go: command not found")

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.NotNil(t, res.Execution)
	assert.Equal(t, models.FailureCrashed, res.Execution.FailureKind)
	assert.Equal(t, -1, res.Execution.ReturnCode)
	assert.Contains(t, res.Error, "command not found")
}

func TestRun_CanceledContextIsInterrupted(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.exec.res, h.exec.err = nil, context.Canceled

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Run(ctx, Options{})
	require.NoError(t, err)

	require.NotNil(t, res.Execution)
	assert.Equal(t, models.FailureInterrupted, res.Execution.FailureKind)
	_, err = os.Stat(filepath.Join(res.ResultsDir, RunFile))
	assert.NoError(t, err, "the run file is written even after cancellation")
}

func TestRun_PanicInPhaseIsContained(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.exec.panic = "nil map write"

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.NotNil(t, res.Execution)
	assert.Contains(t, res.Execution.Error, "panicked")
	assert.Contains(t, res.Execution.Error, "nil map write")
	assert.Equal(t, models.StateDone, res.State)
}

func TestRun_NilResultIsAFailure(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.exec.res = nil

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Execution.Error, "no result")
}

func TestRun_AnalysisFailureStillReports(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.an.err = errors.New("analysis exploded")

	res, err := o.Run(context.Background(), Options{ReportFormats: []string{"html"}})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, res.Analysis)
	assert.False(t, res.Analysis.Success)
	assert.Contains(t, res.Analysis.Error, "analysis exploded")
	require.NotNil(t, res.Reporting)
	assert.True(t, res.Reporting.Success)
	assert.NotEmpty(t, res.ReportPath)
}

func TestRun_ReportFormatsAreIndependent(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	rs := reporters("html", "json")
	rs["junit"] = &fakeReporter{format: "junit", err: errors.New("disk full")}
	o, _ := newOrchestrator(t, cfg, dir, WithReporters(rs))

	res, err := o.Run(context.Background(), Options{ReportFormats: []string{"junit", "pdf", "html", "json", "html"}})
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.NotNil(t, res.Reporting)
	assert.False(t, res.Reporting.Success)
	assert.Len(t, res.Reporting.Reports, 2)
	assert.Contains(t, res.Reporting.Failures["junit"], "disk full")
	assert.Contains(t, res.Reporting.Failures["pdf"], "unsupported")
	assert.Equal(t, filepath.Join(res.ResultsDir, ReportsDir, "report.html"), res.ReportPath)
	assert.Equal(t, "2 of 4 reports generated", res.Reporting.Message)
	assert.Contains(t, res.Error, "[junit pdf]")
}

func TestRun_DefaultFormatsFromConfig(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, _ := newOrchestrator(t, cfg, dir)

	res, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Reporting)
	assert.Equal(t, []string{"html"}, keys(res.Reporting.Reports))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRun_ResultsDirError(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	o, h := newOrchestrator(t, cfg, dir, WithResultsRoot(filepath.Join(blocker, "results")))

	res, err := o.Run(context.Background(), Options{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, h.exec.calls)
}

func TestRun_ResultsDirsAreUnique(t *testing.T) {
	cfg, dir := loadConfig(t, false, false)
	fixed := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	o, _ := newOrchestrator(t, cfg, dir, WithClock(func() time.Time { return fixed }))

	first, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	second, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "run_20260301_123000", filepath.Base(first.ResultsDir))
	assert.Equal(t, "run_20260301_123000_2", filepath.Base(second.ResultsDir))
}

func TestRun_RecorderMetricsAndNotifications(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	rec := &fakeRecorder{err: errors.New("database is down")}
	n := &fakeNotifier{errs: map[string]error{"slack": errors.New("slack returned 500")}}
	o, h := newOrchestrator(t, cfg, dir, WithRecorder(rec), WithNotifier(n), WithMetrics())
	h.exec.res = failedExec(models.FailureTestsFailed, 1)
	h.exec.healing = []models.HealingEvent{
		{Time: time.Now(), Page: "login", Element: "submit", Stage: models.StagePrimary},
		{Time: time.Now(), Page: "login", Element: "submit", Stage: models.StageHeuristic, Success: true},
	}

	res, err := o.Run(context.Background(), Options{Notify: true, Detailed: true})
	require.NoError(t, err)

	assert.False(t, res.Success, "side channels never change the outcome")
	assert.Same(t, res, rec.res)
	assert.Len(t, rec.events, 2)

	require.NotNil(t, n.summary)
	assert.True(t, n.detailed)
	assert.Equal(t, 1, n.summary.Failed)

	var notified bool
	for _, ev := range h.ev.events {
		if ev.Type == EventError && strings.Contains(ev.Message, "slack notification failed") {
			notified = true
		}
	}
	assert.True(t, notified)

	data, err := os.ReadFile(filepath.Join(res.ResultsDir, metrics.FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "smarttest_phase_total")
	assert.Contains(t, string(data), "smarttest_run_success")
}

func TestRun_NoNotificationWithoutExecution(t *testing.T) {
	cfg, dir := loadConfig(t, true, true)
	n := &fakeNotifier{}
	o, _ := newOrchestrator(t, cfg, dir, WithNotifier(n))

	_, err := o.Run(context.Background(), Options{Mode: models.ModeGenerate, Notify: true})
	require.NoError(t, err)
	assert.Nil(t, n.summary)
}

func TestReanalyze(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, h := newOrchestrator(t, cfg, dir)
	h.exec.res = failedExec(models.FailureTestsFailed, 1)

	first, err := o.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Nil(t, first.Analysis)

	again, err := o.Reanalyze(context.Background(), first.ResultsDir, []string{"junit"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	require.NotNil(t, again.Analysis)
	assert.True(t, again.Analysis.Success)
	require.NotNil(t, again.Reporting)
	assert.Equal(t, filepath.Join(first.ResultsDir, ReportsDir, "report.junit"), again.ReportPath)
	assert.False(t, again.Success, "the execution outcome is unchanged")
	assert.Equal(t, 1, h.an.calls)

	loaded, err := LoadRun(first.ResultsDir)
	require.NoError(t, err)
	assert.NotNil(t, loaded.Analysis)
}

func TestReanalyze_MissingRun(t *testing.T) {
	cfg, dir := loadConfig(t, false, true)
	o, _ := newOrchestrator(t, cfg, dir)

	_, err := o.Reanalyze(context.Background(), t.TempDir(), nil)
	assert.Error(t, err)
}

func TestTextEmitter(t *testing.T) {
	var buf bytes.Buffer
	e := &TextEmitter{W: &buf}
	e.Emit(Event{Type: EventState, State: models.StateExecuting, Message: "executing tests"})
	e.Emit(Event{Type: EventPhaseDone, Phase: models.PhaseExecute, Success: true, Duration: 1500 * time.Millisecond})
	e.Emit(Event{Type: EventPhaseDone, Phase: models.PhaseGenerate, Success: true, Skipped: true, Message: "disabled"})
	e.Emit(Event{Type: EventPhaseDone, Phase: models.PhaseReport, Message: "formats failed"})
	e.Emit(Event{Type: EventError, Message: "slack notification failed"})
	e.Emit(Event{Type: EventState, State: models.StateDone})

	out := buf.String()
	assert.Contains(t, out, "[executing] executing tests")
	assert.Contains(t, out, "execute ok (1.5s)")
	assert.Contains(t, out, "generate skipped: disabled")
	assert.Contains(t, out, "report failed")
	assert.Contains(t, out, "Error: slack notification failed")
	assert.NotContains(t, out, "[done]")
}
