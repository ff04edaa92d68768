package smarttest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamilpajak/smarttest/internal/analyzer"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/database"
	"github.com/kamilpajak/smarttest/internal/generator"
	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/kamilpajak/smarttest/internal/notify"
	"github.com/kamilpajak/smarttest/internal/orchestrator"
	"github.com/kamilpajak/smarttest/internal/server"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CostOptimizedModel is the model selected by --cost-optimized.
const CostOptimizedModel = "models/gemini-2.5-flash-lite"

// runFlags holds the flags of the run command.
type runFlags struct {
	suite          string
	mode           string
	tests          string
	markers        string
	headless       bool
	browser        string
	parallel       bool
	workers        int
	aiFeatures     string
	disableAI      bool
	costOptimized  bool
	reportFormats  string
	notify         bool
	detailedNotify bool
	set            []string
	openReport     bool
	databaseURL    string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a test suite",
	Long: `Run a suite through test generation, execution, analysis and reporting.

Modes:
  run       execute, analyze and report (default)
  generate  generate tests from page definitions only
  full      generate, then execute, analyze and report

Examples:
  smarttest run -s shop
  smarttest run -s shop -m full --report-formats html,junit
  smarttest run -s shop --headless -p -w 4 --markers smoke
  smarttest run -s shop --set browser.timeout=60 --cost-optimized`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.suite, "suite", "s", "", "Suite to run")
	f.StringVarP(&runOpts.mode, "mode", "m", string(models.ModeRun), "Run mode (run, generate, full)")
	f.StringVarP(&runOpts.tests, "tests", "t", "", "Test path, package or name pattern")
	f.StringVar(&runOpts.markers, "markers", "", "Only run tests with these markers (build tags)")
	f.BoolVar(&runOpts.headless, "headless", false, "Run the browser headless")
	f.StringVar(&runOpts.browser, "browser", "", "Browser engine (chrome, firefox, webkit)")
	f.BoolVarP(&runOpts.parallel, "parallel", "p", false, "Run test packages in parallel")
	f.IntVarP(&runOpts.workers, "workers", "w", 0, "Parallel worker count")
	f.StringVar(&runOpts.aiFeatures, "ai-features", "", "Comma-separated AI features to enable; all others are disabled")
	f.BoolVar(&runOpts.disableAI, "disable-ai", false, "Disable every AI feature")
	f.BoolVar(&runOpts.costOptimized, "cost-optimized", false, "Use the cheapest model, caching and a single worker")
	f.StringVar(&runOpts.reportFormats, "report-formats", "", "Comma-separated report formats (html, json, junit, markdown)")
	f.BoolVar(&runOpts.notify, "notify", false, "Send notifications when the run finishes")
	f.BoolVar(&runOpts.detailedNotify, "detailed-notify", false, "Include failed tests in notifications")
	f.StringArrayVar(&runOpts.set, "set", nil, "Override a config value (key=value, repeatable, applied in order)")
	f.BoolVar(&runOpts.openReport, "open-report", false, "Serve the main report after the run until interrupted")
	f.StringVar(&runOpts.databaseURL, "database-url", "", "PostgreSQL URL for run history (default $DATABASE_URL)")
	_ = runCmd.MarkFlagRequired("suite")
}

// runOverrides turns the run flags into config overrides. Dedicated flags
// come first so that --set can refine them.
func runOverrides(f runFlags, changed func(string) bool) ([]config.Override, error) {
	var out []config.Override
	add := func(path string, v any) { out = append(out, config.Override{Path: path, Value: v}) }

	if changed("headless") {
		add("browser.headless", f.headless)
	}
	if f.browser != "" {
		add("browser.default", f.browser)
	}
	if changed("parallel") {
		add("test_execution.parallel", f.parallel)
	}
	if f.workers > 0 {
		add("test_execution.max_workers", f.workers)
	}

	if f.disableAI || f.aiFeatures != "" {
		for _, feature := range config.KnownFeatures {
			add("ai_features."+string(feature), false)
		}
	}
	if f.aiFeatures != "" && !f.disableAI {
		for _, name := range splitList(f.aiFeatures) {
			feature, err := config.ParseFeature(name)
			if err != nil {
				return nil, err
			}
			add("ai_features."+string(feature), true)
		}
	}

	if f.costOptimized {
		add("ai_settings.model", CostOptimizedModel)
		add("ai_settings.enable_caching", true)
		add("test_execution.max_workers", 1)
	}

	set, err := config.ParseOverrides(f.set)
	if err != nil {
		return nil, err
	}
	return append(out, set...), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mode, ok := models.ParseMode(runOpts.mode)
	if !ok {
		return fmt.Errorf("invalid mode %q (expected run, generate or full)", runOpts.mode)
	}
	overrides, err := runOverrides(runOpts, cmd.Flags().Changed)
	if err != nil {
		return err
	}
	r, cfg, err := loadSuite(runOpts.suite, overrides)
	if err != nil {
		return err
	}
	suiteDir := filepath.Dir(r.SuitePath(cfg.Suite))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithEmitter(newEmitter(os.Stderr)),
		orchestrator.WithMetrics(),
	}
	opts = append(opts, aiOptions(ctx, cfg)...)

	if url := databaseURL(runOpts.databaseURL); url != "" {
		db, err := openDatabase(ctx, url)
		if err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			defer db.Close()
			opts = append(opts, orchestrator.WithRecorder(db))
		}
	}

	if runOpts.notify || runOpts.detailedNotify {
		n := notify.New(cfg.Notifications, notify.WithLogger(logger))
		if n.Enabled() {
			opts = append(opts, orchestrator.WithNotifier(n))
		} else {
			logger.Warn("notifications requested but none are enabled in the suite config")
		}
	}

	o := orchestrator.New(cfg, suiteDir, opts...)
	res, err := o.Run(ctx, orchestrator.Options{
		Mode:          mode,
		Tests:         runOpts.tests,
		Markers:       runOpts.markers,
		ReportFormats: splitList(runOpts.reportFormats),
		Notify:        runOpts.notify || runOpts.detailedNotify,
		Detailed:      runOpts.detailedNotify,
	})
	if err != nil {
		return err
	}

	printSummary(os.Stderr, res)

	if runOpts.openReport && res.ReportPath != "" && ctx.Err() == nil {
		if err := serveReport(ctx, res.ResultsDir, res.ReportPath, ""); err != nil {
			return err
		}
	}
	return runError(res)
}

// runError maps a finished run to the command error.
func runError(res *models.RunResult) error {
	if res.Success {
		return nil
	}
	if res.Execution != nil && res.Execution.FailureKind == models.FailureInterrupted {
		return ErrInterrupted
	}
	return ErrRunFailed
}

// aiOptions wires the model client into generation and analysis when the
// suite has an API key.
func aiOptions(ctx context.Context, cfg *config.SuiteConfig) []orchestrator.Option {
	client := newLLMClient(ctx, cfg)
	if client == nil {
		return nil
	}
	return []orchestrator.Option{
		orchestrator.WithGenerator(generator.New(generator.WithCompleter(client), generator.WithLogger(logger))),
		orchestrator.WithAnalyzer(analyzer.New(analyzer.WithCompleter(client), analyzer.WithLogger(logger))),
	}
}

func newLLMClient(ctx context.Context, cfg *config.SuiteConfig) *llm.Client {
	if cfg.AI.APIKey == "" {
		logger.Debug("no API key configured, AI diagnosis disabled")
		return nil
	}
	client, err := llm.NewClient(ctx, cfg.AI, llm.WithLogger(logger))
	if err != nil {
		logger.Warn("AI client unavailable", zap.Error(err))
		return nil
	}
	return client
}

func openDatabase(ctx context.Context, url string) (*database.DB, error) {
	return database.Open(ctx, url, database.WithLogger(logger))
}

// serveReport serves dir and prints the URL of report until ctx is done.
func serveReport(ctx context.Context, dir, report, addr string) error {
	srv, err := server.Serve(dir, addr)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, report)
	if err != nil || rel == "." {
		rel = ""
	}
	fmt.Fprintf(os.Stderr, "Serving report at %s (Ctrl+C to stop)\n", srv.URL(filepath.ToSlash(rel)))
	return srv.Wait(ctx)
}
