package smarttest

import (
	"context"
	"errors"
	"os"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Environment variables read by the CLI itself.
const (
	EnvSuitesDir   = "SMARTTEST_SUITES_DIR"
	EnvDatabaseURL = "DATABASE_URL"
)

// ErrRunFailed is returned when a run completes without success. The run
// summary has already been printed.
var ErrRunFailed = errors.New("run failed")

// ErrInterrupted is returned when a run was cancelled by a signal.
var ErrInterrupted = errors.New("interrupted")

var (
	suitesDir string
	logLevel  string
	verbose   bool
	logFile   string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "smarttest",
	Short: "AI-assisted browser test automation",
	Long: `smarttest runs browser and API test suites, generates tests from page
definitions, heals drifted element locators and analyzes the results.

Suites live under the suites directory (--suites-dir or SMARTTEST_SUITES_DIR),
one directory per suite with a config.yaml, pages/ and tests/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logging.Options{Level: logLevel, Verbose: verbose, File: logFile})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	defaultSuites := os.Getenv(EnvSuitesDir)
	if defaultSuites == "" {
		defaultSuites = "suites"
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&suitesDir, "suites-dir", defaultSuites, "Directory holding the test suites")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warning, error)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(listSuitesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(versionCmd)
}

func newResolver() *config.Resolver {
	return config.NewResolver(suitesDir, config.WithLogger(logger))
}

// loadSuite resolves a suite and applies overrides in order.
func loadSuite(suite string, overrides []config.Override) (*config.Resolver, *config.SuiteConfig, error) {
	if suite == "" {
		return nil, nil, errors.New("--suite is required")
	}
	r := newResolver()
	cfg, err := r.Load(suite, "")
	if err != nil {
		return nil, nil, err
	}
	cfg, err = r.ApplyRuntimeOverrides(cfg, overrides)
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

func databaseURL(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvDatabaseURL)
}
