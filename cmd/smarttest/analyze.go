package smarttest

import (
	"os"
	"path/filepath"

	"github.com/kamilpajak/smarttest/internal/orchestrator"
	"github.com/spf13/cobra"
)

var (
	analyzeSuite   string
	analyzeFormats string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <run-dir>",
	Short: "Analyze and report a finished run again",
	Long: `Run the analysis and reporting phases on a finished run, for example one
whose tests failed and therefore skipped them.

Examples:
  smarttest analyze -s shop results/run_20260301_123000
  smarttest analyze -s shop results/run_20260301_123000 --report-formats html,markdown`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		r, cfg, err := loadSuite(analyzeSuite, nil)
		if err != nil {
			return err
		}
		suiteDir := filepath.Dir(r.SuitePath(cfg.Suite))

		opts := []orchestrator.Option{
			orchestrator.WithLogger(logger),
			orchestrator.WithEmitter(newEmitter(os.Stderr)),
		}
		opts = append(opts, aiOptions(ctx, cfg)...)
		o := orchestrator.New(cfg, suiteDir, opts...)

		res, err := o.Reanalyze(ctx, args[0], splitList(analyzeFormats))
		if res != nil {
			printSummary(os.Stderr, res)
		}
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeSuite, "suite", "s", "", "Suite the run belongs to")
	analyzeCmd.Flags().StringVar(&analyzeFormats, "report-formats", "", "Comma-separated report formats")
	_ = analyzeCmd.MarkFlagRequired("suite")
}
