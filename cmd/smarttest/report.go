package smarttest

import (
	"github.com/kamilpajak/smarttest/internal/orchestrator"
	"github.com/spf13/cobra"
)

var reportAddr string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Work with run reports",
}

var reportServeCmd = &cobra.Command{
	Use:   "serve <run-dir>",
	Short: "Serve a results directory over HTTP",
	Long: `Serve a results directory over HTTP until interrupted. The URL printed
points at the run's main report when one exists.

Examples:
  smarttest report serve results/run_20260301_123000
  smarttest report serve results/run_20260301_123000 --addr 127.0.0.1:8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		report := dir
		if res, err := orchestrator.LoadRun(dir); err == nil && res.ReportPath != "" {
			report = res.ReportPath
		}
		return serveReport(cmd.Context(), dir, report, reportAddr)
	},
}

func init() {
	reportServeCmd.Flags().StringVar(&reportAddr, "addr", "", "Listen address (default: a free loopback port)")
	reportCmd.AddCommand(reportServeCmd)
}
