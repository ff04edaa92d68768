package smarttest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/kamilpajak/smarttest/internal/fixer"
	"github.com/kamilpajak/smarttest/internal/orchestrator"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/spf13/cobra"
)

var (
	fixSuite    string
	fixLog      string
	fixRun      string
	fixApply    bool
	fixSuggest  bool
	fixNoBackup bool
)

var fixCmd = &cobra.Command{
	Use:   "fix <test-file>",
	Short: "Diagnose or repair a failing test with the AI model",
	Long: `Diagnose why a test file failed, suggest code changes, or rewrite it.

The failure log comes from --log (a file, or - for stdin) or from the failed
cases of a finished run (--run). By default only a diagnosis is printed.
--suggest prints proposed changes; --apply rewrites the file after checking
the fix is valid Go, keeping the original as <file>.bak unless --no-backup.

Examples:
  smarttest fix -s shop --log failure.log suites/shop/tests/login/login_test.go
  go test ./... 2>&1 | smarttest fix -s shop --log - --suggest tests/login/login_test.go
  smarttest fix -s shop --run results/run_20260301_123000 --apply tests/login/login_test.go`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func init() {
	fixCmd.Flags().StringVarP(&fixSuite, "suite", "s", "", "Suite whose AI settings to use")
	fixCmd.Flags().StringVar(&fixLog, "log", "", "Failure log file, or - for stdin")
	fixCmd.Flags().StringVar(&fixRun, "run", "", "Results dir of a run to take the failure log from")
	fixCmd.Flags().BoolVar(&fixApply, "apply", false, "Rewrite the test file with the fix")
	fixCmd.Flags().BoolVar(&fixSuggest, "suggest", false, "Print suggested code changes")
	fixCmd.Flags().BoolVar(&fixNoBackup, "no-backup", false, "Do not keep a .bak copy when applying")
	_ = fixCmd.MarkFlagRequired("suite")
	fixCmd.MarkFlagsMutuallyExclusive("log", "run")
	fixCmd.MarkFlagsMutuallyExclusive("apply", "suggest")
}

func runFix(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	testFile := args[0]

	errorLog, err := readFailureLog(cmd.InOrStdin(), fixLog, fixRun, testFile)
	if err != nil {
		return err
	}
	_, cfg, err := loadSuite(fixSuite, nil)
	if err != nil {
		return err
	}
	client, err := completerFor(ctx, cfg)
	if err != nil {
		return err
	}
	f := fixer.New(client, fixer.WithLogger(logger))
	out := cmd.OutOrStdout()

	switch {
	case fixApply:
		if err := f.Apply(ctx, testFile, errorLog, !fixNoBackup); err != nil {
			return err
		}
		fmt.Fprintf(out, "Fixed test code written to %s\n", testFile)
	case fixSuggest:
		changes, err := f.Suggest(ctx, testFile, errorLog)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, changes)
	default:
		d, err := f.Analyze(ctx, testFile, errorLog)
		if err != nil {
			return err
		}
		printDiagnosis(out, d)
	}
	return nil
}

func printDiagnosis(w io.Writer, d *fixer.Diagnosis) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprint(w, "Issue: ")
	fmt.Fprintln(w, d.Issue)
	_, _ = bold.Fprint(w, "Fix: ")
	fmt.Fprintln(w, d.SuggestedFix)
}

// readFailureLog returns the log named by --log or built from a run.
func readFailureLog(stdin io.Reader, logPath, runDir, testFile string) (string, error) {
	switch {
	case logPath == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read log from stdin: %w", err)
		}
		return string(data), nil
	case logPath != "":
		data, err := os.ReadFile(logPath)
		if err != nil {
			return "", fmt.Errorf("failed to read log: %w", err)
		}
		return string(data), nil
	case runDir != "":
		res, err := orchestrator.LoadRun(runDir)
		if err != nil {
			return "", err
		}
		log := failureLog(res, testFile)
		if log == "" {
			return "", fmt.Errorf("run %s has no failed tests", res.ID)
		}
		return log, nil
	}
	return "", errors.New("one of --log or --run is required")
}

// failureLog renders the failed cases of a run. Cases from testFile are
// preferred; when none match, every failure is included.
func failureLog(res *models.RunResult, testFile string) string {
	if res.Execution == nil || res.Execution.Report == nil {
		return ""
	}
	failed := res.Execution.Report.FailedTestCases()
	var matching []models.TestCase
	for _, tc := range failed {
		if tc.FilePath != "" && filepath.Base(tc.FilePath) == filepath.Base(testFile) {
			matching = append(matching, tc)
		}
	}
	if len(matching) > 0 {
		failed = matching
	}

	var sb strings.Builder
	for _, tc := range failed {
		fmt.Fprintf(&sb, "--- FAIL: %s", tc.Name)
		if tc.FilePath != "" {
			fmt.Fprintf(&sb, " (%s:%d)", tc.FilePath, tc.LineNumber)
		}
		sb.WriteString("\n")
		if tc.ErrorMessage != "" {
			fmt.Fprintf(&sb, "    %s\n", tc.ErrorMessage)
		}
		if tc.ErrorStack != "" {
			fmt.Fprintf(&sb, "%s\n", tc.ErrorStack)
		}
	}
	return sb.String()
}
