package smarttest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kamilpajak/smarttest/internal/database"
	"github.com/spf13/cobra"
)

var (
	historySuite string
	historyLimit int
	historyDrift bool
	historyRun   string
	historyDB    string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored run history",
	Long: `Show runs recorded in the history database (--database-url or DATABASE_URL).

Examples:
  smarttest history -s shop
  smarttest history -s shop --drift
  smarttest history --run 3f2a...`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historySuite, "suite", "s", "", "Only show runs of this suite")
	f.IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows to show")
	f.BoolVar(&historyDrift, "drift", false, "Show elements that needed healing instead of runs")
	f.StringVar(&historyRun, "run", "", "Print the stored result of one run as JSON")
	f.StringVar(&historyDB, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	url := databaseURL(historyDB)
	if url == "" {
		return errors.New("no database configured (set --database-url or DATABASE_URL)")
	}
	db, err := openDatabase(ctx, url)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	switch {
	case historyRun != "":
		id, err := uuid.Parse(historyRun)
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
		res, err := db.GetRun(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("run %s not found", id)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case historyDrift:
		if historySuite == "" {
			return errors.New("--drift needs --suite")
		}
		drift, err := db.ElementDrift(ctx, historySuite, historyLimit)
		if err != nil {
			return err
		}
		renderDrift(out, drift)
		return nil
	default:
		runs, err := db.ListRuns(ctx, historySuite, historyLimit)
		if err != nil {
			return err
		}
		renderRuns(out, runs)
		return nil
	}
}

func renderRuns(w io.Writer, runs []database.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "SUITE", "STARTED", "MODE", "STATUS", "TESTS", "FAILED", "DURATION"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "TESTS", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
		{Name: "DURATION", Align: text.AlignRight},
	})
	for _, r := range runs {
		status := "passed"
		if !r.Success {
			status = "failed"
			if r.FailureKind != nil {
				status = *r.FailureKind
			}
		}
		t.AppendRow(table.Row{
			r.ID.String()[:8],
			r.Suite,
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			status,
			r.Total,
			r.Failed,
			r.Duration.Round(time.Millisecond),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func renderDrift(w io.Writer, drift []database.ElementDrift) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"PAGE", "ELEMENT", "HEALED", "FAILED", "LAST SEEN"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "PAGE", AutoMerge: true},
		{Name: "HEALED", Align: text.AlignRight},
		{Name: "FAILED", Align: text.AlignRight},
	})
	for _, d := range drift {
		t.AppendRow(table.Row{d.Page, d.Element, d.Healed, d.Failed, d.LastSeen.Local().Format(time.DateTime)})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
