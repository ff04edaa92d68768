package smarttest

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/spf13/cobra"
)

var listSuitesCmd = &cobra.Command{
	Use:   "list-suites",
	Short: "List the suites under the suites directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results, err := discovery.New(suitesDir).Discover(cmd.Context())
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "No suites found in %s\n", suitesDir)
			return nil
		}
		renderSuites(cmd.OutOrStdout(), results)
		return nil
	},
}

func renderSuites(w io.Writer, results []discovery.SuiteDiscoveryResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"SUITE", "NAME", "RUNNER", "PAGES", "BASE URL", "STATUS"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "PAGES", Align: text.AlignRight},
		{Name: "STATUS", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range results {
		status := "ok"
		if !r.Compatible {
			status = r.Error
		}
		t.AppendRow(table.Row{r.Name, r.Title, r.Runner, r.Pages, r.BaseURL, status})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
