package reporting

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/kamilpajak/smarttest/pkg/models"
)

var markdownTemplate = template.Must(template.New("report.md.tmpl").
	Funcs(template.FuncMap{"seconds": seconds, "status": status, "oneline": oneline}).
	ParseFS(templateFiles, "templates/report.md.tmpl"))

// MarkdownReporter renders a summary suitable for PR comments and CI job
// summaries.
type MarkdownReporter struct{}

func (r *MarkdownReporter) Format() string { return "markdown" }

func (r *MarkdownReporter) Render(ctx context.Context, in Input, dir string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Input
		AI     models.Insights
		Tests  *models.Report
		Failed []models.TestCase
	}{in, in.Insights(), in.Report(), in.Report().FailedTestCases()}
	if err := markdownTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render markdown report: %w", err)
	}
	return writeFile(ctx, dir, "report.md", buf.Bytes())
}

// oneline keeps table cells on a single row.
func oneline(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
