package reporting

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/kamilpajak/smarttest/pkg/models"
)

var htmlTemplate = template.Must(template.New("report.html.tmpl").
	Funcs(template.FuncMap{"seconds": seconds, "status": status}).
	ParseFS(templateFiles, "templates/report.html.tmpl"))

// HTMLReporter renders a single self-contained HTML page.
type HTMLReporter struct{}

func (r *HTMLReporter) Format() string { return "html" }

func (r *HTMLReporter) Render(ctx context.Context, in Input, dir string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Input
		AI     models.Insights
		Tests  *models.Report
		Failed []models.TestCase
	}{in, in.Insights(), in.Report(), in.Report().FailedTestCases()}
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render html report: %w", err)
	}
	return writeFile(ctx, dir, "test_report.html", buf.Bytes())
}

func seconds(e *models.ExecutionResult) string {
	if e == nil {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", e.Duration.Seconds())
}

func status(e *models.ExecutionResult) string {
	if e != nil && e.Success {
		return "PASSED"
	}
	return "FAILED"
}
