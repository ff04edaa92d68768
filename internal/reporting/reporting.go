// Package reporting renders the artifacts of a run in the requested formats.
package reporting

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kamilpajak/smarttest/pkg/models"
)

//go:embed templates
var templateFiles embed.FS

// Input is everything a renderer may draw from.
type Input struct {
	RunID     string
	Suite     string
	Timestamp time.Time
	Execution *models.ExecutionResult
	Analysis  *models.AnalysisResult
	Config    map[string]any
}

// Insights returns the analysis insights, or an empty value when analysis
// was skipped or failed.
func (in Input) Insights() models.Insights {
	if in.Analysis == nil || in.Analysis.Insights == nil {
		return models.Insights{}
	}
	return *in.Analysis.Insights
}

// Report returns the execution report, or an empty one.
func (in Input) Report() *models.Report {
	if in.Execution == nil || in.Execution.Report == nil {
		return &models.Report{}
	}
	return in.Execution.Report
}

// Reporter renders one report format into dir and returns the artifact path.
type Reporter interface {
	Format() string
	Render(ctx context.Context, in Input, dir string) (string, error)
}

var reporters = map[string]func() Reporter{
	"html":     func() Reporter { return &HTMLReporter{} },
	"json":     func() Reporter { return &JSONReporter{} },
	"junit":    func() Reporter { return &JUnitReporter{} },
	"markdown": func() Reporter { return &MarkdownReporter{} },
}

// New returns the reporter for format.
func New(format string) (Reporter, error) {
	mk, ok := reporters[format]
	if !ok {
		return nil, fmt.Errorf("unsupported report format %q (supported: %v)", format, Formats())
	}
	return mk(), nil
}

// All returns one reporter per supported format, keyed by format.
func All() map[string]Reporter {
	out := make(map[string]Reporter, len(reporters))
	for name, mk := range reporters {
		out[name] = mk()
	}
	return out
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(reporters))
	for name := range reporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeFile(ctx context.Context, dir, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
