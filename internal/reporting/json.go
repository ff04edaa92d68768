package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kamilpajak/smarttest/pkg/models"
)

// JSONReporter writes the machine-readable run record.
type JSONReporter struct{}

type jsonReport struct {
	RunID     string                  `json:"run_id"`
	Suite     string                  `json:"suite"`
	Timestamp time.Time               `json:"timestamp"`
	Execution *models.ExecutionResult `json:"execution,omitempty"`
	Analysis  *models.AnalysisResult  `json:"analysis,omitempty"`
	Config    map[string]any          `json:"config,omitempty"`
}

func (r *JSONReporter) Format() string { return "json" }

func (r *JSONReporter) Render(ctx context.Context, in Input, dir string) (string, error) {
	data, err := json.MarshalIndent(jsonReport{
		RunID:     in.RunID,
		Suite:     in.Suite,
		Timestamp: in.Timestamp,
		Execution: in.Execution,
		Analysis:  in.Analysis,
		Config:    in.Config,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode json report: %w", err)
	}
	return writeFile(ctx, dir, "test_results.json", data)
}
