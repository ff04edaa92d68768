// Package analyzer turns an execution result into run insights: health,
// performance category, recommendations, locator drift and, when a model
// client is configured, a root-cause diagnosis.
package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
)

// OutputFile is the analysis document written into the results dir.
const OutputFile = "ai_analysis.json"

// Input is what the analysis phase sees of a run.
type Input struct {
	Suite      string
	ResultsDir string
	Execution  *models.ExecutionResult
}

// Analyzer computes insights for finished runs.
type Analyzer struct {
	client llm.Completer
	logger *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCompleter enables root-cause diagnosis through a model client.
func WithCompleter(c llm.Completer) Option {
	return func(a *Analyzer) { a.client = c }
}

// WithLogger sets the analyzer logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l.Named("analyzer")
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{logger: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze builds the insights of a run and writes them to ai_analysis.json.
// A failed diagnosis call is logged and leaves RootCause empty.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*models.AnalysisResult, error) {
	start := time.Now()
	if in.Execution == nil {
		return nil, fmt.Errorf("no execution result to analyze")
	}

	healing, err := ReadHealing(filepath.Join(in.ResultsDir, page.HealingDir))
	if err != nil {
		a.logger.Warn("failed to read healing logs", zap.Error(err))
	}
	insights := Compute(in.Execution, healing)

	if a.client != nil && in.Execution.Report != nil && in.Execution.Report.HasFailures() {
		diag, err := a.diagnose(ctx, in.Execution)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("root cause analysis failed", zap.Error(err))
		} else {
			insights.RootCause = diag
		}
	}

	path := filepath.Join(in.ResultsDir, OutputFile)
	data, err := json.MarshalIndent(insights, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write analysis: %w", err)
	}

	a.logger.Info("analysis complete",
		zap.String("health", string(insights.OverallHealth)),
		zap.String("performance", insights.PerformanceCategory))

	return &models.AnalysisResult{
		PhaseResult: models.PhaseResult{
			Success:  true,
			Message:  insights.Summary,
			Duration: time.Since(start),
		},
		Insights: insights,
		Path:     path,
	}, nil
}

// Compute derives insights from an execution result and healing history.
func Compute(exec *models.ExecutionResult, healing models.HealingStats) *models.Insights {
	seconds := exec.Duration.Seconds()
	health := models.HealthGood
	if exec.ReturnCode != 0 {
		health = models.HealthPoor
	}
	return &models.Insights{
		OverallHealth:       health,
		ExecutionTime:       seconds,
		PerformanceCategory: PerformanceCategory(seconds),
		Recommendations:     Recommendations(seconds, exec.ReturnCode, healing),
		Summary:             fmt.Sprintf("Test run completed with return code %d in %.2f seconds", exec.ReturnCode, seconds),
		Healing:             healing,
	}
}

// PerformanceCategory buckets an execution time in seconds.
func PerformanceCategory(seconds float64) string {
	switch {
	case seconds < 30:
		return "excellent"
	case seconds < 120:
		return "good"
	case seconds < 300:
		return "acceptable"
	default:
		return "slow"
	}
}

// Recommendations returns the follow-ups suggested for a run.
func Recommendations(seconds float64, returnCode int, healing models.HealingStats) []string {
	var out []string
	if seconds > 120 {
		out = append(out, "Consider enabling parallel execution to reduce test time")
	}
	if returnCode != 0 {
		out = append(out, "Review test failures and consider enabling AI self-healing")
	}
	if healing.Healed > 0 {
		names := make([]string, 0, len(healing.ByElement))
		for name := range healing.ByElement {
			names = append(names, name)
		}
		sort.Strings(names)
		out = append(out, fmt.Sprintf("Update primary locators for healed elements: %s", strings.Join(names, ", ")))
	}
	if len(out) == 0 {
		out = append(out, "Test execution looks good! Consider adding more test cases.")
	}
	return out
}

// ReadHealing summarizes the heuristic attempts in every *.jsonl file under
// dir. Primary-locator misses are not counted. A missing dir yields zero
// stats.
func ReadHealing(dir string) (models.HealingStats, error) {
	stats := models.HealingStats{}
	events, err := ReadHealingEvents(dir)
	if err != nil {
		return stats, err
	}
	for _, ev := range events {
		if ev.Stage != models.StageHeuristic {
			continue
		}
		stats.Attempts++
		if !ev.Success {
			stats.Failed++
			continue
		}
		stats.Healed++
		if stats.ByElement == nil {
			stats.ByElement = map[string]int{}
		}
		key := ev.Element
		if ev.Page != "" {
			key = ev.Page + "." + ev.Element
		}
		stats.ByElement[key]++
	}
	return stats, nil
}

// ReadHealingEvents loads every healing event under dir, sorted by time.
// Malformed lines are skipped.
func ReadHealingEvents(dir string) ([]models.HealingEvent, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list healing logs: %w", err)
	}
	var events []models.HealingEvent
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return events, fmt.Errorf("failed to read %s: %w", f, err)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			var ev models.HealingEvent
			if json.Unmarshal(sc.Bytes(), &ev) == nil {
				events = append(events, ev)
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}

func (a *Analyzer) diagnose(ctx context.Context, exec *models.ExecutionResult) (*models.Diagnosis, error) {
	resp, err := a.client.Complete(ctx, llm.Prompt{
		System: systemPrompt,
		User:   BuildPrompt(exec),
	})
	if err != nil {
		return nil, err
	}
	diag, err := parseDiagnosis(resp.Text)
	if err != nil {
		return nil, err
	}
	diag.Model = resp.Model
	return diag, nil
}

func parseDiagnosis(text string) (*models.Diagnosis, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	var d models.Diagnosis
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("failed to parse diagnosis: %w", err)
	}
	switch d.Confidence {
	case models.ConfidenceHigh, models.ConfidenceMedium, models.ConfidenceLow:
	default:
		d.Confidence = models.ConfidenceLow
	}
	return &d, nil
}
