package parser

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/kamilpajak/smarttest/pkg/models"
)

// PlaywrightParser parses the output of `playwright test --reporter=json`.
type PlaywrightParser struct{}

type pwReport struct {
	Suites []pwSuite `json:"suites"`
	Stats  pwStats   `json:"stats"`
	Errors []pwError `json:"errors"`
}

type pwStats struct {
	Expected   int     `json:"expected"`
	Unexpected int     `json:"unexpected"`
	Flaky      int     `json:"flaky"`
	Skipped    int     `json:"skipped"`
	Duration   float64 `json:"duration"`
}

type pwSuite struct {
	Title  string    `json:"title"`
	File   string    `json:"file"`
	Specs  []pwSpec  `json:"specs"`
	Suites []pwSuite `json:"suites"`
}

type pwSpec struct {
	Title string   `json:"title"`
	File  string   `json:"file"`
	Line  int      `json:"line"`
	Tests []pwTest `json:"tests"`
}

type pwTest struct {
	ProjectName string     `json:"projectName"`
	Status      string     `json:"status"`
	Results     []pwResult `json:"results"`
}

type pwResult struct {
	Status   string    `json:"status"`
	Duration int64     `json:"duration"`
	Errors   []pwError `json:"errors"`
}

type pwError struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// ParseBytes parses a Playwright JSON report. Counts are derived from the
// test entries; a spec run under several projects yields one case each.
func (p *PlaywrightParser) ParseBytes(data []byte) (*models.Report, error) {
	var raw pwReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse playwright report: %w", err)
	}

	report := &models.Report{
		Framework:  "playwright",
		DurationMS: int64(raw.Stats.Duration),
		Suites:     make([]models.TestSuite, 0, len(raw.Suites)),
	}
	for _, s := range raw.Suites {
		report.Suites = append(report.Suites, p.suite(s))
	}

	if len(raw.Errors) > 0 {
		// global errors (config or collection failures) have no spec
		global := models.TestSuite{Name: "playwright"}
		for _, e := range raw.Errors {
			global.Tests = append(global.Tests, models.TestCase{
				Name:         "global setup",
				Status:       models.StatusFailed,
				ErrorMessage: e.Message,
				ErrorStack:   e.Stack,
			})
		}
		report.Suites = append(report.Suites, global)
	}

	report.Recount()
	return report, nil
}

func (p *PlaywrightParser) suite(raw pwSuite) models.TestSuite {
	s := models.TestSuite{Name: raw.Title, FilePath: raw.File}
	for _, spec := range raw.Specs {
		s.Tests = append(s.Tests, p.cases(spec, raw.File)...)
	}
	for _, nested := range raw.Suites {
		s.Suites = append(s.Suites, p.suite(nested))
	}
	return s
}

func (p *PlaywrightParser) cases(spec pwSpec, suiteFile string) []models.TestCase {
	file := spec.File
	if file == "" {
		file = suiteFile
	}

	var out []models.TestCase
	for _, t := range spec.Tests {
		if len(t.Results) == 0 {
			continue
		}
		// the last result is the final retry
		last := t.Results[len(t.Results)-1]

		tc := models.TestCase{
			Name:       spec.Title,
			Classname:  path.Base(file),
			FilePath:   file,
			LineNumber: spec.Line,
			DurationMS: last.Duration,
			Status:     pwStatus(t.Status, last.Status),
		}
		if t.ProjectName != "" && len(spec.Tests) > 1 {
			tc.Name = fmt.Sprintf("[%s] %s", t.ProjectName, spec.Title)
		}
		if tc.Status == models.StatusFailed && len(last.Errors) > 0 {
			tc.ErrorMessage = last.Errors[0].Message
			tc.ErrorStack = last.Errors[0].Stack
		}
		out = append(out, tc)
	}
	return out
}

// pwStatus maps the test outcome, falling back to the last result status.
// Flaky tests passed on retry and count as passed.
func pwStatus(outcome, result string) models.TestStatus {
	switch outcome {
	case "expected", "flaky":
		return models.StatusPassed
	case "skipped":
		return models.StatusSkipped
	case "unexpected":
		return models.StatusFailed
	}
	switch result {
	case "passed":
		return models.StatusPassed
	case "skipped":
		return models.StatusSkipped
	default:
		return models.StatusFailed
	}
}
