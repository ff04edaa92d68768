package analyzer

import (
	"fmt"
	"strings"

	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/kamilpajak/smarttest/pkg/models"
)

const systemPrompt = `You are an expert test failure analyst for browser and API test suites. Your task is to analyze test failures and provide actionable root cause analysis.

When analyzing failures, consider:
1. Error messages and stack traces
2. Patterns across multiple failures
3. Common causes: stale locators, timing issues, race conditions, environment problems
4. Whether the run timed out or the test process crashed

Respond in JSON format with the following structure:
{
  "root_cause": "Clear explanation of why the tests failed",
  "evidence": ["Evidence point 1", "Evidence point 2"],
  "suggested_fix": "Specific actionable fix recommendation",
  "confidence": "HIGH|MEDIUM|LOW"
}

Be concise but thorough. Focus on actionable insights.`

const (
	maxPromptFailures = 10
	maxErrorLen       = 500
	maxStackLen       = 1000
	maxOutputLen      = 2000
)

// BuildPrompt creates the diagnosis prompt for an execution result.
func BuildPrompt(exec *models.ExecutionResult) string {
	var sb strings.Builder
	report := exec.Report
	if report == nil {
		report = &models.Report{}
	}

	fmt.Fprintf(&sb, `## Test Summary
- Framework: %s
- Outcome: %s (return code %d)
- Total: %d tests
- Passed: %d
- Failed: %d
- Skipped: %d

`, report.Framework, exec.FailureKind, exec.ReturnCode,
		report.TotalTests, report.PassedTests, report.FailedTests, report.SkippedTests)

	failed := report.FailedTestCases()
	if len(failed) == 0 {
		sb.WriteString("No failed tests found.\n")
	} else {
		sb.WriteString("## Failed Tests\n\n")
	}
	for i, tc := range failed {
		if i >= maxPromptFailures {
			fmt.Fprintf(&sb, "\n... and %d more failures\n", len(failed)-maxPromptFailures)
			break
		}

		fmt.Fprintf(&sb, "### %d. %s\n", i+1, tc.Name)
		if tc.FilePath != "" {
			location := tc.FilePath
			if tc.LineNumber > 0 {
				location = fmt.Sprintf("%s:%d", tc.FilePath, tc.LineNumber)
			}
			fmt.Fprintf(&sb, "**Location:** `%s`\n", location)
		}
		if tc.DurationMS > 0 {
			fmt.Fprintf(&sb, "**Duration:** %dms\n", tc.DurationMS)
		}
		if tc.ErrorMessage != "" {
			fmt.Fprintf(&sb, "**Error:**\n```\n%s\n```\n", truncate(tc.ErrorMessage, maxErrorLen, "..."))
		}
		if tc.ErrorStack != "" {
			fmt.Fprintf(&sb, "**Stack Trace:**\n```\n%s\n```\n", truncate(tc.ErrorStack, maxStackLen, "\n..."))
		}
		sb.WriteString("\n")
	}

	if exec.Output != "" {
		fmt.Fprintf(&sb, "## Output Excerpt\n```\n%s\n```\n", llm.Excerpt(exec.Output, maxOutputLen))
	}
	return sb.String()
}

func truncate(s string, max int, marker string) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + marker
}
