package parser

import (
	"testing"

	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaywrightParser_ParseBytes(t *testing.T) {
	data := []byte(`{
		"suites": [{
			"title": "checkout.spec.ts",
			"file": "tests/checkout.spec.ts",
			"specs": [{
				"title": "adds item to cart",
				"line": 10,
				"tests": [{"projectName": "chromium", "status": "expected",
					"results": [{"status": "passed", "duration": 120}]}]
			}, {
				"title": "applies coupon",
				"line": 22,
				"tests": [{"projectName": "chromium", "status": "unexpected",
					"results": [
						{"status": "failed", "duration": 90, "errors": [{"message": "first try"}]},
						{"status": "failed", "duration": 80, "errors": [{"message": "Expected 10 to be 9", "stack": "at checkout.spec.ts:25"}]}
					]}]
			}],
			"suites": [{
				"title": "guest",
				"file": "tests/checkout.spec.ts",
				"specs": [{
					"title": "prompts login",
					"tests": [{"projectName": "chromium", "status": "flaky",
						"results": [{"status": "failed", "duration": 5}, {"status": "passed", "duration": 7}]}]
				}, {
					"title": "later",
					"tests": [{"projectName": "chromium", "status": "skipped",
						"results": [{"status": "skipped", "duration": 0}]}]
				}]
			}]
		}],
		"stats": {"expected": 1, "unexpected": 1, "flaky": 1, "skipped": 1, "duration": 1534.2}
	}`)

	report, err := (&PlaywrightParser{}).ParseBytes(data)
	require.NoError(t, err)

	assert.Equal(t, "playwright", report.Framework)
	assert.Equal(t, 4, report.TotalTests)
	assert.Equal(t, 2, report.PassedTests)
	assert.Equal(t, 1, report.FailedTests)
	assert.Equal(t, 1, report.SkippedTests)
	assert.Equal(t, int64(1534), report.DurationMS)

	failed := report.FailedTestCases()
	require.Len(t, failed, 1)
	assert.Equal(t, "applies coupon", failed[0].Name)
	assert.Equal(t, "Expected 10 to be 9", failed[0].ErrorMessage)
	assert.Equal(t, "tests/checkout.spec.ts", failed[0].FilePath)
	assert.Equal(t, "checkout.spec.ts", failed[0].Classname)
	assert.Equal(t, 22, failed[0].LineNumber)
	assert.Equal(t, int64(80), failed[0].DurationMS)
}

func TestPlaywrightParser_MultipleProjects(t *testing.T) {
	data := []byte(`{"suites": [{"title": "a", "file": "a.spec.ts", "specs": [{
		"title": "renders",
		"tests": [
			{"projectName": "chromium", "status": "expected", "results": [{"status": "passed"}]},
			{"projectName": "firefox", "status": "unexpected", "results": [{"status": "timedOut"}]}
		]}]}], "stats": {}}`)

	report, err := (&PlaywrightParser{}).ParseBytes(data)
	require.NoError(t, err)

	cases := report.AllTestCases()
	require.Len(t, cases, 2)
	assert.Equal(t, "[chromium] renders", cases[0].Name)
	assert.Equal(t, "[firefox] renders", cases[1].Name)
	assert.Equal(t, models.StatusFailed, cases[1].Status)
}

func TestPlaywrightParser_GlobalErrors(t *testing.T) {
	data := []byte(`{"suites": [], "errors": [{"message": "Error: no tests found"}], "stats": {}}`)

	report, err := (&PlaywrightParser{}).ParseBytes(data)
	require.NoError(t, err)
	assert.True(t, report.HasFailures())
	assert.Equal(t, "Error: no tests found", report.FailedTestCases()[0].ErrorMessage)
}

func TestPlaywrightParser_InvalidJSON(t *testing.T) {
	_, err := (&PlaywrightParser{}).ParseBytes([]byte("Running 3 tests using 1 worker"))
	assert.Error(t, err)
}

func TestPwStatus_FallsBackToResult(t *testing.T) {
	assert.Equal(t, models.StatusPassed, pwStatus("", "passed"))
	assert.Equal(t, models.StatusSkipped, pwStatus("", "skipped"))
	assert.Equal(t, models.StatusFailed, pwStatus("", "interrupted"))
}

func TestForRunner(t *testing.T) {
	p, err := ForRunner("go")
	require.NoError(t, err)
	assert.IsType(t, &GoTestParser{}, p)

	p, err = ForRunner("playwright")
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightParser{}, p)

	_, err = ForRunner("pytest")
	assert.Error(t, err)
}
