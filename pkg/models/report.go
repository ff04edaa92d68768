package models

// TestStatus is the outcome of one test case.
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusSkipped TestStatus = "skipped"
)

// TestCase is one executed test, normalized across runners.
type TestCase struct {
	Name         string     `json:"name"`
	Classname    string     `json:"classname,omitempty"`
	Status       TestStatus `json:"status"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ErrorStack   string     `json:"error_stack,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	LineNumber   int        `json:"line_number,omitempty"`
}

// TestSuite groups test cases. Go packages and Playwright describe blocks
// both map onto it; describe blocks nest.
type TestSuite struct {
	Name     string      `json:"name"`
	Tests    []TestCase  `json:"tests"`
	Suites   []TestSuite `json:"suites,omitempty"`
	FilePath string      `json:"file_path,omitempty"`
}

// Report is the parsed outcome of an execution phase.
type Report struct {
	Framework    string      `json:"framework"`
	TotalTests   int         `json:"total_tests"`
	PassedTests  int         `json:"passed_tests"`
	FailedTests  int         `json:"failed_tests"`
	SkippedTests int         `json:"skipped_tests"`
	DurationMS   int64       `json:"duration_ms,omitempty"`
	Suites       []TestSuite `json:"suites"`
}

// HasFailures reports whether any test failed.
func (r *Report) HasFailures() bool {
	return r.FailedTests > 0
}

// FailedTestCases returns the failed cases in AllTestCases order.
func (r *Report) FailedTestCases() []TestCase {
	return r.cases(func(tc TestCase) bool { return tc.Status == StatusFailed })
}

// AllTestCases returns every test case, depth first. A suite's own cases
// come before those of its nested suites.
func (r *Report) AllTestCases() []TestCase {
	return r.cases(nil)
}

// Merge folds other into r. Counts are summed, so the result does not
// depend on the order in which reports are merged.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	if r.Framework == "" {
		r.Framework = other.Framework
	}
	r.TotalTests += other.TotalTests
	r.PassedTests += other.PassedTests
	r.FailedTests += other.FailedTests
	r.SkippedTests += other.SkippedTests
	r.DurationMS += other.DurationMS
	r.Suites = append(r.Suites, other.Suites...)
}

// Recount recomputes the summary counters from the test cases.
func (r *Report) Recount() {
	r.TotalTests, r.PassedTests, r.FailedTests, r.SkippedTests = 0, 0, 0, 0
	for _, tc := range r.AllTestCases() {
		r.TotalTests++
		switch tc.Status {
		case StatusPassed:
			r.PassedTests++
		case StatusFailed:
			r.FailedTests++
		case StatusSkipped:
			r.SkippedTests++
		}
	}
}

func (r *Report) cases(keep func(TestCase) bool) []TestCase {
	var out []TestCase
	var walk func(TestSuite)
	walk = func(s TestSuite) {
		for _, tc := range s.Tests {
			if keep == nil || keep(tc) {
				out = append(out, tc)
			}
		}
		for _, nested := range s.Suites {
			walk(nested)
		}
	}
	for _, s := range r.Suites {
		walk(s)
	}
	return out
}
