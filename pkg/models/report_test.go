package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleReport(passed, failed int) *Report {
	s := TestSuite{Name: "pkg"}
	for i := 0; i < passed; i++ {
		s.Tests = append(s.Tests, TestCase{Name: "ok", Status: StatusPassed})
	}
	for i := 0; i < failed; i++ {
		s.Tests = append(s.Tests, TestCase{Name: "bad", Status: StatusFailed})
	}
	r := &Report{Framework: "go", Suites: []TestSuite{s}, DurationMS: 100}
	r.Recount()
	return r
}

func TestReport_MergeIsOrderIndependent(t *testing.T) {
	a, b, c := sampleReport(2, 1), sampleReport(3, 0), sampleReport(0, 2)

	left := &Report{}
	left.Merge(a)
	left.Merge(b)
	left.Merge(c)

	right := &Report{}
	right.Merge(c)
	right.Merge(a)
	right.Merge(b)

	for _, r := range []*Report{left, right} {
		assert.Equal(t, 8, r.TotalTests)
		assert.Equal(t, 5, r.PassedTests)
		assert.Equal(t, 3, r.FailedTests)
		assert.Equal(t, int64(300), r.DurationMS)
		assert.Equal(t, "go", r.Framework)
	}
	assert.Len(t, left.FailedTestCases(), 3)

	left.Merge(nil)
	assert.Equal(t, 8, left.TotalTests)
}

func TestReport_NestedSuites(t *testing.T) {
	r := &Report{Suites: []TestSuite{{
		Name:  "outer",
		Tests: []TestCase{{Name: "a", Status: StatusPassed}},
		Suites: []TestSuite{{
			Name:  "inner",
			Tests: []TestCase{{Name: "b", Status: StatusFailed}, {Name: "c", Status: StatusSkipped}},
		}},
	}}}
	r.Recount()

	assert.Equal(t, 3, r.TotalTests)
	assert.Equal(t, 1, r.SkippedTests)
	assert.True(t, r.HasFailures())
	assert.Equal(t, []string{"a", "b", "c"}, names(r.AllTestCases()))
	assert.Equal(t, []string{"b"}, names(r.FailedTestCases()))
}

func names(cases []TestCase) []string {
	out := make([]string, 0, len(cases))
	for _, c := range cases {
		out = append(out, c.Name)
	}
	return out
}
