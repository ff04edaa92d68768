package reporting

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kamilpajak/smarttest/pkg/models"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Name     string       `xml:"name,attr,omitempty"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	File     string      `xml:"file,attr,omitempty"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	File      string        `xml:"file,attr,omitempty"`
	Line      int           `xml:"line,attr,omitempty"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *struct{}     `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

func ms(v int64) string {
	return fmt.Sprintf("%.3f", float64(v)/1000)
}

// WriteJUnit encodes report as JUnit XML. Nested suites are flattened, one
// <testsuite> per suite that directly holds tests.
func WriteJUnit(w io.Writer, name string, report *models.Report) error {
	doc := junitSuites{
		Name:     name,
		Tests:    report.TotalTests,
		Failures: report.FailedTests,
		Skipped:  report.SkippedTests,
		Time:     ms(report.DurationMS),
	}
	var walk func(s models.TestSuite, prefix string)
	walk = func(s models.TestSuite, prefix string) {
		full := s.Name
		if prefix != "" {
			full = prefix + " > " + s.Name
		}
		if len(s.Tests) > 0 {
			js := junitSuite{Name: full, File: s.FilePath}
			var total int64
			for _, tc := range s.Tests {
				jc := junitCase{
					Name:      tc.Name,
					Classname: tc.Classname,
					Time:      ms(tc.DurationMS),
					File:      tc.FilePath,
					Line:      tc.LineNumber,
				}
				switch tc.Status {
				case models.StatusFailed:
					jc.Failure = &junitFailure{Message: tc.ErrorMessage, Body: tc.ErrorStack}
					js.Failures++
				case models.StatusSkipped:
					jc.Skipped = &struct{}{}
					js.Skipped++
				}
				total += tc.DurationMS
				js.Cases = append(js.Cases, jc)
			}
			js.Tests = len(js.Cases)
			js.Time = ms(total)
			doc.Suites = append(doc.Suites, js)
		}
		for _, nested := range s.Suites {
			walk(nested, full)
		}
	}
	for _, s := range report.Suites {
		walk(s, "")
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode junit xml: %w", err)
	}
	return enc.Flush()
}

// WriteJUnitFile writes report as JUnit XML to path.
func WriteJUnitFile(path, name string, report *models.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create junit dir: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteJUnit(&buf, name, report); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write junit xml: %w", err)
	}
	return nil
}

// JUnitReporter renders the execution report as JUnit XML.
type JUnitReporter struct{}

func (r *JUnitReporter) Format() string { return "junit" }

func (r *JUnitReporter) Render(ctx context.Context, in Input, dir string) (string, error) {
	var buf bytes.Buffer
	if err := WriteJUnit(&buf, in.Suite, in.Report()); err != nil {
		return "", err
	}
	return writeFile(ctx, dir, "junit.xml", buf.Bytes())
}
