package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kamilpajak/smarttest/pkg/models"
)

// PackageFailure names the synthetic case recorded when a package fails
// without any failing test, e.g. on a build error or a panic in init.
const PackageFailure = "(package)"

// GoTestParser parses the event stream of `go test -json`.
type GoTestParser struct{}

type goEvent struct {
	Action     string  `json:"Action"`
	Package    string  `json:"Package"`
	ImportPath string  `json:"ImportPath"`
	Test       string  `json:"Test"`
	Elapsed    float64 `json:"Elapsed"`
	Output     string  `json:"Output"`
}

type goTest struct {
	name    string
	status  models.TestStatus
	elapsed float64
	output  []string
}

type goPackage struct {
	name    string
	order   []string
	tests   map[string]*goTest
	status  models.TestStatus
	elapsed float64
	output  []string
}

var fileLine = regexp.MustCompile(`^\s*([\w./-]+\.go):(\d+):`)

// ParseBytes parses a go test JSON stream. Lines that are not JSON events,
// such as stray stderr output, are ignored.
func (p *GoTestParser) ParseBytes(data []byte) (*models.Report, error) {
	pkgs := map[string]*goPackage{}
	var order []string
	pkg := func(name string) *goPackage {
		gp, ok := pkgs[name]
		if !ok {
			gp = &goPackage{name: name, tests: map[string]*goTest{}}
			pkgs[name] = gp
			order = append(order, name)
		}
		return gp
	}

	events := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev goEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events++

		switch ev.Action {
		case "build-output":
			gp := pkg(importPath(ev.ImportPath))
			gp.output = append(gp.output, ev.Output)
			continue
		case "build-fail":
			pkg(importPath(ev.ImportPath)).status = models.StatusFailed
			continue
		}
		if ev.Package == "" {
			continue
		}

		gp := pkg(ev.Package)
		if ev.Test == "" {
			switch ev.Action {
			case "output":
				gp.output = append(gp.output, ev.Output)
			case "pass":
				gp.status, gp.elapsed = models.StatusPassed, ev.Elapsed
			case "fail":
				gp.status, gp.elapsed = models.StatusFailed, ev.Elapsed
			case "skip":
				gp.status, gp.elapsed = models.StatusSkipped, ev.Elapsed
			}
			continue
		}

		t, ok := gp.tests[ev.Test]
		if !ok {
			t = &goTest{name: ev.Test}
			gp.tests[ev.Test] = t
			gp.order = append(gp.order, ev.Test)
		}
		switch ev.Action {
		case "output":
			t.output = append(t.output, ev.Output)
		case "pass":
			t.status, t.elapsed = models.StatusPassed, ev.Elapsed
		case "fail":
			t.status, t.elapsed = models.StatusFailed, ev.Elapsed
		case "skip":
			t.status, t.elapsed = models.StatusSkipped, ev.Elapsed
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read go test output: %w", err)
	}
	if events == 0 && len(bytes.TrimSpace(data)) > 0 {
		return nil, fmt.Errorf("failed to parse go test output: no JSON events")
	}

	report := &models.Report{Framework: "go"}
	for _, name := range order {
		gp := pkgs[name]
		report.Suites = append(report.Suites, gp.suite())
		report.DurationMS += int64(gp.elapsed * 1000)
	}
	report.Recount()
	return report, nil
}

func (gp *goPackage) suite() models.TestSuite {
	s := models.TestSuite{Name: gp.name}

	failed := false
	for _, name := range gp.order {
		t := gp.tests[name]
		if hasChildren(name, gp.order) {
			continue
		}
		status := t.status
		if status == "" {
			// no terminal event: the process died mid-test
			status = models.StatusFailed
		}
		tc := models.TestCase{
			Name:       t.name,
			Classname:  gp.name,
			Status:     status,
			DurationMS: int64(t.elapsed * 1000),
		}
		if status == models.StatusFailed {
			failed = true
			tc.ErrorMessage, tc.ErrorStack, tc.FilePath, tc.LineNumber = failureDetail(t.output)
		}
		s.Tests = append(s.Tests, tc)
	}

	if gp.status == models.StatusFailed && !failed {
		msg, stack, file, line := failureDetail(gp.output)
		s.Tests = append(s.Tests, models.TestCase{
			Name:         PackageFailure,
			Classname:    gp.name,
			Status:       models.StatusFailed,
			DurationMS:   int64(gp.elapsed * 1000),
			ErrorMessage: msg,
			ErrorStack:   stack,
			FilePath:     file,
			LineNumber:   line,
		})
	}
	return s
}

// importPath strips the " [pkg.test]" variant suffix from build events.
func importPath(s string) string {
	name, _, _ := strings.Cut(s, " ")
	return name
}

// hasChildren reports whether name has subtests; only leaf tests are counted.
func hasChildren(name string, all []string) bool {
	prefix := name + "/"
	for _, other := range all {
		if strings.HasPrefix(other, prefix) {
			return true
		}
	}
	return false
}

func failureDetail(output []string) (message, stack, file string, line int) {
	var kept []string
	for _, o := range output {
		trimmed := strings.TrimSpace(o)
		if trimmed == "" ||
			strings.HasPrefix(trimmed, "=== ") ||
			strings.HasPrefix(trimmed, "--- ") ||
			trimmed == "FAIL" || trimmed == "PASS" ||
			strings.HasPrefix(trimmed, "FAIL\t") || strings.HasPrefix(trimmed, "ok  \t") {
			continue
		}
		kept = append(kept, strings.TrimRight(o, "\n"))
	}
	if len(kept) == 0 {
		return "test failed", "", "", 0
	}

	stack = strings.Join(kept, "\n")
	message = strings.TrimSpace(kept[0])
	for _, k := range kept {
		t := strings.TrimSpace(k)
		if strings.HasPrefix(t, "Error:") {
			message = strings.TrimSpace(strings.TrimPrefix(t, "Error:"))
			break
		}
		if strings.HasPrefix(t, "panic:") {
			message = t
			break
		}
	}
	if m := fileLine.FindStringSubmatch(kept[0]); m != nil {
		file = m[1]
		line, _ = strconv.Atoi(m[2])
	}
	return message, stack, file, line
}

// Output reassembles the human-readable test log from a go test JSON
// stream. Lines that are not events are kept verbatim.
func Output(data []byte) string {
	var b strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var ev goEvent
		if len(line) > 0 && line[0] == '{' && json.Unmarshal(line, &ev) == nil {
			b.WriteString(ev.Output)
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}
