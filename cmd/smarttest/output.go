package smarttest

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/kamilpajak/smarttest/internal/orchestrator"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/mattn/go-isatty"
)

// newEmitter returns a spinner on a terminal and plain lines otherwise.
func newEmitter(w *os.File) orchestrator.Emitter {
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		return newSpinnerEmitter(w)
	}
	return &orchestrator.TextEmitter{W: w}
}

// spinnerEmitter animates the current state and prints one line per
// finished phase.
type spinnerEmitter struct {
	w io.Writer
	s *spinner.Spinner
}

func newSpinnerEmitter(w io.Writer) *spinnerEmitter {
	return &spinnerEmitter{
		w: w,
		s: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

func (e *spinnerEmitter) Emit(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventState:
		if ev.State == models.StateDone {
			e.s.Stop()
			return
		}
		e.s.Suffix = " " + ev.Message
		if !e.s.Active() {
			e.s.Start()
		}
	case orchestrator.EventPhaseDone:
		e.s.Stop()
		printPhase(e.w, ev)
	case orchestrator.EventInfo:
		e.s.Stop()
		fmt.Fprintf(e.w, "  %s\n", ev.Message)
	case orchestrator.EventError:
		e.s.Stop()
		_, _ = color.New(color.FgRed).Fprintf(e.w, "  %s\n", ev.Message)
	case orchestrator.EventDone:
		e.s.Stop()
	}
}

func printPhase(w io.Writer, ev orchestrator.Event) {
	dim := color.New(color.FgHiBlack)
	switch {
	case ev.Skipped:
		_, _ = dim.Fprintf(w, "  - %s skipped", ev.Phase)
		if ev.Message != "" {
			_, _ = dim.Fprintf(w, ": %s", ev.Message)
		}
		fmt.Fprintln(w)
	case ev.Success:
		_, _ = color.New(color.FgGreen).Fprintf(w, "  ✓ %s", ev.Phase)
		_, _ = dim.Fprintf(w, " (%s)\n", ev.Duration.Round(time.Millisecond))
	default:
		_, _ = color.New(color.FgRed).Fprintf(w, "  ✗ %s", ev.Phase)
		_, _ = dim.Fprintf(w, " (%s)", ev.Duration.Round(time.Millisecond))
		if ev.Message != "" {
			fmt.Fprintf(w, ": %s", ev.Message)
		}
		fmt.Fprintln(w)
	}
}

// printSummary writes the final run summary.
func printSummary(w io.Writer, res *models.RunResult) {
	bold := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(w)
	_, _ = dim.Fprintln(w, "  "+strings.Repeat("━", 50))
	if res.Success {
		_, _ = color.New(color.FgGreen, color.Bold).Fprintf(w, "  PASSED")
	} else {
		_, _ = color.New(color.FgRed, color.Bold).Fprintf(w, "  FAILED")
	}
	_, _ = bold.Fprintf(w, "  %s", res.Suite)
	_, _ = dim.Fprintf(w, " (%s)\n", res.Mode)

	if e := res.Execution; e != nil {
		if r := e.Report; r != nil {
			fmt.Fprintf(w, "  Tests: %d total, %d passed, %d failed, %d skipped\n",
				r.TotalTests, r.PassedTests, r.FailedTests, r.SkippedTests)
		}
		fmt.Fprintf(w, "  Duration: %.2fs", e.Duration.Seconds())
		if e.FailureKind != "" && e.FailureKind != models.FailureNone {
			fmt.Fprintf(w, "  Failure: %s", e.FailureKind)
		}
		fmt.Fprintln(w)
	}
	if g := res.Generation; g != nil && !g.Skipped && g.Success {
		fmt.Fprintf(w, "  Generated: %d cases from %d pages\n", g.Cases, g.Pages)
	}
	if a := res.Analysis; a != nil && a.Insights != nil {
		in := a.Insights
		fmt.Fprintf(w, "  Health: %s, performance: %s\n", in.OverallHealth, in.PerformanceCategory)
		if in.Healing.Healed > 0 {
			_, _ = color.New(color.FgYellow).Fprintf(w, "  Healed elements: %d\n", in.Healing.Healed)
		}
		if rc := in.RootCause; rc != nil {
			fmt.Fprintln(w)
			_, _ = bold.Fprintf(w, "  ROOT CAUSE [%s]\n", rc.Confidence)
			fmt.Fprintf(w, "  %s\n", rc.RootCause)
			if rc.SuggestedFix != "" {
				_, _ = bold.Fprintln(w, "  FIX")
				fmt.Fprintf(w, "  %s\n", rc.SuggestedFix)
			}
		}
		for _, rec := range in.Recommendations {
			_, _ = dim.Fprintf(w, "  • %s\n", rec)
		}
	}
	if res.Error != "" {
		_, _ = color.New(color.FgRed).Fprintf(w, "  %s\n", res.Error)
	}

	fmt.Fprintf(w, "  Results: %s\n", res.ResultsDir)
	if res.ReportPath != "" {
		fmt.Fprintf(w, "  Report:  %s\n", res.ReportPath)
	}
}
