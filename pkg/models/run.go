package models

import "time"

// Mode selects which phases a run executes.
type Mode string

const (
	ModeRun      Mode = "run"
	ModeGenerate Mode = "generate"
	ModeFull     Mode = "full"
)

// ParseMode validates a CLI mode value.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeRun, ModeGenerate, ModeFull:
		return Mode(s), true
	}
	return "", false
}

// Generates reports whether the mode includes test generation.
func (m Mode) Generates() bool { return m == ModeGenerate || m == ModeFull }

// Executes reports whether the mode includes test execution.
func (m Mode) Executes() bool { return m == ModeRun || m == ModeFull }

// State is a step of the run state machine.
type State string

const (
	StateIdle       State = "idle"
	StateGenerating State = "generating"
	StateExecuting  State = "executing"
	StateAnalyzing  State = "analyzing"
	StateReporting  State = "reporting"
	StateDone       State = "done"
)

// Phase names a stage of a run.
type Phase string

const (
	PhaseGenerate Phase = "generate"
	PhaseExecute  Phase = "execute"
	PhaseAnalyze  Phase = "analyze"
	PhaseReport   Phase = "report"
)

// FailureKind distinguishes process-level failures from assertion failures.
type FailureKind string

const (
	FailureNone        FailureKind = "none"
	FailureTestsFailed FailureKind = "tests_failed"
	FailureTimeout     FailureKind = "timeout"
	FailureCrashed     FailureKind = "crashed"
	FailureInterrupted FailureKind = "interrupted"
)

// PhaseResult carries the fields every phase result shares.
type PhaseResult struct {
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GenerationResult is the outcome of the generation phase.
type GenerationResult struct {
	PhaseResult
	Pages int      `json:"pages"`
	Cases int      `json:"cases"`
	Files []string `json:"files,omitempty"`
}

// ExecutionResult is the outcome of the execution phase.
type ExecutionResult struct {
	PhaseResult
	FailureKind FailureKind `json:"failure_kind"`
	ReturnCode  int         `json:"return_code"`
	Report      *Report     `json:"report,omitempty"`
	Output      string      `json:"-"`
	RawFiles    []string    `json:"raw_files,omitempty"`
	JUnitPath   string      `json:"junit_path,omitempty"`
}

// AnalysisResult is the outcome of the analysis phase.
type AnalysisResult struct {
	PhaseResult
	Insights *Insights `json:"insights,omitempty"`
	Path     string    `json:"path,omitempty"`
}

// ReportingResult is the outcome of the reporting phase.
type ReportingResult struct {
	PhaseResult
	Reports    map[string]string `json:"reports,omitempty"`
	Failures   map[string]string `json:"failures,omitempty"`
	MainReport string            `json:"main_report,omitempty"`
	Dir        string            `json:"dir,omitempty"`
}

// RunResult is the outcome of one orchestrated suite run. Phase results are
// nil when the phase never ran.
type RunResult struct {
	ID         string            `json:"id"`
	Suite      string            `json:"suite"`
	Mode       Mode              `json:"mode"`
	Timestamp  time.Time         `json:"timestamp"`
	ResultsDir string            `json:"results_dir"`
	State      State             `json:"state"`
	Success    bool              `json:"success"`
	ReportPath string            `json:"report_path,omitempty"`
	Error      string            `json:"error,omitempty"`
	Generation *GenerationResult `json:"generation,omitempty"`
	Execution  *ExecutionResult  `json:"execution,omitempty"`
	Analysis   *AnalysisResult   `json:"analysis,omitempty"`
	Reporting  *ReportingResult  `json:"reporting,omitempty"`
}

// Health is the coarse verdict of a run.
type Health string

const (
	HealthGood Health = "good"
	HealthPoor Health = "poor"
)

// HealingStats summarizes element-resolution attempts observed during a run.
type HealingStats struct {
	Attempts  int            `json:"attempts"`
	Healed    int            `json:"healed"`
	Failed    int            `json:"failed"`
	ByElement map[string]int `json:"by_element,omitempty"`
}

// Insights is the analysis of one run.
type Insights struct {
	OverallHealth       Health       `json:"overall_health"`
	ExecutionTime       float64      `json:"execution_time"`
	PerformanceCategory string       `json:"performance_category"`
	Recommendations     []string     `json:"recommendations"`
	Summary             string       `json:"summary"`
	Healing             HealingStats `json:"healing"`
	RootCause           *Diagnosis   `json:"root_cause,omitempty"`
}
