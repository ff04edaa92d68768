package page

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Environment handed to test processes by the runner.
const (
	EnvSuite      = "SMARTTEST_SUITE"
	EnvSuiteDir   = "SMARTTEST_SUITE_DIR"
	EnvConfig     = "SMARTTEST_CONFIG"
	EnvResultsDir = "SMARTTEST_RESULTS_DIR"
	// EnvConfigResolved is "true" when EnvConfig names a run snapshot that
	// already carries environment and runtime overrides.
	EnvConfigResolved = "SMARTTEST_CONFIG_RESOLVED"
)

// HealingDir is the results subdirectory holding healing logs.
const HealingDir = "healing"

// JSONLSink appends healing entries as JSON lines to <dir>/<pid>.jsonl.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

// NewJSONLSink creates dir if needed and returns a sink writing into it.
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create healing dir: %w", err)
	}
	return &JSONLSink{path: filepath.Join(dir, strconv.Itoa(os.Getpid())+".jsonl")}, nil
}

// SinkFromEnv returns a sink under $SMARTTEST_RESULTS_DIR/healing, or nil
// when the variable is unset.
func SinkFromEnv() (*JSONLSink, error) {
	dir := os.Getenv(EnvResultsDir)
	if dir == "" {
		return nil, nil
	}
	return NewJSONLSink(filepath.Join(dir, HealingDir))
}

// Path returns the file entries are appended to.
func (s *JSONLSink) Path() string {
	return s.path
}

func (s *JSONLSink) Record(entry HealingEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode healing entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open healing log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write healing log: %w", err)
	}
	return nil
}
