package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RunnerType represents the test runner a suite's tests are written for
type RunnerType string

const (
	RunnerGo         RunnerType = "go"
	RunnerPlaywright RunnerType = "playwright"
	RunnerUnknown    RunnerType = "unknown"
)

// Required layout of a suite directory.
const (
	ConfigFile = "config.yaml"
	PagesDir   = "pages"
	TestsDir   = "tests"
)

// SchemasDir holds the JSON schemas API tests validate against. It is
// optional.
const SchemasDir = "schemas"

// SuiteDiscoveryResult represents a discovered test suite
type SuiteDiscoveryResult struct {
	Name         string     `json:"name"`
	Title        string     `json:"title,omitempty"`
	BaseURL      string     `json:"base_url,omitempty"`
	Path         string     `json:"path"`
	Compatible   bool       `json:"compatible"`
	Runner       RunnerType `json:"runner"`
	Pages        int        `json:"pages"`
	TestPackages []string   `json:"test_packages,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Service handles suite discovery under a suites root directory
type Service struct {
	root string
}

// New creates a new discovery service
func New(root string) *Service {
	return &Service{root: root}
}

// Root returns the suites root directory.
func (s *Service) Root() string {
	return s.root
}

// PlaywrightPatterns are file patterns that indicate Playwright specs
var PlaywrightPatterns = []string{
	"*.spec.ts",
	"*.spec.js",
	"*.test.ts",
	"playwright.config.ts",
	"playwright.config.js",
}

// Validate reports the layout problems of a suite directory. A suite is
// valid when it has a config file, a pages directory and a tests directory.
func Validate(dir string) []string {
	var problems []string
	if info, err := os.Stat(filepath.Join(dir, ConfigFile)); err != nil || info.IsDir() {
		problems = append(problems, "missing "+ConfigFile)
	}
	for _, sub := range []string{PagesDir, TestsDir} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			problems = append(problems, "missing "+sub+"/ directory")
		}
	}
	return problems
}

// DiscoverSuite inspects a single suite directory.
func (s *Service) DiscoverSuite(ctx context.Context, name string) (*SuiteDiscoveryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, name)
	result := &SuiteDiscoveryResult{Name: name, Path: dir, Runner: RunnerUnknown}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		result.Error = "suite directory not found"
		return result, nil
	}

	if problems := Validate(dir); len(problems) > 0 {
		result.Error = strings.Join(problems, "; ")
		return result, nil
	}

	title, baseURL, err := readSuiteInfo(filepath.Join(dir, ConfigFile))
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Title, result.BaseURL = title, baseURL
	result.Pages = countPages(filepath.Join(dir, PagesDir))

	testsDir := filepath.Join(dir, TestsDir)
	result.Runner = DetectRunner(testsDir)
	if result.Runner == RunnerGo {
		pkgs, err := TestPackages(testsDir)
		if err != nil {
			result.Error = err.Error()
			return result, nil
		}
		result.TestPackages = pkgs
	}
	result.Compatible = true
	return result, nil
}

// Discover lists every suite directory under the root, sorted by name.
// Directories that are not valid suites are returned with Error set.
func (s *Service) Discover(ctx context.Context) ([]SuiteDiscoveryResult, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read suites dir: %w", err)
	}

	var results []SuiteDiscoveryResult
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		result, err := s.DiscoverSuite(ctx, e.Name())
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

// Compatible returns the names of the valid suites.
func (s *Service) Compatible(ctx context.Context) ([]string, error) {
	results, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range results {
		if r.Compatible {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// DetectRunner guesses the runner from the files under the tests directory.
// Go test files win over Playwright specs when both are present.
func DetectRunner(testsDir string) RunnerType {
	found := RunnerUnknown
	_ = filepath.WalkDir(testsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), "_test.go") {
			found = RunnerGo
			return filepath.SkipAll
		}
		if matchesPlaywrightPattern(d.Name()) {
			found = RunnerPlaywright
		}
		return nil
	})
	return found
}

// TestPackages returns the directories under testsDir that contain Go test
// files, relative to testsDir and sorted.
func TestPackages(testsDir string) ([]string, error) {
	seen := map[string]bool{}
	err := filepath.WalkDir(testsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != testsDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata" || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), "_test.go") {
			rel, err := filepath.Rel(testsDir, filepath.Dir(path))
			if err != nil {
				return err
			}
			seen[rel] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan test packages: %w", err)
	}

	pkgs := make([]string, 0, len(seen))
	for p := range seen {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs, nil
}

// matchesPlaywrightPattern checks if a file name matches known spec patterns
func matchesPlaywrightPattern(name string) bool {
	for _, pattern := range PlaywrightPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func readSuiteInfo(path string) (name, baseURL string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	}
	var doc struct {
		SuiteInfo struct {
			Name    string `yaml:"name"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"suite_info"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", "", fmt.Errorf("invalid %s: %w", ConfigFile, err)
	}
	return doc.SuiteInfo.Name, doc.SuiteInfo.BaseURL, nil
}

func countPages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			n++
		}
	}
	return n
}
