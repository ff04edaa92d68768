// Package parser converts the machine-readable output of test runners into
// models.Report values.
package parser

import (
	"fmt"
	"os"

	"github.com/kamilpajak/smarttest/pkg/models"
)

// Parser turns raw runner output into a normalized report.
type Parser interface {
	ParseBytes(data []byte) (*models.Report, error)
}

// ForRunner returns the parser matching a runner name.
func ForRunner(runner string) (Parser, error) {
	switch runner {
	case "", "go":
		return &GoTestParser{}, nil
	case "playwright":
		return &PlaywrightParser{}, nil
	default:
		return nil, fmt.Errorf("no parser for runner %q", runner)
	}
}

// ParseFile reads path and parses it with p.
func ParseFile(p Parser, path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return p.ParseBytes(data)
}
