package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfigNotFound   = errors.New("config not found")
	ErrConfigParse      = errors.New("invalid config yaml")
	ErrConfigValidation = errors.New("invalid config")
	ErrSuiteNotLoaded   = errors.New("suite not loaded")
)

// ConfigNotFoundError reports a missing suite configuration file.
type ConfigNotFoundError struct {
	Suite string
	Path  string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config not found for suite %q at %s", e.Suite, e.Path)
}

func (e *ConfigNotFoundError) Is(target error) bool { return target == ErrConfigNotFound }

// ConfigParseError wraps a YAML decoding failure.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("invalid YAML in %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

func (e *ConfigParseError) Is(target error) bool { return target == ErrConfigParse }

// ConfigValidationError lists every problem found in a suite document.
type ConfigValidationError struct {
	Suite    string
	Problems []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid config for suite %q: %s", e.Suite, strings.Join(e.Problems, "; "))
}

func (e *ConfigValidationError) Is(target error) bool { return target == ErrConfigValidation }
