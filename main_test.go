package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/kamilpajak/smarttest/cmd/smarttest"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil, false))
	assert.Equal(t, exitOK, exitCode(nil, true), "a clean shutdown after the run is not an interrupt")
	assert.Equal(t, exitFailure, exitCode(smarttest.ErrRunFailed, false))
	assert.Equal(t, exitFailure, exitCode(errors.New("--suite is required"), false))
	assert.Equal(t, exitInterrupted, exitCode(smarttest.ErrRunFailed, true))
	assert.Equal(t, exitInterrupted, exitCode(smarttest.ErrInterrupted, false))
	assert.Equal(t, exitInterrupted, exitCode(fmt.Errorf("load: %w", context.Canceled), false))
}

func TestCategory(t *testing.T) {
	notFound := &config.ConfigNotFoundError{Suite: "shop", Path: "suites/shop/config.yaml"}
	assert.Equal(t, "Configuration not found", category(notFound))
	assert.Equal(t, "Configuration parse error", category(&config.ConfigParseError{Path: "x", Err: errors.New("bad")}))
	assert.Equal(t, "Configuration error", category(&config.ConfigValidationError{Suite: "shop", Problems: []string{"p"}}))
	assert.Equal(t, "Interrupted", category(smarttest.ErrInterrupted))
	assert.Equal(t, "Error", category(errors.New("boom")))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, &config.ConfigNotFoundError{Suite: "shop", Path: "suites/shop/config.yaml"})
	assert.Contains(t, buf.String(), "Configuration not found: ")
	assert.Contains(t, buf.String(), "shop")

	buf.Reset()
	printError(&buf, smarttest.ErrRunFailed)
	assert.Empty(t, buf.String(), "failed runs are described by their summary")

	buf.Reset()
	printError(&buf, nil)
	assert.Empty(t, buf.String())
}
