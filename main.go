package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/kamilpajak/smarttest/cmd/smarttest"
	"github.com/kamilpajak/smarttest/internal/config"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := smarttest.Execute(ctx)
	interrupted := ctx.Err() != nil
	stop()

	code := exitCode(err, interrupted)
	if code != exitOK {
		printError(os.Stderr, err)
	}
	os.Exit(code)
}

func exitCode(err error, interrupted bool) int {
	switch {
	case err == nil:
		return exitOK
	case interrupted, errors.Is(err, smarttest.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitFailure
	}
}

// category names the kind of failure for the error line.
func category(err error) string {
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		return "Configuration not found"
	case errors.Is(err, config.ErrConfigParse):
		return "Configuration parse error"
	case errors.Is(err, config.ErrConfigValidation):
		return "Configuration error"
	case errors.Is(err, smarttest.ErrInterrupted), errors.Is(err, context.Canceled):
		return "Interrupted"
	default:
		return "Error"
	}
}

func printError(w io.Writer, err error) {
	// The run summary already describes a failed run.
	if err == nil || errors.Is(err, smarttest.ErrRunFailed) {
		return
	}
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprintf(w, "%s: ", category(err))
	fmt.Fprintln(w, err)
}
