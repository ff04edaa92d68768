// Package browser launches browser sessions and exposes their pages as
// page.Document values.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
)

// Driver names.
const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
)

// Session is a running browser.
type Session interface {
	// NewDocument opens a blank tab sized to the configured window.
	NewDocument(ctx context.Context) (page.Document, error)
	Close() error
}

// Launch starts a browser for settings using the configured driver.
func Launch(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("browser")

	switch strings.ToLower(settings.Driver) {
	case "", DriverPlaywright:
		return launchPlaywright(ctx, settings, logger)
	case DriverRod:
		return launchRod(ctx, settings, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", settings.Driver)
	}
}

// Open launches a session and opens one document, returning a cleanup func
// that closes both.
func Open(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (page.Document, func(), error) {
	session, err := Launch(ctx, settings, logger)
	if err != nil {
		return nil, nil, err
	}
	doc, err := session.NewDocument(ctx)
	if err != nil {
		session.Close()
		return nil, nil, err
	}
	return doc, func() { session.Close() }, nil
}

// viewport falls back to 1920x1080 on a malformed window size.
func viewport(settings config.BrowserSettings) (int, int) {
	w, h, err := settings.Viewport()
	if err != nil || w <= 0 || h <= 0 {
		return 1920, 1080
	}
	return w, h
}

// remaining returns the time left before ctx expires, or def without a
// deadline.
func remaining(ctx context.Context, def time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return def
}
