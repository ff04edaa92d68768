package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/pkg/page"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

type playwrightSession struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	settings config.BrowserSettings
	logger   *zap.Logger
}

func launchPlaywright(_ context.Context, settings config.BrowserSettings, logger *zap.Logger) (*playwrightSession, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(settings.Headless),
		Args:     settings.Options,
	}
	var bt playwright.BrowserType
	switch strings.ToLower(settings.Engine) {
	case "", "chrome", "chromium":
		bt = pw.Chromium
	case "edge", "msedge":
		bt = pw.Chromium
		opts.Channel = playwright.String("msedge")
	case "firefox":
		bt = pw.Firefox
	case "webkit", "safari":
		bt = pw.WebKit
	default:
		pw.Stop()
		return nil, fmt.Errorf("unsupported browser %q", settings.Engine)
	}

	browser, err := bt.Launch(opts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	logger.Debug("browser launched",
		zap.String("driver", DriverPlaywright), zap.String("engine", settings.Engine), zap.Bool("headless", settings.Headless))

	return &playwrightSession{pw: pw, browser: browser, settings: settings, logger: logger}, nil
}

func (s *playwrightSession) NewDocument(_ context.Context) (page.Document, error) {
	w, h := viewport(s.settings)
	p, err := s.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: w, Height: h},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	timeout := s.settings.TimeoutDuration()
	if timeout <= 0 {
		timeout = page.DefaultTimeout
	}
	p.SetDefaultTimeout(float64(timeout.Milliseconds()))
	return &playwrightDocument{page: p, timeout: timeout}, nil
}

func (s *playwrightSession) Close() error {
	var errs []error
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type playwrightDocument struct {
	page    playwright.Page
	timeout time.Duration
}

func (d *playwrightDocument) ms(ctx context.Context) *float64 {
	return playwright.Float(float64(remaining(ctx, d.timeout).Milliseconds()))
}

// bounded runs a playwright call that takes no timeout option and returns
// early once ctx is done. The call itself is still limited by the page's
// default timeout.
func bounded[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, context.Cause(ctx)
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}

func selectorFor(loc page.Locator) (string, error) {
	kind, expr, err := loc.Selector()
	if err != nil {
		return "", err
	}
	if kind == page.KindXPath {
		return "xpath=" + expr, nil
	}
	return "css=" + expr, nil
}

func (d *playwrightDocument) Query(ctx context.Context, loc page.Locator) (page.Element, error) {
	sel, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	l := d.page.Locator(sel).First()
	n, err := bounded(ctx, l.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", page.ErrNoSuchElement, loc)
	}
	return &playwrightElement{loc: l, doc: d}, nil
}

func (d *playwrightDocument) QueryAll(ctx context.Context, control page.Control) ([]page.Element, error) {
	all, err := bounded(ctx, d.page.Locator(control.CSS()).All)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s controls: %w", control, err)
	}
	out := make([]page.Element, 0, len(all))
	for _, l := range all {
		out = append(out, &playwrightElement{loc: l, doc: d})
	}
	return out, nil
}

func (d *playwrightDocument) Navigate(ctx context.Context, url string) error {
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{Timeout: d.ms(ctx)}); err != nil {
		return fmt.Errorf("could not navigate: %w", err)
	}
	return nil
}

func (d *playwrightDocument) Title(ctx context.Context) (string, error) {
	return bounded(ctx, d.page.Title)
}

func (d *playwrightDocument) WaitForLoad(ctx context.Context) error {
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: d.ms(ctx),
	})
}

func (d *playwrightDocument) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Screenshot(playwright.PageScreenshotOptions{Timeout: d.ms(ctx)})
}

type playwrightElement struct {
	loc playwright.Locator
	doc *playwrightDocument
}

func (e *playwrightElement) Text(ctx context.Context) (string, error) {
	return e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: e.doc.ms(ctx)})
}

func (e *playwrightElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: e.doc.ms(ctx)})
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (e *playwrightElement) IsVisible(ctx context.Context) (bool, error) {
	return bounded(ctx, func() (bool, error) { return e.loc.IsVisible() })
}

func (e *playwrightElement) Click(ctx context.Context) error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: e.doc.ms(ctx)})
}

func (e *playwrightElement) Fill(ctx context.Context, text string) error {
	return e.loc.Fill(text, playwright.LocatorFillOptions{Timeout: e.doc.ms(ctx)})
}

// Install downloads the playwright driver and browsers.
func Install() error {
	return playwright.Install()
}

// IsAvailable checks if the playwright driver is installed.
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	pw.Stop()
	return true
}
