package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
)

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	settings config.BrowserSettings
	logger   *zap.Logger
}

func launchRod(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (*rodSession, error) {
	switch strings.ToLower(settings.Engine) {
	case "", "chrome", "chromium", "edge", "msedge":
	default:
		return nil, fmt.Errorf("rod driver supports chromium browsers only, got %q", settings.Engine)
	}

	w, h := viewport(settings)
	l := launcher.New().
		Headless(settings.Headless).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", w, h))
	for _, raw := range settings.Options {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("could not connect to browser: %w", err)
	}
	logger.Debug("browser launched",
		zap.String("driver", DriverRod), zap.String("engine", settings.Engine), zap.Bool("headless", settings.Headless))

	return &rodSession{launcher: l, browser: b, settings: settings, logger: logger}, nil
}

func (s *rodSession) NewDocument(_ context.Context) (page.Document, error) {
	p, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	w, h := viewport(s.settings)
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             w,
		Height:            h,
		DeviceScaleFactor: 1.0,
	}).Call(p); err != nil {
		s.logger.Warn("failed to set viewport", zap.Error(err))
	}

	timeout := s.settings.TimeoutDuration()
	if timeout <= 0 {
		timeout = page.DefaultTimeout
	}
	return &rodDocument{page: p, timeout: timeout}, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

type rodDocument struct {
	page    *rod.Page
	timeout time.Duration
}

// bound returns the page bound to ctx, with the default timeout when ctx has
// no deadline.
func (d *rodDocument) bound(ctx context.Context) *rod.Page {
	p := d.page.Context(ctx)
	if _, ok := ctx.Deadline(); !ok {
		p = p.Timeout(d.timeout)
	}
	return p
}

func (d *rodDocument) Query(ctx context.Context, loc page.Locator) (page.Element, error) {
	kind, expr, err := loc.Selector()
	if err != nil {
		return nil, err
	}
	p := d.bound(ctx)

	var (
		has bool
		el  *rod.Element
	)
	if kind == page.KindXPath {
		has, el, err = p.HasX(expr)
	} else {
		has, el, err = p.Has(expr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", page.ErrNoSuchElement, loc)
	}
	return &rodElement{el: el, doc: d}, nil
}

func (d *rodDocument) QueryAll(ctx context.Context, control page.Control) ([]page.Element, error) {
	els, err := d.bound(ctx).Elements(control.CSS())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s controls: %w", control, err)
	}
	out := make([]page.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el, doc: d})
	}
	return out, nil
}

func (d *rodDocument) Navigate(ctx context.Context, url string) error {
	if err := d.bound(ctx).Navigate(url); err != nil {
		return fmt.Errorf("could not navigate: %w", err)
	}
	return nil
}

func (d *rodDocument) Title(ctx context.Context) (string, error) {
	info, err := d.bound(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *rodDocument) WaitForLoad(ctx context.Context) error {
	return d.bound(ctx).WaitLoad()
}

func (d *rodDocument) Screenshot(ctx context.Context) ([]byte, error) {
	return d.bound(ctx).Screenshot(false, nil)
}

type rodElement struct {
	el  *rod.Element
	doc *rodDocument
}

func (e *rodElement) bound(ctx context.Context) *rod.Element {
	el := e.el.Context(ctx)
	if _, ok := ctx.Deadline(); !ok {
		el = el.Timeout(e.doc.timeout)
	}
	return el
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.bound(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.bound(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) IsVisible(ctx context.Context) (bool, error) {
	return e.bound(ctx).Visible()
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.bound(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Fill(ctx context.Context, text string) error {
	el := e.bound(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear element: %w", err)
	}
	return el.Input(text)
}
