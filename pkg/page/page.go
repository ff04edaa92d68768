package page

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"go.uber.org/zap"
)

// DefaultTimeout bounds page actions when the suite sets no browser timeout.
const DefaultTimeout = 10 * time.Second

// Page is the base of every page object. It embeds the element registry and
// adds navigation helpers bound to the suite base URL.
type Page struct {
	*Registry

	Name          string
	BaseURL       string
	Timeout       time.Duration
	ScreenshotDir string

	logger *zap.Logger
}

// New creates a page object over doc. cfg may be nil, in which case the
// base URL is empty and self-healing is on.
func New(name string, doc Document, cfg *config.SuiteConfig, opts ...Option) *Page {
	p := &Page{
		Name:          name,
		Timeout:       DefaultTimeout,
		ScreenshotDir: "screenshots",
	}
	base := []Option{WithPageName(name)}
	if cfg != nil {
		p.BaseURL = cfg.Info.BaseURL
		if t := cfg.Browser.TimeoutDuration(); t > 0 {
			p.Timeout = t
		}
		base = append(base, WithFeatures(cfg))
	}
	p.Registry = NewRegistry(doc, append(base, opts...)...)
	p.logger = p.Registry.logger
	return p
}

// RegisterDefinition registers every element declared in def.
func (p *Page) RegisterDefinition(def Definition) {
	for _, el := range def.Elements {
		p.Register(el.Name, el.Description, el.Locator)
	}
}

// URL joins path onto the base URL.
func (p *Page) URL(path string) string {
	if path == "" {
		return p.BaseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(p.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Open navigates to path relative to the base URL.
func (p *Page) Open(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	url := p.URL(path)
	p.logger.Info("opening page", zap.String("url", url))
	if err := p.doc.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return p.doc.Title(ctx)
}

// WaitForLoad blocks until the document has loaded or timeout elapses.
func (p *Page) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.doc.WaitForLoad(ctx); err != nil {
		p.logger.Warn("page load timeout", zap.Error(err))
		return err
	}
	return nil
}

// Screenshot saves the viewport under ScreenshotDir and returns the path.
// An empty filename gets a timestamped name.
func (p *Page) Screenshot(ctx context.Context, filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("screenshot_%d.png", time.Now().Unix())
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	data, err := p.doc.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(p.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(p.ScreenshotDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	p.logger.Debug("screenshot saved", zap.String("path", path))
	return path, nil
}
