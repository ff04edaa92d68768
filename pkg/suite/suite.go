// Package suite is the harness imported by suite tests. It resolves the
// suite configuration handed over by the runner, opens one browser document
// per test and builds page objects from pages/*.yaml.
package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/kamilpajak/smarttest/internal/browser"
	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/pkg/api"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ErrNoSuite is returned when no config.yaml can be located.
var ErrNoSuite = errors.New("no suite config found")

// Opener opens a browser document and returns its cleanup func.
type Opener func(ctx context.Context, settings config.BrowserSettings, logger *zap.Logger) (page.Document, func(), error)

// Harness carries the resolved suite for one test.
type Harness struct {
	Config *config.SuiteConfig
	Dir    string

	t      testing.TB
	open   Opener
	sink   page.HealingSink
	logger *zap.Logger

	once sync.Once
	doc  page.Document
	err  error
}

// Option configures a Harness.
type Option func(*Harness)

// WithOpener replaces the browser launcher.
func WithOpener(o Opener) Option {
	return func(h *Harness) { h.open = o }
}

// WithSink replaces the healing sink taken from the environment.
func WithSink(s page.HealingSink) Option {
	return func(h *Harness) { h.sink = s }
}

// Setup resolves the suite for t and fails the test when it cannot.
func Setup(t testing.TB, opts ...Option) *Harness {
	t.Helper()

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	cfg, dir, err := Resolve(logger)
	if err != nil {
		t.Fatalf("failed to resolve suite: %v", err)
	}

	h := &Harness{
		Config: cfg,
		Dir:    dir,
		t:      t,
		open:   browser.Open,
		logger: logger,
	}
	if sink, err := page.SinkFromEnv(); err != nil {
		logger.Warn("healing log disabled", zap.Error(err))
	} else if sink != nil {
		h.sink = sink
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Resolve loads the suite named by SMARTTEST_SUITE and SMARTTEST_CONFIG, or
// the nearest config.yaml above the working directory. It returns the
// config and the suite directory. A run snapshot is loaded as is, so the
// runner's overrides win over this process's environment.
func Resolve(logger *zap.Logger) (*config.SuiteConfig, string, error) {
	path := os.Getenv(page.EnvConfig)
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get working directory: %w", err)
		}
		if path, err = FindConfig(wd); err != nil {
			return nil, "", err
		}
	}
	dir := os.Getenv(page.EnvSuiteDir)
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := os.Getenv(page.EnvSuite)
	if name == "" {
		name = filepath.Base(dir)
	}

	opts := []config.Option{config.WithLogger(logger)}
	if resolved, _ := strconv.ParseBool(os.Getenv(page.EnvConfigResolved)); resolved {
		opts = append(opts, config.WithoutEnv())
	}
	cfg, err := config.NewResolver(filepath.Dir(dir), opts...).Load(name, path)
	if err != nil {
		return nil, "", err
	}
	return cfg, dir, nil
}

// FindConfig walks up from dir to the first directory holding config.yaml.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, discovery.ConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoSuite
		}
		dir = parent
	}
}

// Context returns a context canceled when the test ends.
func (h *Harness) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	h.t.Cleanup(cancel)
	return ctx
}

// Logger returns the test logger.
func (h *Harness) Logger() *zap.Logger {
	return h.logger
}

// Document opens the browser on first use. The browser is closed when the
// test ends.
func (h *Harness) Document() page.Document {
	h.t.Helper()
	h.once.Do(func() {
		doc, cleanup, err := h.open(context.Background(), h.Config.Browser, h.logger)
		if err != nil {
			h.err = err
			return
		}
		h.doc = doc
		h.t.Cleanup(cleanup)
	})
	if h.err != nil {
		h.t.Fatalf("failed to open browser: %v", h.err)
	}
	return h.doc
}

// Page builds the page object declared in pages/<name>.yaml.
func (h *Harness) Page(name string) (*page.Page, page.Definition) {
	h.t.Helper()
	def, err := page.LoadDefinition(filepath.Join(h.Dir, discovery.PagesDir, name+".yaml"))
	if err != nil {
		h.t.Fatalf("failed to load page %s: %v", name, err)
	}

	opts := []page.Option{page.WithLogger(h.logger)}
	if h.sink != nil {
		opts = append(opts, page.WithSink(h.sink))
	}
	p := page.New(def.Name, h.Document(), h.Config, opts...)
	p.RegisterDefinition(def)
	return p, def
}

// API returns a client for the application's API, authenticated from the
// suite's auth section.
func (h *Harness) API() *api.Client {
	return api.NewFromConfig(h.Config, api.WithLogger(h.logger))
}

// Schemas returns a validator resolving schema paths against the suite's
// schemas directory.
func (h *Harness) Schemas() *api.Validator {
	return api.NewValidator(filepath.Join(h.Dir, discovery.SchemasDir))
}
