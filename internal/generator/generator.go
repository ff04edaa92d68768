// Package generator writes Go test files for the pages a suite declares,
// and asks a model for additional tests from free-form prompts.
package generator

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/kamilpajak/smarttest/pkg/models"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
)

// OutputDir is where generated files land, relative to the suite tests dir.
const OutputDir = "generated"

// ErrNoCompleter is returned by prompt generation without a model client.
var ErrNoCompleter = errors.New("prompt generation needs an AI client")

//go:embed templates/generated_test.go.tmpl
var templatesFS embed.FS

var fileTemplate = template.Must(template.ParseFS(templatesFS, "templates/generated_test.go.tmpl"))

// Markers attached to generated cases.
const (
	MarkerSmoke      = "smoke"
	MarkerFunctional = "functional"
)

// Case is one generated test.
type Case struct {
	Name        string
	Func        string
	Page        string
	Kind        string
	Description string
	Marker      string
}

// Cases returns the cases generated for a page: a load check and an
// element visibility check.
func Cases(def page.Definition) []Case {
	ident := Identifier(def.Name)
	return []Case{
		{
			Name:        def.Name + "_loads",
			Func:        "Test" + ident + "Loads",
			Page:        def.Name,
			Kind:        "loads",
			Description: fmt.Sprintf("Test that %s loads correctly", def.Name),
			Marker:      MarkerSmoke,
		},
		{
			Name:        def.Name + "_elements_visible",
			Func:        "Test" + ident + "ElementsVisible",
			Page:        def.Name,
			Kind:        "elements_visible",
			Description: fmt.Sprintf("Test that key elements on %s are visible", def.Name),
			Marker:      MarkerFunctional,
		},
	}
}

// Render produces the gofmt-formatted test file for a page.
func Render(def page.Definition) ([]byte, error) {
	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, struct {
		Package string
		Page    page.Definition
		Cases   []Case
	}{OutputDir, def, Cases(def)})
	if err != nil {
		return nil, fmt.Errorf("failed to render tests for %s: %w", def.Name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format tests for %s: %w", def.Name, err)
	}
	return src, nil
}

// Identifier turns a page name into an exported Go identifier.
func Identifier(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	id := sb.String()
	if id == "" || unicode.IsDigit(rune(id[0])) {
		id = "Page" + id
	}
	return id
}

// Request selects what to generate.
type Request struct {
	SuiteDir string
	// Pages limits generation to the named pages. Empty means all.
	Pages []string
}

// Generator writes generated tests into suites.
type Generator struct {
	client llm.Completer
	logger *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCompleter enables prompt-based generation.
func WithCompleter(c llm.Completer) Option {
	return func(g *Generator) { g.client = c }
}

// WithLogger sets the generator logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l.Named("generator")
		}
	}
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate writes one test file per page definition under
// tests/generated. A suite without page definitions generates nothing and
// still succeeds.
func (g *Generator) Generate(ctx context.Context, req Request) (*models.GenerationResult, error) {
	start := time.Now()

	defs, err := page.LoadDefinitions(filepath.Join(req.SuiteDir, discovery.PagesDir))
	if err != nil {
		return nil, err
	}
	defs, err = selectPages(defs, req.Pages)
	if err != nil {
		return nil, err
	}
	g.logger.Info("discovered page definitions", zap.Int("count", len(defs)))

	outDir := filepath.Join(req.SuiteDir, discovery.TestsDir, OutputDir)
	res := &models.GenerationResult{Pages: len(defs)}
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := Render(def)
		if err != nil {
			return nil, err
		}
		path, err := writeFile(outDir, FileName(def.Name, "generated"), src)
		if err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
		res.Cases += len(Cases(def))
		g.logger.Debug("saved generated tests", zap.String("path", path))
	}

	res.Success = true
	res.Duration = time.Since(start)
	res.Message = fmt.Sprintf("generated %d test cases for %d pages", res.Cases, res.Pages)
	return res, nil
}

// FileName is the test file written for a page.
func FileName(pageName, kind string) string {
	return strings.ToLower(Identifier(pageName)) + "_" + kind + "_test.go"
}

func selectPages(defs []page.Definition, names []string) ([]page.Definition, error) {
	if len(names) == 0 {
		return defs, nil
	}
	byName := make(map[string]page.Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	out := make([]page.Definition, 0, len(names))
	for _, n := range names {
		d, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown page %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
