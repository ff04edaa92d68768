package generator

import (
	"context"
	"fmt"
	"go/format"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/kamilpajak/smarttest/pkg/page"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const systemPrompt = `You write Go browser tests for the smarttest framework.

Rules:
- Output a single Go source file in package generated and nothing else.
- Import "github.com/kamilpajak/smarttest/pkg/suite" and use testify require/assert.
- Each test starts with: h := suite.Setup(t); ctx := h.Context(); p, def := h.Page("<page>")
- Navigate with require.NoError(t, p.Open(ctx, def.Path)).
- Interact only through element names declared on the page:
  p.Click(ctx, name) bool, p.Type(ctx, name, text) bool, p.IsVisible(ctx, name) bool.
- Name tests TestXxx after the behavior they check.`

// FromPrompt asks the model for a test file covering prompt on def. The
// answer must be valid Go; it is returned gofmt-formatted.
func (g *Generator) FromPrompt(ctx context.Context, prompt string, def page.Definition) ([]byte, error) {
	if g.client == nil {
		return nil, ErrNoCompleter
	}
	pageYAML, err := yaml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page %s: %w", def.Name, err)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Page %q:\n```yaml\n%s```\n\n", def.Name, pageYAML)
	fmt.Fprintf(&user, "Write tests for: %s\n", prompt)

	resp, err := g.client.Complete(ctx, llm.Prompt{System: systemPrompt, User: user.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to generate tests: %w", err)
	}
	g.logger.Info("model produced tests", zap.String("model", resp.Model), zap.Bool("cached", resp.Cached))

	src, err := formatSource([]byte(llm.StripCodeFence(resp.Text)))
	if err != nil {
		return nil, fmt.Errorf("model returned invalid Go: %w", err)
	}
	return src, nil
}

// WritePrompted runs FromPrompt for the named page of a suite and writes
// the result next to the generated page tests.
func (g *Generator) WritePrompted(ctx context.Context, suiteDir, pageName, prompt string) (string, error) {
	def, err := page.LoadDefinition(filepath.Join(suiteDir, discovery.PagesDir, pageName+".yaml"))
	if err != nil {
		return "", err
	}
	src, err := g.FromPrompt(ctx, prompt, def)
	if err != nil {
		return "", err
	}
	return writeFile(filepath.Join(suiteDir, discovery.TestsDir, OutputDir), FileName(def.Name, "prompted"), src)
}

// formatSource gofmts src and checks it is a file of the generated package.
func formatSource(src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, err
	}
	f, err := parser.ParseFile(token.NewFileSet(), "", out, parser.PackageClauseOnly)
	if err != nil {
		return nil, err
	}
	if f.Name.Name != OutputDir {
		return nil, fmt.Errorf("package %s, want %s", f.Name.Name, OutputDir)
	}
	return out, nil
}
