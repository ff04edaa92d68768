package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/kamilpajak/smarttest/internal/discovery"
	"github.com/kamilpajak/smarttest/internal/llm"
	"go.uber.org/zap"
)

// ErrNoEndpoint is returned when an OpenAPI document lacks the requested
// operation.
var ErrNoEndpoint = errors.New("endpoint not found")

// DefaultAPIBaseURL is used when the OpenAPI document declares no server.
const DefaultAPIBaseURL = "http://localhost"

const apiSystemPrompt = `You write Go API tests for the smarttest framework.

Rules:
- Output a single Go source file in package generated and nothing else.
- Import "github.com/kamilpajak/smarttest/pkg/suite" and use testify require/assert.
- Each test starts with: h := suite.Setup(t); ctx := h.Context(); c := h.API()
- Send requests with c.Get(ctx, path), c.Post(ctx, path, body), c.Put(ctx, path, body) or c.Delete(ctx, path).
  Each returns (*api.Response, error); check resp.StatusCode and decode with resp.Decode(&v) or resp.JSON().
- Paths are relative to the configured base URL.
- Cover the success case and the documented error responses.
- Name tests TestXxx after the behavior they check.`

// Operation is an endpoint picked from an OpenAPI document.
type Operation struct {
	Method   string
	Endpoint string
	BaseURL  string
	Op       *openapi3.Operation
}

// LoadOperation reads the OpenAPI document at docPath (JSON or YAML) and
// returns the operation for method and endpoint.
func LoadOperation(docPath, endpoint, method string) (*Operation, error) {
	doc, err := openapi3.NewLoader().LoadFromFile(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document %s: %w", docPath, err)
	}
	method = strings.ToUpper(method)

	var op *openapi3.Operation
	if doc.Paths != nil {
		if item := doc.Paths.Find(endpoint); item != nil {
			op = item.GetOperation(method)
		}
	}
	if op == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoEndpoint, method, endpoint)
	}

	base := DefaultAPIBaseURL
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		base = doc.Servers[0].URL
	}
	return &Operation{Method: method, Endpoint: endpoint, BaseURL: base, Op: op}, nil
}

// FromOpenAPI asks the model for API tests of one endpoint described in an
// OpenAPI document. scenario, when set, narrows what the tests check.
func (g *Generator) FromOpenAPI(ctx context.Context, docPath, endpoint, method, scenario string) ([]byte, error) {
	if g.client == nil {
		return nil, ErrNoCompleter
	}
	op, err := LoadOperation(docPath, endpoint, method)
	if err != nil {
		return nil, err
	}
	opJSON, err := json.MarshalIndent(op.Op, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode operation: %w", err)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Endpoint: %s %s\nBase URL: %s\n", op.Method, op.Endpoint, op.BaseURL)
	if op.Op.Summary != "" {
		fmt.Fprintf(&user, "Summary: %s\n", op.Op.Summary)
	}
	fmt.Fprintf(&user, "Operation:\n```json\n%s\n```\n\n", opJSON)
	if scenario != "" {
		fmt.Fprintf(&user, "Write tests for: %s\n", scenario)
	} else {
		user.WriteString("Write tests covering the documented behavior of this endpoint.\n")
	}

	resp, err := g.client.Complete(ctx, llm.Prompt{System: apiSystemPrompt, User: user.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to generate tests: %w", err)
	}
	g.logger.Info("model produced API tests",
		zap.String("endpoint", op.Method+" "+op.Endpoint),
		zap.String("model", resp.Model),
		zap.Bool("cached", resp.Cached))

	src, err := formatSource([]byte(llm.StripCodeFence(resp.Text)))
	if err != nil {
		return nil, fmt.Errorf("model returned invalid Go: %w", err)
	}
	return src, nil
}

// WriteOpenAPI runs FromOpenAPI and writes the result into the suite's
// generated tests.
func (g *Generator) WriteOpenAPI(ctx context.Context, suiteDir, docPath, endpoint, method, scenario string) (string, error) {
	src, err := g.FromOpenAPI(ctx, docPath, endpoint, method, scenario)
	if err != nil {
		return "", err
	}
	name := FileName(strings.ToLower(method)+" "+endpoint, "api")
	return writeFile(filepath.Join(suiteDir, discovery.TestsDir, OutputDir), name, src)
}
