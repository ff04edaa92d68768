package smarttest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/internal/generator"
	"github.com/kamilpajak/smarttest/internal/llm"
	"github.com/spf13/cobra"
)

var (
	generateSuite    string
	generatePages    []string
	generatePrompt   string
	generateOpenAPI  string
	generateEndpoint string
	generateMethod   string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate tests from page definitions",
	Long: `Generate Go tests for a suite's pages.

Without --prompt, one smoke and one visibility test is rendered per page.
With --prompt, the AI model writes tests for a single page (--page).
With --openapi, the AI model writes API tests for one endpoint of an OpenAPI
document; --prompt then narrows the scenario.

Examples:
  smarttest generate -s shop
  smarttest generate -s shop --page login --page cart
  smarttest generate -s shop --page login --prompt "log in with an invalid password"
  smarttest generate -s shop --openapi api.yaml --endpoint /orders/{id} --method GET`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateSuite, "suite", "s", "", "Suite to generate tests for")
	generateCmd.Flags().StringArrayVar(&generatePages, "page", nil, "Page to generate tests for (repeatable)")
	generateCmd.Flags().StringVar(&generatePrompt, "prompt", "", "Describe the tests the AI model should write")
	generateCmd.Flags().StringVar(&generateOpenAPI, "openapi", "", "OpenAPI document (JSON or YAML) to generate API tests from")
	generateCmd.Flags().StringVar(&generateEndpoint, "endpoint", "", "Endpoint path in the OpenAPI document")
	generateCmd.Flags().StringVar(&generateMethod, "method", "GET", "HTTP method of the endpoint")
	_ = generateCmd.MarkFlagRequired("suite")
}

// completerFor returns the AI client of cfg, or ErrNoCompleter when none is
// configured.
var completerFor = func(ctx context.Context, cfg *config.SuiteConfig) (llm.Completer, error) {
	client := newLLMClient(ctx, cfg)
	if client == nil {
		return nil, generator.ErrNoCompleter
	}
	return client, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	r, cfg, err := loadSuite(generateSuite, nil)
	if err != nil {
		return err
	}
	suiteDir := filepath.Dir(r.SuitePath(cfg.Suite))
	out := cmd.OutOrStdout()

	if generateOpenAPI != "" {
		if generateEndpoint == "" {
			return errors.New("--openapi needs --endpoint")
		}
		if len(generatePages) > 0 {
			return errors.New("--openapi cannot be combined with --page")
		}
		client, err := completerFor(ctx, cfg)
		if err != nil {
			return err
		}
		g := generator.New(generator.WithCompleter(client), generator.WithLogger(logger))
		path, err := g.WriteOpenAPI(ctx, suiteDir, generateOpenAPI, generateEndpoint, generateMethod, generatePrompt)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	}

	if generatePrompt == "" {
		g := generator.New(generator.WithLogger(logger))
		res, err := g.Generate(ctx, generator.Request{SuiteDir: suiteDir, Pages: generatePages})
		if err != nil {
			return err
		}
		for _, f := range res.Files {
			fmt.Fprintln(out, f)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", res.Message)
		return nil
	}

	if len(generatePages) != 1 {
		return errors.New("--prompt needs exactly one --page")
	}
	client, err := completerFor(ctx, cfg)
	if err != nil {
		return err
	}
	g := generator.New(generator.WithCompleter(client), generator.WithLogger(logger))
	path, err := g.WritePrompted(ctx, suiteDir, generatePages[0], generatePrompt)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, path)
	return nil
}
