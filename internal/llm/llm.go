// Package llm is the Gemini client shared by test generation and analysis.
// Calls are paced, retried on rate-limit status codes, cached and fall back
// through the configured model list.
package llm

import (
	"context"
	"errors"
)

var (
	ErrNoAPIKey      = errors.New("no API key configured (set GOOGLE_API_KEY or ai_settings.api_key)")
	ErrEmptyResponse = errors.New("empty response from model")
)

// Prompt is a single-turn request.
type Prompt struct {
	System string
	User   string
}

// Response is the text a model produced.
type Response struct {
	Text   string
	Model  string
	Cached bool
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (*Response, error)
}

// backend performs one model call without retries.
type backend interface {
	generate(ctx context.Context, model string, p Prompt) (string, error)
}
