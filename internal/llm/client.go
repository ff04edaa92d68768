package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kamilpajak/smarttest/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Client handles model calls for one suite's AI settings.
type Client struct {
	backend  backend
	settings config.AISettings
	limiter  *rate.Limiter
	cache    *expirable.LRU[string, Response]
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("llm")
		}
	}
}

// NewClient creates a Gemini client from the suite AI settings.
func NewClient(ctx context.Context, settings config.AISettings, opts ...Option) (*Client, error) {
	if settings.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newClient(&geminiBackend{client: gc, settings: settings}, settings, opts...), nil
}

func newClient(b backend, settings config.AISettings, opts ...Option) *Client {
	c := &Client{
		backend:  b,
		settings: settings,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   zap.NewNop(),
	}
	if settings.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(settings.RequestsPerMinute)), 1)
	}
	if settings.EnableCaching && settings.CacheTTL > 0 {
		c.cache = newCache(CacheSize, time.Duration(settings.CacheTTL)*time.Second)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Models returns the primary model followed by the fallbacks, deduplicated.
func (c *Client) Models() []string {
	var out []string
	for _, m := range append([]string{c.settings.Model}, c.settings.FallbackModels...) {
		if m != "" && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// Complete sends p to the first model that answers. Each model is retried
// on the configured rate-limit codes before falling back to the next one.
func (c *Client) Complete(ctx context.Context, p Prompt) (*Response, error) {
	models := c.Models()
	if len(models) == 0 {
		return nil, fmt.Errorf("no model configured")
	}

	key := cacheKey(models, p)
	if c.cache != nil {
		if resp, ok := c.cache.Get(key); ok {
			c.logger.Debug("cache hit", zap.String("model", resp.Model))
			resp.Cached = true
			return &resp, nil
		}
	}

	var lastErr error
	for _, model := range models {
		text, err := c.generateWithRetry(ctx, model, p)
		if err == nil {
			resp := Response{Text: text, Model: model}
			if c.cache != nil {
				c.cache.Add(key, resp)
			}
			return &resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		c.logger.Warn("model failed, trying next", zap.String("model", model), zap.Error(err))
	}
	return nil, fmt.Errorf("all models failed: %w", lastErr)
}

func (c *Client) generateWithRetry(ctx context.Context, model string, p Prompt) (string, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = seconds(c.settings.InitialRetryDelay, time.Second)
	exp.MaxInterval = seconds(c.settings.MaxRetryDelay, 60*time.Second)
	exp.MaxElapsedTime = 0

	retries := c.settings.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	var text string
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.backend.generate(ctx, model, p)
		if err != nil {
			if !c.retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Info("rate limited, retrying",
			zap.String("model", model), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return text, nil
}

// retryable reports whether err carries one of the rate-limit status codes.
func (c *Client) retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return slices.Contains(c.settings.RateLimitCodes, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return slices.Contains(c.settings.RateLimitCodes, apiErrPtr.Code)
	}
	return false
}

func seconds(v float64, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

type geminiBackend struct {
	client   *genai.Client
	settings config.AISettings
}

func (g *geminiBackend) generate(ctx context.Context, model string, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.settings.Temperature)),
	}
	if g.settings.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(g.settings.TopP))
	}
	if g.settings.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.settings.MaxTokens)
	}
	if p.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(p.System, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(p.User), cfg)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
