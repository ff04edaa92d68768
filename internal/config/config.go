// Package config resolves the effective configuration of a test suite from
// built-in defaults, the suite YAML file, environment variables and runtime
// overrides.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Feature is one of the known AI feature toggles.
type Feature string

const (
	FeatureSelfHealing    Feature = "self_healing"
	FeatureVisualTesting  Feature = "visual_testing"
	FeatureTestGeneration Feature = "test_generation"
	FeatureTestAnalysis   Feature = "test_analysis"
)

// KnownFeatures lists every feature identifier in a stable order.
var KnownFeatures = []Feature{
	FeatureSelfHealing,
	FeatureVisualTesting,
	FeatureTestGeneration,
	FeatureTestAnalysis,
}

// ParseFeature maps a feature name to its identifier.
func ParseFeature(name string) (Feature, error) {
	for _, f := range KnownFeatures {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown AI feature %q", name)
}

// SuiteInfo identifies the application under test.
type SuiteInfo struct {
	Name        string `yaml:"name" json:"name"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// AISettings configures the model client used by generation and analysis.
type AISettings struct {
	Model             string   `yaml:"model" json:"model"`
	FallbackModels    []string `yaml:"fallback_models" json:"fallback_models"`
	APIKey            string   `yaml:"api_key" json:"-"`
	MaxRetries        int      `yaml:"max_retries" json:"max_retries"`
	InitialRetryDelay float64  `yaml:"initial_retry_delay" json:"initial_retry_delay"`
	MaxRetryDelay     float64  `yaml:"max_retry_delay" json:"max_retry_delay"`
	RateLimitCodes    []int    `yaml:"rate_limit_codes" json:"rate_limit_codes"`
	EnableCaching     bool     `yaml:"enable_caching" json:"enable_caching"`
	CacheTTL          int      `yaml:"cache_ttl" json:"cache_ttl"`
	VisualThreshold   float64  `yaml:"visual_threshold" json:"visual_threshold"`
	Temperature       float64  `yaml:"temperature" json:"temperature"`
	TopP              float64  `yaml:"top_p" json:"top_p"`
	MaxTokens         int      `yaml:"max_tokens" json:"max_tokens"`
	RequestsPerMinute int      `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// BrowserSettings configures the browser session used by page objects.
type BrowserSettings struct {
	Engine     string   `yaml:"default" json:"engine"`
	Driver     string   `yaml:"driver" json:"driver"`
	Headless   bool     `yaml:"headless" json:"headless"`
	WindowSize string   `yaml:"window_size" json:"window_size"`
	Timeout    int      `yaml:"timeout" json:"timeout"`
	Options    []string `yaml:"options,omitempty" json:"options,omitempty"`
}

// TimeoutDuration returns the per-action timeout.
func (b BrowserSettings) TimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// Viewport parses WindowSize ("1920,1080" or "1920x1080").
func (b BrowserSettings) Viewport() (width, height int, err error) {
	sep := ","
	if !strings.Contains(b.WindowSize, sep) {
		sep = "x"
	}
	parts := strings.Split(b.WindowSize, sep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid window size %q", b.WindowSize)
	}
	width, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window width %q: %w", parts[0], err)
	}
	height, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window height %q: %w", parts[1], err)
	}
	return width, height, nil
}

// ExecutionSettings configures the external test-process executor.
type ExecutionSettings struct {
	Parallel   bool     `yaml:"parallel" json:"parallel"`
	MaxWorkers int      `yaml:"max_workers" json:"max_workers"`
	Timeout    int      `yaml:"timeout" json:"timeout"`
	Runner     string   `yaml:"runner" json:"runner"`
	Command    []string `yaml:"command,omitempty" json:"command,omitempty"`
}

// TimeoutDuration returns the overall execution timeout.
func (e ExecutionSettings) TimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// APISettings configures the HTTP client handed to API tests.
type APISettings struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration returns the per-request timeout.
func (a APISettings) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// AuthType selects how API requests authenticate.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
)

// AuthTypes lists the accepted auth.type values.
var AuthTypes = []AuthType{AuthNone, AuthBearer, AuthBasic, AuthAPIKey}

// AuthSettings holds API credentials.
type AuthSettings struct {
	Type       AuthType `yaml:"type" json:"type"`
	Token      string   `yaml:"token" json:"-"`
	Username   string   `yaml:"username" json:"username,omitempty"`
	Password   string   `yaml:"password" json:"-"`
	APIKey     string   `yaml:"api_key" json:"-"`
	APIKeyName string   `yaml:"api_key_name" json:"api_key_name,omitempty"`
}

// ReportingSettings selects default report formats and the results root.
type ReportingSettings struct {
	Formats   []string `yaml:"formats" json:"formats"`
	OutputDir string   `yaml:"output_dir" json:"output_dir"`
}

// SlackSettings configures the Slack webhook sender.
type SlackSettings struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"-"`
	Channel    string `yaml:"channel" json:"channel,omitempty"`
}

// EmailSettings configures the SMTP sender.
type EmailSettings struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	SMTPHost string   `yaml:"smtp_host" json:"smtp_host,omitempty"`
	SMTPPort int      `yaml:"smtp_port" json:"smtp_port,omitempty"`
	Username string   `yaml:"username" json:"username,omitempty"`
	Password string   `yaml:"password" json:"-"`
	From     string   `yaml:"from" json:"from,omitempty"`
	To       []string `yaml:"to" json:"to,omitempty"`
}

// NotificationSettings groups the notification senders.
type NotificationSettings struct {
	Slack SlackSettings `yaml:"slack" json:"slack"`
	Email EmailSettings `yaml:"email" json:"email"`
}

// SuiteConfig is the effective configuration of one suite. The typed fields
// are decoded from the merged tree, which stays available for dotted-path
// lookups.
type SuiteConfig struct {
	Suite         string
	Path          string
	Info          SuiteInfo
	Features      map[Feature]bool
	AI            AISettings
	Browser       BrowserSettings
	Execution     ExecutionSettings
	API           APISettings
	Auth          AuthSettings
	Reporting     ReportingSettings
	Notifications NotificationSettings

	tree map[string]any
}

type document struct {
	Info          SuiteInfo            `yaml:"suite_info"`
	AI            AISettings           `yaml:"ai_settings"`
	Browser       BrowserSettings      `yaml:"browser"`
	Execution     ExecutionSettings    `yaml:"test_execution"`
	API           APISettings          `yaml:"api"`
	Auth          AuthSettings         `yaml:"auth"`
	Reporting     ReportingSettings    `yaml:"reporting"`
	Notifications NotificationSettings `yaml:"notifications"`
}

// newSuiteConfig decodes a merged tree. The tree is owned by the result.
func newSuiteConfig(suite, path string, tree map[string]any) (*SuiteConfig, error) {
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigValidationError{Suite: suite, Problems: []string{err.Error()}}
	}

	features := make(map[Feature]bool, len(KnownFeatures))
	if flags, ok := tree["ai_features"].(map[string]any); ok {
		for _, f := range KnownFeatures {
			if v, ok := flags[string(f)].(bool); ok {
				features[f] = v
			}
		}
	}

	return &SuiteConfig{
		Suite:         suite,
		Path:          path,
		Info:          doc.Info,
		Features:      features,
		AI:            doc.AI,
		Browser:       doc.Browser,
		Execution:     doc.Execution,
		API:           doc.API,
		Auth:          doc.Auth,
		Reporting:     doc.Reporting,
		Notifications: doc.Notifications,
		tree:          tree,
	}, nil
}

// Get returns the value at a dotted path, or def when any segment is absent.
func (c *SuiteConfig) Get(path string, def any) any {
	if v, ok := lookupPath(c.tree, path); ok {
		return v
	}
	return def
}

// IsFeatureEnabled reports whether a known feature toggle is on.
func (c *SuiteConfig) IsFeatureEnabled(f Feature) bool {
	return c.Features[f]
}

// Tree returns a copy of the merged configuration tree.
func (c *SuiteConfig) Tree() map[string]any {
	return cloneMap(c.tree)
}

var secretPaths = []string{
	"ai_settings.api_key",
	"auth.token",
	"auth.password",
	"auth.api_key",
	"notifications.slack.webhook_url",
	"notifications.email.password",
}

// Redacted returns a copy of the tree with secrets masked, for display.
func (c *SuiteConfig) Redacted() map[string]any {
	tree := cloneMap(c.tree)
	for _, path := range secretPaths {
		if v, ok := lookupPath(tree, path); ok && v != "" {
			_, _ = setPath(tree, path, "********")
		}
	}
	return tree
}
