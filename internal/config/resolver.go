package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-suite configuration file name.
const ConfigFileName = "config.yaml"

// Environment variables consulted on every load.
const (
	EnvAPIKey          = "GOOGLE_API_KEY"
	EnvModel           = "GOOGLE_AI_MODEL"
	EnvVisualThreshold = "VISUAL_THRESHOLD"
	EnvAIFeatures      = "AI_FEATURES_ENABLED"
	EnvBrowser         = "BROWSER"
	EnvHeadless        = "HEADLESS"
	EnvSlackWebhook    = "SLACK_WEBHOOK_URL"
	EnvSMTPPassword    = "SMTP_PASSWORD"
)

// Resolver loads and caches suite configurations. A Resolver is owned by one
// run and handed to the components that need settings.
type Resolver struct {
	suitesDir string
	lookupEnv func(string) (string, bool)
	logger    *zap.Logger

	mu      sync.RWMutex
	cache   map[string]*SuiteConfig
	current string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for warnings.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l.Named("config")
		}
	}
}

// WithEnv replaces os.LookupEnv, mainly for tests.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(r *Resolver) {
		if lookup != nil {
			r.lookupEnv = lookup
		}
	}
}

// WithoutEnv disables the environment layer. Run snapshots are loaded this
// way, since they already carry the environment and runtime overrides.
func WithoutEnv() Option {
	return func(r *Resolver) {
		r.lookupEnv = func(string) (string, bool) { return "", false }
	}
}

// NewResolver creates a resolver rooted at suitesDir.
func NewResolver(suitesDir string, opts ...Option) *Resolver {
	r := &Resolver{
		suitesDir: suitesDir,
		lookupEnv: os.LookupEnv,
		logger:    zap.NewNop(),
		cache:     make(map[string]*SuiteConfig),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SuitesDir returns the root directory suites are resolved against.
func (r *Resolver) SuitesDir() string {
	return r.suitesDir
}

// SuitePath returns the default configuration path of a suite.
func (r *Resolver) SuitePath(suite string) string {
	return filepath.Join(r.suitesDir, suite, ConfigFileName)
}

// Load reads, validates and merges the configuration of a suite. An empty
// explicitPath selects the default location under the suites directory.
func (r *Resolver) Load(suite, explicitPath string) (*SuiteConfig, error) {
	path := explicitPath
	if path == "" {
		path = r.SuitePath(suite)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigNotFoundError{Suite: suite, Path: path}
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigParseError{Path: path, Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	raw = normalize(raw).(map[string]any)

	problems := r.validateDocument(raw)
	tree := DeepMerge(DefaultTree(), raw)
	problems = append(problems, r.applyEnv(tree)...)
	if len(problems) == 0 {
		problems = validateMerged(tree)
	}
	if len(problems) > 0 {
		return nil, &ConfigValidationError{Suite: suite, Problems: problems}
	}

	cfg, err := newSuiteConfig(suite, path, tree)
	if err != nil {
		return nil, err
	}

	r.store(cfg)
	r.logger.Debug("suite config loaded", zap.String("suite", suite), zap.String("path", path))
	return cfg, nil
}

// Get returns the value at a dotted path in a loaded suite, or def when a
// segment is absent.
func (r *Resolver) Get(suite, path string, def any) (any, error) {
	r.mu.RLock()
	cfg, ok := r.cache[suite]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSuiteNotLoaded, suite)
	}
	return cfg.Get(path, def), nil
}

// Current returns the most recently loaded configuration.
func (r *Resolver) Current() (*SuiteConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return nil, ErrSuiteNotLoaded
	}
	return r.cache[r.current], nil
}

// Suites returns the names of every loaded suite, sorted.
func (r *Resolver) Suites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.cache))
	for name := range r.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyRuntimeOverrides applies overrides left to right onto a copy of cfg.
// The result replaces cfg in the cache.
func (r *Resolver) ApplyRuntimeOverrides(cfg *SuiteConfig, overrides []Override) (*SuiteConfig, error) {
	if cfg == nil {
		return nil, ErrSuiteNotLoaded
	}
	if len(overrides) == 0 {
		return cfg, nil
	}

	tree := cfg.Tree()
	for _, o := range overrides {
		replaced, err := setPath(tree, o.Path, o.Value)
		if err != nil {
			return nil, err
		}
		for _, p := range replaced {
			r.logger.Warn("override replaced non-mapping value",
				zap.String("path", p), zap.String("override", o.Path))
		}
	}

	if problems := validateMerged(tree); len(problems) > 0 {
		return nil, &ConfigValidationError{Suite: cfg.Suite, Problems: problems}
	}
	out, err := newSuiteConfig(cfg.Suite, cfg.Path, tree)
	if err != nil {
		return nil, err
	}
	r.store(out)
	return out, nil
}

func (r *Resolver) store(cfg *SuiteConfig) {
	r.mu.Lock()
	r.cache[cfg.Suite] = cfg
	r.current = cfg.Suite
	r.mu.Unlock()
}

// validateDocument checks the suite document before merging and returns
// every problem found.
func (r *Resolver) validateDocument(doc map[string]any) []string {
	var problems []string

	switch info := doc["suite_info"].(type) {
	case nil:
		problems = append(problems, "missing required section: suite_info")
	case map[string]any:
		if name, _ := info["name"].(string); strings.TrimSpace(name) == "" {
			problems = append(problems, "missing required field: suite_info.name")
		}
	default:
		problems = append(problems, "suite_info must be a mapping")
	}

	switch flags := doc["ai_features"].(type) {
	case nil:
		problems = append(problems, "missing required section: ai_features")
	case map[string]any:
		keys := make([]string, 0, len(flags))
		for k := range flags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, ok := flags[k].(bool); !ok {
				problems = append(problems, fmt.Sprintf("ai_features.%s must be a boolean, got %v", k, flags[k]))
			}
			if _, err := ParseFeature(k); err != nil {
				r.logger.Warn("ignoring unknown AI feature", zap.String("feature", k))
			}
		}
	default:
		problems = append(problems, "ai_features must be a mapping")
	}

	if v, ok := doc["ai_settings"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			problems = append(problems, "ai_settings must be a mapping")
		}
	}
	return problems
}

func validateMerged(tree map[string]any) []string {
	var problems []string
	if name, _ := lookupPath(tree, "suite_info.name"); name == nil || fmt.Sprint(name) == "" {
		problems = append(problems, "missing required field: suite_info.name")
	}
	if model, _ := lookupPath(tree, "ai_settings.model"); model == nil || fmt.Sprint(model) == "" {
		problems = append(problems, "missing required field: ai_settings.model")
	}
	if t, ok := lookupPath(tree, "auth.type"); ok && !slices.Contains(AuthTypes, AuthType(fmt.Sprint(t))) {
		problems = append(problems, fmt.Sprintf("auth.type must be one of %v, got %v", AuthTypes, t))
	}
	if flags, ok := tree["ai_features"].(map[string]any); ok {
		for _, f := range KnownFeatures {
			if v, present := flags[string(f)]; present {
				if _, isBool := v.(bool); !isBool {
					problems = append(problems, fmt.Sprintf("ai_features.%s must be a boolean, got %v", f, v))
				}
			}
		}
	} else {
		problems = append(problems, "ai_features must be a mapping")
	}
	return problems
}

// applyEnv layers the fixed set of environment overrides onto tree.
func (r *Resolver) applyEnv(tree map[string]any) []string {
	var problems []string
	if v, ok := r.lookupEnv(EnvAPIKey); ok && v != "" {
		_, _ = setPath(tree, "ai_settings.api_key", v)
	}
	if v, ok := r.lookupEnv(EnvModel); ok && v != "" {
		_, _ = setPath(tree, "ai_settings.model", v)
	}
	if v, ok := r.lookupEnv(EnvVisualThreshold); ok && v != "" {
		threshold, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a number, got %q", EnvVisualThreshold, v))
		} else {
			_, _ = setPath(tree, "ai_settings.visual_threshold", threshold)
		}
	}
	if v, ok := r.lookupEnv(EnvAIFeatures); ok && v != "" {
		enabled := parseBool(v)
		flags, isMap := tree["ai_features"].(map[string]any)
		if !isMap {
			flags = map[string]any{}
			tree["ai_features"] = flags
		}
		for _, f := range KnownFeatures {
			flags[string(f)] = enabled
		}
		for k := range flags {
			flags[k] = enabled
		}
	}
	if v, ok := r.lookupEnv(EnvBrowser); ok && v != "" {
		_, _ = setPath(tree, "browser.default", v)
	}
	if v, ok := r.lookupEnv(EnvHeadless); ok && v != "" {
		_, _ = setPath(tree, "browser.headless", parseBool(v))
	}
	if v, ok := r.lookupEnv(EnvSlackWebhook); ok && v != "" {
		_, _ = setPath(tree, "notifications.slack.webhook_url", v)
	}
	if v, ok := r.lookupEnv(EnvSMTPPassword); ok && v != "" {
		_, _ = setPath(tree, "notifications.email.password", v)
	}
	return problems
}

func parseBool(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
