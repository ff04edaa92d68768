package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopConfig = `
suite_info:
  name: Shop
  base_url: http://localhost:8080
ai_features:
  self_healing: false
  visual_testing: true
  test_generation: false
  test_analysis: true
browser:
  headless: false
  timeout: 15
test_execution:
  parallel: true
  max_workers: 2
`

func writeSuite(t *testing.T, root, suite, body string) string {
	t.Helper()
	dir := filepath.Join(root, suite)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_FeatureDisabled(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)

	r := NewResolver(root, WithEnv(noEnv))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)

	v, err := r.Get("shop", "ai_features.self_healing", true)
	require.NoError(t, err)
	assert.Equal(t, false, v)
	assert.False(t, cfg.IsFeatureEnabled(FeatureSelfHealing))
	assert.True(t, cfg.IsFeatureEnabled(FeatureTestAnalysis))

	assert.Equal(t, "Shop", cfg.Info.Name)
	assert.Equal(t, 15, cfg.Browser.Timeout)
	assert.Equal(t, "chrome", cfg.Browser.Engine)
	assert.True(t, cfg.Execution.Parallel)
	assert.Equal(t, 2, cfg.Execution.MaxWorkers)
	assert.Equal(t, 300, cfg.Execution.Timeout)
	assert.Equal(t, "models/gemini-2.5-flash-lite", cfg.AI.Model)
}

func TestLoad_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shopConfig), 0o644))

	r := NewResolver("does-not-exist", WithEnv(noEnv))
	cfg, err := r.Load("shop", path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
}

func TestLoad_NotFound(t *testing.T) {
	r := NewResolver(t.TempDir(), WithEnv(noEnv))
	_, err := r.Load("missing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	var nf *ConfigNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.Suite)
}

func TestLoad_ParseError(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "broken", "suite_info: [unclosed\n")

	_, err := NewResolver(root, WithEnv(noEnv)).Load("broken", "")
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestLoad_ValidationReportsEveryProblem(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "bad", `
suite_info:
  base_url: http://x
ai_features:
  self_healing: "yes"
  visual_testing: 1
`)

	_, err := NewResolver(root, WithEnv(noEnv)).Load("bad", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigValidation)

	var ve *ConfigValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Problems, 3)
	assert.Contains(t, ve.Problems[0], "suite_info.name")
	assert.Contains(t, err.Error(), "ai_features.self_healing")
	assert.Contains(t, err.Error(), "ai_features.visual_testing")
}

func TestLoad_MissingSections(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "empty", "browser:\n  headless: true\n")

	_, err := NewResolver(root, WithEnv(noEnv)).Load("empty", "")
	var ve *ConfigValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{
		"missing required section: suite_info",
		"missing required section: ai_features",
	}, ve.Problems)
}

func TestLoad_UnknownFeatureKept(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", `
suite_info: {name: Shop}
ai_features:
  self_healing: true
  telepathy: true
`)

	cfg, err := NewResolver(root, WithEnv(noEnv)).Load("shop", "")
	require.NoError(t, err)
	assert.Equal(t, true, cfg.Get("ai_features.telepathy", false))
	assert.Len(t, cfg.Features, len(KnownFeatures))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)

	r := NewResolver(root, WithEnv(envMap(map[string]string{
		EnvAPIKey:          "secret",
		EnvModel:           "models/gemini-2.5-pro",
		EnvVisualThreshold: "0.75",
		EnvAIFeatures:      "TRUE",
		EnvBrowser:         "firefox",
		EnvHeadless:        "True",
		EnvSlackWebhook:    "https://hooks.example/T1",
		EnvSMTPPassword:    "smtp-secret",
	})))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, "models/gemini-2.5-pro", cfg.AI.Model)
	assert.InDelta(t, 0.75, cfg.AI.VisualThreshold, 1e-9)
	assert.Equal(t, "firefox", cfg.Browser.Engine)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "https://hooks.example/T1", cfg.Notifications.Slack.WebhookURL)
	assert.Equal(t, "smtp-secret", cfg.Notifications.Email.Password)
	for _, f := range KnownFeatures {
		assert.True(t, cfg.IsFeatureEnabled(f), f)
	}
}

func TestLoad_EnvironmentDisablesAllFeatures(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)

	cfg, err := NewResolver(root, WithEnv(envMap(map[string]string{EnvAIFeatures: "no"}))).Load("shop", "")
	require.NoError(t, err)
	for _, f := range KnownFeatures {
		assert.False(t, cfg.IsFeatureEnabled(f), f)
	}
}

func TestLoad_InvalidVisualThreshold(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)

	_, err := NewResolver(root, WithEnv(envMap(map[string]string{EnvVisualThreshold: "high"}))).Load("shop", "")
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoad_EnvironmentProblemsJoinDocumentProblems(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", "ai_features:\n  self_healing: maybe\n")

	_, err := NewResolver(root, WithEnv(envMap(map[string]string{EnvVisualThreshold: "high"}))).Load("shop", "")
	var verr *ConfigValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "missing required section: suite_info")
	assert.Contains(t, verr.Problems, `VISUAL_THRESHOLD must be a number, got "high"`)
	assert.Len(t, verr.Problems, 3)
}

func TestLoad_WithoutEnv(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	env := envMap(map[string]string{EnvHeadless: "true", EnvAIFeatures: "false", EnvVisualThreshold: "high"})

	cfg, err := NewResolver(root, WithEnv(env), WithoutEnv()).Load("shop", "")
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.IsFeatureEnabled(FeatureVisualTesting))
}

func TestGet(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	r := NewResolver(root, WithEnv(noEnv))

	_, err := r.Get("shop", "browser.headless", nil)
	assert.ErrorIs(t, err, ErrSuiteNotLoaded)

	_, err = r.Load("shop", "")
	require.NoError(t, err)

	v, err := r.Get("shop", "browser.nope.deeper", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	v, err = r.Get("shop", "suite_info.name.extra", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	v, err = r.Get("shop", "suite_info.base_url", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", v)
}

func TestCurrentAndSuites(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	writeSuite(t, root, "blog", "suite_info: {name: Blog}\nai_features: {self_healing: true}\n")
	r := NewResolver(root, WithEnv(noEnv))

	_, err := r.Current()
	assert.ErrorIs(t, err, ErrSuiteNotLoaded)

	_, err = r.Load("shop", "")
	require.NoError(t, err)
	_, err = r.Load("blog", "")
	require.NoError(t, err)

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, "blog", cur.Suite)
	assert.Equal(t, []string{"blog", "shop"}, r.Suites())
}

func TestApplyRuntimeOverrides_Headless(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	r := NewResolver(root, WithEnv(noEnv))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)
	require.False(t, cfg.Browser.Headless)

	out, err := r.ApplyRuntimeOverrides(cfg, []Override{{Path: "browser.headless", Value: true}})
	require.NoError(t, err)
	assert.True(t, out.Browser.Headless)
	assert.False(t, cfg.Browser.Headless, "input config must be untouched")

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Same(t, out, cur)
}

func TestApplyRuntimeOverrides_RuntimeWins(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", `
suite_info: {name: Shop}
ai_features: {self_healing: true}
browser:
  default: chrome
`)
	r := NewResolver(root, WithEnv(envMap(map[string]string{EnvBrowser: "firefox"})))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)
	require.Equal(t, "firefox", cfg.Browser.Engine)

	out, err := r.ApplyRuntimeOverrides(cfg, []Override{{Path: "browser.default", Value: "webkit"}})
	require.NoError(t, err)
	assert.Equal(t, "webkit", out.Browser.Engine)
}

func TestApplyRuntimeOverrides_OrderMatters(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	r := NewResolver(root, WithEnv(noEnv))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)

	whole := map[string]any{"self_healing": false, "test_analysis": false}

	out, err := r.ApplyRuntimeOverrides(cfg, []Override{
		{Path: "ai_features", Value: whole},
		{Path: "ai_features.self_healing", Value: true},
	})
	require.NoError(t, err)
	assert.True(t, out.IsFeatureEnabled(FeatureSelfHealing))
	assert.Nil(t, out.Get("ai_features.visual_testing", nil))

	out, err = r.ApplyRuntimeOverrides(cfg, []Override{
		{Path: "ai_features.self_healing", Value: true},
		{Path: "ai_features", Value: whole},
	})
	require.NoError(t, err)
	assert.False(t, out.IsFeatureEnabled(FeatureSelfHealing))
}

func TestApplyRuntimeOverrides_ReplacesScalarIntermediate(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	r := NewResolver(root, WithEnv(noEnv))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)

	out, err := r.ApplyRuntimeOverrides(cfg, []Override{
		{Path: "custom", Value: "flat"},
		{Path: "custom.nested", Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Get("custom.nested", nil))
}

func TestApplyRuntimeOverrides_InvalidatesRequiredField(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	r := NewResolver(root, WithEnv(noEnv))
	cfg, err := r.Load("shop", "")
	require.NoError(t, err)

	_, err = r.ApplyRuntimeOverrides(cfg, []Override{{Path: "suite_info.name", Value: ""}})
	assert.ErrorIs(t, err, ErrConfigValidation)
}

func TestRedacted(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "shop", shopConfig)
	cfg, err := NewResolver(root, WithEnv(envMap(map[string]string{EnvAPIKey: "secret"}))).Load("shop", "")
	require.NoError(t, err)

	red := cfg.Redacted()
	v, _ := lookupPath(red, "ai_settings.api_key")
	assert.Equal(t, "********", v)
	assert.Equal(t, "secret", cfg.AI.APIKey)
}

func TestLoad_APIAndAuth(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "api", shopConfig+`
api:
  base_url: http://localhost:9000/v1
auth:
  type: bearer
  token: tok-123
`)
	cfg, err := NewResolver(root, WithEnv(noEnv)).Load("api", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/v1", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.TimeoutDuration())
	assert.Equal(t, AuthBearer, cfg.Auth.Type)
	assert.Equal(t, "tok-123", cfg.Auth.Token)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyName)

	v, _ := lookupPath(cfg.Redacted(), "auth.token")
	assert.Equal(t, "********", v)
}

func TestLoad_UnknownAuthType(t *testing.T) {
	root := t.TempDir()
	writeSuite(t, root, "api", shopConfig+"auth:\n  type: oauth\n")

	_, err := NewResolver(root, WithEnv(noEnv)).Load("api", "")
	var verr *ConfigValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems[0], "auth.type must be one of")
}

func TestViewport(t *testing.T) {
	w, h, err := BrowserSettings{WindowSize: "1280, 720"}.Viewport()
	require.NoError(t, err)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	w, h, err = BrowserSettings{WindowSize: "800x600"}.Viewport()
	require.NoError(t, err)
	assert.Equal(t, []int{800, 600}, []int{w, h})

	_, _, err = BrowserSettings{WindowSize: "wide"}.Viewport()
	assert.Error(t, err)
}
