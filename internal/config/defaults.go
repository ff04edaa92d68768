package config

// DefaultTree returns a fresh copy of the built-in configuration that every
// suite document is merged onto.
func DefaultTree() map[string]any {
	return map[string]any{
		"ai_features": map[string]any{
			string(FeatureSelfHealing):    true,
			string(FeatureVisualTesting):  true,
			string(FeatureTestGeneration): true,
			string(FeatureTestAnalysis):   true,
		},
		"ai_settings": map[string]any{
			"model":               "models/gemini-2.5-flash-lite",
			"fallback_models":     []any{"models/gemini-2.0-pro"},
			"max_retries":         3,
			"initial_retry_delay": 2.0,
			"max_retry_delay":     60,
			"rate_limit_codes":    []any{429, 503},
			"enable_caching":      true,
			"cache_ttl":           3600,
			"visual_threshold":    0.9,
			"temperature":         0.3,
			"top_p":               0.9,
			"max_tokens":          2048,
			"requests_per_minute": 60,
		},
		"browser": map[string]any{
			"default":     "chrome",
			"driver":      "playwright",
			"headless":    false,
			"window_size": "1920,1080",
			"timeout":     30,
		},
		"test_execution": map[string]any{
			"parallel":    false,
			"max_workers": 4,
			"timeout":     300,
			"runner":      "go",
		},
		"api": map[string]any{
			"base_url": "",
			"timeout":  30,
		},
		"auth": map[string]any{
			"type":         string(AuthNone),
			"api_key_name": "X-API-Key",
		},
		"reporting": map[string]any{
			"formats":    []any{"html"},
			"output_dir": "results",
		},
		"notifications": map[string]any{
			"slack": map[string]any{"enabled": false},
			"email": map[string]any{"enabled": false},
		},
	}
}
