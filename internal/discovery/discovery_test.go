package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func goSuite(t *testing.T, root, name string) {
	t.Helper()
	dir := filepath.Join(root, name)
	touch(t, filepath.Join(dir, ConfigFile), "suite_info:\n  name: "+name+" shop\n  base_url: https://shop.test\nai_features: {}\n")
	touch(t, filepath.Join(dir, PagesDir, "home.yaml"), "name: home\n")
	touch(t, filepath.Join(dir, PagesDir, "cart.yml"), "name: cart\n")
	touch(t, filepath.Join(dir, PagesDir, "README.md"), "")
	touch(t, filepath.Join(dir, TestsDir, "home", "home_test.go"), "package home\n")
	touch(t, filepath.Join(dir, TestsDir, "generated", "home_generated_test.go"), "package generated\n")
	touch(t, filepath.Join(dir, TestsDir, "testdata", "fixture_test.go"), "")
	touch(t, filepath.Join(dir, TestsDir, "helpers", "helpers.go"), "package helpers\n")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, []string{"missing config.yaml", "missing pages/ directory", "missing tests/ directory"}, Validate(dir))

	goSuite(t, dir, "shop")
	assert.Empty(t, Validate(filepath.Join(dir, "shop")))
}

func TestDiscoverSuite_GoRunner(t *testing.T) {
	root := t.TempDir()
	goSuite(t, root, "shop")

	result, err := New(root).DiscoverSuite(context.Background(), "shop")
	require.NoError(t, err)
	assert.True(t, result.Compatible)
	assert.Empty(t, result.Error)
	assert.Equal(t, "shop shop", result.Title)
	assert.Equal(t, "https://shop.test", result.BaseURL)
	assert.Equal(t, RunnerGo, result.Runner)
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, []string{"generated", "home"}, result.TestPackages)
}

func TestDiscoverSuite_Playwright(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "web")
	touch(t, filepath.Join(dir, ConfigFile), "suite_info:\n  name: web\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, PagesDir), 0755))
	touch(t, filepath.Join(dir, TestsDir, "checkout.spec.ts"), "")
	touch(t, filepath.Join(dir, TestsDir, "node_modules", "x", "x_test.go"), "")

	result, err := New(root).DiscoverSuite(context.Background(), "web")
	require.NoError(t, err)
	assert.True(t, result.Compatible)
	assert.Equal(t, RunnerPlaywright, result.Runner)
	assert.Empty(t, result.TestPackages)
}

func TestDiscoverSuite_Invalid(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "broken", ConfigFile), "suite_info: [\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken", PagesDir), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken", TestsDir), 0755))

	svc := New(root)
	result, err := svc.DiscoverSuite(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, result.Compatible)
	assert.Contains(t, result.Error, "invalid config.yaml")

	result, err = svc.DiscoverSuite(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, result.Compatible)
	assert.Equal(t, "suite directory not found", result.Error)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	goSuite(t, root, "shop")
	goSuite(t, root, "admin")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	touch(t, filepath.Join(root, "notes.txt"), "")

	svc := New(root)
	results, err := svc.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "admin", results[0].Name)
	assert.Equal(t, "empty", results[1].Name)
	assert.False(t, results[1].Compatible)

	names, err := svc.Compatible(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "shop"}, names)

	_, err = New(filepath.Join(root, "nope")).Discover(context.Background())
	assert.Error(t, err)
}

func TestMatchesPlaywrightPattern(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"login.spec.ts", true},
		{"login.test.ts", true},
		{"playwright.config.ts", true},
		{"login_test.go", false},
		{"README.md", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, matchesPlaywrightPattern(tt.name), tt.name)
	}
}
