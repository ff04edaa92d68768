package page

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"search", "input", "field"}, Tokenize("Search input field"))
	assert.Equal(t, []string{"the", "box"}, Tokenize("a to the  box"))
	assert.Empty(t, Tokenize("an it"))
}

func TestKeywordMatcher_SkipsUnreadableCandidates(t *testing.T) {
	doc := newFakeDocument()
	good := &fakeElement{attrs: map[string]string{"placeholder": "Email address"}}
	doc.controls[ControlInput] = []*fakeElement{
		{attrErr: assert.AnError},
		{attrs: map[string]string{}},
		good,
	}

	el, ev, err := KeywordMatcher{}.Match(context.Background(), doc, Descriptor{Description: "email field"})
	require.NoError(t, err)
	assert.Same(t, good, el)
	assert.Equal(t, "email", ev.Token)
	assert.Equal(t, 3, ev.Candidates)
}

func TestKeywordMatcher_NoControlKeyword(t *testing.T) {
	doc := newFakeDocument()
	el, ev, err := KeywordMatcher{}.Match(context.Background(), doc, Descriptor{Description: "company logo"})
	require.NoError(t, err)
	assert.Nil(t, el)
	assert.NotEmpty(t, ev.Detail)
	assert.Equal(t, 0, doc.listings)
}

func TestKeywordMatcher_ButtonTakesPrecedence(t *testing.T) {
	doc := newFakeDocument()
	doc.controls[ControlInput] = []*fakeElement{{attrs: map[string]string{"placeholder": "Search"}}}

	el, ev, err := KeywordMatcher{}.Match(context.Background(), doc, Descriptor{Description: "search button next to the search field"})
	require.NoError(t, err)
	assert.Nil(t, el)
	assert.Equal(t, "button_text", ev.Strategy)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"ID":                ByID,
		"css selector":      ByCSS,
		"CLASS_NAME":        ByClassName,
		"link-text":         ByLinkText,
		"partial_link_text": ByLinkText,
		"data-testid":       ByTestID,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStrategy("telepathy")
	assert.Error(t, err)
}

func TestLocatorSelector(t *testing.T) {
	cases := []struct {
		loc  Locator
		kind SelectorKind
		expr string
	}{
		{Locator{ByID, "search-box"}, KindCSS, `[id="search-box"]`},
		{Locator{ByCSS, "#nav > a"}, KindCSS, "#nav > a"},
		{Locator{ByName, `q"1`}, KindCSS, `[name="q\"1"]`},
		{Locator{ByClassName, "btn"}, KindCSS, `[class~="btn"]`},
		{Locator{ByTestID, "cart"}, KindCSS, `[data-testid="cart"]`},
		{Locator{ByXPath, "//input"}, KindXPath, "//input"},
		{Locator{ByLinkText, "Sign in"}, KindXPath, `//a[contains(normalize-space(.), "Sign in")]`},
		{Locator{ByText, `say "hi"`}, KindXPath, `//*[contains(normalize-space(text()), 'say "hi"')]`},
	}
	for _, tc := range cases {
		kind, expr, err := tc.loc.Selector()
		require.NoError(t, err, tc.loc.String())
		assert.Equal(t, tc.kind, kind, tc.loc.String())
		assert.Equal(t, tc.expr, expr, tc.loc.String())
	}

	_, _, err := Locator{ByID, ""}.Selector()
	assert.Error(t, err)
	_, _, err = Locator{"bogus", "x"}.Selector()
	assert.Error(t, err)
}

func TestXPathString_BothQuotes(t *testing.T) {
	assert.Equal(t, `concat("it's ", '"', "quoted", '"', "")`, xpathString(`it's "quoted"`))
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home.yaml"), []byte(`
path: /
title: Home
elements:
  - name: search
    description: search input field
    locator: id=search-box
  - name: cart_button
    description: shopping cart button
    locator:
      strategy: CSS Selector
      value: "#nav-cart"
  - name: logo
    description: site logo
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "account.yml"), []byte("name: account\nelements: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, err := LoadDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "account", defs[0].Name)

	home := defs[1]
	assert.Equal(t, "home", home.Name)
	require.Len(t, home.Elements, 3)
	assert.Equal(t, &Locator{ByID, "search-box"}, home.Elements[0].Locator)
	assert.Equal(t, &Locator{ByCSS, "#nav-cart"}, home.Elements[1].Locator)
	assert.Nil(t, home.Elements[2].Locator)

	none, err := LoadDefinitions(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadDefinition_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("elements:\n  - name: a\n    locator: by-magic\n"), 0o644))
	_, err := LoadDefinition(bad)
	assert.Error(t, err)

	dup := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dup, []byte("elements:\n  - name: a\n  - name: a\n"), 0o644))
	_, err = LoadDefinition(dup)
	assert.ErrorContains(t, err, "duplicate")
}

func TestPage_Navigation(t *testing.T) {
	doc := newFakeDocument()
	doc.title = "Shop"
	cfg := &config.SuiteConfig{
		Info:     config.SuiteInfo{BaseURL: "http://shop.test/"},
		Features: map[config.Feature]bool{config.FeatureSelfHealing: false},
		Browser:  config.BrowserSettings{Timeout: 5},
	}

	p := New("home", doc, cfg)
	assert.Equal(t, 5*time.Second, p.Timeout)

	ctx := context.Background()
	require.NoError(t, p.Open(ctx, "/search?q=go"))
	assert.Equal(t, "http://shop.test/search?q=go", doc.url)
	require.NoError(t, p.Open(ctx, ""))
	assert.Equal(t, "http://shop.test/", doc.url)
	assert.Equal(t, "https://other.test/x", p.URL("https://other.test/x"))

	title, err := p.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Shop", title)
	assert.NoError(t, p.WaitForLoad(ctx, 0))

	p.Register("search", "search input field", nil)
	doc.controls[ControlInput] = []*fakeElement{{attrs: map[string]string{"placeholder": "Search"}}}
	_, err = p.Resolve(ctx, "search")
	assert.ErrorIs(t, err, ErrNotFound, "suite config disables healing")
}

func TestPage_RegisterDefinition(t *testing.T) {
	doc := newFakeDocument()
	target := &fakeElement{visible: true}
	doc.byLoc[Locator{ByID, "search-box"}] = target

	p := New("home", doc, nil)
	p.RegisterDefinition(Definition{Name: "home", Elements: []ElementDefinition{
		{Name: "search", Description: "search input field", Locator: By(ByID, "search-box")},
		{Name: "logo", Description: "logo"},
	}})
	assert.Equal(t, []string{"logo", "search"}, p.Names())
	assert.True(t, p.IsVisible(context.Background(), "search"))
}

func TestPage_Screenshot(t *testing.T) {
	doc := newFakeDocument()
	doc.screenshot = []byte("png")

	p := New("home", doc, nil)
	p.ScreenshotDir = filepath.Join(t.TempDir(), "shots")

	path, err := p.Screenshot(context.Background(), "")
	require.NoError(t, err)
	assert.Regexp(t, `screenshot_\d+\.png$`, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	doc.screenshot = nil
	_, err = p.Screenshot(context.Background(), "x.png")
	assert.Error(t, err)
}

func TestJSONLSink(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvResultsDir, dir)

	sink, err := SinkFromEnv()
	require.NoError(t, err)
	require.NotNil(t, sink)

	require.NoError(t, sink.Record(HealingEntry{Element: "a", Success: true}))
	require.NoError(t, sink.Record(HealingEntry{Element: "b"}))

	data, err := os.ReadFile(sink.Path())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, HealingDir), filepath.Dir(sink.Path()))
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	t.Setenv(EnvResultsDir, "")
	none, err := SinkFromEnv()
	require.NoError(t, err)
	assert.Nil(t, none)
}
